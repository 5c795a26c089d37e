package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WorkflowCreator starts sequential approval workflows on documents.
type WorkflowCreator struct {
	repo      Repository
	validator *ApproverValidator
	notifier  ActivityNotifier
	logger    *zap.Logger
	now       func() time.Time
}

func NewWorkflowCreator(repo Repository, validator *ApproverValidator, notifier ActivityNotifier, logger *zap.Logger) *WorkflowCreator {
	return &WorkflowCreator{
		repo:      repo,
		validator: validator,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Create validates the request, then persists document status, workflow and
// steps as a saga. If a later step fails the earlier ones are compensated, so
// after an error neither the workflow nor its steps exist. The document gets
// its previous status back unless a concurrent request owns it by then.
func (c *WorkflowCreator) Create(ctx context.Context, req CreateWorkflowRequest) (*ApprovalWorkflow, *Document, error) {
	doc, err := c.repo.GetDocumentByID(ctx, req.DocumentID)
	if err != nil {
		return nil, nil, storageError("load document", err)
	}
	if doc == nil {
		return nil, nil, ErrDocumentNotFound
	}

	active, err := c.repo.HasActiveWorkflow(ctx, doc.ID)
	if err != nil {
		return nil, nil, storageError("check active workflow", err)
	}
	if active {
		return nil, nil, ErrActiveWorkflowExists
	}

	approvers, err := c.validator.Validate(ctx, doc.ProjectID, req.Approvers)
	if err != nil {
		return nil, nil, err
	}

	now := c.now()
	wf := &ApprovalWorkflow{
		ID:            uuid.New(),
		DocumentID:    doc.ID,
		RequestedBy:   req.RequestedBy,
		RequestedAt:   now,
		Comments:      req.Comments,
		TotalSteps:    len(approvers),
		CurrentStep:   1,
		OverallStatus: WorkflowPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	steps := make([]ApprovalStep, len(approvers))
	for i, m := range approvers {
		steps[i] = ApprovalStep{
			ID:           uuid.New(),
			WorkflowID:   wf.ID,
			ApproverID:   m.UserID,
			ApproverName: m.Name,
			Order:        i + 1,
			Status:       StepPending,
			CreatedAt:    now,
		}
	}

	previousStatus := doc.Status
	run := newSaga(c.logger,
		sagaStep{
			name: "set document status",
			forward: func(ctx context.Context) error {
				if err := c.repo.SetDocumentStatus(ctx, doc.ID, StatusPendingReview); err != nil {
					return storageError("set document status", err)
				}
				return nil
			},
			// Another request may have created the active workflow in the
			// meantime; its document status must survive our rollback.
			compensate: func(ctx context.Context) error {
				restored, err := c.repo.RestoreDocumentStatus(ctx, doc.ID, StatusPendingReview, previousStatus)
				if err != nil {
					return err
				}
				if !restored {
					c.logger.Info("Document status left in place after failed workflow creation",
						zap.String("document_id", doc.ID.String()))
				}
				return nil
			},
		},
		sagaStep{
			name: "create workflow",
			forward: func(ctx context.Context) error {
				err := c.repo.CreateWorkflow(ctx, wf)
				if errors.Is(err, ErrActiveWorkflowExists) {
					return err
				}
				if err != nil {
					return storageError("create workflow", err)
				}
				return nil
			},
			compensate: func(ctx context.Context) error {
				return c.repo.DeleteWorkflow(ctx, wf.ID)
			},
		},
		sagaStep{
			name: "create steps",
			forward: func(ctx context.Context) error {
				if err := c.repo.CreateSteps(ctx, steps); err != nil {
					return storageError("create steps", err)
				}
				return nil
			},
		},
	)
	if err := run.run(ctx); err != nil {
		return nil, nil, err
	}

	wf.Steps = steps
	doc.Status = StatusPendingReview
	doc.UpdatedAt = now

	names := make([]string, len(approvers))
	for i, m := range approvers {
		names[i] = m.Name
	}
	notifyActivity(ctx, c.notifier, c.logger, doc.ID, ActivityEvent{
		Action:      ActivityStatusChange,
		Description: fmt.Sprintf("Status changed from %s to %s", previousStatus, StatusPendingReview),
		Details: map[string]interface{}{
			"from":        previousStatus,
			"to":          StatusPendingReview,
			"reason":      "Approval requested from " + strings.Join(names, ", "),
			"workflow_id": wf.ID.String(),
			"total_steps": wf.TotalSteps,
		},
	})

	c.logger.Info("Approval workflow created",
		zap.String("document_id", doc.ID.String()),
		zap.String("workflow_id", wf.ID.String()),
		zap.Int("total_steps", wf.TotalSteps),
		zap.String("requested_by", req.RequestedBy.String()))

	return wf, doc, nil
}
