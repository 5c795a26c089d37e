package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ActionProcessor applies approver decisions to the active workflow of a
// document. Only the approver of the current step may act; everyone else is
// refused without any change.
type ActionProcessor struct {
	repo     Repository
	planner  *transitionPlanner
	notifier ActivityNotifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewActionProcessor(repo Repository, notifier ActivityNotifier, logger *zap.Logger) *ActionProcessor {
	return &ActionProcessor{
		repo:     repo,
		planner:  newTransitionPlanner(),
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

func (p *ActionProcessor) Act(ctx context.Context, req ActRequest) (*ActionResult, error) {
	wf, err := p.repo.GetActiveWorkflow(ctx, req.DocumentID)
	if err != nil {
		return nil, storageError("load active workflow", err)
	}
	if wf == nil {
		return nil, ErrNoActiveWorkflow
	}

	step := approverStep(wf, req.ActingUserID)
	if step == nil {
		return nil, ErrNotAnApprover
	}

	// The current approver touching the workflow counts as viewing the
	// document, whatever happens to the action itself.
	if step.Order == wf.CurrentStep && !step.ViewedDocument {
		wf, step, err = p.markViewed(ctx, wf, step, req.ActingUserID)
		if err != nil {
			return nil, err
		}
	}

	// A decided step is reported as such before turn order, so a repeated
	// submission is recognisable to the caller.
	if step.Status != StepPending {
		return nil, ErrAlreadyActed
	}
	if step.Order != wf.CurrentStep {
		return nil, &NotYourTurnError{ExpectedStep: wf.CurrentStep, ActualStep: step.Order}
	}

	t, err := p.planner.planAction(wf, step, req.Action, req.Comments, p.now())
	if err != nil {
		return nil, err
	}
	if _, err := p.repo.ApplyTransition(ctx, t); err != nil {
		if errors.Is(err, ErrAlreadyActed) {
			return nil, err
		}
		return nil, storageError("apply "+req.Action.String(), err)
	}
	applyTransition(wf, t)

	p.logger.Info("Approval step processed",
		zap.String("document_id", wf.DocumentID.String()),
		zap.String("workflow_id", wf.ID.String()),
		zap.String("action", req.Action.String()),
		zap.Int("step", step.Order),
		zap.Int("total_steps", wf.TotalSteps),
		zap.String("status", string(wf.OverallStatus)))

	p.notifyAction(ctx, wf, step, req)

	return &ActionResult{
		Action:         req.Action,
		WorkflowID:     wf.ID,
		StepOrder:      step.Order,
		TotalSteps:     wf.TotalSteps,
		ResultStatus:   wf.OverallStatus,
		DocumentStatus: t.Document.Status,
	}, nil
}

// markViewed records the first view of the current step. When a concurrent
// request recorded it first, the workflow is reloaded so the caller sees the
// state that request left behind.
func (p *ActionProcessor) markViewed(ctx context.Context, wf *ApprovalWorkflow, step *ApprovalStep, userID uuid.UUID) (*ApprovalWorkflow, *ApprovalStep, error) {
	t, err := p.planner.planView(wf, step, p.now())
	if err != nil {
		return nil, nil, err
	}
	applied, err := p.repo.ApplyTransition(ctx, t)
	if err != nil {
		return nil, nil, storageError("record view", err)
	}
	if applied {
		applyTransition(wf, t)
		p.logger.Debug("Approval step viewed",
			zap.String("workflow_id", wf.ID.String()),
			zap.Int("step", step.Order))
		return wf, step, nil
	}

	reloaded, err := p.repo.GetActiveWorkflow(ctx, wf.DocumentID)
	if err != nil {
		return nil, nil, storageError("reload active workflow", err)
	}
	if reloaded == nil || reloaded.ID != wf.ID {
		return nil, nil, ErrAlreadyActed
	}
	again := approverStep(reloaded, userID)
	if again == nil {
		return nil, nil, ErrNotAnApprover
	}
	return reloaded, again, nil
}

func (p *ActionProcessor) notifyAction(ctx context.Context, wf *ApprovalWorkflow, step *ApprovalStep, req ActRequest) {
	event := ActivityEvent{
		Details: map[string]interface{}{
			"workflow_id": wf.ID.String(),
			"step":        step.Order,
			"total_steps": wf.TotalSteps,
			"approver_id": step.ApproverID.String(),
			"status":      wf.OverallStatus,
		},
	}
	switch req.Action {
	case ActionApprove:
		event.Action = ActivityApproved
		event.Description = fmt.Sprintf("Step %d of %d approved by %s", step.Order, wf.TotalSteps, approverLabel(step))
	case ActionReject:
		event.Action = ActivityRejected
		event.Description = fmt.Sprintf("Step %d of %d rejected by %s", step.Order, wf.TotalSteps, approverLabel(step))
	}
	if req.Comments != nil {
		event.Details["comments"] = *req.Comments
	}
	notifyActivity(ctx, p.notifier, p.logger, wf.DocumentID, event)
}

// approverStep finds the step owned by userID. A user listed more than once
// acts on the current step when it is theirs, otherwise on their earliest
// pending step, otherwise on their earliest step.
func approverStep(wf *ApprovalWorkflow, userID uuid.UUID) *ApprovalStep {
	var first, firstPending *ApprovalStep
	for i := range wf.Steps {
		st := &wf.Steps[i]
		if st.ApproverID != userID {
			continue
		}
		if st.Order == wf.CurrentStep {
			return st
		}
		if first == nil || st.Order < first.Order {
			first = st
		}
		if st.Status == StepPending && (firstPending == nil || st.Order < firstPending.Order) {
			firstPending = st
		}
	}
	if firstPending != nil {
		return firstPending
	}
	return first
}

func approverLabel(step *ApprovalStep) string {
	if step.ApproverName != "" {
		return step.ApproverName
	}
	return step.ApproverID.String()
}
