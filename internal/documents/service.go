package documents

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service is what the HTTP layer calls. Every error it returns matches one of
// the Err* kinds in errors.go.
type Service interface {
	CreateWorkflow(ctx context.Context, req CreateWorkflowRequest) (*ApprovalWorkflow, *Document, error)
	// GetActiveOrLatestWorkflow returns the active workflow, else the most
	// recently requested one, else nil.
	GetActiveOrLatestWorkflow(ctx context.Context, documentID uuid.UUID) (*ApprovalWorkflow, error)
	ActOnWorkflow(ctx context.Context, req ActRequest) (*ActionResult, error)

	VerifyWorkflow(ctx context.Context, documentID uuid.UUID) (*ApprovalWorkflow, error)
	ExportWorkflow(ctx context.Context, documentID uuid.UUID, format ExportFormat, w io.Writer) error
	ListActivity(ctx context.Context, documentID uuid.UUID) ([]DocumentActivity, error)
}

// ActivityReader lists recorded activity for a document.
type ActivityReader interface {
	ListForDocument(ctx context.Context, documentID uuid.UUID) ([]DocumentActivity, error)
}

type approvalService struct {
	repo      Repository
	creator   *WorkflowCreator
	processor *ActionProcessor
	exporter  *TrailExporter
	activity  ActivityReader
	logger    *zap.Logger
}

func NewService(repo Repository, creator *WorkflowCreator, processor *ActionProcessor, exporter *TrailExporter, activity ActivityReader, logger *zap.Logger) Service {
	return &approvalService{
		repo:      repo,
		creator:   creator,
		processor: processor,
		exporter:  exporter,
		activity:  activity,
		logger:    logger,
	}
}

func (s *approvalService) CreateWorkflow(ctx context.Context, req CreateWorkflowRequest) (*ApprovalWorkflow, *Document, error) {
	return s.creator.Create(ctx, req)
}

func (s *approvalService) GetActiveOrLatestWorkflow(ctx context.Context, documentID uuid.UUID) (*ApprovalWorkflow, error) {
	if _, err := s.document(ctx, documentID); err != nil {
		return nil, err
	}
	return s.activeOrLatest(ctx, documentID)
}

func (s *approvalService) ActOnWorkflow(ctx context.Context, req ActRequest) (*ActionResult, error) {
	return s.processor.Act(ctx, req)
}

// VerifyWorkflow checks the active or latest workflow of a document against
// its steps and the document status. On drift the workflow is returned along
// with a *DriftError.
func (s *approvalService) VerifyWorkflow(ctx context.Context, documentID uuid.UUID) (*ApprovalWorkflow, error) {
	doc, err := s.document(ctx, documentID)
	if err != nil {
		return nil, err
	}
	wf, err := s.activeOrLatest(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, ErrWorkflowNotFound
	}
	if err := Verify(wf, doc); err != nil {
		s.logger.Warn("Approval workflow failed verification",
			zap.String("document_id", documentID.String()),
			zap.Error(err))
		return wf, err
	}
	return wf, nil
}

func (s *approvalService) ExportWorkflow(ctx context.Context, documentID uuid.UUID, format ExportFormat, w io.Writer) error {
	doc, err := s.document(ctx, documentID)
	if err != nil {
		return err
	}
	wf, err := s.activeOrLatest(ctx, documentID)
	if err != nil {
		return err
	}
	if wf == nil {
		return ErrWorkflowNotFound
	}
	if err := s.exporter.Export(ctx, doc, wf, format, w); err != nil {
		return fmt.Errorf("failed to export approval trail: %w", err)
	}
	return nil
}

func (s *approvalService) ListActivity(ctx context.Context, documentID uuid.UUID) ([]DocumentActivity, error) {
	if _, err := s.document(ctx, documentID); err != nil {
		return nil, err
	}
	entries, err := s.activity.ListForDocument(ctx, documentID)
	if err != nil {
		return nil, storageError("list activity", err)
	}
	return entries, nil
}

func (s *approvalService) document(ctx context.Context, id uuid.UUID) (*Document, error) {
	doc, err := s.repo.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, storageError("load document", err)
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

func (s *approvalService) activeOrLatest(ctx context.Context, documentID uuid.UUID) (*ApprovalWorkflow, error) {
	wf, err := s.repo.GetActiveWorkflow(ctx, documentID)
	if err != nil {
		return nil, storageError("load active workflow", err)
	}
	if wf != nil {
		return wf, nil
	}
	wf, err = s.repo.GetLatestWorkflow(ctx, documentID)
	if err != nil {
		return nil, storageError("load latest workflow", err)
	}
	return wf, nil
}
