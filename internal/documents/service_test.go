package documents

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"doccontrol/portal-backend/pkg/pdf"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetDocumentByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Document), args.Error(1)
}

func (m *MockRepository) SetDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockRepository) RestoreDocumentStatus(ctx context.Context, id uuid.UUID, from, to DocumentStatus) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) HasActiveWorkflow(ctx context.Context, documentID uuid.UUID) (bool, error) {
	args := m.Called(ctx, documentID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) CreateWorkflow(ctx context.Context, workflow *ApprovalWorkflow) error {
	args := m.Called(ctx, workflow)
	return args.Error(0)
}

func (m *MockRepository) CreateSteps(ctx context.Context, steps []ApprovalStep) error {
	args := m.Called(ctx, steps)
	return args.Error(0)
}

func (m *MockRepository) DeleteWorkflow(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) GetActiveWorkflow(ctx context.Context, documentID uuid.UUID) (*ApprovalWorkflow, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ApprovalWorkflow), args.Error(1)
}

func (m *MockRepository) GetLatestWorkflow(ctx context.Context, documentID uuid.UUID) (*ApprovalWorkflow, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ApprovalWorkflow), args.Error(1)
}

func (m *MockRepository) ListActiveWorkflows(ctx context.Context, limit int) ([]ApprovalWorkflow, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ApprovalWorkflow), args.Error(1)
}

func (m *MockRepository) ApplyTransition(ctx context.Context, t Transition) (bool, error) {
	args := m.Called(ctx, t)
	return args.Bool(0), args.Error(1)
}

// MockActivityReader is a mock implementation of ActivityReader
type MockActivityReader struct {
	mock.Mock
}

func (m *MockActivityReader) ListForDocument(ctx context.Context, documentID uuid.UUID) ([]DocumentActivity, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]DocumentActivity), args.Error(1)
}

func newTestService(repo Repository, members ...Member) (Service, *MockActivityReader) {
	logger := zap.NewNop()
	activity := new(MockActivityReader)
	validator := NewApproverValidator(staticMembers{members: members})
	svc := NewService(
		repo,
		NewWorkflowCreator(repo, validator, nil, logger),
		NewActionProcessor(repo, nil, logger),
		NewTrailExporter(pdf.NewGenerator(pdf.DefaultOptions())),
		activity,
		logger,
	)
	return svc, activity
}

func TestCreateWorkflow_CompensatesWhenStepInsertFails(t *testing.T) {
	mockRepo := new(MockRepository)
	approver := Member{UserID: uuid.New(), Name: "Alice"}
	svc, _ := newTestService(mockRepo, approver)

	doc := &Document{ID: uuid.New(), ProjectID: uuid.New(), Status: StatusDraft}
	var created *ApprovalWorkflow

	mockRepo.On("GetDocumentByID", mock.Anything, doc.ID).Return(doc, nil)
	mockRepo.On("HasActiveWorkflow", mock.Anything, doc.ID).Return(false, nil)
	mockRepo.On("SetDocumentStatus", mock.Anything, doc.ID, StatusPendingReview).Return(nil).Once()
	mockRepo.On("CreateWorkflow", mock.Anything, mock.AnythingOfType("*documents.ApprovalWorkflow")).
		Run(func(args mock.Arguments) { created = args.Get(1).(*ApprovalWorkflow) }).
		Return(nil)
	mockRepo.On("CreateSteps", mock.Anything, mock.Anything).Return(errors.New("connection reset"))
	mockRepo.On("DeleteWorkflow", mock.Anything, mock.MatchedBy(func(id uuid.UUID) bool {
		return created != nil && id == created.ID
	})).Return(nil).Once()
	mockRepo.On("RestoreDocumentStatus", mock.Anything, doc.ID, StatusPendingReview, StatusDraft).Return(true, nil).Once()

	wf, updated, err := svc.CreateWorkflow(context.Background(), CreateWorkflowRequest{
		DocumentID:  doc.ID,
		RequestedBy: uuid.New(),
		Approvers:   []uuid.UUID{approver.UserID},
	})

	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.Nil(t, wf)
	assert.Nil(t, updated)
	mockRepo.AssertExpectations(t)
}

func TestCreateWorkflow_LostInsertRace(t *testing.T) {
	mockRepo := new(MockRepository)
	approver := Member{UserID: uuid.New(), Name: "Alice"}
	svc, _ := newTestService(mockRepo, approver)

	doc := &Document{ID: uuid.New(), ProjectID: uuid.New(), Status: StatusApproved}

	mockRepo.On("GetDocumentByID", mock.Anything, doc.ID).Return(doc, nil)
	mockRepo.On("HasActiveWorkflow", mock.Anything, doc.ID).Return(false, nil)
	mockRepo.On("SetDocumentStatus", mock.Anything, doc.ID, StatusPendingReview).Return(nil).Once()
	mockRepo.On("CreateWorkflow", mock.Anything, mock.Anything).Return(ErrActiveWorkflowExists)
	// the winner's workflow is active, so nothing is restored
	mockRepo.On("RestoreDocumentStatus", mock.Anything, doc.ID, StatusPendingReview, StatusApproved).Return(false, nil).Once()

	_, _, err := svc.CreateWorkflow(context.Background(), CreateWorkflowRequest{
		DocumentID:  doc.ID,
		RequestedBy: uuid.New(),
		Approvers:   []uuid.UUID{approver.UserID},
	})

	assert.ErrorIs(t, err, ErrActiveWorkflowExists)
	assert.NotErrorIs(t, err, ErrStorageFailure)
	mockRepo.AssertExpectations(t)
	mockRepo.AssertNotCalled(t, "DeleteWorkflow", mock.Anything, mock.Anything)
	mockRepo.AssertNotCalled(t, "CreateSteps", mock.Anything, mock.Anything)
	mockRepo.AssertNumberOfCalls(t, "SetDocumentStatus", 1)
}

func TestCreateWorkflow_PreconditionsDoNotMutate(t *testing.T) {
	member := Member{UserID: uuid.New(), Name: "Alice"}
	doc := &Document{ID: uuid.New(), ProjectID: uuid.New(), Status: StatusDraft}

	tests := []struct {
		name      string
		setup     func(m *MockRepository)
		approvers []uuid.UUID
		wantErr   error
	}{
		{
			name: "document not found",
			setup: func(m *MockRepository) {
				m.On("GetDocumentByID", mock.Anything, doc.ID).Return(nil, nil)
			},
			approvers: []uuid.UUID{member.UserID},
			wantErr:   ErrDocumentNotFound,
		},
		{
			name: "active workflow exists",
			setup: func(m *MockRepository) {
				m.On("GetDocumentByID", mock.Anything, doc.ID).Return(doc, nil)
				m.On("HasActiveWorkflow", mock.Anything, doc.ID).Return(true, nil)
			},
			approvers: []uuid.UUID{member.UserID},
			wantErr:   ErrActiveWorkflowExists,
		},
		{
			name: "empty approvers",
			setup: func(m *MockRepository) {
				m.On("GetDocumentByID", mock.Anything, doc.ID).Return(doc, nil)
				m.On("HasActiveWorkflow", mock.Anything, doc.ID).Return(false, nil)
			},
			approvers: nil,
			wantErr:   ErrInvalidApprovers,
		},
		{
			name: "approver outside project",
			setup: func(m *MockRepository) {
				m.On("GetDocumentByID", mock.Anything, doc.ID).Return(doc, nil)
				m.On("HasActiveWorkflow", mock.Anything, doc.ID).Return(false, nil)
			},
			approvers: []uuid.UUID{member.UserID, uuid.New()},
			wantErr:   ErrInvalidApprovers,
		},
		{
			name: "document lookup fails",
			setup: func(m *MockRepository) {
				m.On("GetDocumentByID", mock.Anything, doc.ID).Return(nil, errors.New("timeout"))
			},
			approvers: []uuid.UUID{member.UserID},
			wantErr:   ErrStorageFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockRepository)
			tt.setup(mockRepo)
			svc, _ := newTestService(mockRepo, member)

			_, _, err := svc.CreateWorkflow(context.Background(), CreateWorkflowRequest{
				DocumentID:  doc.ID,
				RequestedBy: uuid.New(),
				Approvers:   tt.approvers,
			})

			assert.ErrorIs(t, err, tt.wantErr)
			mockRepo.AssertExpectations(t)
			mockRepo.AssertNotCalled(t, "SetDocumentStatus", mock.Anything, mock.Anything, mock.Anything)
			mockRepo.AssertNotCalled(t, "CreateWorkflow", mock.Anything, mock.Anything)
		})
	}
}

func TestGetActiveOrLatestWorkflow(t *testing.T) {
	docID := uuid.New()
	doc := &Document{ID: docID, Status: StatusApproved}
	latest := &ApprovalWorkflow{ID: uuid.New(), DocumentID: docID, OverallStatus: WorkflowApproved}
	active := &ApprovalWorkflow{ID: uuid.New(), DocumentID: docID, OverallStatus: WorkflowUnderReview}

	t.Run("prefers active", func(t *testing.T) {
		mockRepo := new(MockRepository)
		svc, _ := newTestService(mockRepo)
		mockRepo.On("GetDocumentByID", mock.Anything, docID).Return(doc, nil)
		mockRepo.On("GetActiveWorkflow", mock.Anything, docID).Return(active, nil)

		wf, err := svc.GetActiveOrLatestWorkflow(context.Background(), docID)
		require.NoError(t, err)
		assert.Equal(t, active.ID, wf.ID)
		mockRepo.AssertNotCalled(t, "GetLatestWorkflow", mock.Anything, mock.Anything)
	})

	t.Run("falls back to latest", func(t *testing.T) {
		mockRepo := new(MockRepository)
		svc, _ := newTestService(mockRepo)
		mockRepo.On("GetDocumentByID", mock.Anything, docID).Return(doc, nil)
		mockRepo.On("GetActiveWorkflow", mock.Anything, docID).Return(nil, nil)
		mockRepo.On("GetLatestWorkflow", mock.Anything, docID).Return(latest, nil)

		wf, err := svc.GetActiveOrLatestWorkflow(context.Background(), docID)
		require.NoError(t, err)
		assert.Equal(t, latest.ID, wf.ID)
	})

	t.Run("none", func(t *testing.T) {
		mockRepo := new(MockRepository)
		svc, _ := newTestService(mockRepo)
		mockRepo.On("GetDocumentByID", mock.Anything, docID).Return(doc, nil)
		mockRepo.On("GetActiveWorkflow", mock.Anything, docID).Return(nil, nil)
		mockRepo.On("GetLatestWorkflow", mock.Anything, docID).Return(nil, nil)

		wf, err := svc.GetActiveOrLatestWorkflow(context.Background(), docID)
		require.NoError(t, err)
		assert.Nil(t, wf)
	})

	t.Run("unknown document", func(t *testing.T) {
		mockRepo := new(MockRepository)
		svc, _ := newTestService(mockRepo)
		mockRepo.On("GetDocumentByID", mock.Anything, docID).Return(nil, nil)

		_, err := svc.GetActiveOrLatestWorkflow(context.Background(), docID)
		assert.ErrorIs(t, err, ErrDocumentNotFound)
	})
}

func TestActOnWorkflow_StorageFailure(t *testing.T) {
	mockRepo := new(MockRepository)
	svc, _ := newTestService(mockRepo)
	docID := uuid.New()
	mockRepo.On("GetActiveWorkflow", mock.Anything, docID).Return(nil, errors.New("connection refused"))

	_, err := svc.ActOnWorkflow(context.Background(), ActRequest{DocumentID: docID, ActingUserID: uuid.New(), Action: ActionApprove})
	assert.ErrorIs(t, err, ErrStorageFailure)
}

func TestActOnWorkflow_TransitionFailureIsStorageFailure(t *testing.T) {
	mockRepo := new(MockRepository)
	svc, _ := newTestService(mockRepo)

	approver := uuid.New()
	docID := uuid.New()
	wf := &ApprovalWorkflow{
		ID: uuid.New(), DocumentID: docID, TotalSteps: 1, CurrentStep: 1, OverallStatus: WorkflowUnderReview,
		Steps: []ApprovalStep{{ID: uuid.New(), ApproverID: approver, Order: 1, Status: StepPending, ViewedDocument: true}},
	}
	mockRepo.On("GetActiveWorkflow", mock.Anything, docID).Return(wf, nil)
	mockRepo.On("ApplyTransition", mock.Anything, mock.AnythingOfType("documents.Transition")).Return(false, errors.New("deadlock detected"))

	_, err := svc.ActOnWorkflow(context.Background(), ActRequest{DocumentID: docID, ActingUserID: approver, Action: ActionApprove})
	assert.ErrorIs(t, err, ErrStorageFailure)
	mockRepo.AssertExpectations(t)
}

func TestActOnWorkflow_PersistsSingleTransition(t *testing.T) {
	mockRepo := new(MockRepository)
	svc, _ := newTestService(mockRepo)

	approver := uuid.New()
	docID := uuid.New()
	wf := &ApprovalWorkflow{
		ID: uuid.New(), DocumentID: docID, TotalSteps: 2, CurrentStep: 2, OverallStatus: WorkflowUnderReview,
		Steps: []ApprovalStep{
			{ID: uuid.New(), ApproverID: uuid.New(), Order: 1, Status: StepApproved, ViewedDocument: true},
			{ID: uuid.New(), ApproverID: approver, Order: 2, Status: StepPending, ViewedDocument: true},
		},
	}
	mockRepo.On("GetActiveWorkflow", mock.Anything, docID).Return(wf, nil)
	mockRepo.On("ApplyTransition", mock.Anything, mock.MatchedBy(func(tr Transition) bool {
		return tr.Step.Guard == GuardPending &&
			tr.Step.StepID == wf.Steps[1].ID &&
			tr.Step.Status == StepApproved &&
			tr.Workflow.FromStatus == WorkflowUnderReview &&
			tr.Workflow.FromStep == 2 &&
			tr.Workflow.OverallStatus == WorkflowApproved &&
			tr.Workflow.CompletedAt != nil &&
			tr.Document.Status == StatusApproved
	})).Return(true, nil).Once()

	result, err := svc.ActOnWorkflow(context.Background(), ActRequest{DocumentID: docID, ActingUserID: approver, Action: ActionApprove})
	require.NoError(t, err)
	assert.Equal(t, WorkflowApproved, result.ResultStatus)
	mockRepo.AssertExpectations(t)
}

func TestVerifyWorkflow_ReportsDrift(t *testing.T) {
	mockRepo := new(MockRepository)
	svc, _ := newTestService(mockRepo)

	docID := uuid.New()
	doc := &Document{ID: docID, Status: StatusPendingReview}
	now := time.Now()
	wf := &ApprovalWorkflow{
		ID: uuid.New(), DocumentID: docID, TotalSteps: 2, CurrentStep: 1, OverallStatus: WorkflowUnderReview,
		Steps: []ApprovalStep{
			{ID: uuid.New(), Order: 1, Status: StepApproved, ViewedDocument: true, ApprovedAt: &now},
			{ID: uuid.New(), Order: 2, Status: StepPending},
		},
	}
	mockRepo.On("GetDocumentByID", mock.Anything, docID).Return(doc, nil)
	mockRepo.On("GetActiveWorkflow", mock.Anything, docID).Return(wf, nil)

	got, err := svc.VerifyWorkflow(context.Background(), docID)

	var drift *DriftError
	require.ErrorAs(t, err, &drift)
	assert.ErrorIs(t, err, ErrWorkflowDrift)
	assert.Equal(t, wf.ID, got.ID)
	assert.Len(t, drift.Mismatches, 2) // current step and document status
}

func TestExportWorkflow(t *testing.T) {
	docID := uuid.New()
	doc := &Document{ID: docID, Name: "Baseline survey", Status: StatusPendingReview}

	t.Run("no workflow", func(t *testing.T) {
		mockRepo := new(MockRepository)
		svc, _ := newTestService(mockRepo)
		mockRepo.On("GetDocumentByID", mock.Anything, docID).Return(doc, nil)
		mockRepo.On("GetActiveWorkflow", mock.Anything, docID).Return(nil, nil)
		mockRepo.On("GetLatestWorkflow", mock.Anything, docID).Return(nil, nil)

		var buf bytes.Buffer
		err := svc.ExportWorkflow(context.Background(), docID, ExportPDF, &buf)
		assert.ErrorIs(t, err, ErrWorkflowNotFound)
		assert.Zero(t, buf.Len())
	})

	t.Run("pdf", func(t *testing.T) {
		mockRepo := new(MockRepository)
		svc, _ := newTestService(mockRepo)
		wf := &ApprovalWorkflow{
			ID: uuid.New(), DocumentID: docID, TotalSteps: 1, CurrentStep: 1, OverallStatus: WorkflowPending,
			RequestedAt: time.Now(),
			Steps:       []ApprovalStep{{ID: uuid.New(), ApproverName: "Alice", Order: 1, Status: StepPending}},
		}
		mockRepo.On("GetDocumentByID", mock.Anything, docID).Return(doc, nil)
		mockRepo.On("GetActiveWorkflow", mock.Anything, docID).Return(wf, nil)

		var buf bytes.Buffer
		require.NoError(t, svc.ExportWorkflow(context.Background(), docID, ExportPDF, &buf))
		assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
	})
}

func TestListActivity(t *testing.T) {
	mockRepo := new(MockRepository)
	svc, activity := newTestService(mockRepo)
	docID := uuid.New()
	entries := []DocumentActivity{{ID: uuid.New(), DocumentID: docID, Action: ActivityApproved}}

	mockRepo.On("GetDocumentByID", mock.Anything, docID).Return(&Document{ID: docID}, nil)
	activity.On("ListForDocument", mock.Anything, docID).Return(entries, nil)

	got, err := svc.ListActivity(context.Background(), docID)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
	activity.AssertExpectations(t)
}
