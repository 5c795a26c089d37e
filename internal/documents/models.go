package documents

import (
	"time"

	"github.com/google/uuid"
)

type DocumentStatus string

const (
	StatusDraft         DocumentStatus = "draft"
	StatusPendingReview DocumentStatus = "pending_review"
	StatusUnderReview   DocumentStatus = "under_review"
	StatusApproved      DocumentStatus = "approved"
	StatusRejected      DocumentStatus = "rejected"
)

// WorkflowStatus is the overall status of an approval workflow. The hyphenated
// "under-review" is deliberate: it differs from the document status spelling.
type WorkflowStatus string

const (
	WorkflowPending     WorkflowStatus = "pending"
	WorkflowUnderReview WorkflowStatus = "under-review"
	WorkflowApproved    WorkflowStatus = "approved"
	WorkflowRejected    WorkflowStatus = "rejected"
)

// ActiveWorkflowStatuses are the statuses covered by the single-active-workflow rule.
var ActiveWorkflowStatuses = []WorkflowStatus{WorkflowPending, WorkflowUnderReview}

func (s WorkflowStatus) IsActive() bool {
	return s == WorkflowPending || s == WorkflowUnderReview
}

func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowApproved || s == WorkflowRejected
}

// DocumentStatus returns the document status that mirrors a workflow status.
func (s WorkflowStatus) DocumentStatus() DocumentStatus {
	switch s {
	case WorkflowPending:
		return StatusPendingReview
	case WorkflowUnderReview:
		return StatusUnderReview
	case WorkflowApproved:
		return StatusApproved
	case WorkflowRejected:
		return StatusRejected
	default:
		return ""
	}
}

type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepApproved StepStatus = "approved"
	StepRejected StepStatus = "rejected"
)

// Document is the slice of the application's document record this engine reads
// and writes. Only Status and UpdatedAt are ever mutated here.
type Document struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	ProjectID uuid.UUID      `json:"project_id" db:"project_id"`
	Name      string         `json:"name" db:"name"`
	Status    DocumentStatus `json:"status" db:"status"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

type ApprovalWorkflow struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	DocumentID    uuid.UUID      `json:"document_id" db:"document_id"`
	RequestedBy   uuid.UUID      `json:"requested_by" db:"requested_by"`
	RequestedAt   time.Time      `json:"requested_at" db:"requested_at"`
	Comments      *string        `json:"comments,omitempty" db:"comments"`
	TotalSteps    int            `json:"total_steps" db:"total_steps"`
	CurrentStep   int            `json:"current_step" db:"current_step"`
	OverallStatus WorkflowStatus `json:"overall_status" db:"overall_status"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`

	Steps []ApprovalStep `json:"steps" db:"-"`
}

// StepAt returns the step with the given order, or nil.
func (w *ApprovalWorkflow) StepAt(order int) *ApprovalStep {
	for i := range w.Steps {
		if w.Steps[i].Order == order {
			return &w.Steps[i]
		}
	}
	return nil
}

type ApprovalStep struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	WorkflowID     uuid.UUID  `json:"workflow_id" db:"workflow_id"`
	ApproverID     uuid.UUID  `json:"approver_id" db:"approver_id"`
	ApproverName   string     `json:"approver_name" db:"approver_name"`
	Order          int        `json:"order" db:"step_order"`
	Status         StepStatus `json:"status" db:"status"`
	ViewedDocument bool       `json:"viewed_document" db:"viewed_document"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	RejectedAt     *time.Time `json:"rejected_at,omitempty" db:"rejected_at"`
	Comments       *string    `json:"comments,omitempty" db:"comments"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// CreateWorkflowRequest asks for a new sequential approval on a document.
// Approvers are acted on in the order given.
type CreateWorkflowRequest struct {
	DocumentID  uuid.UUID
	RequestedBy uuid.UUID
	Approvers   []uuid.UUID
	Comments    *string
}

type ActRequest struct {
	DocumentID   uuid.UUID
	ActingUserID uuid.UUID
	Action       Action
	Comments     *string
}

type ActionResult struct {
	Action         Action         `json:"action"`
	WorkflowID     uuid.UUID      `json:"workflow_id"`
	StepOrder      int            `json:"step"`
	TotalSteps     int            `json:"total_steps"`
	ResultStatus   WorkflowStatus `json:"status"`
	DocumentStatus DocumentStatus `json:"document_status"`
}
