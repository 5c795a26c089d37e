package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Repository is the storage the approval engine runs on. Lookups return nil,
// nil when nothing matches.
type Repository interface {
	GetDocumentByID(ctx context.Context, id uuid.UUID) (*Document, error)
	SetDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error
	// RestoreDocumentStatus moves a document from one status back to another
	// only while it is in from and no active workflow exists for it. It
	// reports whether the row was changed.
	RestoreDocumentStatus(ctx context.Context, id uuid.UUID, from, to DocumentStatus) (bool, error)

	HasActiveWorkflow(ctx context.Context, documentID uuid.UUID) (bool, error)
	// CreateWorkflow returns ErrActiveWorkflowExists when another active
	// workflow for the same document wins the race.
	CreateWorkflow(ctx context.Context, workflow *ApprovalWorkflow) error
	CreateSteps(ctx context.Context, steps []ApprovalStep) error
	DeleteWorkflow(ctx context.Context, id uuid.UUID) error

	GetActiveWorkflow(ctx context.Context, documentID uuid.UUID) (*ApprovalWorkflow, error)
	GetLatestWorkflow(ctx context.Context, documentID uuid.UUID) (*ApprovalWorkflow, error)
	ListActiveWorkflows(ctx context.Context, limit int) ([]ApprovalWorkflow, error)

	// ApplyTransition persists step, workflow and document changes atomically.
	// A lost action guard returns ErrAlreadyActed; a lost view guard returns
	// false with no error.
	ApplyTransition(ctx context.Context, t Transition) (bool, error)
}

// Schema creates the engine's tables. The partial unique index enforces a
// single active workflow per document.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         UUID PRIMARY KEY,
	project_id UUID NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'draft',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS approval_workflows (
	id             UUID PRIMARY KEY,
	document_id    UUID NOT NULL REFERENCES documents(id),
	requested_by   UUID NOT NULL,
	requested_at   TIMESTAMPTZ NOT NULL,
	comments       TEXT,
	total_steps    INT NOT NULL CHECK (total_steps >= 1),
	current_step   INT NOT NULL,
	overall_status TEXT NOT NULL,
	completed_at   TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_approval_workflows_active_document
	ON approval_workflows (document_id)
	WHERE overall_status IN ('pending', 'under-review');

CREATE TABLE IF NOT EXISTS approval_steps (
	id              UUID PRIMARY KEY,
	workflow_id     UUID NOT NULL REFERENCES approval_workflows(id) ON DELETE CASCADE,
	approver_id     UUID NOT NULL,
	approver_name   TEXT NOT NULL DEFAULT '',
	step_order      INT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	viewed_document BOOLEAN NOT NULL DEFAULT FALSE,
	approved_at     TIMESTAMPTZ,
	rejected_at     TIMESTAMPTZ,
	comments        TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (workflow_id, step_order)
);
`

const (
	workflowColumns = `id, document_id, requested_by, requested_at, comments, total_steps,
		current_step, overall_status, completed_at, created_at, updated_at`
	stepColumns = `id, workflow_id, approver_id, approver_name, step_order, status,
		viewed_document, approved_at, rejected_at, comments, created_at`
)

const pqUniqueViolation = "23505"

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply approval schema: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetDocumentByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	var doc Document
	err := r.db.GetContext(ctx, &doc, "SELECT id, project_id, name, status, updated_at FROM documents WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *postgresRepository) SetDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error {
	_, err := r.db.ExecContext(ctx, "UPDATE documents SET status = $1, updated_at = $2 WHERE id = $3", status, time.Now(), id)
	return err
}

func (r *postgresRepository) RestoreDocumentStatus(ctx context.Context, id uuid.UUID, from, to DocumentStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE documents SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
		AND NOT EXISTS (
			SELECT 1 FROM approval_workflows
			WHERE document_id = $3 AND overall_status = ANY($5)
		)`, to, time.Now(), id, from, pq.Array(activeStatusStrings()))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *postgresRepository) HasActiveWorkflow(ctx context.Context, documentID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM approval_workflows WHERE document_id = $1 AND overall_status = ANY($2))",
		documentID, pq.Array(activeStatusStrings()))
	return exists, err
}

func (r *postgresRepository) CreateWorkflow(ctx context.Context, workflow *ApprovalWorkflow) error {
	query := `
		INSERT INTO approval_workflows (
			id, document_id, requested_by, requested_at, comments, total_steps,
			current_step, overall_status, completed_at, created_at, updated_at
		) VALUES (
			:id, :document_id, :requested_by, :requested_at, :comments, :total_steps,
			:current_step, :overall_status, :completed_at, :created_at, :updated_at
		)`
	_, err := r.db.NamedExecContext(ctx, query, workflow)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return ErrActiveWorkflowExists
	}
	return err
}

func (r *postgresRepository) CreateSteps(ctx context.Context, steps []ApprovalStep) error {
	if len(steps) == 0 {
		return nil
	}
	query := `
		INSERT INTO approval_steps (
			id, workflow_id, approver_id, approver_name, step_order, status,
			viewed_document, approved_at, rejected_at, comments, created_at
		) VALUES (
			:id, :workflow_id, :approver_id, :approver_name, :step_order, :status,
			:viewed_document, :approved_at, :rejected_at, :comments, :created_at
		)`
	_, err := r.db.NamedExecContext(ctx, query, steps)
	return err
}

func (r *postgresRepository) DeleteWorkflow(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM approval_workflows WHERE id = $1", id)
	return err
}

func (r *postgresRepository) GetActiveWorkflow(ctx context.Context, documentID uuid.UUID) (*ApprovalWorkflow, error) {
	query := "SELECT " + workflowColumns + ` FROM approval_workflows
		WHERE document_id = $1 AND overall_status = ANY($2)
		LIMIT 1`
	return r.getWorkflow(ctx, query, documentID, pq.Array(activeStatusStrings()))
}

func (r *postgresRepository) GetLatestWorkflow(ctx context.Context, documentID uuid.UUID) (*ApprovalWorkflow, error) {
	query := "SELECT " + workflowColumns + ` FROM approval_workflows
		WHERE document_id = $1
		ORDER BY requested_at DESC
		LIMIT 1`
	return r.getWorkflow(ctx, query, documentID)
}

func (r *postgresRepository) getWorkflow(ctx context.Context, query string, args ...interface{}) (*ApprovalWorkflow, error) {
	var wf ApprovalWorkflow
	err := r.db.GetContext(ctx, &wf, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := r.db.SelectContext(ctx, &wf.Steps,
		"SELECT "+stepColumns+" FROM approval_steps WHERE workflow_id = $1 ORDER BY step_order", wf.ID); err != nil {
		return nil, fmt.Errorf("failed to load steps: %w", err)
	}
	return &wf, nil
}

func (r *postgresRepository) ListActiveWorkflows(ctx context.Context, limit int) ([]ApprovalWorkflow, error) {
	var workflows []ApprovalWorkflow
	query := "SELECT " + workflowColumns + ` FROM approval_workflows
		WHERE overall_status = ANY($1)
		ORDER BY updated_at
		LIMIT $2`
	if err := r.db.SelectContext(ctx, &workflows, query, pq.Array(activeStatusStrings()), limit); err != nil {
		return nil, err
	}
	if len(workflows) == 0 {
		return workflows, nil
	}

	ids := make([]string, len(workflows))
	index := make(map[uuid.UUID]int, len(workflows))
	for i, wf := range workflows {
		ids[i] = wf.ID.String()
		index[wf.ID] = i
	}

	var steps []ApprovalStep
	if err := r.db.SelectContext(ctx, &steps,
		"SELECT "+stepColumns+" FROM approval_steps WHERE workflow_id = ANY($1::uuid[]) ORDER BY workflow_id, step_order",
		pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to load steps: %w", err)
	}
	for _, st := range steps {
		if i, ok := index[st.WorkflowID]; ok {
			workflows[i].Steps = append(workflows[i].Steps, st)
		}
	}
	return workflows, nil
}

func (r *postgresRepository) ApplyTransition(ctx context.Context, t Transition) (applied bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if !applied || err != nil {
			_ = tx.Rollback()
		}
	}()

	var res sql.Result
	switch t.Step.Guard {
	case GuardUnviewed:
		res, err = tx.ExecContext(ctx,
			"UPDATE approval_steps SET viewed_document = TRUE WHERE id = $1 AND viewed_document = FALSE",
			t.Step.StepID)
	case GuardPending:
		res, err = tx.ExecContext(ctx, `
			UPDATE approval_steps
			SET status = $1, approved_at = $2, rejected_at = $3, comments = COALESCE($4, comments)
			WHERE id = $5 AND status = $6`,
			t.Step.Status, t.Step.ApprovedAt, t.Step.RejectedAt, t.Step.Comments, t.Step.StepID, StepPending)
	default:
		return false, fmt.Errorf("%w: unknown step guard %d", ErrInvalidTransition, t.Step.Guard)
	}
	if err != nil {
		return false, fmt.Errorf("failed to update step: %w", err)
	}
	if ok, err := affectedOne(res); err != nil || !ok {
		return false, guardLost(t, err)
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE approval_workflows
		SET overall_status = $1, current_step = $2, completed_at = COALESCE($3, completed_at), updated_at = $4
		WHERE id = $5 AND overall_status = $6 AND current_step = $7`,
		t.Workflow.OverallStatus, t.Workflow.CurrentStep, t.Workflow.CompletedAt, t.At,
		t.Workflow.WorkflowID, t.Workflow.FromStatus, t.Workflow.FromStep)
	if err != nil {
		return false, fmt.Errorf("failed to update workflow: %w", err)
	}
	if ok, err := affectedOne(res); err != nil || !ok {
		return false, guardLost(t, err)
	}

	if _, err = tx.ExecContext(ctx,
		"UPDATE documents SET status = $1, updated_at = $2 WHERE id = $3",
		t.Document.Status, t.At, t.Document.DocumentID); err != nil {
		return false, fmt.Errorf("failed to update document: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transition: %w", err)
	}
	return true, nil
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// guardLost maps a conditional update that matched no row to the caller-visible
// outcome for the kind of transition.
func guardLost(t Transition, err error) error {
	if err != nil {
		return err
	}
	if t.IsView() {
		return nil
	}
	return ErrAlreadyActed
}

func activeStatusStrings() []string {
	out := make([]string, len(ActiveWorkflowStatuses))
	for i, s := range ActiveWorkflowStatuses {
		out[i] = string(s)
	}
	return out
}
