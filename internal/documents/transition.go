package documents

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"doccontrol/portal-backend/pkg/workflows"
)

// StepGuard is the condition a step row must still satisfy for a transition to
// apply. It is the serialisation point for concurrent requests on one workflow.
type StepGuard int

const (
	// GuardUnviewed applies only while viewed_document is false.
	GuardUnviewed StepGuard = iota + 1
	// GuardPending applies only while the step status is pending.
	GuardPending
)

type StepUpdate struct {
	StepID         uuid.UUID
	Guard          StepGuard
	Status         StepStatus
	ViewedDocument bool
	ApprovedAt     *time.Time
	RejectedAt     *time.Time
	Comments       *string
}

type WorkflowUpdate struct {
	WorkflowID uuid.UUID
	// FromStatus and FromStep are the values the stored row must still hold.
	FromStatus    WorkflowStatus
	FromStep      int
	OverallStatus WorkflowStatus
	CurrentStep   int
	CompletedAt   *time.Time
}

type DocumentUpdate struct {
	DocumentID uuid.UUID
	Status     DocumentStatus
}

// Transition is one state change of the document/workflow/step triple. It is
// always persisted as a unit.
type Transition struct {
	Step     StepUpdate
	Workflow WorkflowUpdate
	Document DocumentUpdate
	At       time.Time
}

// IsView reports whether the transition only records the first view of a step.
func (t Transition) IsView() bool {
	return t.Step.Guard == GuardUnviewed
}

type transitionPlanner struct {
	workflowStates *workflows.StateMachine
	documentStates *workflows.StateMachine
}

func newTransitionPlanner() *transitionPlanner {
	return &transitionPlanner{
		workflowStates: workflows.NewWorkflowStateMachine(),
		documentStates: workflows.NewDocumentStateMachine(),
	}
}

func (p *transitionPlanner) planView(wf *ApprovalWorkflow, step *ApprovalStep, now time.Time) (Transition, error) {
	update := StepUpdate{
		StepID:         step.ID,
		Guard:          GuardUnviewed,
		Status:         step.Status,
		ViewedDocument: true,
	}
	return p.plan(wf, update, now)
}

func (p *transitionPlanner) planAction(wf *ApprovalWorkflow, step *ApprovalStep, action Action, comments *string, now time.Time) (Transition, error) {
	update := StepUpdate{
		StepID:         step.ID,
		Guard:          GuardPending,
		Status:         action.StepStatus(),
		ViewedDocument: step.ViewedDocument,
		Comments:       comments,
	}
	switch action {
	case ActionApprove:
		update.ApprovedAt = &now
	case ActionReject:
		update.RejectedAt = &now
	default:
		return Transition{}, fmt.Errorf("%w: unsupported action %s", ErrInvalidTransition, action)
	}
	return p.plan(wf, update, now)
}

// plan derives the workflow and document state from the steps as they will be
// after update, instead of assigning statuses per branch.
func (p *transitionPlanner) plan(wf *ApprovalWorkflow, update StepUpdate, now time.Time) (Transition, error) {
	after := make([]ApprovalStep, len(wf.Steps))
	copy(after, wf.Steps)
	found := false
	for i := range after {
		if after[i].ID == update.StepID {
			applyStepUpdate(&after[i], update)
			found = true
		}
	}
	if !found {
		return Transition{}, fmt.Errorf("%w: step %s is not part of workflow %s", ErrInvalidTransition, update.StepID, wf.ID)
	}

	proj, err := Project(wf.TotalSteps, after)
	if err != nil {
		return Transition{}, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}

	if !p.workflowStates.CanTransition(string(wf.OverallStatus), string(proj.OverallStatus)) {
		return Transition{}, fmt.Errorf("%w: workflow %s -> %s (allowed: %s)", ErrInvalidTransition,
			wf.OverallStatus, proj.OverallStatus, allowedTargets(p.workflowStates, string(wf.OverallStatus)))
	}
	fromDoc, toDoc := wf.OverallStatus.DocumentStatus(), proj.OverallStatus.DocumentStatus()
	if !p.documentStates.CanTransition(string(fromDoc), string(toDoc)) {
		return Transition{}, fmt.Errorf("%w: document %s -> %s (allowed: %s)", ErrInvalidTransition,
			fromDoc, toDoc, allowedTargets(p.documentStates, string(fromDoc)))
	}

	wu := WorkflowUpdate{
		WorkflowID:    wf.ID,
		FromStatus:    wf.OverallStatus,
		FromStep:      wf.CurrentStep,
		OverallStatus: proj.OverallStatus,
		CurrentStep:   proj.CurrentStep,
	}
	if p.workflowStates.IsTerminal(string(proj.OverallStatus)) {
		wu.CompletedAt = &now
	}

	return Transition{
		Step:     update,
		Workflow: wu,
		Document: DocumentUpdate{DocumentID: wf.DocumentID, Status: toDoc},
		At:       now,
	}, nil
}

// applyTransition mirrors a committed transition onto an in-memory workflow.
func applyTransition(wf *ApprovalWorkflow, t Transition) {
	for i := range wf.Steps {
		if wf.Steps[i].ID == t.Step.StepID {
			applyStepUpdate(&wf.Steps[i], t.Step)
		}
	}
	wf.OverallStatus = t.Workflow.OverallStatus
	wf.CurrentStep = t.Workflow.CurrentStep
	if t.Workflow.CompletedAt != nil {
		wf.CompletedAt = t.Workflow.CompletedAt
	}
	wf.UpdatedAt = t.At
}

func applyStepUpdate(st *ApprovalStep, u StepUpdate) {
	st.Status = u.Status
	st.ViewedDocument = u.ViewedDocument
	if u.ApprovedAt != nil {
		st.ApprovedAt = u.ApprovedAt
	}
	if u.RejectedAt != nil {
		st.RejectedAt = u.RejectedAt
	}
	if u.Comments != nil {
		st.Comments = u.Comments
	}
}

func allowedTargets(sm *workflows.StateMachine, from string) string {
	allowed := sm.GetAllowedTransitions(from)
	if len(allowed) == 0 {
		return "none"
	}
	return strings.Join(allowed, ", ")
}
