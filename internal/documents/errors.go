package documents

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Error kinds returned by the approval engine. Callers match them with errors.Is
// or errors.As and map them to their own transport representation.
var (
	ErrDocumentNotFound     = errors.New("document not found")
	ErrInvalidApprovers     = errors.New("invalid approvers")
	ErrActiveWorkflowExists = errors.New("an active approval workflow already exists for this document")
	ErrNoActiveWorkflow     = errors.New("no active approval workflow for this document")
	ErrWorkflowNotFound     = errors.New("no approval workflow for this document")
	ErrNotAnApprover        = errors.New("user is not an approver in this workflow")
	ErrNotYourTurn          = errors.New("it is not this approver's turn")
	ErrAlreadyActed         = errors.New("approver has already acted on this step")
	ErrStorageFailure       = errors.New("approval storage failure")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrWorkflowDrift        = errors.New("stored workflow state does not match its steps")
)

type NotYourTurnError struct {
	ExpectedStep int
	ActualStep   int
}

func (e *NotYourTurnError) Error() string {
	return fmt.Sprintf("%s: current step is %d, approver is on step %d", ErrNotYourTurn, e.ExpectedStep, e.ActualStep)
}

func (e *NotYourTurnError) Is(target error) bool {
	return target == ErrNotYourTurn
}

// InvalidApproversError lists the approver ids that failed validation. Missing is
// empty when the list itself was empty.
type InvalidApproversError struct {
	Missing []uuid.UUID
}

func (e *InvalidApproversError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("%s: at least one approver is required", ErrInvalidApprovers)
	}
	ids := make([]string, len(e.Missing))
	for i, id := range e.Missing {
		ids[i] = id.String()
	}
	return fmt.Sprintf("%s: not members of the project: %s", ErrInvalidApprovers, strings.Join(ids, ", "))
}

func (e *InvalidApproversError) Is(target error) bool {
	return target == ErrInvalidApprovers
}

// DriftError reports every field where stored workflow state disagrees with the
// state derived from its steps.
type DriftError struct {
	WorkflowID uuid.UUID
	Mismatches []string
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("workflow %s: %s: %s", e.WorkflowID, ErrWorkflowDrift, strings.Join(e.Mismatches, "; "))
}

func (e *DriftError) Is(target error) bool {
	return target == ErrWorkflowDrift
}

// storageError marks err as a persistence failure while keeping it unwrappable.
func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageFailure, op, err)
}
