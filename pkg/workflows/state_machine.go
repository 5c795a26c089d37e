package workflows

// StateMachine enforces status transitions
type StateMachine struct {
	allowedTransitions map[string][]string
}

// NewStateMachine creates a state machine from an explicit transition table
func NewStateMachine(transitions map[string][]string) *StateMachine {
	return &StateMachine{allowedTransitions: transitions}
}

// NewWorkflowStateMachine returns the transitions an approval workflow's overall
// status may take. Under-review loops on itself while steps are approved.
func NewWorkflowStateMachine() *StateMachine {
	return NewStateMachine(map[string][]string{
		"pending":      {"under-review"},
		"under-review": {"under-review", "approved", "rejected"},
		"approved":     {},
		"rejected":     {},
	})
}

// NewDocumentStateMachine returns the document status transitions driven by an
// active approval workflow
func NewDocumentStateMachine() *StateMachine {
	return NewStateMachine(map[string][]string{
		"pending_review": {"under_review"},
		"under_review":   {"under_review", "approved", "rejected"},
		"approved":       {},
		"rejected":       {},
	})
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine) CanTransition(from, to string) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine) GetAllowedTransitions(from string) []string {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	return allowed
}

// IsTerminal reports whether no transition leaves the given status
func (sm *StateMachine) IsTerminal(status string) bool {
	allowed, exists := sm.allowedTransitions[status]
	return exists && len(allowed) == 0
}
