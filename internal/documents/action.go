package documents

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Action is a decision an approver can submit on their step.
type Action int

const (
	ActionApprove Action = iota + 1
	ActionReject
)

func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve":
		return ActionApprove, nil
	case "reject":
		return ActionReject, nil
	default:
		return 0, fmt.Errorf("unknown approval action %q", s)
	}
}

func (a Action) String() string {
	switch a {
	case ActionApprove:
		return "approve"
	case ActionReject:
		return "reject"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// StepStatus is the status a step takes once this action is applied to it.
func (a Action) StepStatus() StepStatus {
	switch a {
	case ActionApprove:
		return StepApproved
	case ActionReject:
		return StepRejected
	default:
		return ""
	}
}

func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAction(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
