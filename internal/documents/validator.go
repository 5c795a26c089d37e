package documents

import (
	"context"

	"github.com/google/uuid"
)

// Member is a project participant eligible to approve documents of that project.
type Member struct {
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
	Role   string    `json:"role"`
}

// MembershipProvider reports which of the given users are team members or
// managers of a project.
type MembershipProvider interface {
	ProjectMembers(ctx context.Context, projectID uuid.UUID, userIDs []uuid.UUID) ([]Member, error)
}

type ApproverValidator struct {
	members MembershipProvider
}

func NewApproverValidator(members MembershipProvider) *ApproverValidator {
	return &ApproverValidator{members: members}
}

// Validate checks approverIDs against the project's members and returns the
// matching members in the same order. Duplicates are kept as given.
func (v *ApproverValidator) Validate(ctx context.Context, projectID uuid.UUID, approverIDs []uuid.UUID) ([]Member, error) {
	if len(approverIDs) == 0 {
		return nil, &InvalidApproversError{}
	}

	found, err := v.members.ProjectMembers(ctx, projectID, approverIDs)
	if err != nil {
		return nil, storageError("load project members", err)
	}

	byID := make(map[uuid.UUID]Member, len(found))
	for _, m := range found {
		if _, seen := byID[m.UserID]; !seen {
			byID[m.UserID] = m
		}
	}

	ordered := make([]Member, 0, len(approverIDs))
	var missing []uuid.UUID
	for _, id := range approverIDs {
		m, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		ordered = append(ordered, m)
	}
	if len(missing) > 0 {
		return nil, &InvalidApproversError{Missing: missing}
	}
	return ordered, nil
}
