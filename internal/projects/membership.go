package projects

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"doccontrol/portal-backend/internal/documents"
)

// MembershipRepository answers which users may approve documents of a project:
// its team members and its managers.
type MembershipRepository struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

func (r *MembershipRepository) Migrate() error {
	return r.db.AutoMigrate(&Project{}, &ProjectTeamMember{}, &User{})
}

// ProjectMembers returns the subset of userIDs that belong to the project. An
// unknown project has no members.
func (r *MembershipRepository) ProjectMembers(ctx context.Context, projectID uuid.UUID, userIDs []uuid.UUID) ([]documents.Member, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	db := r.db.WithContext(ctx)

	var project Project
	if err := db.First(&project, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	var team []ProjectTeamMember
	if err := db.Where("project_id = ? AND user_id IN ?", projectID, userIDs).Find(&team).Error; err != nil {
		return nil, fmt.Errorf("failed to load team members: %w", err)
	}

	var users []User
	if err := db.Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}

	return mergeMembers(&project, team, users, userIDs), nil
}

// mergeMembers combines the lead manager and team rows into one member per
// requested user, in request order, each listed once.
func mergeMembers(project *Project, team []ProjectTeamMember, users []User, userIDs []uuid.UUID) []documents.Member {
	roles := make(map[uuid.UUID]string, len(team)+1)
	for _, tm := range team {
		if tm.ProjectID == project.ID {
			roles[tm.UserID] = tm.Role
		}
	}
	if project.ManagerID != nil {
		roles[*project.ManagerID] = RoleManager
	}

	names := make(map[uuid.UUID]string, len(users))
	for _, u := range users {
		names[u.ID] = u.FullName
	}

	seen := make(map[uuid.UUID]bool, len(userIDs))
	var members []documents.Member
	for _, id := range userIDs {
		role, ok := roles[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, documents.Member{UserID: id, Name: names[id], Role: role})
	}
	return members
}
