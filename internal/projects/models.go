package projects

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleManager = "manager"
	RoleMember  = "member"
)

// Project is the owner of documents. ManagerID is the project's lead manager;
// further managers are team members with RoleManager.
type Project struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string         `gorm:"not null" json:"name"`
	Status    string         `gorm:"not null;default:'DRAFT'" json:"status"`
	ManagerID *uuid.UUID     `gorm:"type:uuid" json:"manager_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// ProjectTeamMember represents team members on a project
type ProjectTeamMember struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_project_member" json:"project_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_project_member" json:"user_id"`
	Role      string    `gorm:"not null;default:'member'" json:"role"`
	JoinedAt  time.Time `json:"joined_at"`
	Project   Project   `gorm:"foreignKey:ProjectID" json:"-"`
}

// User carries the display name shown on approval steps.
type User struct {
	ID       uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	FullName string    `gorm:"not null" json:"full_name"`
	Email    string    `gorm:"uniqueIndex" json:"email"`
}
