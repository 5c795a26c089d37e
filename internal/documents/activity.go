package documents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActivityStatusChange = "status_change"
	ActivityApproved     = "approved"
	ActivityRejected     = "rejected"
)

type ActivityEvent struct {
	Action      string                 `json:"action"`
	Description string                 `json:"description"`
	Details     map[string]interface{} `json:"details"`
}

// ActivityNotifier receives workflow lifecycle events for the audit trail.
type ActivityNotifier interface {
	Log(ctx context.Context, documentID uuid.UUID, event ActivityEvent) error
}

// DocumentActivity is one audit entry on a document
type DocumentActivity struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	DocumentID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"document_id"`
	Action      string         `gorm:"not null" json:"action"`
	Description string         `json:"description"`
	Details     datatypes.JSON `json:"details"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ActivityLog persists activity events with gorm.
type ActivityLog struct {
	db *gorm.DB
}

func NewActivityLog(db *gorm.DB) *ActivityLog {
	return &ActivityLog{db: db}
}

func (l *ActivityLog) Migrate() error {
	return l.db.AutoMigrate(&DocumentActivity{})
}

func (l *ActivityLog) Log(ctx context.Context, documentID uuid.UUID, event ActivityEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal activity details: %w", err)
	}
	entry := &DocumentActivity{
		DocumentID:  documentID,
		Action:      event.Action,
		Description: event.Description,
		Details:     datatypes.JSON(details),
		CreatedAt:   time.Now(),
	}
	return l.db.WithContext(ctx).Create(entry).Error
}

func (l *ActivityLog) ListForDocument(ctx context.Context, documentID uuid.UUID) ([]DocumentActivity, error) {
	var entries []DocumentActivity
	err := l.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at DESC").
		Find(&entries).Error
	return entries, err
}

// notifyActivity delivers an event and never fails the caller: audit logging
// is best effort.
func notifyActivity(ctx context.Context, notifier ActivityNotifier, logger *zap.Logger, documentID uuid.UUID, event ActivityEvent) {
	if notifier == nil {
		return
	}
	if err := notifier.Log(context.WithoutCancel(ctx), documentID, event); err != nil {
		logger.Warn("Failed to record document activity",
			zap.String("document_id", documentID.String()),
			zap.String("action", event.Action),
			zap.Error(err))
	}
}
