package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	OutboxPending   = "pending"
	OutboxDelivered = "delivered"
	OutboxFailed    = "failed"
)

// NotificationOutbox is a pending notification written in the same
// transaction as the mutation that caused it.
type NotificationOutbox struct {
	ID        string    `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID   string            `gorm:"type:uuid;not null;index" json:"user_id"`
	Type     string            `gorm:"size:40;not null" json:"type"`
	Title    string            `gorm:"not null" json:"title"`
	Message  string            `gorm:"type:text" json:"message"`
	LinkURL  string            `json:"link_url,omitempty"`
	Metadata datatypes.JSONMap `json:"metadata,omitempty"`

	Status         string     `gorm:"size:20;not null;default:pending;index:idx_outbox_due" json:"status"`
	Attempts       int        `gorm:"not null" json:"attempts"`
	NextAttemptAt  time.Time  `gorm:"index:idx_outbox_due" json:"next_attempt_at"`
	LastError      string     `gorm:"type:text" json:"last_error,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	NotificationID *string    `gorm:"type:uuid" json:"notification_id,omitempty"`
}

func (o *NotificationOutbox) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.Status == "" {
		o.Status = OutboxPending
	}
	if o.NextAttemptAt.IsZero() {
		o.NextAttemptAt = time.Now()
	}
	return nil
}

func (NotificationOutbox) TableName() string {
	return "notification_outbox"
}
