package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Notification types
const (
	NotificationDossierCreated      = "dossier_created"
	NotificationDossierStatusChange = "dossier_status_change"
	NotificationDossierAssigned     = "dossier_assigned"
	NotificationDossierUnassigned   = "dossier_unassigned"
	NotificationDossierRefused      = "dossier_refused"
	NotificationDossierUpdated      = "dossier_updated"
	NotificationDossierDeleted      = "dossier_deleted"
	NotificationTaskAssigned        = "task_assigned"
	NotificationTaskUpdated         = "task_updated"
	NotificationAppointmentCreated  = "appointment_created"
	NotificationAppointmentUpdated  = "appointment_updated"
	NotificationAppointmentCanceled = "appointment_cancelled"
	NotificationAppointmentReminder = "appointment_reminder"
	NotificationMessageReceived     = "message_received"
	NotificationDocumentUploaded    = "document_uploaded"
)

type Notification struct {
	ID        string    `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	UserID string `gorm:"type:uuid;not null;index" json:"user_id"`

	Type     string            `gorm:"size:40;not null;index" json:"type"`
	Title    string            `gorm:"not null" json:"title"`
	Message  string            `gorm:"type:text" json:"message"`
	LinkURL  string            `json:"link_url,omitempty"`
	Metadata datatypes.JSONMap `json:"metadata,omitempty"`

	ReadAt *time.Time `json:"read_at,omitempty"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}

func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}
