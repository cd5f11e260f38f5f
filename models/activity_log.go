package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Activity actions
const (
	ActionLogin                = "login"
	ActionLoginFailed          = "login_failed"
	ActionRegister             = "register"
	ActionImpersonate          = "impersonate"
	ActionProfileUpdate        = "profile_update"
	ActionPasswordChange       = "password_change"
	ActionPasswordResetRequest = "password_reset_request"
	ActionPasswordReset        = "password_reset"
	ActionUserCreate           = "user_create"
	ActionUserUpdate           = "user_update"
	ActionUserDelete           = "user_delete"
	ActionDossierCreate        = "dossier_create"
	ActionDossierUpdate        = "dossier_update"
	ActionDossierStatusChange  = "dossier_status_change"
	ActionDossierAssign        = "dossier_assign"
	ActionDossierDelete        = "dossier_delete"
	ActionDocumentUpload       = "document_upload"
	ActionDocumentDelete       = "document_delete"
	ActionAppointmentCreate    = "appointment_create"
	ActionAppointmentUpdate    = "appointment_update"
	ActionAppointmentCancel    = "appointment_cancel"
	ActionTaskCreate           = "task_create"
	ActionTaskUpdate           = "task_update"
	ActionTaskDelete           = "task_delete"
	ActionMessageSend          = "message_send"
	ActionLogExport            = "log_export"
)

var ErrImmutableLog = errors.New("activity logs are append-only")

// ActivityLog is an append-only record of a user action.
type ActivityLog struct {
	ID        string    `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index:idx_activity_created_at" json:"created_at"`

	Action string `gorm:"size:40;not null;index:idx_activity_action" json:"action"`

	// Actor, denormalized so the entry survives account deletion
	UserID    *string `gorm:"type:uuid;index:idx_activity_user" json:"user_id,omitempty"`
	UserEmail string  `json:"user_email,omitempty"`
	UserRole  string  `json:"user_role,omitempty"`

	TargetUserID    *string `gorm:"type:uuid" json:"target_user_id,omitempty"`
	TargetUserEmail string  `json:"target_user_email,omitempty"`

	Description string            `gorm:"type:text" json:"description"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

func (a *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// BeforeUpdate prevents modification of activity logs
func (a *ActivityLog) BeforeUpdate(tx *gorm.DB) error {
	return ErrImmutableLog
}

// BeforeDelete prevents deletion of activity logs
func (a *ActivityLog) BeforeDelete(tx *gorm.DB) error {
	return ErrImmutableLog
}

func (ActivityLog) TableName() string {
	return "activity_logs"
}
