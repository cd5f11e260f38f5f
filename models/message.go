package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is an internal message with per-recipient read and archive state.
type Message struct {
	ID        string    `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SenderID         string     `gorm:"type:uuid;not null;index" json:"sender_id"`
	Subject          string     `gorm:"not null" json:"subject"`
	Body             string     `gorm:"type:text;not null" json:"body"`
	DossierID        *string    `gorm:"type:uuid;index" json:"dossier_id,omitempty"`
	SenderArchivedAt *time.Time `json:"sender_archived_at,omitempty"`

	Sender      *User               `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Recipients  []MessageRecipient  `gorm:"foreignKey:MessageID" json:"recipients,omitempty"`
	Attachments []MessageAttachment `gorm:"foreignKey:MessageID" json:"attachments,omitempty"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (Message) TableName() string {
	return "messages"
}

// MessageRecipient tracks one recipient's state for a message.
type MessageRecipient struct {
	MessageID  string     `gorm:"type:uuid;primaryKey" json:"message_id"`
	UserID     string     `gorm:"type:uuid;primaryKey;index" json:"user_id"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (MessageRecipient) TableName() string {
	return "message_recipients"
}

// MessageAttachment is a stored file attached to a message, addressed by Position.
type MessageAttachment struct {
	ID        string    `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	MessageID    string `gorm:"type:uuid;not null;index" json:"message_id"`
	Position     int    `gorm:"not null" json:"position"`
	OriginalName string `gorm:"not null" json:"original_name"`
	StorageKey   string `gorm:"not null" json:"-"`
	MimeType     string `gorm:"size:120" json:"mime_type"`
	Size         int64  `gorm:"not null" json:"size"`
}

func (a *MessageAttachment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

func (MessageAttachment) TableName() string {
	return "message_attachments"
}
