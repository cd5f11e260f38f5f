package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PasswordResetToken stores the SHA-256 of a single-use reset token.
type PasswordResetToken struct {
	ID        string    `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	UserID    string    `gorm:"type:uuid;not null;index" json:"user_id"`
	TokenHash string    `gorm:"size:64;uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (p *PasswordResetToken) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

func (p *PasswordResetToken) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

func (PasswordResetToken) TableName() string {
	return "password_reset_tokens"
}
