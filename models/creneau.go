package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Creneau marks a date and time slot as closed for booking.
type Creneau struct {
	ID        string    `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Date        string  `gorm:"size:10;not null;uniqueIndex:idx_creneau_slot" json:"date"`  // YYYY-MM-DD
	Heure       string  `gorm:"size:5;not null;uniqueIndex:idx_creneau_slot" json:"heure"`  // HH:MM
	Reason      string  `gorm:"size:255" json:"reason,omitempty"`
	CreatedByID *string `gorm:"type:uuid" json:"created_by_id,omitempty"`
}

func (c *Creneau) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

func (Creneau) TableName() string {
	return "creneaux"
}
