package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Appointment statuses
const (
	RendezVousEnAttente = "en_attente"
	RendezVousConfirme  = "confirme"
	RendezVousAnnule    = "annule"
	RendezVousTermine   = "termine"
)

var RendezVousStatuses = []string{RendezVousEnAttente, RendezVousConfirme, RendezVousAnnule, RendezVousTermine}

func IsValidRendezVousStatus(s string) bool {
	return contains(RendezVousStatuses, s)
}

// SlotHoldingStatuses keep their date and time reserved.
var SlotHoldingStatuses = []string{RendezVousEnAttente, RendezVousConfirme}

func HoldsSlot(s string) bool {
	return contains(SlotHoldingStatuses, s)
}

// RendezVous is a booked appointment. At most one pending or confirmed
// appointment may hold a given date and time.
type RendezVous struct {
	ID        string    `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Date   string `gorm:"size:10;not null;index;uniqueIndex:idx_rdv_active_slot,where:statut = 'en_attente' OR statut = 'confirme'" json:"date"`
	Heure  string `gorm:"size:5;not null;uniqueIndex:idx_rdv_active_slot,where:statut = 'en_attente' OR statut = 'confirme'" json:"heure"`
	Statut string `gorm:"size:20;not null;default:en_attente;index" json:"statut"`

	// Requester, registered or not
	UserID    *string `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Name      string  `gorm:"not null" json:"name"`
	Surname   string  `gorm:"not null" json:"surname"`
	Email     string  `gorm:"size:255;not null;index" json:"email"`
	Telephone string  `gorm:"size:30" json:"telephone,omitempty"`

	Motif          string     `gorm:"size:255" json:"motif"`
	Description    string     `gorm:"type:text" json:"description,omitempty"`
	Notes          string     `gorm:"type:text" json:"notes,omitempty"`
	DossierID      *string    `gorm:"type:uuid;index" json:"dossier_id,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (r *RendezVous) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.Email = NormalizeEmail(r.Email)
	return nil
}

// IsActive reports whether the appointment still holds its slot.
func (r *RendezVous) IsActive() bool {
	return r.Statut != RendezVousAnnule
}

func (RendezVous) TableName() string {
	return "rendez_vous"
}
