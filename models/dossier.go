package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PriorityBasse   = "basse"
	PriorityNormale = "normale"
	PriorityHaute   = "haute"
	PriorityUrgente = "urgente"
)

var Priorities = []string{PriorityBasse, PriorityNormale, PriorityHaute, PriorityUrgente}

// Dossier categories handled by the firm.
const (
	CategoryTitreSejour          = "titre_sejour"
	CategoryNaturalisation       = "naturalisation"
	CategoryRegroupementFamilial = "regroupement_familial"
	CategoryAsile                = "asile"
	CategoryVisa                 = "visa"
	CategoryRecours              = "recours"
	CategoryDroitTravail         = "droit_travail"
	CategoryAutre                = "autre"
)

var Categories = []string{
	CategoryTitreSejour, CategoryNaturalisation, CategoryRegroupementFamilial,
	CategoryAsile, CategoryVisa, CategoryRecours, CategoryDroitTravail, CategoryAutre,
}

func IsValidPriority(p string) bool {
	return contains(Priorities, p)
}

func IsValidCategory(c string) bool {
	return contains(Categories, c)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

type Dossier struct {
	ID        string    `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Numero        *string       `gorm:"size:40;uniqueIndex" json:"numero"`
	Title         string        `gorm:"not null" json:"title"`
	Description   string        `gorm:"type:text" json:"description"`
	Category      string        `gorm:"size:50;not null;default:autre;index" json:"category"`
	Status        DossierStatus `gorm:"size:40;not null;default:recu;index" json:"status"`
	Priority      string        `gorm:"size:20;not null;default:normale" json:"priority"`
	DueDate       *time.Time    `json:"due_date,omitempty"`
	Notes         string        `gorm:"type:text" json:"notes,omitempty"`
	RefusalReason string        `gorm:"type:text" json:"refusal_reason,omitempty"`

	// Owner: either UserID or the Contact* triple
	UserID         *string `gorm:"type:uuid;index" json:"user_id,omitempty"`
	ContactName    *string `gorm:"size:120" json:"contact_name,omitempty"`
	ContactSurname *string `gorm:"size:120" json:"contact_surname,omitempty"`
	ContactEmail   *string `gorm:"size:255;index" json:"contact_email,omitempty"`
	ContactPhone   string  `gorm:"size:30" json:"contact_phone,omitempty"`

	CreatedByID  *string `gorm:"type:uuid;index" json:"created_by_id,omitempty"`
	AssignedToID *string `gorm:"type:uuid;index" json:"assigned_to_id,omitempty"`

	User       *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CreatedBy  *User `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	AssignedTo *User `gorm:"foreignKey:AssignedToID" json:"assigned_to,omitempty"`

	// Linked items, loaded on demand and filtered per viewer
	Documents  []Document   `gorm:"foreignKey:DossierID;constraint:OnDelete:SET NULL" json:"documents,omitempty"`
	Messages   []Message    `gorm:"foreignKey:DossierID;constraint:OnDelete:SET NULL" json:"messages,omitempty"`
	RendezVous []RendezVous `gorm:"foreignKey:DossierID;constraint:OnDelete:SET NULL" json:"rendez_vous,omitempty"`
}

// BeforeCreate hook to generate UUID
func (d *Dossier) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

// BeforeSave enforces the owner invariant on every write.
func (d *Dossier) BeforeSave(tx *gorm.DB) error {
	return d.ValidateOwner()
}

func (d *Dossier) IsAssignedTo(userID string) bool {
	return d.AssignedToID != nil && *d.AssignedToID == userID
}

// TableName specifies the table name for Dossier model
func (Dossier) TableName() string {
	return "dossiers"
}
