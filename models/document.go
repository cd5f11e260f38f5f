package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Document categories
const (
	DocumentCategoryIdentite     = "identite"
	DocumentCategoryJustificatif = "justificatif"
	DocumentCategoryDecision     = "decision"
	DocumentCategoryCourrier     = "courrier"
	DocumentCategoryAutre        = "autre"
)

var DocumentCategories = []string{
	DocumentCategoryIdentite,
	DocumentCategoryJustificatif,
	DocumentCategoryDecision,
	DocumentCategoryCourrier,
	DocumentCategoryAutre,
}

func IsValidDocumentCategory(c string) bool {
	return contains(DocumentCategories, c)
}

// Document is a file uploaded by a client or a staff member.
type Document struct {
	ID        string    `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// UserID is the client the document belongs to
	UserID       string  `gorm:"type:uuid;not null;index" json:"user_id"`
	UploadedByID string  `gorm:"type:uuid;not null;index" json:"uploaded_by_id"`
	DossierID    *string `gorm:"type:uuid;index" json:"dossier_id,omitempty"`

	FileName     string `gorm:"not null" json:"file_name"`
	OriginalName string `gorm:"not null" json:"original_name"`
	StorageKey   string `gorm:"not null" json:"-"`
	MimeType     string `gorm:"size:120" json:"mime_type"`
	Size         int64  `gorm:"not null" json:"size"`
	Category     string `gorm:"size:40;not null;default:autre" json:"category"`
	Description  string `gorm:"type:text" json:"description,omitempty"`

	User       *User    `gorm:"foreignKey:UserID" json:"user,omitempty"`
	UploadedBy *User    `gorm:"foreignKey:UploadedByID" json:"uploaded_by,omitempty"`
	Dossier    *Dossier `gorm:"foreignKey:DossierID" json:"-"`
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

func (Document) TableName() string {
	return "documents"
}
