package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TaskStatusAFaire    = "a_faire"
	TaskStatusEnCours   = "en_cours"
	TaskStatusEnAttente = "en_attente"
	TaskStatusTermine   = "termine"
	TaskStatusAnnule    = "annule"
)

var TaskStatuses = []string{TaskStatusAFaire, TaskStatusEnCours, TaskStatusEnAttente, TaskStatusTermine, TaskStatusAnnule}

func IsValidTaskStatus(s string) bool {
	return contains(TaskStatuses, s)
}

// Task is an internal to-do item assigned to a staff member.
type Task struct {
	ID        string    `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title       string     `gorm:"not null" json:"title"`
	Description string     `gorm:"type:text" json:"description,omitempty"`
	Status      string     `gorm:"size:20;not null;default:a_faire;index" json:"status"`
	Priority    string     `gorm:"size:20;not null;default:normale" json:"priority"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	DueDate     *time.Time `gorm:"index" json:"due_date,omitempty"`
	Notes       string     `gorm:"type:text" json:"notes,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	AssignedToID string  `gorm:"type:uuid;not null;index" json:"assigned_to_id"`
	CreatedByID  string  `gorm:"type:uuid;not null;index" json:"created_by_id"`
	DossierID    *string `gorm:"type:uuid;index" json:"dossier_id,omitempty"`

	AssignedTo *User    `gorm:"foreignKey:AssignedToID" json:"assigned_to,omitempty"`
	CreatedBy  *User    `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	Dossier    *Dossier `gorm:"foreignKey:DossierID" json:"dossier,omitempty"`

	Overdue bool `gorm:"-" json:"overdue"`
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// BeforeSave stamps CompletedAt when a task reaches termine.
func (t *Task) BeforeSave(tx *gorm.DB) error {
	if t.Status == TaskStatusTermine && t.CompletedAt == nil {
		now := time.Now()
		t.CompletedAt = &now
	}
	if t.Status != TaskStatusTermine && t.Status != "" {
		t.CompletedAt = nil
	}
	return nil
}

func (t *Task) AfterFind(tx *gorm.DB) error {
	t.Overdue = t.IsOverdue(time.Now())
	return nil
}

func (t *Task) IsOverdue(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now) &&
		t.Status != TaskStatusTermine && t.Status != TaskStatusAnnule
}

func (Task) TableName() string {
	return "tasks"
}
