package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lex_dossier_app_go/models"
)

// TaskInput is the payload for a new task.
type TaskInput struct {
	Title        string
	Description  string
	Priority     string
	StartDate    *time.Time
	DueDate      *time.Time
	Notes        string
	AssignedToID string
	DossierID    *string
}

func taskLink(id string) string {
	return "/taches/" + id
}

func loadTaskAssignee(db *gorm.DB, id string) (*models.User, error) {
	var u models.User
	if err := db.First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewValidationError("assigned_to", "assignee not found")
		}
		return nil, fmt.Errorf("failed to load assignee: %w", err)
	}
	if !u.IsStaff() || !u.IsActive {
		return nil, NewValidationError("assigned_to", "tasks can only be assigned to active staff members")
	}
	return &u, nil
}

func checkTaskWindow(start, due *time.Time) error {
	if start != nil && due != nil && due.Before(*start) {
		return NewValidationError("due_date", "due date cannot be before the start date")
	}
	return nil
}

// CreateTask inserts a task and notifies the assignee.
func CreateTask(db *gorm.DB, actor *models.User, in TaskInput) (*models.Task, error) {
	if actor == nil || !actor.IsStaff() {
		return nil, ErrForbidden
	}
	title := SanitizeText(in.Title)
	if title == "" {
		return nil, NewValidationError("title", "title is required")
	}
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityNormale
	}
	if !models.IsValidPriority(priority) {
		return nil, NewValidationError("priority", "unknown priority")
	}
	if in.AssignedToID == "" {
		in.AssignedToID = actor.ID
	}
	assignee, err := loadTaskAssignee(db, in.AssignedToID)
	if err != nil {
		return nil, err
	}
	if in.DossierID != nil && *in.DossierID != "" {
		if _, err := GetDossier(db, *in.DossierID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, NewValidationError("dossier_id", "dossier not found")
			}
			return nil, err
		}
	} else {
		in.DossierID = nil
	}
	if err := checkTaskWindow(in.StartDate, in.DueDate); err != nil {
		return nil, err
	}

	task := &models.Task{
		Title:        title,
		Description:  SanitizeText(in.Description),
		Status:       models.TaskStatusAFaire,
		Priority:     priority,
		StartDate:    in.StartDate,
		DueDate:      in.DueDate,
		Notes:        SanitizeHTML(in.Notes),
		AssignedToID: assignee.ID,
		CreatedByID:  actor.ID,
		DossierID:    in.DossierID,
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(task).Error; err != nil {
			return err
		}
		if assignee.ID == actor.ID {
			return nil
		}
		EnqueueBestEffort(tx, NotificationDraft{
			UserID:   assignee.ID,
			Type:     models.NotificationTaskAssigned,
			Title:    "Nouvelle tâche",
			Message:  fmt.Sprintf("%s vous a attribué la tâche « %s ».", actor.FullName(), task.Title),
			LinkURL:  taskLink(task.ID),
			Metadata: map[string]interface{}{"task_id": task.ID},
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	task.AssignedTo = assignee
	return task, nil
}

// GetTask loads a task with its people.
func GetTask(db *gorm.DB, id string) (*models.Task, error) {
	var task models.Task
	err := db.Preload("AssignedTo").Preload("CreatedBy").First(&task, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return &task, nil
}

// CanAccessTask: admins, the creator, and the assignee.
func CanAccessTask(user *models.User, t *models.Task) bool {
	return user != nil && (user.IsAdmin() || t.CreatedByID == user.ID || t.AssignedToID == user.ID)
}

// TaskPatch holds edits; nil fields are left untouched.
type TaskPatch struct {
	Title        *string
	Description  *string
	Status       *string
	Priority     *string
	StartDate    *time.Time
	DueDate      *time.Time
	Notes        *string
	AssignedToID *string
}

// UpdateTask applies p. The assignee may only move the status.
func UpdateTask(db *gorm.DB, actor *models.User, t *models.Task, p TaskPatch) error {
	if !CanAccessTask(actor, t) {
		return ErrForbidden
	}
	owner := actor.IsAdmin() || t.CreatedByID == actor.ID
	if !owner && (p.Title != nil || p.Description != nil || p.Priority != nil ||
		p.StartDate != nil || p.DueDate != nil || p.Notes != nil || p.AssignedToID != nil) {
		return ErrForbidden
	}

	var drafts []NotificationDraft
	if p.Title != nil {
		title := SanitizeText(*p.Title)
		if title == "" {
			return NewValidationError("title", "title is required")
		}
		t.Title = title
	}
	if p.Description != nil {
		t.Description = SanitizeText(*p.Description)
	}
	if p.Priority != nil {
		if !models.IsValidPriority(*p.Priority) {
			return NewValidationError("priority", "unknown priority")
		}
		t.Priority = *p.Priority
	}
	if p.StartDate != nil || p.DueDate != nil {
		start, due := t.StartDate, t.DueDate
		if p.StartDate != nil {
			start = p.StartDate
		}
		if p.DueDate != nil {
			due = p.DueDate
		}
		if err := checkTaskWindow(start, due); err != nil {
			return err
		}
		t.StartDate, t.DueDate = start, due
	}
	if p.Notes != nil {
		t.Notes = SanitizeHTML(*p.Notes)
	}
	if p.Status != nil && *p.Status != t.Status {
		if !models.IsValidTaskStatus(*p.Status) {
			return NewValidationError("status", "unknown status")
		}
		t.Status = *p.Status
		if t.CreatedByID != actor.ID {
			drafts = append(drafts, NotificationDraft{
				UserID:   t.CreatedByID,
				Type:     models.NotificationTaskUpdated,
				Title:    "Tâche mise à jour",
				Message:  fmt.Sprintf("La tâche « %s » est passée à l'état %s.", t.Title, strings.ReplaceAll(t.Status, "_", " ")),
				LinkURL:  taskLink(t.ID),
				Metadata: map[string]interface{}{"task_id": t.ID, "status": t.Status},
			})
		}
	}
	if p.AssignedToID != nil && *p.AssignedToID != t.AssignedToID {
		assignee, err := loadTaskAssignee(db, *p.AssignedToID)
		if err != nil {
			return err
		}
		t.AssignedToID = assignee.ID
		t.AssignedTo = assignee
		if assignee.ID != actor.ID {
			drafts = append(drafts, NotificationDraft{
				UserID:   assignee.ID,
				Type:     models.NotificationTaskAssigned,
				Title:    "Nouvelle tâche",
				Message:  fmt.Sprintf("%s vous a attribué la tâche « %s ».", actor.FullName(), t.Title),
				LinkURL:  taskLink(t.ID),
				Metadata: map[string]interface{}{"task_id": t.ID},
			})
		}
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(t).Error; err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		EnqueueBestEffort(tx, drafts...)
		return nil
	})
}

// DeleteTask removes a task. Only admins and the creator may delete.
func DeleteTask(db *gorm.DB, actor *models.User, t *models.Task) error {
	if actor == nil || !(actor.IsAdmin() || t.CreatedByID == actor.ID) {
		return ErrForbidden
	}
	if err := db.Delete(&models.Task{}, "id = ?", t.ID).Error; err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// TaskFilters narrows task lists.
type TaskFilters struct {
	Status       string
	Priority     string
	AssignedToID string
	DossierID    string
	Overdue      bool
	Page         int
	Limit        int
}

// ListTasks returns all tasks to admins, otherwise tasks the user created or holds.
func ListTasks(db *gorm.DB, user *models.User, f TaskFilters) ([]models.Task, int64, error) {
	query := db.Model(&models.Task{})
	if !user.IsAdmin() {
		query = query.Where("assigned_to_id = ? OR created_by_id = ?", user.ID, user.ID)
	}
	return pageTasks(applyTaskFilters(query, f), f)
}

// ListMyTasks returns tasks assigned to user.
func ListMyTasks(db *gorm.DB, user *models.User, f TaskFilters) ([]models.Task, int64, error) {
	query := db.Model(&models.Task{}).Where("assigned_to_id = ?", user.ID)
	return pageTasks(applyTaskFilters(query, f), f)
}

func applyTaskFilters(query *gorm.DB, f TaskFilters) *gorm.DB {
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Priority != "" {
		query = query.Where("priority = ?", f.Priority)
	}
	if f.AssignedToID != "" {
		query = query.Where("assigned_to_id = ?", f.AssignedToID)
	}
	if f.DossierID != "" {
		query = query.Where("dossier_id = ?", f.DossierID)
	}
	if f.Overdue {
		query = query.Where("due_date < ? AND status NOT IN ?", time.Now(),
			[]string{models.TaskStatusTermine, models.TaskStatusAnnule})
	}
	return query
}

func pageTasks(query *gorm.DB, f TaskFilters) ([]models.Task, int64, error) {
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	page, limit := NormalizePage(f.Page, f.Limit)
	var tasks []models.Task
	err := query.Preload("AssignedTo").Preload("CreatedBy").
		Order("CASE WHEN due_date IS NULL THEN 1 ELSE 0 END, due_date ASC, created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, total, nil
}
