package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"lex_dossier_app_go/db"
	"lex_dossier_app_go/middleware"
	"lex_dossier_app_go/models"
	"lex_dossier_app_go/services"
)

func taskFilters(c echo.Context) (services.TaskFilters, error) {
	pq, err := pageParams(c)
	if err != nil {
		return services.TaskFilters{}, err
	}
	overdue, err := optionalBool(c, "overdue")
	if err != nil {
		return services.TaskFilters{}, err
	}
	return services.TaskFilters{
		Status:       c.QueryParam("status"),
		Priority:     c.QueryParam("priority"),
		AssignedToID: c.QueryParam("assignedTo"),
		DossierID:    c.QueryParam("dossierId"),
		Overdue:      overdue != nil && *overdue,
		Page:         pq.Page,
		Limit:        pq.Limit,
	}, nil
}

// ListTasksHandler returns every task to admins, otherwise the caller's.
func ListTasksHandler(c echo.Context) error {
	f, err := taskFilters(c)
	if err != nil {
		return err
	}
	tasks, total, err := services.ListTasks(db.DB, middleware.GetCurrentUser(c), f)
	if err != nil {
		return err
	}
	return paged(c, "tasks", tasks, f.Page, f.Limit, total)
}

// ListMyTasksHandler returns tasks assigned to the caller.
func ListMyTasksHandler(c echo.Context) error {
	f, err := taskFilters(c)
	if err != nil {
		return err
	}
	tasks, total, err := services.ListMyTasks(db.DB, middleware.GetCurrentUser(c), f)
	if err != nil {
		return err
	}
	return paged(c, "tasks", tasks, f.Page, f.Limit, total)
}

type createTaskRequest struct {
	Title       string  `json:"title" validate:"required,max=200"`
	Description string  `json:"description"`
	Priority    string  `json:"priority"`
	StartDate   string  `json:"start_date"`
	DueDate     string  `json:"due_date"`
	Notes       string  `json:"notes"`
	AssignedTo  string  `json:"assigned_to"`
	DossierID   *string `json:"dossier_id"`
}

// CreateTaskHandler creates a task, assigned to the caller by default.
func CreateTaskHandler(c echo.Context) error {
	var req createTaskRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	start, err := services.ParseOptionalDate("start_date", req.StartDate)
	if err != nil {
		return err
	}
	due, err := services.ParseOptionalDate("due_date", req.DueDate)
	if err != nil {
		return err
	}
	in := services.TaskInput{
		Title:        req.Title,
		Description:  req.Description,
		Priority:     req.Priority,
		Notes:        req.Notes,
		AssignedToID: req.AssignedTo,
		DossierID:    req.DossierID,
	}
	if !start.IsZero() {
		in.StartDate = &start
	}
	if !due.IsZero() {
		in.DueDate = &due
	}

	task, err := services.CreateTask(db.DB, middleware.GetCurrentUser(c), in)
	if err != nil {
		return err
	}
	services.LogActivity(db.DB, middleware.ActivityContext(c), services.ActivityEntry{
		Action:      models.ActionTaskCreate,
		Description: "Création de la tâche « " + task.Title + " »",
		Metadata:    map[string]interface{}{"task_id": task.ID, "assigned_to": task.AssignedToID},
	})
	return created(c, "Task created", Response{"task": task})
}

type updateTaskRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=200"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	StartDate   *string `json:"start_date"`
	DueDate     *string `json:"due_date"`
	Notes       *string `json:"notes"`
	AssignedTo  *string `json:"assigned_to"`
}

func loadAccessibleTask(c echo.Context) (*models.Task, error) {
	task, err := services.GetTask(db.DB, c.Param("id"))
	if err != nil {
		return nil, err
	}
	if !services.CanAccessTask(middleware.GetCurrentUser(c), task) {
		return nil, services.ErrForbidden
	}
	return task, nil
}

// UpdateTaskHandler edits a task; assignees may only move its status.
func UpdateTaskHandler(c echo.Context) error {
	task, err := loadAccessibleTask(c)
	if err != nil {
		return err
	}
	var req updateTaskRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	patch := services.TaskPatch{
		Title:        req.Title,
		Description:  req.Description,
		Status:       req.Status,
		Priority:     req.Priority,
		Notes:        req.Notes,
		AssignedToID: req.AssignedTo,
	}
	if req.StartDate != nil {
		start, err := services.ParseDate("start_date", *req.StartDate)
		if err != nil {
			return err
		}
		patch.StartDate = &start
	}
	if req.DueDate != nil {
		due, err := services.ParseDate("due_date", *req.DueDate)
		if err != nil {
			return err
		}
		patch.DueDate = &due
	}

	if err := services.UpdateTask(db.DB, middleware.GetCurrentUser(c), task, patch); err != nil {
		return err
	}
	services.LogActivity(db.DB, middleware.ActivityContext(c), services.ActivityEntry{
		Action:      models.ActionTaskUpdate,
		Description: "Modification de la tâche « " + task.Title + " »",
		Metadata:    map[string]interface{}{"task_id": task.ID, "status": task.Status},
	})
	updated, err := services.GetTask(db.DB, task.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Task updated", Response{"task": updated})
}

// DeleteTaskHandler removes a task.
func DeleteTaskHandler(c echo.Context) error {
	task, err := loadAccessibleTask(c)
	if err != nil {
		return err
	}
	if err := services.DeleteTask(db.DB, middleware.GetCurrentUser(c), task); err != nil {
		return err
	}
	services.LogActivity(db.DB, middleware.ActivityContext(c), services.ActivityEntry{
		Action:      models.ActionTaskDelete,
		Description: "Suppression de la tâche « " + task.Title + " »",
		Metadata:    map[string]interface{}{"task_id": task.ID},
	})
	return respond(c, http.StatusOK, "Task deleted", nil)
}
