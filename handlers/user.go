package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"lex_dossier_app_go/db"
	"lex_dossier_app_go/middleware"
	"lex_dossier_app_go/models"
	"lex_dossier_app_go/services"
)

// ListUsersHandler returns the admin user list.
func ListUsersHandler(c echo.Context) error {
	pq, err := pageParams(c)
	if err != nil {
		return err
	}
	active, err := optionalBool(c, "active")
	if err != nil {
		return err
	}
	users, total, err := services.ListUsers(db.DB, services.UserFilters{
		Role:     c.QueryParam("role"),
		Search:   c.QueryParam("q"),
		IsActive: active,
		Page:     pq.Page,
		Limit:    pq.Limit,
	})
	if err != nil {
		return err
	}
	return paged(c, "users", users, pq.Page, pq.Limit, total)
}

type createUserRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Surname  string `json:"surname" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Phone    string `json:"phone" validate:"max=30"`
	Role     string `json:"role" validate:"required"`
}

// CreateUserHandler lets an admin open an account with any role but superadmin.
func CreateUserHandler(c echo.Context) error {
	actor := middleware.GetCurrentUser(c)
	var req createUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if req.Role == models.RoleSuperadmin && !actor.IsSuperadmin() {
		return services.ErrForbidden
	}

	user, err := services.CreateUser(db.DB, services.CreateUserInput{
		Name:     req.Name,
		Surname:  req.Surname,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		Role:     req.Role,
	})
	if err != nil {
		return err
	}

	services.LogActivity(db.DB, middleware.ActivityContext(c), services.ActivityEntry{
		Action:      models.ActionUserCreate,
		Description: "Création du compte " + user.Email,
		Target:      user,
		Metadata:    map[string]interface{}{"role": user.Role},
	})
	return created(c, "User created", Response{"user": user})
}

type updateUserRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=120"`
	Surname  *string `json:"surname" validate:"omitempty,max=120"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Phone    *string `json:"phone" validate:"omitempty,max=30"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
	Password *string `json:"password" validate:"omitempty,min=8"`
}

// UpdateUserHandler applies an admin edit.
func UpdateUserHandler(c echo.Context) error {
	actor := middleware.GetCurrentUser(c)
	target, err := services.GetUser(db.DB, c.Param("id"))
	if err != nil {
		return err
	}
	var req updateUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	err = services.UpdateUser(db.DB, actor, target, services.UserPatch{
		Name:     req.Name,
		Surname:  req.Surname,
		Email:    req.Email,
		Phone:    req.Phone,
		Role:     req.Role,
		IsActive: req.IsActive,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	services.LogActivity(db.DB, middleware.ActivityContext(c), services.ActivityEntry{
		Action:      models.ActionUserUpdate,
		Description: "Modification du compte " + target.Email,
		Target:      target,
	})
	return respond(c, http.StatusOK, "User updated", Response{"user": target})
}

// DeleteUserHandler hard-deletes an account.
func DeleteUserHandler(c echo.Context) error {
	actor := middleware.GetCurrentUser(c)
	target, err := services.GetUser(db.DB, c.Param("id"))
	if err != nil {
		return err
	}
	if err := services.DeleteUser(db.DB, actor, target); err != nil {
		return err
	}
	services.LogActivity(db.DB, middleware.ActivityContext(c), services.ActivityEntry{
		Action:      models.ActionUserDelete,
		Description: "Suppression du compte " + target.Email,
		Target:      target,
	})
	return respond(c, http.StatusOK, "User deleted", nil)
}
