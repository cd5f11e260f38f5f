package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"lex_dossier_app_go/db"
	"lex_dossier_app_go/logger"
	"lex_dossier_app_go/middleware"
	"lex_dossier_app_go/models"
	"lex_dossier_app_go/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type createDossierRequest struct {
	Title        string  `json:"title" validate:"required,max=200"`
	Description  string  `json:"description"`
	Category     string  `json:"category"`
	Priority     string  `json:"priority"`
	DueDate      string  `json:"due_date"`
	Notes        string  `json:"notes"`
	ContactPhone string  `json:"phone" validate:"max=30"`
	UserID       *string `json:"user_id"`
	AssignedTo   *string `json:"assigned_to"`
	// Anonymous contact
	Name    string `json:"name" validate:"max=120"`
	Surname string `json:"surname" validate:"max=120"`
	Email   string `json:"email" validate:"omitempty,email"`

	TurnstileToken string `json:"turnstile_token"`
}

// dossierOwner picks the owner variant for a new dossier: clients own
// their submissions, staff may file for an account or a contact, and
// anonymous visitors are always a contact.
func dossierOwner(actor *models.User, req createDossierRequest) models.DossierOwner {
	switch {
	case actor != nil && !actor.IsStaff():
		return models.RegisteredOwner{UserID: actor.ID}
	case actor != nil && req.UserID != nil && *req.UserID != "":
		return models.RegisteredOwner{UserID: *req.UserID}
	}
	return models.AnonymousOwner{
		Name:    strings.TrimSpace(req.Name),
		Surname: strings.TrimSpace(req.Surname),
		Email:   models.NormalizeEmail(req.Email),
	}
}

func verifyHuman(c echo.Context, token string) error {
	cfg := middleware.GetConfig(c)
	if cfg == nil || cfg.TurnstileSecretKey == "" {
		return nil
	}
	valid, err := services.VerifyTurnstileToken(c.Request().Context(), token, cfg.TurnstileSecretKey, c.RealIP())
	if err != nil {
		logger.Error(err, "[SECURITY] turnstile verification failed")
	}
	if !valid {
		return services.NewValidationError("turnstile_token", "captcha verification failed")
	}
	return nil
}

// CreateDossierHandler accepts public, client and staff submissions.
func CreateDossierHandler(c echo.Context) error {
	actor := middleware.GetCurrentUser(c)
	var req createDossierRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if actor == nil {
		if err := verifyHuman(c, req.TurnstileToken); err != nil {
			return err
		}
	}

	dueDate, err := services.ParseOptionalDate("due_date", req.DueDate)
	if err != nil {
		return err
	}
	in := services.DossierInput{
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		Priority:     req.Priority,
		Notes:        req.Notes,
		ContactPhone: req.ContactPhone,
		Owner:        dossierOwner(actor, req),
		AssignedToID: req.AssignedTo,
	}
	if !dueDate.IsZero() {
		in.DueDate = &dueDate
	}
	if actor == nil || !actor.IsStaff() {
		// Only staff set internal fields
		in.Notes = ""
		in.DueDate = nil
		in.AssignedToID = nil
	}

	d, err := services.CreateDossier(db.DB, actor, in)
	if err != nil {
		return err
	}

	services.LogActivity(db.DB, middleware.ActivityContext(c), services.ActivityEntry{
		Action:      models.ActionDossierCreate,
		Description: fmt.Sprintf("Création du dossier %s", dossierLabel(d)),
		Metadata:    map[string]interface{}{"dossier_id": d.ID, "anonymous": actor == nil},
	})
	return created(c, "Dossier created", Response{"dossier": d})
}

func dossierLabel(d *models.Dossier) string {
	if d.Numero != nil && *d.Numero != "" {
		return *d.Numero
	}
	return d.ID
}

func dossierFilters(c echo.Context) (services.DossierFilters, error) {
	pq, err := pageParams(c)
	if err != nil {
		return services.DossierFilters{}, err
	}
	return services.DossierFilters{
		Status:       c.QueryParam("status"),
		Category:     c.QueryParam("category"),
		Priority:     c.QueryParam("priority"),
		AssignedToID: c.QueryParam("assignedTo"),
		Search:       c.QueryParam("q"),
		Page:         pq.Page,
		Limit:        pq.Limit,
	}, nil
}

// ListMyDossiersHandler returns the caller's own dossiers, including
// those filed under their email before they registered.
func ListMyDossiersHandler(c echo.Context) error {
	user := middleware.GetCurrentUser(c)
	f, err := dossierFilters(c)
	if err != nil {
		return err
	}
	f.AssignedToID = ""
	dossiers, total, err := services.ListOwnDossiers(db.DB, user, f)
	if err != nil {
		return err
	}
	return paged(c, "dossiers", dossiers, f.Page, f.Limit, total)
}

// ListAdminDossiersHandler is the staff listing with search and filters.
func ListAdminDossiersHandler(c echo.Context) error {
	user := middleware.GetCurrentUser(c)
	f, err := dossierFilters(c)
	if err != nil {
		return err
	}
	dossiers, total, err := services.ListStaffDossiers(db.DB, user, f)
	if err != nil {
		return err
	}
	return paged(c, "dossiers", dossiers, f.Page, f.Limit, total)
}

// ExportDossiersHandler streams the filtered staff listing as a workbook.
func ExportDossiersHandler(c echo.Context) error {
	user := middleware.GetCurrentUser(c)
	f, err := dossierFilters(c)
	if err != nil {
		return err
	}
	buf, err := services.ExportDossiersXLSX(db.DB, user, f)
	if err != nil {
		return err
	}
	filename := fmt.Sprintf("dossiers-%s.xlsx", time.Now().Format("20060102"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}

// DossierStatsHandler counts dossiers per status.
func DossierStatsHandler(c echo.Context) error {
	counts, err := services.DossierStatusCounts(db.DB)
	if err != nil {
		return err
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return ok(c, Response{"data": map[string]interface{}{"total": total, "by_status": counts}})
}

func loadAccessibleDossier(c echo.Context) (*models.Dossier, error) {
	d, err := services.GetDossier(db.DB, c.Param("id"))
	if err != nil {
		return nil, err
	}
	if !services.CanAccessDossier(middleware.GetCurrentUser(c), d) {
		return nil, services.ErrForbidden
	}
	return d, nil
}

// GetDossierHandler returns one dossier and, for managers, its next statuses.
func GetDossierHandler(c echo.Context) error {
	d, err := loadAccessibleDossier(c)
	if err != nil {
		return err
	}
	user := middleware.GetCurrentUser(c)
	if err := services.LoadDossierLinks(db.DB, user, d); err != nil {
		return err
	}
	payload := Response{"dossier": d, "status_label": d.Status.Label()}
	if services.CanManageDossier(user, d) {
		payload["next_statuses"] = models.NextStatuses(d.Status)
	}
	return ok(c, payload)
}

type updateDossierRequest struct {
	Title         *string `json:"title" validate:"omitempty,max=200"`
	Description   *string `json:"description"`
	Category      *string `json:"category"`
	Priority      *string `json:"priority"`
	DueDate       *string `json:"due_date"`
	Notes         *string `json:"notes"`
	ContactPhone  *string `json:"phone" validate:"omitempty,max=30"`
	Status        *string `json:"status"`
	Message       string  `json:"message"`
	RefusalReason *string `json:"refusal_reason"`
	// AssignedTo set to "" clears the assignment
	AssignedTo *string `json:"assigned_to"`
}

func (r updateDossierRequest) patch() (services.DossierPatch, error) {
	p := services.DossierPatch{
		Title:        r.Title,
		Description:  r.Description,
		Category:     r.Category,
		Priority:     r.Priority,
		Notes:        r.Notes,
		ContactPhone: r.ContactPhone,
	}
	if r.DueDate != nil {
		due, err := services.ParseOptionalDate("due_date", *r.DueDate)
		if err != nil {
			return p, err
		}
		if due.IsZero() {
			p.ClearDueDate = true
		} else {
			p.DueDate = &due
		}
	}
	return p, nil
}

// UpdateDossierHandler edits fields, assignment and status together; a
// rejected request changes nothing.
func UpdateDossierHandler(c echo.Context) error {
	actor := middleware.GetCurrentUser(c)
	d, err := loadAccessibleDossier(c)
	if err != nil {
		return err
	}
	var req updateDossierRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	patch, err := req.patch()
	if err != nil {
		return err
	}

	update := services.DossierUpdate{Patch: patch, AssignedTo: req.AssignedTo, Message: req.Message}
	switch {
	case req.RefusalReason != nil:
		update.Refuse = true
		update.Reason = *req.RefusalReason
	case req.Status != nil && *req.Status == string(models.StatusRefuse):
		update.Refuse = true
		update.Reason = req.Message
	case req.Status != nil:
		status := models.DossierStatus(*req.Status)
		update.Status = &status
	}

	result, err := services.UpdateDossier(db.DB, actor, d, update)
	if err != nil {
		return err
	}

	actx := middleware.ActivityContext(c)
	ref := dossierLabel(d)
	changes := []string{}
	if result.Fields {
		changes = append(changes, "fields")
		services.LogActivity(db.DB, actx, services.ActivityEntry{
			Action:      models.ActionDossierUpdate,
			Description: "Modification du dossier " + ref,
			Metadata:    map[string]interface{}{"dossier_id": d.ID},
		})
	}
	if result.Assignment {
		changes = append(changes, "assignment")
		services.LogActivity(db.DB, actx, services.ActivityEntry{
			Action:      models.ActionDossierAssign,
			Description: "Attribution du dossier " + ref,
			Target:      d.AssignedTo,
			Metadata:    map[string]interface{}{"dossier_id": d.ID, "from": result.FromAssignee, "to": d.AssignedToID},
		})
	}
	if result.Status {
		changes = append(changes, "status")
		services.LogActivity(db.DB, actx, services.ActivityEntry{
			Action:      models.ActionDossierStatusChange,
			Description: fmt.Sprintf("Statut du dossier %s : %s → %s", ref, result.FromStatus.Label(), d.Status.Label()),
			Metadata:    map[string]interface{}{"dossier_id": d.ID, "from": string(result.FromStatus), "to": string(d.Status)},
		})
	}

	updated, err := services.GetDossier(db.DB, d.ID)
	if err != nil {
		return err
	}
	message := "Dossier updated"
	if len(changes) == 0 {
		message = "No changes"
	}
	return respond(c, http.StatusOK, message, Response{"dossier": updated, "changes": changes})
}

// DeleteDossierHandler removes a dossier after notifying its owner.
func DeleteDossierHandler(c echo.Context) error {
	actor := middleware.GetCurrentUser(c)
	d, err := loadAccessibleDossier(c)
	if err != nil {
		return err
	}
	if err := services.DeleteDossier(db.DB, actor, d); err != nil {
		return err
	}
	services.LogActivity(db.DB, middleware.ActivityContext(c), services.ActivityEntry{
		Action:      models.ActionDossierDelete,
		Description: "Suppression du dossier " + dossierLabel(d),
		Metadata:    map[string]interface{}{"dossier_id": d.ID},
	})
	return respond(c, http.StatusOK, "Dossier deleted", nil)
}
