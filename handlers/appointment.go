package handlers

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"lex_dossier_app_go/db"
	"lex_dossier_app_go/middleware"
	"lex_dossier_app_go/models"
	"lex_dossier_app_go/services"
)

// AvailableSlotsHandler returns the public booking grid for ?date=YYYY-MM-DD.
func AvailableSlotsHandler(c echo.Context) error {
	date := c.QueryParam("date")
	if date == "" {
		return services.NewValidationError("date", "date is required")
	}
	slots, err := services.GetDaySlots(db.DB, date)
	if err != nil {
		return err
	}
	return ok(c, Response{"date": date, "creneaux": slots})
}

// ListClosedSlotsHandler lists closures between ?from and ?to.
func ListClosedSlotsHandler(c echo.Context) error {
	from, to := c.QueryParam("from"), c.QueryParam("to")
	for field, v := range map[string]string{"from": from, "to": to} {
		if _, err := services.ParseOptionalDate(field, v); err != nil {
			return err
		}
	}
	creneaux, err := services.ListClosedSlots(db.DB, from, to)
	if err != nil {
		return err
	}
	return ok(c, Response{"creneaux": creneaux})
}

type closeSlotRequest struct {
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
	Heure  string `json:"heure" validate:"required"`
	Reason string `json:"reason" validate:"max=255"`
}

// CloseSlotHandler blocks a slot for booking.
func CloseSlotHandler(c echo.Context) error {
	var req closeSlotRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	creneau, err := services.CloseSlot(db.DB, middleware.GetCurrentUser(c), req.Date, req.Heure, req.Reason)
	if err != nil {
		return err
	}
	return created(c, "Slot closed", Response{"creneau": creneau})
}

// ReopenSlotHandler deletes a closure.
func ReopenSlotHandler(c echo.Context) error {
	if err := services.ReopenSlot(db.DB, c.Param("id")); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Slot reopened", nil)
}

type bookAppointmentRequest struct {
	Date        string  `json:"date" validate:"required,datetime=2006-01-02"`
	Heure       string  `json:"heure" validate:"required"`
	Name        string  `json:"name" validate:"max=120"`
	Surname     string  `json:"surname" validate:"max=120"`
	Email       string  `json:"email" validate:"omitempty,email"`
	Telephone   string  `json:"telephone" validate:"max=30"`
	Motif       string  `json:"motif" validate:"max=255"`
	Description string  `json:"description"`
	DossierID   *string `json:"dossier_id"`

	TurnstileToken string `json:"turnstile_token"`
}

// BookAppointmentHandler books a slot for a visitor or a signed-in user.
func BookAppointmentHandler(c echo.Context) error {
	actor := middleware.GetCurrentUser(c)
	var req bookAppointmentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if actor == nil {
		if err := verifyHuman(c, req.TurnstileToken); err != nil {
			return err
		}
	}

	rdv, err := services.BookAppointment(db.DB, actor, services.AppointmentInput{
		Date:        req.Date,
		Heure:       req.Heure,
		Name:        req.Name,
		Surname:     req.Surname,
		Email:       req.Email,
		Telephone:   req.Telephone,
		Motif:       req.Motif,
		Description: req.Description,
		DossierID:   req.DossierID,
	})
	if err != nil {
		return err
	}

	services.LogActivity(db.DB, middleware.ActivityContext(c), services.ActivityEntry{
		Action:      models.ActionAppointmentCreate,
		Description: fmt.Sprintf("Rendez-vous du %s à %s pour %s", rdv.Date, rdv.Heure, rdv.Email),
		Metadata:    map[string]interface{}{"rendez_vous_id": rdv.ID},
	})
	return created(c, "Appointment booked", Response{"appointment": rdv})
}

// ListMyAppointmentsHandler returns the caller's appointments.
func ListMyAppointmentsHandler(c echo.Context) error {
	list, err := services.ListUserAppointments(db.DB, middleware.GetCurrentUser(c))
	if err != nil {
		return err
	}
	return ok(c, Response{"appointments": list})
}

// ListAdminAppointmentsHandler is the staff agenda.
func ListAdminAppointmentsHandler(c echo.Context) error {
	pq, err := pageParams(c)
	if err != nil {
		return err
	}
	list, total, err := services.ListAppointments(db.DB, services.AppointmentFilters{
		From:   c.QueryParam("from"),
		To:     c.QueryParam("to"),
		Statut: c.QueryParam("statut"),
		Page:   pq.Page,
		Limit:  pq.Limit,
	})
	if err != nil {
		return err
	}
	return paged(c, "appointments", list, pq.Page, pq.Limit, total)
}

type updateAppointmentRequest struct {
	Statut *string `json:"statut"`
	Date   *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Heure  *string `json:"heure"`
	Notes  *string `json:"notes"`
}

func loadAccessibleAppointment(c echo.Context) (*models.RendezVous, error) {
	rdv, err := services.GetAppointment(db.DB, c.Param("id"))
	if err != nil {
		return nil, err
	}
	if !services.CanAccessAppointment(middleware.GetCurrentUser(c), rdv) {
		return nil, services.ErrForbidden
	}
	return rdv, nil
}

// UpdateAppointmentHandler lets staff confirm, complete or reschedule.
func UpdateAppointmentHandler(c echo.Context) error {
	rdv, err := loadAccessibleAppointment(c)
	if err != nil {
		return err
	}
	var req updateAppointmentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	before := fmt.Sprintf("%s %s %s", rdv.Date, rdv.Heure, rdv.Statut)
	err = services.UpdateAppointment(db.DB, middleware.GetCurrentUser(c), rdv, services.AppointmentPatch{
		Statut: req.Statut,
		Date:   req.Date,
		Heure:  req.Heure,
		Notes:  req.Notes,
	})
	if err != nil {
		return err
	}
	services.LogActivity(db.DB, middleware.ActivityContext(c), services.ActivityEntry{
		Action:      models.ActionAppointmentUpdate,
		Description: fmt.Sprintf("Rendez-vous %s → %s %s %s", before, rdv.Date, rdv.Heure, rdv.Statut),
		Metadata:    map[string]interface{}{"rendez_vous_id": rdv.ID},
	})
	return respond(c, http.StatusOK, "Appointment updated", Response{"appointment": rdv})
}

// CancelAppointmentHandler cancels on behalf of staff or the requester.
func CancelAppointmentHandler(c echo.Context) error {
	rdv, err := loadAccessibleAppointment(c)
	if err != nil {
		return err
	}
	if err := services.CancelAppointment(db.DB, middleware.GetCurrentUser(c), rdv); err != nil {
		return err
	}
	services.LogActivity(db.DB, middleware.ActivityContext(c), services.ActivityEntry{
		Action:      models.ActionAppointmentCancel,
		Description: fmt.Sprintf("Annulation du rendez-vous du %s à %s", rdv.Date, rdv.Heure),
		Metadata:    map[string]interface{}{"rendez_vous_id": rdv.ID},
	})
	return respond(c, http.StatusOK, "Appointment cancelled", Response{"appointment": rdv})
}
