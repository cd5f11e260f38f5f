package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"lex_dossier_app_go/models"
)

// AppointmentInput is a booking request.
type AppointmentInput struct {
	Date        string
	Heure       string
	Name        string
	Surname     string
	Email       string
	Telephone   string
	Motif       string
	Description string
	DossierID   *string
}

func appointmentLink(id string) string {
	return "/rendez-vous/" + id
}

// BookAppointment reserves a slot. actor is nil for anonymous visitors.
func BookAppointment(db *gorm.DB, actor *models.User, in AppointmentInput) (*models.RendezVous, error) {
	if actor != nil {
		if in.Name == "" {
			in.Name = actor.Name
		}
		if in.Surname == "" {
			in.Surname = actor.Surname
		}
		if in.Email == "" {
			in.Email = actor.Email
		}
		if in.Telephone == "" {
			in.Telephone = actor.Phone
		}
	}
	in.Name, in.Surname = SanitizeText(in.Name), SanitizeText(in.Surname)
	if in.Name == "" || in.Surname == "" {
		return nil, NewValidationError("name", "name and surname are required")
	}
	email := models.NormalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, NewValidationError("email", "a valid email is required")
	}
	// Anonymous bookers cannot prove any link to a dossier
	if actor == nil || (in.DossierID != nil && *in.DossierID == "") {
		in.DossierID = nil
	}
	if in.DossierID != nil {
		d, err := GetDossier(db, *in.DossierID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, NewValidationError("dossier_id", "dossier not found")
			}
			return nil, err
		}
		if !CanAccessDossier(actor, d) {
			return nil, ErrForbidden
		}
	}
	if err := validateSlot(in.Date, in.Heure, time.Now()); err != nil {
		return nil, err
	}
	if err := CheckSlotAvailable(db, in.Date, in.Heure, ""); err != nil {
		return nil, err
	}

	adminIDs, err := ActiveAdminIDs(db)
	if err != nil {
		return nil, err
	}

	rdv := &models.RendezVous{
		Date:        in.Date,
		Heure:       in.Heure,
		Statut:      models.RendezVousEnAttente,
		Name:        in.Name,
		Surname:     in.Surname,
		Email:       email,
		Telephone:   strings.TrimSpace(in.Telephone),
		Motif:       SanitizeText(in.Motif),
		Description: SanitizeText(in.Description),
		DossierID:   in.DossierID,
	}
	if actor != nil {
		rdv.UserID = &actor.ID
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rdv).Error; err != nil {
			return err
		}
		EnqueueBestEffort(tx, FanOut(adminIDs, NotificationDraft{
			Type:     models.NotificationAppointmentCreated,
			Title:    "Nouveau rendez-vous",
			Message:  fmt.Sprintf("%s %s a réservé le %s à %s.", rdv.Name, rdv.Surname, rdv.Date, rdv.Heure),
			LinkURL:  appointmentLink(rdv.ID),
			Metadata: map[string]interface{}{"rendez_vous_id": rdv.ID},
		})...)
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("failed to book appointment: %w", err)
	}
	return rdv, nil
}

// GetAppointment loads an appointment by id.
func GetAppointment(db *gorm.DB, id string) (*models.RendezVous, error) {
	var rdv models.RendezVous
	if err := db.First(&rdv, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load appointment: %w", err)
	}
	return &rdv, nil
}

func isRequester(user *models.User, rdv *models.RendezVous) bool {
	if user == nil {
		return false
	}
	if rdv.UserID != nil && *rdv.UserID == user.ID {
		return true
	}
	return strings.EqualFold(rdv.Email, user.Email)
}

// CanAccessAppointment: staff or the requester.
func CanAccessAppointment(user *models.User, rdv *models.RendezVous) bool {
	return user != nil && (user.IsStaff() || isRequester(user, rdv))
}

// AppointmentPatch is a staff edit; nil fields are left untouched.
type AppointmentPatch struct {
	Statut *string
	Date   *string
	Heure  *string
	Notes  *string
}

// UpdateAppointment changes status or reschedules. Slot contention is re-checked.
func UpdateAppointment(db *gorm.DB, actor *models.User, rdv *models.RendezVous, p AppointmentPatch) error {
	if actor == nil || !actor.IsStaff() {
		return ErrForbidden
	}
	if p.Statut != nil && *p.Statut == models.RendezVousAnnule {
		if err := CancelAppointment(db, actor, rdv); err != nil {
			return err
		}
		p.Statut = nil
	}

	changed := false
	rescheduled := false
	if p.Statut != nil && *p.Statut != rdv.Statut {
		if !models.IsValidRendezVousStatus(*p.Statut) {
			return NewValidationError("statut", "unknown status")
		}
		if !models.HoldsSlot(rdv.Statut) && models.HoldsSlot(*p.Statut) {
			// Reopening a closed booking must re-claim its slot
			if err := CheckSlotAvailable(db, rdv.Date, rdv.Heure, rdv.ID); err != nil {
				return err
			}
			rdv.CancelledAt = nil
		}
		rdv.Statut = *p.Statut
		changed = true
	}
	date, heure := rdv.Date, rdv.Heure
	if p.Date != nil {
		date = *p.Date
	}
	if p.Heure != nil {
		heure = *p.Heure
	}
	if date != rdv.Date || heure != rdv.Heure {
		if err := validateSlot(date, heure, time.Now()); err != nil {
			return err
		}
		if err := CheckSlotAvailable(db, date, heure, rdv.ID); err != nil {
			return err
		}
		rdv.Date, rdv.Heure = date, heure
		rdv.ReminderSentAt = nil
		changed, rescheduled = true, true
	}
	if p.Notes != nil {
		rdv.Notes = SanitizeText(*p.Notes)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(rdv).Error; err != nil {
			return err
		}
		if !changed || rdv.UserID == nil || *rdv.UserID == actor.ID {
			return nil
		}
		msg := fmt.Sprintf("Votre rendez-vous du %s à %s est désormais : %s.", rdv.Date, rdv.Heure, rdv.Statut)
		if rescheduled {
			msg = fmt.Sprintf("Votre rendez-vous a été déplacé au %s à %s.", rdv.Date, rdv.Heure)
		}
		EnqueueBestEffort(tx, NotificationDraft{
			UserID:   *rdv.UserID,
			Type:     models.NotificationAppointmentUpdated,
			Title:    "Rendez-vous mis à jour",
			Message:  msg,
			LinkURL:  appointmentLink(rdv.ID),
			Metadata: map[string]interface{}{"rendez_vous_id": rdv.ID},
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrSlotUnavailable
		}
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	return nil
}

// CancelAppointment frees the slot. Staff and the requester may cancel.
func CancelAppointment(db *gorm.DB, actor *models.User, rdv *models.RendezVous) error {
	if !CanAccessAppointment(actor, rdv) {
		return ErrForbidden
	}
	if rdv.Statut == models.RendezVousAnnule {
		return nil
	}

	var recipients []string
	if isRequester(actor, rdv) && !actor.IsStaff() {
		ids, err := ActiveAdminIDs(db)
		if err != nil {
			return err
		}
		recipients = ids
	} else if rdv.UserID != nil && *rdv.UserID != actor.ID {
		recipients = []string{*rdv.UserID}
	}

	now := time.Now()
	rdv.Statut = models.RendezVousAnnule
	rdv.CancelledAt = &now

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(rdv).Error; err != nil {
			return fmt.Errorf("failed to cancel appointment: %w", err)
		}
		EnqueueBestEffort(tx, FanOut(recipients, NotificationDraft{
			Type:     models.NotificationAppointmentCanceled,
			Title:    "Rendez-vous annulé",
			Message:  fmt.Sprintf("Le rendez-vous du %s à %s (%s %s) a été annulé.", rdv.Date, rdv.Heure, rdv.Name, rdv.Surname),
			LinkURL:  appointmentLink(rdv.ID),
			Metadata: map[string]interface{}{"rendez_vous_id": rdv.ID},
		})...)
		return nil
	})
}

// ListUserAppointments returns the appointments requested by user.
func ListUserAppointments(db *gorm.DB, user *models.User) ([]models.RendezVous, error) {
	var list []models.RendezVous
	err := db.Where("user_id = ? OR email = ?", user.ID, models.NormalizeEmail(user.Email)).
		Order("date DESC, heure DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return list, nil
}

// AppointmentFilters narrows the staff agenda.
type AppointmentFilters struct {
	From   string
	To     string
	Statut string
	Page   int
	Limit  int
}

// ListAppointments returns the staff agenda in chronological order.
func ListAppointments(db *gorm.DB, f AppointmentFilters) ([]models.RendezVous, int64, error) {
	query := db.Model(&models.RendezVous{})
	if f.From != "" {
		query = query.Where("date >= ?", f.From)
	}
	if f.To != "" {
		query = query.Where("date <= ?", f.To)
	}
	if f.Statut != "" {
		query = query.Where("statut = ?", f.Statut)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count appointments: %w", err)
	}
	page, limit := NormalizePage(f.Page, f.Limit)
	var list []models.RendezVous
	err := query.Order("date ASC, heure ASC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list appointments: %w", err)
	}
	return list, total, nil
}
