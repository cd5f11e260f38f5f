package jobs

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"lex_dossier_app_go/config"
	"lex_dossier_app_go/logger"
	"lex_dossier_app_go/models"
	"lex_dossier_app_go/services"
)

// ReminderResult counts what one reminder run did.
type ReminderResult struct {
	Notified int
	Emailed  int
	Failed   int
}

// SendAppointmentReminders reminds requesters of confirmed appointments
// taking place the day after now. Registered requesters get an in-app
// notification through the outbox, anonymous ones an email. Each
// appointment is reminded at most once.
func SendAppointmentReminders(db *gorm.DB, cfg *config.Config, now time.Time) (ReminderResult, error) {
	var result ReminderResult
	tomorrow := now.AddDate(0, 0, 1).Format("2006-01-02")

	var appointments []models.RendezVous
	err := db.Where("date = ? AND statut = ? AND reminder_sent_at IS NULL", tomorrow, models.RendezVousConfirme).
		Order("heure ASC").
		Find(&appointments).Error
	if err != nil {
		return result, fmt.Errorf("failed to load appointments for reminders: %w", err)
	}

	for i := range appointments {
		rdv := &appointments[i]
		message := fmt.Sprintf("Rappel : votre rendez-vous est prévu demain %s à %s.", rdv.Date, rdv.Heure)

		if rdv.UserID != nil {
			err = db.Transaction(func(tx *gorm.DB) error {
				if err := markReminded(tx, rdv.ID, now); err != nil {
					return err
				}
				return services.EnqueueNotifications(tx, services.NotificationDraft{
					UserID:   *rdv.UserID,
					Type:     models.NotificationAppointmentReminder,
					Title:    "Rappel de rendez-vous",
					Message:  message,
					LinkURL:  "/rendez-vous/" + rdv.ID,
					Metadata: map[string]interface{}{"rendez_vous_id": rdv.ID},
				})
			})
			if err != nil {
				result.Failed++
				logger.WithFields(logrus.Fields{"rendez_vous_id": rdv.ID, "error": err.Error()}).
					Warn("[REMINDER] failed to enqueue appointment reminder")
				continue
			}
			result.Notified++
			continue
		}

		email := &services.Email{
			To:       []string{rdv.Email},
			Subject:  "Rappel de votre rendez-vous",
			HTMLBody: fmt.Sprintf("<p>Bonjour %s,</p><p>%s</p>", rdv.Name, message),
			TextBody: message,
		}
		if err := services.SendEmail(cfg, email); err != nil {
			result.Failed++
			logger.WithFields(logrus.Fields{"rendez_vous_id": rdv.ID, "error": err.Error()}).
				Warn("[REMINDER] failed to email appointment reminder")
			continue
		}
		if err := markReminded(db, rdv.ID, now); err != nil {
			return result, err
		}
		result.Emailed++
	}

	if len(appointments) > 0 {
		logger.WithFields(logrus.Fields{
			"date":     tomorrow,
			"notified": result.Notified,
			"emailed":  result.Emailed,
			"failed":   result.Failed,
		}).Info("[REMINDER] appointment reminders sent")
	}
	return result, nil
}

func markReminded(tx *gorm.DB, id string, at time.Time) error {
	err := tx.Model(&models.RendezVous{}).Where("id = ?", id).UpdateColumn("reminder_sent_at", at).Error
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	return nil
}
