package jobs

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"lex_dossier_app_go/config"
	"lex_dossier_app_go/models"
)

func setupRemindersTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.New().String() + "?mode=memory&cache=shared&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func TestSendAppointmentReminders(t *testing.T) {
	db := setupRemindersTestDB(t)
	cfg := &config.Config{AppURL: "http://test.local", EmailTestMode: true}

	client := &models.User{Name: "Awa", Surname: "Diallo", Email: "awa@example.com", Password: "x", Role: models.RoleClient, IsActive: true}
	require.NoError(t, db.Create(client).Error)

	now := time.Date(2024, 3, 12, 18, 0, 0, 0, time.UTC)
	tomorrow := "2024-03-13"

	registered := &models.RendezVous{Date: tomorrow, Heure: "09:00", Statut: models.RendezVousConfirme,
		UserID: &client.ID, Name: "Awa", Surname: "Diallo", Email: "awa@example.com"}
	anonymous := &models.RendezVous{Date: tomorrow, Heure: "10:00", Statut: models.RendezVousConfirme,
		Name: "Karim", Surname: "Benali", Email: "karim@example.com"}
	pending := &models.RendezVous{Date: tomorrow, Heure: "11:00", Statut: models.RendezVousEnAttente,
		Name: "Lina", Surname: "Moreau", Email: "lina@example.com"}
	later := &models.RendezVous{Date: "2024-03-15", Heure: "09:00", Statut: models.RendezVousConfirme,
		Name: "Omar", Surname: "Said", Email: "omar@example.com"}
	for _, rdv := range []*models.RendezVous{registered, anonymous, pending, later} {
		require.NoError(t, db.Create(rdv).Error)
	}

	result, err := SendAppointmentReminders(db, cfg, now)
	require.NoError(t, err)
	assert.Equal(t, ReminderResult{Notified: 1, Emailed: 1}, result)

	var outbox []models.NotificationOutbox
	require.NoError(t, db.Where("user_id = ?", client.ID).Find(&outbox).Error)
	require.Len(t, outbox, 1)
	assert.Equal(t, models.NotificationAppointmentReminder, outbox[0].Type)

	var reminded int64
	db.Model(&models.RendezVous{}).Where("reminder_sent_at IS NOT NULL").Count(&reminded)
	assert.EqualValues(t, 2, reminded)

	t.Run("second run sends nothing", func(t *testing.T) {
		result, err := SendAppointmentReminders(db, cfg, now)
		require.NoError(t, err)
		assert.Equal(t, ReminderResult{}, result)
	})
}
