package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lex_dossier_app_go/models"
)

func TestLogActivity(t *testing.T) {
	db := setupTestDB(t)
	admin := createTestUser(t, db, models.RoleAdmin, "admin@example.com")
	client := createTestUser(t, db, models.RoleClient, "client@example.com")

	actx := ActorContext(admin, "10.0.0.1", "curl/8.0")
	LogActivity(db, actx, ActivityEntry{
		Action:      models.ActionUserUpdate,
		Description: "Compte client désactivé",
		Target:      client,
		Metadata:    map[string]interface{}{"is_active": false},
	})
	LogActivity(db, ActorContext(nil, "10.0.0.2", ""), ActivityEntry{
		Action:      models.ActionLoginFailed,
		Description: "Échec de connexion pour inconnu@example.com",
	})

	logs, total, err := ListActivityLogs(db, ActivityLogFilters{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, logs, 2)

	t.Run("denormalizes actor and target", func(t *testing.T) {
		logs, _, err := ListActivityLogs(db, ActivityLogFilters{Action: models.ActionUserUpdate})
		require.NoError(t, err)
		require.Len(t, logs, 1)
		entry := logs[0]
		require.NotNil(t, entry.UserID)
		assert.Equal(t, admin.ID, *entry.UserID)
		assert.Equal(t, "admin@example.com", entry.UserEmail)
		assert.Equal(t, models.RoleAdmin, entry.UserRole)
		assert.Equal(t, "client@example.com", entry.TargetUserEmail)
		assert.Equal(t, "10.0.0.1", entry.IPAddress)
		assert.Equal(t, false, entry.Metadata["is_active"])
	})

	t.Run("anonymous actor has no user id", func(t *testing.T) {
		logs, _, err := ListActivityLogs(db, ActivityLogFilters{Action: models.ActionLoginFailed})
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Nil(t, logs[0].UserID)
	})

	t.Run("filters by user as actor or target", func(t *testing.T) {
		_, total, err := ListActivityLogs(db, ActivityLogFilters{UserID: client.ID})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
	})

	t.Run("search is case insensitive", func(t *testing.T) {
		_, total, err := ListActivityLogs(db, ActivityLogFilters{Search: "COMPTE"})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
	})
}

func TestActivityLogIsAppendOnly(t *testing.T) {
	db := setupTestDB(t)
	LogActivity(db, ActivityContext{UserEmail: "a@example.com"}, ActivityEntry{Action: models.ActionLogin, Description: "Connexion"})

	var entry models.ActivityLog
	require.NoError(t, db.First(&entry).Error)

	err := db.Model(&entry).Update("description", "falsifié").Error
	assert.ErrorIs(t, err, models.ErrImmutableLog)

	err = db.Delete(&entry).Error
	assert.ErrorIs(t, err, models.ErrImmutableLog)

	var count int64
	db.Model(&models.ActivityLog{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestActivityStatsAndDay(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now()

	for i := 0; i < 3; i++ {
		LogActivity(db, ActivityContext{}, ActivityEntry{Action: models.ActionLogin, Description: "Connexion"})
	}
	LogActivity(db, ActivityContext{}, ActivityEntry{Action: models.ActionDossierCreate, Description: "Nouveau dossier"})

	old := models.ActivityLog{Action: models.ActionLogin, Description: "Ancienne connexion", CreatedAt: now.AddDate(0, 0, -3)}
	require.NoError(t, db.Create(&old).Error)

	stats, err := GetActivityStats(db, now)
	require.NoError(t, err)
	assert.EqualValues(t, 5, stats.Total)
	assert.EqualValues(t, 4, stats.Today)
	assert.EqualValues(t, 4, stats.ByAction[models.ActionLogin])
	assert.EqualValues(t, 1, stats.ByAction[models.ActionDossierCreate])

	today, err := LogsForDay(db, now)
	require.NoError(t, err)
	assert.Len(t, today, 4)
	for i := 1; i < len(today); i++ {
		assert.False(t, today[i].CreatedAt.Before(today[i-1].CreatedAt))
	}

	past, err := LogsForDay(db, now.AddDate(0, 0, -3))
	require.NoError(t, err)
	require.Len(t, past, 1)
	assert.Equal(t, "Ancienne connexion", past[0].Description)
}

func TestDayBounds(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	start, end := DayBounds(time.Date(2024, 3, 13, 17, 45, 0, 0, loc))
	assert.Equal(t, time.Date(2024, 3, 13, 0, 0, 0, 0, loc), start)
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, loc), end)
}
