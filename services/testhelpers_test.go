package services

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"lex_dossier_app_go/models"
)

// setupTestDB opens a private in-memory SQLite database with every table migrated.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.New().String() + "?mode=memory&cache=shared&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, role, email string) *models.User {
	t.Helper()
	hash, err := HashPassword("Password123")
	require.NoError(t, err)
	user := &models.User{
		Name:     "Test",
		Surname:  role,
		Email:    email,
		Password: hash,
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func outboxFor(t *testing.T, db *gorm.DB, userID string) []models.NotificationOutbox {
	t.Helper()
	var rows []models.NotificationOutbox
	require.NoError(t, db.Where("user_id = ?", userID).Order("created_at ASC").Find(&rows).Error)
	return rows
}

func createRegisteredDossier(t *testing.T, db *gorm.DB, actor, owner *models.User) *models.Dossier {
	t.Helper()
	d, err := CreateDossier(db, actor, DossierInput{
		Title:    "Renouvellement titre de séjour",
		Category: models.CategoryTitreSejour,
		Owner:    models.RegisteredOwner{UserID: owner.ID},
	})
	require.NoError(t, err)
	return d
}

// failOutboxWrites makes every insert into the outbox fail on db.
func failOutboxWrites(t *testing.T, db *gorm.DB) {
	t.Helper()
	err := db.Callback().Create().Before("gorm:create").Register("test:fail_outbox", func(tx *gorm.DB) {
		if tx.Statement.Schema != nil && tx.Statement.Schema.Table == "notification_outbox" {
			tx.AddError(errors.New("outbox unavailable"))
		}
	})
	require.NoError(t, err)
}
