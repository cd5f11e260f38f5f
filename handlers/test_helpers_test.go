package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"lex_dossier_app_go/config"
	"lex_dossier_app_go/db"
	"lex_dossier_app_go/models"
	"lex_dossier_app_go/services"
)

const testPassword = "Password123"

func testConfig() *config.Config {
	return &config.Config{
		Environment:   "test",
		JWTSecret:     "handlers-test-secret-0123456789abcdef",
		TokenTTL:      time.Hour,
		EmailTestMode: true,
		AppURL:        "http://localhost:8080",
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Unique shared-memory name isolates each test
	dsn := "file:" + uuid.New().String() + "?mode=memory&cache=shared&_busy_timeout=5000"
	testDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, testDB.AutoMigrate(models.All()...))

	db.DB = testDB
	services.Storage = services.NewLocalStorage(t.TempDir())
	services.Monitor = services.NewSecurityMonitor()

	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return testDB
}

func setupEcho(method, path string, body io.Reader) (*echo.Echo, echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewRequestValidator()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("config", testConfig())
	return e, c, rec
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func createUser(t *testing.T, testDB *gorm.DB, role, email string) *models.User {
	t.Helper()
	hash, err := services.HashPassword(testPassword)
	require.NoError(t, err)
	user := &models.User{
		Name:     "Test",
		Surname:  role,
		Email:    email,
		Password: hash,
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, testDB.Create(user).Error)
	return user
}

// codeOf renders err through HTTPErrorHandler and returns the status.
func codeOf(t *testing.T, err error) int {
	t.Helper()
	require.Error(t, err)
	_, c, rec := setupEcho("GET", "/", nil)
	HTTPErrorHandler(err, c)
	return rec.Code
}

func outboxTypes(t *testing.T, testDB *gorm.DB, userID string) []string {
	t.Helper()
	var rows []models.NotificationOutbox
	require.NoError(t, testDB.Where("user_id = ?", userID).Order("created_at ASC").Find(&rows).Error)
	types := make([]string, 0, len(rows))
	for _, r := range rows {
		types = append(types, r.Type)
	}
	return types
}

// nextBusinessDay returns a weekday at least two days ahead.
func nextBusinessDay() string {
	d := time.Now().AddDate(0, 0, 2)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d.Format(services.DateLayout)
}

var errBoom = errors.New("boom")
