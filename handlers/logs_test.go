package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lex_dossier_app_go/models"
	"lex_dossier_app_go/services"
)

type fakePDFRenderer struct {
	html string
}

func (f *fakePDFRenderer) Render(_ context.Context, html string, _ services.PDFOptions) ([]byte, error) {
	f.html = html
	return []byte("%PDF-1.4 fake"), nil
}

func useFakePDF(t *testing.T) *fakePDFRenderer {
	t.Helper()
	previous := services.PDF
	fake := &fakePDFRenderer{}
	services.PDF = fake
	t.Cleanup(func() { services.PDF = previous })
	return fake
}

func TestDailyLogPDFHandler(t *testing.T) {
	database := setupTestDB(t)
	superadmin := createUser(t, database, models.RoleSuperadmin, "boss@cabinet.fr")
	fake := useFakePDF(t)

	services.LogActivity(database, services.ActorContext(superadmin, "127.0.0.1", "test"), services.ActivityEntry{
		Action:      models.ActionLogin,
		Description: "Connexion du patron",
	})
	today := time.Now().Format(services.DateLayout)

	_, c, rec := setupEcho(http.MethodGet, "/api/logs/dlog/pdf?date="+today, nil)
	c.Set("user", superadmin)
	require.NoError(t, DailyLogPDFHandler(c))
	assert.Equal(t, "application/pdf", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "dlog-"+today+".pdf")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))
	assert.Contains(t, fake.html, "Connexion du patron")

	var count int64
	database.Model(&models.ActivityLog{}).Where("action = ?", models.ActionLogExport).Count(&count)
	assert.EqualValues(t, 1, count)

	_, c, _ = setupEcho(http.MethodGet, "/api/logs/dlog/pdf", nil)
	assert.Equal(t, http.StatusBadRequest, codeOf(t, DailyLogPDFHandler(c)))

	_, c, _ = setupEcho(http.MethodGet, "/api/logs/dlog/pdf?date=hier", nil)
	assert.Equal(t, http.StatusBadRequest, codeOf(t, DailyLogPDFHandler(c)))
}

func TestListLogsHandler(t *testing.T) {
	database := setupTestDB(t)
	superadmin := createUser(t, database, models.RoleSuperadmin, "boss@cabinet.fr")
	actx := services.ActorContext(superadmin, "127.0.0.1", "test")
	services.LogActivity(database, actx, services.ActivityEntry{Action: models.ActionLogin, Description: "Connexion"})
	services.LogActivity(database, actx, services.ActivityEntry{Action: models.ActionUserCreate, Description: "Création"})
	today := time.Now().Format(services.DateLayout)

	_, c, rec := setupEcho(http.MethodGet, "/api/logs?action="+models.ActionLogin+"&from="+today+"&to="+today, nil)
	require.NoError(t, ListLogsHandler(c))
	body := decode(t, rec)
	assert.Len(t, body["logs"], 1)
	assert.EqualValues(t, 1, body["pagination"].(map[string]interface{})["total"])

	_, c, _ = setupEcho(http.MethodGet, "/api/logs?from=2024-13-45", nil)
	assert.Equal(t, http.StatusBadRequest, codeOf(t, ListLogsHandler(c)))

	_, c, _ = setupEcho(http.MethodGet, "/api/logs?page=deux", nil)
	assert.Equal(t, http.StatusBadRequest, codeOf(t, ListLogsHandler(c)))

	_, c, rec = setupEcho(http.MethodGet, "/api/logs/stats", nil)
	require.NoError(t, LogStatsHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityAlertsHandler(t *testing.T) {
	setupTestDB(t)
	for i := 0; i < 10; i++ {
		services.Monitor.TrackFailedLogin("203.0.113.9", "victim@example.com")
	}

	_, c, rec := setupEcho(http.MethodGet, "/api/logs/security-alerts", nil)
	require.NoError(t, SecurityAlertsHandler(c))
	assert.NotEmpty(t, decode(t, rec)["alerts"])
}

func TestHealthHandler(t *testing.T) {
	setupTestDB(t)

	_, c, rec := setupEcho(http.MethodGet, "/health", nil)
	require.NoError(t, HealthHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}
