package handlers

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"lex_dossier_app_go/models"
)

func withID(c echo.Context, id string) {
	c.SetParamNames("id")
	c.SetParamValues(id)
}

func createDossierAs(t *testing.T, actor *models.User, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	_, c, rec := setupEcho(http.MethodPost, "/api/user/dossiers", jsonBody(t, body))
	if actor != nil {
		c.Set("user", actor)
	}
	require.NoError(t, CreateDossierHandler(c))
	require.Equal(t, http.StatusCreated, rec.Code)
	return decode(t, rec)["dossier"].(map[string]interface{})
}

func TestCreateDossierHandler(t *testing.T) {
	database := setupTestDB(t)
	admin := createUser(t, database, models.RoleAdmin, "admin@cabinet.fr")
	client := createUser(t, database, models.RoleClient, "client@example.com")

	t.Run("anonymous submission", func(t *testing.T) {
		d := createDossierAs(t, nil, map[string]interface{}{
			"title": "Titre de séjour", "name": "Awa", "surname": "Diallo", "email": "AWA@example.com",
			"notes": "ignored",
		})
		assert.Equal(t, "awa@example.com", d["contact_email"])
		assert.Nil(t, d["user_id"])
		assert.Nil(t, d["notes"])
		assert.NotEmpty(t, d["numero"])
		assert.Equal(t, []string{models.NotificationDossierCreated}, outboxTypes(t, database, admin.ID))

		var log models.ActivityLog
		require.NoError(t, database.Where("action = ?", models.ActionDossierCreate).First(&log).Error)
		assert.Nil(t, log.UserID)
	})

	t.Run("client owns the submission", func(t *testing.T) {
		d := createDossierAs(t, client, map[string]interface{}{"title": "Naturalisation", "user_id": admin.ID})
		assert.Equal(t, client.ID, d["user_id"])
		assert.Nil(t, d["contact_email"])
	})

	t.Run("anonymous submission needs a complete contact", func(t *testing.T) {
		_, c, _ := setupEcho(http.MethodPost, "/api/user/dossiers", jsonBody(t, map[string]string{
			"title": "Sans contact", "name": "Awa",
		}))
		assert.Equal(t, http.StatusBadRequest, codeOf(t, CreateDossierHandler(c)))
	})

	t.Run("title is required", func(t *testing.T) {
		_, c, _ := setupEcho(http.MethodPost, "/api/user/dossiers", jsonBody(t, map[string]string{}))
		c.Set("user", client)
		assert.Equal(t, http.StatusBadRequest, codeOf(t, CreateDossierHandler(c)))
	})
}

func TestGetDossierHandlerAccess(t *testing.T) {
	database := setupTestDB(t)
	admin := createUser(t, database, models.RoleAdmin, "admin@cabinet.fr")
	client := createUser(t, database, models.RoleClient, "client@example.com")
	other := createUser(t, database, models.RoleClient, "other@example.com")
	d := createDossierAs(t, client, map[string]interface{}{"title": "Regroupement familial"})
	id := d["id"].(string)

	_, c, rec := setupEcho(http.MethodGet, "/api/user/dossiers/"+id, nil)
	withID(c, id)
	c.Set("user", client)
	require.NoError(t, GetDossierHandler(c))
	body := decode(t, rec)
	assert.Equal(t, "Reçu", body["status_label"])
	assert.Nil(t, body["next_statuses"])

	_, c, rec = setupEcho(http.MethodGet, "/api/user/dossiers/"+id, nil)
	withID(c, id)
	c.Set("user", admin)
	require.NoError(t, GetDossierHandler(c))
	assert.NotEmpty(t, decode(t, rec)["next_statuses"])

	_, c, _ = setupEcho(http.MethodGet, "/api/user/dossiers/"+id, nil)
	withID(c, id)
	c.Set("user", other)
	assert.Equal(t, http.StatusForbidden, codeOf(t, GetDossierHandler(c)))

	_, c, _ = setupEcho(http.MethodGet, "/api/user/dossiers/missing", nil)
	withID(c, "missing")
	c.Set("user", admin)
	assert.Equal(t, http.StatusNotFound, codeOf(t, GetDossierHandler(c)))
}

func TestGetDossierHandlerLinks(t *testing.T) {
	database := setupTestDB(t)
	admin := createUser(t, database, models.RoleAdmin, "admin@cabinet.fr")
	avocat := createUser(t, database, models.RoleAvocat, "avocat@cabinet.fr")
	client := createUser(t, database, models.RoleClient, "client@example.com")
	d := createDossierAs(t, client, map[string]interface{}{"title": "Naturalisation"})
	id := d["id"].(string)

	require.NoError(t, database.Create(&models.Document{
		UserID: client.ID, UploadedByID: client.ID, DossierID: &id,
		FileName: "acte.pdf", OriginalName: "acte.pdf", StorageKey: "documents/acte.pdf", Size: 4,
	}).Error)
	require.NoError(t, database.Create(&models.Message{
		SenderID: admin.ID, Subject: "Rendez-vous", Body: "Merci de passer au cabinet", DossierID: &id,
		Recipients: []models.MessageRecipient{{UserID: client.ID}},
	}).Error)
	require.NoError(t, database.Create(&models.Message{
		SenderID: admin.ID, Subject: "Interne", Body: "À relire", DossierID: &id,
		Recipients: []models.MessageRecipient{{UserID: avocat.ID}},
	}).Error)

	get := func(user *models.User) map[string]interface{} {
		_, c, rec := setupEcho(http.MethodGet, "/api/user/dossiers/"+id, nil)
		withID(c, id)
		c.Set("user", user)
		require.NoError(t, GetDossierHandler(c))
		return decode(t, rec)["dossier"].(map[string]interface{})
	}

	own := get(client)
	assert.Len(t, own["documents"], 1)
	require.Len(t, own["messages"], 1)
	assert.Equal(t, "Rendez-vous", own["messages"].([]interface{})[0].(map[string]interface{})["subject"])
	assert.Nil(t, own["rendez_vous"])

	assert.Len(t, get(admin)["messages"], 2)
}

func TestUpdateDossierHandler(t *testing.T) {
	database := setupTestDB(t)
	admin := createUser(t, database, models.RoleAdmin, "admin@cabinet.fr")
	client := createUser(t, database, models.RoleClient, "client@example.com")
	d := createDossierAs(t, client, map[string]interface{}{"title": "Carte de résident"})
	id := d["id"].(string)

	update := func(actor *models.User, body map[string]interface{}) (error, map[string]interface{}) {
		_, c, rec := setupEcho(http.MethodPut, "/api/user/dossiers/"+id, jsonBody(t, body))
		withID(c, id)
		c.Set("user", actor)
		err := UpdateDossierHandler(c)
		if err != nil {
			return err, nil
		}
		return nil, decode(t, rec)
	}

	t.Run("status change notifies the owner", func(t *testing.T) {
		err, body := update(admin, map[string]interface{}{"status": "accepte"})
		require.NoError(t, err)
		assert.Equal(t, "Dossier updated", body["message"])
		assert.Equal(t, []interface{}{"status"}, body["changes"])
		assert.Contains(t, outboxTypes(t, database, client.ID), models.NotificationDossierStatusChange)

		var count int64
		database.Model(&models.ActivityLog{}).Where("action = ?", models.ActionDossierStatusChange).Count(&count)
		assert.EqualValues(t, 1, count)
	})

	t.Run("same status is not a change", func(t *testing.T) {
		before := len(outboxTypes(t, database, client.ID))
		err, body := update(admin, map[string]interface{}{"status": "accepte"})
		require.NoError(t, err)
		assert.Equal(t, "No changes", body["message"])
		assert.Len(t, outboxTypes(t, database, client.ID), before)
	})

	t.Run("skipping stages conflicts", func(t *testing.T) {
		err, _ := update(admin, map[string]interface{}{"status": "depose"})
		assert.Equal(t, http.StatusConflict, codeOf(t, err))
	})

	t.Run("client cannot be assigned", func(t *testing.T) {
		err, _ := update(admin, map[string]interface{}{"assigned_to": client.ID})
		assert.Equal(t, http.StatusBadRequest, codeOf(t, err))
	})

	t.Run("client cannot change status", func(t *testing.T) {
		err, _ := update(client, map[string]interface{}{"status": "en_attente_onboarding"})
		assert.Equal(t, http.StatusForbidden, codeOf(t, err))
	})

	t.Run("bad due date", func(t *testing.T) {
		err, _ := update(admin, map[string]interface{}{"due_date": "demain"})
		assert.Equal(t, http.StatusBadRequest, codeOf(t, err))
	})

	stored := func() models.Dossier {
		var d models.Dossier
		require.NoError(t, database.First(&d, "id = ?", id).Error)
		return d
	}

	t.Run("rejected assignment keeps the edited fields out", func(t *testing.T) {
		err, _ := update(admin, map[string]interface{}{"title": "Changed", "assigned_to": client.ID})
		assert.Equal(t, http.StatusBadRequest, codeOf(t, err))
		assert.Equal(t, "Carte de résident", stored().Title)

		var count int64
		database.Model(&models.ActivityLog{}).Where("action = ?", models.ActionDossierUpdate).Count(&count)
		assert.Zero(t, count)
	})

	t.Run("rejected transition keeps the priority", func(t *testing.T) {
		err, _ := update(admin, map[string]interface{}{"priority": "urgente", "status": "gain_cause"})
		assert.Equal(t, http.StatusConflict, codeOf(t, err))
		assert.NotEqual(t, models.PriorityUrgente, stored().Priority)
		assert.Equal(t, models.StatusAccepte, stored().Status)
	})

	t.Run("fields and status commit together", func(t *testing.T) {
		err, body := update(admin, map[string]interface{}{"priority": "haute", "status": "en_attente_onboarding"})
		require.NoError(t, err)
		assert.Equal(t, []interface{}{"fields", "status"}, body["changes"])
		assert.Equal(t, models.PriorityHaute, stored().Priority)
		assert.Equal(t, models.StatusAttenteOnboarding, stored().Status)
	})
}

func TestListDossierHandlers(t *testing.T) {
	database := setupTestDB(t)
	admin := createUser(t, database, models.RoleAdmin, "admin@cabinet.fr")
	client := createUser(t, database, models.RoleClient, "client@example.com")
	createDossierAs(t, client, map[string]interface{}{"title": "Premier"})
	createDossierAs(t, client, map[string]interface{}{"title": "Second"})
	createDossierAs(t, nil, map[string]interface{}{
		"title": "Visiteur", "name": "Awa", "surname": "Diallo", "email": "awa@example.com",
	})

	_, c, rec := setupEcho(http.MethodGet, "/api/user/dossiers", nil)
	c.Set("user", client)
	require.NoError(t, ListMyDossiersHandler(c))
	body := decode(t, rec)
	assert.Len(t, body["dossiers"], 2)
	assert.EqualValues(t, 2, body["pagination"].(map[string]interface{})["total"])

	_, c, rec = setupEcho(http.MethodGet, "/api/user/dossiers/admin?limit=2", nil)
	c.Set("user", admin)
	require.NoError(t, ListAdminDossiersHandler(c))
	body = decode(t, rec)
	assert.Len(t, body["dossiers"], 2)
	assert.EqualValues(t, 3, body["pagination"].(map[string]interface{})["total"])

	_, c, rec = setupEcho(http.MethodGet, "/api/user/dossiers/stats", nil)
	c.Set("user", admin)
	require.NoError(t, DossierStatsHandler(c))
	data := decode(t, rec)["data"].(map[string]interface{})
	assert.EqualValues(t, 3, data["total"])

	_, c, rec = setupEcho(http.MethodGet, "/api/user/dossiers/admin/export", nil)
	c.Set("user", admin)
	require.NoError(t, ExportDossiersHandler(c))
	assert.Equal(t, xlsxContentType, rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), ".xlsx")
	assert.NotZero(t, rec.Body.Len())
}

func TestDeleteDossierHandler(t *testing.T) {
	database := setupTestDB(t)
	admin := createUser(t, database, models.RoleAdmin, "admin@cabinet.fr")
	client := createUser(t, database, models.RoleClient, "client@example.com")
	d := createDossierAs(t, client, map[string]interface{}{"title": "À supprimer"})
	id := d["id"].(string)

	_, c, _ := setupEcho(http.MethodDelete, "/api/user/dossiers/"+id, nil)
	withID(c, id)
	c.Set("user", client)
	assert.Equal(t, http.StatusForbidden, codeOf(t, DeleteDossierHandler(c)))

	_, c, rec := setupEcho(http.MethodDelete, "/api/user/dossiers/"+id, nil)
	withID(c, id)
	c.Set("user", admin)
	require.NoError(t, DeleteDossierHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var stored models.Dossier
	assert.ErrorIs(t, database.First(&stored, "id = ?", id).Error, gorm.ErrRecordNotFound)
	assert.Contains(t, outboxTypes(t, database, client.ID), models.NotificationDossierDeleted)
}
