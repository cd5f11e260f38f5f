package services

import (
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lex_dossier_app_go/models"
)

var numeroPattern = regexp.MustCompile(`^DOS-\d{8}-\d{4}$`)

func strPtr(s string) *string { return &s }

func TestGenerateNumero(t *testing.T) {
	db := setupTestDB(t)
	at := time.Date(2024, 3, 15, 10, 0, 0, 0, time.Local)

	first := GenerateNumero(db, at)
	second := GenerateNumero(db, at)
	assert.Equal(t, "DOS-20240315-0001", first)
	assert.Equal(t, "DOS-20240315-0002", second)

	// Other days have their own sequence
	assert.Equal(t, "DOS-20240316-0001", GenerateNumero(db, at.AddDate(0, 0, 1)))
}

func TestGenerateNumeroSeedsFromExistingRows(t *testing.T) {
	db := setupTestDB(t)
	at := time.Date(2024, 3, 15, 10, 0, 0, 0, time.Local)

	legacy := &models.Dossier{
		Numero:         strPtr("DOS-20240315-0041"),
		Title:          "Ancien dossier",
		Status:         models.StatusRecu,
		ContactName:    strPtr("Awa"),
		ContactSurname: strPtr("Diallo"),
		ContactEmail:   strPtr("awa@example.com"),
	}
	require.NoError(t, db.Create(legacy).Error)

	assert.Equal(t, "DOS-20240315-0042", GenerateNumero(db, at))
}

func TestGenerateNumeroSkipsTakenCandidates(t *testing.T) {
	db := setupTestDB(t)
	at := time.Date(2024, 3, 15, 10, 0, 0, 0, time.Local)

	require.NoError(t, db.Create(&models.DossierCounter{Day: "20240315", LastSeq: 4}).Error)
	taken := &models.Dossier{
		Numero:         strPtr("DOS-20240315-0005"),
		Title:          "Inséré à la main",
		Status:         models.StatusRecu,
		ContactName:    strPtr("Awa"),
		ContactSurname: strPtr("Diallo"),
		ContactEmail:   strPtr("awa@example.com"),
	}
	require.NoError(t, db.Create(taken).Error)

	assert.Equal(t, "DOS-20240315-0006", GenerateNumero(db, at))
}

func TestParseNumeroSequence(t *testing.T) {
	seq, ok := ParseNumeroSequence("DOS-20240315-0042", "20240315")
	assert.True(t, ok)
	assert.Equal(t, 42, seq)

	_, ok = ParseNumeroSequence("DOS-20240316-0042", "20240315")
	assert.False(t, ok)
	_, ok = ParseNumeroSequence("DOS-20240315-abcd", "20240315")
	assert.False(t, ok)
	assert.Equal(t, fmt.Sprintf("DOS-%d", int64(1700000000000)), fallbackNumero(time.UnixMilli(1700000000000)))
}

func TestCreateDossier(t *testing.T) {
	db := setupTestDB(t)
	admin := createTestUser(t, db, models.RoleAdmin, "admin@cabinet.fr")
	superadmin := createTestUser(t, db, models.RoleSuperadmin, "boss@cabinet.fr")
	inactive := createTestUser(t, db, models.RoleAdmin, "old@cabinet.fr")
	require.NoError(t, db.Model(inactive).UpdateColumn("is_active", false).Error)
	client := createTestUser(t, db, models.RoleClient, "client@example.com")

	t.Run("public submission notifies active admins", func(t *testing.T) {
		d, err := CreateDossier(db, nil, DossierInput{
			Title: "Demande de visa",
			Owner: models.AnonymousOwner{Name: "Awa", Surname: "Diallo", Email: "Awa@Example.com"},
		})
		require.NoError(t, err)
		require.NotNil(t, d.Numero)
		assert.Regexp(t, numeroPattern, *d.Numero)
		assert.Equal(t, models.StatusRecu, d.Status)
		assert.Equal(t, "awa@example.com", *d.ContactEmail)
		assert.Nil(t, d.UserID)

		assert.Len(t, outboxFor(t, db, admin.ID), 1)
		assert.Len(t, outboxFor(t, db, superadmin.ID), 1)
		assert.Empty(t, outboxFor(t, db, inactive.ID))
	})

	t.Run("staff creation notifies the owner", func(t *testing.T) {
		d := createRegisteredDossier(t, db, admin, client)
		assert.Equal(t, client.ID, *d.UserID)
		assert.Equal(t, admin.ID, *d.CreatedByID)

		rows := outboxFor(t, db, client.ID)
		require.Len(t, rows, 1)
		assert.Equal(t, models.NotificationDossierCreated, rows[0].Type)
	})

	t.Run("missing owner is rejected", func(t *testing.T) {
		_, err := CreateDossier(db, admin, DossierInput{Title: "Sans client"})
		assert.ErrorIs(t, err, models.ErrOwnerMissing)
	})

	t.Run("incomplete anonymous contact is rejected", func(t *testing.T) {
		_, err := CreateDossier(db, nil, DossierInput{
			Title: "Incomplet",
			Owner: models.AnonymousOwner{Name: "Awa", Email: "awa@example.com"},
		})
		assert.ErrorIs(t, err, models.ErrOwnerIncomplete)
	})

	t.Run("unknown category is a validation error", func(t *testing.T) {
		_, err := CreateDossier(db, admin, DossierInput{
			Title:    "Catégorie",
			Category: "divorce",
			Owner:    models.RegisteredOwner{UserID: client.ID},
		})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("client cannot pre-assign", func(t *testing.T) {
		_, err := CreateDossier(db, client, DossierInput{
			Title:        "Assigné",
			Owner:        models.RegisteredOwner{UserID: client.ID},
			AssignedToID: &admin.ID,
		})
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestCreateDossierNumerosIncrease(t *testing.T) {
	db := setupTestDB(t)
	admin := createTestUser(t, db, models.RoleAdmin, "admin@cabinet.fr")
	client := createTestUser(t, db, models.RoleClient, "client@example.com")

	seen := map[string]bool{}
	previous := 0
	for i := 0; i < 5; i++ {
		d := createRegisteredDossier(t, db, admin, client)
		assert.False(t, seen[*d.Numero])
		seen[*d.Numero] = true
		seq, ok := ParseNumeroSequence(*d.Numero, NumeroDay(d.CreatedAt))
		require.True(t, ok)
		assert.Greater(t, seq, previous)
		previous = seq
	}
}

func TestChangeDossierStatus(t *testing.T) {
	db := setupTestDB(t)
	admin := createTestUser(t, db, models.RoleAdmin, "admin@cabinet.fr")
	client := createTestUser(t, db, models.RoleClient, "client@example.com")
	d := createRegisteredDossier(t, db, admin, client)
	baseline := len(outboxFor(t, db, client.ID))

	changed, err := ChangeDossierStatus(db, admin, d, models.StatusAccepte, "")
	require.NoError(t, err)
	assert.True(t, changed)

	rows := outboxFor(t, db, client.ID)
	require.Len(t, rows, baseline+1)
	last := rows[len(rows)-1]
	assert.Equal(t, models.NotificationDossierStatusChange, last.Type)
	assert.Contains(t, last.Message, "Accepté")

	// Same status: no write, no notification
	changed, err = ChangeDossierStatus(db, admin, d, models.StatusAccepte, "")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, outboxFor(t, db, client.ID), baseline+1)

	// Skipping stages is rejected
	_, err = ChangeDossierStatus(db, admin, d, models.StatusDepose, "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	// Caller-supplied message wins
	_, err = ChangeDossierStatus(db, admin, d, models.StatusAttenteOnboarding, "Merci de compléter votre profil.")
	require.NoError(t, err)
	rows = outboxFor(t, db, client.ID)
	assert.Equal(t, "Merci de compléter votre profil.", rows[len(rows)-1].Message)

	// Clients cannot change status
	_, err = ChangeDossierStatus(db, client, d, models.StatusEnCoursInstruction, "")
	assert.ErrorIs(t, err, ErrForbidden)

	stored, err := GetDossier(db, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAttenteOnboarding, stored.Status)
}

func TestChangeDossierStatusNotifiesAnonymousOwnerByEmail(t *testing.T) {
	db := setupTestDB(t)
	admin := createTestUser(t, db, models.RoleAdmin, "admin@cabinet.fr")

	d, err := CreateDossier(db, nil, DossierInput{
		Title: "Avant inscription",
		Owner: models.AnonymousOwner{Name: "Awa", Surname: "Diallo", Email: "awa@example.com"},
	})
	require.NoError(t, err)

	// The visitor registers later with a differently-cased address
	client := createTestUser(t, db, models.RoleClient, "AWA@example.com")
	assert.True(t, CanAccessDossier(client, d))

	_, err = ChangeDossierStatus(db, admin, d, models.StatusAccepte, "")
	require.NoError(t, err)
	assert.Len(t, outboxFor(t, db, client.ID), 1)
}

func TestRefuseDossier(t *testing.T) {
	db := setupTestDB(t)
	admin := createTestUser(t, db, models.RoleAdmin, "admin@cabinet.fr")
	client := createTestUser(t, db, models.RoleClient, "client@example.com")
	d := createRegisteredDossier(t, db, admin, client)

	changed, err := ChangeDossierStatus(db, admin, d, models.StatusRefuse, "")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.StatusRefuse, d.Status)
	assert.Equal(t, DefaultRefusalReason, d.RefusalReason)

	rows := outboxFor(t, db, client.ID)
	assert.Equal(t, models.NotificationDossierRefused, rows[len(rows)-1].Type)

	// Refused is terminal
	_, err = ChangeDossierStatus(db, admin, d, models.StatusAccepte, "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestAssignDossier(t *testing.T) {
	db := setupTestDB(t)
	admin := createTestUser(t, db, models.RoleAdmin, "admin@cabinet.fr")
	other := createTestUser(t, db, models.RoleSuperadmin, "boss@cabinet.fr")
	avocat := createTestUser(t, db, models.RoleAvocat, "avocat@cabinet.fr")
	client := createTestUser(t, db, models.RoleClient, "client@example.com")
	d := createRegisteredDossier(t, db, admin, client)
	baseline := len(outboxFor(t, db, client.ID))

	t.Run("client assignee is rejected", func(t *testing.T) {
		_, err := AssignDossier(db, admin, d, &client.ID)
		assert.ErrorIs(t, err, ErrInvalidAssignee)
	})

	t.Run("non-admin staff assignee is rejected", func(t *testing.T) {
		_, err := AssignDossier(db, admin, d, &avocat.ID)
		assert.ErrorIs(t, err, ErrInvalidAssignee)
	})

	t.Run("non-admin actor is forbidden", func(t *testing.T) {
		_, err := AssignDossier(db, avocat, d, &admin.ID)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("admin assignee notifies the owner once", func(t *testing.T) {
		changed, err := AssignDossier(db, admin, d, &other.ID)
		require.NoError(t, err)
		assert.True(t, changed)

		rows := outboxFor(t, db, client.ID)
		require.Len(t, rows, baseline+1)
		assert.Equal(t, models.NotificationDossierAssigned, rows[len(rows)-1].Type)
	})

	t.Run("same assignee is a no-op", func(t *testing.T) {
		changed, err := AssignDossier(db, admin, d, &other.ID)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Len(t, outboxFor(t, db, client.ID), baseline+1)
	})

	t.Run("unassign", func(t *testing.T) {
		changed, err := AssignDossier(db, admin, d, nil)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Nil(t, d.AssignedToID)
		rows := outboxFor(t, db, client.ID)
		assert.Equal(t, models.NotificationDossierUnassigned, rows[len(rows)-1].Type)
	})
}

func TestUpdateDossierFieldsByOwner(t *testing.T) {
	db := setupTestDB(t)
	admin := createTestUser(t, db, models.RoleAdmin, "admin@cabinet.fr")
	client := createTestUser(t, db, models.RoleClient, "client@example.com")
	d := createRegisteredDossier(t, db, admin, client)
	_, err := AssignDossier(db, admin, d, &admin.ID)
	require.NoError(t, err)

	title := "Nouveau titre"
	require.NoError(t, UpdateDossierFields(db, client, d, DossierPatch{Title: &title}))
	rows := outboxFor(t, db, admin.ID)
	assert.Equal(t, models.NotificationDossierUpdated, rows[len(rows)-1].Type)

	priority := models.PriorityUrgente
	assert.ErrorIs(t, UpdateDossierFields(db, client, d, DossierPatch{Priority: &priority}), ErrForbidden)

	_, err = ChangeDossierStatus(db, admin, d, models.StatusAccepte, "")
	require.NoError(t, err)
	assert.ErrorIs(t, UpdateDossierFields(db, client, d, DossierPatch{Title: &title}), ErrForbidden)
}

func TestDeleteDossierNotifiesOwner(t *testing.T) {
	db := setupTestDB(t)
	admin := createTestUser(t, db, models.RoleAdmin, "admin@cabinet.fr")
	client := createTestUser(t, db, models.RoleClient, "client@example.com")
	d := createRegisteredDossier(t, db, admin, client)

	assert.ErrorIs(t, DeleteDossier(db, client, d), ErrForbidden)
	require.NoError(t, DeleteDossier(db, admin, d))

	_, err := GetDossier(db, d.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	rows := outboxFor(t, db, client.ID)
	assert.Equal(t, models.NotificationDossierDeleted, rows[len(rows)-1].Type)
}

func TestDossierChangesSurviveOutboxFailure(t *testing.T) {
	db := setupTestDB(t)
	admin := createTestUser(t, db, models.RoleAdmin, "admin@cabinet.fr")
	client := createTestUser(t, db, models.RoleClient, "client@example.com")
	d := createRegisteredDossier(t, db, client, client)
	failOutboxWrites(t, db)

	changed, err := ChangeDossierStatus(db, admin, d, models.StatusAccepte, "")
	require.NoError(t, err)
	assert.True(t, changed)

	reloaded, err := GetDossier(db, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepte, reloaded.Status)
	assert.Empty(t, outboxFor(t, db, client.ID))

	changed, err = AssignDossier(db, admin, reloaded, strPtr(admin.ID))
	require.NoError(t, err)
	assert.True(t, changed)

	created, err := CreateDossier(db, nil, DossierInput{
		Title: "Demande de naturalisation",
		Owner: models.AnonymousOwner{Name: "Awa", Surname: "Diallo", Email: "awa@example.com"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	require.NoError(t, DeleteDossier(db, admin, reloaded))
	_, err = GetDossier(db, d.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateDossierIsAllOrNothing(t *testing.T) {
	db := setupTestDB(t)
	admin := createTestUser(t, db, models.RoleAdmin, "admin@cabinet.fr")
	client := createTestUser(t, db, models.RoleClient, "client@example.com")
	d := createRegisteredDossier(t, db, client, client)

	title := "Changed"
	_, err := UpdateDossier(db, admin, d, DossierUpdate{
		Patch:      DossierPatch{Title: &title},
		AssignedTo: strPtr(client.ID),
	})
	assert.ErrorIs(t, err, ErrInvalidAssignee)
	assert.Equal(t, "Renouvellement titre de séjour", d.Title)

	priority := models.PriorityUrgente
	target := models.StatusGainCause
	_, err = UpdateDossier(db, admin, d, DossierUpdate{
		Patch:  DossierPatch{Priority: &priority},
		Status: &target,
	})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	reloaded, err := GetDossier(db, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renouvellement titre de séjour", reloaded.Title)
	assert.Equal(t, models.PriorityNormale, reloaded.Priority)

	accepte := models.StatusAccepte
	changes, err := UpdateDossier(db, admin, d, DossierUpdate{
		Patch:      DossierPatch{Title: &title},
		AssignedTo: strPtr(admin.ID),
		Status:     &accepte,
	})
	require.NoError(t, err)
	assert.True(t, changes.Fields)
	assert.True(t, changes.Assignment)
	assert.True(t, changes.Status)
	assert.Equal(t, models.StatusRecu, changes.FromStatus)

	reloaded, err = GetDossier(db, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Changed", reloaded.Title)
	assert.Equal(t, models.StatusAccepte, reloaded.Status)
	require.NotNil(t, reloaded.AssignedToID)
	assert.Equal(t, admin.ID, *reloaded.AssignedToID)
}

func TestDossierAccess(t *testing.T) {
	db := setupTestDB(t)
	admin := createTestUser(t, db, models.RoleAdmin, "admin@cabinet.fr")
	avocat := createTestUser(t, db, models.RoleAvocat, "avocat@cabinet.fr")
	client := createTestUser(t, db, models.RoleClient, "client@example.com")
	stranger := createTestUser(t, db, models.RoleClient, "stranger@example.com")
	d := createRegisteredDossier(t, db, admin, client)

	assert.True(t, CanAccessDossier(admin, d))
	assert.True(t, CanAccessDossier(client, d))
	assert.False(t, CanAccessDossier(stranger, d))
	assert.False(t, CanAccessDossier(avocat, d))
	assert.False(t, CanManageDossier(client, d))

	mine, total, err := ListOwnDossiers(db, client, DossierFilters{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, mine, 1)

	staff, total, err := ListStaffDossiers(db, avocat, DossierFilters{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, staff)

	all, total, err := ListStaffDossiers(db, admin, DossierFilters{Search: "renouvellement"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, all, 1)
}

func TestLoadDossierLinks(t *testing.T) {
	db := setupTestDB(t)
	admin := createTestUser(t, db, models.RoleAdmin, "admin@example.com")
	avocat := createTestUser(t, db, models.RoleAvocat, "avocat@example.com")
	client := createTestUser(t, db, models.RoleClient, "client@example.com")
	d := createRegisteredDossier(t, db, admin, client)

	require.NoError(t, db.Create(&models.Document{
		UserID: client.ID, UploadedByID: client.ID, DossierID: &d.ID,
		FileName: "passeport.pdf", OriginalName: "passeport.pdf", StorageKey: "documents/passeport.pdf", Size: 10,
	}).Error)
	require.NoError(t, db.Create(&models.Message{
		SenderID: client.ID, Subject: "Pièces envoyées", Body: "Voici mon passeport", DossierID: &d.ID,
		Recipients: []models.MessageRecipient{{UserID: admin.ID}},
	}).Error)
	require.NoError(t, db.Create(&models.Message{
		SenderID: admin.ID, Subject: "Stratégie", Body: "Note interne", DossierID: &d.ID,
		Recipients: []models.MessageRecipient{{UserID: avocat.ID}},
	}).Error)
	require.NoError(t, db.Create(&models.RendezVous{
		Date: "2030-01-07", Heure: "10:00", Statut: models.RendezVousConfirme,
		UserID: &client.ID, Name: "Client", Surname: "Test", Email: client.Email, DossierID: &d.ID,
	}).Error)
	require.NoError(t, db.Create(&models.RendezVous{
		Date: "2030-01-07", Heure: "11:00", Statut: models.RendezVousConfirme,
		Name: "Tiers", Surname: "Témoin", Email: "temoin@example.com", DossierID: &d.ID,
	}).Error)

	t.Run("admin sees everything", func(t *testing.T) {
		require.NoError(t, LoadDossierLinks(db, admin, d))
		assert.Len(t, d.Documents, 1)
		assert.Len(t, d.Messages, 2)
		assert.Len(t, d.RendezVous, 2)
	})

	t.Run("owner sees only what they may open", func(t *testing.T) {
		require.NoError(t, LoadDossierLinks(db, client, d))
		assert.Len(t, d.Documents, 1)
		require.Len(t, d.Messages, 1)
		assert.Equal(t, "Pièces envoyées", d.Messages[0].Subject)
		require.Len(t, d.RendezVous, 1)
		assert.Equal(t, "10:00", d.RendezVous[0].Heure)
	})

	t.Run("delete keeps linked items unlinked", func(t *testing.T) {
		require.NoError(t, DeleteDossier(db, admin, d))

		var linked int64
		db.Model(&models.Document{}).Where("dossier_id IS NOT NULL").Count(&linked)
		assert.Zero(t, linked)
		var docs, msgs int64
		db.Model(&models.Document{}).Count(&docs)
		db.Model(&models.Message{}).Count(&msgs)
		assert.EqualValues(t, 1, docs)
		assert.EqualValues(t, 2, msgs)
	})
}
