package services

import (
	"context"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lex_dossier_app_go/models"
)

func TestClientMessageGoesToActiveAdmins(t *testing.T) {
	db := setupTestDB(t)
	storage := NewLocalStorage(t.TempDir())
	admin := createTestUser(t, db, models.RoleAdmin, "admin@cabinet.fr")
	superadmin := createTestUser(t, db, models.RoleSuperadmin, "boss@cabinet.fr")
	inactive := createTestUser(t, db, models.RoleAdmin, "old@cabinet.fr")
	require.NoError(t, db.Model(inactive).UpdateColumn("is_active", false).Error)
	avocat := createTestUser(t, db, models.RoleAvocat, "avocat@cabinet.fr")
	client := createTestUser(t, db, models.RoleClient, "client@example.com")

	// Requested recipients are ignored for clients
	msg, err := SendMessage(context.Background(), db, storage, client, MessageInput{
		Subject:      "Question",
		Body:         "Bonjour, où en est mon dossier ?",
		RecipientIDs: []string{avocat.ID},
	}, nil)
	require.NoError(t, err)

	got := map[string]bool{}
	for _, r := range msg.Recipients {
		got[r.UserID] = true
	}
	assert.Equal(t, map[string]bool{admin.ID: true, superadmin.ID: true}, got)

	assert.Len(t, outboxFor(t, db, admin.ID), 1)
	assert.Len(t, outboxFor(t, db, superadmin.ID), 1)
	assert.Empty(t, outboxFor(t, db, inactive.ID))
	assert.Empty(t, outboxFor(t, db, avocat.ID))
}

func TestClientMessageWithoutAdmins(t *testing.T) {
	db := setupTestDB(t)
	client := createTestUser(t, db, models.RoleClient, "client@example.com")
	_, err := SendMessage(context.Background(), db, NewLocalStorage(t.TempDir()), client, MessageInput{Subject: "a", Body: "b"}, nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestStaffMessageRecipients(t *testing.T) {
	db := setupTestDB(t)
	storage := NewLocalStorage(t.TempDir())
	admin := createTestUser(t, db, models.RoleAdmin, "admin@cabinet.fr")
	client := createTestUser(t, db, models.RoleClient, "client@example.com")
	inactive := createTestUser(t, db, models.RoleClient, "gone@example.com")
	require.NoError(t, db.Model(inactive).UpdateColumn("is_active", false).Error)

	_, err := SendMessage(context.Background(), db, storage, admin, MessageInput{Subject: "a", Body: "b"}, nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = SendMessage(context.Background(), db, storage, admin, MessageInput{
		Subject: "a", Body: "b", RecipientIDs: []string{client.ID, inactive.ID},
	}, nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = SendMessage(context.Background(), db, storage, admin, MessageInput{
		Subject: "a", Body: "b", RecipientIDs: []string{client.ID, "missing"},
	}, nil)
	assert.ErrorIs(t, err, ErrValidation)

	msg, err := SendMessage(context.Background(), db, storage, admin, MessageInput{
		Subject: "Pièces", Body: "Merci d'envoyer votre passeport.", RecipientIDs: []string{client.ID, client.ID},
	}, nil)
	require.NoError(t, err)
	assert.Len(t, msg.Recipients, 1)
	assert.Len(t, outboxFor(t, db, client.ID), 1)
}

func TestMessageReadAndArchive(t *testing.T) {
	db := setupTestDB(t)
	storage := NewLocalStorage(t.TempDir())
	admin := createTestUser(t, db, models.RoleAdmin, "admin@cabinet.fr")
	client := createTestUser(t, db, models.RoleClient, "client@example.com")

	sent, err := SendMessage(context.Background(), db, storage, admin, MessageInput{
		Subject: "Rendez-vous", Body: "À lundi.", RecipientIDs: []string{client.ID},
	}, nil)
	require.NoError(t, err)
	msg, err := GetMessage(db, sent.ID)
	require.NoError(t, err)

	unread, err := UnreadMessageCount(db, client.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	changed, err := MarkMessageRead(db, client, msg)
	require.NoError(t, err)
	assert.True(t, changed)

	// Second read changes nothing and keeps a single receipt
	changed, err = MarkMessageRead(db, client, msg)
	require.NoError(t, err)
	assert.False(t, changed)

	var receipts int64
	db.Model(&models.MessageRecipient{}).Where("message_id = ? AND read_at IS NOT NULL", msg.ID).Count(&receipts)
	assert.Equal(t, int64(1), receipts)

	unread, _ = UnreadMessageCount(db, client.ID)
	assert.Zero(t, unread)

	stranger := createTestUser(t, db, models.RoleClient, "stranger@example.com")
	assert.False(t, CanAccessMessage(stranger, msg))
	_, err = MarkMessageRead(db, stranger, msg)
	assert.ErrorIs(t, err, ErrForbidden)

	inbox, total, err := ListMessages(db, client, BoxInbox, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.True(t, inbox[0].IsRead)

	// Archiving is per viewer
	require.NoError(t, ArchiveMessage(db, client, msg))
	_, total, _ = ListMessages(db, client, BoxInbox, 1, 10)
	assert.Zero(t, total)
	archived, total, _ := ListMessages(db, client, BoxArchived, 1, 10)
	assert.Equal(t, int64(1), total)
	assert.True(t, archived[0].IsArchived)

	outgoing, total, _ := ListMessages(db, admin, BoxSent, 1, 10)
	assert.Equal(t, int64(1), total)
	assert.False(t, outgoing[0].IsArchived)

	require.NoError(t, ArchiveMessage(db, admin, msg))
	_, total, _ = ListMessages(db, admin, BoxSent, 1, 10)
	assert.Zero(t, total)

	assert.ErrorIs(t, ArchiveMessage(db, stranger, msg), ErrForbidden)
	_, _, err = ListMessages(db, admin, "trash", 1, 10)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestMessageAttachments(t *testing.T) {
	db := setupTestDB(t)
	dir := t.TempDir()
	storage := NewLocalStorage(dir)
	admin := createTestUser(t, db, models.RoleAdmin, "admin@cabinet.fr")
	client := createTestUser(t, db, models.RoleClient, "client@example.com")

	files := []*multipart.FileHeader{
		createMockFileHeader(t, "passeport.pdf", []byte("%PDF-1.4 passeport")),
		createMockFileHeader(t, "note.txt", []byte("note")),
	}
	sent, err := SendMessage(context.Background(), db, storage, client, MessageInput{Subject: "Pièces", Body: "Ci-joint."}, files)
	require.NoError(t, err)

	msg, err := GetMessage(db, sent.ID)
	require.NoError(t, err)
	require.Len(t, msg.Attachments, 2)
	assert.True(t, CanAccessMessage(admin, msg))

	att, err := GetAttachment(msg, 1)
	require.NoError(t, err)
	assert.Equal(t, "note.txt", att.OriginalName)
	_, err = os.Stat(filepath.Join(dir, att.StorageKey))
	assert.NoError(t, err)

	_, err = GetAttachment(msg, 5)
	assert.ErrorIs(t, err, ErrNotFound)

	tooMany := make([]*multipart.FileHeader, MaxAttachmentCount+1)
	for i := range tooMany {
		tooMany[i] = createMockFileHeader(t, "note.txt", []byte("x"))
	}
	_, err = SendMessage(context.Background(), db, storage, client, MessageInput{Subject: "a", Body: "b"}, tooMany)
	assert.ErrorIs(t, err, ErrValidation)
}
