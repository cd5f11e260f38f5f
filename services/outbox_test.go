package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lex_dossier_app_go/models"
)

type fakeMailer struct {
	sent []string
	err  error
}

func (m *fakeMailer) SendNotificationEmail(to string, n *models.Notification) error {
	m.sent = append(m.sent, to)
	return m.err
}

func TestOutboxDrainDeliversNotifications(t *testing.T) {
	db := setupTestDB(t)
	client := createTestUser(t, db, models.RoleClient, "client@example.com")
	inactive := createTestUser(t, db, models.RoleClient, "gone@example.com")
	require.NoError(t, db.Model(inactive).UpdateColumn("is_active", false).Error)

	require.NoError(t, EnqueueNotifications(db,
		NotificationDraft{UserID: client.ID, Type: models.NotificationTaskAssigned, Title: "Un", Message: "premier"},
		NotificationDraft{UserID: client.ID, Type: models.NotificationTaskAssigned, Title: "Deux", Message: "second"},
		NotificationDraft{UserID: inactive.ID, Type: models.NotificationTaskAssigned, Title: "Trois"},
		NotificationDraft{Type: models.NotificationTaskAssigned, Title: "Sans destinataire"},
	))

	mailer := &fakeMailer{}
	dispatcher := NewOutboxDispatcher(db, OutboxOptions{BatchSize: 2, Mailer: mailer})
	delivered, err := dispatcher.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, delivered)

	svc := NewNotificationService(db)
	list, total, err := svc.List(client.ID, false, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, list, 2)

	// Only active users get the email copy
	assert.Equal(t, []string{"client@example.com", "client@example.com"}, mailer.sent)

	stats, err := OutboxStats(db)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats[models.OutboxDelivered])
	assert.Equal(t, int64(0), stats[models.OutboxPending])

	// A second drain finds nothing to do
	delivered, err = dispatcher.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, delivered)
}

func TestOutboxDeliverIsSingleShot(t *testing.T) {
	db := setupTestDB(t)
	client := createTestUser(t, db, models.RoleClient, "client@example.com")
	require.NoError(t, EnqueueNotifications(db, NotificationDraft{UserID: client.ID, Type: models.NotificationTaskUpdated, Title: "x"}))

	var entry models.NotificationOutbox
	require.NoError(t, db.First(&entry).Error)

	dispatcher := NewOutboxDispatcher(db, OutboxOptions{})
	_, err := dispatcher.deliver(context.Background(), &entry)
	require.NoError(t, err)
	_, err = dispatcher.deliver(context.Background(), &entry)
	assert.ErrorIs(t, err, errAlreadyDelivered)

	var count int64
	db.Model(&models.Notification{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestOutboxFailureBackoffAndRetry(t *testing.T) {
	db := setupTestDB(t)
	client := createTestUser(t, db, models.RoleClient, "client@example.com")
	require.NoError(t, EnqueueNotifications(db, NotificationDraft{UserID: client.ID, Type: models.NotificationTaskUpdated, Title: "x"}))

	var entry models.NotificationOutbox
	require.NoError(t, db.First(&entry).Error)

	fixed := time.Now()
	dispatcher := NewOutboxDispatcher(db, OutboxOptions{MaxAttempts: 2, BaseBackoff: time.Minute})
	dispatcher.now = func() time.Time { return fixed }

	dispatcher.recordFailure(context.Background(), &entry, errors.New("disk full"))
	require.NoError(t, db.First(&entry, "id = ?", entry.ID).Error)
	assert.Equal(t, models.OutboxPending, entry.Status)
	assert.Equal(t, 1, entry.Attempts)
	assert.Equal(t, "disk full", entry.LastError)
	assert.WithinDuration(t, fixed.Add(time.Minute), entry.NextAttemptAt, time.Second)

	// Not due yet
	delivered, err := dispatcher.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, delivered)

	dispatcher.recordFailure(context.Background(), &entry, errors.New("disk full"))
	require.NoError(t, db.First(&entry, "id = ?", entry.ID).Error)
	assert.Equal(t, models.OutboxFailed, entry.Status)

	n, err := RetryFailedOutbox(db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	dispatcher.now = time.Now
	delivered, err = dispatcher.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
}

func TestNotificationService(t *testing.T) {
	db := setupTestDB(t)
	client := createTestUser(t, db, models.RoleClient, "client@example.com")
	other := createTestUser(t, db, models.RoleClient, "other@example.com")
	svc := NewNotificationService(db)

	for i := 0; i < 3; i++ {
		require.NoError(t, db.Create(&models.Notification{UserID: client.ID, Type: models.NotificationTaskUpdated, Title: "n"}).Error)
	}
	var first models.Notification
	require.NoError(t, db.Where("user_id = ?", client.ID).First(&first).Error)

	count, err := svc.UnreadCount(client.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	assert.ErrorIs(t, svc.MarkAsRead(first.ID, other.ID), ErrNotFound)
	require.NoError(t, svc.MarkAsRead(first.ID, client.ID))
	require.NoError(t, svc.MarkAsRead(first.ID, client.ID))

	count, _ = svc.UnreadCount(client.ID)
	assert.Equal(t, int64(2), count)

	unread, total, err := svc.List(client.ID, true, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, unread, 2)

	updated, err := svc.MarkAllAsRead(client.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	assert.ErrorIs(t, svc.Delete(first.ID, other.ID), ErrNotFound)
	require.NoError(t, svc.Delete(first.ID, client.ID))
}
