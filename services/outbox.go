package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"lex_dossier_app_go/logger"
	"lex_dossier_app_go/models"
)

var errAlreadyDelivered = errors.New("outbox entry already delivered")

// NotificationMailer sends the optional email copy of a notification.
type NotificationMailer interface {
	SendNotificationEmail(to string, n *models.Notification) error
}

// OutboxOptions tunes the dispatcher.
type OutboxOptions struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	BaseBackoff  time.Duration
	Mailer       NotificationMailer
}

// DefaultOutboxOptions returns production defaults.
func DefaultOutboxOptions() OutboxOptions {
	return OutboxOptions{
		PollInterval: 5 * time.Second,
		BatchSize:    50,
		MaxAttempts:  5,
		BaseBackoff:  10 * time.Second,
	}
}

// OutboxDispatcher turns outbox rows into notifications.
type OutboxDispatcher struct {
	db   *gorm.DB
	opts OutboxOptions
	now  func() time.Time
}

func NewOutboxDispatcher(db *gorm.DB, opts OutboxOptions) *OutboxDispatcher {
	defaults := DefaultOutboxOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaults.BatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaults.MaxAttempts
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = defaults.BaseBackoff
	}
	return &OutboxDispatcher{db: db, opts: opts, now: time.Now}
}

// Run drains the outbox on every tick until ctx is cancelled.
func (d *OutboxDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	logger.Infof("[OUTBOX] dispatcher started (interval: %s)", d.opts.PollInterval)
	for {
		select {
		case <-ctx.Done():
			logger.Infof("[OUTBOX] dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.DrainOnce(ctx); err != nil {
				logger.Error(err, "[OUTBOX] drain failed")
			}
		}
	}
}

// DrainOnce delivers every due entry and returns how many succeeded.
func (d *OutboxDispatcher) DrainOnce(ctx context.Context) (int, error) {
	delivered := 0
	for {
		var batch []models.NotificationOutbox
		err := d.db.WithContext(ctx).
			Where("status = ? AND next_attempt_at <= ?", models.OutboxPending, d.now()).
			Order("created_at ASC").
			Limit(d.opts.BatchSize).
			Find(&batch).Error
		if err != nil {
			return delivered, fmt.Errorf("failed to load outbox: %w", err)
		}
		if len(batch) == 0 {
			return delivered, nil
		}

		progressed := false
		for i := range batch {
			if ctx.Err() != nil {
				return delivered, ctx.Err()
			}
			entry := &batch[i]
			n, err := d.deliver(ctx, entry)
			switch {
			case err == nil:
				delivered++
				progressed = true
				notificationsDelivered.WithLabelValues(entry.Type).Inc()
				d.sendEmail(ctx, n)
			case errors.Is(err, errAlreadyDelivered):
				progressed = true
			default:
				notificationFailures.WithLabelValues("in_app").Inc()
				d.recordFailure(ctx, entry, err)
			}
		}
		if !progressed || len(batch) < d.opts.BatchSize {
			return delivered, nil
		}
	}
}

func (d *OutboxDispatcher) deliver(ctx context.Context, entry *models.NotificationOutbox) (*models.Notification, error) {
	n := &models.Notification{
		ID:       uuid.New().String(),
		UserID:   entry.UserID,
		Type:     entry.Type,
		Title:    entry.Title,
		Message:  entry.Message,
		LinkURL:  entry.LinkURL,
		Metadata: entry.Metadata,
	}

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(n).Error; err != nil {
			return err
		}
		now := d.now()
		res := tx.Model(&models.NotificationOutbox{}).
			Where("id = ? AND status = ?", entry.ID, models.OutboxPending).
			Updates(map[string]interface{}{
				"status":          models.OutboxDelivered,
				"delivered_at":    now,
				"notification_id": n.ID,
				"attempts":        entry.Attempts + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errAlreadyDelivered
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (d *OutboxDispatcher) recordFailure(ctx context.Context, entry *models.NotificationOutbox, cause error) {
	attempts := entry.Attempts + 1
	status := models.OutboxPending
	if attempts >= d.opts.MaxAttempts {
		status = models.OutboxFailed
	}
	next := d.now().Add(d.opts.BaseBackoff * time.Duration(1<<uint(attempts-1)))

	err := d.db.WithContext(ctx).Model(&models.NotificationOutbox{}).
		Where("id = ?", entry.ID).
		Updates(map[string]interface{}{
			"status":          status,
			"attempts":        attempts,
			"next_attempt_at": next,
			"last_error":      cause.Error(),
		}).Error
	if err != nil {
		logger.Error(err, "[OUTBOX] failed to record delivery failure")
	}
	logger.WithFields(logrus.Fields{
		"outbox_id": entry.ID,
		"attempts":  attempts,
		"status":    status,
		"error":     cause.Error(),
	}).Warn("[OUTBOX] notification delivery failed")
}

func (d *OutboxDispatcher) sendEmail(ctx context.Context, n *models.Notification) {
	if d.opts.Mailer == nil {
		return
	}
	var user models.User
	if err := d.db.WithContext(ctx).Select("id", "email", "is_active").First(&user, "id = ?", n.UserID).Error; err != nil {
		return
	}
	if !user.IsActive || user.Email == "" {
		return
	}
	if err := d.opts.Mailer.SendNotificationEmail(user.Email, n); err != nil {
		notificationFailures.WithLabelValues("email").Inc()
		logger.WithFields(logrus.Fields{"notification_id": n.ID, "error": err.Error()}).
			Warn("[OUTBOX] failed to send notification email")
	}
}

// OutboxStats counts outbox rows per status.
func OutboxStats(db *gorm.DB) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := db.Model(&models.NotificationOutbox{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox stats: %w", err)
	}
	stats := map[string]int64{
		models.OutboxPending:   0,
		models.OutboxDelivered: 0,
		models.OutboxFailed:    0,
	}
	for _, r := range rows {
		stats[r.Status] = r.Count
	}
	return stats, nil
}

// RetryFailedOutbox puts failed entries back in the queue.
func RetryFailedOutbox(db *gorm.DB) (int64, error) {
	res := db.Model(&models.NotificationOutbox{}).
		Where("status = ?", models.OutboxFailed).
		Updates(map[string]interface{}{
			"status":          models.OutboxPending,
			"attempts":        0,
			"next_attempt_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}
