package services

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"lex_dossier_app_go/logger"
	"lex_dossier_app_go/models"
)

// NotificationDraft is a notification waiting to be written to the outbox.
type NotificationDraft struct {
	UserID   string
	Type     string
	Title    string
	Message  string
	LinkURL  string
	Metadata map[string]interface{}
}

// EnqueueNotifications writes drafts to the outbox using tx, so they
// commit or roll back together with the caller's mutation. Side-effect
// notices go through EnqueueBestEffort instead.
func EnqueueNotifications(tx *gorm.DB, drafts ...NotificationDraft) error {
	if len(drafts) == 0 {
		return nil
	}
	rows := make([]models.NotificationOutbox, 0, len(drafts))
	for _, d := range drafts {
		if d.UserID == "" {
			continue
		}
		rows = append(rows, models.NotificationOutbox{
			UserID:   d.UserID,
			Type:     d.Type,
			Title:    d.Title,
			Message:  d.Message,
			LinkURL:  d.LinkURL,
			Metadata: d.Metadata,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to enqueue notifications: %w", err)
	}
	for _, r := range rows {
		notificationsEnqueued.WithLabelValues(r.Type).Inc()
	}
	return nil
}

// FanOut copies a draft to each user id.
func FanOut(userIDs []string, draft NotificationDraft) []NotificationDraft {
	drafts := make([]NotificationDraft, 0, len(userIDs))
	for _, id := range userIDs {
		d := draft
		d.UserID = id
		drafts = append(drafts, d)
	}
	return drafts
}

type NotificationService struct {
	DB *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{DB: db}
}

// List returns a page of the user's notifications, newest first.
func (s *NotificationService) List(userID string, unreadOnly bool, page, limit int) ([]models.Notification, int64, error) {
	query := s.DB.Model(&models.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	page, limit = NormalizePage(page, limit)
	var notifications []models.Notification
	err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, total, nil
}

func (s *NotificationService) UnreadCount(userID string) (int64, error) {
	var count int64
	err := s.DB.Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&count).Error
	return count, err
}

// MarkAsRead is idempotent; an already read notification keeps its first read time.
func (s *NotificationService) MarkAsRead(notificationID, userID string) error {
	var n models.Notification
	if err := s.DB.First(&n, "id = ? AND user_id = ?", notificationID, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if n.ReadAt != nil {
		return nil
	}
	return s.DB.Model(&models.Notification{}).
		Where("id = ? AND read_at IS NULL", n.ID).
		Update("read_at", time.Now()).Error
}

func (s *NotificationService) MarkAllAsRead(userID string) (int64, error) {
	res := s.DB.Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", time.Now())
	return res.RowsAffected, res.Error
}

func (s *NotificationService) Delete(notificationID, userID string) error {
	res := s.DB.Where("id = ? AND user_id = ?", notificationID, userID).Delete(&models.Notification{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// EnqueueBestEffort enqueues drafts in a transaction of their own, which
// becomes a savepoint when db is already a transaction. A failure is
// logged and rolled back alone; the caller's writes are kept.
func EnqueueBestEffort(db *gorm.DB, drafts ...NotificationDraft) {
	if len(drafts) == 0 {
		return
	}
	enqueueBestEffort(db, func(*gorm.DB) ([]NotificationDraft, error) {
		return drafts, nil
	})
}

// enqueueBestEffort runs build and the enqueue in the same savepoint, so
// a failed recipient lookup cannot abort the caller's transaction either.
func enqueueBestEffort(db *gorm.DB, build func(tx *gorm.DB) ([]NotificationDraft, error)) {
	err := db.Transaction(func(tx *gorm.DB) error {
		drafts, err := build(tx)
		if err != nil {
			return err
		}
		return EnqueueNotifications(tx, drafts...)
	})
	if err != nil {
		notificationFailures.WithLabelValues("enqueue").Inc()
		logger.Error(err, "[OUTBOX] best-effort enqueue failed")
	}
}
