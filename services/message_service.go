package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lex_dossier_app_go/logger"
	"lex_dossier_app_go/models"
)

// Mailboxes accepted by ListMessages.
const (
	BoxInbox    = "inbox"
	BoxSent     = "sent"
	BoxArchived = "archived"
)

// MessageInput is the payload of a new message.
type MessageInput struct {
	Subject      string
	Body         string
	RecipientIDs []string
	DossierID    *string
}

func messageLink(id string) string {
	return "/messages/" + id
}

// resolveRecipients addresses client messages to every active admin and
// checks explicit lists otherwise.
func resolveRecipients(db *gorm.DB, sender *models.User, requested []string) ([]string, error) {
	if !sender.IsStaff() {
		admins, err := ActiveAdminIDs(db)
		if err != nil {
			return nil, err
		}
		if len(admins) == 0 {
			return nil, NewValidationError("recipients", "no active administrator can receive this message")
		}
		return admins, nil
	}

	seen := make(map[string]bool, len(requested))
	ids := make([]string, 0, len(requested))
	for _, id := range requested {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, NewValidationError("recipients", "at least one recipient is required")
	}

	var count int64
	err := db.Model(&models.User{}).Where("id IN ? AND is_active = ?", ids, true).Count(&count).Error
	if err != nil {
		return nil, fmt.Errorf("failed to check recipients: %w", err)
	}
	if int(count) != len(ids) {
		return nil, NewValidationError("recipients", "every recipient must be an existing active user")
	}
	return ids, nil
}

// SendMessage stores attachments, then writes the message, its recipients
// and one notification per recipient in a single transaction.
func SendMessage(ctx context.Context, db *gorm.DB, storage StorageProvider, sender *models.User, in MessageInput, files []*multipart.FileHeader) (*models.Message, error) {
	if sender == nil {
		return nil, ErrForbidden
	}
	subject := SanitizeText(in.Subject)
	body := SanitizeText(in.Body)
	if subject == "" {
		return nil, NewValidationError("subject", "subject is required")
	}
	if body == "" {
		return nil, NewValidationError("body", "body is required")
	}
	if len(files) > MaxAttachmentCount {
		return nil, NewValidationError("files", fmt.Sprintf("at most %d attachments are allowed", MaxAttachmentCount))
	}
	for _, f := range files {
		if err := ValidateDocumentUpload(f); err != nil {
			return nil, err
		}
	}
	if in.DossierID != nil && *in.DossierID == "" {
		in.DossierID = nil
	}
	if in.DossierID != nil {
		d, err := GetDossier(db, *in.DossierID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, NewValidationError("dossier_id", "dossier not found")
			}
			return nil, err
		}
		if !CanAccessDossier(sender, d) {
			return nil, ErrForbidden
		}
	}

	recipients, err := resolveRecipients(db, sender, in.RecipientIDs)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		SenderID:  sender.ID,
		Subject:   subject,
		Body:      body,
		DossierID: in.DossierID,
	}

	var storedKeys []string
	cleanup := func() {
		for _, key := range storedKeys {
			if err := storage.Delete(ctx, key); err != nil {
				logger.Error(err, "[UPLOAD] failed to remove orphaned attachment "+key)
			}
		}
	}

	for i, f := range files {
		stored, err := storage.Upload(ctx, f, MessageAttachmentKey(sender.ID, f.Filename))
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to store attachment: %w", err)
		}
		storedKeys = append(storedKeys, stored.Key)
		msg.Attachments = append(msg.Attachments, models.MessageAttachment{
			Position:     i,
			OriginalName: filepath.Base(f.Filename),
			StorageKey:   stored.Key,
			MimeType:     stored.MimeType,
			Size:         stored.FileSize,
		})
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(msg).Error; err != nil {
			return err
		}
		for i := range msg.Attachments {
			msg.Attachments[i].MessageID = msg.ID
		}
		if len(msg.Attachments) > 0 {
			if err := tx.Create(&msg.Attachments).Error; err != nil {
				return err
			}
		}

		rows := make([]models.MessageRecipient, 0, len(recipients))
		for _, id := range recipients {
			rows = append(rows, models.MessageRecipient{MessageID: msg.ID, UserID: id})
		}
		if err := tx.Omit(clause.Associations).Create(&rows).Error; err != nil {
			return err
		}
		msg.Recipients = rows

		EnqueueBestEffort(tx, FanOut(recipients, NotificationDraft{
			Type:     models.NotificationMessageReceived,
			Title:    "Nouveau message",
			Message:  fmt.Sprintf("%s vous a envoyé un message : « %s ».", sender.FullName(), msg.Subject),
			LinkURL:  messageLink(msg.ID),
			Metadata: map[string]interface{}{"message_id": msg.ID},
		})...)
		return nil
	})
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	return msg, nil
}

// GetMessage loads a message with its sender, recipients and attachments.
func GetMessage(db *gorm.DB, id string) (*models.Message, error) {
	var msg models.Message
	err := db.Preload("Sender").
		Preload("Recipients").
		Preload("Recipients.User").
		Preload("Attachments", func(q *gorm.DB) *gorm.DB { return q.Order("position ASC") }).
		First(&msg, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load message: %w", err)
	}
	return &msg, nil
}

func recipientState(msg *models.Message, userID string) *models.MessageRecipient {
	for i := range msg.Recipients {
		if msg.Recipients[i].UserID == userID {
			return &msg.Recipients[i]
		}
	}
	return nil
}

// CanAccessMessage allows the sender, any recipient and admins.
func CanAccessMessage(user *models.User, msg *models.Message) bool {
	if user == nil || msg == nil {
		return false
	}
	return user.IsAdmin() || msg.SenderID == user.ID || recipientState(msg, user.ID) != nil
}

// MessageView is a message as seen by one user.
type MessageView struct {
	models.Message
	IsRead     bool `json:"is_read"`
	IsArchived bool `json:"is_archived"`
}

// ViewFor computes the per-viewer flags of msg.
func ViewFor(msg models.Message, userID string) MessageView {
	view := MessageView{Message: msg}
	if r := recipientState(&msg, userID); r != nil {
		view.IsRead = r.ReadAt != nil
		view.IsArchived = r.ArchivedAt != nil
		return view
	}
	if msg.SenderID == userID {
		view.IsRead = true
		view.IsArchived = msg.SenderArchivedAt != nil
	}
	return view
}

// ListMessages returns one mailbox of user, newest first.
func ListMessages(db *gorm.DB, user *models.User, box string, page, limit int) ([]MessageView, int64, error) {
	query := db.Model(&models.Message{})
	switch box {
	case "", BoxInbox:
		query = query.Where("id IN (?)", db.Model(&models.MessageRecipient{}).
			Select("message_id").Where("user_id = ? AND archived_at IS NULL", user.ID))
	case BoxSent:
		query = query.Where("sender_id = ? AND sender_archived_at IS NULL", user.ID)
	case BoxArchived:
		query = query.Where("id IN (?) OR (sender_id = ? AND sender_archived_at IS NOT NULL)",
			db.Model(&models.MessageRecipient{}).Select("message_id").
				Where("user_id = ? AND archived_at IS NOT NULL", user.ID),
			user.ID)
	default:
		return nil, 0, NewValidationError("box", "unknown mailbox")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	page, limit = NormalizePage(page, limit)
	var msgs []models.Message
	err := query.Preload("Sender").
		Preload("Recipients").
		Preload("Attachments", func(q *gorm.DB) *gorm.DB { return q.Order("position ASC") }).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}

	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, ViewFor(m, user.ID))
	}
	return views, total, nil
}

// MarkMessageRead sets the read receipt of user once; repeated calls change nothing.
func MarkMessageRead(db *gorm.DB, user *models.User, msg *models.Message) (bool, error) {
	res := db.Model(&models.MessageRecipient{}).
		Where("message_id = ? AND user_id = ? AND read_at IS NULL", msg.ID, user.ID).
		UpdateColumn("read_at", time.Now())
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark message as read: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	if recipientState(msg, user.ID) == nil && msg.SenderID != user.ID {
		return false, ErrForbidden
	}
	return false, nil
}

// ArchiveMessage hides msg from the user's inbox or sent box.
func ArchiveMessage(db *gorm.DB, user *models.User, msg *models.Message) error {
	now := time.Now()
	if recipientState(msg, user.ID) != nil {
		err := db.Model(&models.MessageRecipient{}).
			Where("message_id = ? AND user_id = ? AND archived_at IS NULL", msg.ID, user.ID).
			UpdateColumn("archived_at", now).Error
		if err != nil {
			return fmt.Errorf("failed to archive message: %w", err)
		}
		return nil
	}
	if msg.SenderID == user.ID {
		err := db.Model(&models.Message{}).
			Where("id = ? AND sender_archived_at IS NULL", msg.ID).
			UpdateColumn("sender_archived_at", now).Error
		if err != nil {
			return fmt.Errorf("failed to archive message: %w", err)
		}
		return nil
	}
	return ErrForbidden
}

// UnreadMessageCount counts unread, non-archived messages addressed to userID.
func UnreadMessageCount(db *gorm.DB, userID string) (int64, error) {
	var count int64
	err := db.Model(&models.MessageRecipient{}).
		Where("user_id = ? AND read_at IS NULL AND archived_at IS NULL", userID).
		Count(&count).Error
	return count, err
}

// GetAttachment returns the attachment at position.
func GetAttachment(msg *models.Message, position int) (*models.MessageAttachment, error) {
	for i := range msg.Attachments {
		if msg.Attachments[i].Position == position {
			return &msg.Attachments[i], nil
		}
	}
	return nil, ErrNotFound
}
