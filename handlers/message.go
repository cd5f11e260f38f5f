package handlers

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"lex_dossier_app_go/db"
	"lex_dossier_app_go/middleware"
	"lex_dossier_app_go/models"
	"lex_dossier_app_go/services"
)

// ListMessagesHandler returns one mailbox (?box=inbox|sent|archived).
func ListMessagesHandler(c echo.Context) error {
	pq, err := pageParams(c)
	if err != nil {
		return err
	}
	views, total, err := services.ListMessages(db.DB, middleware.GetCurrentUser(c), c.QueryParam("box"), pq.Page, pq.Limit)
	if err != nil {
		return err
	}
	return paged(c, "messages", views, pq.Page, pq.Limit, total)
}

type sendMessageRequest struct {
	Subject    string   `json:"subject" form:"subject" validate:"required,max=200"`
	Body       string   `json:"body" form:"body" validate:"required"`
	Recipients []string `json:"recipients" form:"recipients"`
	DossierID  string   `json:"dossier_id" form:"dossier_id"`
}

// splitRecipients accepts repeated form values as well as a comma list.
func splitRecipients(values []string) []string {
	var out []string
	for _, v := range values {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}

// SendMessageHandler sends a message, with attachments when posted as
// multipart ("files").
func SendMessageHandler(c echo.Context) error {
	sender := middleware.GetCurrentUser(c)
	var req sendMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	var files []*multipart.FileHeader
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid multipart form")
		}
		files = form.File["files"]
	}

	in := services.MessageInput{
		Subject:      req.Subject,
		Body:         req.Body,
		RecipientIDs: splitRecipients(req.Recipients),
	}
	if req.DossierID != "" {
		in.DossierID = &req.DossierID
	}

	msg, err := services.SendMessage(c.Request().Context(), db.DB, services.Storage, sender, in, files)
	if err != nil {
		return err
	}

	services.LogActivity(db.DB, middleware.ActivityContext(c), services.ActivityEntry{
		Action:      models.ActionMessageSend,
		Description: "Envoi du message « " + msg.Subject + " »",
		Metadata: map[string]interface{}{
			"message_id":  msg.ID,
			"recipients":  len(msg.Recipients),
			"attachments": len(msg.Attachments),
		},
	})
	return created(c, "Message sent", Response{"data": services.ViewFor(*msg, sender.ID)})
}

// UnreadMessagesHandler counts unread inbox messages.
func UnreadMessagesHandler(c echo.Context) error {
	count, err := services.UnreadMessageCount(db.DB, middleware.GetCurrentUser(c).ID)
	if err != nil {
		return err
	}
	return ok(c, Response{"count": count})
}

func loadAccessibleMessage(c echo.Context) (*models.Message, error) {
	msg, err := services.GetMessage(db.DB, c.Param("id"))
	if err != nil {
		return nil, err
	}
	if !services.CanAccessMessage(middleware.GetCurrentUser(c), msg) {
		return nil, services.ErrForbidden
	}
	return msg, nil
}

// MarkMessageReadHandler records the caller's read receipt once.
func MarkMessageReadHandler(c echo.Context) error {
	msg, err := loadAccessibleMessage(c)
	if err != nil {
		return err
	}
	changed, err := services.MarkMessageRead(db.DB, middleware.GetCurrentUser(c), msg)
	if err != nil {
		return err
	}
	return ok(c, Response{"updated": changed})
}

// ArchiveMessageHandler hides the message from the caller's mailbox.
func ArchiveMessageHandler(c echo.Context) error {
	msg, err := loadAccessibleMessage(c)
	if err != nil {
		return err
	}
	if err := services.ArchiveMessage(db.DB, middleware.GetCurrentUser(c), msg); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Message archived", nil)
}

// DownloadAttachmentHandler streams attachment :fileIndex of a message.
func DownloadAttachmentHandler(c echo.Context) error {
	msg, err := loadAccessibleMessage(c)
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(c.Param("fileIndex"))
	if err != nil || index < 0 {
		return services.NewValidationError("fileIndex", "attachment index must be a non-negative integer")
	}
	att, err := services.GetAttachment(msg, index)
	if err != nil {
		return err
	}
	if done, err := redirectToStorage(c, att.StorageKey, "attachment", att.OriginalName); done {
		return err
	}
	rc, contentType, err := services.Storage.Get(c.Request().Context(), att.StorageKey)
	if err != nil {
		return fmt.Errorf("failed to open attachment: %w", err)
	}
	defer rc.Close()
	if att.MimeType != "" {
		contentType = att.MimeType
	}
	return sendFile(c, "attachment", att.OriginalName, contentType, rc)
}
