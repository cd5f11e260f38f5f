package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"lex_dossier_app_go/db"
	"lex_dossier_app_go/middleware"
	"lex_dossier_app_go/models"
	"lex_dossier_app_go/services"
)

// ListDocumentsHandler lists documents visible to the caller.
func ListDocumentsHandler(c echo.Context) error {
	user := middleware.GetCurrentUser(c)
	pq, err := pageParams(c)
	if err != nil {
		return err
	}
	docs, total, err := services.ListDocuments(db.DB, user, services.DocumentFilters{
		UserID:    c.QueryParam("userId"),
		DossierID: c.QueryParam("dossierId"),
		Category:  c.QueryParam("category"),
		Page:      pq.Page,
		Limit:     pq.Limit,
	})
	if err != nil {
		return err
	}
	return paged(c, "documents", docs, pq.Page, pq.Limit, total)
}

// UploadDocumentHandler stores one multipart file ("file").
func UploadDocumentHandler(c echo.Context) error {
	user := middleware.GetCurrentUser(c)
	file, err := c.FormFile("file")
	if err != nil {
		return services.NewValidationError("file", "file is required")
	}

	in := services.DocumentUpload{
		File:        file,
		OwnerID:     c.FormValue("user_id"),
		Category:    c.FormValue("category"),
		Description: c.FormValue("description"),
	}
	if dossierID := c.FormValue("dossier_id"); dossierID != "" {
		in.DossierID = &dossierID
	}

	doc, err := services.UploadDocument(c.Request().Context(), db.DB, services.Storage, user, in)
	if err != nil {
		return err
	}

	services.LogActivity(db.DB, middleware.ActivityContext(c), services.ActivityEntry{
		Action:      models.ActionDocumentUpload,
		Description: "Dépôt du document " + doc.OriginalName,
		Metadata: map[string]interface{}{
			"document_id": doc.ID,
			"dossier_id":  doc.DossierID,
			"size":        doc.Size,
		},
	})
	return created(c, "Document uploaded", Response{"document": doc})
}

func loadAccessibleDocument(c echo.Context) (*models.Document, error) {
	doc, err := services.GetDocument(db.DB, c.Param("id"))
	if err != nil {
		return nil, err
	}
	if !services.CanAccessDocument(middleware.GetCurrentUser(c), doc) {
		return nil, services.ErrForbidden
	}
	return doc, nil
}

// signedURLTTL bounds how long a redirect to object storage stays usable.
const signedURLTTL = 15 * time.Minute

// redirectToStorage sends the client straight to object storage when the
// backend can sign URLs. It reports false when the file must be streamed.
func redirectToStorage(c echo.Context, key, disposition, name string) (bool, error) {
	url, err := services.Storage.GetSignedURL(c.Request().Context(), key, signedURLTTL, contentDisposition(disposition, name))
	switch {
	case err == nil:
		return true, c.Redirect(http.StatusTemporaryRedirect, url)
	case errors.Is(err, services.ErrSignedURLUnsupported):
		return false, nil
	default:
		return true, fmt.Errorf("failed to sign storage URL: %w", err)
	}
}

func streamDocument(c echo.Context, disposition string) error {
	doc, err := loadAccessibleDocument(c)
	if err != nil {
		return err
	}
	if done, err := redirectToStorage(c, doc.StorageKey, disposition, doc.OriginalName); done {
		return err
	}
	rc, contentType, err := services.OpenDocument(c.Request().Context(), services.Storage, doc)
	if err != nil {
		return fmt.Errorf("failed to open document: %w", err)
	}
	defer rc.Close()
	return sendFile(c, disposition, doc.OriginalName, contentType, rc)
}

func contentDisposition(disposition, name string) string {
	return fmt.Sprintf("%s; filename=%q", disposition, name)
}

func sendFile(c echo.Context, disposition, name, contentType string, r io.Reader) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, contentDisposition(disposition, name))
	c.Response().Header().Set("X-Content-Type-Options", "nosniff")
	return c.Stream(http.StatusOK, contentType, r)
}

// PreviewDocumentHandler serves the file inline for the iframe viewer.
func PreviewDocumentHandler(c echo.Context) error {
	return streamDocument(c, "inline")
}

// DownloadDocumentHandler serves the file as an attachment.
func DownloadDocumentHandler(c echo.Context) error {
	return streamDocument(c, "attachment")
}

// DeleteDocumentHandler removes the record and, best effort, the file.
func DeleteDocumentHandler(c echo.Context) error {
	user := middleware.GetCurrentUser(c)
	doc, err := loadAccessibleDocument(c)
	if err != nil {
		return err
	}
	if err := services.DeleteDocument(c.Request().Context(), db.DB, services.Storage, user, doc); err != nil {
		return err
	}
	services.LogActivity(db.DB, middleware.ActivityContext(c), services.ActivityEntry{
		Action:      models.ActionDocumentDelete,
		Description: "Suppression du document " + doc.OriginalName,
		Metadata:    map[string]interface{}{"document_id": doc.ID},
	})
	return respond(c, http.StatusOK, "Document deleted", nil)
}
