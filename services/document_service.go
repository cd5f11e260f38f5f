package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lex_dossier_app_go/logger"
	"lex_dossier_app_go/models"
)

// DocumentUpload describes one multipart upload.
type DocumentUpload struct {
	File        *multipart.FileHeader
	OwnerID     string
	DossierID   *string
	Category    string
	Description string
}

func documentLink(id string) string {
	return "/documents/" + id
}

// UploadDocument stores the file, then records it. If the database write
// fails the stored file is removed on a best-effort basis.
func UploadDocument(ctx context.Context, db *gorm.DB, storage StorageProvider, uploader *models.User, in DocumentUpload) (*models.Document, error) {
	if uploader == nil {
		return nil, ErrForbidden
	}
	if in.File == nil {
		return nil, NewValidationError("file", "file is required")
	}
	if err := ValidateDocumentUpload(in.File); err != nil {
		return nil, err
	}

	category := in.Category
	if category == "" {
		category = models.DocumentCategoryAutre
	}
	if !models.IsValidDocumentCategory(category) {
		return nil, NewValidationError("category", "unknown document category")
	}

	var dossier *models.Dossier
	if in.DossierID != nil && *in.DossierID != "" {
		d, err := GetDossier(db, *in.DossierID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, NewValidationError("dossier_id", "dossier not found")
			}
			return nil, err
		}
		if !CanAccessDossier(uploader, d) {
			return nil, ErrForbidden
		}
		dossier = d
	} else {
		in.DossierID = nil
	}

	ownerID := uploader.ID
	switch {
	case uploader.IsStaff() && in.OwnerID != "":
		owner, err := GetUser(db, in.OwnerID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, NewValidationError("user_id", "owner not found")
			}
			return nil, err
		}
		ownerID = owner.ID
	case uploader.IsStaff() && dossier != nil:
		// Staff files on a dossier belong to its client when the client has an account
		id, err := resolveOwnerUserID(db, dossier)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve dossier owner: %w", err)
		}
		if id != "" {
			ownerID = id
		}
	}

	key := DocumentStorageKey(uploader.ID, uploader.IsStaff(), ownerID, in.File.Filename)
	stored, err := storage.Upload(ctx, in.File, key)
	if err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	doc := &models.Document{
		UserID:       ownerID,
		UploadedByID: uploader.ID,
		DossierID:    in.DossierID,
		FileName:     stored.FileName,
		OriginalName: filepath.Base(in.File.Filename),
		StorageKey:   stored.Key,
		MimeType:     stored.MimeType,
		Size:         stored.FileSize,
		Category:     category,
		Description:  SanitizeText(in.Description),
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(doc).Error; err != nil {
			return err
		}
		enqueueBestEffort(tx, func(sp *gorm.DB) ([]NotificationDraft, error) {
			return documentUploadDrafts(sp, uploader, doc, dossier)
		})
		return nil
	})
	if err != nil {
		if delErr := storage.Delete(ctx, stored.Key); delErr != nil {
			logger.Error(delErr, "[UPLOAD] failed to remove orphaned file "+stored.Key)
		}
		return nil, fmt.Errorf("failed to save document: %w", err)
	}
	return doc, nil
}

// documentUploadDrafts tells staff about client uploads and the owner about staff uploads.
func documentUploadDrafts(tx *gorm.DB, uploader *models.User, doc *models.Document, dossier *models.Dossier) ([]NotificationDraft, error) {
	draft := NotificationDraft{
		Type:     models.NotificationDocumentUploaded,
		Title:    "Nouveau document",
		LinkURL:  documentLink(doc.ID),
		Metadata: map[string]interface{}{"document_id": doc.ID},
	}
	if dossier != nil {
		draft.Metadata["dossier_id"] = dossier.ID
	}

	if uploader.IsStaff() {
		if doc.UserID == uploader.ID {
			return nil, nil
		}
		draft.UserID = doc.UserID
		draft.Message = fmt.Sprintf("Le cabinet a ajouté le document « %s » à votre espace.", doc.OriginalName)
		return []NotificationDraft{draft}, nil
	}

	draft.Message = fmt.Sprintf("%s a déposé le document « %s ».", uploader.FullName(), doc.OriginalName)
	if dossier != nil && dossier.AssignedToID != nil {
		draft.UserID = *dossier.AssignedToID
		return []NotificationDraft{draft}, nil
	}
	admins, err := ActiveAdminIDs(tx)
	if err != nil {
		return nil, err
	}
	return FanOut(admins, draft), nil
}

// GetDocument loads a document and its linked dossier.
func GetDocument(db *gorm.DB, id string) (*models.Document, error) {
	var doc models.Document
	if err := db.Preload("Dossier").Preload("UploadedBy").First(&doc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return &doc, nil
}

// CanAccessDocument allows the owner, the uploader, admins, and the
// owner or assignee of the linked dossier. doc.Dossier must be loaded.
func CanAccessDocument(user *models.User, doc *models.Document) bool {
	if user == nil || doc == nil {
		return false
	}
	if user.IsAdmin() || doc.UserID == user.ID || doc.UploadedByID == user.ID {
		return true
	}
	if doc.Dossier == nil {
		return false
	}
	return doc.Dossier.IsAssignedTo(user.ID) || isDossierOwner(user, doc.Dossier)
}

type DocumentFilters struct {
	UserID    string
	DossierID string
	Category  string
	Page      int
	Limit     int
}

// ListDocuments returns the documents visible to user.
func ListDocuments(db *gorm.DB, user *models.User, f DocumentFilters) ([]models.Document, int64, error) {
	query := db.Model(&models.Document{})
	switch {
	case user.IsAdmin():
		if f.UserID != "" {
			query = query.Where("user_id = ?", f.UserID)
		}
	case user.IsStaff():
		query = query.Where("uploaded_by_id = ? OR dossier_id IN (?)", user.ID,
			db.Model(&models.Dossier{}).Select("id").Where("assigned_to_id = ?", user.ID))
		if f.UserID != "" {
			query = query.Where("user_id = ?", f.UserID)
		}
	default:
		query = query.Where("user_id = ? OR dossier_id IN (?)", user.ID, ownedDossierIDs(db, user))
	}
	if f.DossierID != "" {
		query = query.Where("dossier_id = ?", f.DossierID)
	}
	if f.Category != "" {
		query = query.Where("category = ?", f.Category)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}

	page, limit := NormalizePage(f.Page, f.Limit)
	var docs []models.Document
	err := query.Preload("UploadedBy").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&docs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, total, nil
}

// DeleteDocument removes the record, then the stored file. A storage
// failure leaves an orphan that is logged.
func DeleteDocument(ctx context.Context, db *gorm.DB, storage StorageProvider, actor *models.User, doc *models.Document) error {
	if actor == nil || !(actor.IsAdmin() || doc.UserID == actor.ID || doc.UploadedByID == actor.ID) {
		return ErrForbidden
	}
	if err := db.Delete(&models.Document{}, "id = ?", doc.ID).Error; err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if err := storage.Delete(ctx, doc.StorageKey); err != nil {
		logger.Error(err, "[UPLOAD] failed to delete stored file "+doc.StorageKey)
	}
	return nil
}

// OpenDocument streams the stored file.
func OpenDocument(ctx context.Context, storage StorageProvider, doc *models.Document) (io.ReadCloser, string, error) {
	rc, contentType, err := storage.Get(ctx, doc.StorageKey)
	if err != nil {
		return nil, "", err
	}
	if doc.MimeType != "" {
		contentType = doc.MimeType
	}
	return rc, contentType, nil
}
