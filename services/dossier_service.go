package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lex_dossier_app_go/models"
)

const maxDossierInsertAttempts = 3

// DossierInput is the payload for a new dossier.
type DossierInput struct {
	Title        string
	Description  string
	Category     string
	Priority     string
	DueDate      *time.Time
	Notes        string
	ContactPhone string
	Owner        models.DossierOwner
	AssignedToID *string
}

// DossierLink is the front-end route of a dossier.
func DossierLink(id string) string {
	return "/dossiers/" + id
}

func dossierRef(d *models.Dossier) string {
	if d.Numero != nil && *d.Numero != "" {
		return *d.Numero
	}
	return d.Title
}

// CreateDossier validates in, allocates a numero and inserts the dossier.
// actor is nil for anonymous public submissions.
func CreateDossier(db *gorm.DB, actor *models.User, in DossierInput) (*models.Dossier, error) {
	title := SanitizeText(in.Title)
	if title == "" {
		return nil, NewValidationError("title", "title is required")
	}
	category := in.Category
	if category == "" {
		category = models.CategoryAutre
	}
	if !models.IsValidCategory(category) {
		return nil, NewValidationError("category", "unknown category")
	}
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityNormale
	}
	if !models.IsValidPriority(priority) {
		return nil, NewValidationError("priority", "unknown priority")
	}
	if in.Owner == nil {
		return nil, models.ErrOwnerMissing
	}

	d := &models.Dossier{
		Title:        title,
		Description:  SanitizeText(in.Description),
		Category:     category,
		Priority:     priority,
		Status:       models.StatusRecu,
		DueDate:      in.DueDate,
		Notes:        SanitizeHTML(in.Notes),
		ContactPhone: strings.TrimSpace(in.ContactPhone),
	}
	d.SetOwner(in.Owner)
	if err := d.ValidateOwner(); err != nil {
		return nil, err
	}

	if reg, ok := in.Owner.(models.RegisteredOwner); ok {
		if _, err := GetUser(db, reg.UserID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, NewValidationError("user_id", "owner account not found")
			}
			return nil, err
		}
	}

	if actor != nil {
		d.CreatedByID = &actor.ID
	}
	if in.AssignedToID != nil && *in.AssignedToID != "" {
		if actor == nil || !actor.IsAdmin() {
			return nil, ErrForbidden
		}
		if _, err := loadAssignee(db, *in.AssignedToID); err != nil {
			return nil, err
		}
		d.AssignedToID = in.AssignedToID
	}

	adminIDs, err := ActiveAdminIDs(db)
	if err != nil {
		return nil, err
	}
	fromOutside := actor == nil || !actor.IsStaff()

	var txErr error
	for attempt := 0; attempt < maxDossierInsertAttempts; attempt++ {
		numero := GenerateNumero(db, time.Now())
		d.Numero = &numero
		d.ID = ""

		txErr = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Omit(clause.Associations).Create(d).Error; err != nil {
				return err
			}
			enqueueBestEffort(tx, func(sp *gorm.DB) ([]NotificationDraft, error) {
				return dossierCreatedDrafts(sp, actor, d, adminIDs, fromOutside)
			})
			return nil
		})
		if !errors.Is(txErr, gorm.ErrDuplicatedKey) {
			break
		}
	}
	if txErr != nil {
		if errors.Is(txErr, models.ErrOwnerMissing) || errors.Is(txErr, models.ErrOwnerAmbiguous) || errors.Is(txErr, models.ErrOwnerIncomplete) {
			return nil, txErr
		}
		return nil, fmt.Errorf("failed to create dossier: %w", txErr)
	}
	return d, nil
}

func dossierCreatedDrafts(tx *gorm.DB, actor *models.User, d *models.Dossier, adminIDs []string, fromOutside bool) ([]NotificationDraft, error) {
	var drafts []NotificationDraft
	numero := dossierRef(d)
	link := DossierLink(d.ID)
	if fromOutside {
		drafts = append(drafts, FanOut(adminIDs, NotificationDraft{
			Type:     models.NotificationDossierCreated,
			Title:    "Nouvelle demande de dossier",
			Message:  fmt.Sprintf("Le dossier %s « %s » vient d'être soumis.", numero, d.Title),
			LinkURL:  link,
			Metadata: map[string]interface{}{"dossier_id": d.ID},
		})...)
	} else {
		ownerID, err := resolveOwnerUserID(tx, d)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve dossier owner: %w", err)
		}
		if ownerID != "" && ownerID != actor.ID {
			drafts = append(drafts, NotificationDraft{
				UserID:   ownerID,
				Type:     models.NotificationDossierCreated,
				Title:    "Nouveau dossier",
				Message:  fmt.Sprintf("Le dossier %s « %s » a été ouvert pour vous.", numero, d.Title),
				LinkURL:  link,
				Metadata: map[string]interface{}{"dossier_id": d.ID},
			})
		}
	}
	if d.AssignedToID != nil && (actor == nil || *d.AssignedToID != actor.ID) {
		drafts = append(drafts, NotificationDraft{
			UserID:   *d.AssignedToID,
			Type:     models.NotificationDossierAssigned,
			Title:    "Dossier attribué",
			Message:  fmt.Sprintf("Le dossier %s vous a été attribué.", numero),
			LinkURL:  link,
			Metadata: map[string]interface{}{"dossier_id": d.ID},
		})
	}
	return drafts, nil
}

// GetDossier loads a dossier with its owner and staff references.
func GetDossier(db *gorm.DB, id string) (*models.Dossier, error) {
	var d models.Dossier
	err := db.Preload("User").Preload("AssignedTo").Preload("CreatedBy").First(&d, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load dossier: %w", err)
	}
	return &d, nil
}

// LoadDossierLinks fills the documents, messages and appointments of d
// that viewer may open, newest first.
func LoadDossierLinks(db *gorm.DB, viewer *models.User, d *models.Dossier) error {
	var docs []models.Document
	if err := db.Preload("UploadedBy").Where("dossier_id = ?", d.ID).Order("created_at DESC").Find(&docs).Error; err != nil {
		return fmt.Errorf("failed to load dossier documents: %w", err)
	}
	d.Documents = d.Documents[:0]
	for _, doc := range docs {
		doc.Dossier = d
		if CanAccessDocument(viewer, &doc) {
			d.Documents = append(d.Documents, doc)
		}
	}

	var msgs []models.Message
	err := db.Preload("Sender").Preload("Recipients").
		Where("dossier_id = ?", d.ID).Order("created_at DESC").Find(&msgs).Error
	if err != nil {
		return fmt.Errorf("failed to load dossier messages: %w", err)
	}
	d.Messages = d.Messages[:0]
	for i := range msgs {
		if CanAccessMessage(viewer, &msgs[i]) {
			d.Messages = append(d.Messages, msgs[i])
		}
	}

	var rdvs []models.RendezVous
	if err := db.Where("dossier_id = ?", d.ID).Order("date DESC, heure DESC").Find(&rdvs).Error; err != nil {
		return fmt.Errorf("failed to load dossier appointments: %w", err)
	}
	d.RendezVous = d.RendezVous[:0]
	for i := range rdvs {
		if CanAccessAppointment(viewer, &rdvs[i]) {
			d.RendezVous = append(d.RendezVous, rdvs[i])
		}
	}
	return nil
}

// CanAccessDossier: creator, owner (by reference or email), assignee, or admin.
func CanAccessDossier(user *models.User, d *models.Dossier) bool {
	if user == nil {
		return false
	}
	if user.IsAdmin() || d.IsAssignedTo(user.ID) {
		return true
	}
	if d.CreatedByID != nil && *d.CreatedByID == user.ID {
		return true
	}
	return isDossierOwner(user, d)
}

// CanManageDossier: admins and the assigned staff member may change status and fields.
func CanManageDossier(user *models.User, d *models.Dossier) bool {
	if user == nil || !user.IsStaff() {
		return false
	}
	return user.IsAdmin() || d.IsAssignedTo(user.ID)
}

func isDossierOwner(user *models.User, d *models.Dossier) bool {
	switch o := d.Owner().(type) {
	case models.RegisteredOwner:
		return o.UserID == user.ID
	case models.AnonymousOwner:
		return strings.EqualFold(o.Email, user.Email)
	}
	return false
}

// resolveOwnerUserID maps the owner onto an account: by reference, or by
// exact case-insensitive email match for anonymous contacts.
func resolveOwnerUserID(db *gorm.DB, d *models.Dossier) (string, error) {
	switch o := d.Owner().(type) {
	case models.RegisteredOwner:
		var count int64
		if err := db.Model(&models.User{}).Where("id = ?", o.UserID).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return "", nil
		}
		return o.UserID, nil
	case models.AnonymousOwner:
		var ids []string
		if err := db.Model(&models.User{}).Where("LOWER(email) = ?", models.NormalizeEmail(o.Email)).Limit(1).Pluck("id", &ids).Error; err != nil {
			return "", err
		}
		if len(ids) == 0 {
			return "", nil
		}
		return ids[0], nil
	}
	return "", nil
}

// ResolveOwnerUserID is the exported form used by handlers and the CLI.
func ResolveOwnerUserID(db *gorm.DB, d *models.Dossier) (string, error) {
	return resolveOwnerUserID(db, d)
}

func ownerDraft(tx *gorm.DB, d *models.Dossier, draft NotificationDraft) ([]NotificationDraft, error) {
	ownerID, err := resolveOwnerUserID(tx, d)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve dossier owner: %w", err)
	}
	if ownerID == "" {
		return nil, nil
	}
	draft.UserID = ownerID
	if draft.LinkURL == "" {
		draft.LinkURL = DossierLink(d.ID)
	}
	if draft.Metadata == nil {
		draft.Metadata = map[string]interface{}{"dossier_id": d.ID}
	}
	return []NotificationDraft{draft}, nil
}

// saveDossierWithOwnerNotice persists d and enqueues the owner notification in one transaction.
func saveDossierWithOwnerNotice(db *gorm.DB, d *models.Dossier, draft *NotificationDraft) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(d).Error; err != nil {
			return err
		}
		if draft != nil {
			queueOwnerNotice(tx, d, *draft)
		}
		return nil
	})
}

// queueOwnerNotice enqueues draft for the dossier owner when the owner
// resolves to an account. Failures are logged only.
func queueOwnerNotice(tx *gorm.DB, d *models.Dossier, draft NotificationDraft) {
	enqueueBestEffort(tx, func(sp *gorm.DB) ([]NotificationDraft, error) {
		return ownerDraft(sp, d, draft)
	})
}

// ChangeDossierStatus moves d to status. It returns false without writing
// anything when the status is unchanged.
func ChangeDossierStatus(db *gorm.DB, actor *models.User, d *models.Dossier, status models.DossierStatus, message string) (bool, error) {
	if !CanManageDossier(actor, d) {
		return false, ErrForbidden
	}
	if !models.IsValidDossierStatus(string(status)) {
		return false, NewValidationError("status", "unknown status")
	}
	if status == models.StatusRefuse {
		return RefuseDossier(db, actor, d, message)
	}

	current, ok := models.NormalizeDossierStatus(string(d.Status))
	if !ok {
		current = d.Status
	}
	if current == status {
		return false, nil
	}
	if !models.CanTransition(current, status) {
		return false, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current, status)
	}

	d.Status = status
	msg := strings.TrimSpace(SanitizeText(message))
	if msg == "" {
		msg = fmt.Sprintf("Le statut de votre dossier %s est maintenant : %s.", dossierRef(d), status.Label())
	}
	draft := NotificationDraft{
		Type:    models.NotificationDossierStatusChange,
		Title:   "Mise à jour de votre dossier",
		Message: msg,
		Metadata: map[string]interface{}{
			"dossier_id": d.ID,
			"from":       string(current),
			"to":         string(status),
		},
	}
	if err := saveDossierWithOwnerNotice(db, d, &draft); err != nil {
		d.Status = current
		return false, fmt.Errorf("failed to change dossier status: %w", err)
	}
	return true, nil
}

// DefaultRefusalReason is used when staff refuse without a reason.
const DefaultRefusalReason = "Après étude, le cabinet ne peut pas donner suite à votre demande."

// RefuseDossier forces status refuse and records a reason.
func RefuseDossier(db *gorm.DB, actor *models.User, d *models.Dossier, reason string) (bool, error) {
	if !CanManageDossier(actor, d) {
		return false, ErrForbidden
	}
	if d.Status == models.StatusRefuse {
		return false, nil
	}
	current, ok := models.NormalizeDossierStatus(string(d.Status))
	if !ok {
		current = d.Status
	}
	if !models.CanTransition(current, models.StatusRefuse) {
		return false, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current, models.StatusRefuse)
	}

	reason = SanitizeText(reason)
	if reason == "" {
		reason = DefaultRefusalReason
	}
	previous := d.Status
	d.Status = models.StatusRefuse
	d.RefusalReason = reason

	draft := NotificationDraft{
		Type:    models.NotificationDossierRefused,
		Title:   "Votre dossier a été refusé",
		Message: reason,
	}
	if err := saveDossierWithOwnerNotice(db, d, &draft); err != nil {
		d.Status = previous
		return false, fmt.Errorf("failed to refuse dossier: %w", err)
	}
	return true, nil
}

func loadAssignee(db *gorm.DB, id string) (*models.User, error) {
	var u models.User
	if err := db.First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidAssignee
		}
		return nil, fmt.Errorf("failed to load assignee: %w", err)
	}
	if !u.IsAdmin() || !u.IsActive {
		return nil, ErrInvalidAssignee
	}
	return &u, nil
}

// AssignDossier sets or clears the preferred handler. Only admins may
// assign, and only to active admin or superadmin accounts.
func AssignDossier(db *gorm.DB, actor *models.User, d *models.Dossier, assigneeID *string) (bool, error) {
	if actor == nil || !actor.IsAdmin() {
		return false, ErrForbidden
	}

	var assignee *models.User
	if assigneeID != nil && strings.TrimSpace(*assigneeID) == "" {
		assigneeID = nil
	}
	if assigneeID != nil {
		var err error
		if assignee, err = loadAssignee(db, *assigneeID); err != nil {
			return false, err
		}
	}

	switch {
	case assigneeID == nil && d.AssignedToID == nil:
		return false, nil
	case assigneeID != nil && d.AssignedToID != nil && *assigneeID == *d.AssignedToID:
		return false, nil
	}

	previous := d.AssignedToID
	var draft NotificationDraft
	if assignee != nil {
		id := assignee.ID
		d.AssignedToID = &id
		draft = NotificationDraft{
			Type:    models.NotificationDossierAssigned,
			Title:   "Votre dossier a un nouveau responsable",
			Message: fmt.Sprintf("Votre dossier %s est désormais suivi par %s.", dossierRef(d), assignee.FullName()),
		}
	} else {
		d.AssignedToID = nil
		draft = NotificationDraft{
			Type:    models.NotificationDossierUnassigned,
			Title:   "Responsable de dossier retiré",
			Message: fmt.Sprintf("Votre dossier %s n'a plus de responsable attitré pour le moment.", dossierRef(d)),
		}
	}
	d.AssignedTo = assignee

	if err := saveDossierWithOwnerNotice(db, d, &draft); err != nil {
		d.AssignedToID = previous
		return false, fmt.Errorf("failed to assign dossier: %w", err)
	}
	return true, nil
}

// DossierPatch holds field edits; nil fields are left untouched.
type DossierPatch struct {
	Title        *string
	Description  *string
	Category     *string
	Priority     *string
	DueDate      *time.Time
	ClearDueDate bool
	Notes        *string
	ContactPhone *string
}

func (p DossierPatch) isEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil && p.Priority == nil &&
		p.DueDate == nil && !p.ClearDueDate && p.Notes == nil && p.ContactPhone == nil
}

// UpdateDossierFields applies p. Staff who manage the dossier may edit
// everything; the owner may edit title and description while the
// dossier is still recu.
func UpdateDossierFields(db *gorm.DB, actor *models.User, d *models.Dossier, p DossierPatch) error {
	if p.isEmpty() {
		return nil
	}
	manager := CanManageDossier(actor, d)
	owner := actor != nil && isDossierOwner(actor, d)
	if !manager && !owner {
		return ErrForbidden
	}
	if !manager {
		if d.Status != models.StatusRecu {
			return fmt.Errorf("%w: dossier can no longer be edited by its owner", ErrForbidden)
		}
		if p.Category != nil || p.Priority != nil || p.DueDate != nil || p.ClearDueDate || p.Notes != nil {
			return ErrForbidden
		}
	}

	if p.Title != nil {
		title := SanitizeText(*p.Title)
		if title == "" {
			return NewValidationError("title", "title is required")
		}
		d.Title = title
	}
	if p.Description != nil {
		d.Description = SanitizeText(*p.Description)
	}
	if p.Category != nil {
		if !models.IsValidCategory(*p.Category) {
			return NewValidationError("category", "unknown category")
		}
		d.Category = *p.Category
	}
	if p.Priority != nil {
		if !models.IsValidPriority(*p.Priority) {
			return NewValidationError("priority", "unknown priority")
		}
		d.Priority = *p.Priority
	}
	if p.ClearDueDate {
		d.DueDate = nil
	} else if p.DueDate != nil {
		d.DueDate = p.DueDate
	}
	if p.Notes != nil {
		d.Notes = SanitizeHTML(*p.Notes)
	}
	if p.ContactPhone != nil {
		d.ContactPhone = strings.TrimSpace(*p.ContactPhone)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(d).Error; err != nil {
			return fmt.Errorf("failed to update dossier: %w", err)
		}
		// Owner edits are surfaced to the assignee
		if !manager && d.AssignedToID != nil {
			EnqueueBestEffort(tx, NotificationDraft{
				UserID:   *d.AssignedToID,
				Type:     models.NotificationDossierUpdated,
				Title:    "Dossier modifié par le client",
				Message:  fmt.Sprintf("Le client a modifié le dossier %s.", dossierRef(d)),
				LinkURL:  DossierLink(d.ID),
				Metadata: map[string]interface{}{"dossier_id": d.ID},
			})
			return nil
		}
		return nil
	})
}

// DossierUpdate combines field edits, assignment and status change.
// AssignedTo set to "" clears the assignment.
type DossierUpdate struct {
	Patch      DossierPatch
	AssignedTo *string
	Status     *models.DossierStatus
	Refuse     bool
	Reason     string
	Message    string
}

// DossierChanges reports what UpdateDossier wrote.
type DossierChanges struct {
	Fields       bool
	Assignment   bool
	Status       bool
	FromStatus   models.DossierStatus
	FromAssignee *string
}

// UpdateDossier checks u against actor and the current state of d, then
// applies fields, assignment and status in one transaction. A rejected
// update writes nothing and leaves d as it was.
func UpdateDossier(db *gorm.DB, actor *models.User, d *models.Dossier, u DossierUpdate) (DossierChanges, error) {
	changes := DossierChanges{FromStatus: d.Status, FromAssignee: d.AssignedToID}
	if err := checkDossierUpdate(db, actor, d, u); err != nil {
		return changes, err
	}

	snapshot := *d
	err := db.Transaction(func(tx *gorm.DB) error {
		if !u.Patch.isEmpty() {
			if err := UpdateDossierFields(tx, actor, d, u.Patch); err != nil {
				return err
			}
			changes.Fields = true
		}
		if u.AssignedTo != nil {
			changed, err := AssignDossier(tx, actor, d, u.AssignedTo)
			if err != nil {
				return err
			}
			changes.Assignment = changed
		}

		var (
			changed bool
			err     error
		)
		switch {
		case u.Refuse:
			changed, err = RefuseDossier(tx, actor, d, u.Reason)
		case u.Status != nil:
			changed, err = ChangeDossierStatus(tx, actor, d, *u.Status, u.Message)
		}
		if err != nil {
			return err
		}
		changes.Status = changed
		return nil
	})
	if err != nil {
		*d = snapshot
		return DossierChanges{FromStatus: d.Status, FromAssignee: d.AssignedToID}, err
	}
	return changes, nil
}

func checkDossierUpdate(db *gorm.DB, actor *models.User, d *models.Dossier, u DossierUpdate) error {
	if u.AssignedTo != nil {
		if actor == nil || !actor.IsAdmin() {
			return ErrForbidden
		}
		if id := strings.TrimSpace(*u.AssignedTo); id != "" {
			if _, err := loadAssignee(db, id); err != nil {
				return err
			}
		}
	}
	if !u.Refuse && u.Status == nil {
		return nil
	}
	if !CanManageDossier(actor, d) {
		return ErrForbidden
	}

	target := models.StatusRefuse
	if !u.Refuse {
		target = *u.Status
	}
	if !models.IsValidDossierStatus(string(target)) {
		return NewValidationError("status", "unknown status")
	}
	current, ok := models.NormalizeDossierStatus(string(d.Status))
	if !ok {
		current = d.Status
	}
	if current != target && !models.CanTransition(current, target) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current, target)
	}
	return nil
}

// DeleteDossier removes d after queueing the owner's final notification
// in the same transaction. The owner is resolved before the row goes;
// linked documents, messages, appointments and tasks are kept, unlinked.
func DeleteDossier(db *gorm.DB, actor *models.User, d *models.Dossier) error {
	if actor == nil || !actor.IsAdmin() {
		return ErrForbidden
	}
	return db.Transaction(func(tx *gorm.DB) error {
		queueOwnerNotice(tx, d, NotificationDraft{
			Type:     models.NotificationDossierDeleted,
			Title:    "Dossier clôturé",
			Message:  fmt.Sprintf("Votre dossier %s a été supprimé par le cabinet.", dossierRef(d)),
			LinkURL:  "/dossiers",
			Metadata: map[string]interface{}{"dossier_id": d.ID, "numero": dossierRef(d)},
		})
		for _, linked := range []interface{}{&models.Document{}, &models.Message{}, &models.RendezVous{}, &models.Task{}} {
			if err := tx.Model(linked).Where("dossier_id = ?", d.ID).Update("dossier_id", nil).Error; err != nil {
				return fmt.Errorf("failed to detach dossier items: %w", err)
			}
		}
		if err := tx.Delete(&models.Dossier{}, "id = ?", d.ID).Error; err != nil {
			return fmt.Errorf("failed to delete dossier: %w", err)
		}
		return nil
	})
}

// DossierFilters narrows dossier listings.
type DossierFilters struct {
	Status       string
	Category     string
	Priority     string
	AssignedToID string
	Search       string
	Page         int
	Limit        int
}

func applyDossierFilters(query *gorm.DB, f DossierFilters) *gorm.DB {
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Category != "" {
		query = query.Where("category = ?", f.Category)
	}
	if f.Priority != "" {
		query = query.Where("priority = ?", f.Priority)
	}
	if f.AssignedToID != "" {
		if f.AssignedToID == "none" {
			query = query.Where("assigned_to_id IS NULL")
		} else {
			query = query.Where("assigned_to_id = ?", f.AssignedToID)
		}
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		query = query.Where(
			"LOWER(title) LIKE ? OR LOWER(numero) LIKE ? OR LOWER(contact_email) LIKE ? OR LOWER(contact_surname) LIKE ? OR user_id IN (?)",
			like, like, like, like,
			query.Session(&gorm.Session{NewDB: true}).Model(&models.User{}).Select("id").
				Where("LOWER(email) LIKE ? OR LOWER(surname) LIKE ? OR LOWER(name) LIKE ?", like, like, like),
		)
	}
	return query
}

func pageDossiers(query *gorm.DB, f DossierFilters) ([]models.Dossier, int64, error) {
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count dossiers: %w", err)
	}
	page, limit := NormalizePage(f.Page, f.Limit)
	var dossiers []models.Dossier
	err := query.Preload("User").Preload("AssignedTo").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&dossiers).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list dossiers: %w", err)
	}
	return dossiers, total, nil
}

// ListOwnDossiers returns dossiers owned by user, by reference or email.
func ListOwnDossiers(db *gorm.DB, user *models.User, f DossierFilters) ([]models.Dossier, int64, error) {
	query := db.Model(&models.Dossier{}).
		Where("user_id = ? OR LOWER(contact_email) = ?", user.ID, models.NormalizeEmail(user.Email))
	return pageDossiers(applyDossierFilters(query, f), f)
}

// ownedDossierIDs is a subquery of the dossiers user owns by reference or email.
func ownedDossierIDs(db *gorm.DB, user *models.User) *gorm.DB {
	return db.Model(&models.Dossier{}).Select("id").
		Where("user_id = ? OR LOWER(contact_email) = ?", user.ID, models.NormalizeEmail(user.Email))
}

// ListStaffDossiers returns every dossier to admins and only assigned or
// created ones to other staff.
func ListStaffDossiers(db *gorm.DB, user *models.User, f DossierFilters) ([]models.Dossier, int64, error) {
	query := db.Model(&models.Dossier{})
	if !user.IsAdmin() {
		query = query.Where("assigned_to_id = ? OR created_by_id = ?", user.ID, user.ID)
	}
	return pageDossiers(applyDossierFilters(query, f), f)
}

// DossierStatusCounts groups dossiers by status for the admin dashboard.
func DossierStatusCounts(db *gorm.DB) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&models.Dossier{}).Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count dossiers by status: %w", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
