package models

import (
	"errors"
	"strings"
)

var (
	ErrOwnerMissing    = errors.New("dossier must have an owner")
	ErrOwnerAmbiguous  = errors.New("dossier owner must be either a user or an anonymous contact, not both")
	ErrOwnerIncomplete = errors.New("anonymous contact requires name, surname and email")
)

// DossierOwner is either a RegisteredOwner or an AnonymousOwner.
type DossierOwner interface {
	isDossierOwner()
}

// RegisteredOwner points at a user account.
type RegisteredOwner struct {
	UserID string
}

// AnonymousOwner is a contact without an account, matched by email.
type AnonymousOwner struct {
	Name    string
	Surname string
	Email   string
}

func (RegisteredOwner) isDossierOwner() {}
func (AnonymousOwner) isDossierOwner()  {}

func nonEmpty(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

func (d *Dossier) hasContact() bool {
	return nonEmpty(d.ContactName) || nonEmpty(d.ContactSurname) || nonEmpty(d.ContactEmail)
}

// ValidateOwner checks that exactly one owner form is populated.
func (d *Dossier) ValidateOwner() error {
	hasUser := nonEmpty(d.UserID)
	hasContact := d.hasContact()
	switch {
	case hasUser && hasContact:
		return ErrOwnerAmbiguous
	case !hasUser && !hasContact:
		return ErrOwnerMissing
	case hasContact && !(nonEmpty(d.ContactName) && nonEmpty(d.ContactSurname) && nonEmpty(d.ContactEmail)):
		return ErrOwnerIncomplete
	}
	return nil
}

// Owner returns the populated owner form, or nil if the row is invalid.
func (d *Dossier) Owner() DossierOwner {
	if d.ValidateOwner() != nil {
		return nil
	}
	if nonEmpty(d.UserID) {
		return RegisteredOwner{UserID: *d.UserID}
	}
	return AnonymousOwner{Name: *d.ContactName, Surname: *d.ContactSurname, Email: *d.ContactEmail}
}

// SetOwner replaces the owner, clearing the other form.
func (d *Dossier) SetOwner(owner DossierOwner) {
	d.UserID, d.ContactName, d.ContactSurname, d.ContactEmail = nil, nil, nil, nil
	switch o := owner.(type) {
	case RegisteredOwner:
		id := o.UserID
		d.UserID = &id
	case AnonymousOwner:
		name, surname, email := strings.TrimSpace(o.Name), strings.TrimSpace(o.Surname), NormalizeEmail(o.Email)
		d.ContactName, d.ContactSurname, d.ContactEmail = &name, &surname, &email
	}
}

// OwnerEmail returns the contact email for anonymous owners, or the loaded user's email.
func (d *Dossier) OwnerEmail() string {
	switch o := d.Owner().(type) {
	case AnonymousOwner:
		return o.Email
	case RegisteredOwner:
		if d.User != nil {
			return d.User.Email
		}
	}
	return ""
}

// OwnerDisplayName is used in exports and reports.
func (d *Dossier) OwnerDisplayName() string {
	switch o := d.Owner().(type) {
	case AnonymousOwner:
		return strings.TrimSpace(o.Name + " " + o.Surname)
	case RegisteredOwner:
		if d.User != nil {
			return d.User.FullName()
		}
		return o.UserID
	}
	return ""
}
