package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"lex_dossier_app_go/models"
)

// UserFilters narrows the admin user list.
type UserFilters struct {
	Role     string
	Search   string
	IsActive *bool
	Page     int
	Limit    int
}

// ListUsers returns a page of users plus the total count.
func ListUsers(db *gorm.DB, f UserFilters) ([]models.User, int64, error) {
	query := db.Model(&models.User{})
	if f.Role != "" {
		query = query.Where("role = ?", f.Role)
	}
	if f.IsActive != nil {
		query = query.Where("is_active = ?", *f.IsActive)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(surname) LIKE ? OR LOWER(email) LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	page, limit := NormalizePage(f.Page, f.Limit)
	var users []models.User
	err := query.Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

// GetUser loads a user by id.
func GetUser(db *gorm.DB, id string) (*models.User, error) {
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}

// ActiveAdminIDs returns ids of active admin and superadmin accounts.
func ActiveAdminIDs(db *gorm.DB) ([]string, error) {
	var ids []string
	err := db.Model(&models.User{}).
		Where("role IN ? AND is_active = ?", []string{models.RoleAdmin, models.RoleSuperadmin}, true).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	return ids, nil
}

// UserPatch holds admin edits; nil fields are left untouched.
type UserPatch struct {
	Name     *string
	Surname  *string
	Email    *string
	Phone    *string
	Role     *string
	IsActive *bool
	Password *string
}

// UpdateUser applies an admin edit to target.
func UpdateUser(db *gorm.DB, actor, target *models.User, p UserPatch) error {
	if target.IsSuperadmin() && !actor.IsSuperadmin() {
		return ErrForbidden
	}
	if p.Role != nil {
		if !models.IsValidRole(*p.Role) {
			return NewValidationError("role", "unknown role")
		}
		if *p.Role == models.RoleSuperadmin && !actor.IsSuperadmin() {
			return ErrForbidden
		}
		if actor.ID == target.ID && *p.Role != target.Role {
			return NewValidationError("role", "you cannot change your own role")
		}
		target.Role = *p.Role
	}
	if p.IsActive != nil {
		if actor.ID == target.ID && !*p.IsActive {
			return NewValidationError("is_active", "you cannot deactivate your own account")
		}
		target.IsActive = *p.IsActive
	}
	if p.Name != nil {
		target.Name = SanitizeText(*p.Name)
	}
	if p.Surname != nil {
		target.Surname = SanitizeText(*p.Surname)
	}
	if p.Phone != nil {
		target.Phone = strings.TrimSpace(*p.Phone)
	}
	if p.Email != nil {
		email := models.NormalizeEmail(*p.Email)
		if email != target.Email {
			var count int64
			if err := db.Model(&models.User{}).Where("email = ? AND id <> ?", email, target.ID).Count(&count).Error; err != nil {
				return fmt.Errorf("failed to check email: %w", err)
			}
			if count > 0 {
				return ErrEmailTaken
			}
			target.Email = email
		}
	}
	if p.Password != nil {
		if err := ValidatePassword(*p.Password); err != nil {
			return err
		}
		hash, err := HashPassword(*p.Password)
		if err != nil {
			return err
		}
		target.Password = hash
	}

	if err := db.Save(target).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// DeleteUser hard-deletes target. Dossiers and logs keep their dangling references.
func DeleteUser(db *gorm.DB, actor, target *models.User) error {
	if actor.ID == target.ID {
		return NewValidationError("id", "you cannot delete your own account")
	}
	if target.IsSuperadmin() && !actor.IsSuperadmin() {
		return ErrForbidden
	}
	if err := db.Delete(&models.User{}, "id = ?", target.ID).Error; err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// ProfilePatch is what a user may change on their own account.
type ProfilePatch struct {
	Name                  *string
	Surname               *string
	Phone                 *string
	Nationality           *string
	DateOfBirth           *time.Time
	PlaceOfBirth          *string
	Address               *string
	City                  *string
	PostalCode            *string
	PassportNumber        *string
	PassportExpiry        *time.Time
	ResidencePermitNumber *string
	ResidencePermitExpiry *time.Time
}

// UpdateProfile applies p and recomputes ProfileCompleted.
func UpdateProfile(db *gorm.DB, user *models.User, p ProfilePatch) error {
	setText := func(dst *string, src *string) {
		if src != nil {
			*dst = SanitizeText(*src)
		}
	}
	setText(&user.Name, p.Name)
	setText(&user.Surname, p.Surname)
	setText(&user.Phone, p.Phone)
	setText(&user.Nationality, p.Nationality)
	setText(&user.PlaceOfBirth, p.PlaceOfBirth)
	setText(&user.Address, p.Address)
	setText(&user.City, p.City)
	setText(&user.PostalCode, p.PostalCode)
	setText(&user.PassportNumber, p.PassportNumber)
	setText(&user.ResidencePermitNumber, p.ResidencePermitNumber)
	if p.DateOfBirth != nil {
		user.DateOfBirth = p.DateOfBirth
	}
	if p.PassportExpiry != nil {
		user.PassportExpiry = p.PassportExpiry
	}
	if p.ResidencePermitExpiry != nil {
		user.ResidencePermitExpiry = p.ResidencePermitExpiry
	}

	if user.Name == "" || user.Surname == "" {
		return NewValidationError("name", "name and surname are required")
	}
	user.ProfileCompleted = user.HasCompleteProfile()

	if err := db.Save(user).Error; err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

// ChangePassword verifies the current password before replacing it.
func ChangePassword(db *gorm.DB, user *models.User, current, next string) error {
	if !VerifyPassword(user.Password, current) {
		return NewValidationError("current_password", "current password is incorrect")
	}
	if err := ValidatePassword(next); err != nil {
		return err
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	if err := db.Model(user).UpdateColumn("password", hash).Error; err != nil {
		return fmt.Errorf("failed to change password: %w", err)
	}
	user.Password = hash
	return nil
}
