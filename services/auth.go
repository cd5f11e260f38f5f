package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"lex_dossier_app_go/models"
)

const (
	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 10
)

// dummyHash is compared against when the email is unknown so both paths cost the same.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), BcryptCost)

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// VerifyPassword verifies a password against a bcrypt hash
func VerifyPassword(hashedPassword, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	return err == nil
}

// AuthenticateUser checks credentials and stamps the last login time.
func AuthenticateUser(db *gorm.DB, email, password string) (*models.User, error) {
	var user models.User
	err := db.Where("email = ?", models.NormalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !VerifyPassword(user.Password, password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := db.Model(&user).UpdateColumn("last_login_at", now).Error; err != nil {
		return nil, fmt.Errorf("failed to update last login: %w", err)
	}

	return &user, nil
}

// RegisterInput is the self-service sign-up payload.
type RegisterInput struct {
	Name     string
	Surname  string
	Email    string
	Password string
	Phone    string
}

// RegisterClient creates an active client account.
func RegisterClient(db *gorm.DB, in RegisterInput) (*models.User, error) {
	return CreateUser(db, CreateUserInput{
		Name:     in.Name,
		Surname:  in.Surname,
		Email:    in.Email,
		Password: in.Password,
		Phone:    in.Phone,
		Role:     models.RoleClient,
	})
}

// CreateUserInput is used by registration and the admin user screen.
type CreateUserInput struct {
	Name     string
	Surname  string
	Email    string
	Password string
	Phone    string
	Role     string
}

// CreateUser validates and inserts a new active user.
func CreateUser(db *gorm.DB, in CreateUserInput) (*models.User, error) {
	email := models.NormalizeEmail(in.Email)
	if strings.TrimSpace(in.Name) == "" {
		return nil, NewValidationError("name", "name is required")
	}
	if strings.TrimSpace(in.Surname) == "" {
		return nil, NewValidationError("surname", "surname is required")
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, NewValidationError("email", "a valid email is required")
	}
	if in.Role == "" {
		in.Role = models.RoleClient
	}
	if !models.IsValidRole(in.Role) {
		return nil, NewValidationError("role", "unknown role")
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Name:     SanitizeText(in.Name),
		Surname:  SanitizeText(in.Surname),
		Email:    email,
		Password: hash,
		Phone:    strings.TrimSpace(in.Phone),
		Role:     in.Role,
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}
