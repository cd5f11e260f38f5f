package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleClient     = "client"
	RoleAdmin      = "admin"
	RoleSuperadmin = "superadmin"
	RoleAvocat     = "avocat"
	RoleAssistant  = "assistant"
	RoleComptable  = "comptable"
	RoleSecretaire = "secretaire"
	RoleJuriste    = "juriste"
	RoleStagiaire  = "stagiaire"
	RoleVisiteur   = "visiteur"
)

// AllRoles lists every role a user may hold.
var AllRoles = []string{
	RoleClient, RoleAdmin, RoleSuperadmin, RoleAvocat, RoleAssistant,
	RoleComptable, RoleSecretaire, RoleJuriste, RoleStagiaire, RoleVisiteur,
}

// StaffRoles are the roles allowed into the back office.
var StaffRoles = []string{
	RoleAdmin, RoleSuperadmin, RoleAvocat, RoleAssistant,
	RoleComptable, RoleSecretaire, RoleJuriste, RoleStagiaire,
}

func IsValidRole(role string) bool {
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

type User struct {
	ID        string    `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name        string     `gorm:"not null" json:"name"`
	Surname     string     `gorm:"not null" json:"surname"`
	Email       string     `gorm:"uniqueIndex;not null" json:"email"`
	Password    string     `gorm:"not null" json:"-"`
	Phone       string     `gorm:"size:30" json:"phone,omitempty"`
	Role        string     `gorm:"not null;default:client;index" json:"role"`
	IsActive    bool       `gorm:"not null" json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`

	// Immigration profile
	Nationality           string     `gorm:"size:80" json:"nationality,omitempty"`
	DateOfBirth           *time.Time `json:"date_of_birth,omitempty"`
	PlaceOfBirth          string     `gorm:"size:120" json:"place_of_birth,omitempty"`
	Address               string     `json:"address,omitempty"`
	City                  string     `gorm:"size:120" json:"city,omitempty"`
	PostalCode            string     `gorm:"size:20" json:"postal_code,omitempty"`
	PassportNumber        string     `gorm:"size:40" json:"passport_number,omitempty"`
	PassportExpiry        *time.Time `json:"passport_expiry,omitempty"`
	ResidencePermitNumber string     `gorm:"size:40" json:"residence_permit_number,omitempty"`
	ResidencePermitExpiry *time.Time `json:"residence_permit_expiry,omitempty"`
	ProfileCompleted      bool       `gorm:"not null" json:"profile_completed"`
}

// BeforeCreate hook to generate UUID and normalize the email
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	u.Email = NormalizeEmail(u.Email)
	return nil
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.Name + " " + u.Surname)
}

// IsAdmin reports admin or superadmin privileges.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.Role == RoleSuperadmin
}

func (u *User) IsSuperadmin() bool {
	return u.Role == RoleSuperadmin
}

// IsStaff reports any back-office role.
func (u *User) IsStaff() bool {
	for _, r := range StaffRoles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// HasCompleteProfile checks the fields a client must fill before filing.
func (u *User) HasCompleteProfile() bool {
	return u.Name != "" && u.Surname != "" && u.Phone != "" &&
		u.Nationality != "" && u.DateOfBirth != nil && u.Address != ""
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}
