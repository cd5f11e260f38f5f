package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"lex_dossier_app_go/config"
	"lex_dossier_app_go/db"
	"lex_dossier_app_go/logger"
	"lex_dossier_app_go/middleware"
	"lex_dossier_app_go/models"
	"lex_dossier_app_go/services"
)

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Surname  string `json:"surname" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Phone    string `json:"phone" validate:"max=30"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

func issueFor(cfg *config.Config, user *models.User, impersonatorID string) (*authResponse, error) {
	token, expiresAt, err := services.IssueToken(cfg.JWTSecret, user, cfg.TokenTTL, impersonatorID)
	if err != nil {
		return nil, err
	}
	return &authResponse{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// RegisterHandler creates a client account and logs it in.
func RegisterHandler(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := services.RegisterClient(db.DB, services.RegisterInput{
		Name:     req.Name,
		Surname:  req.Surname,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
	})
	if err != nil {
		return err
	}

	actx := services.ActorContext(user, c.RealIP(), c.Request().UserAgent())
	services.LogActivity(db.DB, actx, services.ActivityEntry{
		Action:      models.ActionRegister,
		Description: "Inscription de " + user.Email,
	})

	auth, err := issueFor(middleware.GetConfig(c), user, "")
	if err != nil {
		return err
	}
	return created(c, "Account created", Response{"data": auth})
}

// LoginHandler verifies credentials and returns a bearer token.
func LoginHandler(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ip := c.RealIP()
	user, err := services.AuthenticateUser(db.DB, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) || errors.Is(err, services.ErrAccountDisabled) {
			services.Monitor.TrackFailedLogin(ip, req.Email)
			services.LogActivity(db.DB, services.ActivityContext{
				UserEmail: models.NormalizeEmail(req.Email),
				IPAddress: ip,
				UserAgent: c.Request().UserAgent(),
			}, services.ActivityEntry{
				Action:      models.ActionLoginFailed,
				Description: "Échec de connexion pour " + models.NormalizeEmail(req.Email),
				Metadata:    map[string]interface{}{"reason": err.Error()},
			})
		}
		return err
	}
	services.Monitor.ResetFailures(ip)

	services.LogActivity(db.DB, services.ActorContext(user, ip, c.Request().UserAgent()), services.ActivityEntry{
		Action:      models.ActionLogin,
		Description: "Connexion de " + user.Email,
	})

	auth, err := issueFor(middleware.GetConfig(c), user, "")
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Logged in", Response{"data": auth})
}

// MeHandler returns the authenticated account.
func MeHandler(c echo.Context) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
	}
	payload := Response{"user": user}
	if imp := middleware.ImpersonatorID(c); imp != "" {
		payload["impersonated_by"] = imp
	}
	return ok(c, payload)
}

type profileRequest struct {
	Name                  *string `json:"name" validate:"omitempty,max=120"`
	Surname               *string `json:"surname" validate:"omitempty,max=120"`
	Phone                 *string `json:"phone" validate:"omitempty,max=30"`
	Nationality           *string `json:"nationality" validate:"omitempty,max=80"`
	DateOfBirth           *string `json:"date_of_birth"`
	PlaceOfBirth          *string `json:"place_of_birth" validate:"omitempty,max=120"`
	Address               *string `json:"address"`
	City                  *string `json:"city" validate:"omitempty,max=120"`
	PostalCode            *string `json:"postal_code" validate:"omitempty,max=20"`
	PassportNumber        *string `json:"passport_number" validate:"omitempty,max=40"`
	PassportExpiry        *string `json:"passport_expiry"`
	ResidencePermitNumber *string `json:"residence_permit_number" validate:"omitempty,max=40"`
	ResidencePermitExpiry *string `json:"residence_permit_expiry"`
}

// UpdateProfileHandler edits the caller's own identity and immigration profile.
func UpdateProfileHandler(c echo.Context) error {
	user := middleware.GetCurrentUser(c)
	var req profileRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	patch := services.ProfilePatch{
		Name:                  req.Name,
		Surname:               req.Surname,
		Phone:                 req.Phone,
		Nationality:           req.Nationality,
		PlaceOfBirth:          req.PlaceOfBirth,
		Address:               req.Address,
		City:                  req.City,
		PostalCode:            req.PostalCode,
		PassportNumber:        req.PassportNumber,
		ResidencePermitNumber: req.ResidencePermitNumber,
	}
	dates := []struct {
		field string
		value *string
		dst   **time.Time
	}{
		{"date_of_birth", req.DateOfBirth, &patch.DateOfBirth},
		{"passport_expiry", req.PassportExpiry, &patch.PassportExpiry},
		{"residence_permit_expiry", req.ResidencePermitExpiry, &patch.ResidencePermitExpiry},
	}
	for _, d := range dates {
		if d.value == nil {
			continue
		}
		parsed, err := services.ParseOptionalDate(d.field, *d.value)
		if err != nil {
			return err
		}
		if !parsed.IsZero() {
			*d.dst = &parsed
		}
	}

	if err := services.UpdateProfile(db.DB, user, patch); err != nil {
		return err
	}
	services.LogActivity(db.DB, middleware.ActivityContext(c), services.ActivityEntry{
		Action:      models.ActionProfileUpdate,
		Description: "Mise à jour du profil",
	})
	return respond(c, http.StatusOK, "Profile updated", Response{"user": user})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// ChangePasswordHandler replaces the caller's password.
func ChangePasswordHandler(c echo.Context) error {
	user := middleware.GetCurrentUser(c)
	var req changePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := services.ChangePassword(db.DB, user, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	services.LogActivity(db.DB, middleware.ActivityContext(c), services.ActivityEntry{
		Action:      models.ActionPasswordChange,
		Description: "Changement de mot de passe",
	})
	return respond(c, http.StatusOK, "Password changed", nil)
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// forgotPasswordMessage is returned whether or not the address exists.
const forgotPasswordMessage = "If an account exists for this address, a reset link has been sent."

// ForgotPasswordHandler emails a reset link to active accounts.
func ForgotPasswordHandler(c echo.Context) error {
	var req forgotPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	token, user, err := services.RequestPasswordReset(db.DB, req.Email, time.Now())
	if err != nil {
		return err
	}
	if token == "" {
		return respond(c, http.StatusOK, forgotPasswordMessage, nil)
	}

	cfg := middleware.GetConfig(c)
	email := services.PasswordResetEmail(cfg.AppURL, user.Email, token)
	if err := services.SendEmail(cfg, email); err != nil {
		logger.Error(err, "[EMAIL] failed to send password reset email")
	}
	services.LogActivity(db.DB, services.ActorContext(user, c.RealIP(), c.Request().UserAgent()), services.ActivityEntry{
		Action:      models.ActionPasswordResetRequest,
		Description: "Demande de réinitialisation du mot de passe",
	})
	return respond(c, http.StatusOK, forgotPasswordMessage, nil)
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

// ResetPasswordHandler consumes a reset token.
func ResetPasswordHandler(c echo.Context) error {
	var req resetPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	user, err := services.ResetPassword(db.DB, req.Token, req.Password, time.Now())
	if err != nil {
		return err
	}
	services.LogActivity(db.DB, services.ActorContext(user, c.RealIP(), c.Request().UserAgent()), services.ActivityEntry{
		Action:      models.ActionPasswordReset,
		Description: "Mot de passe réinitialisé",
	})
	return respond(c, http.StatusOK, "Password has been reset", nil)
}

// ImpersonateHandler lets an admin act as a client account.
func ImpersonateHandler(c echo.Context) error {
	admin := middleware.GetCurrentUser(c)
	if middleware.ImpersonatorID(c) != "" {
		return echo.NewHTTPError(http.StatusForbidden, "Already impersonating")
	}

	target, err := services.GetUser(db.DB, c.Param("id"))
	if err != nil {
		return err
	}
	if target.Role != models.RoleClient {
		return services.NewValidationError("id", "only client accounts can be impersonated")
	}
	if !target.IsActive {
		return services.ErrAccountDisabled
	}

	auth, err := issueFor(middleware.GetConfig(c), target, admin.ID)
	if err != nil {
		return err
	}
	services.LogActivity(db.DB, middleware.ActivityContext(c), services.ActivityEntry{
		Action:      models.ActionImpersonate,
		Description: "Connexion en tant que " + target.Email,
		Target:      target,
	})
	return ok(c, Response{"data": auth})
}
