package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"lex_dossier_app_go/config"
	"lex_dossier_app_go/db"
	"lex_dossier_app_go/models"
	"lex_dossier_app_go/services"
)

const (
	// ContextKeyConfig holds the *config.Config
	ContextKeyConfig = "config"
	// ContextKeyUser is the context key for the authenticated user
	ContextKeyUser = "user"
	// ContextKeyClaims holds the parsed token claims
	ContextKeyClaims = "claims"
)

// ConfigContext makes cfg available to handlers through c.Get("config").
func ConfigContext(cfg *config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(ContextKeyConfig, cfg)
			return next(c)
		}
	}
}

// GetConfig returns the config stored by ConfigContext.
func GetConfig(c echo.Context) *config.Config {
	cfg, _ := c.Get(ContextKeyConfig).(*config.Config)
	return cfg
}

// bearerToken reads the Authorization header, falling back to the token
// query parameter used by download links opened in a new tab.
func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return c.QueryParam("token")
}

var errNoToken = errors.New("no token")

func authenticate(c echo.Context) (*models.User, *services.TokenClaims, error) {
	token := bearerToken(c)
	if token == "" {
		return nil, nil, errNoToken
	}
	cfg := GetConfig(c)
	if cfg == nil {
		return nil, nil, errors.New("configuration missing from context")
	}
	claims, err := services.ParseToken(cfg.JWTSecret, token)
	if err != nil {
		return nil, nil, err
	}
	user, err := services.GetUser(db.DB, claims.UserID)
	if err != nil {
		return nil, nil, services.ErrTokenInvalid
	}
	if !user.IsActive {
		return nil, nil, services.ErrAccountDisabled
	}
	return user, claims, nil
}

// RequireAuth rejects requests without a valid bearer token for an active account.
func RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, claims, err := authenticate(c)
			if err != nil {
				switch {
				case errors.Is(err, errNoToken):
					return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
				case errors.Is(err, services.ErrTokenExpired):
					return echo.NewHTTPError(http.StatusUnauthorized, "Token expired")
				case errors.Is(err, services.ErrAccountDisabled):
					return echo.NewHTTPError(http.StatusUnauthorized, "Account is disabled")
				default:
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
				}
			}
			c.Set(ContextKeyUser, user)
			c.Set(ContextKeyClaims, claims)
			return next(c)
		}
	}
}

// OptionalAuth attaches the user when a valid token is present and lets
// anonymous requests through otherwise.
func OptionalAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if user, claims, err := authenticate(c); err == nil {
				c.Set(ContextKeyUser, user)
				c.Set(ContextKeyClaims, claims)
			}
			return next(c)
		}
	}
}

// RequireRole is middleware that requires specific roles
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := GetCurrentUser(c)
			if user == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
			}
			for _, role := range roles {
				if user.Role == role {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "Insufficient permissions")
		}
	}
}

// RequireAdmin allows admin and superadmin.
func RequireAdmin() echo.MiddlewareFunc {
	return RequireRole(models.RoleAdmin, models.RoleSuperadmin)
}

// RequireSuperadmin allows superadmin only.
func RequireSuperadmin() echo.MiddlewareFunc {
	return RequireRole(models.RoleSuperadmin)
}

// RequireStaff allows every back-office role.
func RequireStaff() echo.MiddlewareFunc {
	return RequireRole(models.StaffRoles...)
}

// GetCurrentUser retrieves the current user from context
func GetCurrentUser(c echo.Context) *models.User {
	user, ok := c.Get(ContextKeyUser).(*models.User)
	if !ok {
		return nil
	}
	return user
}

// GetClaims returns the claims of the current token, if any.
func GetClaims(c echo.Context) *services.TokenClaims {
	claims, _ := c.Get(ContextKeyClaims).(*services.TokenClaims)
	return claims
}

// ImpersonatorID is the admin acting through the current token, or "".
func ImpersonatorID(c echo.Context) string {
	if claims := GetClaims(c); claims != nil {
		return claims.ImpersonatorID
	}
	return ""
}
