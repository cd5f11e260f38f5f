package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"lex_dossier_app_go/models"
)

// TokenClaims are carried by every access token.
type TokenClaims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	// ImpersonatorID is set when an admin acts as another user
	ImpersonatorID string `json:"imp,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 access token for user.
func IssueToken(secret string, user *models.User, ttl time.Duration, impersonatorID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := TokenClaims{
		UserID:         user.ID,
		Role:           user.Role,
		ImpersonatorID: impersonatorID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken validates signature and expiry.
func ParseToken(secret, tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
