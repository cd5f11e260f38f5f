package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"lex_dossier_app_go/logger"
	"lex_dossier_app_go/models"
)

const (
	ResetTokenLength     = 32
	ResetTokenExpiration = 2 * time.Hour
)

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RequestPasswordReset issues a reset token for an active account. Unknown
// or disabled addresses yield an empty token and no error so callers cannot
// tell them apart.
func RequestPasswordReset(db *gorm.DB, email string, now time.Time) (string, *models.User, error) {
	var user models.User
	err := db.Where("email = ?", models.NormalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Debugf("[SECURITY] password reset requested for unknown address")
			return "", nil, nil
		}
		return "", nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !user.IsActive {
		return "", nil, nil
	}

	raw := make([]byte, ResetTokenLength)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("failed to generate reset token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.PasswordResetToken{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.PasswordResetToken{
			UserID:    user.ID,
			TokenHash: hashResetToken(token),
			ExpiresAt: now.Add(ResetTokenExpiration),
		}).Error
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to store reset token: %w", err)
	}
	return token, &user, nil
}

// ResetPassword consumes token and sets a new password.
func ResetPassword(db *gorm.DB, token, newPassword string, now time.Time) (*models.User, error) {
	if err := ValidatePassword(newPassword); err != nil {
		return nil, err
	}

	var record models.PasswordResetToken
	err := db.Preload("User").Where("token_hash = ?", hashResetToken(strings.TrimSpace(token))).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("failed to load reset token: %w", err)
	}
	if record.IsExpired(now) {
		db.Delete(&record)
		return nil, ErrTokenExpired
	}
	if record.User == nil || !record.User.IsActive {
		return nil, ErrAccountDisabled
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return nil, err
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", record.UserID).Update("password", hash).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", record.UserID).Delete(&models.PasswordResetToken{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reset password: %w", err)
	}
	record.User.Password = hash
	return record.User, nil
}

// PasswordResetEmail builds the message carrying the reset link.
func PasswordResetEmail(appURL, to, token string) *Email {
	link := fmt.Sprintf("%s/reinitialiser-mot-de-passe?token=%s", strings.TrimSuffix(appURL, "/"), token)
	return &Email{
		To:      []string{to},
		Subject: "Réinitialisation de votre mot de passe",
		HTMLBody: fmt.Sprintf(`<p>Une réinitialisation de mot de passe a été demandée pour votre compte.</p>`+
			`<p><a href="%s">Choisir un nouveau mot de passe</a></p>`+
			`<p>Ce lien expire dans %d heures. Si vous n'êtes pas à l'origine de cette demande, ignorez ce message.</p>`,
			link, int(ResetTokenExpiration.Hours())),
		TextBody: "Choisissez un nouveau mot de passe : " + link,
	}
}

// CleanupExpiredResetTokens deletes tokens past their expiry.
func CleanupExpiredResetTokens(db *gorm.DB, now time.Time) (int64, error) {
	result := db.Where("expires_at < ?", now).Delete(&models.PasswordResetToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to clean up reset tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}
