package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lex_dossier_app_go/logger"
	"lex_dossier_app_go/models"
)

const (
	NumeroPrefix = "DOS"
	// MaxNumeroAttempts bounds the collision retry loop
	MaxNumeroAttempts = 100
)

// NumeroDay is the YYYYMMDD key of a numero.
func NumeroDay(t time.Time) string {
	return t.Format("20060102")
}

// FormatNumero renders DOS-YYYYMMDD-NNNN.
func FormatNumero(day string, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", NumeroPrefix, day, seq)
}

// ParseNumeroSequence extracts NNNN from a numero of the given day.
func ParseNumeroSequence(numero, day string) (int, bool) {
	prefix := NumeroPrefix + "-" + day + "-"
	if !strings.HasPrefix(numero, prefix) {
		return 0, false
	}
	seq, err := strconv.Atoi(strings.TrimPrefix(numero, prefix))
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

func fallbackNumero(at time.Time) string {
	return fmt.Sprintf("%s-%d", NumeroPrefix, at.UnixMilli())
}

// GenerateNumero allocates the next numero for the day of at. It never
// fails: when allocation breaks down it returns DOS-<epoch millis>.
func GenerateNumero(db *gorm.DB, at time.Time) string {
	day := NumeroDay(at)
	for attempt := 0; attempt < MaxNumeroAttempts; attempt++ {
		seq, err := nextDaySequence(db, day)
		if err != nil {
			logger.Error(err, "numero allocation failed, using fallback")
			break
		}
		candidate := FormatNumero(day, seq)

		// Rows written before the counter existed may already hold the candidate
		var count int64
		if err := db.Model(&models.Dossier{}).Where("numero = ?", candidate).Count(&count).Error; err != nil {
			logger.Error(err, "numero uniqueness check failed, using fallback")
			break
		}
		if count == 0 {
			return candidate
		}
	}
	numeroFallbacks.Inc()
	return fallbackNumero(at)
}

// nextDaySequence atomically bumps the day's counter and returns the new value.
func nextDaySequence(db *gorm.DB, day string) (int, error) {
	var seq int
	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.DossierCounter{}).
			Where("day = ?", day).
			UpdateColumn("last_seq", gorm.Expr("last_seq + 1"))
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			seed, err := highestSequence(tx, day)
			if err != nil {
				return err
			}
			counter := models.DossierCounter{Day: day, LastSeq: seed + 1}
			// A concurrent first allocation may have inserted the row meanwhile
			err = tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "day"}},
				DoUpdates: clause.Assignments(map[string]interface{}{"last_seq": gorm.Expr("dossier_counters.last_seq + 1")}),
			}).Create(&counter).Error
			if err != nil {
				return err
			}
		}

		var counter models.DossierCounter
		if err := tx.First(&counter, "day = ?", day).Error; err != nil {
			return err
		}
		seq = counter.LastSeq
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to allocate numero sequence: %w", err)
	}
	return seq, nil
}

// highestSequence seeds a new counter from numeros already stored for day.
func highestSequence(tx *gorm.DB, day string) (int, error) {
	var last models.Dossier
	err := tx.Select("numero").
		Where("numero LIKE ?", fmt.Sprintf("%s-%s-%%", NumeroPrefix, day)).
		Order("numero DESC").
		First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query highest numero: %w", err)
	}
	if last.Numero == nil {
		return 0, nil
	}
	seq, ok := ParseNumeroSequence(*last.Numero, day)
	if !ok {
		return 0, nil
	}
	return seq, nil
}

// BackfillNumeros assigns numeros to dossiers that have none, using their creation day.
func BackfillNumeros(db *gorm.DB) (int, error) {
	var dossiers []models.Dossier
	if err := db.Where("numero IS NULL").Order("created_at ASC").Find(&dossiers).Error; err != nil {
		return 0, fmt.Errorf("failed to load dossiers without numero: %w", err)
	}

	updated := 0
	for i := range dossiers {
		numero := GenerateNumero(db, dossiers[i].CreatedAt)
		err := db.Model(&models.Dossier{}).
			Where("id = ? AND numero IS NULL", dossiers[i].ID).
			UpdateColumn("numero", numero).Error
		if err != nil {
			return updated, fmt.Errorf("failed to set numero on %s: %w", dossiers[i].ID, err)
		}
		updated++
	}
	return updated, nil
}
