package services

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"lex_dossier_app_go/models"
)

const (
	SlotDateLayout = DateLayout
	SlotTimeLayout = "15:04"
	SlotDuration   = 30 * time.Minute
)

// Office hours, Monday to Friday
var officeHours = []struct {
	Start string
	End   string
}{
	{"09:00", "12:00"},
	{"14:00", "18:00"},
}

// SlotTimes lists every bookable start time of a business day.
func SlotTimes() []string {
	var times []string
	for _, block := range officeHours {
		start, _ := time.Parse(SlotTimeLayout, block.Start)
		end, _ := time.Parse(SlotTimeLayout, block.End)
		for t := start; t.Before(end); t = t.Add(SlotDuration) {
			times = append(times, t.Format(SlotTimeLayout))
		}
	}
	return times
}

// IsValidSlotTime reports whether heure is one of SlotTimes.
func IsValidSlotTime(heure string) bool {
	for _, t := range SlotTimes() {
		if t == heure {
			return true
		}
	}
	return false
}

// ParseSlotDate parses a YYYY-MM-DD date in the local timezone.
func ParseSlotDate(date string) (time.Time, error) {
	return ParseDate("date", date)
}

func isBusinessDay(d time.Time) bool {
	return d.Weekday() != time.Saturday && d.Weekday() != time.Sunday
}

// validateSlot checks format, weekday, office hours and that the date is not past.
func validateSlot(date, heure string, now time.Time) error {
	d, err := ParseSlotDate(date)
	if err != nil {
		return err
	}
	if !isBusinessDay(d) {
		return NewValidationError("date", "appointments are only available Monday to Friday")
	}
	if !IsValidSlotTime(heure) {
		return NewValidationError("heure", "time must be a 30 minute slot within office hours")
	}
	today, _ := DayBounds(now)
	if d.Before(today) {
		return NewValidationError("date", "date is in the past")
	}
	return nil
}

// SlotAvailability is one cell of the booking grid.
type SlotAvailability struct {
	Heure     string `json:"heure"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// GetDaySlots returns the booking grid for date, minus closed and booked slots.
func GetDaySlots(db *gorm.DB, date string) ([]SlotAvailability, error) {
	d, err := ParseSlotDate(date)
	if err != nil {
		return nil, err
	}
	if !isBusinessDay(d) {
		return []SlotAvailability{}, nil
	}

	var closed []string
	if err := db.Model(&models.Creneau{}).Where("date = ?", date).Pluck("heure", &closed).Error; err != nil {
		return nil, fmt.Errorf("failed to load closed slots: %w", err)
	}
	var booked []string
	if err := db.Model(&models.RendezVous{}).
		Where("date = ? AND statut IN ?", date, models.SlotHoldingStatuses).
		Pluck("heure", &booked).Error; err != nil {
		return nil, fmt.Errorf("failed to load booked slots: %w", err)
	}

	closedSet := toSet(closed)
	bookedSet := toSet(booked)
	today, _ := DayBounds(time.Now())

	slots := make([]SlotAvailability, 0, len(SlotTimes()))
	for _, heure := range SlotTimes() {
		slot := SlotAvailability{Heure: heure, Available: true}
		switch {
		case d.Before(today):
			slot.Available, slot.Reason = false, "past"
		case closedSet[heure]:
			slot.Available, slot.Reason = false, "closed"
		case bookedSet[heure]:
			slot.Available, slot.Reason = false, "booked"
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// CheckSlotAvailable fails with ErrSlotClosed or ErrSlotUnavailable.
// excludeID skips an appointment being rescheduled.
func CheckSlotAvailable(db *gorm.DB, date, heure, excludeID string) error {
	var closed int64
	if err := db.Model(&models.Creneau{}).Where("date = ? AND heure = ?", date, heure).Count(&closed).Error; err != nil {
		return fmt.Errorf("failed to check closed slots: %w", err)
	}
	if closed > 0 {
		return ErrSlotClosed
	}

	query := db.Model(&models.RendezVous{}).
		Where("date = ? AND heure = ? AND statut IN ?", date, heure, models.SlotHoldingStatuses)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	var booked int64
	if err := query.Count(&booked).Error; err != nil {
		return fmt.Errorf("failed to check booked slots: %w", err)
	}
	if booked > 0 {
		return ErrSlotUnavailable
	}
	return nil
}

// CloseSlot marks date/heure as unavailable for booking.
func CloseSlot(db *gorm.DB, actor *models.User, date, heure, reason string) (*models.Creneau, error) {
	if _, err := ParseSlotDate(date); err != nil {
		return nil, err
	}
	if !IsValidSlotTime(heure) {
		return nil, NewValidationError("heure", "time must be a 30 minute slot within office hours")
	}

	c := &models.Creneau{Date: date, Heure: heure, Reason: SanitizeText(reason)}
	if actor != nil {
		c.CreatedByID = &actor.ID
	}
	if err := db.Create(c).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: slot already closed", ErrConflict)
		}
		return nil, fmt.Errorf("failed to close slot: %w", err)
	}
	return c, nil
}

// ReopenSlot removes a closure.
func ReopenSlot(db *gorm.DB, id string) error {
	res := db.Delete(&models.Creneau{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to reopen slot: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListClosedSlots returns closures between from and to (inclusive, YYYY-MM-DD, both optional).
func ListClosedSlots(db *gorm.DB, from, to string) ([]models.Creneau, error) {
	query := db.Model(&models.Creneau{})
	if from != "" {
		query = query.Where("date >= ?", from)
	}
	if to != "" {
		query = query.Where("date <= ?", to)
	}
	var creneaux []models.Creneau
	if err := query.Order("date ASC, heure ASC").Find(&creneaux).Error; err != nil {
		return nil, fmt.Errorf("failed to list closed slots: %w", err)
	}
	return creneaux, nil
}
