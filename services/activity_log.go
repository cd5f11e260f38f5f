package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"lex_dossier_app_go/logger"
	"lex_dossier_app_go/models"
)

// ActivityContext describes who performed an action and from where.
type ActivityContext struct {
	UserID    string
	UserEmail string
	UserRole  string
	IPAddress string
	UserAgent string
}

// ActorContext builds an ActivityContext for a user.
func ActorContext(user *models.User, ip, userAgent string) ActivityContext {
	actx := ActivityContext{IPAddress: ip, UserAgent: userAgent}
	if user != nil {
		actx.UserID = user.ID
		actx.UserEmail = user.Email
		actx.UserRole = user.Role
	}
	return actx
}

// ActivityEntry is the payload of one log line.
type ActivityEntry struct {
	Action      string
	Description string
	Target      *models.User
	Metadata    map[string]interface{}
}

// LogActivity appends an activity log entry. Failures are logged and
// counted but never returned, so the calling action always proceeds.
func LogActivity(db *gorm.DB, actx ActivityContext, entry ActivityEntry) {
	record := models.ActivityLog{
		Action:      entry.Action,
		UserID:      ptrIfNotEmpty(actx.UserID),
		UserEmail:   actx.UserEmail,
		UserRole:    actx.UserRole,
		Description: entry.Description,
		IPAddress:   actx.IPAddress,
		UserAgent:   actx.UserAgent,
	}
	if entry.Target != nil {
		record.TargetUserID = ptrIfNotEmpty(entry.Target.ID)
		record.TargetUserEmail = entry.Target.Email
	}
	if len(entry.Metadata) > 0 {
		record.Metadata = entry.Metadata
	}

	if err := db.Create(&record).Error; err != nil {
		activityLogFailures.Inc()
		logger.WithFields(logrus.Fields{"action": entry.Action, "error": err.Error()}).
			Warn("[AUDIT] failed to write activity log")
	}
}

// ptrIfNotEmpty returns a pointer to the string if not empty, nil otherwise
func ptrIfNotEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ActivityLogFilters contains filter options for activity log queries
type ActivityLogFilters struct {
	UserID   string
	Action   string
	DateFrom time.Time
	DateTo   time.Time
	Search   string
	Page     int
	Limit    int
}

// ListActivityLogs returns a page of logs, newest first.
func ListActivityLogs(db *gorm.DB, f ActivityLogFilters) ([]models.ActivityLog, int64, error) {
	query := db.Model(&models.ActivityLog{})
	if f.UserID != "" {
		query = query.Where("user_id = ? OR target_user_id = ?", f.UserID, f.UserID)
	}
	if f.Action != "" {
		query = query.Where("action = ?", f.Action)
	}
	if !f.DateFrom.IsZero() {
		query = query.Where("created_at >= ?", f.DateFrom)
	}
	if !f.DateTo.IsZero() {
		query = query.Where("created_at <= ?", f.DateTo)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		query = query.Where("LOWER(description) LIKE ? OR LOWER(user_email) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count activity logs: %w", err)
	}

	page, limit := NormalizePage(f.Page, f.Limit)
	var logs []models.ActivityLog
	err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list activity logs: %w", err)
	}
	return logs, total, nil
}

// ActivityStats summarises the log for the admin dashboard.
type ActivityStats struct {
	Total    int64            `json:"total"`
	Today    int64            `json:"today"`
	ByAction map[string]int64 `json:"by_action"`
}

// GetActivityStats counts logs overall, today, and per action.
func GetActivityStats(db *gorm.DB, now time.Time) (*ActivityStats, error) {
	stats := &ActivityStats{ByAction: map[string]int64{}}

	if err := db.Model(&models.ActivityLog{}).Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("failed to count logs: %w", err)
	}

	start, end := DayBounds(now)
	if err := db.Model(&models.ActivityLog{}).
		Where("created_at >= ? AND created_at < ?", start, end).
		Count(&stats.Today).Error; err != nil {
		return nil, fmt.Errorf("failed to count today's logs: %w", err)
	}

	var rows []struct {
		Action string
		Count  int64
	}
	if err := db.Model(&models.ActivityLog{}).
		Select("action, COUNT(*) AS count").
		Group("action").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to group logs: %w", err)
	}
	for _, r := range rows {
		stats.ByAction[r.Action] = r.Count
	}
	return stats, nil
}

// LogsForDay returns every log of the given day in chronological order.
func LogsForDay(db *gorm.DB, day time.Time) ([]models.ActivityLog, error) {
	start, end := DayBounds(day)
	var logs []models.ActivityLog
	err := db.Where("created_at >= ? AND created_at < ?", start, end).
		Order("created_at ASC").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load logs for %s: %w", start.Format("2006-01-02"), err)
	}
	return logs, nil
}
