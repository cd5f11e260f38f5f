package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"lex_dossier_app_go/models"
	"lex_dossier_app_go/templates/reports"
)

const emptyDayNotice = reports.EmptyDayNotice

// logReportFooter is rendered by Chrome on every page.
const logReportFooter = `<div style="font-size:8px;width:100%;text-align:center;color:#666;">` +
	`Journal d'activité · page <span class="pageNumber"></span> / <span class="totalPages"></span></div>`

func countByAction(logs []models.ActivityLog) []reports.ActionCount {
	counts := map[string]int{}
	for _, l := range logs {
		counts[l.Action]++
	}
	out := make([]reports.ActionCount, 0, len(counts))
	for action, n := range counts {
		out = append(out, reports.ActionCount{Action: action, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Action < out[j].Action
	})
	return out
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func logEntryView(l models.ActivityLog) reports.LogEntry {
	actor := orDash(l.UserEmail)
	if l.UserRole != "" {
		actor += " (" + l.UserRole + ")"
	}
	e := reports.LogEntry{
		Time:        l.CreatedAt.Format("15:04:05"),
		Action:      l.Action,
		Actor:       actor,
		Target:      orDash(l.TargetUserEmail),
		IP:          orDash(l.IPAddress),
		Description: l.Description,
	}
	if len(l.Metadata) > 0 {
		if raw, err := json.MarshalIndent(l.Metadata, "", "  "); err == nil {
			e.Metadata = string(raw)
		}
	}
	return e
}

// DailyLogView prepares one day of activity for the report template.
func DailyLogView(day time.Time, logs []models.ActivityLog, generatedAt time.Time) reports.DailyLogView {
	v := reports.DailyLogView{
		Day:         day.Format("2006-01-02"),
		DayLabel:    day.Format("02/01/2006"),
		GeneratedAt: generatedAt.Format("02/01/2006 15:04"),
		Total:       len(logs),
		Counts:      countByAction(logs),
		Entries:     make([]reports.LogEntry, 0, len(logs)),
	}
	for _, l := range logs {
		v.Entries = append(v.Entries, logEntryView(l))
	}
	return v
}

// RenderDailyLogHTML renders the report to a string.
func RenderDailyLogHTML(ctx context.Context, day time.Time, logs []models.ActivityLog, generatedAt time.Time) (string, error) {
	var buf bytes.Buffer
	if err := reports.DailyLog(DailyLogView(day, logs, generatedAt)).Render(ctx, &buf); err != nil {
		return "", fmt.Errorf("failed to render log report: %w", err)
	}
	return buf.String(), nil
}

// GenerateDailyLogPDF loads the logs of day and prints them with renderer.
func GenerateDailyLogPDF(ctx context.Context, db *gorm.DB, renderer PDFRenderer, day time.Time) ([]byte, error) {
	logs, err := LogsForDay(db, day)
	if err != nil {
		return nil, err
	}
	html, err := RenderDailyLogHTML(ctx, day, logs, time.Now())
	if err != nil {
		return nil, err
	}
	opts := DefaultPDFOptions()
	opts.FooterTemplate = logReportFooter
	return renderer.Render(ctx, html, opts)
}
