package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"lex_dossier_app_go/db"
	"lex_dossier_app_go/middleware"
	"lex_dossier_app_go/models"
	"lex_dossier_app_go/services"
)

const pdfTimeout = 60 * time.Second

// ListLogsHandler is the superadmin audit trail.
func ListLogsHandler(c echo.Context) error {
	pq, err := pageParams(c)
	if err != nil {
		return err
	}
	from, err := services.ParseOptionalDate("from", c.QueryParam("from"))
	if err != nil {
		return err
	}
	to, err := services.ParseOptionalDate("to", c.QueryParam("to"))
	if err != nil {
		return err
	}
	if !to.IsZero() {
		// Inclusive of the whole last day
		_, end := services.DayBounds(to)
		to = end.Add(-time.Nanosecond)
	}

	logs, total, err := services.ListActivityLogs(db.DB, services.ActivityLogFilters{
		UserID:   c.QueryParam("userId"),
		Action:   c.QueryParam("action"),
		DateFrom: from,
		DateTo:   to,
		Search:   c.QueryParam("q"),
		Page:     pq.Page,
		Limit:    pq.Limit,
	})
	if err != nil {
		return err
	}
	return paged(c, "logs", logs, pq.Page, pq.Limit, total)
}

func LogStatsHandler(c echo.Context) error {
	stats, err := services.GetActivityStats(db.DB, time.Now())
	if err != nil {
		return err
	}
	return ok(c, Response{"data": stats})
}

// DailyLogPDFHandler renders every log of ?date=YYYY-MM-DD into a PDF.
func DailyLogPDFHandler(c echo.Context) error {
	date := c.QueryParam("date")
	if date == "" {
		return services.NewValidationError("date", "date is required")
	}
	day, err := services.ParseDate("date", date)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), pdfTimeout)
	defer cancel()
	pdf, err := services.GenerateDailyLogPDF(ctx, db.DB, services.PDF, day)
	if err != nil {
		return err
	}

	services.LogActivity(db.DB, middleware.ActivityContext(c), services.ActivityEntry{
		Action:      models.ActionLogExport,
		Description: "Export PDF du journal du " + date,
		Metadata:    map[string]interface{}{"date": date, "bytes": len(pdf)},
	})

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "dlog-"+date+".pdf"))
	return c.Blob(http.StatusOK, "application/pdf", pdf)
}

// SecurityAlertsHandler lists recent failed-login alerts.
func SecurityAlertsHandler(c echo.Context) error {
	return ok(c, Response{"alerts": services.Monitor.RecentAlerts()})
}
