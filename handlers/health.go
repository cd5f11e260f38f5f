package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"lex_dossier_app_go/db"
)

// HealthHandler reports whether the database answers.
func HealthHandler(c echo.Context) error {
	status := "ok"
	code := http.StatusOK
	if db.DB == nil {
		status, code = "unavailable", http.StatusServiceUnavailable
	} else if sqlDB, err := db.DB.DB(); err != nil || sqlDB.PingContext(c.Request().Context()) != nil {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	return respond(c, code, "", Response{"status": status})
}
