package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"lex_dossier_app_go/services"
)

// FieldError is one entry of the errors list in a failed response.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Response is the envelope shared by every JSON endpoint. Entity payloads
// are added under their own key by respond.
type Response map[string]interface{}

func respond(c echo.Context, status int, message string, payload Response) error {
	body := Response{"success": status < http.StatusBadRequest}
	if message != "" {
		body["message"] = message
	}
	for k, v := range payload {
		body[k] = v
	}
	return c.JSON(status, body)
}

func ok(c echo.Context, payload Response) error {
	return respond(c, http.StatusOK, "", payload)
}

func created(c echo.Context, message string, payload Response) error {
	return respond(c, http.StatusCreated, message, payload)
}

func fail(c echo.Context, status int, message string, errs ...FieldError) error {
	body := Response{"success": false, "message": message}
	if len(errs) > 0 {
		body["errors"] = errs
	}
	return c.JSON(status, body)
}

// paged wraps a list and its pagination block.
func paged(c echo.Context, key string, items interface{}, page, limit int, total int64) error {
	return ok(c, Response{
		key:          items,
		"pagination": services.NewPagination(page, limit, total),
	})
}
