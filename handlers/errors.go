package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"lex_dossier_app_go/logger"
	"lex_dossier_app_go/models"
	"lex_dossier_app_go/services"
)

// statusFor maps an error onto the HTTP taxonomy.
func statusFor(err error) int {
	var verr *services.ValidationError
	var vErrs validator.ValidationErrors
	switch {
	case errors.As(err, &vErrs), errors.As(err, &verr), errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrOwnerMissing),
		errors.Is(err, models.ErrOwnerAmbiguous),
		errors.Is(err, models.ErrOwnerIncomplete),
		errors.Is(err, services.ErrInvalidAssignee):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrAccountDisabled),
		errors.Is(err, services.ErrTokenExpired),
		errors.Is(err, services.ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrSlotUnavailable),
		errors.Is(err, services.ErrSlotClosed),
		errors.Is(err, services.ErrEmailTaken),
		errors.Is(err, services.ErrConflict),
		errors.Is(err, gorm.ErrDuplicatedKey):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fieldErrors flattens validation failures into the response error list.
func fieldErrors(err error) []FieldError {
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) {
		out := make([]FieldError, 0, len(vErrs))
		for _, fe := range vErrs {
			out = append(out, FieldError{Field: fe.Field(), Message: validationMessage(fe)})
		}
		return out
	}
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		return []FieldError{{Field: verr.Field, Message: verr.Message}}
	}
	return nil
}

// HTTPErrorHandler renders every error returned by a handler or middleware
// in the response envelope.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		message := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok && m != "" {
			message = m
		} else if he.Message != nil {
			message = fmt.Sprint(he.Message)
		}
		writeError(c, he.Code, message, nil)
		return
	}

	status := statusFor(err)
	message := err.Error()
	switch status {
	case http.StatusBadRequest:
		if errs := fieldErrors(err); len(errs) > 0 {
			message = "Validation failed"
			writeError(c, status, message, errs)
			return
		}
	case http.StatusInternalServerError:
		logger.WithFields(map[string]interface{}{
			"method": c.Request().Method,
			"path":   c.Path(),
		}).WithField("error", err.Error()).Error("request failed")
	}
	writeError(c, status, message, nil)
}

func writeError(c echo.Context, status int, message string, errs []FieldError) {
	var err error
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = fail(c, status, message, errs...)
	}
	if err != nil {
		logger.Error(err, "failed to write error response")
	}
}
