package middleware

import (
	"github.com/labstack/echo/v4"

	"lex_dossier_app_go/services"
)

// ActivityContext builds the actor description for activity logs from
// the authenticated user and the request.
func ActivityContext(c echo.Context) services.ActivityContext {
	return services.ActorContext(GetCurrentUser(c), c.RealIP(), c.Request().UserAgent())
}
