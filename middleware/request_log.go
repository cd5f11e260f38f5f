package middleware

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"lex_dossier_app_go/logger"
)

// RequestLogger writes one structured access log line per request.
func RequestLogger() echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogRoutePath: true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health" || c.Path() == "/metrics"
		},
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"source":     "http",
				"method":     v.Method,
				"path":       v.URIPath,
				"route":      v.RoutePath,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"ip":         v.RemoteIP,
				"user_agent": v.UserAgent,
			}
			if user := GetCurrentUser(c); user != nil {
				fields["user_id"] = user.ID
			}
			entry := logger.Log.WithFields(fields)
			switch {
			case v.Status >= 500:
				if v.Error != nil {
					entry = entry.WithField("error", v.Error.Error())
				}
				entry.Error("request failed")
			case v.Status >= 400:
				entry.Warn("request rejected")
			default:
				entry.Info("request handled")
			}
			return nil
		},
	})
}
