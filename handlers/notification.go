package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"lex_dossier_app_go/db"
	"lex_dossier_app_go/middleware"
	"lex_dossier_app_go/services"
)

// ListNotificationsHandler returns the caller's notifications (?unread=true to filter).
func ListNotificationsHandler(c echo.Context) error {
	user := middleware.GetCurrentUser(c)
	pq, err := pageParams(c)
	if err != nil {
		return err
	}
	unread, err := optionalBool(c, "unread")
	if err != nil {
		return err
	}
	service := services.NewNotificationService(db.DB)
	list, total, err := service.List(user.ID, unread != nil && *unread, pq.Page, pq.Limit)
	if err != nil {
		return err
	}
	return paged(c, "notifications", list, pq.Page, pq.Limit, total)
}

func UnreadNotificationsHandler(c echo.Context) error {
	count, err := services.NewNotificationService(db.DB).UnreadCount(middleware.GetCurrentUser(c).ID)
	if err != nil {
		return err
	}
	return ok(c, Response{"count": count})
}

func MarkNotificationReadHandler(c echo.Context) error {
	user := middleware.GetCurrentUser(c)
	if err := services.NewNotificationService(db.DB).MarkAsRead(c.Param("id"), user.ID); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Notification marked as read", nil)
}

func MarkAllNotificationsReadHandler(c echo.Context) error {
	user := middleware.GetCurrentUser(c)
	n, err := services.NewNotificationService(db.DB).MarkAllAsRead(user.ID)
	if err != nil {
		return err
	}
	return ok(c, Response{"updated": n})
}

func DeleteNotificationHandler(c echo.Context) error {
	user := middleware.GetCurrentUser(c)
	if err := services.NewNotificationService(db.DB).Delete(c.Param("id"), user.ID); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Notification deleted", nil)
}

// OutboxStatsHandler shows pending, delivered and failed outbox rows.
func OutboxStatsHandler(c echo.Context) error {
	stats, err := services.OutboxStats(db.DB)
	if err != nil {
		return err
	}
	return ok(c, Response{"data": stats})
}

// RetryOutboxHandler requeues failed outbox rows.
func RetryOutboxHandler(c echo.Context) error {
	n, err := services.RetryFailedOutbox(db.DB)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Failed notifications requeued", Response{"requeued": n})
}
