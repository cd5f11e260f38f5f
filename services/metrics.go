package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	notificationsEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lexdossier_notifications_enqueued_total",
		Help: "Notifications written to the outbox, by type.",
	}, []string{"type"})

	notificationsDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lexdossier_notifications_delivered_total",
		Help: "Outbox entries turned into in-app notifications, by type.",
	}, []string{"type"})

	notificationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lexdossier_notification_failures_total",
		Help: "Notification delivery failures, by channel.",
	}, []string{"channel"})

	activityLogFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lexdossier_activity_log_failures_total",
		Help: "Activity log writes that failed and were skipped.",
	})

	numeroFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lexdossier_numero_fallbacks_total",
		Help: "Dossier numbers issued with the timestamp fallback.",
	})

	failedLogins = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lexdossier_failed_logins_total",
		Help: "Rejected login attempts.",
	})

	securityAlerts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lexdossier_security_alerts_total",
		Help: "Alerts raised by the failed login monitor.",
	})
)

func init() {
	prometheus.MustRegister(
		notificationsEnqueued,
		notificationsDelivered,
		notificationFailures,
		activityLogFailures,
		numeroFallbacks,
		failedLogins,
		securityAlerts,
	)
}
