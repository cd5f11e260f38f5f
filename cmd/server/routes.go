package main

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lex_dossier_app_go/handlers"
	"lex_dossier_app_go/middleware"
)

func registerRoutes(e *echo.Echo) {
	e.GET("/health", handlers.HealthHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")

	// Authentication
	auth := api.Group("/auth")
	{
		auth.POST("/register", handlers.RegisterHandler, middleware.LoginRateLimiter.Middleware())
		auth.POST("/login", handlers.LoginHandler, middleware.LoginRateLimiter.Middleware())
		auth.POST("/forgot-password", handlers.ForgotPasswordHandler, middleware.PasswordResetRateLimiter.Middleware())
		auth.POST("/reset-password", handlers.ResetPasswordHandler, middleware.PasswordResetRateLimiter.Middleware())

		auth.GET("/me", handlers.MeHandler, middleware.RequireAuth())
		auth.PUT("/profile", handlers.UpdateProfileHandler, middleware.RequireAuth())
		auth.PUT("/password", handlers.ChangePasswordHandler, middleware.RequireAuth())
		auth.POST("/impersonate/:id", handlers.ImpersonateHandler, middleware.RequireAuth(), middleware.RequireAdmin())
	}

	// User administration
	users := api.Group("/users", middleware.RequireAuth(), middleware.RequireAdmin())
	{
		users.GET("", handlers.ListUsersHandler)
		users.POST("", handlers.CreateUserHandler)
		users.PUT("/:id", handlers.UpdateUserHandler)
		users.DELETE("/:id", handlers.DeleteUserHandler)
	}

	// Dossiers: anyone may submit, the rest needs an account
	api.POST("/user/dossiers", handlers.CreateDossierHandler,
		middleware.PublicFormRateLimiter.Middleware(), middleware.OptionalAuth())
	dossiers := api.Group("/user/dossiers", middleware.RequireAuth())
	{
		dossiers.GET("", handlers.ListMyDossiersHandler)
		dossiers.GET("/admin", handlers.ListAdminDossiersHandler, middleware.RequireStaff())
		dossiers.GET("/admin/export", handlers.ExportDossiersHandler, middleware.RequireStaff())
		dossiers.GET("/stats", handlers.DossierStatsHandler, middleware.RequireAdmin())
		dossiers.GET("/:id", handlers.GetDossierHandler)
		dossiers.PUT("/:id", handlers.UpdateDossierHandler)
		dossiers.DELETE("/:id", handlers.DeleteDossierHandler)
	}

	// Documents
	documents := api.Group("/user/documents", middleware.RequireAuth())
	{
		documents.GET("", handlers.ListDocumentsHandler)
		documents.POST("", handlers.UploadDocumentHandler, middleware.UploadRateLimiter.Middleware())
		documents.GET("/:id/preview", handlers.PreviewDocumentHandler)
		documents.GET("/:id/download", handlers.DownloadDocumentHandler)
		documents.DELETE("/:id", handlers.DeleteDocumentHandler)
	}

	// Slots and appointments
	api.GET("/creneaux/available", handlers.AvailableSlotsHandler)
	creneaux := api.Group("/creneaux", middleware.RequireAuth(), middleware.RequireStaff())
	{
		creneaux.GET("", handlers.ListClosedSlotsHandler)
		creneaux.POST("", handlers.CloseSlotHandler)
		creneaux.DELETE("/:id", handlers.ReopenSlotHandler)
	}

	api.POST("/appointments", handlers.BookAppointmentHandler,
		middleware.PublicFormRateLimiter.Middleware(), middleware.OptionalAuth())
	appointments := api.Group("/appointments", middleware.RequireAuth())
	{
		appointments.GET("", handlers.ListMyAppointmentsHandler)
		appointments.GET("/admin", handlers.ListAdminAppointmentsHandler, middleware.RequireStaff())
		appointments.PATCH("/:id", handlers.UpdateAppointmentHandler, middleware.RequireStaff())
		appointments.PATCH("/:id/cancel", handlers.CancelAppointmentHandler)
	}

	// Messaging
	messages := api.Group("/messages", middleware.RequireAuth())
	{
		messages.GET("", handlers.ListMessagesHandler)
		messages.POST("", handlers.SendMessageHandler, middleware.UploadRateLimiter.Middleware())
		messages.GET("/unread-count", handlers.UnreadMessagesHandler)
		messages.PUT("/:id/read", handlers.MarkMessageReadHandler)
		messages.PUT("/:id/archive", handlers.ArchiveMessageHandler)
		messages.GET("/:id/download/:fileIndex", handlers.DownloadAttachmentHandler)
	}

	// Tasks (staff only)
	tasks := api.Group("/tasks", middleware.RequireAuth(), middleware.RequireStaff())
	{
		tasks.GET("", handlers.ListTasksHandler)
		tasks.GET("/my", handlers.ListMyTasksHandler)
		tasks.POST("", handlers.CreateTaskHandler)
		tasks.PUT("/:id", handlers.UpdateTaskHandler)
		tasks.DELETE("/:id", handlers.DeleteTaskHandler)
	}

	// Notifications
	notifications := api.Group("/notifications", middleware.RequireAuth())
	{
		notifications.GET("", handlers.ListNotificationsHandler)
		notifications.GET("/unread-count", handlers.UnreadNotificationsHandler)
		notifications.PUT("/read-all", handlers.MarkAllNotificationsReadHandler)
		notifications.PUT("/:id/read", handlers.MarkNotificationReadHandler)
		notifications.DELETE("/:id", handlers.DeleteNotificationHandler)
		notifications.GET("/outbox/stats", handlers.OutboxStatsHandler, middleware.RequireSuperadmin())
		notifications.POST("/outbox/retry", handlers.RetryOutboxHandler, middleware.RequireSuperadmin())
	}

	// Audit trail (superadmin only)
	logs := api.Group("/logs", middleware.RequireAuth(), middleware.RequireSuperadmin())
	{
		logs.GET("", handlers.ListLogsHandler)
		logs.GET("/stats", handlers.LogStatsHandler)
		logs.GET("/dlog/pdf", handlers.DailyLogPDFHandler)
		logs.GET("/security-alerts", handlers.SecurityAlertsHandler)
	}
}
