package models

// All returns every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Dossier{},
		&DossierCounter{},
		&Document{},
		&Task{},
		&Creneau{},
		&RendezVous{},
		&Message{},
		&MessageRecipient{},
		&MessageAttachment{},
		&Notification{},
		&NotificationOutbox{},
		&ActivityLog{},
		&PasswordResetToken{},
	}
}
