package services

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/resend/resend-go/v2"

	"lex_dossier_app_go/config"
	"lex_dossier_app_go/logger"
	"lex_dossier_app_go/models"
)

// Email represents an email message
type Email struct {
	To       []string
	Subject  string
	HTMLBody string
	TextBody string
}

// SendEmail sends through Resend, or only logs when EmailTestMode is set.
func SendEmail(cfg *config.Config, email *Email) error {
	if cfg.EmailTestMode {
		logEmailToConsole(email)
		return nil
	}

	if cfg.ResendAPIKey == "" {
		return fmt.Errorf("RESEND_API_KEY not configured")
	}
	if email.HTMLBody == "" && email.TextBody == "" {
		return fmt.Errorf("email must have either HTMLBody or TextBody")
	}

	client := resend.NewClient(cfg.ResendAPIKey)
	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", cfg.EmailFromName, cfg.EmailFrom),
		To:      email.To,
		Subject: email.Subject,
		Html:    email.HTMLBody,
		Text:    email.TextBody,
	}

	sent, err := client.Emails.Send(params)
	if err != nil {
		return fmt.Errorf("failed to send email via Resend: %w", err)
	}

	logger.Infof("[EMAIL] sent via Resend (ID: %s) to: %v", sent.Id, email.To)
	return nil
}

func logEmailToConsole(email *Email) {
	logger.WithFields(map[string]interface{}{
		"to":      email.To,
		"subject": email.Subject,
		"text":    truncate(email.TextBody, 500),
	}).Info("[EMAIL] test mode, not sent")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

var notificationEmailTemplate = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html lang="fr"><body style="font-family:Helvetica,Arial,sans-serif;color:#222;">
<h2 style="font-size:18px;">{{.Title}}</h2>
<p>{{.Message}}</p>
{{if .Link}}<p><a href="{{.Link}}">Ouvrir dans l'espace client</a></p>{{end}}
<p style="color:#888;font-size:12px;">Ce message a été envoyé automatiquement, merci de ne pas y répondre.</p>
</body></html>`))

// BuildNotificationEmail renders n for the recipient address to.
func BuildNotificationEmail(appURL, to string, n *models.Notification) (*Email, error) {
	link := ""
	if n.LinkURL != "" {
		link = strings.TrimSuffix(appURL, "/") + n.LinkURL
	}
	var html bytes.Buffer
	err := notificationEmailTemplate.Execute(&html, map[string]string{
		"Title":   n.Title,
		"Message": n.Message,
		"Link":    link,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render notification email: %w", err)
	}

	text := n.Message
	if link != "" {
		text += "\n\n" + link
	}
	return &Email{
		To:       []string{to},
		Subject:  n.Title,
		HTMLBody: html.String(),
		TextBody: text,
	}, nil
}

// ResendMailer delivers outbox notifications by email.
type ResendMailer struct {
	cfg *config.Config
}

func NewResendMailer(cfg *config.Config) *ResendMailer {
	return &ResendMailer{cfg: cfg}
}

func (m *ResendMailer) SendNotificationEmail(to string, n *models.Notification) error {
	email, err := BuildNotificationEmail(m.cfg.AppURL, to, n)
	if err != nil {
		return err
	}
	return SendEmail(m.cfg, email)
}
