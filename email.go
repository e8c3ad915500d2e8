package authcore

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// TemplateKind names a notification template.
type TemplateKind string

const (
	TemplateVerifyEmail   TemplateKind = "verify_email"
	TemplateResetPassword TemplateKind = "reset_password"
)

// Mailer delivers workflow notifications. The WorkflowOrchestrator calls
// Send on the request path and swallows failures after logging them, so
// implementations that talk to slow upstreams should enforce their own
// timeouts via ctx.
type Mailer interface {
	Send(ctx context.Context, to string, kind TemplateKind, data map[string]any) error
}

// ConsoleMailer is a development implementation that logs emails instead of
// sending them.
type ConsoleMailer struct {
	Logger *slog.Logger
}

func (c *ConsoleMailer) Send(ctx context.Context, to string, kind TemplateKind, data map[string]any) error {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	subject, body := renderMail(kind, data)
	logger.Info("email (console)", "to", to, "subject", subject, "body", body)
	return nil
}

// SMTPMailer delivers notifications over SMTP.
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (m *SMTPMailer) Send(ctx context.Context, to string, kind TemplateKind, data map[string]any) error {
	subject, body := renderMail(kind, data)
	from := m.From
	if from == "" {
		from = m.Username
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}
	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)
	if err := smtp.SendMail(addr, auth, from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}

func renderMail(kind TemplateKind, data map[string]any) (subject, body string) {
	name, _ := data["name"].(string)
	link, _ := data["link"].(string)
	greeting := "Hello"
	if name != "" {
		greeting = "Hello " + name
	}

	switch kind {
	case TemplateResetPassword:
		subject = "Reset your password"
		body = fmt.Sprintf(`<html><body>
<h1>Reset Your Password</h1>
<p>%s,</p>
<p>Please click the link below to reset your password:</p>
<p><a href="%s">%s</a></p>
<p>If you didn't request a password reset, you can ignore this email.</p>
</body></html>`, greeting, link, link)
	default:
		subject = "Verify your email address"
		body = fmt.Sprintf(`<html><body>
<h1>Verify Your Email</h1>
<p>%s,</p>
<p>Please click the link below to verify your email address:</p>
<p><a href="%s">%s</a></p>
<p>If you didn't create an account, you can ignore this email.</p>
</body></html>`, greeting, link, link)
	}
	return subject, body
}
