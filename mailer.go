package edutrack

import (
	"context"
	"fmt"
	"net/smtp"
)

// SMTPConfig carries the connection details for the outgoing mail server.
type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	From     string `json:"from"`
	BaseURL  string `json:"base_url"`
}

func (c SMTPConfig) address() string {
	port := c.Port
	if port == 0 {
		port = 25
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// SMTPMailer delivers plain text mail over SMTP.
type SMTPMailer struct {
	config SMTPConfig
	logger Logger
}

func NewSMTPMailer(config SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		config: config,
		logger: defLogger{},
	}
}

func (m *SMTPMailer) WithLogger(logger Logger) *SMTPMailer {
	if logger != nil {
		m.logger = logger
	}
	return m
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	from := m.config.From
	if from == "" {
		from = "noreply"
	}

	headers := map[string]string{
		"From":         from,
		"To":           to,
		"Subject":      subject,
		"MIME-version": "1.0",
		"Content-Type": "text/plain; charset=UTF-8",
	}

	message := ""
	for k, v := range headers {
		message += fmt.Sprintf("%s: %s\r\n", k, v)
	}
	message += "\r\n" + body + "\r\n"

	var auth smtp.Auth
	if m.config.User != "" {
		auth = smtp.PlainAuth("", m.config.User, m.config.Password, m.config.Host)
	}

	if err := smtp.SendMail(m.config.address(), auth, from, []string{to}, []byte(message)); err != nil {
		return err
	}

	m.logger.Debug("mail sent", "to", to, "subject", subject)
	return nil
}

var _ Mailer = (*SMTPMailer)(nil)

// LogMailer writes outgoing mail to the logger instead of delivering it.
// Useful in development and tests.
type LogMailer struct {
	logger Logger
}

func NewLogMailer(logger Logger) *LogMailer {
	if logger == nil {
		logger = defLogger{}
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.logger.Info("mail", "to", to, "subject", subject, "body", body)
	return nil
}

var _ Mailer = (*LogMailer)(nil)

type noopMailer struct{}

func (noopMailer) Send(context.Context, string, string, string) error {
	return nil
}

func normalizeMailer(m Mailer) Mailer {
	if m == nil {
		return noopMailer{}
	}
	return m
}

func verificationEmailBody(name, token string) string {
	return fmt.Sprintf(
		"Hi %s,\n\nPlease verify your email address by opening the link below:\n\n/api/auth/verify/%s\n\nThe link expires in one hour.\n",
		name, token,
	)
}

func resetEmailBody(name, token string) string {
	return fmt.Sprintf(
		"Hi %s,\n\nWe received a request to reset your password. Open the link below to choose a new one:\n\n/reset/%s\n\nThe link expires in one hour. If you did not request this you can ignore this email.\n",
		name, token,
	)
}
