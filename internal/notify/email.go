package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/xela07ax/opswatch/internal/infra"
	"go.uber.org/zap"
)

// EmailChannel шлет оповещения плоским текстом по SMTP.
// Одно письмо на всех получателей сразу, без персонализации.
type EmailChannel struct {
	cfg    infra.EmailConfig
	logger *zap.Logger

	// Подменяется в тестах, по умолчанию smtp.SendMail
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailChannel(cfg infra.EmailConfig, logger *zap.Logger) *EmailChannel {
	return &EmailChannel{
		cfg:      cfg,
		logger:   logger.Named("email"),
		sendMail: smtp.SendMail,
	}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, subject, body string) error {
	return c.send(ctx, subject, body, c.cfg.Recipients)
}

// SendEscalation уходит дежурному списку, если он задан.
func (c *EmailChannel) SendEscalation(ctx context.Context, subject, body string) error {
	recipients := c.cfg.EscalationRecipients
	if len(recipients) == 0 {
		recipients = c.cfg.Recipients
	}
	return c.send(ctx, subject, body, recipients)
}

func (c *EmailChannel) send(ctx context.Context, subject, body string, recipients []string) error {
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", c.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	var auth smtp.Auth
	if c.cfg.Username != "" {
		auth = smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	if err := c.sendMail(addr, auth, c.cfg.From, recipients, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
