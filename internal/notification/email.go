// Package notification sends operational email to account owners.
package notification

import (
	"context"
	"fmt"
	"net"
	"time"

	"dialerdesk_backend/platform/config"
	"dialerdesk_backend/platform/logger"

	gomail "github.com/wneessen/go-mail"
)

// Sender delivers account notifications. The worker uses it after the
// replenishment trigger; a disabled mail config yields a no-op sender.
type Sender interface {
	SendLowBalanceEmail(ctx context.Context, toEmail, accountName string, balanceCents, refillCents int64) error
}

// SMTPSender implements Sender over a direct SMTP connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a new SMTPSender from the email configuration.
func NewSMTPSender(cfg config.EmailConfig) *SMTPSender {
	return &SMTPSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
	}
}

// SendLowBalanceEmail tells the account owner the balance crossed the floor
// and an automatic replenishment was triggered.
func (s *SMTPSender) SendLowBalanceEmail(ctx context.Context, toEmail, accountName string, balanceCents, refillCents int64) error {
	subject := "Your calling balance is low"
	body := fmt.Sprintf(lowBalanceTemplate,
		accountName, formatCents(balanceCents), formatCents(refillCents))

	return s.send(ctx, toEmail, subject, body)
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

const lowBalanceTemplate = `<html><body>
<p>Hi %s,</p>
<p>Your calling balance has dropped to <strong>%s</strong>.</p>
<p>An automatic replenishment of %s has been triggered. No action is needed;
this is a courtesy notice so the charge on your payment method is not a surprise.</p>
</body></html>`

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

// NopSender is used when email is disabled in configuration.
type NopSender struct {
	log *logger.Logger
}

// NewNopSender creates a sender that only logs.
func NewNopSender(log *logger.Logger) *NopSender {
	return &NopSender{log: log}
}

// SendLowBalanceEmail logs the notification instead of sending it.
func (s *NopSender) SendLowBalanceEmail(_ context.Context, toEmail, accountName string, balanceCents, refillCents int64) error {
	s.log.Info("email disabled, skipping low balance notice",
		"to", toEmail, "account", accountName,
		"balance_cents", balanceCents, "refill_cents", refillCents)
	return nil
}

var (
	_ Sender = (*SMTPSender)(nil)
	_ Sender = (*NopSender)(nil)
)
