package notification

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/openclub/event-registration/internal/config"
)

// SMTPNotifier sends the confirmation email over SMTP.
type SMTPNotifier struct {
	client *mail.Client
	from   string
}

// NewSMTP constructs an SMTPNotifier from the email configuration.
func NewSMTP(cfg config.EmailConfig) (*SMTPNotifier, error) {
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &SMTPNotifier{client: client, from: cfg.From}, nil
}

func (n *SMTPNotifier) Notify(ctx context.Context, c Confirmation) error {
	msg := mail.NewMsg()
	if err := msg.From(n.from); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(c.Email); err != nil {
		return fmt.Errorf("set to: %w", err)
	}
	msg.Subject(c.Subject())
	msg.SetBodyString(mail.TypeTextPlain, c.Body())

	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send confirmation to %s: %w", c.Email, err)
	}
	return nil
}
