package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

const (
	providerSMTP    = "smtp"
	implicitTLSPort = 465

	defaultSMTPTimeout = 15 * time.Second
)

// SMTPConfig holds the configuration for the SMTP email sender.
type SMTPConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	SenderAddress string
	SenderName    string
}

// SMTPSender implements Sender over an SMTP relay. Port 465 uses implicit
// TLS; other ports upgrade with STARTTLS when the server offers it.
// With a username set the relay must advertise AUTH or the send fails.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender creates a new SMTPSender.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp: host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("smtp: invalid port %d", cfg.Port)
	}
	if cfg.SenderAddress == "" {
		return nil, fmt.Errorf("smtp: sender address is required")
	}
	return &SMTPSender{cfg: cfg}, nil
}

// Send delivers msg through the relay. The context bounds the whole exchange.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return transportError(providerSMTP, errors.New("recipient is required"))
	}

	m, err := newMailMsg(s.cfg.SenderName, s.cfg.SenderAddress, msg)
	if err != nil {
		return transportError(providerSMTP, err)
	}

	client, err := mail.NewClient(s.cfg.Host, s.clientOptions(ctx)...)
	if err != nil {
		return transportError(providerSMTP, fmt.Errorf("failed to create client: %w", err))
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return transportError(providerSMTP, err)
	}
	return nil
}

func (s *SMTPSender) clientOptions(ctx context.Context) []mail.Option {
	timeout := defaultSMTPTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			timeout = remaining
		}
	}

	opts := []mail.Option{mail.WithTimeout(timeout)}
	if s.cfg.Port == implicitTLSPort {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	// the configured port overrides any option default
	return append(opts, mail.WithPort(s.cfg.Port))
}
