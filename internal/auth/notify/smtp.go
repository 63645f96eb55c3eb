// Package notify delivers one-time codes to users by email.
package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

const (
	subject     = "Your verification code"
	bodyPattern = "Your verification code is: %s\r\n"
)

// SMTPConfig describes the outbound mail relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string // empty disables AUTH
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPNotifier sends OTP emails through an SMTP relay, upgrading to TLS when
// the server offers STARTTLS.
type SMTPNotifier struct {
	cfg  SMTPConfig
	opts []mail.Option
	now  func() time.Time
}

func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, errors.New("notify: smtp host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if err := mail.NewMsg().From(cfg.From); err != nil {
		return nil, fmt.Errorf("notify: invalid from address: %w", err)
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTLSConfig(&tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}),
		mail.WithTimeout(cfg.Timeout),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	return &SMTPNotifier{cfg: cfg, opts: opts, now: time.Now}, nil
}

// SendOTP emails code to the given address. Delivery errors are returned to
// the caller.
func (n *SMTPNotifier) SendOTP(ctx context.Context, email, code string) error {
	m, err := n.message(email, code)
	if err != nil {
		return err
	}

	// A mail.Client holds one connection and is not safe for concurrent use
	c, err := mail.NewClient(n.cfg.Host, n.opts...)
	if err != nil {
		return fmt.Errorf("notify: smtp client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("notify: send to %s:%d: %w", n.cfg.Host, n.cfg.Port, err)
	}
	return nil
}

func (n *SMTPNotifier) message(email, code string) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(n.cfg.From); err != nil {
		return nil, fmt.Errorf("notify: invalid from address: %w", err)
	}
	if err := m.To(email); err != nil {
		return nil, fmt.Errorf("notify: invalid recipient: %w", err)
	}
	m.Subject(subject)
	m.SetDateWithValue(n.now().UTC())
	m.SetMessageID()
	m.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(bodyPattern, code))
	return m, nil
}
