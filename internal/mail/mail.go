// Package mail delivers rendered digests over SMTP.
package mail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// ErrNotConfigured is returned when SMTP credentials or the sender are missing.
var ErrNotConfigured = errors.New("mail: SMTP credentials not configured")

// Message is one digest addressed to a single recipient.
type Message struct {
	To              string
	Subject         string
	HTML            string
	Text            string
	ListUnsubscribe string // URL, optional
}

// Options configures the SMTP connection.
type Options struct {
	Host     string
	Port     int
	SSL      bool // implicit TLS; otherwise STARTTLS is required
	From     string
	Username string
	Password string
	Timeout  time.Duration
}

// SMTPSender sends messages with one connection per message.
type SMTPSender struct {
	opts Options
}

// NewSMTPSender creates a sender. From defaults to Username.
func NewSMTPSender(opts Options) *SMTPSender {
	if opts.From == "" {
		opts.From = opts.Username
	}
	if opts.Port == 0 {
		opts.Port = 465
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &SMTPSender{opts: opts}
}

// IsConfigured reports whether the sender has what it needs to log in.
func (s *SMTPSender) IsConfigured() bool {
	return s.opts.Host != "" && s.opts.Username != "" && s.opts.Password != "" && s.opts.From != ""
}

// Send delivers m. A nil error means the server accepted the message.
func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}

	msg, err := s.build(m)
	if err != nil {
		return err
	}

	opts := []gomail.Option{
		gomail.WithPort(s.opts.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.opts.Username),
		gomail.WithPassword(s.opts.Password),
		gomail.WithTimeout(s.opts.Timeout),
	}
	if s.opts.SSL {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	}

	client, err := gomail.NewClient(s.opts.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending to %s: %w", m.To, err)
	}
	return nil
}

// WriteMessage writes m as it would be sent, for previews and debugging.
func (s *SMTPSender) WriteMessage(w io.Writer, m Message) error {
	msg, err := s.build(m)
	if err != nil {
		return err
	}
	_, err = msg.WriteTo(w)
	return err
}

// build assembles a multipart/alternative message, plain text first.
func (s *SMTPSender) build(m Message) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(s.opts.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", s.opts.From, err)
	}
	if err := msg.To(m.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", m.To, err)
	}
	msg.Subject(m.Subject)
	msg.SetDate()
	msg.SetMessageID()
	if m.ListUnsubscribe != "" {
		msg.SetGenHeader(gomail.Header("List-Unsubscribe"), "<"+m.ListUnsubscribe+">")
	}
	msg.SetBodyString(gomail.TypeTextPlain, m.Text)
	msg.AddAlternativeString(gomail.TypeTextHTML, m.HTML)
	return msg, nil
}
