// Package notify sends plain-text reports to forge users over SMTP.
package notify

import (
	"context"

	"github.com/wneessen/go-mail"
)

// Mailer is what the relays depend on; tests substitute a recorder.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMTPOptions struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

type SMTPMailer struct {
	opts SMTPOptions
}

func NewSMTPMailer(opts SMTPOptions) *SMTPMailer {
	if opts.Port == 0 {
		opts.Port = 25
	}
	return &SMTPMailer{opts: opts}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.opts.From); err != nil {
		return err
	}
	if err := msg.To(to); err != nil {
		return err
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	options := []mail.Option{
		mail.WithPort(m.opts.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.opts.Username != "" {
		options = append(options,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.opts.Username),
			mail.WithPassword(m.opts.Password),
		)
	}

	client, err := mail.NewClient(m.opts.Host, options...)
	if err != nil {
		return err
	}

	return client.DialAndSendWithContext(ctx, msg)
}
