package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/toimcz/hail"
	"github.com/toimcz/hail/job"
)

// Mailer builds messages from job payloads and sends them through the
// gateway. A gateway error propagates to the worker's retry path.
type Mailer struct {
	gateway Gateway
	from    string
	logger  *slog.Logger
}

// MailerOption configures a Mailer.
type MailerOption func(*Mailer)

// WithFrom sets the sender identity on outbound messages.
func WithFrom(from string) MailerOption {
	return func(m *Mailer) { m.from = from }
}

// WithLogger sets the mailer's logger.
func WithLogger(logger *slog.Logger) MailerOption {
	return func(m *Mailer) { m.logger = logger }
}

// NewMailer creates a Mailer on top of a delivery gateway.
func NewMailer(gateway Gateway, opts ...MailerOption) *Mailer {
	m := &Mailer{
		gateway: gateway,
		from:    "no-reply@hail.local",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewFamily creates the notification family with both job names bound to
// the mailer. Enqueue through the engine under notify.Family.
func NewFamily(m *Mailer, opts ...job.Option) *job.Family {
	f := job.NewFamily(Family, opts...)
	job.Bind(f, NameSendMagicLink, m.SendMagicLink)
	job.Bind(f, NameSendWelcomeEmail, m.SendWelcomeEmail)
	return f
}

// SendMagicLink delivers a login-link email. Safe to invoke more than once
// for the same token.
func (m *Mailer) SendMagicLink(ctx context.Context, p MagicLinkPayload) error {
	msg := &Message{
		From:     m.from,
		To:       recipient(p.Destination, p.SubjectID),
		Subject:  "Your login link",
		Template: TemplateMagicLink,
		Params: map[string]string{
			"subject_id": p.SubjectID,
			"link":       p.Link,
		},
	}
	return m.send(ctx, NameSendMagicLink, msg)
}

// SendWelcomeEmail delivers the post-signup welcome email.
func (m *Mailer) SendWelcomeEmail(ctx context.Context, p WelcomePayload) error {
	msg := &Message{
		From:     m.from,
		To:       recipient(p.Destination, p.SubjectID),
		Subject:  "Welcome aboard",
		Template: TemplateWelcomeEmail,
		Params: map[string]string{
			"subject_id":   p.SubjectID,
			"display_name": p.DisplayName,
		},
	}
	return m.send(ctx, NameSendWelcomeEmail, msg)
}

func (m *Mailer) send(ctx context.Context, name string, msg *Message) error {
	if m.gateway == nil {
		return hail.ErrNoGateway
	}

	deliveries, err := m.gateway.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("send %s to %s: %w", name, msg.To, err)
	}

	ids := make([]string, len(deliveries))
	for i, d := range deliveries {
		ids[i] = d.String()
	}
	m.logger.Debug("notification delivered",
		slog.String("job_name", name),
		slog.String("template", msg.Template),
		slog.Any("delivery_ids", ids),
	)
	return nil
}

// recipient falls back to the subject reference when no explicit address
// was supplied; address resolution is then the gateway's concern.
func recipient(destination, subjectID string) string {
	if destination != "" {
		return destination
	}
	return subjectID
}
