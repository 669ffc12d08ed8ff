package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/wdir-license-backend/pkg/config"
	"github.com/angelmondragon/wdir-license-backend/pkg/logger"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Message is a single transactional email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Dispatcher delivers transactional email.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGrid delivers messages through the SendGrid v3 API.
type SendGrid struct {
	client   sendClient
	from     string
	fromName string
}

// New returns a SendGrid dispatcher, or a log-only dispatcher when no API key
// is configured outside production.
func New(cfg config.SendgridConfig, app config.AppConfig, logg *logger.Logger) (Dispatcher, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		if app.IsProd() {
			return nil, errors.New("sendgrid api key is required in prod")
		}
		return NewLogDispatcher(logg), nil
	}
	return newSendGrid(sendgrid.NewSendClient(key), cfg), nil
}

func newSendGrid(client sendClient, cfg config.SendgridConfig) *SendGrid {
	return &SendGrid{
		client:   client,
		from:     cfg.DefaultFrom,
		fromName: cfg.FromName,
	}
}

func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("recipient is required")
	}
	m := mail.NewSingleEmail(
		mail.NewEmail(s.fromName, s.from),
		msg.Subject,
		mail.NewEmail("", msg.To),
		msg.Text,
		msg.HTML,
	)

	tracking := mail.NewTrackingSettings()
	click := mail.NewClickTrackingSetting()
	click.SetEnable(false)
	click.SetEnableText(false)
	tracking.SetClickTracking(click)
	open := mail.NewOpenTrackingSetting()
	open.SetEnable(false)
	tracking.SetOpenTracking(open)
	m.SetTrackingSettings(tracking)

	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid api error: %d", resp.StatusCode)
	}
	return nil
}

// LogDispatcher writes messages to the logger instead of sending them.
type LogDispatcher struct {
	logg *logger.Logger
}

func NewLogDispatcher(logg *logger.Logger) *LogDispatcher {
	return &LogDispatcher{logg: logg}
}

func (d *LogDispatcher) Send(ctx context.Context, msg Message) error {
	if d.logg == nil {
		return nil
	}
	ctx = d.logg.WithEmail(ctx, msg.To)
	ctx = d.logg.WithField(ctx, "subject", msg.Subject)
	d.logg.Info(ctx, "email dispatch skipped (no sendgrid key)")
	return nil
}
