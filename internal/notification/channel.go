package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Message is a rendered notification ready for a provider
type Message struct {
	To      string
	Subject string
	Body    string
	EventID string
}

// Sender delivers messages over one channel
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// EmailSender posts to a SendGrid-compatible v3 mail API
type EmailSender struct {
	client *resty.Client
	from   string
}

// NewEmailSender creates an email sender for the API at baseURL
func NewEmailSender(baseURL, apiKey, from string, timeout time.Duration) *EmailSender {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json")
	return &EmailSender{client: client, from: from}
}

type emailAddress struct {
	Email string `json:"email"`
}

type emailPersonalization struct {
	To         []emailAddress    `json:"to"`
	CustomArgs map[string]string `json:"custom_args,omitempty"`
}

type emailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type emailRequest struct {
	Personalizations []emailPersonalization `json:"personalizations"`
	From             emailAddress           `json:"from"`
	Subject          string                 `json:"subject"`
	Content          []emailContent         `json:"content"`
}

// Send sends one email
func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	body := emailRequest{
		Personalizations: []emailPersonalization{{
			To:         []emailAddress{{Email: msg.To}},
			CustomArgs: map[string]string{"event_id": msg.EventID},
		}},
		From:    emailAddress{Email: s.from},
		Subject: msg.Subject,
		Content: []emailContent{{Type: "text/plain", Value: msg.Body}},
	}

	resp, err := s.client.R().SetContext(ctx).SetBody(body).Post("/v3/mail/send")
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("email provider returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// SMSSender posts to a Twilio-compatible messages API
type SMSSender struct {
	client     *resty.Client
	accountSID string
	from       string
}

// NewSMSSender creates an SMS sender for the API at baseURL
func NewSMSSender(baseURL, accountSID, authToken, from string, timeout time.Duration) *SMSSender {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetBasicAuth(accountSID, authToken)
	return &SMSSender{client: client, accountSID: accountSID, from: from}
}

// Send sends one text message; the subject is prepended to the body
func (s *SMSSender) Send(ctx context.Context, msg Message) error {
	text := msg.Body
	if msg.Subject != "" {
		text = msg.Subject + ": " + msg.Body
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("sid", s.accountSID).
		SetFormData(map[string]string{
			"To":   msg.To,
			"From": s.from,
			"Body": text,
		}).
		Post("/2010-04-01/Accounts/{sid}/Messages.json")
	if err != nil {
		return fmt.Errorf("failed to send sms: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("sms provider returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// WebhookSender posts a JSON document per message, used for push delivery
type WebhookSender struct {
	client *resty.Client
	url    string
}

// NewWebhookSender creates a webhook sender posting to url
func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	return &WebhookSender{
		client: resty.New().SetTimeout(timeout),
		url:    url,
	}
}

// Send posts msg to the webhook
func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	payload := map[string]string{
		"to":       msg.To,
		"title":    msg.Subject,
		"body":     msg.Body,
		"event_id": msg.EventID,
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("failed to call push webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("push webhook returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them. It stands
// in for providers that are not configured.
type LogSender struct {
	channel Channel
	log     *zap.Logger
}

// NewLogSender creates a log-only sender for channel
func NewLogSender(channel Channel, log *zap.Logger) *LogSender {
	return &LogSender{channel: channel, log: log}
}

// Send logs msg
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.Info("notification not delivered, provider not configured",
		zap.String("channel", string(s.channel)),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("event_id", msg.EventID),
	)
	return nil
}
