package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// WebhookPushSender posts the payload as JSON to the registered endpoint
// URL. Endpoints that answer 404 or 410 are gone for good; other non-2xx
// responses are treated as transient.
type WebhookPushSender struct {
	Client *http.Client
	Log    zerolog.Logger
}

// NewWebhookPushSender builds a sender with a dedicated HTTP client so
// delivery timeouts never inherit from a shared default.
func NewWebhookPushSender(timeout time.Duration, log zerolog.Logger) *WebhookPushSender {
	return &WebhookPushSender{
		Client: &http.Client{Timeout: timeout},
		Log:    log.With().Str("component", "push").Logger(),
	}
}

func (s *WebhookPushSender) DeliverPush(ctx context.Context, endpoint string, payload PushPayload) PushResult {
	body, err := json.Marshal(payload)
	if err != nil {
		s.Log.Error().Err(err).Msg("encode push payload")
		return PushServerError
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		// A malformed endpoint URL will never become deliverable.
		return PushClientError
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		s.Log.Warn().Err(err).Msg("push delivery failed")
		return PushServerError
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return PushOK
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return PushClientError
	default:
		s.Log.Warn().Int("status", resp.StatusCode).Msg("push endpoint rejected delivery")
		return PushServerError
	}
}

// LogEmailSender records what would have been sent instead of delivering.
// It stands in where no relay is configured, such as local development.
type LogEmailSender struct {
	Log zerolog.Logger
}

func NewLogEmailSender(log zerolog.Logger) *LogEmailSender {
	return &LogEmailSender{Log: log.With().Str("component", "email").Logger()}
}

func (s *LogEmailSender) DeliverEmail(_ context.Context, address string, data EmailData) error {
	s.Log.Info().
		Str("to", address).
		Str("seeker", data.SeekerName).
		Bool("familiar", data.Familiar).
		Msg("email dispatched (log transport)")
	return nil
}
