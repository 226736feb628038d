// Package notify hands transactional emails to the mail relay.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/The-Simomatic/Sportisimo/internal/httputil"
)

// Kind identifies the template the relay renders.
type Kind string

// Supported notification kinds.
const (
	KindConfirmEmail  Kind = "confirm_email"
	KindPasswordReset Kind = "password_reset"
)

// Notification is one email to send.
type Notification struct {
	Kind      Kind      `json:"kind"`
	To        string    `json:"to"`
	FirstName string    `json:"first_name,omitempty"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Notifier delivers notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// LogNotifier only logs notifications. It is used when no relay is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

// Send logs the notification without its link.
func (l LogNotifier) Send(_ context.Context, n Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification not relayed", "kind", n.Kind, "to", n.To)
	return nil
}

// HTTPNotifier posts notifications as JSON to a webhook relay.
type HTTPNotifier struct {
	client *http.Client
	url    string
	token  string
}

// NewHTTPNotifier constructs an HTTPNotifier.
func NewHTTPNotifier(endpoint, token string, timeout time.Duration) *HTTPNotifier {
	return &HTTPNotifier{
		client: &http.Client{Timeout: timeout},
		url:    strings.TrimRight(endpoint, "/"),
		token:  token,
	}
}

// Send posts n to the relay. Non-2xx answers are returned as *httputil.HTTPError.
func (h *HTTPNotifier) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify relay: %w", err)
	}
	defer resp.Body.Close()

	if err := httputil.ParseErrorResponse(resp); err != nil {
		return fmt.Errorf("notify relay: %w", err)
	}
	return nil
}
