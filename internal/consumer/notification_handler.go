package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/The-Simomatic/Sportisimo/internal/events"
	"github.com/The-Simomatic/Sportisimo/internal/notify"
	"github.com/The-Simomatic/Sportisimo/internal/outbox"
)

// NotificationHandler turns identity events into confirmation and recovery emails.
type NotificationHandler struct {
	notifier notify.Notifier
	baseURL  string
	now      func() time.Time
}

// NewNotificationHandler constructs a handler whose links point at baseURL.
func NewNotificationHandler(notifier notify.Notifier, baseURL string) *NotificationHandler {
	return &NotificationHandler{
		notifier: notifier,
		baseURL:  strings.TrimRight(baseURL, "/"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Handle sends one email per identity.signed_up or password reset event.
// Other event types and codes that already expired are ignored.
func (h *NotificationHandler) Handle(ctx context.Context, msg Message) error {
	_, payload := outbox.DecodeWireFormat(msg.Payload)

	var n notify.Notification
	switch msg.EventType() {
	case events.TypeIdentitySignedUp:
		var evt events.IdentitySignedUp
		if err := json.Unmarshal(payload, &evt); err != nil {
			return fmt.Errorf("decode %s: %w", msg.EventType(), err)
		}
		n = notify.Notification{
			Kind:      notify.KindConfirmEmail,
			To:        evt.Email,
			FirstName: evt.FirstName,
			Link:      h.link(evt.Code, false),
			ExpiresAt: evt.ExpiresAt,
		}
	case events.TypePasswordResetRequested:
		var evt events.PasswordResetRequested
		if err := json.Unmarshal(payload, &evt); err != nil {
			return fmt.Errorf("decode %s: %w", msg.EventType(), err)
		}
		n = notify.Notification{
			Kind:      notify.KindPasswordReset,
			To:        evt.Email,
			Link:      h.link(evt.Code, true),
			ExpiresAt: evt.ExpiresAt,
		}
	default:
		return nil
	}

	if n.To == "" {
		return fmt.Errorf("%s event without recipient", msg.EventType())
	}
	if !n.ExpiresAt.IsZero() && !h.now().Before(n.ExpiresAt) {
		return nil
	}

	if err := h.notifier.Send(ctx, n); err != nil {
		return err
	}
	RecordProcessed(msg)
	return nil
}

// link lands on the dashboard root, where the session reconciler exchanges the code.
func (h *NotificationHandler) link(code string, recovery bool) string {
	q := url.Values{}
	q.Set("code", code)
	if recovery {
		q.Set("type", "recovery")
	}
	return h.baseURL + "/?" + q.Encode()
}
