package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/The-Simomatic/Sportisimo/internal/events"
	"github.com/The-Simomatic/Sportisimo/internal/notify"
)

var handlerNow = time.Date(2026, time.October, 17, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	sent []notify.Notification
	err  error
}

func (r *recordingNotifier) Send(_ context.Context, n notify.Notification) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

func framed(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	frame := make([]byte, 5, 5+len(body))
	binary.BigEndian.PutUint32(frame[1:5], 11)
	return append(frame, body...)
}

func newHandler(notifier notify.Notifier) *NotificationHandler {
	h := NewNotificationHandler(notifier, "https://sportisimo.example.fr/")
	h.now = func() time.Time { return handlerNow }
	return h
}

func TestNotificationHandlerSendsConfirmationLink(t *testing.T) {
	notifier := &recordingNotifier{}
	msg := Message{
		Topic:   "identity_notifications",
		Headers: map[string]string{"event_type": events.TypeIdentitySignedUp},
		Payload: framed(t, events.IdentitySignedUp{
			IdentityID: "id-1",
			Email:      "lea@example.fr",
			FirstName:  "Léa",
			Code:       "c0de",
			ExpiresAt:  handlerNow.Add(24 * time.Hour),
		}),
	}

	require.NoError(t, newHandler(notifier).Handle(context.Background(), msg))
	require.Len(t, notifier.sent, 1)
	require.Equal(t, notify.Notification{
		Kind:      notify.KindConfirmEmail,
		To:        "lea@example.fr",
		FirstName: "Léa",
		Link:      "https://sportisimo.example.fr/?code=c0de",
		ExpiresAt: handlerNow.Add(24 * time.Hour),
	}, notifier.sent[0])
}

func TestNotificationHandlerSendsRecoveryLink(t *testing.T) {
	notifier := &recordingNotifier{}
	body, err := json.Marshal(events.PasswordResetRequested{Email: "lea@example.fr", Code: "r3set", ExpiresAt: handlerNow.Add(time.Hour)})
	require.NoError(t, err)
	msg := Message{
		Topic:   "identity_notifications",
		Headers: map[string]string{"event_type": events.TypePasswordResetRequested},
		Payload: body,
	}

	require.NoError(t, newHandler(notifier).Handle(context.Background(), msg))
	require.Len(t, notifier.sent, 1)
	require.Equal(t, notify.KindPasswordReset, notifier.sent[0].Kind)
	require.Equal(t, "https://sportisimo.example.fr/?code=r3set&type=recovery", notifier.sent[0].Link)
}

func TestNotificationHandlerSkips(t *testing.T) {
	cases := []struct {
		name string
		msg  func(t *testing.T) Message
	}{
		{
			name: "profile events",
			msg: func(t *testing.T) Message {
				return Message{Headers: map[string]string{"event_type": events.TypeProfileCreated}, Payload: json.RawMessage(`{}`)}
			},
		},
		{
			name: "expired codes",
			msg: func(t *testing.T) Message {
				return Message{
					Headers: map[string]string{"event_type": events.TypeIdentitySignedUp},
					Payload: framed(t, events.IdentitySignedUp{Email: "a@example.fr", Code: "old", ExpiresAt: handlerNow.Add(-time.Minute)}),
				}
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			notifier := &recordingNotifier{}
			require.NoError(t, newHandler(notifier).Handle(context.Background(), tc.msg(t)))
			require.Empty(t, notifier.sent)
		})
	}
}

func TestNotificationHandlerErrors(t *testing.T) {
	bad := Message{Headers: map[string]string{"event_type": events.TypeIdentitySignedUp}, Payload: json.RawMessage(`not json`)}
	require.Error(t, newHandler(&recordingNotifier{}).Handle(context.Background(), bad))

	noRecipient := Message{
		Headers: map[string]string{"event_type": events.TypePasswordResetRequested},
		Payload: framed(t, events.PasswordResetRequested{Code: "x", ExpiresAt: handlerNow.Add(time.Hour)}),
	}
	require.ErrorContains(t, newHandler(&recordingNotifier{}).Handle(context.Background(), noRecipient), "without recipient")

	relayErr := errors.New("relay down")
	ok := Message{
		Headers: map[string]string{"event_type": events.TypeIdentitySignedUp},
		Payload: framed(t, events.IdentitySignedUp{Email: "a@example.fr", Code: "x", ExpiresAt: handlerNow.Add(time.Hour)}),
	}
	require.ErrorIs(t, newHandler(&recordingNotifier{err: relayErr}).Handle(context.Background(), ok), relayErr)
}
