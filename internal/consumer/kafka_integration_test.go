//go:build integration

package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/The-Simomatic/Sportisimo/internal/events"
	"github.com/The-Simomatic/Sportisimo/internal/notify"
	"github.com/The-Simomatic/Sportisimo/internal/outbox"
	"github.com/The-Simomatic/Sportisimo/internal/testsupport"
)

type syncNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (s *syncNotifier) Send(_ context.Context, n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *syncNotifier) snapshot() []notify.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Notification(nil), s.sent...)
}

func TestKafkaSignUpEventSendsConfirmationMail(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	const topic = "identity_notifications"
	broker := testsupport.StartKafka(ctx, t, topic)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{broker},
		GroupID:     "notifier-integration",
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	notifier := &syncNotifier{}
	proc := NewProcessor(reader, NewNotificationHandler(notifier, "http://localhost:8080"))

	consumerCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		_ = proc.Run(consumerCtx)
	}()

	evt := events.IdentitySignedUp{
		IdentityID: "id-int",
		Email:      "lea@example.fr",
		FirstName:  "Léa",
		Code:       "c0de",
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
	}
	body, err := json.Marshal(evt)
	require.NoError(t, err)
	value := make([]byte, 5, 5+len(body))
	binary.BigEndian.PutUint32(value[1:5], 3)
	value = append(value, body...)

	producer := outbox.NewKafkaProducer([]string{broker})
	defer producer.Close()
	require.NoError(t, producer.WriteMessages(ctx, topic, kafka.Message{
		Key:     []byte(evt.IdentityID),
		Value:   value,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(events.TypeIdentitySignedUp)}},
	}))

	require.Eventually(t, func() bool {
		return len(notifier.snapshot()) == 1
	}, 60*time.Second, 250*time.Millisecond)

	sent := notifier.snapshot()[0]
	require.Equal(t, notify.KindConfirmEmail, sent.Kind)
	require.Equal(t, "lea@example.fr", sent.To)
	require.Equal(t, "http://localhost:8080/?code=c0de", sent.Link)
}
