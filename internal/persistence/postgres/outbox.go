package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/The-Simomatic/Sportisimo/internal/events"
)

// Topics the outbox routes events to.
const (
	TopicProfileEvents         = "profile_events"
	TopicIdentityNotifications = "identity_notifications"
)

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	AggregateType string
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeProfileCreated: {
		AggregateType: "profile",
		Topic:         TopicProfileEvents,
		SchemaSubject: TopicProfileEvents + "-value",
	},
	events.TypeProfileUpdated: {
		AggregateType: "profile",
		Topic:         TopicProfileEvents,
		SchemaSubject: TopicProfileEvents + "-value",
	},
	events.TypeIdentitySignedUp: {
		AggregateType: "identity",
		Topic:         TopicIdentityNotifications,
		SchemaSubject: TopicIdentityNotifications + "-value",
	},
	events.TypePasswordResetRequested: {
		AggregateType: "identity",
		Topic:         TopicIdentityNotifications,
		SchemaSubject: TopicIdentityNotifications + "-value",
	},
}

// outboxEntry is one event to append inside the caller's transaction.
type outboxEntry struct {
	AggregateID string
	EventType   string
	DedupeKey   string
	Payload     interface{}
}

func insertOutbox(ctx context.Context, tx pgx.Tx, entry outboxEntry) error {
	body, err := json.Marshal(entry.Payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[entry.EventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", entry.EventType)
	}

	dedupeKey := entry.DedupeKey
	if dedupeKey == "" {
		dedupeKey = fmt.Sprintf("%s:%s", entry.AggregateID, entry.EventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		meta.AggregateType,
		entry.AggregateID,
		entry.EventType,
		meta.Topic,
		meta.SchemaSubject,
		entry.AggregateID,
		body,
		dedupeKey,
	)
	return err
}
