// Package events defines the payloads published through the outbox.
package events

import "time"

// Event type names carried in the outbox and the Kafka event_type header.
const (
	TypeProfileCreated         = "profile.created"
	TypeProfileUpdated         = "profile.updated"
	TypeIdentitySignedUp       = "identity.signed_up"
	TypePasswordResetRequested = "identity.password_reset_requested"
)

// ProfileCreated is emitted when a profile row is first inserted.
type ProfileCreated struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Sport     string    `json:"sport"`
	Level     string    `json:"level"`
	VMA       float64   `json:"vma"`
	CreatedAt time.Time `json:"created_at"`
}

// ProfileUpdated carries the mutable fields after an update. The Strava token
// itself is never published.
type ProfileUpdated struct {
	UserID       string    `json:"user_id"`
	VMA          float64   `json:"vma"`
	WeightKg     float64   `json:"weight_kg"`
	StravaLinked bool      `json:"strava_linked"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IdentitySignedUp asks the notifier to send the email confirmation link.
type IdentitySignedUp struct {
	IdentityID string    `json:"identity_id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name,omitempty"`
	Code       string    `json:"code"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// PasswordResetRequested asks the notifier to send the recovery link.
type PasswordResetRequested struct {
	IdentityID string    `json:"identity_id"`
	Email      string    `json:"email"`
	Code       string    `json:"code"`
	ExpiresAt  time.Time `json:"expires_at"`
}
