package auth

import (
	"context"
	"errors"
	"time"

	"github.com/The-Simomatic/Sportisimo/internal/domain"
)

// ErrEmailTaken is returned by a Store when an identity already uses the email.
var ErrEmailTaken = errors.New("email already registered")

// Purpose distinguishes one-time codes.
type Purpose string

const (
	PurposeConfirm  Purpose = "confirm"
	PurposeRecovery Purpose = "recovery"
)

// Provider names recorded on identities.
const (
	ProviderEmail = "email"
	ProviderOAuth = "oauth"
)

// IdentityRecord is a stored account.
type IdentityRecord struct {
	ID           string
	Email        string
	PasswordHash string
	Metadata     domain.Metadata
	Provider     string
	ConfirmedAt  *time.Time
	CreatedAt    time.Time
}

// Identity returns the user handle exposed to the rest of the service.
func (r IdentityRecord) Identity() domain.Identity {
	return domain.Identity{ID: r.ID, Email: r.Email, Metadata: r.Metadata}
}

// SessionRecord is a stored session. Tokens reference it by ID so sign-out
// can revoke them before expiry.
type SessionRecord struct {
	ID         string
	IdentityID string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
}

// Live reports whether the session may still be used at now.
func (s SessionRecord) Live(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// Code is a one-time code mailed to the user. Only Hash is persisted; Plain
// travels in the notification event.
type Code struct {
	Hash       string
	Plain      string
	IdentityID string
	Email      string
	FirstName  string
	Purpose    Purpose
	ExpiresAt  time.Time
}

// Store persists identities, sessions and one-time codes. Lookups return
// (nil, nil) when nothing matches.
type Store interface {
	// CreateIdentity stores rec and its confirmation code, and queues the
	// sign-up notification. A duplicate email yields ErrEmailTaken.
	CreateIdentity(ctx context.Context, rec IdentityRecord, code Code) error
	IdentityByEmail(ctx context.Context, email string) (*IdentityRecord, error)
	Identity(ctx context.Context, id string) (*IdentityRecord, error)
	// UpsertExternalIdentity returns the identity owning rec.Email, creating it
	// if needed. An existing identity is marked confirmed; one that was not
	// confirmed yet also loses its password.
	UpsertExternalIdentity(ctx context.Context, rec IdentityRecord) (*IdentityRecord, error)
	ConfirmIdentity(ctx context.Context, id string, at time.Time) error
	SetPassword(ctx context.Context, id, hash string, at time.Time) error

	CreateSession(ctx context.Context, s SessionRecord) error
	Session(ctx context.Context, id string) (*SessionRecord, error)
	RevokeSession(ctx context.Context, id string, at time.Time) error

	// IssueRecoveryCode stores code and queues the password reset notification.
	IssueRecoveryCode(ctx context.Context, code Code) error
	// ConsumeCode marks the unexpired, unused code with hash as used and returns it.
	ConsumeCode(ctx context.Context, hash string, now time.Time) (*Code, error)
}
