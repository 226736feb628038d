package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/The-Simomatic/Sportisimo/internal/domain"
	"github.com/The-Simomatic/Sportisimo/internal/observability"
	"github.com/The-Simomatic/Sportisimo/internal/session"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid login credentials")
	// ErrEmailNotConfirmed is returned when signing in before following the confirmation link.
	ErrEmailNotConfirmed = errors.New("email not confirmed")
	// ErrInvalidCode is returned for an unknown, expired or already used code.
	ErrInvalidCode = errors.New("invalid or expired code")
	// ErrInvalidEmail is returned for a malformed email address.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrWeakPassword is returned for passwords shorter than MinPasswordLength.
	ErrWeakPassword = errors.New("password too short")
	// ErrOAuthDisabled is returned by BeginOAuth when no OAuth client is configured.
	ErrOAuthDisabled = errors.New("oauth sign-in not configured")
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// DefaultCodeTTL bounds the validity of mailed confirmation and recovery codes.
const DefaultCodeTTL = 24 * time.Hour

// Option configures a Provider.
type Option func(*Provider)

// WithLogger overrides the provider logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// WithOAuth enables third-party sign-in.
func WithOAuth(client *OAuthClient) Option {
	return func(p *Provider) {
		p.oauth = client
	}
}

// WithCodeTTL overrides DefaultCodeTTL.
func WithCodeTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		p.codeTTL = ttl
	}
}

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) Option {
	return func(p *Provider) {
		p.bcryptCost = cost
	}
}

// Provider is the identity provider backed by a Store.
type Provider struct {
	store      Store
	tokens     TokenConfig
	oauth      *OAuthClient
	codeTTL    time.Duration
	bcryptCost int
	logger     *slog.Logger
	now        func() time.Time
}

// NewProvider constructs a Provider.
func NewProvider(store Store, tokens TokenConfig, opts ...Option) *Provider {
	p := &Provider{
		store:      store,
		tokens:     tokens,
		codeTTL:    DefaultCodeTTL,
		bcryptCost: bcrypt.DefaultCost,
		logger:     slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tokens.TTL <= 0 {
		p.tokens.TTL = 7 * 24 * time.Hour
	}
	return p
}

// SignUp registers an unconfirmed password account and queues the
// confirmation email.
func (p *Provider) SignUp(ctx context.Context, email, password string, meta domain.Metadata) (*domain.Identity, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: at least %d characters", ErrWeakPassword, MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := p.now()
	rec := IdentityRecord{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Metadata:     meta,
		Provider:     ProviderEmail,
		CreatedAt:    now,
	}
	code := p.newCode(rec, PurposeConfirm, now)
	if err := p.store.CreateIdentity(ctx, rec, code); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			observability.RecordAuthFailure("sign_up")
			return nil, err
		}
		return nil, fmt.Errorf("create identity: %w", err)
	}

	p.logger.Info("identity registered", "identity_id", rec.ID)
	identity := rec.Identity()
	return &identity, nil
}

// SignIn checks email and password and opens a session.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*session.Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		observability.RecordAuthFailure("sign_in")
		return nil, ErrInvalidCredentials
	}

	rec, err := p.store.IdentityByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup identity: %w", err)
	}
	if rec == nil || rec.PasswordHash == "" {
		observability.RecordAuthFailure("sign_in")
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		observability.RecordAuthFailure("sign_in")
		return nil, ErrInvalidCredentials
	}
	if rec.ConfirmedAt == nil {
		observability.RecordAuthFailure("sign_in")
		return nil, ErrEmailNotConfirmed
	}
	return p.openSession(ctx, *rec)
}

// Session returns the live session denoted by token, or nil when the token is
// absent, invalid, expired or revoked.
func (p *Provider) Session(ctx context.Context, token string) (*session.Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	claims, err := ParseToken(token, p.tokens)
	if err != nil {
		return nil, nil
	}

	stored, err := p.store.Session(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if stored == nil || stored.IdentityID != claims.Subject || !stored.Live(p.now()) {
		return nil, nil
	}

	rec, err := p.store.Identity(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("lookup identity: %w", err)
	}
	if rec == nil {
		return nil, nil
	}

	return &session.Session{
		ID:        stored.ID,
		Token:     token,
		ExpiresAt: stored.ExpiresAt,
		Identity:  rec.Identity(),
	}, nil
}

// SignOut revokes the session denoted by token. Unknown tokens are ignored.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	claims, err := ParseToken(token, p.tokens)
	if err != nil {
		return nil
	}
	return p.store.RevokeSession(ctx, claims.SessionID, p.now())
}

// ExchangeCode trades a mailed one-time code for a session. A confirmation
// code also confirms the identity.
func (p *Provider) ExchangeCode(ctx context.Context, code string) (*session.Session, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidCode
	}

	now := p.now()
	consumed, err := p.store.ConsumeCode(ctx, hashCode(code), now)
	if err != nil {
		return nil, fmt.Errorf("consume code: %w", err)
	}
	if consumed != nil {
		if consumed.Purpose == PurposeConfirm {
			if err := p.store.ConfirmIdentity(ctx, consumed.IdentityID, now); err != nil {
				return nil, fmt.Errorf("confirm identity: %w", err)
			}
		}
		rec, err := p.store.Identity(ctx, consumed.IdentityID)
		if err != nil {
			return nil, fmt.Errorf("lookup identity: %w", err)
		}
		if rec == nil {
			return nil, ErrInvalidCode
		}
		return p.openSession(ctx, *rec)
	}
	return nil, ErrInvalidCode
}

// ExchangeOAuthCode trades an OAuth authorization code for a session, linking
// it to the identity owning the provider-verified email. Callers must have
// checked the callback state against the one issued to this browser.
func (p *Provider) ExchangeOAuthCode(ctx context.Context, code string) (*session.Session, error) {
	code = strings.TrimSpace(code)
	if code == "" || p.oauth == nil {
		return nil, ErrInvalidCode
	}

	now := p.now()
	info, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		p.logger.Info("oauth exchange failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidCode, err)
	}
	rec, err := p.store.UpsertExternalIdentity(ctx, IdentityRecord{
		ID:          uuid.NewString(),
		Email:       info.Email,
		Metadata:    info.Metadata(),
		Provider:    ProviderOAuth,
		ConfirmedAt: &now,
		CreatedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert identity: %w", err)
	}
	return p.openSession(ctx, *rec)
}

// RequestPasswordReset queues a recovery email. Unknown addresses succeed
// silently so the endpoint does not reveal which emails are registered.
func (p *Provider) RequestPasswordReset(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	rec, err := p.store.IdentityByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("lookup identity: %w", err)
	}
	if rec == nil {
		p.logger.Info("password reset requested for unknown email")
		return nil
	}
	return p.store.IssueRecoveryCode(ctx, p.newCode(*rec, PurposeRecovery, p.now()))
}

// UpdatePassword sets a new password for the identity owning the live session token.
func (p *Provider) UpdatePassword(ctx context.Context, token, password string) error {
	s, err := p.Session(ctx, token)
	if err != nil {
		return err
	}
	if s == nil {
		return ErrInvalidToken
	}
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: at least %d characters", ErrWeakPassword, MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return p.store.SetPassword(ctx, s.Identity.ID, string(hash), p.now())
}

// BeginOAuth returns the provider authorization URL and the state value the
// callback must echo.
func (p *Provider) BeginOAuth(_ context.Context) (authURL, state string, err error) {
	if p.oauth == nil {
		return "", "", ErrOAuthDisabled
	}
	state = uuid.NewString()
	return p.oauth.AuthCodeURL(state), state, nil
}

// OAuthEnabled reports whether BeginOAuth is available.
func (p *Provider) OAuthEnabled() bool {
	return p.oauth != nil
}

func (p *Provider) openSession(ctx context.Context, rec IdentityRecord) (*session.Session, error) {
	now := p.now()
	stored := SessionRecord{
		ID:         uuid.NewString(),
		IdentityID: rec.ID,
		ExpiresAt:  now.Add(p.tokens.TTL),
	}
	if err := p.store.CreateSession(ctx, stored); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	token, err := IssueToken(p.tokens, Claims{
		Subject:   rec.ID,
		SessionID: stored.ID,
		Email:     rec.Email,
		ExpiresAt: stored.ExpiresAt,
	}, now)
	if err != nil {
		return nil, err
	}
	return &session.Session{
		ID:        stored.ID,
		Token:     token,
		ExpiresAt: stored.ExpiresAt,
		Identity:  rec.Identity(),
	}, nil
}

func (p *Provider) newCode(rec IdentityRecord, purpose Purpose, now time.Time) Code {
	plain := uuid.NewString()
	firstName := ""
	if rec.Metadata.FirstName != nil {
		firstName = *rec.Metadata.FirstName
	}
	return Code{
		Hash:       hashCode(plain),
		Plain:      plain,
		IdentityID: rec.ID,
		Email:      rec.Email,
		FirstName:  firstName,
		Purpose:    purpose,
		ExpiresAt:  now.Add(p.codeTTL),
	}
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}
