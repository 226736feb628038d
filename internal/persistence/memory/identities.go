package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/The-Simomatic/Sportisimo/internal/auth"
)

// IdentityStore keeps identities, sessions and one-time codes in memory.
// Issued codes are retained so tests can follow mailed links.
type IdentityStore struct {
	mu         sync.Mutex
	identities map[string]auth.IdentityRecord
	byEmail    map[string]string
	sessions   map[string]auth.SessionRecord
	codes      map[string]auth.Code
	usedCodes  map[string]bool
	issued     []auth.Code
}

// NewIdentityStore constructs an empty IdentityStore.
func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		identities: make(map[string]auth.IdentityRecord),
		byEmail:    make(map[string]string),
		sessions:   make(map[string]auth.SessionRecord),
		codes:      make(map[string]auth.Code),
		usedCodes:  make(map[string]bool),
	}
}

func (s *IdentityStore) CreateIdentity(_ context.Context, rec auth.IdentityRecord, code auth.Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(rec.Email)
	if _, taken := s.byEmail[key]; taken {
		return auth.ErrEmailTaken
	}
	s.identities[rec.ID] = rec
	s.byEmail[key] = rec.ID
	s.codes[code.Hash] = code
	s.issued = append(s.issued, code)
	return nil
}

func (s *IdentityStore) IdentityByEmail(_ context.Context, email string) (*auth.IdentityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	rec := s.identities[id]
	return &rec, nil
}

func (s *IdentityStore) Identity(_ context.Context, id string) (*auth.IdentityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.identities[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *IdentityStore) UpsertExternalIdentity(_ context.Context, rec auth.IdentityRecord) (*auth.IdentityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(rec.Email)
	if id, ok := s.byEmail[key]; ok {
		existing := s.identities[id]
		if existing.ConfirmedAt == nil {
			existing.ConfirmedAt = rec.ConfirmedAt
			existing.PasswordHash = ""
			s.identities[id] = existing
		}
		return &existing, nil
	}
	s.identities[rec.ID] = rec
	s.byEmail[key] = rec.ID
	return &rec, nil
}

func (s *IdentityStore) ConfirmIdentity(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.identities[id]
	if !ok {
		return nil
	}
	if rec.ConfirmedAt == nil {
		rec.ConfirmedAt = &at
		s.identities[id] = rec
	}
	return nil
}

func (s *IdentityStore) SetPassword(_ context.Context, id, hash string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.identities[id]
	if !ok {
		return nil
	}
	rec.PasswordHash = hash
	s.identities[id] = rec
	return nil
}

func (s *IdentityStore) CreateSession(_ context.Context, rec auth.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[rec.ID] = rec
	return nil
}

func (s *IdentityStore) Session(_ context.Context, id string) (*auth.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *IdentityStore) RevokeSession(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok || rec.RevokedAt != nil {
		return nil
	}
	rec.RevokedAt = &at
	s.sessions[id] = rec
	return nil
}

func (s *IdentityStore) IssueRecoveryCode(_ context.Context, code auth.Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code.Hash] = code
	s.issued = append(s.issued, code)
	return nil
}

func (s *IdentityStore) ConsumeCode(_ context.Context, hash string, now time.Time) (*auth.Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.codes[hash]
	if !ok || s.usedCodes[hash] || !now.Before(code.ExpiresAt) {
		return nil, nil
	}
	s.usedCodes[hash] = true
	code.Plain = ""
	return &code, nil
}

// Issued returns every code handed out so far, oldest first.
func (s *IdentityStore) Issued() []auth.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]auth.Code(nil), s.issued...)
}

// LastCode returns the most recent code issued for email and purpose.
func (s *IdentityStore) LastCode(email string, purpose auth.Purpose) (auth.Code, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.issued) - 1; i >= 0; i-- {
		c := s.issued[i]
		if strings.EqualFold(c.Email, email) && c.Purpose == purpose {
			return c, true
		}
	}
	return auth.Code{}, false
}
