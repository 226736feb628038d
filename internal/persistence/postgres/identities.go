package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/The-Simomatic/Sportisimo/internal/auth"
	"github.com/The-Simomatic/Sportisimo/internal/events"
)

const identityColumns = `id, email, COALESCE(password_hash, ''), metadata, provider, confirmed_at, created_at`

// IdentityRepository persists identities, sessions and one-time codes.
type IdentityRepository struct {
	pool *pgxpool.Pool
}

// NewIdentityRepository constructs an IdentityRepository.
func NewIdentityRepository(pool *pgxpool.Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// CreateIdentity inserts rec with its confirmation code and the sign-up notification.
func (r *IdentityRepository) CreateIdentity(ctx context.Context, rec auth.IdentityRecord, code auth.Code) (err error) {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx,
		`INSERT INTO identities (id, email, password_hash, metadata, provider, confirmed_at, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$7)`,
		rec.ID, rec.Email, nullIfEmpty(rec.PasswordHash), meta, rec.Provider, rec.ConfirmedAt, rec.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return auth.ErrEmailTaken
		}
		return err
	}

	if err = insertCode(ctx, tx, code); err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, outboxEntry{
		AggregateID: rec.ID,
		EventType:   events.TypeIdentitySignedUp,
		DedupeKey:   code.Hash,
		Payload: events.IdentitySignedUp{
			IdentityID: rec.ID,
			Email:      rec.Email,
			FirstName:  code.FirstName,
			Code:       code.Plain,
			ExpiresAt:  code.ExpiresAt,
		},
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// IdentityByEmail looks an identity up by case-insensitive email.
func (r *IdentityRepository) IdentityByEmail(ctx context.Context, email string) (*auth.IdentityRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE lower(email) = lower($1)`, email)
	return scanIdentityOrNil(row)
}

// Identity looks an identity up by id.
func (r *IdentityRepository) Identity(ctx context.Context, id string) (*auth.IdentityRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	return scanIdentityOrNil(row)
}

// UpsertExternalIdentity returns the identity owning rec.Email, inserting rec
// when none exists. Linking to an unconfirmed identity drops its password.
func (r *IdentityRepository) UpsertExternalIdentity(ctx context.Context, rec auth.IdentityRecord) (*auth.IdentityRecord, error) {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return nil, err
	}
	const stmt = `INSERT INTO identities (id, email, metadata, provider, confirmed_at, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$6)
        ON CONFLICT ((lower(email))) DO UPDATE
            SET password_hash = CASE WHEN identities.confirmed_at IS NULL THEN NULL ELSE identities.password_hash END,
                confirmed_at = COALESCE(identities.confirmed_at, EXCLUDED.confirmed_at),
                updated_at = EXCLUDED.updated_at
        RETURNING ` + identityColumns
	row := r.pool.QueryRow(ctx, stmt, rec.ID, rec.Email, meta, rec.Provider, rec.ConfirmedAt, rec.CreatedAt)
	return scanIdentity(row)
}

// ConfirmIdentity stamps the confirmation time once.
func (r *IdentityRepository) ConfirmIdentity(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE identities SET confirmed_at = COALESCE(confirmed_at, $2), updated_at = $2 WHERE id = $1`, id, at)
	return err
}

// SetPassword replaces the password hash.
func (r *IdentityRepository) SetPassword(ctx context.Context, id, hash string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE identities SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, at)
	return err
}

// CreateSession stores a new session.
func (r *IdentityRepository) CreateSession(ctx context.Context, s auth.SessionRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO auth_sessions (id, identity_id, expires_at) VALUES ($1,$2,$3)`, s.ID, s.IdentityID, s.ExpiresAt)
	return err
}

// Session looks a session up by id.
func (r *IdentityRepository) Session(ctx context.Context, id string) (*auth.SessionRecord, error) {
	var s auth.SessionRecord
	err := r.pool.QueryRow(ctx,
		`SELECT id, identity_id, expires_at, revoked_at FROM auth_sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.IdentityID, &s.ExpiresAt, &s.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// RevokeSession marks a session revoked.
func (r *IdentityRepository) RevokeSession(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE auth_sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, at)
	return err
}

// IssueRecoveryCode stores code and queues the reset notification.
func (r *IdentityRepository) IssueRecoveryCode(ctx context.Context, code auth.Code) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if err = insertCode(ctx, tx, code); err != nil {
		return err
	}
	if err = insertOutbox(ctx, tx, outboxEntry{
		AggregateID: code.IdentityID,
		EventType:   events.TypePasswordResetRequested,
		DedupeKey:   code.Hash,
		Payload: events.PasswordResetRequested{
			IdentityID: code.IdentityID,
			Email:      code.Email,
			Code:       code.Plain,
			ExpiresAt:  code.ExpiresAt,
		},
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ConsumeCode atomically marks a live code used and returns it.
func (r *IdentityRepository) ConsumeCode(ctx context.Context, hash string, now time.Time) (*auth.Code, error) {
	var (
		code    auth.Code
		purpose string
	)
	err := r.pool.QueryRow(ctx,
		`UPDATE auth_codes SET used_at = $2
        WHERE code_hash = $1 AND used_at IS NULL AND expires_at > $2
        RETURNING code_hash, identity_id, purpose, expires_at`, hash, now,
	).Scan(&code.Hash, &code.IdentityID, &purpose, &code.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	code.Purpose = auth.Purpose(purpose)
	return &code, nil
}

func insertCode(ctx context.Context, tx pgx.Tx, code auth.Code) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO auth_codes (code_hash, identity_id, purpose, expires_at) VALUES ($1,$2,$3,$4)`,
		code.Hash, code.IdentityID, string(code.Purpose), code.ExpiresAt)
	return err
}

func scanIdentityOrNil(row pgx.Row) (*auth.IdentityRecord, error) {
	rec, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func scanIdentity(row pgx.Row) (*auth.IdentityRecord, error) {
	var (
		rec  auth.IdentityRecord
		meta []byte
	)
	if err := row.Scan(&rec.ID, &rec.Email, &rec.PasswordHash, &meta, &rec.Provider, &rec.ConfirmedAt, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}
