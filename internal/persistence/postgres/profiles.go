// Package postgres provides PostgreSQL-backed stores for profiles, identities and the outbox.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/The-Simomatic/Sportisimo/internal/domain"
	"github.com/The-Simomatic/Sportisimo/internal/events"
)

// uniqueViolation is the SQLSTATE raised on a duplicate key.
const uniqueViolation = "23505"

const profileColumns = `id, email, first_name, last_name, birth_date, weight_kg, sex, sport, level, subscription_status, vma, strava_refresh_token, created_at, updated_at`

// ProfileRepository persists profiles and records their outbox events.
type ProfileRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewProfileRepository constructs a ProfileRepository.
func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// Get retrieves a profile by id. A missing row yields (nil, nil).
func (r *ProfileRepository) Get(ctx context.Context, id string) (*domain.Profile, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=$1`, id)
	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return profile, nil
}

// Insert creates the profile row and its profile.created event in one transaction.
// A duplicate id is reported as domain.ErrUniqueViolation.
func (r *ProfileRepository) Insert(ctx context.Context, profile domain.Profile) (_ *domain.Profile, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `INSERT INTO profiles (id, email, first_name, last_name, birth_date, weight_kg, sex, sport, level, subscription_status, vma, strava_refresh_token, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        RETURNING ` + profileColumns

	row := tx.QueryRow(ctx, stmt,
		profile.ID,
		profile.Email,
		profile.FirstName,
		profile.LastName,
		profile.BirthDate,
		profile.WeightKg,
		nullIfEmpty(profile.Sex),
		profile.Sport,
		profile.Level,
		string(profile.Status),
		profile.VMA,
		profile.StravaRefreshToken,
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	stored, err := scanProfile(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrUniqueViolation
		}
		return nil, err
	}

	if err = insertOutbox(ctx, tx, outboxEntry{
		AggregateID: stored.ID,
		EventType:   events.TypeProfileCreated,
		Payload: events.ProfileCreated{
			UserID:    stored.ID,
			Email:     stored.Email,
			Sport:     stored.Sport,
			Level:     stored.Level,
			VMA:       stored.VMA,
			CreatedAt: stored.CreatedAt,
		},
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return stored, nil
}

// Update applies the non-nil fields of update. An empty refresh token clears the stored one.
func (r *ProfileRepository) Update(ctx context.Context, id string, update domain.ProfileUpdate) (_ *domain.Profile, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	setToken := update.StravaRefreshToken != nil
	token := ""
	if setToken {
		token = *update.StravaRefreshToken
	}

	const stmt = `UPDATE profiles SET
            vma = COALESCE($2::double precision, vma),
            weight_kg = COALESCE($3::double precision, weight_kg),
            strava_refresh_token = CASE WHEN $4::boolean THEN NULLIF($5::text, '') ELSE strava_refresh_token END,
            updated_at = $6
        WHERE id = $1
        RETURNING ` + profileColumns

	row := tx.QueryRow(ctx, stmt, id, update.VMA, update.WeightKg, setToken, token, r.now())
	stored, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, err
	}

	if err = insertOutbox(ctx, tx, outboxEntry{
		AggregateID: stored.ID,
		EventType:   events.TypeProfileUpdated,
		DedupeKey:   fmt.Sprintf("%s:%s:%d", stored.ID, events.TypeProfileUpdated, stored.UpdatedAt.UnixNano()),
		Payload: events.ProfileUpdated{
			UserID:       stored.ID,
			VMA:          stored.VMA,
			WeightKg:     stored.WeightKg,
			StravaLinked: stored.StravaRefreshToken != nil,
			UpdatedAt:    stored.UpdatedAt,
		},
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return stored, nil
}

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var (
		p      domain.Profile
		sex    *string
		status string
	)
	if err := row.Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.BirthDate, &p.WeightKg, &sex, &p.Sport, &p.Level, &status, &p.VMA, &p.StravaRefreshToken, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if sex != nil {
		p.Sex = *sex
	}
	p.Status = domain.SubscriptionStatus(status)
	return &p, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
