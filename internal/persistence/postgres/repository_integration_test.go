//go:build integration

package postgres

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/The-Simomatic/Sportisimo/internal/auth"
	"github.com/The-Simomatic/Sportisimo/internal/domain"
	"github.com/The-Simomatic/Sportisimo/internal/events"
	"github.com/The-Simomatic/Sportisimo/internal/testsupport"
)

func countOutbox(t *testing.T, ctx context.Context, pool *pgxpool.Pool, aggregateID, eventType string) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE aggregate_id = $1 AND event_type = $2`, aggregateID, eventType,
	).Scan(&n))
	return n
}

func TestProfileRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)
	repo := NewProfileRepository(pool)

	id := uuid.NewString()
	missing, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Nil(t, missing)

	now := time.Now().UTC().Truncate(time.Microsecond)
	profile := domain.NewProfile(domain.Identity{ID: id, Email: "lea@example.fr"}, domain.StandardDefaults(), now)

	stored, err := repo.Insert(ctx, profile)
	require.NoError(t, err)
	require.Equal(t, id, stored.ID)
	require.Equal(t, 16.0, stored.VMA)
	require.Equal(t, domain.StatusFree, stored.Status)
	require.Nil(t, stored.StravaRefreshToken)
	require.Equal(t, 1, countOutbox(t, ctx, pool, id, events.TypeProfileCreated))

	_, err = repo.Insert(ctx, profile)
	require.ErrorIs(t, err, domain.ErrUniqueViolation)
	require.Equal(t, 1, countOutbox(t, ctx, pool, id, events.TypeProfileCreated), "rolled back with the duplicate row")

	vma := 17.5
	token := "refresh-1"
	updated, err := repo.Update(ctx, id, domain.ProfileUpdate{VMA: &vma, StravaRefreshToken: &token})
	require.NoError(t, err)
	require.Equal(t, 17.5, updated.VMA)
	require.Equal(t, 75.0, updated.WeightKg)
	require.Equal(t, "refresh-1", *updated.StravaRefreshToken)

	cleared := ""
	updated, err = repo.Update(ctx, id, domain.ProfileUpdate{StravaRefreshToken: &cleared})
	require.NoError(t, err)
	require.Nil(t, updated.StravaRefreshToken)
	require.Equal(t, 17.5, updated.VMA)
	require.Equal(t, 2, countOutbox(t, ctx, pool, id, events.TypeProfileUpdated))

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, updated.VMA, got.VMA)

	_, err = repo.Update(ctx, uuid.NewString(), domain.ProfileUpdate{VMA: &vma})
	require.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestEnsureProfileConcurrentFirstAccessCreatesOneRow(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)
	syncer := domain.NewSynchronizer(NewProfileRepository(pool))

	identity := domain.Identity{ID: uuid.NewString(), Email: "tom@example.fr"}

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*domain.Profile
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := syncer.EnsureProfile(ctx, identity)
			mu.Lock()
			defer mu.Unlock()
			results = append(results, p)
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		require.Equal(t, identity.ID, results[i].ID)
		require.False(t, results[i].Degraded)
	}

	var rows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM profiles WHERE id = $1`, identity.ID).Scan(&rows))
	require.Equal(t, 1, rows)
	require.Equal(t, 1, countOutbox(t, ctx, pool, identity.ID, events.TypeProfileCreated))
}

func TestIdentityRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)
	repo := NewIdentityRepository(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	first := "Léa"
	rec := auth.IdentityRecord{
		ID:           uuid.NewString(),
		Email:        "lea@example.fr",
		PasswordHash: "hash",
		Metadata:     domain.Metadata{FirstName: &first},
		Provider:     auth.ProviderEmail,
		CreatedAt:    now,
	}
	confirm := auth.Code{
		Hash:       "confirm-hash",
		Plain:      "confirm-plain",
		IdentityID: rec.ID,
		Email:      rec.Email,
		FirstName:  first,
		Purpose:    auth.PurposeConfirm,
		ExpiresAt:  now.Add(time.Hour),
	}
	require.NoError(t, repo.CreateIdentity(ctx, rec, confirm))
	require.Equal(t, 1, countOutbox(t, ctx, pool, rec.ID, events.TypeIdentitySignedUp))

	dup := rec
	dup.ID = uuid.NewString()
	dup.Email = strings.ToUpper(rec.Email)
	err := repo.CreateIdentity(ctx, dup, auth.Code{Hash: "other", IdentityID: dup.ID, Purpose: auth.PurposeConfirm, ExpiresAt: now.Add(time.Hour)})
	require.ErrorIs(t, err, auth.ErrEmailTaken)

	found, err := repo.IdentityByEmail(ctx, "LEA@example.fr")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, rec.ID, found.ID)
	require.Equal(t, "hash", found.PasswordHash)
	require.Nil(t, found.ConfirmedAt)
	require.Equal(t, "Léa", *found.Metadata.FirstName)

	code, err := repo.ConsumeCode(ctx, "confirm-hash", now)
	require.NoError(t, err)
	require.NotNil(t, code)
	require.Equal(t, auth.PurposeConfirm, code.Purpose)
	require.Equal(t, rec.ID, code.IdentityID)

	again, err := repo.ConsumeCode(ctx, "confirm-hash", now)
	require.NoError(t, err)
	require.Nil(t, again, "codes are single use")

	require.NoError(t, repo.ConfirmIdentity(ctx, rec.ID, now))
	confirmed, err := repo.Identity(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, confirmed.ConfirmedAt)

	sess := auth.SessionRecord{ID: uuid.NewString(), IdentityID: rec.ID, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, repo.CreateSession(ctx, sess))
	live, err := repo.Session(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, live.Live(now))
	require.NoError(t, repo.RevokeSession(ctx, sess.ID, now))
	revoked, err := repo.Session(ctx, sess.ID)
	require.NoError(t, err)
	require.False(t, revoked.Live(now))

	recovery := auth.Code{Hash: "recovery-hash", Plain: "recovery-plain", IdentityID: rec.ID, Email: rec.Email, Purpose: auth.PurposeRecovery, ExpiresAt: now.Add(-time.Minute)}
	require.NoError(t, repo.IssueRecoveryCode(ctx, recovery))
	require.Equal(t, 1, countOutbox(t, ctx, pool, rec.ID, events.TypePasswordResetRequested))
	expired, err := repo.ConsumeCode(ctx, "recovery-hash", now)
	require.NoError(t, err)
	require.Nil(t, expired)

	external, err := repo.UpsertExternalIdentity(ctx, auth.IdentityRecord{
		ID:          uuid.NewString(),
		Email:       "Lea@Example.fr",
		Provider:    auth.ProviderOAuth,
		ConfirmedAt: &now,
		CreatedAt:   now,
	})
	require.NoError(t, err)
	require.Equal(t, rec.ID, external.ID, "oauth sign-in reuses the password account")
	require.Equal(t, "hash", external.PasswordHash)
}

func TestUpsertExternalIdentityDropsUnconfirmedPassword(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)
	repo := NewIdentityRepository(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	squatted := auth.IdentityRecord{
		ID:           uuid.NewString(),
		Email:        "victim@example.fr",
		PasswordHash: "planted",
		Provider:     auth.ProviderEmail,
		CreatedAt:    now,
	}
	require.NoError(t, repo.CreateIdentity(ctx, squatted, auth.Code{
		Hash: "squat-hash", IdentityID: squatted.ID, Purpose: auth.PurposeConfirm, ExpiresAt: now.Add(time.Hour),
	}))

	linked, err := repo.UpsertExternalIdentity(ctx, auth.IdentityRecord{
		ID:          uuid.NewString(),
		Email:       "Victim@Example.fr",
		Provider:    auth.ProviderOAuth,
		ConfirmedAt: &now,
		CreatedAt:   now,
	})
	require.NoError(t, err)
	require.Equal(t, squatted.ID, linked.ID)
	require.NotNil(t, linked.ConfirmedAt)
	require.Empty(t, linked.PasswordHash)

	stored, err := repo.IdentityByEmail(ctx, "victim@example.fr")
	require.NoError(t, err)
	require.Empty(t, stored.PasswordHash)
}
