package domain_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/The-Simomatic/Sportisimo/internal/domain"
	"github.com/The-Simomatic/Sportisimo/internal/persistence/memory"
)

var fixedNow = time.Date(2026, time.October, 1, 7, 30, 0, 0, time.UTC)

func newSynchronizer(store domain.ProfileStore) *domain.Synchronizer {
	return domain.NewSynchronizer(store, domain.WithClock(func() time.Time { return fixedNow }))
}

func strPtr(s string) *string { return &s }
func floatPtr(f float64) *float64 { return &f }

func TestEnsureProfileCreatesWithDefaults(t *testing.T) {
	store := memory.NewProfileStore()
	syncer := newSynchronizer(store)

	profile, err := syncer.EnsureProfile(context.Background(), domain.Identity{ID: "user-1", Email: "a@b.fr"})
	require.NoError(t, err)

	assert.Equal(t, "user-1", profile.ID)
	assert.Equal(t, "a@b.fr", profile.Email)
	assert.Equal(t, "Champion", profile.FirstName)
	assert.Equal(t, "", profile.LastName)
	assert.Equal(t, "Débutant", profile.Level)
	assert.Equal(t, "Running", profile.Sport)
	assert.Equal(t, 16.0, profile.VMA)
	assert.Equal(t, 75.0, profile.WeightKg)
	assert.Equal(t, domain.StatusFree, profile.Status)
	assert.Nil(t, profile.BirthDate)
	assert.Nil(t, profile.StravaRefreshToken)
	assert.False(t, profile.Degraded)
	assert.Equal(t, fixedNow, profile.CreatedAt)
	assert.Equal(t, 1, store.Len())
}

func TestEnsureProfileUsesRegistrationMetadata(t *testing.T) {
	store := memory.NewProfileStore()
	syncer := newSynchronizer(store)

	identity := domain.Identity{
		ID:    "user-2",
		Email: "lea@example.fr",
		Metadata: domain.Metadata{
			FirstName: strPtr("Léa"),
			LastName:  strPtr("Martin"),
			BirthDate: strPtr("1994-05-17"),
			Weight:    floatPtr(58),
			Sport:     strPtr("Trail"),
			Level:     strPtr("Confirmé"),
		},
	}

	profile, err := syncer.EnsureProfile(context.Background(), identity)
	require.NoError(t, err)

	assert.Equal(t, "Léa", profile.FirstName)
	assert.Equal(t, "Martin", profile.LastName)
	assert.Equal(t, 58.0, profile.WeightKg)
	assert.Equal(t, "Trail", profile.Sport)
	assert.Equal(t, "Confirmé", profile.Level)
	require.NotNil(t, profile.BirthDate)
	assert.Equal(t, time.Date(1994, time.May, 17, 0, 0, 0, 0, time.UTC), *profile.BirthDate)
	assert.Equal(t, 16.0, profile.VMA)
}

func TestEnsureProfileIsIdempotent(t *testing.T) {
	store := memory.NewProfileStore()
	syncer := newSynchronizer(store)
	identity := domain.Identity{ID: "user-3", Email: "x@y.z"}

	first, err := syncer.EnsureProfile(context.Background(), identity)
	require.NoError(t, err)
	require.Equal(t, 1, store.Writes())

	second, err := syncer.EnsureProfile(context.Background(), identity)
	require.NoError(t, err)

	require.Equal(t, 1, store.Writes(), "second call must not write")
	require.Equal(t, 1, store.Len())
	require.Equal(t, first, second)
}

func TestEnsureProfileConcurrentCallsYieldSingleRow(t *testing.T) {
	store := &barrierStore{ProfileStore: memory.NewProfileStore()}
	store.arrivals.Add(2)
	syncer := newSynchronizer(store)
	identity := domain.Identity{ID: "user-4", Email: "race@example.fr"}

	var wg sync.WaitGroup
	results := make([]*domain.Profile, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = syncer.EnsureProfile(context.Background(), identity)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, 1, store.Len())
	require.Equal(t, 1, store.Writes())
	require.Equal(t, "user-4", results[0].ID)
	require.Equal(t, *results[0], *results[1])
	require.Equal(t, 2, store.inserts, "both callers observed a missing row")
}

func TestEnsureProfileDegradesWhenStoreUnreadable(t *testing.T) {
	store := &failingStore{getErr: errors.New("connection refused")}
	syncer := newSynchronizer(store)

	profile, err := syncer.EnsureProfile(context.Background(), domain.Identity{ID: "user-5", Email: "e@f.g"})
	require.NoError(t, err)

	require.True(t, profile.Degraded)
	require.Equal(t, 16.0, profile.VMA)
	require.Equal(t, "Champion", profile.FirstName)
	require.Zero(t, store.inserts)
}

func TestEnsureProfileSurfacesInsertFailure(t *testing.T) {
	store := &failingStore{insertErr: errors.New("disk full")}
	syncer := newSynchronizer(store)

	_, err := syncer.EnsureProfile(context.Background(), domain.Identity{ID: "user-6"})
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestEnsureProfileRequiresIdentityID(t *testing.T) {
	syncer := newSynchronizer(memory.NewProfileStore())
	_, err := syncer.EnsureProfile(context.Background(), domain.Identity{})
	require.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestEnsureProfileHonoursConfiguredDefaults(t *testing.T) {
	defaults := domain.StandardDefaults()
	defaults.Level = "Intermédiaire"
	defaults.WeightKg = 70
	syncer := domain.NewSynchronizer(memory.NewProfileStore(), domain.WithDefaults(defaults))

	profile, err := syncer.EnsureProfile(context.Background(), domain.Identity{ID: "user-7"})
	require.NoError(t, err)
	require.Equal(t, "Intermédiaire", profile.Level)
	require.Equal(t, 70.0, profile.WeightKg)
}

func TestUpdateProfileOnlyTouchesMutableFields(t *testing.T) {
	store := memory.NewProfileStore()
	syncer := newSynchronizer(store)
	ctx := context.Background()
	_, err := syncer.EnsureProfile(ctx, domain.Identity{ID: "user-8", Email: "keep@me.fr"})
	require.NoError(t, err)

	updated, err := syncer.UpdateProfile(ctx, "user-8", domain.ProfileUpdate{
		VMA:                floatPtr(17.5),
		WeightKg:           floatPtr(68),
		StravaRefreshToken: strPtr("refresh-123"),
	})
	require.NoError(t, err)

	require.Equal(t, "user-8", updated.ID)
	require.Equal(t, "keep@me.fr", updated.Email)
	require.Equal(t, 17.5, updated.VMA)
	require.Equal(t, 68.0, updated.WeightKg)
	require.Equal(t, "refresh-123", *updated.StravaRefreshToken)

	cleared, err := syncer.UpdateProfile(ctx, "user-8", domain.ProfileUpdate{StravaRefreshToken: strPtr("")})
	require.NoError(t, err)
	require.Nil(t, cleared.StravaRefreshToken)
	require.Equal(t, 17.5, cleared.VMA)
}

func TestUpdateProfileValidation(t *testing.T) {
	syncer := newSynchronizer(memory.NewProfileStore())
	ctx := context.Background()

	_, err := syncer.UpdateProfile(ctx, "user-9", domain.ProfileUpdate{VMA: floatPtr(0)})
	require.ErrorIs(t, err, domain.ErrInvalidParameter)

	_, err = syncer.UpdateProfile(ctx, "user-9", domain.ProfileUpdate{WeightKg: floatPtr(-1)})
	require.ErrorIs(t, err, domain.ErrInvalidParameter)

	_, err = syncer.UpdateProfile(ctx, "user-9", domain.ProfileUpdate{VMA: floatPtr(15)})
	require.ErrorIs(t, err, domain.ErrProfileNotFound)

	_, err = syncer.UpdateProfile(ctx, "user-9", domain.ProfileUpdate{})
	require.ErrorIs(t, err, domain.ErrProfileNotFound)
}

// barrierStore holds the first two Get calls until both have read, forcing
// the check-then-insert race.
type barrierStore struct {
	*memory.ProfileStore
	arrivals sync.WaitGroup

	mu      sync.Mutex
	gets    int
	inserts int
}

func (b *barrierStore) Get(ctx context.Context, id string) (*domain.Profile, error) {
	p, err := b.ProfileStore.Get(ctx, id)
	b.mu.Lock()
	b.gets++
	n := b.gets
	b.mu.Unlock()
	if n <= 2 {
		b.arrivals.Done()
		b.arrivals.Wait()
	}
	return p, err
}

func (b *barrierStore) Insert(ctx context.Context, profile domain.Profile) (*domain.Profile, error) {
	b.mu.Lock()
	b.inserts++
	b.mu.Unlock()
	return b.ProfileStore.Insert(ctx, profile)
}

type failingStore struct {
	getErr    error
	insertErr error
	inserts   int
}

func (f *failingStore) Get(context.Context, string) (*domain.Profile, error) {
	return nil, f.getErr
}

func (f *failingStore) Insert(_ context.Context, p domain.Profile) (*domain.Profile, error) {
	f.inserts++
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	return &p, nil
}

func (f *failingStore) Update(context.Context, string, domain.ProfileUpdate) (*domain.Profile, error) {
	return nil, domain.ErrProfileNotFound
}
