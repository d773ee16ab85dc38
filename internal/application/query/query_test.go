package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modpoints/points-bot/internal/domain/ledger"
	"github.com/modpoints/points-bot/internal/infrastructure/persistence/sqlite"
	"github.com/modpoints/points-bot/pkg/circuitbreaker"
	"github.com/modpoints/points-bot/pkg/timeutil"
)

const rate = 220

type fixture struct {
	store *sqlite.Store
	clock *timeutil.ManualClock
	mods  map[string]ledger.Module
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.SeedModules(ctx, []ledger.ModuleSeed{
		{Name: "BMU 5X", Points: 14.5},
		{Name: "BMU 10X", Points: 29},
		{Name: "Теория", Points: 8},
	}))

	mods, err := store.ListModules(ctx)
	require.NoError(t, err)

	f := &fixture{
		store: store,
		clock: timeutil.NewManualClock(time.Date(2024, 5, 10, 20, 0, 0, 0, time.UTC)),
		mods:  make(map[string]ledger.Module),
	}
	for _, m := range mods {
		f.mods[m.Name] = m
	}
	return f
}

func (f *fixture) log(t *testing.T, userID int64, module string, y, m, d int) {
	t.Helper()
	date := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.RecordCompletion(context.Background(), userID, f.mods[module].ID, date))
}

func TestGetPoints(t *testing.T) {
	f := newFixture(t)
	f.log(t, 1, "BMU 10X", 2024, 5, 1)
	f.log(t, 1, "BMU 5X", 2024, 5, 9)
	f.log(t, 1, "Теория", 2024, 4, 30)

	res, err := NewGetPointsHandler(f.store, f.clock, rate).Handle(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, ledger.Period{Year: 2024, Month: 5}, res.Period)
	assert.Equal(t, 43.5, res.Points)
	assert.Equal(t, 9570.0, res.Money)
	assert.Equal(t, 8.0, res.PreviousPoints)
	assert.Equal(t, 35.5, res.Change)
}

func TestGetPoints_January(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(time.Date(2025, 1, 3, 19, 0, 0, 0, time.UTC))
	f.log(t, 1, "Теория", 2024, 12, 31)

	res, err := NewGetPointsHandler(f.store, f.clock, rate).Handle(context.Background(), 1)
	require.NoError(t, err)

	assert.Zero(t, res.Points)
	assert.Equal(t, 8.0, res.PreviousPoints)
	assert.Equal(t, -8.0, res.Change)
}

func TestGetUserStats(t *testing.T) {
	f := newFixture(t)
	f.log(t, 1, "BMU 5X", 2024, 5, 3)
	f.log(t, 1, "Теория", 2024, 5, 3)
	f.log(t, 1, "BMU 10X", 2024, 5, 7)
	f.log(t, 1, "BMU 10X", 2024, 4, 2)

	stats, err := NewGetUserStatsHandler(f.store, f.clock, rate).Handle(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 51.5, stats.Points)
	assert.Equal(t, 2, stats.ActiveDays)
	assert.Equal(t, ledger.DailyBreakdown{3: 22.5, 7: 29}, stats.Daily)
	assert.Equal(t, ledger.Period{Year: 2024, Month: 4}, stats.PreviousPeriod)
	require.NotNil(t, stats.ChangePercent)
	assert.InDelta(t, 77.586, *stats.ChangePercent, 0.01)
}

func TestGetUserStats_NoBaseline(t *testing.T) {
	f := newFixture(t)
	f.log(t, 1, "Теория", 2024, 5, 3)

	stats, err := NewGetUserStatsHandler(f.store, f.clock, rate).Handle(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, stats.ChangePercent)
}

func TestGetInsight(t *testing.T) {
	f := newFixture(t)
	h := NewGetInsightHandler(f.store, f.clock)

	res, err := h.Handle(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, res.HasData)

	f.log(t, 1, "BMU 10X", 2024, 5, 2)
	res, err = h.Handle(context.Background(), 1)
	require.NoError(t, err)

	assert.True(t, res.HasData)
	assert.Equal(t, 1, res.Analysis.ActiveDays)
	assert.InDelta(t, 2.9, res.Analysis.DailyAverage, 1e-9)
	assert.NotEmpty(t, res.Analysis.Insights)
}

// memCache mirrors the versioned layout of the Redis leaderboard cache.
type memCache struct {
	versions map[string]int64
	data     map[string][]ledger.LeaderboardEntry
	sets     int
	err      error
}

func newMemCache() *memCache {
	return &memCache{versions: map[string]int64{}, data: map[string][]ledger.LeaderboardEntry{}}
}

func (m *memCache) key(p ledger.Period, version int64) string {
	return fmt.Sprintf("%s:v%d", p, version)
}

func (m *memCache) GetTop(_ context.Context, p ledger.Period, _ int) ([]ledger.LeaderboardEntry, int64, error) {
	if m.err != nil {
		return nil, 0, m.err
	}
	v := m.versions[p.String()]
	return m.data[m.key(p, v)], v, nil
}

func (m *memCache) SetTop(_ context.Context, p ledger.Period, _ int, version int64, e []ledger.LeaderboardEntry) error {
	m.sets++
	m.data[m.key(p, version)] = e
	return nil
}

func (m *memCache) Invalidate(_ context.Context, p ledger.Period) error {
	m.versions[p.String()]++
	return nil
}

// racingRepo runs onRead after the leaderboard query has been served, as a
// concurrent record would.
type racingRepo struct {
	ledger.Repository
	onRead func()
}

func (r *racingRepo) Leaderboard(ctx context.Context, p ledger.Period, limit int) ([]ledger.LeaderboardEntry, error) {
	entries, err := r.Repository.Leaderboard(ctx, p, limit)
	if r.onRead != nil {
		r.onRead()
		r.onRead = nil
	}
	return entries, err
}

func TestGetLeaderboard_OrderAndTieBreak(t *testing.T) {
	f := newFixture(t)
	f.log(t, 30, "BMU 10X", 2024, 5, 1)
	f.log(t, 10, "BMU 10X", 2024, 5, 2)
	f.log(t, 20, "BMU 10X", 2024, 5, 3)
	f.log(t, 20, "Теория", 2024, 5, 3)
	f.log(t, 40, "Теория", 2024, 4, 3)

	res, err := NewGetLeaderboardHandler(f.store, nil, f.clock, rate, nil).Handle(context.Background(), 0)
	require.NoError(t, err)

	require.Len(t, res.Entries, 3)
	assert.Equal(t, RankedEntry{Rank: 1, UserID: 20, Points: 37, Money: 8140, Completions: 2}, res.Entries[0])
	assert.Equal(t, int64(10), res.Entries[1].UserID)
	assert.Equal(t, int64(30), res.Entries[2].UserID)
	assert.Equal(t, 3, res.Entries[2].Rank)
}

func TestGetLeaderboard_UsesCache(t *testing.T) {
	f := newFixture(t)
	cache := newMemCache()
	h := NewGetLeaderboardHandler(f.store, cache, f.clock, rate, nil)
	ctx := context.Background()

	f.log(t, 1, "Теория", 2024, 5, 1)

	res, err := h.Handle(ctx, 20)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, 1, cache.sets)

	// A write after caching is invisible until invalidation.
	f.log(t, 2, "BMU 10X", 2024, 5, 1)
	res, err = h.Handle(ctx, 20)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Len(t, res.Entries, 1)

	require.NoError(t, cache.Invalidate(ctx, ledger.Period{Year: 2024, Month: 5}))
	res, err = h.Handle(ctx, 20)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Len(t, res.Entries, 2)
}

func TestGetLeaderboard_InvalidationDuringReadIsNotOverwritten(t *testing.T) {
	f := newFixture(t)
	cache := newMemCache()
	ctx := context.Background()
	may := ledger.Period{Year: 2024, Month: 5}

	f.log(t, 1, "Теория", 2024, 5, 1)

	repo := &racingRepo{Repository: f.store}
	repo.onRead = func() {
		f.log(t, 2, "BMU 10X", 2024, 5, 1)
		require.NoError(t, cache.Invalidate(ctx, may))
	}
	h := NewGetLeaderboardHandler(repo, cache, f.clock, rate, nil)

	res, err := h.Handle(ctx, 20)
	require.NoError(t, err)
	assert.Len(t, res.Entries, 1)

	// The snapshot from the raced read went under the old version.
	res, err = h.Handle(ctx, 20)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Len(t, res.Entries, 2)

	res, err = h.Handle(ctx, 20)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Len(t, res.Entries, 2)
}

func TestGetLeaderboard_CacheDownFallsBackWithoutWriting(t *testing.T) {
	f := newFixture(t)
	cache := newMemCache()
	cache.err = fmt.Errorf("get top: %w", circuitbreaker.ErrCircuitOpen)
	f.log(t, 1, "Теория", 2024, 5, 1)

	res, err := NewGetLeaderboardHandler(f.store, cache, f.clock, rate, nil).Handle(context.Background(), 20)
	require.NoError(t, err)
	assert.Len(t, res.Entries, 1)
	assert.Zero(t, cache.sets)
}

func TestCacheErrorLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, cacheErrorLevel(fmt.Errorf("get: %w", circuitbreaker.ErrCircuitOpen)))
	assert.Equal(t, slog.LevelDebug, cacheErrorLevel(circuitbreaker.ErrTooManyRequests))
	assert.Equal(t, slog.LevelWarn, cacheErrorLevel(errors.New("i/o timeout")))
}

func TestAdminQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.log(t, 1, "BMU 10X", 2024, 5, 1)
	f.log(t, 2, "Теория", 2024, 5, 2)
	f.log(t, 3, "Теория", 2024, 4, 2)

	q := NewAdminQueries(f.store, f.clock, rate)

	list, err := q.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, list.Total)
	assert.Zero(t, list.Hidden())
	assert.Equal(t, []UserPoints{{1, 29}, {2, 8}, {3, 0}}, list.Users)

	stats, err := q.SystemStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalUsers)
	assert.Equal(t, 2, stats.ActiveUsers)
	assert.Equal(t, 3, stats.ModuleCount)
	assert.Equal(t, 37.0, stats.TotalPoints)
	assert.Equal(t, 8140.0, stats.TotalMoney)
	assert.Equal(t, 18.5, stats.AveragePoint)
}

func TestAdminQueries_ListUsersTruncates(t *testing.T) {
	f := newFixture(t)
	for id := int64(1); id <= 25; id++ {
		f.log(t, id, "Теория", 2024, 5, 1)
	}

	list, err := NewAdminQueries(f.store, f.clock, rate).ListUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, list.Total)
	assert.Len(t, list.Users, AdminUsersPageSize)
	assert.Equal(t, 5, list.Hidden())
}
