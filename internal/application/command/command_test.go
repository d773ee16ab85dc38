package command

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modpoints/points-bot/internal/domain/ledger"
	"github.com/modpoints/points-bot/internal/domain/shared"
	"github.com/modpoints/points-bot/internal/infrastructure/persistence/sqlite"
	"github.com/modpoints/points-bot/pkg/timeutil"
)

var msk = time.FixedZone("MSK", 3*60*60)

type fakeCache struct {
	mu          sync.Mutex
	invalidated []ledger.Period
}

func (f *fakeCache) GetTop(context.Context, ledger.Period, int) ([]ledger.LeaderboardEntry, int64, error) {
	return nil, 0, nil
}

func (f *fakeCache) SetTop(context.Context, ledger.Period, int, int64, []ledger.LeaderboardEntry) error {
	return nil
}

func (f *fakeCache) Invalidate(_ context.Context, p ledger.Period) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, p)
	return nil
}

type fixture struct {
	store  *sqlite.Store
	cache  *fakeCache
	clock  *timeutil.ManualClock
	record *RecordCompletionHandler
	undo   *UndoLastHandler
	grant  *GrantAdminHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.SeedModules(context.Background(), []ledger.ModuleSeed{
		{Name: "BMU 5X", Points: 14.5},
		{Name: "BMU 10X", Points: 29},
		{Name: "Теория", Points: 8},
	}))

	f := &fixture{
		store: store,
		cache: &fakeCache{},
		clock: timeutil.NewManualClock(time.Date(2024, 5, 10, 19, 30, 0, 0, msk)),
	}
	locks := NewUserLocks()
	f.record = NewRecordCompletionHandler(store, f.cache, locks, f.clock, nil)
	f.undo = NewUndoLastHandler(store, f.cache, locks, nil)
	f.grant = NewGrantAdminHandler(store, nil)
	return f
}

func may() ledger.Period { return ledger.Period{Year: 2024, Month: 5} }

func TestRecordCompletion_ByName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.record.Handle(ctx, RecordCompletionCommand{UserID: 10, ModuleName: "bmu 5x"})
	require.NoError(t, err)

	assert.Equal(t, "BMU 5X", res.Module.Name)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, 14.5, res.Points)
	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), res.Date)

	total, err := f.store.MonthlyTotal(ctx, 10, may())
	require.NoError(t, err)
	assert.Equal(t, 14.5, total)
	assert.Equal(t, []ledger.Period{may()}, f.cache.invalidated)
}

func TestRecordCompletion_DateFollowsLocalCalendarDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 01:30 MSK on June 1 is still May 31 in UTC.
	f.clock.Set(time.Date(2024, 6, 1, 1, 30, 0, 0, msk))
	res, err := f.record.Handle(ctx, RecordCompletionCommand{UserID: 10, ModuleName: "Теория"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), res.Date)

	total, err := f.store.MonthlyTotal(ctx, 10, may())
	require.NoError(t, err)
	assert.Zero(t, total)

	total, err = f.store.MonthlyTotal(ctx, 10, ledger.Period{Year: 2024, Month: 6})
	require.NoError(t, err)
	assert.Equal(t, 8.0, total)
}

func TestRecordCompletion_WithCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.record.Handle(ctx, RecordCompletionCommand{UserID: 10, ModuleName: "BMU 10X", Count: 3})
	require.NoError(t, err)
	assert.Equal(t, 87.0, res.Points)

	total, err := f.store.MonthlyTotal(ctx, 10, may())
	require.NoError(t, err)
	assert.Equal(t, 87.0, total)
}

func TestRecordCompletion_ByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.store.FindModuleByName(ctx, "Теория")
	require.NoError(t, err)

	res, err := f.record.Handle(ctx, RecordCompletionCommand{UserID: 10, ModuleID: m.ID})
	require.NoError(t, err)
	assert.Equal(t, "Теория", res.Module.Name)
}

func TestRecordCompletion_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		cmd   RecordCompletionCommand
		check func(t *testing.T, err error)
	}{
		{
			name: "unknown module",
			cmd:  RecordCompletionCommand{UserID: 10, ModuleName: "nope"},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ledger.ErrModuleNotFound)
			},
		},
		{
			name: "unknown module id",
			cmd:  RecordCompletionCommand{UserID: 10, ModuleID: 999},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ledger.ErrModuleNotFound)
			},
		},
		{
			name: "count too large",
			cmd:  RecordCompletionCommand{UserID: 10, ModuleName: "Теория", Count: 51},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrInvalidCount)
			},
		},
		{
			name: "negative count",
			cmd:  RecordCompletionCommand{UserID: 10, ModuleName: "Теория", Count: -1},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrInvalidCount)
			},
		},
		{
			name: "missing module",
			cmd:  RecordCompletionCommand{UserID: 10},
			check: func(t *testing.T, err error) {
				assert.True(t, shared.IsValidation(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.record.Handle(ctx, tt.cmd)
			require.Error(t, err)
			tt.check(t, err)
		})
	}

	total, err := f.store.MonthlyTotal(ctx, 10, may())
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, f.cache.invalidated)
}

func TestUndoLast(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.record.Handle(ctx, RecordCompletionCommand{UserID: 10, ModuleName: "BMU 5X"})
	require.NoError(t, err)
	_, err = f.record.Handle(ctx, RecordCompletionCommand{UserID: 10, ModuleName: "Теория"})
	require.NoError(t, err)

	ev, err := f.undo.Handle(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "Теория", ev.ModuleName)

	ev, err = f.undo.Handle(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "BMU 5X", ev.ModuleName)

	_, err = f.undo.Handle(ctx, 10)
	assert.ErrorIs(t, err, ledger.ErrNoActions)

	total, err := f.store.MonthlyTotal(ctx, 10, may())
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Len(t, f.cache.invalidated, 4)
}

func TestConcurrentRecordsForSameUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.record.Handle(ctx, RecordCompletionCommand{UserID: 10, ModuleName: "Теория"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	total, err := f.store.MonthlyTotal(ctx, 10, may())
	require.NoError(t, err)
	assert.Equal(t, 80.0, total)
	assert.Zero(t, f.record.locks.size())
}

func TestGrantAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.grant.Handle(ctx, 1, 42))
	require.NoError(t, f.grant.Handle(ctx, 1, 42))

	ok, err := f.store.IsAdmin(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)

	err = f.grant.Handle(ctx, 1, 0)
	assert.True(t, shared.IsValidation(err))
}

func TestSeedAdmins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.grant.SeedAdmins(ctx, []int64{7, 0, 8}))

	for _, id := range []int64{7, 8} {
		ok, err := f.store.IsAdmin(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestUserLocksRelease(t *testing.T) {
	l := NewUserLocks()

	unlock := l.lock(1)
	assert.Equal(t, 1, l.size())
	unlock()
	assert.Equal(t, 0, l.size())
}
