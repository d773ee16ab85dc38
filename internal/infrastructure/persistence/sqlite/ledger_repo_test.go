package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modpoints/points-bot/internal/domain/ledger"
	"github.com/modpoints/points-bot/internal/domain/shared"
)

var defaultSeeds = []ledger.ModuleSeed{
	{Name: "BMU 5X", Points: 14.5},
	{Name: "BMU 10X", Points: 29},
	{Name: "Практика 1", Points: 10},
	{Name: "Практика 2", Points: 15},
	{Name: "Теория", Points: 8},
	{Name: "Дополнительный модуль", Points: 12.5},
}

func openTempStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.SeedModules(context.Background(), defaultSeeds))
	return store
}

// tick makes created_at strictly increasing between calls.
func tick(s *Store, start time.Time) {
	cur := start
	s.now = func() time.Time {
		cur = cur.Add(time.Second)
		return cur
	}
}

func module(t *testing.T, s *Store, name string) ledger.Module {
	t.Helper()
	m, err := s.FindModuleByName(context.Background(), name)
	require.NoError(t, err)
	return *m
}

func day(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestMigrations_ReportApplied(t *testing.T) {
	s := openTempStore(t)

	migs, err := s.Migrations(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, migs)
	assert.Equal(t, "001_ledger.sql", migs[0].Name)
	for _, m := range migs {
		assert.True(t, m.Applied, m.Name)
		assert.False(t, m.AppliedAt.IsZero(), m.Name)
	}
}

func TestSeedModules_RejectsNamesDifferingInCase(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	err = s.SeedModules(ctx, []ledger.ModuleSeed{
		{Name: "Теория", Points: 8},
		{Name: "ТЕОРИЯ", Points: 9},
	})
	assert.True(t, shared.IsValidation(err))

	modules, err := s.ListModules(ctx)
	require.NoError(t, err)
	assert.Empty(t, modules)
}

func TestSeedModules_OnlyWhenEmpty(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)

	require.NoError(t, s.SeedModules(ctx, []ledger.ModuleSeed{{Name: "Extra", Points: 1}}))

	modules, err := s.ListModules(ctx)
	require.NoError(t, err)
	assert.Len(t, modules, len(defaultSeeds))
}

func TestFindModuleByName_CaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)

	m, err := s.FindModuleByName(ctx, "bmu 5x")
	require.NoError(t, err)
	assert.Equal(t, 14.5, m.Points)

	m, err = s.FindModuleByName(ctx, "ТЕОРИЯ")
	require.NoError(t, err)
	assert.Equal(t, "Теория", m.Name)

	_, err = s.FindModuleByName(ctx, "BMU")
	assert.ErrorIs(t, err, ledger.ErrModuleNotFound)

	_, err = s.GetModule(ctx, 9999)
	assert.ErrorIs(t, err, ledger.ErrModuleNotFound)
}

func TestMonthlyTotal_SumsOnlyThatMonth(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)
	bmu5 := module(t, s, "BMU 5X")
	bmu10 := module(t, s, "BMU 10X")

	require.NoError(t, s.RecordCompletion(ctx, 1, bmu5.ID, day(2024, 5, 3)))
	require.NoError(t, s.RecordCompletion(ctx, 1, bmu10.ID, day(2024, 5, 31)))
	require.NoError(t, s.RecordCompletion(ctx, 1, bmu10.ID, day(2024, 6, 1)))
	require.NoError(t, s.RecordCompletion(ctx, 2, bmu10.ID, day(2024, 5, 10)))

	total, err := s.MonthlyTotal(ctx, 1, ledger.Period{Year: 2024, Month: 5})
	require.NoError(t, err)
	assert.InDelta(t, 43.5, total, 1e-9)

	empty, err := s.MonthlyTotal(ctx, 3, ledger.Period{Year: 2024, Month: 5})
	require.NoError(t, err)
	assert.Equal(t, 0.0, empty)
}

func TestRecordCompletions_Batch(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)
	theory := module(t, s, "Теория")

	require.NoError(t, s.RecordCompletions(ctx, 7, theory.ID, day(2024, 5, 2), 3))

	total, err := s.MonthlyTotal(ctx, 7, ledger.Period{Year: 2024, Month: 5})
	require.NoError(t, err)
	assert.InDelta(t, 24.0, total, 1e-9)

	err = s.RecordCompletions(ctx, 7, 9999, day(2024, 5, 2), 2)
	assert.ErrorIs(t, err, ledger.ErrModuleNotFound)

	err = s.RecordCompletions(ctx, 7, theory.ID, day(2024, 5, 2), 0)
	assert.True(t, shared.IsValidation(err))
}

func TestDailyBreakdown(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)
	bmu5 := module(t, s, "BMU 5X")
	theory := module(t, s, "Теория")

	require.NoError(t, s.RecordCompletion(ctx, 1, bmu5.ID, day(2024, 5, 3)))
	require.NoError(t, s.RecordCompletion(ctx, 1, theory.ID, day(2024, 5, 3)))
	require.NoError(t, s.RecordCompletion(ctx, 1, theory.ID, day(2024, 5, 17)))
	require.NoError(t, s.RecordCompletion(ctx, 1, theory.ID, day(2024, 4, 30)))

	breakdown, err := s.DailyBreakdown(ctx, 1, ledger.Period{Year: 2024, Month: 5})
	require.NoError(t, err)
	assert.Equal(t, ledger.DailyBreakdown{3: 22.5, 17: 8}, breakdown)
}

func TestUndoLastAction_DepthOneLIFO(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)
	tick(s, time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC))

	bmu5 := module(t, s, "BMU 5X")
	bmu10 := module(t, s, "BMU 10X")
	may := ledger.Period{Year: 2024, Month: 5}

	require.NoError(t, s.RecordCompletion(ctx, 1, bmu5.ID, day(2024, 5, 1)))
	require.NoError(t, s.RecordCompletion(ctx, 1, bmu10.ID, day(2024, 5, 1)))

	ev, err := s.UndoLastAction(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, bmu10.ID, ev.ModuleID)
	assert.Equal(t, "BMU 10X", ev.ModuleName)
	assert.Equal(t, 29.0, ev.Points)
	assert.Equal(t, day(2024, 5, 1), ev.Date)

	total, err := s.MonthlyTotal(ctx, 1, may)
	require.NoError(t, err)
	assert.InDelta(t, 14.5, total, 1e-9)

	_, err = s.UndoLastAction(ctx, 1)
	require.NoError(t, err)

	_, err = s.UndoLastAction(ctx, 1)
	assert.ErrorIs(t, err, ledger.ErrNoActions)

	total, err = s.MonthlyTotal(ctx, 1, may)
	require.NoError(t, err)
	assert.Equal(t, 0.0, total)
}

func TestUndoLastAction_TiesBrokenByID(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)
	frozen := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return frozen }

	bmu5 := module(t, s, "BMU 5X")
	theory := module(t, s, "Теория")

	require.NoError(t, s.RecordCompletion(ctx, 1, bmu5.ID, day(2024, 5, 1)))
	require.NoError(t, s.RecordCompletion(ctx, 1, theory.ID, day(2024, 5, 1)))

	last, err := s.LastAction(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, theory.ID, last.ModuleID)

	ev, err := s.UndoLastAction(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, last.ID, ev.ID)
}

func TestUndoLastAction_OnlyTouchesOwnEvents(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)
	tick(s, time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC))
	theory := module(t, s, "Теория")

	require.NoError(t, s.RecordCompletion(ctx, 1, theory.ID, day(2024, 5, 1)))
	require.NoError(t, s.RecordCompletion(ctx, 2, theory.ID, day(2024, 5, 1)))

	ev, err := s.UndoLastAction(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ev.UserID)

	_, err = s.LastAction(ctx, 2)
	assert.NoError(t, err)
}

func TestLeaderboard_OrderAndTieBreak(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)
	bmu5 := module(t, s, "BMU 5X")
	bmu10 := module(t, s, "BMU 10X")
	theory := module(t, s, "Теория")
	may := day(2024, 5, 5)

	// user 30 and user 10 tie at 29, user 20 leads.
	require.NoError(t, s.RecordCompletion(ctx, 30, bmu10.ID, may))
	require.NoError(t, s.RecordCompletions(ctx, 10, bmu5.ID, may, 2))
	require.NoError(t, s.RecordCompletion(ctx, 20, bmu10.ID, may))
	require.NoError(t, s.RecordCompletion(ctx, 20, theory.ID, may))
	require.NoError(t, s.RecordCompletion(ctx, 40, theory.ID, day(2024, 6, 1)))

	entries, err := s.Leaderboard(ctx, ledger.Period{Year: 2024, Month: 5}, 20)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, int64(20), entries[0].UserID)
	assert.InDelta(t, 37.0, entries[0].TotalPoints, 1e-9)
	assert.Equal(t, 2, entries[0].Completions)
	assert.Equal(t, int64(10), entries[1].UserID)
	assert.Equal(t, int64(30), entries[2].UserID)

	top, err := s.Leaderboard(ctx, ledger.Period{Year: 2024, Month: 5}, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestDistinctActiveUsers(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)
	theory := module(t, s, "Теория")

	users, err := s.DistinctActiveUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	for _, u := range []int64{5, 3, 5, 9} {
		require.NoError(t, s.RecordCompletion(ctx, u, theory.ID, day(2024, 5, 1)))
	}

	users, err = s.DistinctActiveUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 5, 9}, users)
}

func TestUpsertMonthlySummary_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)
	april := ledger.Period{Year: 2024, Month: 4}

	require.NoError(t, s.UpsertMonthlySummary(ctx, ledger.MonthlySummary{UserID: 1, Year: 2024, Month: 4, TotalPoints: 100}))
	require.NoError(t, s.UpsertMonthlySummary(ctx, ledger.MonthlySummary{UserID: 1, Year: 2024, Month: 4, TotalPoints: 120.5}))

	got, err := s.MonthlySummary(ctx, 1, april)
	require.NoError(t, err)
	assert.Equal(t, 120.5, got.TotalPoints)

	_, err = s.MonthlySummary(ctx, 2, april)
	assert.True(t, shared.IsNotFound(err))
}

func TestAdmins(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)

	ok, err := s.IsAdmin(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AddAdmin(ctx, 42))
	require.NoError(t, s.AddAdmin(ctx, 42))

	ok, err = s.IsAdmin(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStorageErrorsAreWrapped(t *testing.T) {
	s := openTempStore(t)
	require.NoError(t, s.Close())

	_, err := s.MonthlyTotal(context.Background(), 1, ledger.Period{Year: 2024, Month: 5})
	require.Error(t, err)
	assert.True(t, shared.IsStorage(err))
}
