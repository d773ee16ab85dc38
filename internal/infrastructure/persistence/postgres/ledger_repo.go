package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/modpoints/points-bot/internal/domain/ledger"
	"github.com/modpoints/points-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepository implements ledger.Repository for PostgreSQL.
type LedgerRepository struct {
	conn *Connection
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(conn *Connection) *LedgerRepository {
	return &LedgerRepository{conn: conn}
}

var _ ledger.Repository = (*LedgerRepository)(nil)

func storageErr(op string, err error) error {
	return shared.StorageError("ledger", op, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// WRITE OPERATIONS
// ─────────────────────────────────────────────────────────────────────────────

const insertLogSQL = `INSERT INTO user_module_logs (user_id, module_id, date) VALUES ($1, $2, $3)`

// RecordCompletion appends one completion event.
func (r *LedgerRepository) RecordCompletion(ctx context.Context, userID, moduleID int64, date time.Time) error {
	return r.RecordCompletions(ctx, userID, moduleID, date, 1)
}

// RecordCompletions appends count events in one transaction.
func (r *LedgerRepository) RecordCompletions(ctx context.Context, userID, moduleID int64, date time.Time, count int) error {
	if count < 1 {
		return shared.NewDomainError("ledger", "RecordCompletions", shared.ErrValueOutOfRange, "count must be positive")
	}

	day := ledger.DateOnly(date)
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for i := 0; i < count; i++ {
			batch.Queue(insertLogSQL, userID, moduleID, day)
		}

		br := tx.SendBatch(ctx, batch)
		for i := 0; i < count; i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return err
			}
		}
		return br.Close()
	})
	if err != nil {
		if IsForeignKeyViolation(err) {
			return ledger.ErrModuleNotFound
		}
		return storageErr("RecordCompletions", err)
	}
	return nil
}

// UndoLastAction deletes the latest event of the user in one statement.
func (r *LedgerRepository) UndoLastAction(ctx context.Context, userID int64) (*ledger.CompletionEvent, error) {
	var ev ledger.CompletionEvent
	err := r.conn.QueryRow(ctx, `
		WITH last AS (
			SELECT id FROM user_module_logs
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT 1
			FOR UPDATE
		)
		DELETE FROM user_module_logs l
		USING last, modules m
		WHERE l.id = last.id AND m.id = l.module_id
		RETURNING l.id, l.user_id, l.module_id, m.name, m.points::float8, l.date, l.created_at
	`, userID).Scan(&ev.ID, &ev.UserID, &ev.ModuleID, &ev.ModuleName, &ev.Points, &ev.Date, &ev.CreatedAt)

	if IsNoRows(err) {
		return nil, ledger.ErrNoActions
	}
	if err != nil {
		return nil, storageErr("UndoLastAction", err)
	}
	return &ev, nil
}

// UpsertMonthlySummary writes or overwrites the summary for (user, year, month).
func (r *LedgerRepository) UpsertMonthlySummary(ctx context.Context, s ledger.MonthlySummary) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO monthly_summary (user_id, year, month, total_points)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, year, month)
		DO UPDATE SET total_points = EXCLUDED.total_points, created_at = NOW()
	`, s.UserID, s.Year, s.Month, s.TotalPoints)
	if err != nil {
		return storageErr("UpsertMonthlySummary", err)
	}
	return nil
}

// AddAdmin grants admin rights. Granting twice is a no-op.
func (r *LedgerRepository) AddAdmin(ctx context.Context, userID int64) error {
	_, err := r.conn.Exec(ctx, `INSERT INTO admins (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return storageErr("AddAdmin", err)
	}
	return nil
}

// SeedModules inserts the catalog when the modules table is empty.
func (r *LedgerRepository) SeedModules(ctx context.Context, seeds []ledger.ModuleSeed) error {
	if err := ledger.ValidateSeeds(seeds); err != nil {
		return err
	}

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		// Two instances starting together must not both seed.
		if _, err := tx.Exec(ctx, `LOCK TABLE modules IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return err
		}

		var count int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM modules`).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		for _, s := range seeds {
			if _, err := tx.Exec(ctx, `INSERT INTO modules (name, points) VALUES ($1, $2)`, s.Name, s.Points); err != nil {
				return fmt.Errorf("insert module %q: %w", s.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return storageErr("SeedModules", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// READ OPERATIONS
// ─────────────────────────────────────────────────────────────────────────────

// MonthlyTotal returns the sum of points for the period.
func (r *LedgerRepository) MonthlyTotal(ctx context.Context, userID int64, period ledger.Period) (float64, error) {
	var total float64
	err := r.conn.QueryRow(ctx, `
		SELECT COALESCE(SUM(m.points), 0)::float8
		FROM user_module_logs l
		JOIN modules m ON m.id = l.module_id
		WHERE l.user_id = $1 AND l.date >= $2 AND l.date < $3
	`, userID, period.Start(), period.End()).Scan(&total)
	if err != nil {
		return 0, storageErr("MonthlyTotal", err)
	}
	return total, nil
}

// DailyBreakdown returns points per day of month, only for days with events.
func (r *LedgerRepository) DailyBreakdown(ctx context.Context, userID int64, period ledger.Period) (ledger.DailyBreakdown, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT EXTRACT(DAY FROM l.date)::int AS day, SUM(m.points)::float8
		FROM user_module_logs l
		JOIN modules m ON m.id = l.module_id
		WHERE l.user_id = $1 AND l.date >= $2 AND l.date < $3
		GROUP BY day
		ORDER BY day
	`, userID, period.Start(), period.End())
	if err != nil {
		return nil, storageErr("DailyBreakdown", err)
	}
	defer rows.Close()

	result := make(ledger.DailyBreakdown)
	for rows.Next() {
		var day int
		var points float64
		if err := rows.Scan(&day, &points); err != nil {
			return nil, storageErr("DailyBreakdown", err)
		}
		result[day] = points
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("DailyBreakdown", err)
	}
	return result, nil
}

// Leaderboard returns the top users of the period, ties broken by user id.
func (r *LedgerRepository) Leaderboard(ctx context.Context, period ledger.Period, limit int) ([]ledger.LeaderboardEntry, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT l.user_id, SUM(m.points)::float8 AS total, COUNT(*)
		FROM user_module_logs l
		JOIN modules m ON m.id = l.module_id
		WHERE l.date >= $1 AND l.date < $2
		GROUP BY l.user_id
		ORDER BY total DESC, l.user_id ASC
		LIMIT $3
	`, period.Start(), period.End(), limit)
	if err != nil {
		return nil, storageErr("Leaderboard", err)
	}
	defer rows.Close()

	var entries []ledger.LeaderboardEntry
	for rows.Next() {
		var e ledger.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.TotalPoints, &e.Completions); err != nil {
			return nil, storageErr("Leaderboard", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("Leaderboard", err)
	}
	return entries, nil
}

// LastAction returns the latest event of the user without deleting it.
func (r *LedgerRepository) LastAction(ctx context.Context, userID int64) (*ledger.CompletionEvent, error) {
	var ev ledger.CompletionEvent
	err := r.conn.QueryRow(ctx, `
		SELECT l.id, l.user_id, l.module_id, m.name, m.points::float8, l.date, l.created_at
		FROM user_module_logs l
		JOIN modules m ON m.id = l.module_id
		WHERE l.user_id = $1
		ORDER BY l.created_at DESC, l.id DESC
		LIMIT 1
	`, userID).Scan(&ev.ID, &ev.UserID, &ev.ModuleID, &ev.ModuleName, &ev.Points, &ev.Date, &ev.CreatedAt)

	if IsNoRows(err) {
		return nil, ledger.ErrNoActions
	}
	if err != nil {
		return nil, storageErr("LastAction", err)
	}
	return &ev, nil
}

// ListModules returns all modules ordered by name.
func (r *LedgerRepository) ListModules(ctx context.Context) ([]ledger.Module, error) {
	rows, err := r.conn.Query(ctx, `SELECT id, name, points::float8 FROM modules ORDER BY name`)
	if err != nil {
		return nil, storageErr("ListModules", err)
	}
	defer rows.Close()

	var modules []ledger.Module
	for rows.Next() {
		var m ledger.Module
		if err := rows.Scan(&m.ID, &m.Name, &m.Points); err != nil {
			return nil, storageErr("ListModules", err)
		}
		modules = append(modules, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("ListModules", err)
	}
	return modules, nil
}

// FindModuleByName is a case-insensitive exact match.
func (r *LedgerRepository) FindModuleByName(ctx context.Context, name string) (*ledger.Module, error) {
	return r.findModule(ctx, "FindModuleByName",
		`SELECT id, name, points::float8 FROM modules WHERE LOWER(name) = LOWER($1)`, name)
}

// GetModule returns a module by id.
func (r *LedgerRepository) GetModule(ctx context.Context, id int64) (*ledger.Module, error) {
	return r.findModule(ctx, "GetModule",
		`SELECT id, name, points::float8 FROM modules WHERE id = $1`, id)
}

func (r *LedgerRepository) findModule(ctx context.Context, op, query string, arg any) (*ledger.Module, error) {
	var m ledger.Module
	err := r.conn.QueryRow(ctx, query, arg).Scan(&m.ID, &m.Name, &m.Points)
	if IsNoRows(err) {
		return nil, ledger.ErrModuleNotFound
	}
	if err != nil {
		return nil, storageErr(op, err)
	}
	return &m, nil
}

// DistinctActiveUsers returns every user with at least one event.
func (r *LedgerRepository) DistinctActiveUsers(ctx context.Context) ([]int64, error) {
	rows, err := r.conn.Query(ctx, `SELECT DISTINCT user_id FROM user_module_logs ORDER BY user_id`)
	if err != nil {
		return nil, storageErr("DistinctActiveUsers", err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, storageErr("DistinctActiveUsers", err)
	}
	return ids, nil
}

// IsAdmin checks the admins table.
func (r *LedgerRepository) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM admins WHERE user_id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, storageErr("IsAdmin", err)
	}
	return exists, nil
}
