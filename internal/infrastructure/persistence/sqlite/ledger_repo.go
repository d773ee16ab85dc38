package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/modpoints/points-bot/internal/domain/ledger"
	"github.com/modpoints/points-bot/internal/domain/shared"
)

var _ ledger.Repository = (*Store)(nil)

func storageErr(op string, err error) error {
	return shared.StorageError("ledger", op, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// WRITE OPERATIONS
// ─────────────────────────────────────────────────────────────────────────────

// RecordCompletion appends one completion event.
func (s *Store) RecordCompletion(ctx context.Context, userID, moduleID int64, date time.Time) error {
	return s.RecordCompletions(ctx, userID, moduleID, date, 1)
}

// RecordCompletions appends count events in one transaction.
func (s *Store) RecordCompletions(ctx context.Context, userID, moduleID int64, date time.Time, count int) error {
	if count < 1 {
		return shared.NewDomainError("ledger", "RecordCompletions", shared.ErrValueOutOfRange, "count must be positive")
	}

	day := formatDate(ledger.DateOnly(date))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM modules WHERE id = ?`, moduleID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ledger.ErrModuleNotFound
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO user_module_logs (user_id, module_id, date, created_at) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		createdAt := s.now().UTC().UnixNano()
		for i := 0; i < count; i++ {
			if _, err := stmt.ExecContext(ctx, userID, moduleID, day, createdAt); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ledger.ErrModuleNotFound) {
		return err
	}
	if err != nil {
		return storageErr("RecordCompletions", err)
	}
	return nil
}

// UndoLastAction removes the latest event of the user and returns it.
func (s *Store) UndoLastAction(ctx context.Context, userID int64) (*ledger.CompletionEvent, error) {
	var ev *ledger.CompletionEvent
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			e         ledger.CompletionEvent
			date      string
			createdAt int64
		)
		err := tx.QueryRowContext(ctx, `
			DELETE FROM user_module_logs
			WHERE id = (
				SELECT id FROM user_module_logs
				WHERE user_id = ?
				ORDER BY created_at DESC, id DESC
				LIMIT 1
			)
			RETURNING id, user_id, module_id, date, created_at
		`, userID).Scan(&e.ID, &e.UserID, &e.ModuleID, &date, &createdAt)
		if err != nil {
			return err
		}

		if err := tx.QueryRowContext(ctx, `SELECT name, points FROM modules WHERE id = ?`, e.ModuleID).
			Scan(&e.ModuleName, &e.Points); err != nil {
			return err
		}

		if e.Date, err = parseDate(date); err != nil {
			return err
		}
		e.CreatedAt = time.Unix(0, createdAt).UTC()
		ev = &e
		return nil
	})

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNoActions
	}
	if err != nil {
		return nil, storageErr("UndoLastAction", err)
	}
	return ev, nil
}

// UpsertMonthlySummary writes or overwrites the summary for (user, year, month).
func (s *Store) UpsertMonthlySummary(ctx context.Context, m ledger.MonthlySummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monthly_summary (user_id, year, month, total_points, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, year, month)
		DO UPDATE SET total_points = excluded.total_points, created_at = excluded.created_at
	`, m.UserID, m.Year, m.Month, m.TotalPoints, s.now().UTC().UnixMilli())
	if err != nil {
		return storageErr("UpsertMonthlySummary", err)
	}
	return nil
}

// MonthlySummary reads a stored summary.
func (s *Store) MonthlySummary(ctx context.Context, userID int64, period ledger.Period) (*ledger.MonthlySummary, error) {
	m := ledger.MonthlySummary{UserID: userID, Year: period.Year, Month: period.Month}
	err := s.db.QueryRowContext(ctx,
		`SELECT total_points FROM monthly_summary WHERE user_id = ? AND year = ? AND month = ?`,
		userID, period.Year, period.Month,
	).Scan(&m.TotalPoints)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NewDomainError("ledger", "MonthlySummary", shared.ErrNotFound, "summary not found")
	}
	if err != nil {
		return nil, storageErr("MonthlySummary", err)
	}
	return &m, nil
}

// AddAdmin grants admin rights. Granting twice is a no-op.
func (s *Store) AddAdmin(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admins (user_id, created_at) VALUES (?, ?) ON CONFLICT (user_id) DO NOTHING`,
		userID, s.now().UTC().UnixMilli())
	if err != nil {
		return storageErr("AddAdmin", err)
	}
	return nil
}

// SeedModules inserts the catalog when the modules table is empty.
func (s *Store) SeedModules(ctx context.Context, seeds []ledger.ModuleSeed) error {
	if err := ledger.ValidateSeeds(seeds); err != nil {
		return err
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM modules`).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		for _, seed := range seeds {
			if _, err := tx.ExecContext(ctx, `INSERT INTO modules (name, points) VALUES (?, ?)`, seed.Name, seed.Points); err != nil {
				return fmt.Errorf("insert module %q: %w", seed.Name, err)
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
func (s *Store) MonthlyTotal(ctx context.Context, userID int64, period ledger.Period) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(m.points), 0)
		FROM user_module_logs l
		JOIN modules m ON m.id = l.module_id
		WHERE l.user_id = ? AND l.date >= ? AND l.date < ?
	`, userID, formatDate(period.Start()), formatDate(period.End())).Scan(&total)
	if err != nil {
		return 0, storageErr("MonthlyTotal", err)
	}
	return total, nil
}

// DailyBreakdown returns points per day of month, only for days with events.
func (s *Store) DailyBreakdown(ctx context.Context, userID int64, period ledger.Period) (ledger.DailyBreakdown, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT CAST(substr(l.date, 9, 2) AS INTEGER) AS day, SUM(m.points)
		FROM user_module_logs l
		JOIN modules m ON m.id = l.module_id
		WHERE l.user_id = ? AND l.date >= ? AND l.date < ?
		GROUP BY day
		ORDER BY day
	`, userID, formatDate(period.Start()), formatDate(period.End()))
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
func (s *Store) Leaderboard(ctx context.Context, period ledger.Period, limit int) ([]ledger.LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.user_id, SUM(m.points) AS total, COUNT(*)
		FROM user_module_logs l
		JOIN modules m ON m.id = l.module_id
		WHERE l.date >= ? AND l.date < ?
		GROUP BY l.user_id
		ORDER BY total DESC, l.user_id ASC
		LIMIT ?
	`, formatDate(period.Start()), formatDate(period.End()), limit)
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
func (s *Store) LastAction(ctx context.Context, userID int64) (*ledger.CompletionEvent, error) {
	var (
		e         ledger.CompletionEvent
		date      string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT l.id, l.user_id, l.module_id, m.name, m.points, l.date, l.created_at
		FROM user_module_logs l
		JOIN modules m ON m.id = l.module_id
		WHERE l.user_id = ?
		ORDER BY l.created_at DESC, l.id DESC
		LIMIT 1
	`, userID).Scan(&e.ID, &e.UserID, &e.ModuleID, &e.ModuleName, &e.Points, &date, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNoActions
	}
	if err != nil {
		return nil, storageErr("LastAction", err)
	}

	if e.Date, err = parseDate(date); err != nil {
		return nil, storageErr("LastAction", err)
	}
	e.CreatedAt = time.Unix(0, createdAt).UTC()
	return &e, nil
}

// ListModules returns all modules ordered by name.
func (s *Store) ListModules(ctx context.Context) ([]ledger.Module, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, points FROM modules ORDER BY name`)
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
// SQLite NOCASE folds ASCII only, so Cyrillic names are compared in Go.
func (s *Store) FindModuleByName(ctx context.Context, name string) (*ledger.Module, error) {
	modules, err := s.ListModules(ctx)
	if err != nil {
		return nil, err
	}
	key := ledger.ModuleNameKey(name)
	for i := range modules {
		if ledger.ModuleNameKey(modules[i].Name) == key {
			return &modules[i], nil
		}
	}
	return nil, ledger.ErrModuleNotFound
}

// GetModule returns a module by id.
func (s *Store) GetModule(ctx context.Context, id int64) (*ledger.Module, error) {
	var m ledger.Module
	err := s.db.QueryRowContext(ctx, `SELECT id, name, points FROM modules WHERE id = ?`, id).
		Scan(&m.ID, &m.Name, &m.Points)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrModuleNotFound
	}
	if err != nil {
		return nil, storageErr("GetModule", err)
	}
	return &m, nil
}

// DistinctActiveUsers returns every user with at least one event.
func (s *Store) DistinctActiveUsers(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM user_module_logs ORDER BY user_id`)
	if err != nil {
		return nil, storageErr("DistinctActiveUsers", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("DistinctActiveUsers", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("DistinctActiveUsers", err)
	}
	return ids, nil
}

// IsAdmin checks the admins table.
func (s *Store) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM admins WHERE user_id = ?)`, userID).Scan(&exists)
	if err != nil {
		return false, storageErr("IsAdmin", err)
	}
	return exists, nil
}
