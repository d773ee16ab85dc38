package ledger

import (
	"context"
	"errors"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrModuleNotFound — модуль с таким именем или ID не существует.
	ErrModuleNotFound = errors.New("module not found")

	// ErrNoActions — у пользователя нет записей для отмены.
	ErrNoActions = errors.New("no actions to undo")
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет контракт журнала баллов.
// Реализации: PostgreSQL (production) и SQLite (локальная разработка, тесты).
//
// Любой сбой хранилища возвращается как *shared.DomainError с Kind = shared.ErrStorage.
// Частичные результаты при ошибке не возвращаются.
type Repository interface {
	// ──────────────────────────────────────────────────────────────────────────
	// WRITE OPERATIONS
	// ──────────────────────────────────────────────────────────────────────────

	// RecordCompletion добавляет одну запись о выполнении модуля.
	// Повторы в течение дня не ограничены.
	RecordCompletion(ctx context.Context, userID, moduleID int64, date time.Time) error

	// RecordCompletions добавляет count записей в одной транзакции.
	RecordCompletions(ctx context.Context, userID, moduleID int64, date time.Time, count int) error

	// UndoLastAction атомарно удаляет последнюю запись пользователя
	// (по created_at, затем id) и возвращает её. ErrNoActions, если записей нет.
	UndoLastAction(ctx context.Context, userID int64) (*CompletionEvent, error)

	// UpsertMonthlySummary сохраняет месячный итог. Повторный вызов перезаписывает значение.
	UpsertMonthlySummary(ctx context.Context, summary MonthlySummary) error

	// AddAdmin выдаёт права администратора. Повторная выдача ничего не делает.
	AddAdmin(ctx context.Context, userID int64) error

	// SeedModules вставляет каталог по умолчанию, только если таблица модулей пуста.
	SeedModules(ctx context.Context, seeds []ModuleSeed) error

	// ──────────────────────────────────────────────────────────────────────────
	// READ OPERATIONS
	// ──────────────────────────────────────────────────────────────────────────

	// MonthlyTotal возвращает сумму баллов пользователя за период (0, если записей нет).
	MonthlyTotal(ctx context.Context, userID int64, period Period) (float64, error)

	// DailyBreakdown возвращает баллы по дням периода. Только дни с записями.
	DailyBreakdown(ctx context.Context, userID int64, period Period) (DailyBreakdown, error)

	// Leaderboard возвращает топ пользователей за период.
	// Сортировка: total DESC, затем user_id ASC.
	Leaderboard(ctx context.Context, period Period, limit int) ([]LeaderboardEntry, error)

	// LastAction возвращает последнюю запись пользователя без удаления.
	LastAction(ctx context.Context, userID int64) (*CompletionEvent, error)

	// ListModules возвращает все модули, отсортированные по имени.
	ListModules(ctx context.Context) ([]Module, error)

	// FindModuleByName ищет модуль по имени без учёта регистра.
	FindModuleByName(ctx context.Context, name string) (*Module, error)

	// GetModule возвращает модуль по ID.
	GetModule(ctx context.Context, id int64) (*Module, error)

	// DistinctActiveUsers возвращает всех пользователей хотя бы с одной записью, по возрастанию.
	DistinctActiveUsers(ctx context.Context) ([]int64, error)

	// IsAdmin проверяет наличие пользователя в таблице администраторов.
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardCache кеширует лидерборд текущего месяца.
// Отделён от репозитория, чтобы бот работал без Redis.
//
// Снимки версионируются: Invalidate увеличивает версию периода, и снимок,
// записанный под прежней версией, больше не читается.
type LeaderboardCache interface {
	// GetTop возвращает закешированный топ (nil, если кеш пуст) и текущую
	// версию периода.
	GetTop(ctx context.Context, period Period, limit int) ([]LeaderboardEntry, int64, error)

	// SetTop сохраняет топ под версией, полученной из GetTop до чтения из БД.
	SetTop(ctx context.Context, period Period, limit int, version int64, entries []LeaderboardEntry) error

	// Invalidate увеличивает версию периода.
	Invalidate(ctx context.Context, period Period) error
}
