package query

import (
	"context"
	"log/slog"

	"github.com/modpoints/points-bot/internal/domain/ledger"
	"github.com/modpoints/points-bot/pkg/circuitbreaker"
	"github.com/modpoints/points-bot/pkg/logger"
	"github.com/modpoints/points-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Топ пользователей текущего месяца. Результат кешируется в Redis,
// если кеш подключён; сбои кеша не влияют на ответ.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultLeaderboardLimit — размер топа в /leaderboard.
const DefaultLeaderboardLimit = 20

// RankedEntry — строка лидерборда с позицией и деньгами.
type RankedEntry struct {
	Rank        int
	UserID      int64
	Points      float64
	Money       float64
	Completions int
}

// LeaderboardResult — лидерборд за период.
type LeaderboardResult struct {
	Period  ledger.Period
	Entries []RankedEntry

	// FromCache — ответ получен из кеша.
	FromCache bool
}

// GetLeaderboardHandler обрабатывает /leaderboard.
type GetLeaderboardHandler struct {
	repo   ledger.Repository
	cache  ledger.LeaderboardCache
	clock  timeutil.Clock
	rate   float64
	logger *slog.Logger
}

// NewGetLeaderboardHandler создаёт обработчик. cache может быть nil.
func NewGetLeaderboardHandler(
	repo ledger.Repository,
	cache ledger.LeaderboardCache,
	clock timeutil.Clock,
	rate float64,
	log *slog.Logger,
) *GetLeaderboardHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &GetLeaderboardHandler{
		repo:   repo,
		cache:  cache,
		clock:  clock,
		rate:   rate,
		logger: log.With(logger.Component("leaderboard")),
	}
}

// Handle возвращает топ текущего месяца.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, limit int) (*LeaderboardResult, error) {
	return h.ForPeriod(ctx, ledger.PeriodOf(h.clock.Now()), limit)
}

// ForPeriod возвращает топ за указанный месяц.
func (h *GetLeaderboardHandler) ForPeriod(ctx context.Context, period ledger.Period, limit int) (*LeaderboardResult, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}

	// Версия читается до запроса в БД: если запись успеет инвалидировать
	// кеш, снимок ляжет под устаревшей версией и не будет прочитан.
	var (
		version   int64
		cacheable bool
	)
	if h.cache != nil {
		entries, v, err := h.cache.GetTop(ctx, period, limit)
		switch {
		case err != nil:
			h.cacheFailed(ctx, "leaderboard cache read failed", err)
		case entries != nil:
			return h.rank(period, entries, true), nil
		default:
			version, cacheable = v, true
		}
	}

	entries, err := h.repo.Leaderboard(ctx, period, limit)
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := h.cache.SetTop(ctx, period, limit, version, entries); err != nil {
			h.cacheFailed(ctx, "leaderboard cache write failed", err)
		}
	}
	return h.rank(period, entries, false), nil
}

// cacheFailed логирует сбой кеша. Пока цепь разомкнута, отказы ожидаемы
// и пишутся на уровне debug.
func (h *GetLeaderboardHandler) cacheFailed(ctx context.Context, msg string, err error) {
	h.logger.Log(ctx, cacheErrorLevel(err), msg, logger.Err(err))
}

func cacheErrorLevel(err error) slog.Level {
	if circuitbreaker.IsRejected(err) {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

func (h *GetLeaderboardHandler) rank(period ledger.Period, entries []ledger.LeaderboardEntry, cached bool) *LeaderboardResult {
	result := &LeaderboardResult{
		Period:    period,
		Entries:   make([]RankedEntry, len(entries)),
		FromCache: cached,
	}
	for i, e := range entries {
		result.Entries[i] = RankedEntry{
			Rank:        i + 1,
			UserID:      e.UserID,
			Points:      e.TotalPoints,
			Money:       ledger.ToMoney(e.TotalPoints, h.rate),
			Completions: e.Completions,
		}
	}
	return result
}
