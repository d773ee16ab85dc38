package command

import (
	"context"
	"log/slog"

	"github.com/modpoints/points-bot/internal/domain/ledger"
	"github.com/modpoints/points-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNDO LAST COMMAND
// Removes the most recent completion of the user. Only depth 1 is supported
// from the user's point of view: each call removes whatever is latest now.
// ══════════════════════════════════════════════════════════════════════════════

// UndoLastHandler handles undo requests.
type UndoLastHandler struct {
	repo   ledger.Repository
	cache  ledger.LeaderboardCache
	locks  *UserLocks
	logger *slog.Logger
}

// NewUndoLastHandler creates a new UndoLastHandler. cache may be nil.
func NewUndoLastHandler(repo ledger.Repository, cache ledger.LeaderboardCache, locks *UserLocks, log *slog.Logger) *UndoLastHandler {
	if locks == nil {
		locks = NewUserLocks()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &UndoLastHandler{
		repo:   repo,
		cache:  cache,
		locks:  locks,
		logger: log.With(logger.Component("undo_last")),
	}
}

// Handle removes the latest event and returns it.
// Returns ledger.ErrNoActions when the user has nothing to undo.
func (h *UndoLastHandler) Handle(ctx context.Context, userID int64) (*ledger.CompletionEvent, error) {
	unlock := h.locks.lock(userID)
	ev, err := h.repo.UndoLastAction(ctx, userID)
	unlock()
	if err != nil {
		return nil, err
	}

	h.logger.InfoContext(ctx, "completion undone",
		logger.UserID(userID),
		logger.ModuleID(ev.ModuleID),
		logger.Points(ev.Points),
	)

	invalidate(ctx, h.cache, h.logger, ledger.PeriodOf(ev.Date))
	return ev, nil
}
