package command

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/modpoints/points-bot/internal/domain/ledger"
	"github.com/modpoints/points-bot/internal/domain/shared"
	"github.com/modpoints/points-bot/pkg/logger"
	"github.com/modpoints/points-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD COMPLETION COMMAND
// Logs completed modules for the current calendar day.
// ══════════════════════════════════════════════════════════════════════════════

// Count limits for /add <name> <count>.
const (
	MinCount = 1
	MaxCount = 50
)

// ErrInvalidCount is returned when the count is outside [MinCount, MaxCount].
var ErrInvalidCount = errors.New("count must be between 1 and 50")

// RecordCompletionCommand contains the data to log completions.
// Exactly one of ModuleID or ModuleName identifies the module.
type RecordCompletionCommand struct {
	UserID     int64
	ModuleID   int64
	ModuleName string

	// Zero means one completion.
	Count int
}

// Validate validates the command.
func (c RecordCompletionCommand) Validate() error {
	if c.UserID == 0 {
		return shared.NewDomainError("command", "RecordCompletion", shared.ErrInvalidID, "user id is required")
	}
	if c.ModuleID == 0 && strings.TrimSpace(c.ModuleName) == "" {
		return shared.NewDomainError("command", "RecordCompletion", shared.ErrEmptyValue, "module is required")
	}
	if c.Count != 0 && (c.Count < MinCount || c.Count > MaxCount) {
		return ErrInvalidCount
	}
	return nil
}

// RecordCompletionResult describes what was logged.
type RecordCompletionResult struct {
	Module ledger.Module
	Count  int
	Date   time.Time

	// Points added by this command (module points × count).
	Points float64
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordCompletionHandler handles RecordCompletionCommand.
type RecordCompletionHandler struct {
	repo   ledger.Repository
	cache  ledger.LeaderboardCache
	locks  *UserLocks
	clock  timeutil.Clock
	logger *slog.Logger
}

// NewRecordCompletionHandler creates a new RecordCompletionHandler.
// cache may be nil.
func NewRecordCompletionHandler(
	repo ledger.Repository,
	cache ledger.LeaderboardCache,
	locks *UserLocks,
	clock timeutil.Clock,
	log *slog.Logger,
) *RecordCompletionHandler {
	if locks == nil {
		locks = NewUserLocks()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &RecordCompletionHandler{
		repo:   repo,
		cache:  cache,
		locks:  locks,
		clock:  clock,
		logger: log.With(logger.Component("record_completion")),
	}
}

// Handle executes the command.
func (h *RecordCompletionHandler) Handle(ctx context.Context, cmd RecordCompletionCommand) (*RecordCompletionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	count := cmd.Count
	if count == 0 {
		count = 1
	}

	module, err := h.resolveModule(ctx, cmd)
	if err != nil {
		return nil, err
	}

	date := ledger.DateOnly(h.clock.Now())

	unlock := h.locks.lock(cmd.UserID)
	err = h.repo.RecordCompletions(ctx, cmd.UserID, module.ID, date, count)
	unlock()
	if err != nil {
		return nil, err
	}

	points := module.Points * float64(count)
	h.logger.InfoContext(ctx, "completion recorded",
		logger.UserID(cmd.UserID),
		logger.ModuleID(module.ID),
		slog.Int("count", count),
		logger.Points(points),
	)

	invalidate(ctx, h.cache, h.logger, ledger.PeriodOf(date))

	return &RecordCompletionResult{
		Module: *module,
		Count:  count,
		Date:   date,
		Points: points,
	}, nil
}

func (h *RecordCompletionHandler) resolveModule(ctx context.Context, cmd RecordCompletionCommand) (*ledger.Module, error) {
	if cmd.ModuleID != 0 {
		return h.repo.GetModule(ctx, cmd.ModuleID)
	}
	return h.repo.FindModuleByName(ctx, strings.TrimSpace(cmd.ModuleName))
}

// invalidate drops cached leaderboards of the period. Cache failures are logged only.
func invalidate(ctx context.Context, cache ledger.LeaderboardCache, log *slog.Logger, period ledger.Period) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx, period); err != nil {
		log.WarnContext(ctx, "leaderboard cache invalidation failed",
			slog.String("period", period.String()),
			logger.Err(err),
		)
	}
}
