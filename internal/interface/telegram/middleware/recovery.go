package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/modpoints/points-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOVERY
// Catches panics in handlers and converts them to a logged error plus a
// user-facing message. The update loop must outlive any single handler.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultPanicMessage is sent to the user after a recovered panic.
const DefaultPanicMessage = "😔 Что-то пошло не так.\n\nПопробуй ещё раз через несколько минут."

// PanicError wraps a recovered panic value.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Recovery runs handlers and turns panics into *PanicError.
type Recovery struct {
	logger      *slog.Logger
	metrics     *Metrics
	UserMessage string
}

// NewRecovery creates the middleware. metrics may be nil.
func NewRecovery(log *slog.Logger, metrics *Metrics) *Recovery {
	if log == nil {
		log = logger.Discard()
	}
	return &Recovery{
		logger:      log.With(logger.Component("recovery")),
		metrics:     metrics,
		UserMessage: DefaultPanicMessage,
	}
}

// Run calls fn. A panic is logged with its stack and returned as *PanicError.
func (r *Recovery) Run(ctx context.Context, userID int64, action string, fn func() error) (err error) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		perr := &PanicError{Value: v, Stack: string(debug.Stack())}
		if r.metrics != nil {
			r.metrics.Panicked()
		}
		r.logger.ErrorContext(ctx, "panic recovered",
			logger.UserID(userID),
			slog.String("action", action),
			slog.Any("panic", v),
			slog.String("stack", perr.Stack),
		)
		err = perr
	}()

	return fn()
}
