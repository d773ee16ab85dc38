// Package telegram implements the Telegram interface of the points bot.
// This package is the entry point for all Telegram interactions: it parses
// updates into actions, runs them through the middleware chain, routes them
// to handlers and renders the responses.
package telegram

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/modpoints/points-bot/internal/interface/telegram/handler"
	"github.com/modpoints/points-bot/internal/interface/telegram/middleware"
	"github.com/modpoints/points-bot/internal/interface/telegram/presenter"
	"github.com/modpoints/points-bot/pkg/logger"
	"github.com/modpoints/points-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// BotConfig contains configuration for the Telegram bot.
type BotConfig struct {
	// MaxConcurrentUpdates limits concurrent update processing.
	MaxConcurrentUpdates int

	// GracefulShutdownTimeout bounds the wait for in-flight updates.
	GracefulShutdownTimeout time.Duration
}

// DefaultBotConfig returns defaults.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		MaxConcurrentUpdates:    32,
		GracefulShutdownTimeout: 10 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATORS
// ══════════════════════════════════════════════════════════════════════════════

// Messenger is the part of the Telegram client the bot renders through.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendWithKeyboard(ctx context.Context, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error
	EditText(ctx context.Context, chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error
	SendPhoto(ctx context.Context, chatID int64, png []byte, filename, caption string) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}

// NameRecorder remembers the display name seen on an update.
type NameRecorder interface {
	Remember(ctx context.Context, userID int64, firstName, username string)
}

// BotDependencies contains all dependencies of the bot.
type BotDependencies struct {
	Messenger Messenger
	Router    *Router
	Gate      *middleware.TimeGate
	Admins    *middleware.AdminGuard
	Limiter   *middleware.RateLimiter
	Recovery  *middleware.Recovery
	Metrics   *middleware.Metrics
	Clock     timeutil.Clock

	// Names may be nil.
	Names NameRecorder
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// ══════════════════════════════════════════════════════════════════════════════

// Bot consumes updates and drives them through the middleware chain:
// rate limit → time gate → admin check → recovery → handler → render.
type Bot struct {
	config BotConfig
	deps   BotDependencies
	logger *slog.Logger

	updateSem chan struct{}
	wg        sync.WaitGroup
}

// NewBot creates a new bot.
func NewBot(config BotConfig, deps BotDependencies, log *slog.Logger) (*Bot, error) {
	if deps.Messenger == nil || deps.Router == nil || deps.Gate == nil || deps.Admins == nil {
		return nil, errors.New("telegram bot: messenger, router, gate and admin guard are required")
	}
	if log == nil {
		log = logger.Discard()
	}
	if config.MaxConcurrentUpdates <= 0 {
		config.MaxConcurrentUpdates = 1
	}
	if deps.Limiter == nil {
		deps.Limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{})
	}
	if deps.Metrics == nil {
		deps.Metrics = middleware.NewMetrics()
	}
	if deps.Recovery == nil {
		deps.Recovery = middleware.NewRecovery(log, deps.Metrics)
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.NewSystemClock(deps.Gate.Location)
	}

	return &Bot{
		config:    config,
		deps:      deps,
		logger:    log.With(logger.Component("telegram_bot")),
		updateSem: make(chan struct{}, config.MaxConcurrentUpdates),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE MANAGEMENT
// ══════════════════════════════════════════════════════════════════════════════

// Run consumes updates until ctx is cancelled or the channel closes, then
// waits for in-flight handlers up to GracefulShutdownTimeout.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	b.logger.InfoContext(ctx, "update loop started")

	for {
		select {
		case <-ctx.Done():
			b.drain()
			return nil
		case u, ok := <-updates:
			if !ok {
				b.drain()
				return nil
			}
			select {
			case b.updateSem <- struct{}{}:
			case <-ctx.Done():
				b.drain()
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer func() {
					<-b.updateSem
					b.wg.Done()
				}()
				// In-flight updates finish even when polling stops.
				b.HandleUpdate(context.WithoutCancel(ctx), u)
			}()
		}
	}
}

func (b *Bot) drain() {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	timeout := b.config.GracefulShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case <-done:
		b.logger.Info("all handlers completed gracefully")
	case <-time.After(timeout):
		b.logger.Warn("graceful shutdown timeout exceeded")
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE HANDLING
// ══════════════════════════════════════════════════════════════════════════════

// HandleUpdate processes a single update synchronously.
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	a, ok := ParseUpdate(u)
	if !ok {
		return
	}

	log := b.logger.With(
		logger.RequestID(uuid.NewString()),
		logger.UserID(a.UserID),
		slog.String("action", a.Kind.String()),
	)
	ctx = logger.WithContext(ctx, log)

	if b.deps.Names != nil {
		b.deps.Names.Remember(ctx, a.UserID, a.FirstName, a.Username)
	}

	start := time.Now()
	resp, err := b.process(ctx, a)
	if err != nil {
		log.ErrorContext(ctx, "update failed", logger.Err(err))
	}
	b.deps.Metrics.Observe(a.Kind.String(), time.Since(start), err)

	if resp != nil {
		if rerr := b.render(ctx, a, resp); rerr != nil {
			log.WarnContext(ctx, "render failed", logger.Err(rerr))
		}
	}
	log.DebugContext(ctx, "update handled", logger.Latency(time.Since(start)))
}

// process runs the middleware chain and the handler. It always returns a
// response to render, even when err is non-nil.
func (b *Bot) process(ctx context.Context, a Action) (*handler.Response, error) {
	if rl := b.deps.Limiter.Check(a.UserID); !rl.Allowed {
		b.deps.Metrics.RateLimited()
		return b.reject(a, presenter.RateLimited(rl.RetryAfter), presenter.RateLimited(rl.RetryAfter)), nil
	}

	if d := b.deps.Gate.Check(Category(a.Kind), b.deps.Clock.Now()); !d.Allowed {
		b.deps.Metrics.GateRejected()
		g := b.deps.Gate
		return b.reject(a,
			presenter.GateDenied(g.StartHour, g.EndHour, d.NowText()),
			presenter.GateDeniedAlert(g.StartHour, g.EndHour),
		), nil
	}

	if RequiresAdmin(a.Kind) {
		ok, err := b.deps.Admins.IsAdmin(ctx, a.UserID)
		if err != nil {
			return b.reject(a, presenter.GenericError, presenter.GenericError), err
		}
		if !ok {
			return b.reject(a, presenter.NotAdmin, presenter.NotAdminAlert), nil
		}
	}

	var resp *handler.Response
	err := b.deps.Recovery.Run(ctx, a.UserID, a.Kind.String(), func() error {
		var herr error
		resp, herr = b.deps.Router.Route(ctx, a)
		return herr
	})

	var perr *middleware.PanicError
	switch {
	case errors.As(err, &perr):
		return b.reject(a, b.deps.Recovery.UserMessage, presenter.GenericError), err
	case err != nil:
		return b.reject(a, presenter.GenericError, presenter.GenericError), err
	case resp == nil:
		return handler.AnswerOnly(""), nil
	}
	return resp, nil
}

// reject builds a refusal: a message for commands, an alert for callbacks.
func (b *Bot) reject(a Action, message, alert string) *handler.Response {
	if a.IsCallback() {
		return handler.AlertOnly(alert)
	}
	return handler.Reply(message)
}

// ─────────────────────────────────────────────────────────────────────────────
// Rendering
// ─────────────────────────────────────────────────────────────────────────────

func (b *Bot) render(ctx context.Context, a Action, resp *handler.Response) error {
	m := b.deps.Messenger
	kb := convertKeyboard(resp.Keyboard)

	var err error
	switch {
	case len(resp.Photo) > 0:
		err = m.SendPhoto(ctx, a.ChatID, resp.Photo, resp.PhotoName, resp.Text)
	case resp.Text == "":
	case resp.Edit && a.IsCallback() && a.MessageID != 0:
		err = m.EditText(ctx, a.ChatID, a.MessageID, resp.Text, kb)
	case kb != nil:
		err = m.SendWithKeyboard(ctx, a.ChatID, resp.Text, kb)
	default:
		err = m.SendText(ctx, a.ChatID, resp.Text)
	}

	if a.IsCallback() {
		if aerr := m.AnswerCallback(ctx, a.CallbackID, resp.Answer, resp.Alert); aerr != nil && err == nil {
			err = aerr
		}
	}
	return err
}

// Metrics returns the bot's metrics collector.
func (b *Bot) Metrics() *middleware.Metrics {
	return b.deps.Metrics
}
