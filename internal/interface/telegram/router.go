package telegram

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	tgclient "github.com/modpoints/points-bot/internal/infrastructure/external/telegram"
	"github.com/modpoints/points-bot/internal/interface/telegram/handler"
	"github.com/modpoints/points-bot/internal/interface/telegram/presenter"
	"github.com/modpoints/points-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER
// Maps each ActionKind to one handler function. Unknown commands get a hint,
// unknown callbacks a silent answer.
// ══════════════════════════════════════════════════════════════════════════════

// HandlerFunc handles one parsed action.
type HandlerFunc func(ctx context.Context, req handler.Request) (*handler.Response, error)

// Handlers groups the handlers the router dispatches to.
type Handlers struct {
	Start    *handler.StartHandler
	Modules  *handler.ModulesHandler
	Progress *handler.ProgressHandler
	Admin    *handler.AdminHandler
}

// Router routes actions to handlers.
type Router struct {
	routes map[ActionKind]HandlerFunc
	logger *slog.Logger
}

// NewRouter creates a router with every action of the bot registered.
func NewRouter(h Handlers, log *slog.Logger) *Router {
	if log == nil {
		log = logger.Discard()
	}
	r := &Router{
		routes: make(map[ActionKind]HandlerFunc),
		logger: log.With(logger.Component("router")),
	}

	r.Register(ActionStart, h.Start.Handle)
	r.Register(ActionHelp, h.Start.Handle)

	r.Register(ActionModules, h.Modules.List)
	r.Register(ActionAdd, h.Modules.Add)
	r.Register(ActionSelectModule, h.Modules.Select)
	r.Register(ActionUndoLast, h.Modules.Undo)
	r.Register(ActionModulesPage, h.Modules.Page)
	r.Register(ActionNoop, noop)

	r.Register(ActionPoints, h.Progress.Points)
	r.Register(ActionGraph, h.Progress.Graph)
	r.Register(ActionInsight, h.Progress.Insight)
	r.Register(ActionLeaderboard, h.Progress.Leaderboard)

	r.Register(ActionAdmin, h.Admin.Panel)
	r.Register(ActionAdminUser, h.Admin.User)
	r.Register(ActionAdminAdd, h.Admin.Grant)
	r.Register(ActionAdminUsers, h.Admin.Users)
	r.Register(ActionAdminStats, h.Admin.Stats)
	r.Register(ActionAdminReports, h.Admin.Reports)
	r.Register(ActionAdminManage, h.Admin.Manage)
	r.Register(ActionAdminModules, h.Admin.Modules)
	r.Register(ActionAdminBack, h.Admin.Back)
	r.Register(ActionAdminAddPrompt, h.Admin.AddPrompt)
	r.Register(ActionAdminTestReminder, h.Admin.TestReminder)
	r.Register(ActionAdminTestReport, h.Admin.TestReport)

	return r
}

// Register binds fn to kind, replacing any previous handler.
func (r *Router) Register(kind ActionKind, fn HandlerFunc) {
	r.routes[kind] = fn
}

// Route runs the handler registered for a.Kind.
func (r *Router) Route(ctx context.Context, a Action) (*handler.Response, error) {
	fn, ok := r.routes[a.Kind]
	if !ok {
		r.logger.DebugContext(ctx, "no route", slog.String("action", a.Kind.String()))
		if a.IsCallback() {
			return handler.AnswerOnly(""), nil
		}
		return handler.Reply(presenter.UnknownCommandReply), nil
	}
	return fn(ctx, requestFrom(a))
}

func requestFrom(a Action) handler.Request {
	return handler.Request{
		UserID:   a.UserID,
		ChatID:   a.ChatID,
		Name:     tgclient.DisplayName(a.FirstName, a.Username, a.UserID),
		Args:     a.Args,
		ModuleID: a.ModuleID,
		Page:     a.Page,
	}
}

func noop(context.Context, handler.Request) (*handler.Response, error) {
	return handler.AnswerOnly(""), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Keyboard conversion
// ─────────────────────────────────────────────────────────────────────────────

// convertKeyboard converts presenter.InlineKeyboard to the Bot API markup.
func convertKeyboard(kb *presenter.InlineKeyboard) *tgbotapi.InlineKeyboardMarkup {
	if kb == nil || len(kb.Rows) == 0 {
		return nil
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, len(kb.Rows))
	for i, row := range kb.Rows {
		rows[i] = make([]tgbotapi.InlineKeyboardButton, len(row))
		for j, btn := range row {
			rows[i][j] = tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.CallbackData)
		}
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}
