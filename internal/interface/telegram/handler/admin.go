package handler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/modpoints/points-bot/internal/application/command"
	"github.com/modpoints/points-bot/internal/application/query"
	"github.com/modpoints/points-bot/internal/infrastructure/scheduler"
	"github.com/modpoints/points-bot/internal/infrastructure/scheduler/jobs"
	"github.com/modpoints/points-bot/internal/interface/telegram/presenter"
	"github.com/modpoints/points-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN HANDLER
// Admin panel, statistics, manual reports and test deliveries.
// Authorization is checked by the router before any method here runs.
// ══════════════════════════════════════════════════════════════════════════════

// JobRunner runs a registered scheduler job on demand.
type JobRunner interface {
	RunNow(ctx context.Context, name string) (scheduler.JobResult, error)
}

// Notifier sends a plain message to a chat.
type Notifier interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// AdminDeps groups the collaborators of AdminHandler.
type AdminDeps struct {
	Queries   *query.AdminQueries
	UserStats *query.GetUserStatsHandler
	Grant     *command.GrantAdminHandler
	Names     NameResolver
	Jobs      JobRunner
	Reminder  TestSender
	Report    TestSender

	// Notifier delivers the result of a background report run.
	Notifier Notifier

	// Background is the context of background runs; cancelling it stops a
	// report at its next inter-send delay. Defaults to context.Background().
	Background context.Context
}

// AdminHandler handles admin commands and callbacks.
type AdminHandler struct {
	queries   *query.AdminQueries
	userStats *query.GetUserStatsHandler
	grant     *command.GrantAdminHandler
	names     NameResolver
	jobs      JobRunner
	reminder  TestSender
	report    TestSender
	notifier  Notifier
	bg        context.Context
	logger    *slog.Logger

	wg sync.WaitGroup
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(deps AdminDeps, log *slog.Logger) *AdminHandler {
	if log == nil {
		log = logger.Discard()
	}
	if deps.Background == nil {
		deps.Background = context.Background()
	}
	return &AdminHandler{
		queries:   deps.Queries,
		userStats: deps.UserStats,
		grant:     deps.Grant,
		names:     deps.Names,
		jobs:      deps.Jobs,
		reminder:  deps.Reminder,
		report:    deps.Report,
		notifier:  deps.Notifier,
		bg:        deps.Background,
		logger:    log.With(logger.Component("admin_handler")),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Commands
// ─────────────────────────────────────────────────────────────────────────────

// Panel handles /admin.
func (h *AdminHandler) Panel(_ context.Context, _ Request) (*Response, error) {
	return ReplyWithKeyboard(presenter.AdminPanel, presenter.AdminPanelKeyboard()), nil
}

// User handles /admin_user <id>.
func (h *AdminHandler) User(ctx context.Context, req Request) (*Response, error) {
	if normalizeArgs(req.Args) == "" {
		return Reply(presenter.AdminUserUsage), nil
	}
	target, ok := ParseUserID(req.Args)
	if !ok {
		return Reply(presenter.BadUserID), nil
	}

	stats, err := h.userStats.Handle(ctx, target)
	if err != nil {
		h.logger.ErrorContext(ctx, "user stats failed", logger.UserID(target), logger.Err(err))
		return Reply(presenter.AdminUserError), nil
	}
	return Reply(presenter.AdminUser(h.names.DisplayName(ctx, target), stats)), nil
}

// Grant handles /admin_add <id>.
func (h *AdminHandler) Grant(ctx context.Context, req Request) (*Response, error) {
	if normalizeArgs(req.Args) == "" {
		return Reply(presenter.AdminAddUsage), nil
	}
	target, ok := ParseUserID(req.Args)
	if !ok {
		return Reply(presenter.BadUserID), nil
	}

	if err := h.grant.Handle(ctx, req.UserID, target); err != nil {
		h.logger.ErrorContext(ctx, "grant admin failed", logger.UserID(target), logger.Err(err))
		return Reply(presenter.AdminAddError), nil
	}
	return Reply(presenter.AdminGranted(target)), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Callbacks
// ─────────────────────────────────────────────────────────────────────────────

// Users handles admin_users.
func (h *AdminHandler) Users(ctx context.Context, _ Request) (*Response, error) {
	list, err := h.queries.ListUsers(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "list users failed", logger.Err(err))
		return AlertOnly(presenter.AdminUsersError), nil
	}
	if list.Total == 0 {
		return EditMessage(presenter.NoUsers, presenter.BackKeyboard(presenter.CallbackAdminBack)), nil
	}

	ids := make([]int64, len(list.Users))
	for i, u := range list.Users {
		ids[i] = u.UserID
	}
	text := presenter.AdminUsers(list, resolveNames(ctx, h.names, ids))
	return EditMessage(text, presenter.BackKeyboard(presenter.CallbackAdminBack)), nil
}

// Stats handles admin_stats.
func (h *AdminHandler) Stats(ctx context.Context, _ Request) (*Response, error) {
	stats, err := h.queries.SystemStats(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "system stats failed", logger.Err(err))
		return AlertOnly(presenter.AdminStatsError), nil
	}
	return EditMessage(presenter.AdminStats(stats), presenter.BackKeyboard(presenter.CallbackAdminBack)), nil
}

// Reports handles admin_reports: the monthly report job, run now. The
// callback is answered at once; the fan-out runs in the background and its
// summary arrives as a new message.
func (h *AdminHandler) Reports(_ context.Context, req Request) (*Response, error) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runReports(h.bg, req)
	}()

	resp := EditMessage(presenter.ReportsStarted, presenter.BackKeyboard(presenter.CallbackAdminBack))
	resp.Answer = presenter.ReportsStartedAlert
	return resp, nil
}

func (h *AdminHandler) runReports(ctx context.Context, req Request) {
	log := h.logger.With(slog.Int64("requested_by", req.UserID))

	var text string
	res, err := h.jobs.RunNow(ctx, jobs.MonthlyReportName)
	switch {
	case errors.Is(err, scheduler.ErrJobRunning):
		log.InfoContext(ctx, "manual monthly report rejected, already running")
		text = presenter.ReportsRunning
	case err != nil:
		log.ErrorContext(ctx, "manual monthly report failed", logger.Err(err))
		text = presenter.AdminReportsError
	default:
		text = presenter.ReportsSent(res.Stats.Sent, res.Stats.Skipped, res.Stats.Errors)
	}

	if h.notifier == nil {
		return
	}
	if err := h.notifier.SendText(ctx, req.ChatID, text); err != nil {
		log.WarnContext(ctx, "report summary not delivered", logger.Err(err))
	}
}

// Wait blocks until background report runs have finished.
func (h *AdminHandler) Wait() {
	h.wg.Wait()
}

// Manage handles admin_manage.
func (h *AdminHandler) Manage(_ context.Context, _ Request) (*Response, error) {
	return EditMessage(presenter.AdminManage, presenter.AdminManageKeyboard()), nil
}

// Modules handles admin_modules.
func (h *AdminHandler) Modules(ctx context.Context, _ Request) (*Response, error) {
	modules, err := h.queries.ListModules(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "list modules failed", logger.Err(err))
		return AlertOnly(presenter.AdminModulesError), nil
	}
	return EditMessage(presenter.AdminModules(modules), presenter.BackKeyboard(presenter.CallbackAdminManage)), nil
}

// Back handles admin_back.
func (h *AdminHandler) Back(_ context.Context, _ Request) (*Response, error) {
	return EditMessage(presenter.AdminPanel, presenter.AdminPanelKeyboard()), nil
}

// AddPrompt handles admin_add_admin by explaining /admin_add.
func (h *AdminHandler) AddPrompt(_ context.Context, _ Request) (*Response, error) {
	return EditMessage(presenter.AdminAddUsage, presenter.BackKeyboard(presenter.CallbackAdminManage)), nil
}

// TestReminder handles admin_test_reminder: the reminder text sent to the admin.
func (h *AdminHandler) TestReminder(ctx context.Context, req Request) (*Response, error) {
	return h.testDelivery(ctx, req, jobs.DailyReminderName, h.reminder)
}

// TestReport handles admin_test_report: a current month report sent to the admin.
func (h *AdminHandler) TestReport(ctx context.Context, req Request) (*Response, error) {
	return h.testDelivery(ctx, req, jobs.MonthlyReportName, h.report)
}

func (h *AdminHandler) testDelivery(ctx context.Context, req Request, job string, sender TestSender) (*Response, error) {
	if err := sender.SendTest(ctx, req.UserID); err != nil {
		h.logger.ErrorContext(ctx, "test delivery failed",
			logger.Job(job), logger.UserID(req.UserID), logger.Err(err))
		return AlertOnly(presenter.TestDeliveryFailed), nil
	}
	return AnswerOnly(presenter.TestDeliverySent), nil
}
