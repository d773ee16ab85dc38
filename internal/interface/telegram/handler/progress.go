package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modpoints/points-bot/internal/application/query"
	"github.com/modpoints/points-bot/internal/infrastructure/chart"
	"github.com/modpoints/points-bot/internal/interface/telegram/presenter"
	"github.com/modpoints/points-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS HANDLER
// /points, /graph, /insight and /leaderboard. Read-only, allowed at any hour.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressHandler answers the read-only progress commands.
type ProgressHandler struct {
	points      *query.GetPointsHandler
	stats       *query.GetUserStatsHandler
	insight     *query.GetInsightHandler
	leaderboard *query.GetLeaderboardHandler
	names       NameResolver
	logger      *slog.Logger
}

// ProgressDeps groups the queries behind ProgressHandler.
type ProgressDeps struct {
	Points      *query.GetPointsHandler
	Stats       *query.GetUserStatsHandler
	Insight     *query.GetInsightHandler
	Leaderboard *query.GetLeaderboardHandler
	Names       NameResolver
}

// NewProgressHandler creates a new ProgressHandler.
func NewProgressHandler(deps ProgressDeps, log *slog.Logger) *ProgressHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &ProgressHandler{
		points:      deps.Points,
		stats:       deps.Stats,
		insight:     deps.Insight,
		leaderboard: deps.Leaderboard,
		names:       deps.Names,
		logger:      log.With(logger.Component("progress_handler")),
	}
}

// Points handles /points.
func (h *ProgressHandler) Points(ctx context.Context, req Request) (*Response, error) {
	res, err := h.points.Handle(ctx, req.UserID)
	if err != nil {
		h.logger.ErrorContext(ctx, "points query failed", logger.UserID(req.UserID), logger.Err(err))
		return Reply(presenter.PointsError), nil
	}
	return Reply(presenter.MonthlyPoints(res)), nil
}

// Graph handles /graph: a bar chart of this month's daily points.
func (h *ProgressHandler) Graph(ctx context.Context, req Request) (*Response, error) {
	stats, err := h.stats.Handle(ctx, req.UserID)
	if err != nil {
		h.logger.ErrorContext(ctx, "stats query failed", logger.UserID(req.UserID), logger.Err(err))
		return Reply(presenter.GraphError), nil
	}
	if len(stats.Daily) == 0 {
		return Reply(presenter.GraphEmpty), nil
	}

	png, err := chart.RenderDailyBars(chart.DailySeries{
		Title:  presenter.GraphTitle(stats.Period),
		XLabel: "День месяца",
		YLabel: "Баллы",
		Days:   stats.Period.DaysIn(),
		Values: stats.Daily,
		Stats:  presenter.GraphStats(stats.Daily),
		Format: presenter.Points,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "render graph failed", logger.UserID(req.UserID), logger.Err(err))
		return Reply(presenter.GraphError), nil
	}

	return &Response{
		Text:      presenter.GraphCaption(req.Name, stats.Period),
		Photo:     png,
		PhotoName: fmt.Sprintf("progress_%d_%d_%02d.png", req.UserID, stats.Period.Year, stats.Period.Month),
	}, nil
}

// Insight handles /insight.
func (h *ProgressHandler) Insight(ctx context.Context, req Request) (*Response, error) {
	res, err := h.insight.Handle(ctx, req.UserID)
	if err != nil {
		h.logger.ErrorContext(ctx, "insight query failed", logger.UserID(req.UserID), logger.Err(err))
		return Reply(presenter.InsightError), nil
	}
	return Reply(presenter.Insight(req.Name, res)), nil
}

// Leaderboard handles /leaderboard.
func (h *ProgressHandler) Leaderboard(ctx context.Context, req Request) (*Response, error) {
	res, err := h.leaderboard.Handle(ctx, query.DefaultLeaderboardLimit)
	if err != nil {
		h.logger.ErrorContext(ctx, "leaderboard query failed", logger.Err(err))
		return Reply(presenter.LeaderboardError), nil
	}

	ids := make([]int64, len(res.Entries))
	for i, e := range res.Entries {
		ids[i] = e.UserID
	}
	return Reply(presenter.Leaderboard(res, resolveNames(ctx, h.names, ids))), nil
}
