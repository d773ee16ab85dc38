package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/modpoints/points-bot/internal/domain/ledger"
	"github.com/modpoints/points-bot/internal/infrastructure/scheduler"
	"github.com/modpoints/points-bot/pkg/logger"
	"github.com/modpoints/points-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MONTHLY REPORT JOB
// ══════════════════════════════════════════════════════════════════════════════

// MonthlyReportConfig contains configuration for the monthly report job.
type MonthlyReportConfig struct {
	Rate      float64
	SendDelay time.Duration
}

// MonthlyReportJob stores the previous month's summary of every active user
// and sends them a report.
type MonthlyReportJob struct {
	repo   ledger.Repository
	sender Sender
	names  NameResolver
	clock  timeutil.Clock
	config MonthlyReportConfig
	logger *slog.Logger
}

// NewMonthlyReportJob creates the job.
func NewMonthlyReportJob(
	repo ledger.Repository,
	sender Sender,
	names NameResolver,
	clock timeutil.Clock,
	config MonthlyReportConfig,
	log *slog.Logger,
) *MonthlyReportJob {
	if log == nil {
		log = logger.Discard()
	}
	return &MonthlyReportJob{
		repo:   repo,
		sender: sender,
		names:  names,
		clock:  clock,
		config: config,
		logger: log.With(logger.Job(MonthlyReportName)),
	}
}

var _ scheduler.Job = (*MonthlyReportJob)(nil)

// Name returns the job name.
func (j *MonthlyReportJob) Name() string { return MonthlyReportName }

// Description returns the job description.
func (j *MonthlyReportJob) Description() string {
	return "Saves monthly summaries and sends reports for the previous month"
}

// Run reports the month before the current one. Users without points are
// skipped. The summary is stored before the delivery is attempted, and a
// failed store skips the delivery.
func (j *MonthlyReportJob) Run(ctx context.Context) (scheduler.FanoutStats, error) {
	period := ledger.PeriodOf(j.clock.Now()).Previous()

	users, err := j.repo.DistinctActiveUsers(ctx)
	if err != nil {
		return scheduler.FanoutStats{}, err
	}

	j.logger.InfoContext(ctx, "monthly report started",
		slog.String("period", period.String()),
		slog.Int("users", len(users)),
	)

	return scheduler.Fanout(ctx, users, j.config.SendDelay, j.logger, func(ctx context.Context, userID int64) (bool, error) {
		return j.reportUser(ctx, userID, period)
	})
}

func (j *MonthlyReportJob) reportUser(ctx context.Context, userID int64, period ledger.Period) (bool, error) {
	points, err := j.repo.MonthlyTotal(ctx, userID, period)
	if err != nil {
		return false, err
	}
	if points == 0 {
		return false, nil
	}

	err = j.repo.UpsertMonthlySummary(ctx, ledger.MonthlySummary{
		UserID:      userID,
		Year:        period.Year,
		Month:       period.Month,
		TotalPoints: points,
	})
	if err != nil {
		return false, fmt.Errorf("save summary: %w", err)
	}

	report, err := j.buildReport(ctx, userID, period, points)
	if err != nil {
		return false, err
	}
	if err := j.sender.SendText(ctx, userID, ReportText(report)); err != nil {
		return false, deliveryError(err)
	}
	return true, nil
}

func (j *MonthlyReportJob) buildReport(ctx context.Context, userID int64, period ledger.Period, points float64) (Report, error) {
	daily, err := j.repo.DailyBreakdown(ctx, userID, period)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Name:       j.names.DisplayName(ctx, userID),
		Period:     period,
		Points:     points,
		Money:      ledger.ToMoney(points, j.config.Rate),
		ActiveDays: daily.ActiveDays(),
	}, nil
}

// SendTest sends a report over the current month to one user. Nothing is stored.
func (j *MonthlyReportJob) SendTest(ctx context.Context, userID int64) error {
	period := ledger.PeriodOf(j.clock.Now())

	points, err := j.repo.MonthlyTotal(ctx, userID, period)
	if err != nil {
		return err
	}
	if points == 0 {
		return j.sender.SendText(ctx, userID, NoActivityTestReportText)
	}

	report, err := j.buildReport(ctx, userID, period, points)
	if err != nil {
		return err
	}
	if err := j.sender.SendText(ctx, userID, TestReportText(report)); err != nil {
		return err
	}
	j.logger.InfoContext(ctx, "test report sent", logger.UserID(userID))
	return nil
}
