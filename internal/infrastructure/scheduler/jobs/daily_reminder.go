package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/modpoints/points-bot/internal/domain/ledger"
	"github.com/modpoints/points-bot/internal/infrastructure/scheduler"
	"github.com/modpoints/points-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY REMINDER JOB
// ══════════════════════════════════════════════════════════════════════════════

// DailyReminderJob reminds every active user to log modules.
type DailyReminderJob struct {
	repo      ledger.Repository
	sender    Sender
	sendDelay time.Duration
	logger    *slog.Logger
}

// NewDailyReminderJob creates the job.
func NewDailyReminderJob(repo ledger.Repository, sender Sender, sendDelay time.Duration, log *slog.Logger) *DailyReminderJob {
	if log == nil {
		log = logger.Discard()
	}
	return &DailyReminderJob{
		repo:      repo,
		sender:    sender,
		sendDelay: sendDelay,
		logger:    log.With(logger.Job(DailyReminderName)),
	}
}

var _ scheduler.Job = (*DailyReminderJob)(nil)

// Name returns the job name.
func (j *DailyReminderJob) Name() string { return DailyReminderName }

// Description returns the job description.
func (j *DailyReminderJob) Description() string {
	return "Reminds active users to log completed modules"
}

// Run sends the reminder to every user with at least one completion.
func (j *DailyReminderJob) Run(ctx context.Context) (scheduler.FanoutStats, error) {
	users, err := j.repo.DistinctActiveUsers(ctx)
	if err != nil {
		return scheduler.FanoutStats{}, err
	}

	text := ReminderText()
	return scheduler.Fanout(ctx, users, j.sendDelay, j.logger, func(ctx context.Context, userID int64) (bool, error) {
		if err := j.sender.SendText(ctx, userID, text); err != nil {
			return false, deliveryError(err)
		}
		return true, nil
	})
}

// SendTest sends the test reminder to one user.
func (j *DailyReminderJob) SendTest(ctx context.Context, userID int64) error {
	if err := j.sender.SendText(ctx, userID, TestReminderText()); err != nil {
		return err
	}
	j.logger.InfoContext(ctx, "test reminder sent", logger.UserID(userID))
	return nil
}
