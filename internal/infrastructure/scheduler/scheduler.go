// Package scheduler runs the bot's background tasks: the daily reminder and
// the monthly report. Each task polls the wall clock in its own goroutine
// and fires when its trigger matches. Missed ticks are not caught up.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/modpoints/points-bot/pkg/logger"
	"github.com/modpoints/points-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Description returns a human-readable description of the job.
	Description() string

	// Run executes the job.
	// The context is cancelled when the runner is stopping.
	Run(ctx context.Context) (FanoutStats, error)
}

// JobResult contains the result of a job execution.
type JobResult struct {
	RunID       string
	JobName     string
	Manual      bool
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Stats       FanoutStats
	Error       error
}

// Success reports whether the job returned no error.
func (r JobResult) Success() bool { return r.Error == nil }

// ══════════════════════════════════════════════════════════════════════════════
// TASK
// ══════════════════════════════════════════════════════════════════════════════

// State is the lifecycle state of a task loop.
type State string

const (
	StateIdle     State = "idle"
	StateWaiting  State = "waiting"
	StateFiring   State = "firing"
	StateCooldown State = "cooldown"
)

// Task binds a job to its trigger.
type Task struct {
	Job     Job
	Trigger Trigger

	// Pause after a run so the same minute does not fire twice.
	Cooldown time.Duration
}

type taskState struct {
	task      Task
	state     State
	running   bool
	lastRun   *JobResult
	runCount  int64
	failCount int64
}

// TaskStatus is a snapshot of one task for the health endpoint.
type TaskStatus struct {
	Name      string     `json:"name"`
	Trigger   string     `json:"trigger"`
	State     State      `json:"state"`
	RunCount  int64      `json:"run_count"`
	FailCount int64      `json:"fail_count"`
	Running   bool       `json:"running"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// RUNNER
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the Runner.
type Config struct {
	Clock        timeutil.Clock
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Runner polls the clock and executes due tasks.
type Runner struct {
	mu sync.RWMutex

	clock        timeutil.Clock
	pollInterval time.Duration
	logger       *slog.Logger

	tasks  map[string]*taskState
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a new Runner.
func NewRunner(cfg Config) *Runner {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.NewSystemClock(nil)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Runner{
		clock:        cfg.Clock,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger.With(logger.Component("scheduler")),
		tasks:        make(map[string]*taskState),
	}
}

// Register adds a task. Tasks cannot be added while the runner is started.
func (r *Runner) Register(task Task) error {
	if task.Job == nil {
		return ErrNilJob
	}
	if task.Trigger == nil {
		return ErrNilTrigger
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return ErrRunnerAlreadyRunning
	}
	name := task.Job.Name()
	if _, exists := r.tasks[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	r.tasks[name] = &taskState{task: task, state: StateIdle}
	r.logger.Info("task registered",
		logger.Job(name),
		slog.String("description", task.Job.Description()),
		slog.String("trigger", task.Trigger.String()),
	)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// LIFECYCLE
// ─────────────────────────────────────────────────────────────────────────────

// Start launches one loop per task and returns immediately.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return ErrRunnerAlreadyRunning
	}

	ctx, r.cancel = context.WithCancel(ctx)
	for _, ts := range r.tasks {
		ts.state = StateWaiting
		r.wg.Add(1)
		go r.loop(ctx, ts)
	}

	r.logger.Info("scheduler started",
		slog.Int("tasks", len(r.tasks)),
		slog.Duration("poll_interval", r.pollInterval),
	)
	return nil
}

// Stop cancels the loops and waits for them to exit. A job that is
// running finishes its current delivery before the loop notices.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if r.cancel == nil {
		r.mu.Unlock()
		return ErrRunnerNotRunning
	}
	r.cancel()
	r.cancel = nil
	r.mu.Unlock()

	r.wg.Wait()

	r.mu.Lock()
	for _, ts := range r.tasks {
		ts.state = StateIdle
	}
	r.mu.Unlock()

	r.logger.Info("scheduler stopped")
	return nil
}

// IsRunning returns true if the runner is started.
func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cancel != nil
}

// loop is the per-task polling loop: wait, check, fire, cool down.
func (r *Runner) loop(ctx context.Context, ts *taskState) {
	defer r.wg.Done()

	for {
		if !sleep(ctx, r.pollInterval) {
			return
		}

		if !ts.task.Trigger.Due(r.clock.Now()) {
			continue
		}

		r.setState(ts, StateFiring)
		if _, err := r.execute(ctx, ts, false); errors.Is(err, ErrJobRunning) {
			r.logger.WarnContext(ctx, "scheduled run skipped, job already running", logger.Job(ts.task.Job.Name()))
		}

		r.setState(ts, StateCooldown)
		if !sleep(ctx, ts.task.Cooldown) {
			return
		}
		r.setState(ts, StateWaiting)
	}
}

func (r *Runner) setState(ts *taskState, s State) {
	r.mu.Lock()
	ts.state = s
	r.mu.Unlock()
}

// sleep waits for d or ctx cancellation. It returns false when cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// execute runs the job once and records the result. A job never runs twice
// at the same time: a second caller gets ErrJobRunning. Job errors are
// reported in the result and never stop the loop.
func (r *Runner) execute(ctx context.Context, ts *taskState, manual bool) (JobResult, error) {
	name := ts.task.Job.Name()

	r.mu.Lock()
	if ts.running {
		r.mu.Unlock()
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	ts.running = true
	r.mu.Unlock()

	result := JobResult{
		RunID:     uuid.NewString(),
		JobName:   name,
		Manual:    manual,
		StartedAt: r.clock.Now(),
	}
	log := r.logger.With(logger.Job(name), slog.String("run_id", result.RunID))
	log.InfoContext(ctx, "job started", slog.Bool("manual", manual))

	began := time.Now()
	result.Stats, result.Error = ts.task.Job.Run(ctx)
	result.Duration = time.Since(began)
	result.CompletedAt = r.clock.Now()

	r.mu.Lock()
	ts.running = false
	ts.runCount++
	if result.Error != nil {
		ts.failCount++
	}
	res := result
	ts.lastRun = &res
	r.mu.Unlock()

	attrs := []any{
		logger.Latency(result.Duration),
		slog.Int("total", result.Stats.Total),
		slog.Int("sent", result.Stats.Sent),
		slog.Int("skipped", result.Stats.Skipped),
		slog.Int("errors", result.Stats.Errors),
	}
	if result.Error != nil {
		log.ErrorContext(ctx, "job failed", append(attrs, logger.Err(result.Error))...)
	} else {
		log.InfoContext(ctx, "job completed", attrs...)
	}
	return result, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// MANUAL EXECUTION
// ─────────────────────────────────────────────────────────────────────────────

// RunNow immediately executes a job by name, ignoring its trigger. It returns
// ErrJobRunning while the same job is running, scheduled or manual.
func (r *Runner) RunNow(ctx context.Context, name string) (JobResult, error) {
	r.mu.RLock()
	ts, exists := r.tasks[name]
	r.mu.RUnlock()

	if !exists {
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	result, err := r.execute(ctx, ts, true)
	if err != nil {
		return result, err
	}
	return result, result.Error
}

// ─────────────────────────────────────────────────────────────────────────────
// STATUS
// ─────────────────────────────────────────────────────────────────────────────

// Status returns a snapshot of every task, sorted by name.
func (r *Runner) Status() []TaskStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]TaskStatus, 0, len(r.tasks))
	for name, ts := range r.tasks {
		st := TaskStatus{
			Name:      name,
			Trigger:   ts.task.Trigger.String(),
			State:     ts.state,
			RunCount:  ts.runCount,
			FailCount: ts.failCount,
			Running:   ts.running,
		}
		if ts.lastRun != nil {
			started := ts.lastRun.StartedAt
			st.LastRun = &started
			if ts.lastRun.Error != nil {
				st.LastError = ts.lastRun.Error.Error()
			}
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrNilJob               = errors.New("job cannot be nil")
	ErrNilTrigger           = errors.New("trigger cannot be nil")
	ErrJobAlreadyExists     = errors.New("job already exists")
	ErrJobNotFound          = errors.New("job not found")
	ErrJobRunning           = errors.New("job is already running")
	ErrRunnerAlreadyRunning = errors.New("scheduler is already running")
	ErrRunnerNotRunning     = errors.New("scheduler is not running")
)
