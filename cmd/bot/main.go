// Package main — точка входа Telegram-бота учёта баллов за модули.
//
// Порядок запуска: конфигурация → логгер → хранилище (с повторами) →
// миграции и начальные данные → Redis (опционально) → Telegram-клиент →
// планировщик → HTTP health → уведомление админам → long polling.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Application layer
	"github.com/modpoints/points-bot/internal/application/command"
	"github.com/modpoints/points-bot/internal/application/query"
	"github.com/modpoints/points-bot/internal/domain/ledger"

	// Infrastructure layer
	tgclient "github.com/modpoints/points-bot/internal/infrastructure/external/telegram"
	"github.com/modpoints/points-bot/internal/infrastructure/persistence/postgres"
	"github.com/modpoints/points-bot/internal/infrastructure/persistence/redis"
	"github.com/modpoints/points-bot/internal/infrastructure/persistence/sqlite"
	"github.com/modpoints/points-bot/internal/infrastructure/scheduler"
	"github.com/modpoints/points-bot/internal/infrastructure/scheduler/jobs"

	// Interface layer
	httpserver "github.com/modpoints/points-bot/internal/interface/http"
	"github.com/modpoints/points-bot/internal/interface/telegram"
	"github.com/modpoints/points-bot/internal/interface/telegram/handler"
	"github.com/modpoints/points-bot/internal/interface/telegram/middleware"
	"github.com/modpoints/points-bot/internal/interface/telegram/presenter"

	// Packages
	"github.com/modpoints/points-bot/config"
	"github.com/modpoints/points-bot/pkg/circuitbreaker"
	"github.com/modpoints/points-bot/pkg/logger"
	"github.com/modpoints/points-bot/pkg/retry"
	"github.com/modpoints/points-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		AddSource: cfg.IsDevelopment(),
	})
	slog.SetDefault(log)

	log.Info("starting points bot",
		slog.String("env", string(cfg.App.Environment)),
		slog.String("version", cfg.App.Version),
		slog.String("timezone", cfg.App.Timezone),
	)

	clock := timeutil.NewSystemClock(cfg.App.Location)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩЕ, МИГРАЦИИ, НАЧАЛЬНЫЕ ДАННЫЕ
	// ─────────────────────────────────────────────────────────────────────────
	store, err := openStorage(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		log.Info("closing storage")
		store.close()
	}()

	if err := store.repo.SeedModules(ctx, moduleSeeds(cfg.Modules.Seeds)); err != nil {
		return fmt.Errorf("seed modules: %w", err)
	}

	grant := command.NewGrantAdminHandler(store.repo, log)
	if err := grant.SeedAdmins(ctx, cfg.Telegram.AdminIDs); err != nil {
		return fmt.Errorf("seed admins: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		cache      *redis.Cache
		boardCache ledger.LeaderboardCache
		nameStore  tgclient.NameStore
	)
	if cfg.Redis.Enabled() {
		cache, err = connectRedis(ctx, cfg.Redis, log)
		if err != nil {
			log.Warn("redis unavailable, running without cache", logger.Err(err))
		} else {
			defer func() {
				log.Info("closing redis")
				_ = cache.Close()
			}()
			boardCache = redis.NewLeaderboardCache(cache)
			nameStore = redis.NewNameCache(cache)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. TELEGRAM-КЛИЕНТ
	// ─────────────────────────────────────────────────────────────────────────
	clientCfg := tgclient.DefaultClientConfig(cfg.Telegram.Token)
	clientCfg.ParseMode = cfg.Telegram.ParseMode
	clientCfg.PollTimeout = cfg.Telegram.PollingTimeout
	clientCfg.Debug = cfg.Telegram.Debug

	client, err := retry.DoWithData(ctx, func(context.Context) (*tgclient.Client, error) {
		c, err := tgclient.NewClient(clientCfg, log)
		if err != nil && !tgclient.IsRetryable(err) {
			return nil, retry.Permanent(err)
		}
		return c, err
	}, startupRetry(log, "telegram")...)
	if err != nil {
		return fmt.Errorf("telegram client: %w", err)
	}
	log.Info("telegram client ready", slog.String("bot", client.Username()))

	names := tgclient.NewNameResolver(client, nameStore, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	rate := cfg.Points.Rate
	locks := command.NewUserLocks()

	record := command.NewRecordCompletionHandler(store.repo, boardCache, locks, clock, log)
	undo := command.NewUndoLastHandler(store.repo, boardCache, locks, log)
	userStats := query.NewGetUserStatsHandler(store.repo, clock, rate)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	reminder := jobs.NewDailyReminderJob(store.repo, client, cfg.Scheduler.SendDelay, log)
	report := jobs.NewMonthlyReportJob(store.repo, client, names, clock, jobs.MonthlyReportConfig{
		Rate:      rate,
		SendDelay: cfg.Scheduler.SendDelay,
	}, log)

	runner := scheduler.NewRunner(scheduler.Config{
		Clock:        clock,
		PollInterval: cfg.Scheduler.PollInterval,
		Logger:       log,
	})
	tasks := []scheduler.Task{
		{
			Job:      reminder,
			Trigger:  scheduler.DailyAt{Hour: cfg.Scheduler.DailyHour, Minute: cfg.Scheduler.DailyMinute},
			Cooldown: cfg.Scheduler.DailyCooldown,
		},
		{
			Job: report,
			Trigger: scheduler.MonthlyAt{
				Day:    cfg.Scheduler.MonthlyReportDay,
				Hour:   cfg.Scheduler.MonthlyHour,
				Minute: cfg.Scheduler.MonthlyMinute,
			},
			Cooldown: cfg.Scheduler.MonthlyCooldown,
		},
	}
	// Tasks are registered even when the loops are disabled: the admin panel
	// runs them on demand.
	for _, task := range tasks {
		if err := runner.Register(task); err != nil {
			return fmt.Errorf("register %s: %w", task.Job.Name(), err)
		}
	}
	if cfg.Scheduler.Enabled {
		if err := runner.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer func() {
			log.Info("stopping scheduler")
			if err := runner.Stop(); err != nil {
				log.Warn("scheduler stop failed", logger.Err(err))
			}
		}()
	} else {
		log.Info("scheduler disabled")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. TELEGRAM BOT
	// ─────────────────────────────────────────────────────────────────────────
	gate, err := middleware.NewTimeGate(cfg.Gate.StartHour, cfg.Gate.EndHour, cfg.App.Location)
	if err != nil {
		return fmt.Errorf("time gate: %w", err)
	}

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerMinute: cfg.RateLimit.PerMinute,
		BurstSize:         cfg.RateLimit.Burst,
		IdleTTL:           10 * time.Minute,
		Exempt:            cfg.Telegram.AdminIDs,
		Clock:             clock,
	})
	go limiter.Run(ctx)

	admin := handler.NewAdminHandler(handler.AdminDeps{
		Queries:    query.NewAdminQueries(store.repo, clock, rate),
		UserStats:  userStats,
		Grant:      grant,
		Names:      names,
		Jobs:       runner,
		Reminder:   reminder,
		Report:     report,
		Notifier:   client,
		Background: ctx,
	}, log)
	// Manual report runs stop at their next send delay once ctx is cancelled.
	defer admin.Wait()

	router := telegram.NewRouter(telegram.Handlers{
		Start:   handler.NewStartHandler(cfg.Gate.StartHour, cfg.Gate.EndHour),
		Modules: handler.NewModulesHandler(store.repo, record, undo, rate, log),
		Progress: handler.NewProgressHandler(handler.ProgressDeps{
			Points:      query.NewGetPointsHandler(store.repo, clock, rate),
			Stats:       userStats,
			Insight:     query.NewGetInsightHandler(store.repo, clock),
			Leaderboard: query.NewGetLeaderboardHandler(store.repo, boardCache, clock, rate, log),
			Names:       names,
		}, log),
		Admin: admin,
	}, log)

	metrics := middleware.NewMetrics()
	bot, err := telegram.NewBot(telegram.BotConfig{
		MaxConcurrentUpdates:    cfg.Telegram.MaxConcurrentUpdates,
		GracefulShutdownTimeout: cfg.App.ShutdownTimeout,
	}, telegram.BotDependencies{
		Messenger: client,
		Router:    router,
		Gate:      gate,
		Admins:    middleware.NewAdminGuard(cfg, store.repo),
		Limiter:   limiter,
		Recovery:  middleware.NewRecovery(log, metrics),
		Metrics:   metrics,
		Clock:     clock,
		Names:     names,
	}, log)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HTTP HEALTH SERVER
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.HTTP.Addr != "" {
		health := httpserver.NewHealthChecker(3 * time.Second)
		health.AddCheck("storage", store.ping)
		if cache != nil {
			health.AddCheck("redis", cache.Ping)
		}

		httpCfg := httpserver.DefaultConfig()
		httpCfg.Addr = cfg.HTTP.Addr
		deps := httpserver.Dependencies{
			Health:    health,
			Scheduler: runner,
			Metrics:   metrics,
			Schema:    store.schema,
			Logger:    log,
		}
		if cache != nil {
			deps.Cache = cache
		}
		srv := httpserver.NewServer(httpCfg, deps)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("http shutdown failed", logger.Err(err))
			}
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. УВЕДОМЛЕНИЕ АДМИНАМ И ЗАПУСК
	// ─────────────────────────────────────────────────────────────────────────
	notice := presenter.StartupNotice(clock.Now().Format("02.01.2006 15:04:05"), cfg.Scheduler.Enabled)
	for _, id := range cfg.Telegram.AdminIDs {
		if err := client.SendText(ctx, id, notice); err != nil {
			log.Warn("startup notice failed", logger.UserID(id), logger.Err(err))
		}
	}

	log.Info("points bot is running",
		slog.String("bot", client.Username()),
		slog.Bool("scheduler", cfg.Scheduler.Enabled),
		slog.String("http", cfg.HTTP.Addr),
	)

	if err := bot.Run(ctx, client.Updates(ctx)); err != nil {
		return fmt.Errorf("bot: %w", err)
	}

	log.Info("shutdown signal received, stopping")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STORAGE
// ══════════════════════════════════════════════════════════════════════════════

// storage is the ledger backend selected by DATABASE_URL.
type storage struct {
	repo   ledger.Repository
	ping   func(ctx context.Context) error
	schema httpserver.SchemaFunc
	close  func()
}

func openStorage(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*storage, error) {
	switch cfg.Driver() {
	case config.DriverPostgres:
		pgCfg := postgres.DefaultConfig(cfg.URL)
		pgCfg.MaxConns = cfg.MaxConns
		pgCfg.MinConns = cfg.MinConns
		pgCfg.MaxConnLifetime = cfg.ConnMaxLifetime
		pgCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
		pgCfg.ConnectTimeout = cfg.ConnectTimeout

		conn, err := retry.DoWithData(ctx, func(ctx context.Context) (*postgres.Connection, error) {
			return postgres.NewConnection(ctx, pgCfg)
		}, startupRetry(log, "postgres")...)
		if err != nil {
			return nil, err
		}

		migrator := postgres.NewMigrator(conn)
		if err := migrator.Migrate(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("postgres ready")
		return &storage{
			repo:   postgres.NewLedgerRepository(conn),
			ping:   conn.Ping,
			schema: postgresSchema(migrator),
			close:  conn.Close,
		}, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.SQLitePath())
		if err != nil {
			return nil, err
		}
		log.Info("sqlite ready", slog.String("path", cfg.SQLitePath()))
		return &storage{
			repo:   store,
			ping:   store.Ping,
			schema: sqliteSchema(store),
			close:  func() { _ = store.Close() },
		}, nil

	default:
		return nil, errors.New("unsupported DATABASE_URL scheme")
	}
}

func postgresSchema(m *postgres.Migrator) httpserver.SchemaFunc {
	return func(ctx context.Context) ([]httpserver.SchemaMigration, error) {
		migs, err := m.Status(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]httpserver.SchemaMigration, len(migs))
		for i, mig := range migs {
			out[i] = httpserver.SchemaMigration{Name: mig.FullName(), Applied: mig.IsApplied}
			if mig.IsApplied {
				at := mig.AppliedAt
				out[i].AppliedAt = &at
			}
		}
		return out, nil
	}
}

func sqliteSchema(s *sqlite.Store) httpserver.SchemaFunc {
	return func(ctx context.Context) ([]httpserver.SchemaMigration, error) {
		migs, err := s.Migrations(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]httpserver.SchemaMigration, len(migs))
		for i, mig := range migs {
			out[i] = httpserver.SchemaMigration{Name: mig.Name, Applied: mig.Applied}
			if mig.Applied {
				at := mig.AppliedAt
				out[i].AppliedAt = &at
			}
		}
		return out, nil
	}
}

func moduleSeeds(defs []config.ModuleDef) []ledger.ModuleSeed {
	seeds := make([]ledger.ModuleSeed, len(defs))
	for i, d := range defs {
		seeds[i] = ledger.ModuleSeed{Name: d.Name, Points: d.Points}
	}
	return seeds
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *slog.Logger) (*redis.Cache, error) {
	rc := redis.DefaultConfig(cfg.URL)
	rc.PoolSize = cfg.PoolSize
	rc.DialTimeout = cfg.DialTimeout
	rc.ReadTimeout = cfg.ReadTimeout
	rc.WriteTimeout = cfg.WriteTimeout
	rc.LeaderboardTTL = cfg.LeaderboardTTL
	rc.NameTTL = cfg.NameTTL
	rc.OnBreakerChange = func(name string, from, to circuitbreaker.State) {
		log.Warn("cache circuit changed",
			slog.String("breaker", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	}

	cache, err := redis.NewCache(ctx, rc)
	if err != nil {
		return nil, err
	}
	log.Info("redis connected")
	return cache, nil
}

func startupRetry(log *slog.Logger, target string) []retry.Option {
	return append(retry.StartupOptions(), retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		log.Warn("startup connection failed, retrying",
			slog.String("target", target),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			logger.Err(err),
		)
	}))
}
