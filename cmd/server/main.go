package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/clock"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/database"
	"github.com/stemsi/exstem-cbt/internal/events"
	"github.com/stemsi/exstem-cbt/internal/handler"
	"github.com/stemsi/exstem-cbt/internal/logger"
	"github.com/stemsi/exstem-cbt/internal/metrics"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"github.com/stemsi/exstem-cbt/internal/repository/memory"
	"github.com/stemsi/exstem-cbt/internal/router"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/sessioncache"
	"github.com/stemsi/exstem-cbt/internal/validator"
	"github.com/stemsi/exstem-cbt/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("store", cfg.StoreDriver).
		Str("cache", cfg.CacheDriver).
		Msg("Starting ExStem CBT engine")

	validator.Setup()
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := make(map[string]handler.HealthCheck)

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	var pool *pgxpool.Pool
	if cfg.StoreDriver == config.DriverPostgres {
		var err error
		pool, err = database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		checks["postgres"] = pool.Ping
	}

	// ─── Connect to Redis ──────────────────────────────────────────────
	var rdb *redis.Client
	if cfg.CacheDriver == config.DriverRedis {
		var err error
		rdb, err = database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	// ─── Stores ────────────────────────────────────────────────────────
	var (
		exams    repository.ExamReader
		attempts repository.AttemptStore
	)
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		exams = repository.NewExamRepository(pool)
		attempts = repository.NewAttemptRepository(pool)
	case config.DriverMemory:
		store := memory.New()
		exams, attempts = store, store
		log.Warn().Msg("Memory store selected; attempts are lost on restart")
	default:
		log.Fatal().Str("driver", cfg.StoreDriver).Msg("Unknown STORE_DRIVER")
	}
	if rdb != nil {
		exams = repository.NewCachedExamReader(exams, rdb, cfg.ExamCacheTTL, log)
	}

	var cache sessioncache.Store
	if rdb != nil {
		cache = sessioncache.NewRedisStore(rdb)
	} else {
		cache = sessioncache.NewMemoryStore(clock.System())
	}

	// ─── Events ────────────────────────────────────────────────────────
	publisher, feed, closeEvents := setupEvents(cfg, rdb, pool != nil, log)
	defer closeEvents()

	// ─── Services ──────────────────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	engine := service.NewExamTakingService(exams, attempts, cache, publisher, clock.System(), cfg.SessionViewTTL, log)
	monitorService := service.NewMonitorService(exams, attempts)

	// ─── Handlers ──────────────────────────────────────────────────────
	handlers := &router.Handlers{
		Attempt:      handler.NewAttemptHandler(engine),
		AdminAttempt: handler.NewAdminAttemptHandler(engine, log),
		Monitor:      handler.NewMonitorHandler(monitorService, feed, log),
		WS:           handler.NewWSHandler(engine, log, cfg.AllowedOrigins),
		System:       handler.NewSystemHandler(engine, rdb, checks, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	answerLimiter := middleware.NewRateLimiter(cfg.AnswerRateLimit, cfg.AnswerRateBurst)
	workers.Add(1)
	go func() {
		defer workers.Done()
		answerLimiter.Run(workerCtx)
	}()

	// The watchdog sweeps once at boot, so attempts that expired while the
	// server was down are closed before traffic arrives.
	watchdog := worker.NewTimeoutWatchdog(engine, cfg.WatchdogSchedule, log)
	workers.Add(1)
	go func() {
		defer workers.Done()
		if err := watchdog.Start(workerCtx); err != nil {
			log.Fatal().Err(err).Msg("Timeout watchdog failed to start")
		}
	}()

	if pool != nil && rdb != nil {
		proctoring := worker.NewProctoringWorker(
			repository.NewAttemptEventRepository(pool), rdb,
			cfg.ProctorBatchSize, cfg.ProctorBatchTimeout, log,
		)
		workers.Add(1)
		go func() {
			defer workers.Done()
			proctoring.Start(workerCtx)
		}()
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, answerLimiter, cfg, log)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for the proctoring queue to flush.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// setupEvents builds the publisher fanout and the monitor feed. With Redis,
// dashboards follow the Redis monitor channel; without it they read the
// in-process pub/sub. Tab switches are queued only when the proctoring
// worker has a database to drain them into.
func setupEvents(cfg *config.Config, rdb *redis.Client, persistProctoring bool, log zerolog.Logger) (events.Publisher, events.MonitorFeed, func()) {
	var (
		fanout  events.Fanout
		feed    events.MonitorFeed
		closers []func() error
	)

	if len(cfg.EventBrokers) > 0 {
		kafkaPub, err := events.NewKafkaPublisher(cfg.EventBrokers, log)
		if err != nil {
			log.Fatal().Err(err).Strs("brokers", cfg.EventBrokers).Msg("Failed to connect to Kafka")
		}
		fanout = append(fanout, events.NewWatermillPublisher(kafkaPub, cfg.EventTopic))
		closers = append(closers, kafkaPub.Close)
	}

	if rdb != nil {
		fanout = append(fanout, events.NewMonitorPublisher(rdb))
		if persistProctoring {
			fanout = append(fanout, events.NewTabSwitchQueue(rdb))
		}
		feed = events.NewRedisFeed(rdb)
	} else {
		local := events.NewInProcessPubSub(log)
		fanout = append(fanout, events.NewWatermillPublisher(local, cfg.EventTopic))
		feed = events.NewWatermillFeed(local, cfg.EventTopic)
		closers = append(closers, local.Close)
	}

	return fanout, feed, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn().Err(err).Msg("Event publisher close failed")
			}
		}
	}
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
