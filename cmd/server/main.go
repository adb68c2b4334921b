// Package main is the entrypoint for the interviewd API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kiranshivaraju/interviewd/internal/ai"
	"github.com/kiranshivaraju/interviewd/internal/answer"
	"github.com/kiranshivaraju/interviewd/internal/api"
	"github.com/kiranshivaraju/interviewd/internal/api/handler"
	mw "github.com/kiranshivaraju/interviewd/internal/api/middleware"
	"github.com/kiranshivaraju/interviewd/internal/assignment"
	"github.com/kiranshivaraju/interviewd/internal/cache"
	"github.com/kiranshivaraju/interviewd/internal/config"
	"github.com/kiranshivaraju/interviewd/internal/lifecycle"
	"github.com/kiranshivaraju/interviewd/internal/metrics"
	"github.com/kiranshivaraju/interviewd/internal/notify"
	"github.com/kiranshivaraju/interviewd/internal/queue"
	"github.com/kiranshivaraju/interviewd/internal/scoring"
	"github.com/kiranshivaraju/interviewd/internal/store"
	"github.com/kiranshivaraju/interviewd/internal/tracing"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLog := newLogger(cfg.Log, os.Stdout)
	defer closeLog.Close()
	slog.SetDefault(logger)
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Observability
	metrics.Register(prometheus.DefaultRegisterer)
	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(flushCtx); err != nil {
				slog.Warn("tracer shutdown failed", "error", err)
			}
		}()
		slog.Info("tracing enabled", "endpoint", cfg.Tracing.CollectorEndpoint)
	}

	// 3. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 4. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 5. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 6. Create AI scorer
	scorer, err := ai.NewScorer(ctx, cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI scorer: %w", err)
	}
	slog.Info("AI scorer initialized", "provider", scorer.Name())

	pgStore := store.NewPostgresStore(pool)

	// 7. Broker, or the in-process fallback
	var (
		rmq    *queue.RabbitMQ
		mailer notify.Mailer = notify.LogMailer{}
	)
	if cfg.Queue.URL != "" {
		rmq, err = queue.Dial(cfg.Queue.URL)
		if err != nil {
			return fmt.Errorf("dial broker: %w", err)
		}
		defer rmq.Close()

		publisher, err := queue.NewEmailPublisher(rmq, cfg.Queue.EmailQueue)
		if err != nil {
			return fmt.Errorf("declare email queue: %w", err)
		}
		mailer = publisher
		slog.Info("broker connected", "evaluation_queue", cfg.Queue.EvaluationQueue, "email_queue", cfg.Queue.EmailQueue)
	}

	dispatcher := notify.NewDispatcher(redisCache, mailer, cfg.Notify.Timeout)
	defer dispatcher.Wait()

	// 8. Domain services
	aggregator := scoring.NewAggregator(pgStore, scorer, redisCache, dispatcher, scoring.Config{
		InferenceTimeout: cfg.AI.InferenceTimeout,
		LockTTL:          cfg.Evaluation.LockTTL,
	})
	evaluate := func(ctx context.Context, assignmentID uuid.UUID) error {
		_, _, err := aggregator.RequestAiEvaluation(ctx, assignmentID)
		return err
	}

	var (
		background sync.WaitGroup
		enqueuer   queue.Enqueuer
	)
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	if rmq != nil {
		amqpEnqueuer, err := queue.NewAMQPEnqueuer(rmq, cfg.Queue.EvaluationQueue)
		if err != nil {
			return fmt.Errorf("declare evaluation queue: %w", err)
		}
		enqueuer = amqpEnqueuer

		consumer := queue.NewConsumer(rmq, cfg.Queue.EvaluationQueue, cfg.Evaluation.Workers, evaluate)
		background.Add(1)
		go func() {
			defer background.Done()
			if err := consumer.Run(workerCtx); err != nil {
				slog.Error("evaluation consumer stopped", "error", err)
			}
		}()
	} else {
		workers := queue.NewPool(cfg.Evaluation.Workers, evaluate)
		workers.Start(workerCtx)
		defer workers.Stop()
		enqueuer = workers
	}

	var machineOpts []lifecycle.Option
	if cfg.Evaluation.AutoTrigger {
		machineOpts = append(machineOpts, lifecycle.WithEvaluationTrigger(enqueuer))
	}
	machine := lifecycle.NewMachine(pgStore, dispatcher, machineOpts...)
	manager := assignment.NewManager(pgStore, machine, dispatcher)
	answers := answer.NewStore(pgStore)

	sweeper := lifecycle.NewSweeper(machine, cfg.Lifecycle.SweepInterval, cfg.Lifecycle.SweepBatchSize)
	background.Add(1)
	go func() {
		defer background.Done()
		if err := sweeper.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("timeout sweeper stopped", "error", err)
		}
	}()

	// 9. Build router with dependencies
	assignments := handler.NewAssignments(manager, machine, answers)
	grading := handler.NewGrading(aggregator, enqueuer)

	deps := api.Dependencies{
		Auth:      mw.NewAuth(pgStore),
		Actors:    mw.NewActorAuth(cfg.Auth.ActorTokenSecret),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RequestsPerMinute),

		HealthHandler:  handler.NewHealthHandler(pgStore, redisCache),
		MetricsHandler: metrics.Handler(),

		CreateAssignment:  assignments.Create,
		ListAssignments:   assignments.List,
		GetAssignment:     assignments.Get,
		StartAssignment:   assignments.Start,
		SubmitAssignment:  assignments.Submit,
		ListAnswers:       assignments.Answers,
		AssignmentHistory: assignments.History,

		GradeAnswer:       grading.Grade,
		RequestEvaluation: grading.RequestEvaluation,
		GetEvaluation:     grading.GetEvaluation,
	}

	router := api.NewRouter(deps)

	// 10. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		stopWorkers()
		background.Wait()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// In-flight requests are done; stop the sweeper and evaluation workers
	// before the deferred pool and broker closes run.
	stopWorkers()
	background.Wait()

	slog.Info("server stopped gracefully")
	return nil
}

// newLogger builds the JSON logger at the configured level. When a log file is
// set, output is also written there with lumberjack rotation.
func newLogger(cfg config.LogConfig, stdout io.Writer) (*slog.Logger, io.Closer) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	out := stdout
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(stdout, rotating)
		closer = rotating
	}

	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
