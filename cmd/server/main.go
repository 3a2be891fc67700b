package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/renewd/renewd/internal/api"
	"github.com/renewd/renewd/internal/circuitbreaker"
	"github.com/renewd/renewd/internal/config"
	"github.com/renewd/renewd/internal/db"
	"github.com/renewd/renewd/internal/metrics"
	"github.com/renewd/renewd/internal/observ"
	"github.com/renewd/renewd/internal/redis"
	"github.com/renewd/renewd/internal/reminder"
	"github.com/renewd/renewd/internal/scheduler"
	"github.com/renewd/renewd/internal/sender"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting renewd",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.String("schedule", cfg.ScheduleCron),
		zap.Ints("milestone_lead_days", cfg.MilestoneLeadDays),
	)

	// Initialize database connection
	ctx := context.Background()
	dbConfig := db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	database, err := db.New(ctx, dbConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	policyStore := db.NewPolicyStore(database, logger)
	ledger := db.NewLedger(database, logger)

	// Redis backs the advisory run lock; the service degrades to
	// lock-free runs when it is unreachable.
	var runLock scheduler.RunLock
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, run overlap guard disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	} else {
		runLock = redis.NewRunLock(redisClient, logger)
		defer redisClient.Close()
	}

	// Message sender: SNS in production, log sender otherwise.
	var smsSender sender.Sender
	switch cfg.SenderMode {
	case "sns":
		snsSender, err := sender.NewSNSSender(ctx, sender.SNSConfig{
			Region: cfg.SNSRegion,
			MaxLen: cfg.SMSMaxLen,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create SNS sender: %w", err)
		}
		smsSender = snsSender
	default:
		smsSender = sender.NewLogSender(logger, cfg.SMSMaxLen)
	}

	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig("sms"), logger)
	protectedSender := circuitbreaker.NewProtectedSender(smsSender, breaker, logger)

	logger.Info("message sender initialized",
		zap.String("mode", cfg.SenderMode),
		zap.Int("sms_max_len", cfg.SMSMaxLen),
	)

	// Wire the reminder pipeline
	milestones := reminder.MilestonesFromLeadDays(cfg.MilestoneLeadDays)
	dispatcher := reminder.NewDispatcher(ledger, protectedSender, logger)
	sched := scheduler.New(policyStore, dispatcher, milestones, runLock, logger)

	trigger, err := scheduler.NewCronTrigger(sched, cfg.ScheduleCron, logger)
	if err != nil {
		return fmt.Errorf("failed to create cron trigger: %w", err)
	}
	trigger.Start()
	defer trigger.Stop()

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute)) // manual runs are slow for large batches
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	// API routes
	handler := api.NewHandler(logger, sched, ledger, policyStore)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/reminders/run", handler.TriggerReminderRun)
		r.Get("/deliveries", handler.ListDeliveries)
		r.Get("/policies/{id}/deliveries", handler.ListPolicyDeliveries)
		r.Get("/policies/expiring", handler.ListExpiringPolicies)
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unreachable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}
