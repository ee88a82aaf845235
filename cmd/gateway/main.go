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

	"github.com/lalithlochan/courier/internal/api"
	"github.com/lalithlochan/courier/internal/audit"
	"github.com/lalithlochan/courier/internal/circuitbreaker"
	"github.com/lalithlochan/courier/internal/config"
	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/mail"
	"github.com/lalithlochan/courier/internal/metrics"
	"github.com/lalithlochan/courier/internal/notify"
	"github.com/lalithlochan/courier/internal/observ"
	"github.com/lalithlochan/courier/internal/push"
	"github.com/lalithlochan/courier/internal/redis"
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

	logger.Info("starting courier gateway",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.String("email_provider", cfg.EmailProvider),
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

	// Initialize repositories
	repo := db.NewRepository(database, logger)
	users := db.NewUserRepository(database, logger)

	// Initialize Redis for room fan-out, event dedup, and rate limiting
	redisConfig := redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	redisClient, err := redis.New(ctx, redisConfig, logger)
	if err != nil {
		logger.Warn("redis unavailable, realtime fan-out and dedup disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	var publisher *redis.Publisher
	var dedupService *redis.DedupService
	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		publisher = redis.NewPublisher(redisClient, logger)
		dedupService = redis.NewDedupService(redisClient, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  100,             // 100 requests
			Window: 1 * time.Minute, // per minute per user
		})
		defer redisClient.Close()
	}

	// Construct the email transport once; with nothing configured the
	// email channel stays off for the whole process.
	renderer := mail.NewRenderer(cfg.FrontendURL)
	mailTimeout := time.Duration(cfg.MailTimeout) * time.Second

	var emailSender notify.EmailSender
	switch cfg.EmailProvider {
	case config.EmailProviderSMTP:
		smtpSender, err := mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			Timeout:  mailTimeout,
		}, renderer, logger)
		if err != nil {
			return fmt.Errorf("failed to create SMTP sender: %w", err)
		}
		emailSender = smtpSender
	case config.EmailProviderSES:
		sesSender, err := mail.NewSESSender(ctx, mail.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.SESFromEmail,
		}, renderer, logger)
		if err != nil {
			return fmt.Errorf("failed to create SES sender: %w", err)
		}
		emailSender = sesSender
	default:
		logger.Warn("email configuration missing, email notifications disabled")
	}

	if emailSender != nil {
		breaker := circuitbreaker.New(circuitbreaker.DefaultConfig(cfg.EmailProvider), logger)
		emailSender = circuitbreaker.NewProtectedSender(emailSender, breaker, logger)
	}

	// Initialize SNS sender for push
	var pushSender notify.PushSender
	if cfg.PushEnabled {
		snsSender, err := push.NewSNSSender(ctx, push.SNSConfig{
			Region: cfg.SNSRegion,
		}, logger)
		if err != nil {
			logger.Warn("SNS sender unavailable, push notifications disabled",
				zap.Error(err),
			)
		} else {
			pushSender = snsSender
		}
	}

	// Initialize SQS delivery-attempt auditor
	var auditor *audit.Producer
	if cfg.SQSAuditQueueURL != "" {
		auditor, err = audit.NewProducer(ctx, audit.Config{
			Region:   cfg.SQSRegion,
			QueueURL: cfg.SQSAuditQueueURL,
		}, logger)
		if err != nil {
			logger.Warn("sqs auditor unavailable, delivery attempts will not be streamed",
				zap.Error(err),
			)
		}
	}

	hook := deliveryHook(logger, auditor)

	svc := notify.NewService(repo, users, notify.Senders{
		Email: emailSender,
		Push:  pushSender,
	}, hook, logger)

	logger.Info("initialized notification pipeline",
		zap.Bool("email_enabled", emailSender != nil),
		zap.Bool("push_enabled", pushSender != nil),
		zap.Bool("realtime_enabled", publisher != nil),
		zap.Bool("audit_enabled", auditor != nil),
	)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
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
	var handler *api.Handler
	if publisher != nil {
		handler = api.NewHandlerWithRealtime(logger, svc, publisher, dedupService)
	} else {
		handler = api.NewHandler(logger, svc)
	}
	r.Route("/v1", func(r chi.Router) {
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.UserKeyFunc))

		r.Post("/events/query-state", handler.IngestQueryState)
		r.Get("/users/{userID}/notifications", handler.ListNotifications)
		r.Post("/users/{userID}/notifications/{id}/read", handler.MarkRead)
		r.Post("/users/{userID}/notifications/read-all", handler.MarkAllRead)
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
		WriteTimeout: 15 * time.Second,
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

// deliveryHook fans delivery attempts out to the log, Prometheus, and
// the optional SQS audit stream.
func deliveryHook(logger *zap.Logger, auditor *audit.Producer) notify.DeliveryHook {
	return func(ctx context.Context, attempt notify.DeliveryAttempt) {
		metrics.RecordDeliveryAttempt(attempt.Channel, attempt.Outcome, attempt.Duration)

		logger.Info("delivery attempt",
			zap.String("notification_id", attempt.NotificationID.String()),
			zap.String("channel", attempt.Channel),
			zap.String("outcome", attempt.Outcome),
			zap.String("reason", attempt.Reason),
			zap.Duration("duration", attempt.Duration),
		)

		if auditor != nil {
			auditor.Hook()(ctx, attempt)
		}
	}
}
