package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"golang.org/x/time/rate"

	_ "github.com/redmonkez12/blog-api/docs" // Swagger docs (generated)
	"github.com/redmonkez12/blog-api/internal/auth"
	"github.com/redmonkez12/blog-api/internal/config"
	"github.com/redmonkez12/blog-api/internal/database"
	"github.com/redmonkez12/blog-api/internal/email"
	httpServer "github.com/redmonkez12/blog-api/internal/http"
	"github.com/redmonkez12/blog-api/internal/logging"
	"github.com/redmonkez12/blog-api/internal/metrics"
	"github.com/redmonkez12/blog-api/internal/profile"
	"github.com/redmonkez12/blog-api/internal/ratelimit"
	"github.com/redmonkez12/blog-api/internal/user"
	"github.com/redmonkez12/blog-api/internal/worker/cleanup"
)

// @title           Blog API
// @version         1.0
// @description     Account, session and profile API for the blog.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"token_store", cfg.Auth.TokenStore,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Database.AutoMigrate {
		logger.Info("running database migrations")
		if err := database.RunMigrations(cfg.Database.MigrationURL()); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	// Initialize database connection
	db, err := database.Open(ctx, cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	// Initialize Redis connection
	redisClient, err := initRedis(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	defer redisClient.Close()

	// Initialize repositories
	userRepo := user.NewRepository(db)
	tokenRepo := newTokenRepository(cfg.Auth.TokenStore, db, redisClient)

	// Initialize rate limiters
	rateLimiter := ratelimit.NewLimiter(redisClient, ratelimit.Config{
		Enabled:       cfg.RateLimit.Enabled,
		IPLimit:       cfg.RateLimit.IPLimit,
		IPWindow:      cfg.RateLimit.IPWindow,
		EmailCooldown: cfg.RateLimit.EmailCooldown,
	})
	throttle := ratelimit.NewThrottle(ratelimit.ThrottleConfig{
		Rate:            rate.Limit(cfg.RateLimit.RequestsPerSecond),
		Burst:           cfg.RateLimit.Burst,
		CleanupInterval: time.Minute,
	})
	defer throttle.Stop()

	// Initialize PASETO service
	pasetoService, err := auth.NewPasetoService(cfg.Auth.PasetoKey)
	if err != nil {
		return fmt.Errorf("failed to initialize PASETO service: %w", err)
	}

	// Initialize email service
	emailService := email.NewService(newSender(cfg.Email, logger), email.Config{
		AppURL:             cfg.Email.AppURL,
		VerificationExpiry: cfg.Auth.VerificationTokenDuration,
		ResetExpiry:        cfg.Auth.PasswordResetDuration,
	}, logger)

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// Initialize auth service
	authCfg := auth.DefaultConfig()
	authCfg.AccessTokenDuration = cfg.Auth.AccessTokenDuration
	authCfg.VerificationTokenDuration = cfg.Auth.VerificationTokenDuration
	authCfg.PasswordResetDuration = cfg.Auth.PasswordResetDuration
	authCfg.PasswordMinLength = cfg.Auth.PasswordMinLength
	authCfg.NotificationTimeout = cfg.Email.SendTimeout

	authService := auth.NewService(
		userRepo,
		tokenRepo,
		auth.NewArgon2Hasher(auth.DefaultArgon2Params()),
		pasetoService,
		emailService,
		logger,
		authCfg,
		auth.WithMetrics(collector),
	)
	defer authService.Wait()

	profileService := profile.NewService(userRepo, authService, logger)

	// Initialize HTTP handlers
	router := httpServer.NewRouter(httpServer.Dependencies{
		Config:         cfg,
		Logger:         logger,
		AuthHandler:    auth.NewHandler(authService, rateLimiter, !cfg.Server.IsDevelopment()),
		AuthMiddleware: auth.NewMiddleware(authService),
		ProfileHandler: profile.NewHandler(profileService),
		Metrics:        collector,
		Gatherer:       registry,
		Throttle:       throttle,
		HealthChecks: map[string]httpServer.HealthCheck{
			"postgres": db.PingContext,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
	})

	// Expired token cleanup
	go cleanup.NewJob(authService, logger, cfg.Cleanup.Interval).Start(ctx)

	// Initialize HTTP server
	server := httpServer.NewServer(
		":"+cfg.Server.Port,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// Wait for interrupt signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutdown signal received")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// newTokenRepository selects the token store backend
func newTokenRepository(driver string, db *bun.DB, client redis.UniversalClient) auth.TokenRepository {
	if driver == config.TokenStoreRedis {
		return auth.NewRedisRepository(client)
	}
	return auth.NewRepository(db)
}

// newSender uses SMTP when a relay is configured and logs messages otherwise
func newSender(cfg config.EmailConfig, logger *logging.Logger) email.Sender {
	if cfg.SMTPHost == "" {
		logger.Warn("SMTP_HOST not set, emails will be logged instead of sent")
		return email.NewLogSender(logger)
	}
	return email.NewSMTPSender(email.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.FromAddress,
		Timeout:  cfg.SendTimeout,
	})
}

// initRedis initializes the Redis connection and returns a Redis client
func initRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
