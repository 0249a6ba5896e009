package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/domainstack/api/internal/config"
	"github.com/domainstack/api/internal/email"
	"github.com/domainstack/api/internal/handler"
	authHandler "github.com/domainstack/api/internal/handler/auth"
	domainHandler "github.com/domainstack/api/internal/handler/domain"
	"github.com/domainstack/api/internal/middleware"
	"github.com/domainstack/api/internal/repository/postgres"
	"github.com/domainstack/api/internal/router"
	authService "github.com/domainstack/api/internal/service/auth"
	domainService "github.com/domainstack/api/internal/service/domain"
	notificationService "github.com/domainstack/api/internal/service/notification"
	"github.com/domainstack/api/internal/verify"
	"github.com/domainstack/api/pkg/auth"
	"github.com/domainstack/api/pkg/logger"
	redisbroker "github.com/domainstack/api/pkg/messaging/redis"
	"github.com/domainstack/api/pkg/metrics"
	"github.com/domainstack/api/pkg/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redisbroker.NewRedisBroker(redisbroker.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &appLogger.ZL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	// Repositories
	baseRepo := postgres.NewBaseRepository(db)
	domainRepo := postgres.NewDomainRepository(baseRepo)
	notifRepo := postgres.NewNotificationRepository(baseRepo)
	prefRepo := postgres.NewPreferenceRepository(baseRepo)
	userRepo := postgres.NewUserRepository(baseRepo)

	// Services
	verifier := verify.NewDefaultVerifier(
		verify.DNSCheckerConfig{Timeout: time.Duration(cfg.Verify.DNSTimeoutSeconds) * time.Second},
		verify.HTMLCheckerConfig{Timeout: time.Duration(cfg.Verify.HTMLTimeoutSeconds) * time.Second, AllowPrivate: cfg.Verify.AllowPrivate},
		verify.MetaCheckerConfig{Timeout: time.Duration(cfg.Verify.MetaTimeoutSeconds) * time.Second, AllowPrivate: cfg.Verify.AllowPrivate},
		metrics.New("verification"),
		appLogger,
	)

	mailer := email.NewSMTPMailer(email.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})

	notifSvc := notificationService.NewService(
		notifRepo, prefRepo, userRepo, mailer, broker,
		metrics.New("notifications"), appLogger,
	)
	domainSvc := domainService.NewService(domainRepo, verifier, notifSvc, cfg.Verify.DomainLimit, appLogger)

	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	hasher := security.NewBcryptHasher(0)
	authSvc := authService.NewService(userRepo, hasher, jwtSvc)

	// HTTP layer
	authMiddleware := middleware.NewAuthMiddleware(authSvc)
	r := router.NewRouter(
		authMiddleware,
		authHandler.NewHandler(authSvc),
		domainHandler.NewHandler(domainSvc),
		handler.NewHealthHandler(db),
		router.Config{
			RateLimit:     100,
			RateBurst:     200,
			CORSConfig:    middleware.DefaultCORSConfig(),
			MetricsPrefix: "domainstack_api",
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	appLogger.Info("server started", "port", cfg.Server.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	appLogger.Info("server exited properly")
}
