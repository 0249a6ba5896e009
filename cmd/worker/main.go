package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/domainstack/api/internal/config"
	"github.com/domainstack/api/internal/email"
	"github.com/domainstack/api/internal/repository/postgres"
	domainService "github.com/domainstack/api/internal/service/domain"
	notificationService "github.com/domainstack/api/internal/service/notification"
	"github.com/domainstack/api/internal/verify"
	"github.com/domainstack/api/internal/worker"
	"github.com/domainstack/api/pkg/logger"
	redisbroker "github.com/domainstack/api/pkg/messaging/redis"
	"github.com/domainstack/api/pkg/metrics"
)

func setupHealthCheck(appLogger *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(":8081", mux); err != nil {
			appLogger.ZL.Error().Err(err).Msg("health check server failed")
			os.Exit(1)
		}
	}()
}

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

	baseRepo := postgres.NewBaseRepository(db)
	domainRepo := postgres.NewDomainRepository(baseRepo)
	notifRepo := postgres.NewNotificationRepository(baseRepo)
	prefRepo := postgres.NewPreferenceRepository(baseRepo)
	userRepo := postgres.NewUserRepository(baseRepo)

	m := metrics.New("worker")

	verifier := verify.NewDefaultVerifier(
		verify.DNSCheckerConfig{Timeout: time.Duration(cfg.Verify.DNSTimeoutSeconds) * time.Second},
		verify.HTMLCheckerConfig{Timeout: time.Duration(cfg.Verify.HTMLTimeoutSeconds) * time.Second, AllowPrivate: cfg.Verify.AllowPrivate},
		verify.MetaCheckerConfig{Timeout: time.Duration(cfg.Verify.MetaTimeoutSeconds) * time.Second, AllowPrivate: cfg.Verify.AllowPrivate},
		m,
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
		notifRepo, prefRepo, userRepo, mailer, broker, m, appLogger,
	)
	domainSvc := domainService.NewService(domainRepo, verifier, notifSvc, cfg.Verify.DomainLimit, appLogger)

	retryDelay := time.Duration(cfg.Scheduler.RetryDelaySeconds) * time.Second

	revalidator := worker.NewRevalidator(domainRepo, domainSvc, worker.RevalidatorConfig{
		Interval:      cfg.Scheduler.RevalidateInterval(),
		Concurrency:   cfg.Scheduler.Concurrency,
		RetryAttempts: cfg.Scheduler.RetryAttempts,
		RetryDelay:    retryDelay,
	}, m, appLogger)

	expiryScanner := worker.NewExpiryScanner(domainRepo, notifSvc, worker.ExpiryScannerConfig{
		Interval:      cfg.Scheduler.ExpiryInterval(),
		CertOffset:    cfg.Scheduler.CertOffset(),
		Concurrency:   cfg.Scheduler.Concurrency,
		RetryAttempts: cfg.Scheduler.RetryAttempts,
		RetryDelay:    retryDelay,
	}, m, appLogger)

	setupHealthCheck(appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		appLogger.Info("shutting down...")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		revalidator.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		expiryScanner.Start(ctx)
	}()
	wg.Wait()

	appLogger.Info("worker stopped")
}
