package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/melkam/therapy-api/internal/api"
	"github.com/melkam/therapy-api/internal/api/handler"
	"github.com/melkam/therapy-api/internal/core/service"
	"github.com/melkam/therapy-api/internal/infrastructure/config"
	mongodb "github.com/melkam/therapy-api/internal/infrastructure/db/mongo"
	redisdb "github.com/melkam/therapy-api/internal/infrastructure/db/redis"
	"github.com/melkam/therapy-api/internal/infrastructure/email"
	"github.com/melkam/therapy-api/internal/infrastructure/queue"
	"github.com/melkam/therapy-api/internal/infrastructure/scheduler"
	"github.com/melkam/therapy-api/internal/infrastructure/security"
	"github.com/melkam/therapy-api/pkg/logger"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.Env == "development",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Infrastructure ---
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connection failed")
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()

	rdb, err := redisdb.Connect(ctx, redisdb.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	defer func() { _ = rdb.Close() }()

	userRepo := mongodb.NewUserRepository(db)
	if err := userRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure indexes")
	}

	// --- Collaborators ---
	codec := security.NewJWTCodec(
		cfg.JWT.AccessSecret, cfg.JWT.RefreshSecret,
		cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL,
	)
	otp := security.NewOTPGenerator()
	limiter := redisdb.NewOTPAttemptLimiter(rdb, cfg.Session.OTPMaxAttempts)

	mailer := email.NewSMTPMailer(email.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	dispatcher := queue.NewMailDispatcher(cfg.Session.MailWorkers, mailer, log)
	dispatcher.Start(ctx)

	// --- Services ---
	authService := service.NewAuthService(userRepo, codec, otp, dispatcher, limiter, log)
	refreshGate := service.NewRefreshGate(authService, codec, cfg.Session.RefreshTimeout, log)
	userService := service.NewUserService(userRepo, log)

	sweeper := scheduler.NewSweeper(authService.CleanExpiredOTP, cfg.Session.SweepSchedule, log)
	if err := sweeper.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("invalid sweep schedule")
	}
	defer sweeper.Stop()

	// --- HTTP ---
	e := api.NewRouter(api.Dependencies{
		Mongo:   db,
		Redis:   rdb,
		Auth:    authService,
		Refresh: refreshGate,
		Users:   userService,
		Codec:   codec,
		Cookie: handler.CookieSettings{
			Secure: cfg.Cookie.Secure,
			Domain: cfg.Cookie.Domain,
		},
		Log: log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
	log.Info().Msg("server stopped")
}
