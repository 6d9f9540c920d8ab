package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Feustey/Dazlng-sub004/internal/config"
	"github.com/Feustey/Dazlng-sub004/internal/email"
	apihttp "github.com/Feustey/Dazlng-sub004/internal/http"
	"github.com/Feustey/Dazlng-sub004/internal/repository"
	"github.com/Feustey/Dazlng-sub004/internal/service"
	"github.com/Feustey/Dazlng-sub004/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	stores, err := repository.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store init", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer stores.Close()

	otpWindow := time.Duration(cfg.OTPRateWindowMinutes) * time.Minute
	var (
		otpLimiter  = service.NewMemoryOTPRateLimiter(otpWindow, cfg.OTPRateMax)
		tokenStore  = service.NewMemoryRefreshTokenStore()
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory limiter and token store", zap.Error(err))
		} else {
			otpLimiter = service.NewRedisOTPRateLimiter(redisClient, otpWindow, cfg.OTPRateMax)
			tokenStore = service.NewRedisRefreshTokenStore(redisClient)
		}
		cancel()
	}

	jwtSvc := service.NewJWTServiceWithStore(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		tokenStore,
	)
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}

	mailer, err := email.NewConversionMailer(newEmailSender(cfg, logger), cfg.AppName, cfg.AppBaseURL)
	if err != nil {
		logger.Fatal("mailer init", zap.Error(err))
	}

	otpSvc := service.NewOTPService(logger, stores.Codes, stores.Tracking, otpLimiter, cfg.OTPTTL())

	cleanup, err := worker.NewCleanupJob(logger, otpSvc, cfg.CleanupSchedule)
	if err != nil {
		logger.Fatal("cleanup job", zap.Error(err))
	}
	cleanup.Start()

	router := apihttp.NewRouter(logger, apihttp.RouterConfig{
		AdminAPIKey:      cfg.AdminAPIKey,
		CORSAllowOrigins: cfg.CORSAllowOrigins,
		RatePerSecond:    cfg.HTTPRatePerSecond,
		RateBurst:        cfg.HTTPRateBurst,
	}, jwtSvc,
		apihttp.NewAuthHandler(logger, otpSvc, jwtSvc, mailer),
		apihttp.NewAdminHandler(logger, otpSvc, mailer),
	)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := cleanup.Stop(shutdownCtx); err != nil {
		logger.Warn("cleanup job shutdown", zap.Error(err))
	}
}

// newEmailSender elige el proveedor; sin configuracion valida los envios fallan y se registran.
func newEmailSender(cfg *config.Config, logger *zap.Logger) email.Sender {
	from := email.From{Address: cfg.SMTPFrom, Name: cfg.SMTPFromName}
	if from.Name == "" {
		from.Name = cfg.AppName
	}
	switch cfg.EmailProvider {
	case "sendgrid":
		sender, err := email.NewSendGridSender(cfg.SendGridAPIKey, from)
		if err != nil {
			logger.Warn("sendgrid sender init failed", zap.Error(err))
			return email.NewDisabledSender("email sender not configured")
		}
		return sender
	case "smtp":
		if cfg.SMTPHost == "" {
			logger.Warn("smtp host not configured")
			return email.NewDisabledSender("email sender not configured")
		}
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, from, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
			return email.NewDisabledSender("email sender not configured")
		}
		return sender
	default:
		return email.NewDisabledSender("email sender disabled")
	}
}
