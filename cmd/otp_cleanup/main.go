package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Feustey/Dazlng-sub004/internal/config"
	"github.com/Feustey/Dazlng-sub004/internal/repository"
	"github.com/Feustey/Dazlng-sub004/internal/service"
)

// otp_cleanup ejecuta una pasada de limpieza fuera del servidor, por ejemplo desde un CronJob.
func main() {
	clearEmail := flag.String("clear-email", "", "also invalidate every active code for this email")
	timeout := flag.Duration("timeout", time.Minute, "overall deadline")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	stores, err := repository.OpenStores(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("store init: %v", err)
	}
	defer stores.Close()

	otpSvc := service.NewOTPService(logger, stores.Codes, stores.Tracking, nil, cfg.OTPTTL())

	if *clearEmail != "" {
		n, err := otpSvc.ClearOTPForEmail(ctx, *clearEmail)
		if err != nil {
			log.Fatalf("clear codes: %v", err)
		}
		fmt.Printf("invalidated %d active code(s) for %s\n", n, *clearEmail)
	}

	removed := otpSvc.CleanupExpiredCodes(ctx)
	fmt.Printf("removed %d expired code(s)\n", removed)
}
