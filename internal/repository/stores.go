package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/Feustey/Dazlng-sub004/internal/config"
	"github.com/Feustey/Dazlng-sub004/internal/db"
)

// Stores agrupa los repositorios del driver elegido y su cierre.
type Stores struct {
	Codes    OTPCodeRepository
	Tracking EmailTrackingRepository
	Close    func()
}

// OpenStores conecta el backend indicado por STORE_DRIVER una sola vez por proceso.
func OpenStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		return openPostgres(ctx, cfg, logger)
	case config.StoreDriverMongo:
		return openMongo(ctx, cfg)
	case config.StoreDriverMemory:
		logger.Warn("using in-memory stores: codes and tracking are lost on restart")
		return Stores{
			Codes:    NewMemoryOTPCodeRepository(),
			Tracking: NewMemoryEmailTrackingRepository(),
			Close:    func() {},
		}, nil
	default:
		return Stores{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Stores, error) {
	if cfg.RunMigrations {
		sqlDB, err := db.OpenSQL(cfg.DatabaseURL)
		if err != nil {
			return Stores{}, fmt.Errorf("open migrations db: %w", err)
		}
		err = db.Migrate(ctx, sqlDB)
		_ = sqlDB.Close()
		if err != nil {
			return Stores{}, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations applied")
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return Stores{}, fmt.Errorf("db connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx, pool); err != nil {
		pool.Close()
		return Stores{}, fmt.Errorf("db ping: %w", err)
	}
	return Stores{
		Codes:    NewPgOTPCodeRepository(pool),
		Tracking: NewPgEmailTrackingRepository(pool),
		Close:    pool.Close,
	}, nil
}

func openMongo(ctx context.Context, cfg *config.Config) (Stores, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return Stores{}, fmt.Errorf("mongo connect: %w", err)
	}
	closeFn := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(shutdownCtx)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		closeFn()
		return Stores{}, fmt.Errorf("mongo ping: %w", err)
	}

	database := client.Database(cfg.MongoDatabase)
	if err := EnsureMongoIndexes(connectCtx, database); err != nil {
		closeFn()
		return Stores{}, fmt.Errorf("mongo indexes: %w", err)
	}
	return Stores{
		Codes:    NewMongoOTPCodeRepository(database),
		Tracking: NewMongoEmailTrackingRepository(database),
		Close:    closeFn,
	}, nil
}
