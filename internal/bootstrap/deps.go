// Package bootstrap wires configuration, infrastructure, adapters, and
// services into runnable units.
package bootstrap

import (
	"context"
	"time"

	"calsync_server/adapter/out/mongodb"
	"calsync_server/adapter/out/notify"
	"calsync_server/adapter/out/persistence"
	"calsync_server/adapter/out/provider"
	redisadapter "calsync_server/adapter/out/redis"
	"calsync_server/config"
	"calsync_server/core/port/out"
	"calsync_server/core/service/auth"
	"calsync_server/core/service/calendar"
	"calsync_server/core/service/reminder"
	"calsync_server/infra/database"
	"calsync_server/pkg/crypto"
	"calsync_server/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	// Repositories
	ConnRepo      out.ConnectionRepository
	EventRepo     out.EventRepository
	MappingRepo   out.MappingRepository
	RunLogRepo    out.RunLogRepository
	ReceiptRepo   out.ReminderReceiptRepository
	RecipientRepo out.RecipientRegistry

	// Outbound adapters
	Providers out.ProviderFactory
	Notifier  out.NotifierPort
	SyncLock  out.SyncLock

	// Services
	TokenService  *auth.TokenService
	OAuthService  *auth.OAuthService
	SyncService   *calendar.SyncService
	EventService  *calendar.EventService
	ConflictDet   *calendar.ConflictDetector
	ReminderScan  *reminder.Scanner
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Database (pgxpool)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, db.Close)

	// Database (sqlx for the row-mapping adapters)
	sqlDB, err := sqlx.Connect("pgx", cfg.DatabaseURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })

	// Redis
	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Redis = redisClient
	cleanups = append(cleanups, func() { redisClient.Close() })

	// MongoDB (run log store)
	mongoClient, err := mongodb.NewClient(cfg.MongoDBURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.MongoDB = mongoClient
	cleanups = append(cleanups, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	})

	// Token cipher
	var cipher *crypto.Cipher
	if cfg.EncryptionKey != "" {
		cipher, err = crypto.NewCipher(cfg.EncryptionKey)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	// Repositories
	deps.ConnRepo = persistence.NewConnectionAdapter(sqlDB, cipher)
	deps.EventRepo = persistence.NewEventAdapter(sqlDB)
	deps.MappingRepo = persistence.NewMappingAdapter(sqlDB)
	deps.ReceiptRepo = persistence.NewReminderReceiptAdapter(sqlDB)
	deps.RecipientRepo = persistence.NewRecipientAdapter(sqlDB)

	runlogAdapter := mongodb.NewRunLogAdapter(mongoClient.Database(cfg.MongoDBName))
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := runlogAdapter.EnsureIndexes(ctx); err != nil {
			logger.Warn("failed to ensure run log indexes: %v", err)
		}
	}
	deps.RunLogRepo = runlogAdapter

	// Outbound adapters
	googleConfig := auth.GoogleOAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	deps.Providers = provider.NewFactory(googleConfig)
	deps.Notifier = notify.NewPushAdapter(cfg.PushEndpoint, cfg.PushToken)
	deps.SyncLock = redisadapter.NewSyncLockAdapter(redisClient)

	// Services
	deps.TokenService = auth.NewTokenService(deps.ConnRepo, deps.Providers)
	deps.SyncService = calendar.NewSyncService(
		deps.ConnRepo, deps.EventRepo, deps.MappingRepo, deps.RunLogRepo,
		deps.Providers, deps.TokenService, deps.SyncLock,
	)
	deps.OAuthService = auth.NewOAuthService(deps.ConnRepo, deps.MappingRepo, deps.RunLogRepo, deps.Providers, deps.SyncService, googleConfig)
	deps.ConflictDet = calendar.NewConflictDetector(deps.EventRepo)
	deps.EventService = calendar.NewEventService(deps.EventRepo, deps.ConnRepo, deps.ConflictDet, deps.SyncService)
	deps.ReminderScan = reminder.NewScanner(deps.RecipientRepo, deps.EventRepo, deps.ReceiptRepo, deps.Notifier)

	return deps, cleanup, nil
}
