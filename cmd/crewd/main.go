package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/crewdb/crewd/internal/core/ports"
	"github.com/crewdb/crewd/internal/core/service"
	"github.com/crewdb/crewd/internal/infrastructure/config"
	"github.com/crewdb/crewd/internal/infrastructure/db/file"
	mongodb "github.com/crewdb/crewd/internal/infrastructure/db/mongo"
	redisdb "github.com/crewdb/crewd/internal/infrastructure/db/redis"
	"github.com/crewdb/crewd/internal/infrastructure/db/sqlite"
	"github.com/crewdb/crewd/internal/ops"
	"github.com/crewdb/crewd/internal/transport/tcp"
	"github.com/crewdb/crewd/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		l := logger.Init(logger.Options{})
		l.Fatal().Err(err).Msg("load configuration")
	}

	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.Env == "development",
	})

	workers, users, storePinger, closeStore, err := buildStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("storage", cfg.Storage).Msg("open storage backend")
	}
	defer closeStore()

	var cache ports.CredentialCache
	var redisPinger ops.Pinger
	if cfg.Redis.Addr != "" {
		client, err := redisdb.Connect(ctx, redisdb.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("connect to redis")
		}
		defer client.Close()
		cache = redisdb.NewCredentialCache(client)
		redisPinger = redisPing{client}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("credential cache enabled")
	}

	store := service.NewCollectionStore(workers, log)
	if err := store.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("load collection from storage")
	}
	log.Info().Int("workers", store.Size()).Msg("collection loaded")

	auth := service.NewAuthenticator(users, cache, cfg.JWTSecret, 24*time.Hour, log)
	dispatcher := service.NewDispatcher(store, auth, log)

	srv := tcp.NewServer(tcp.Config{
		Addr:            cfg.BindAddr,
		ReadWorkers:     cfg.Pool.ReadWorkers,
		DispatchWorkers: cfg.Pool.DispatchWorkers,
		SendWorkers:     cfg.Pool.SendWorkers,
		IOTimeout:       time.Duration(cfg.Pool.IOTimeoutSec) * time.Second,
		DrainGrace:      time.Duration(cfg.Pool.DrainGraceSec) * time.Second,
	}, dispatcher, log)

	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.BindAddr).Msg("start tcp server")
	}
	log.Info().Stringer("addr", srv.Addr()).Msg("accepting connections")

	opsRouter := ops.NewRouter(storePinger, redisPinger)
	go func() {
		if err := opsRouter.Start(cfg.OpsAddr); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("addr", cfg.OpsAddr).Msg("ops server stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	srv.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := opsRouter.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("ops server shutdown")
	}

	log.Info().Msg("bye")
}

// buildStorage opens the backend selected by STORAGE and returns the worker
// and user repositories, a pinger for the readiness probe and a close func.
func buildStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ports.WorkerRepository, ports.UserRepository, ops.Pinger, func(), error) {
	switch cfg.Storage {
	case config.StorageSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		repo := sqlite.NewWorkerRepository(db)
		log.Info().Str("path", cfg.SQLitePath).Msg("using sqlite storage")
		return repo, sqlite.NewUserRepository(db), repo, func() { db.Close() }, nil

	case config.StorageMongo:
		client, db, err := mongodb.Connect(ctx, mongodb.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
		})
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if err := mongodb.EnsureIndexes(ctx, db); err != nil {
			client.Disconnect(context.Background())
			return nil, nil, nil, nil, err
		}
		repo := mongodb.NewWorkerRepository(db)
		log.Info().Str("database", cfg.Mongo.Database).Msg("using mongo storage")
		closeFn := func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Disconnect(disconnectCtx)
		}
		return repo, mongodb.NewUserRepository(db), repo, closeFn, nil

	default:
		st, err := file.Open(cfg.FilePath)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		log.Info().Str("path", cfg.FilePath).Msg("using file storage")
		return st, st, st, func() {}, nil
	}
}

type redisPing struct {
	client *goredis.Client
}

func (p redisPing) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
