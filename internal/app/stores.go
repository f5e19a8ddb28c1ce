package app

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"tutorledger/internal/config"
	"tutorledger/internal/ledger"
	"tutorledger/internal/queue"
	"tutorledger/internal/remote"
	"tutorledger/internal/store"
)

// Stores are the backends selected by configuration.
type Stores struct {
	Local  ledger.LocalStore
	Remote remote.Store
	DB     *store.DB
	Redis  *store.Redis

	closers []func() error
}

func needsRedis(cfg config.App) bool {
	return cfg.LocalBackend == "redis" || cfg.RemoteBackend == "redis" || cfg.QueueBackend == "redis"
}

// OpenStores connects the local and remote stores. An unreachable postgres
// is logged and kept: the coordinator reports network failures per cycle.
func OpenStores(ctx context.Context, cfg config.App, log zerolog.Logger) (*Stores, error) {
	s := &Stores{}
	if needsRedis(cfg) {
		s.Redis = store.NewRedis(cfg.RedisAddr)
		s.closers = append(s.closers, s.Redis.Close)
	}

	switch cfg.LocalBackend {
	case "sqlite":
		sq, err := store.NewSQLiteLocal(cfg.SQLitePath, log)
		if err != nil {
			return nil, errors.Wrap(err, "local store")
		}
		s.Local = sq
		s.closers = append(s.closers, sq.Close)
	case "redis":
		s.Local = store.NewRedisLocal(s.Redis.Client, log)
	case "memory":
		s.Local = store.NewMemoryLocal()
	default:
		return nil, errors.Errorf("unknown LOCAL_BACKEND %q", cfg.LocalBackend)
	}

	switch cfg.RemoteBackend {
	case "postgres":
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if db == nil {
			return nil, errors.Wrap(err, "remote store")
		}
		if err != nil {
			log.Warn().Err(err).Msg("postgres not reachable, syncs will fail until it is")
		}
		s.DB = db
		s.closers = append(s.closers, db.Close)
		s.Remote = remote.NewPostgres(db.Client, cfg.RemoteTable, log)
	case "redis":
		s.Remote = remote.NewRedisDocs(s.Redis.Client, "", log)
	case "memory":
		s.Remote = remote.NewMemory()
	case "none", "":
		log.Info().Msg("no remote configured, running local-only")
	default:
		return nil, errors.Errorf("unknown REMOTE_BACKEND %q", cfg.RemoteBackend)
	}
	return s, nil
}

// HealthChecks returns a health check per connected backend.
func (s *Stores) HealthChecks() map[string]func(context.Context) bool {
	checks := map[string]func(context.Context) bool{}
	if s.DB != nil {
		checks["db"] = s.DB.Healthy
	}
	if s.Redis != nil {
		checks["redis"] = s.Redis.Healthy
	}
	return checks
}

// NewQueue selects the sync-trigger queue.
func (s *Stores) NewQueue(cfg config.App, log zerolog.Logger) queue.Queue {
	if cfg.QueueBackend == "redis" && s.Redis != nil {
		return queue.NewRedisQueue(s.Redis.Client, "", log)
	}
	return queue.NewInMemory(64)
}

// Close releases every backend in reverse order.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}
