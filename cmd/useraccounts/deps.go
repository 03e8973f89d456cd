package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/samber/oops"

	"github.com/useraccounts/user-accounts/internal/api"
	"github.com/useraccounts/user-accounts/internal/api/handler"
	"github.com/useraccounts/user-accounts/internal/api/metrics"
	"github.com/useraccounts/user-accounts/internal/core/ports"
	"github.com/useraccounts/user-accounts/internal/core/service"
	"github.com/useraccounts/user-accounts/internal/infrastructure/config"
	"github.com/useraccounts/user-accounts/internal/infrastructure/db/memory"
	mongostore "github.com/useraccounts/user-accounts/internal/infrastructure/db/mongo"
	pgstore "github.com/useraccounts/user-accounts/internal/infrastructure/db/postgres"
	redisstore "github.com/useraccounts/user-accounts/internal/infrastructure/db/redis"
	"github.com/useraccounts/user-accounts/internal/infrastructure/queue"
	"github.com/useraccounts/user-accounts/internal/infrastructure/ratelimit"
	"github.com/useraccounts/user-accounts/internal/infrastructure/security"
	"github.com/useraccounts/user-accounts/internal/infrastructure/storage"
)

// Limiter names, used in Redis keys and metrics.
const (
	limiterGlobal = "global"
	limiterLogin  = "login"
)

// userStore is a user repository that can answer readiness pings.
type userStore interface {
	ports.UserRepository
	Ping(ctx context.Context) error
}

// app owns every long-lived resource. Close releases them in reverse order.
type app struct {
	deps    api.Deps
	hasher  *security.BcryptHasher
	store   userStore
	closers []func()
}

func (a *app) onClose(fn func()) { a.closers = append(a.closers, fn) }

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// startHashing starts the bcrypt worker pool. It runs on its own context so
// requests still in flight during shutdown can finish hashing.
func (a *app) startHashing(cfg *config.Config, log zerolog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := queue.NewWorkerPool(cfg.Auth.HashWorkers, log)
	pool.Start(ctx)
	a.onClose(func() {
		cancel()
		pool.Wait()
	})

	a.hasher = security.NewBcryptHasher(pool, cfg.Auth.BcryptCost).WithObserver(metrics.ObserveHash)
}

// openStore connects the configured user store.
func (a *app) openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Warn().Msg("using in-memory user store; accounts are lost on restart")
		a.store = memory.NewUserRepository()

	case config.StoreMongo:
		client, db, err := mongostore.Connect(ctx, mongostore.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return oops.Code("DB_CONNECT_FAILED").With("driver", cfg.StoreDriver).Wrap(err)
		}
		a.onClose(func() { _ = client.Disconnect(context.Background()) })

		repo := mongostore.NewUserRepository(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return oops.Code("DB_INDEX_FAILED").Wrap(err)
		}
		a.store = mongoStore{UserRepository: repo, ping: mongostore.Pinger(client)}

	case config.StorePostgres:
		pool, err := pgstore.Connect(ctx, pgstore.Config{URL: cfg.Postgres.URL})
		if err != nil {
			return err
		}
		a.onClose(pool.Close)
		a.store = pgstore.NewUserRepository(pool)

	default:
		return oops.Code("CONFIG_INVALID").Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	log.Info().Str("driver", cfg.StoreDriver).Msg("user store ready")
	return nil
}

type mongoStore struct {
	*mongostore.UserRepository
	ping func(context.Context) error
}

func (s mongoStore) Ping(ctx context.Context) error { return s.ping(ctx) }

// buildLimiters returns the global and login limiters plus any extra
// readiness check the backend needs.
func (a *app) buildLimiters(ctx context.Context, cfg *config.Config, log zerolog.Logger) (global, login ports.RateLimiter, check handler.PingFunc, err error) {
	rl := cfg.RateLimit
	switch rl.Backend {
	case config.BackendRedis:
		client, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, nil, oops.Code("REDIS_CONNECT_FAILED").Wrap(err)
		}
		a.onClose(func() { _ = client.Close() })

		global = redisstore.NewRateLimiter(client, limiterGlobal, rl.Max, rl.Window)
		login = redisstore.NewRateLimiter(client, limiterLogin, rl.LoginMax, rl.Window)
		check = func(ctx context.Context) error { return client.Ping(ctx).Err() }

	default:
		sweepCtx, cancel := context.WithCancel(context.Background())
		a.onClose(cancel)

		g := ratelimit.NewFixedWindow(rl.Max, rl.Window)
		l := ratelimit.NewFixedWindow(rl.LoginMax, rl.Window)
		go g.Run(sweepCtx)
		go l.Run(sweepCtx)
		global, login = g, l
	}

	log.Info().
		Str("backend", rl.Backend).
		Int("max", rl.Max).
		Int("login_max", rl.LoginMax).
		Dur("window", rl.Window).
		Msg("rate limiting enabled")
	return global, login, check, nil
}

func buildMediaStore(ctx context.Context, cfg *config.Config) (ports.MediaStore, error) {
	m := cfg.Media
	if m.Backend == config.BackendS3 {
		client, err := storage.NewS3Client(ctx, storage.S3Config{
			Bucket:    m.S3Bucket,
			Region:    m.S3Region,
			Endpoint:  m.S3Endpoint,
			AccessKey: m.S3AccessKey,
			SecretKey: m.S3SecretKey,
			Prefix:    m.S3Prefix,
		})
		if err != nil {
			return nil, oops.Code("MEDIA_INIT_FAILED").Wrap(err)
		}
		return storage.NewS3Store(client, m.S3Bucket, m.S3Prefix), nil
	}

	store, err := storage.NewDiskStore(m.Dir)
	if err != nil {
		return nil, oops.Code("MEDIA_INIT_FAILED").Wrap(err)
	}
	return store, nil
}

// buildApp wires the whole service. On error everything opened so far is
// already closed.
func buildApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.startHashing(cfg, log)
	if err := a.openStore(ctx, cfg, log); err != nil {
		return nil, err
	}

	global, login, limiterCheck, err := a.buildLimiters(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	media, err := buildMediaStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tokens := security.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	checks := map[string]handler.PingFunc{"store": a.store.Ping}
	if limiterCheck != nil {
		checks["redis"] = limiterCheck
	}

	a.deps = api.Deps{
		Log:            log,
		AuthService:    service.NewAuthService(a.store, a.hasher, tokens, log),
		UserService:    service.NewUserService(a.store, a.hasher, log),
		Tokens:         tokens,
		Media:          media,
		MaxUploadBytes: cfg.Media.MaxBytes,
		GlobalLimiter:  global,
		LoginLimiter:   login,
		HealthChecks:   checks,
		Registerer:     prometheus.DefaultRegisterer,
		Gatherer:       prometheus.DefaultGatherer,
	}
	return a, nil
}

func listenAddr(cfg *config.Config) string {
	return fmt.Sprintf(":%s", cfg.Port)
}
