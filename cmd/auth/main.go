package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/smallbiznis/ifs-auth/internal/adapter/cache"
	"github.com/smallbiznis/ifs-auth/internal/authz"
	"github.com/smallbiznis/ifs-auth/internal/bootstrap"
	"github.com/smallbiznis/ifs-auth/internal/config"
	"github.com/smallbiznis/ifs-auth/internal/database"
	httptransport "github.com/smallbiznis/ifs-auth/internal/http"
	"github.com/smallbiznis/ifs-auth/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/ifs-auth/internal/http/middleware"
	"github.com/smallbiznis/ifs-auth/internal/jwt"
	apimiddleware "github.com/smallbiznis/ifs-auth/internal/middleware"
	"github.com/smallbiznis/ifs-auth/internal/ratelimit"
	"github.com/smallbiznis/ifs-auth/internal/repository"
	"github.com/smallbiznis/ifs-auth/internal/revocation"
	"github.com/smallbiznis/ifs-auth/internal/server"
	"github.com/smallbiznis/ifs-auth/internal/service"
	"github.com/smallbiznis/ifs-auth/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			telemetry.NewMetrics,
			newSnowflake,
			newPGXPool,
			newSQLDB,
			newUserRepository,
			newRoleRepository,
			newCacheStore,
			newCodec,
			newRegistry,
			newLimiters,
			newResolver,
			newPermissionChecker,
			service.NewAuthService,
			service.NewDirectoryService,
			handler.NewAuthHandler,
			handler.NewDirectoryHandler,
			newHealthHandler,
			newHandlers,
			newAuthenticator,
			newThrottle,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, runMigrations, bootstrap.Register, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsDevelopment() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	return node, err
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.OpenPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newSQLDB(lc fx.Lifecycle, pool *pgxpool.Pool) *sql.DB {
	db := database.SQLDB(pool)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return db.Close()
		},
	})
	return db
}

func newUserRepository(db *sql.DB) repository.UserRepository {
	return repository.NewPostgresUserRepo(db)
}

func newRoleRepository(db *sql.DB) repository.RoleRepository {
	return repository.NewPostgresRoleRepo(db)
}

// newCacheStore connects to Redis, or falls back to a process-local store
// when REDIS_ADDR is empty (development only, enforced by config).
func newCacheStore(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (repository.CacheStore, error) {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR empty, using in-memory revocation and rate-limit store")
		return cacheadapter.NewMemoryStore(nil), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return cacheadapter.NewRedisStore(client), nil
}

func newCodec(cfg config.Config) (*jwt.Codec, error) {
	return jwt.NewCodec(cfg.TokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
}

func newRegistry(store repository.CacheStore, codec *jwt.Codec, logger *zap.Logger) *revocation.Registry {
	return revocation.NewRegistry(store, codec, logger)
}

func newLimiters(store repository.CacheStore, cfg config.Config) ratelimit.Limiters {
	return ratelimit.Limiters{
		Login:    ratelimit.NewLimiter(store, "login", cfg.LoginMaxAttempts, cfg.LoginWindow),
		Refresh:  ratelimit.NewLimiter(store, "refresh", cfg.RefreshMaxAttempts, cfg.RefreshWindow),
		Password: ratelimit.NewLimiter(store, "password", cfg.PasswordMaxAttempts, cfg.PasswordWindow),
	}
}

func newResolver(roles repository.RoleRepository) *authz.Resolver {
	return authz.NewResolver(roles)
}

func newPermissionChecker(resolver *authz.Resolver) authz.PermissionChecker {
	return resolver
}

func newHealthHandler(pool *pgxpool.Pool, store repository.CacheStore, logger *zap.Logger) *handler.HealthHandler {
	return handler.NewHealthHandler(map[string]handler.Pinger{
		"postgres": pool,
		"cache":    store,
	}, logger)
}

func newHandlers(auth *handler.AuthHandler, directory *handler.DirectoryHandler, health *handler.HealthHandler) httptransport.Handlers {
	return httptransport.Handlers{Auth: auth, Directory: directory, Health: health}
}

func newAuthenticator(codec *jwt.Codec, registry *revocation.Registry, users repository.UserRepository, metrics *telemetry.Metrics, logger *zap.Logger) *httpmiddleware.Authenticator {
	return httpmiddleware.NewAuthenticator(codec, registry, users, metrics, logger)
}

func newThrottle(cfg config.Config, metrics *telemetry.Metrics, logger *zap.Logger) *apimiddleware.Throttle {
	return apimiddleware.NewThrottle(cfg.RateLimitRPM, metrics, logger)
}

func runMigrations(cfg config.Config, _ *pgxpool.Pool, logger *zap.Logger) error {
	if !cfg.AutoMigrate {
		return nil
	}
	return database.Migrate(cfg.DatabaseURL, logger)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
