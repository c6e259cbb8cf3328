package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SCORPIA2004/CampusConnect/internal/app"
	"github.com/SCORPIA2004/CampusConnect/internal/chat"
	"github.com/SCORPIA2004/CampusConnect/internal/config"
	"github.com/SCORPIA2004/CampusConnect/internal/db"
	"github.com/SCORPIA2004/CampusConnect/internal/logging"
	"github.com/SCORPIA2004/CampusConnect/internal/ratelimit"
	"github.com/SCORPIA2004/CampusConnect/internal/user"
	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Configuration & Logger
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Stores
	userStore, chatStore, closeStores, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStores()

	// 3. Rate limiting (optional)
	deps := app.Deps{
		UserStore:    userStore,
		ChatStore:    chatStore,
		JWTSecret:    cfg.JWTSecret,
		TokenTTL:     cfg.TokenTTL,
		CampusDomain: cfg.CampusEmailDomain,
		SendBuffer:   cfg.SendBuffer,
		Log:          log,

		TrustProxyHeaders: cfg.TrustProxyHeaders,
	}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		limiter, err := ratelimit.NewFixedWindowLimiter(redisClient, "campusconnect:auth", cfg.AuthRateLimitPerMinute, time.Minute)
		if err != nil {
			return err
		}
		deps.AuthLimiter = limiter
		log.Info("connected to redis", "addr", cfg.RedisAddr)
	} else {
		log.Warn("REDIS_ADDR not set, auth endpoints are not rate limited")
	}

	// 4. Chat feature
	a := app.New(deps)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 5. Serve until a signal arrives
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("server starting", "addr", cfg.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped cleanly")
	return nil
}

// openStores builds the user and chat stores for the configured driver.
// The returned func releases whatever was opened.
func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (user.Store, chat.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		database, err := db.NewDatabase(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		log.Info("connected to postgres")
		if err := database.AutoMigrate(ctx); err != nil {
			_ = database.Close()
			return nil, nil, nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("database schema initialized")
		closeFn := func() { closeQuietly(log, "postgres", database) }
		return user.NewRepository(database.Conn), chat.NewRepository(database.Conn), closeFn, nil

	case config.DriverBadger:
		bdb, err := badger.Open(badger.DefaultOptions(cfg.BadgerPath).WithLoggingLevel(badger.WARNING))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open badger at %s: %w", cfg.BadgerPath, err)
		}
		log.Info("opened badger", "path", cfg.BadgerPath)
		closeFn := func() { closeQuietly(log, "badger", bdb) }
		return user.NewBadgerStore(bdb), chat.NewBadgerStore(bdb), closeFn, nil

	default:
		log.Warn("using in-memory stores, data is lost on restart")
		return user.NewMemoryStore(), chat.NewMemoryStore(), func() {}, nil
	}
}

func closeQuietly(log *slog.Logger, name string, c io.Closer) {
	log.Info("closing store", "store", name)
	if err := c.Close(); err != nil {
		log.Warn("close store failed", "store", name, "error", err)
	}
}
