package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/hostel-bed-holds/internal/availability"
	"github.com/iliyamo/hostel-bed-holds/internal/blocking"
	"github.com/iliyamo/hostel-bed-holds/internal/clock"
	"github.com/iliyamo/hostel-bed-holds/internal/config"
	"github.com/iliyamo/hostel-bed-holds/internal/conflict"
	"github.com/iliyamo/hostel-bed-holds/internal/database"
	"github.com/iliyamo/hostel-bed-holds/internal/handler"
	"github.com/iliyamo/hostel-bed-holds/internal/holds"
	"github.com/iliyamo/hostel-bed-holds/internal/logger"
	"github.com/iliyamo/hostel-bed-holds/internal/middleware"
	"github.com/iliyamo/hostel-bed-holds/internal/queue"
	"github.com/iliyamo/hostel-bed-holds/internal/repository"
	"github.com/iliyamo/hostel-bed-holds/internal/router"
	"github.com/iliyamo/hostel-bed-holds/internal/service"
)

const serviceName = "hostel-bed-holds"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat, serviceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer closeRepo()

	rdb := config.NewRedisClient(cfg.Redis, zl)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	clk := clock.NewSystem()
	inv := cfg.Inventory
	store := holds.NewStore()
	// hold confirmation, imports and blocks all write bookings under one lock
	reserve := &sync.Mutex{}

	calcOpts := []availability.Option{availability.WithLogger(zl.Named("availability"))}
	if c := availabilityCache(cfg.Cache, rdb, zl); c != nil {
		calcOpts = append(calcOpts, availability.WithCache(c))
	}
	calc := availability.NewCalculator(inv, repo, store, calcOpts...)

	var notifiers service.MultiNotifier
	if cfg.AMQPEnabled {
		pub := service.NewQueuePublisher(cfg.RabbitMQURL, zl.Named("publisher"))
		defer func() { _ = pub.Close() }()
		notifiers = append(notifiers, pub)
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, service.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookTimeout, zl.Named("webhook")))
	}

	mgrOpts := []holds.Option{
		holds.WithTTL(cfg.HoldTTL),
		holds.WithRetention(cfg.HoldRetention),
		holds.WithStrict(cfg.HoldStrict),
		holds.WithInvalidator(calc),
		holds.WithLogger(zl.Named("holds")),
		holds.WithReservationLock(reserve),
	}
	if len(notifiers) > 0 {
		mgrOpts = append(mgrOpts, holds.WithNotifier(notifiers))
	}
	mgr := holds.NewManager(store, inv, calc, repo, clk, mgrOpts...)

	resolver := conflict.NewResolver(repo, cfg.ConflictStrategy,
		conflict.WithPriorities(cfg.Priorities),
		conflict.WithInventory(inv),
		conflict.WithInvalidator(calc),
		conflict.WithLogger(zl.Named("conflict")),
		conflict.WithReservationLock(reserve),
	)
	blocker := blocking.NewBlocker(repo, inv, clk, calc, zl.Named("blocking"), blocking.WithReservationLock(reserve))

	sweeper := holds.NewSweeper(mgr, cfg.HoldSweepInterval, zl.Named("sweeper"))
	sweeper.Start(ctx)
	defer sweeper.Stop()

	if cfg.AMQPEnabled {
		go func() {
			err := queue.StartImportConsumer(ctx, cfg.RabbitMQURL, resolver, zl.Named("import"))
			if err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("import consumer exited", zap.Error(err))
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(zl.Named("http")))

	holdHandler := handler.NewHoldHandler(mgr, zl)
	router.RegisterRoutes(e)
	router.RegisterGuest(e,
		holdHandler,
		handler.NewAvailabilityHandler(calc, inv, zl),
		middleware.NewTokenBucket(cfg.RateLimit, rdb, zl),
	)
	router.RegisterAdmin(e,
		handler.NewAuthHandler(handler.AuthConfig{
			Secret:       cfg.JWTSecret,
			Username:     cfg.AdminUsername,
			PasswordHash: cfg.AdminPasswordHash,
			AccessTTL:    time.Duration(cfg.AccessTTLMin) * time.Minute,
		}, clk, zl),
		holdHandler,
		handler.NewAdminHandler(blocker, resolver, calc, inv, zl),
		cfg.JWTSecret,
	)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		zl.Info("listening",
			zap.String("addr", addr),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.StoreDriver),
			zap.Int("rooms", len(inv.Rooms())),
			zap.Int("beds", inv.TotalCapacity()),
			zap.Duration("hold_ttl", cfg.HoldTTL),
			zap.Bool("strict", cfg.HoldStrict),
		)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func openRepository(ctx context.Context, cfg config.Config, zl *zap.Logger) (repository.BookingRepository, func(), error) {
	var (
		db      *sql.DB
		dialect database.Dialect
		err     error
	)
	switch cfg.StoreDriver {
	case config.DriverMySQL:
		db, err = database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		dialect = database.MySQL
	case config.DriverSQLite:
		db, err = database.OpenSQLite(cfg.SQLiteDSN)
		dialect = database.SQLite
	default:
		zl.Warn("using in-memory booking store; bookings are lost on restart")
		return repository.NewMemoryBookingRepo(), func() {}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	zl.Info("booking store ready", zap.String("driver", cfg.StoreDriver))
	return repository.NewBookingRepo(db), func() { _ = db.Close() }, nil
}

// availabilityCache returns nil when caching is off, never a typed-nil
// *RedisCache.
func availabilityCache(cfg config.CacheConfig, rdb *redis.Client, zl *zap.Logger) availability.Cache {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Backend == config.CacheRedis {
		if rc := availability.NewRedisCache(rdb, cfg.Prefix, cfg.TTL, zl.Named("cache")); rc != nil {
			return rc
		}
		zl.Warn("redis cache requested but redis is unavailable; using memory cache")
	}
	return availability.NewMemoryCache(cfg.TTL, cfg.MaxEntries, nil)
}
