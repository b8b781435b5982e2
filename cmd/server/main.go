/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Warp moderation server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Open the configured store (sqlite, redis or memory)
  3. Open the ledger, loading every stored action
  4. Start the expiration sweeper
  5. Configure HTTP router and start the server

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweeper
  4. Close the ledger, flushing pending changes
  5. Close the store

EXAMPLES:
  # Run with file database
  ./server -db="./data/moderation.db"

  # Run on redis
  STORE_DRIVER=redis REDIS_URL=redis://localhost:6379/0 ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - moderation/ledger.go: Ledger lifecycle
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/warp/moderation-engine/api"
	"github.com/warp/moderation-engine/config"
	"github.com/warp/moderation-engine/events"
	"github.com/warp/moderation-engine/metrics"
	"github.com/warp/moderation-engine/moderation"
	"github.com/warp/moderation-engine/moderation/store"
	"github.com/warp/moderation-engine/store/redis"
	"github.com/warp/moderation-engine/store/sqlite"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()
	cfg.Port = *port
	cfg.DBPath = *dbPath

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg.Validate(log)

	// Redis is shared by the redis store and the event publisher
	var rdb *goredis.Client
	if cfg.StoreDriver == config.DriverRedis || cfg.EventsEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err = redis.Connect(ctx, cfg.RedisURL, log)
		cancel()
		if err != nil {
			if cfg.StoreDriver == config.DriverRedis {
				log.Fatal("failed to connect to redis", zap.Error(err))
			}
			log.Warn("redis unavailable, events go to the log", zap.Error(err))
		} else {
			defer rdb.Close()
		}
	}

	// Initialize store
	var backing moderation.Store
	switch cfg.StoreDriver {
	case config.DriverRedis:
		backing = redis.New(rdb, cfg.RedisSnapshotKey)
	case config.DriverMemory:
		backing = store.NewMemory()
	default:
		db, err := sqlite.New(cfg.DBPath)
		if err != nil {
			log.Fatal("failed to initialize database", zap.Error(err), zap.String("path", cfg.DBPath))
		}
		defer db.Close()
		backing = db
	}

	var publisher events.Publisher = events.NewLogPublisher(log.Named("events"))
	if cfg.EventsEnabled && rdb != nil {
		publisher = events.NewRedisPublisher(rdb, log.Named("events"))
	}

	collector := metrics.NewCollector()

	ledger := moderation.NewLedger(backing,
		moderation.WithLogger(log.Named("ledger")),
		moderation.WithObserver(collector),
		moderation.WithFlushTimings(cfg.FlushInterval, cfg.LowPriorityDelay),
		moderation.WithApprovalGate(moderation.ApprovalGate{Threshold: cfg.BanApprovalThreshold}),
	)
	openCtx, cancelOpen := context.WithTimeout(context.Background(), 30*time.Second)
	err = ledger.Open(openCtx)
	cancelOpen()
	if err != nil {
		log.Fatal("failed to load moderation ledger", zap.Error(err))
	}
	log.Info("ledger ready", zap.Int("actions", ledger.Len()), zap.String("driver", cfg.StoreDriver))

	admins, err := api.LoadAdmins(cfg.AdminsFile)
	if err != nil {
		log.Warn("failed to load admins, every operator request will be rejected",
			zap.String("path", cfg.AdminsFile),
			zap.Error(err),
		)
		admins = api.NewAdminDirectory()
	}

	sweeper := api.NewSweepScheduler(ledger, publisher, log.Named("sweeper"))
	sweeper.Interval = cfg.SweepInterval
	sweeper.Channel = cfg.EventsChannel
	sweeper.Start()

	handler := api.NewHandler(ledger, admins, sweeper, publisher, log.Named("api"))
	handler.Channel = cfg.EventsChannel

	// Create router
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: cfg.CORSOrigins,
		Metrics:     collector,
		AccessLog:   true,
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server starting", zap.Int("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	sweeper.Stop()
	if err := ledger.Close(ctx); err != nil {
		log.Error("final flush failed, recent actions may be lost", zap.Error(err))
	}

	log.Info("server stopped")
}
