package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	cfhttp "github.com/Strob0t/collectibles/internal/adapter/http"
	"github.com/Strob0t/collectibles/internal/adapter/memory"
	"github.com/Strob0t/collectibles/internal/adapter/mongostore"
	cfnats "github.com/Strob0t/collectibles/internal/adapter/nats"
	"github.com/Strob0t/collectibles/internal/adapter/natskv"
	cfotel "github.com/Strob0t/collectibles/internal/adapter/otel"
	"github.com/Strob0t/collectibles/internal/adapter/postgres"
	"github.com/Strob0t/collectibles/internal/adapter/ristretto"
	"github.com/Strob0t/collectibles/internal/adapter/tiered"
	"github.com/Strob0t/collectibles/internal/adapter/ws"
	"github.com/Strob0t/collectibles/internal/config"
	"github.com/Strob0t/collectibles/internal/logger"
	"github.com/Strob0t/collectibles/internal/middleware"
	"github.com/Strob0t/collectibles/internal/port/cache"
	"github.com/Strob0t/collectibles/internal/port/database"
	"github.com/Strob0t/collectibles/internal/resilience"
	"github.com/Strob0t/collectibles/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// The logger may be async and is closed by the time run returns.
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "collectibles: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"backend", cfg.Catalog.Backend,
		"nats", cfg.NATS.URL != "",
		"log_level", cfg.Logging.Level,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	shutdownOTEL, err := cfotel.Setup(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	metrics, err := cfotel.NewMetrics(nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var queue *cfnats.Queue
	if cfg.NATS.URL != "" {
		queue, err = cfnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() {
			if err := queue.Drain(); err != nil {
				slog.Warn("nats drain", "error", err)
			}
		}()
	}

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer l1.Close()

	var catalogCache cache.Cache = l1
	if queue != nil {
		kv, err := queue.KeyValue(ctx, cfg.NATS.KVBucket, cfg.Cache.TTL)
		if err != nil {
			return fmt.Errorf("nats kv: %w", err)
		}
		catalogCache = tiered.New(l1, natskv.New(kv), cfg.Cache.TTL)
	}

	// --- Live price updates ---

	registry := ws.NewRegistry(metrics)
	publisher := ws.NewPublisher(registry, ws.PublisherConfig{
		SendTimeout: cfg.Broadcast.SendTimeout,
		QueueSize:   cfg.Broadcast.QueueSize,
		MaxParallel: cfg.Broadcast.MaxParallel,
	}, metrics)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		publisher.Run(workerCtx)
	}()
	defer func() {
		stopWorker()
		<-workerDone
	}()

	// --- Services ---

	catalogSvc := service.NewCatalogService(store, publisher, metrics)
	catalogSvc.SetCache(catalogCache, cfg.Cache.TTL)

	handlers := &cfhttp.Handlers{
		Catalog:  catalogSvc,
		Sessions: registry,
	}
	if queue != nil {
		breaker := resilience.NewBreaker("nats", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
		catalogSvc.SetQueue(queue, breaker, uuid.NewString())
		handlers.Queue = queue
		handlers.Breaker = breaker
	}

	cancelChanges, err := catalogSvc.StartChangeSubscriber(ctx)
	if err != nil {
		return fmt.Errorf("change subscriber: %w", err)
	}
	defer cancelChanges()

	wsServer := ws.NewServer(
		ws.NewConnHandler(registry, cfg.Broadcast.MaxConnections),
		publisher,
		catalogSvc,
		ws.ServerConfig{
			IdleTimeout:       cfg.Broadcast.IdleTimeout,
			SnapshotOnConnect: cfg.Broadcast.SnapshotOnConnect,
		},
	)

	// --- HTTP ---

	limiter := middleware.NewRateLimiterFromConfig(cfg.Rate)
	if limiter != nil {
		stopCleanup := limiter.StartCleanup(time.Minute, 10*time.Minute)
		defer stopCleanup()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(cfhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cfotel.HTTPMiddleware(cfg.OTEL.ServiceName, cfg.Server.WSPath))
	r.Use(cfhttp.SecurityHeaders)
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))

	cfhttp.MountRoutes(r, handlers, limiter, cfg.Server.WSPath, wsServer.HandleWS)

	// WebSocket sessions derive from baseCtx; hijacked connections are not
	// closed by Shutdown.
	baseCtx, closeSessions := context.WithCancel(context.Background())
	defer closeSessions()

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv.RegisterOnShutdown(closeSessions)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr, "ws_path", cfg.Server.WSPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down server", "sessions", registry.Len())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore returns the configured item store and its cleanup function.
func openStore(ctx context.Context, cfg *config.Config) (database.ItemStore, func(), error) {
	switch cfg.Catalog.Backend {
	case config.BackendPostgres:
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		slog.Info("migrations applied")

		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		slog.Info("postgres connected", "max_conns", cfg.Postgres.MaxConns)
		return postgres.NewStore(pool), pool.Close, nil

	case config.BackendMongo:
		client, err := mongostore.Connect(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		disconnect := func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(dctx); err != nil {
				slog.Warn("mongo disconnect", "error", err)
			}
		}
		db := client.Database(cfg.Mongo.Database)
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			disconnect()
			return nil, nil, err
		}
		slog.Info("mongo connected", "database", cfg.Mongo.Database)
		return mongostore.NewStore(db), disconnect, nil

	default:
		store := memory.NewStore()
		if cfg.Catalog.Seed {
			n, err := store.Seed(ctx, memory.DemoItems)
			if err != nil {
				return nil, nil, fmt.Errorf("seed catalog: %w", err)
			}
			slog.Info("catalog seeded", "items", n)
		}
		return store, func() {}, nil
	}
}
