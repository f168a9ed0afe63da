package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"seanav/internal/platform/config"
	"seanav/internal/platform/httpserver"
	"seanav/internal/platform/logger"
	platformmetrics "seanav/internal/platform/metrics"
	"seanav/internal/platform/middleware"
	"seanav/internal/platform/redis"
	"seanav/internal/tracking/handler"
	trackingmetrics "seanav/internal/tracking/metrics"
	"seanav/internal/tracking/notify"
	"seanav/internal/tracking/reconcile"
	"seanav/internal/tracking/seaport"
	"seanav/internal/tracking/service"
	"seanav/internal/tracking/stats"
	"seanav/internal/tracking/store"
	"seanav/pkg/platform/httputil"
	"seanav/pkg/platform/middleware/requesttime"
)

// main wires the stores, the reconciliation core and the notification
// fan-out, then serves HTTP until SIGINT or SIGTERM.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

type infra struct {
	store  store.Store
	tx     store.TxRunner
	health func(ctx context.Context) error
	close  func()
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	loc, err := time.LoadLocation(cfg.Tracking.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	inf, err := buildInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer inf.close()

	httpMetrics := platformmetrics.New()
	m := trackingmetrics.New()

	queue := notify.NewQueue(cfg.Tracking.NotifyQueueSize,
		notify.WithQueueLogger(log),
		notify.WithQueueMetrics(m),
	)
	hub := notify.NewHub(log)
	sinks := []notify.Sink{hub}

	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := notify.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return fmt.Errorf("kafka sink: %w", err)
		}
		defer kafka.Close()
		if err := kafka.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			return fmt.Errorf("ensure kafka topic: %w", err)
		}
		sinks = append(sinks, kafka)
		log.Info("kafka notifications enabled", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}

	resolver := seaport.New(inf.store,
		seaport.WithAmbiguityPolicy(seaport.Policy(cfg.Tracking.SeaportAmbiguity)),
		seaport.WithLogger(log),
	)
	engine := reconcile.New(inf.tx,
		reconcile.WithLogger(log),
		reconcile.WithMetrics(m),
		reconcile.WithMaxAttempts(cfg.Tracking.ReconcileMaxAttempts),
		reconcile.WithBackoff(cfg.Tracking.ReconcileBackoff),
	)
	aggregator := stats.New(inf.store,
		stats.WithLocation(loc),
		stats.WithLogger(log),
		stats.WithMetrics(m),
	)
	svc := service.New(inf.store, inf.tx,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithNotifier(queue),
		service.WithEngine(engine),
		service.WithResolver(resolver),
		service.WithAggregator(aggregator),
		service.WithLocation(loc),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log, httpMetrics))

	handler.New(svc, log).Register(r)
	r.Get("/ws", hub.ServeWS)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := inf.health(req.Context()); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	srv := httpserver.New(cfg.Server.Addr, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(hub.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(notify.NewWorker(queue.Inbox(), log, sinks...).Run(gctx)) })
	g.Go(func() error {
		log.Info("starting seanav", "addr", cfg.Server.Addr, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func buildInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	inf := &infra{
		health: func(context.Context) error { return nil },
		close:  func() {},
	}

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		db, err := sql.Open("pgx", cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		if err := store.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		pg := store.NewPostgres(db)
		inf.store = pg
		inf.tx = store.NewPostgresTx(db, pg)
		inf.health = db.PingContext
		inf.close = func() { _ = db.Close() }
	default:
		mem := store.NewInMemory()
		inf.store = mem
		inf.tx = store.NewShardedTx(mem)
	}

	if cfg.Storage.SeedDemo {
		demo, err := store.SeedDemo(ctx, inf.store)
		if err != nil {
			inf.close()
			return nil, err
		}
		log.Info("demo data seeded",
			"company_id", demo.Company.ID.String(),
			"itinerary_id", demo.Itinerary.ID.String(),
			"itinerary_ref", demo.Itinerary.RefID,
		)
	}

	rc, err := redis.New(cfg.Redis)
	if err != nil {
		inf.close()
		return nil, err
	}
	if rc != nil {
		inf.tx = store.NewRedisLockRunner(rc.Client, inf.tx, cfg.Redis.LockTTL)
		closeStore, dbHealth := inf.close, inf.health
		inf.close = func() {
			_ = rc.Close()
			closeStore()
		}
		inf.health = func(ctx context.Context) error {
			if err := rc.Health(ctx); err != nil {
				return err
			}
			return dbHealth(ctx)
		}
		log.Info("redis person lock enabled")
	}
	return inf, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
