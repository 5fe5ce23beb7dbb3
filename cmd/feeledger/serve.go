package main

import (
	"FeeLedger/internal/core"
	"FeeLedger/internal/ingestion"
	"FeeLedger/internal/observability"
	"FeeLedger/internal/persistence"
	"FeeLedger/internal/projection"
	"FeeLedger/internal/query"
	"FeeLedger/internal/server"
	"FeeLedger/internal/upgrade"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// serve runs the ledger until ctx is cancelled or a component fails.
func serve(ctx context.Context, cfg Config, logger zerolog.Logger) error {
	genesis, err := cfg.Genesis.CoreGenesis()
	if err != nil {
		return fmt.Errorf("genesis: %w", err)
	}

	db, err := openDB(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info().Msg("Postgres connected")

	if err := persistence.NewMigrator(db, persistence.EmbeddedMigrations(), logger).Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()
	snapMgr := persistence.NewSnapshotManager(db)
	dbChecker := persistence.NewPostgresIdempotencyChecker(db)

	// --- Channels ---
	// persist blocks (backpressure), projection drops
	persistChan := make(chan core.CoreOutput, cfg.PersistChanSize)
	projectionChan := make(chan core.CoreOutput, cfg.ProjectionChanSize)
	publishChan := make(chan ingestion.PublishableLog, cfg.PublishChanSize)
	rawChan := make(chan ingestion.RawEvent, 4096)
	submitChan := make(chan ingestion.Submission, 256)

	// --- Deterministic core + recovery ---
	c, err := core.NewDeterministicCore(1, genesis, persistChan, projectionChan, dbChecker, metrics,
		logger.With().Str("component", "core").Logger())
	if err != nil {
		return err
	}
	rec := &recovery{
		snapshots: snapMgr,
		checker:   dbChecker,
		batchSize: cfg.ReplayBatchSize,
		warmKeys:  cfg.LRUWarmKeys,
		metrics:   metrics,
		logger:    logger,
	}
	replayed, err := rec.run(ctx, c)
	if err != nil {
		return fmt.Errorf("recovery: %w", err)
	}
	logger.Info().Int("replayed", replayed).Int64("next_sequence", c.GetSequence()).Msg("recovery complete")

	dispatcher := ingestion.NewDispatcher(c, rawChan, submitChan, metrics, logger.With().Str("component", "dispatcher").Logger())

	// --- Projections start from the recovered state ---
	projector := projection.NewProjectionWorker(db, projectionChan, func(ctx context.Context) (int64, *upgrade.State, error) {
		var (
			seq   int64
			state *upgrade.State
		)
		err := dispatcher.Exec(ctx, func() { seq, state = c.LedgerState() })
		return seq, state, err
	}, metrics, logger.With().Str("component", "projection").Logger())
	seq, state := c.LedgerState()
	if err := projector.Rebuild(ctx, seq, state); err != nil {
		return fmt.Errorf("rebuild projections: %w", err)
	}

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL, logger)
	if err != nil {
		return err
	}
	defer nc.Close()
	if err := ingestion.EnsureStreams(ctx, js, logger); err != nil {
		return err
	}
	if err := ingestion.EnsureOutboundStream(ctx, js, logger); err != nil {
		return err
	}
	subscriber := ingestion.NewNATSSubscriber(js, rawChan, logger.With().Str("component", "nats").Logger())
	publisher := ingestion.NewOutboundPublisher(js, publishChan, logger.With().Str("component", "publisher").Logger())

	// --- Persistence releases logs to the publisher once durable ---
	persistWorker := persistence.NewPersistenceWorker(db, persistChan, cfg.PersistBatchSize, cfg.PersistFlushTimeout, metrics,
		logger.With().Str("component", "persistence").Logger())
	persistWorker.OnFlushed(func(batch []core.CoreOutput) {
		for _, out := range batch {
			for _, l := range ingestion.LogsFromOutput(out) {
				select {
				case publishChan <- l:
				default:
					metrics.PublishDrops.Inc()
				}
			}
		}
	})

	snaps := &snapshotter{core: c, dispatcher: dispatcher, store: snapMgr, metrics: metrics, logger: logger}
	snaps.lastSeq.Store(c.GetSequence() - 1)

	// --- Servers ---
	queries := query.NewQueryService(db, query.Deployment{Token: genesis.Collector.Token}, metrics)
	ingest := ingestion.NewGRPCIngestService(submitChan)
	grpcServer := server.NewGRPCServer(cfg.GRPCAddr, cfg.HTTPAddr, &server.ServerDeps{
		Ledger:        server.NewLedgerService(ingest, queries, snaps.Take),
		HealthChecker: healthChecker,
		Logger:        logger.With().Str("component", "server").Logger(),
	})

	// --- Goroutines ---
	g, gctx := errgroup.WithContext(ctx)

	// Persistence drains whatever the core committed, even after shutdown
	// starts, bounded by the shutdown timeout.
	drainCtx, cancelDrain := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelDrain()
	go func() {
		<-gctx.Done()
		select {
		case <-time.After(cfg.ShutdownTimeout):
			cancelDrain()
		case <-drainCtx.Done():
		}
	}()

	g.Go(func() error {
		defer close(projectionChan)
		defer close(persistChan)
		return ignoreCanceled(dispatcher.Run(gctx))
	})
	g.Go(func() error {
		defer cancelDrain()
		return ignoreCanceled(persistWorker.Run(drainCtx))
	})
	g.Go(func() error { return ignoreCanceled(projector.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(publisher.Run(gctx)) })
	g.Go(func() error {
		return ignoreCanceled(snaps.Run(gctx, cfg.SnapshotInterval, cfg.SnapshotCheckPeriod))
	})
	g.Go(func() error { return grpcServer.StartGRPC(gctx) })
	g.Go(func() error { return grpcServer.StartHTTPGateway(gctx) })
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.MetricsAddr, logger) })
	}
	g.Go(func() error {
		watchDependencies(gctx, db, nc, healthChecker, grpcServer)
		return nil
	})

	if err := subscriber.Subscribe(gctx, ingestion.DefaultSubjects()); err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	defer subscriber.Stop()

	healthChecker.SetReady(true)
	grpcServer.SetServing(true)
	logger.Info().
		Int64("next_sequence", c.GetSequence()).
		Str("grpc", cfg.GRPCAddr).
		Str("http", cfg.HTTPAddr).
		Msg("FeeLedger ready")

	err = g.Wait()
	healthChecker.SetReady(false)

	// every worker has stopped: the core is quiescent and fully persisted
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if seq, snapErr := snaps.TakeFinal(finalCtx); snapErr != nil {
		logger.Error().Err(snapErr).Msg("final snapshot failed")
	} else if seq > 0 {
		logger.Info().Int64("sequence", seq).Msg("final snapshot saved")
	}

	logger.Info().Msg("FeeLedger shutdown complete")
	return err
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

// serveMetrics exposes /metrics on its own listener for scrapers that do
// not reach the gateway.
func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// watchDependencies keeps readiness in line with Postgres and NATS.
func watchDependencies(ctx context.Context, db *sql.DB, nc *nats.Conn, hc *observability.HealthChecker, srv *server.GRPCServer) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		hc.SetComponent("postgres", db.PingContext(pingCtx) == nil)
		cancel()
		hc.SetComponent("nats", nc.IsConnected())
		srv.SetServing(hc.IsReady())

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
