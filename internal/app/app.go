package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dlmm-lp-bot/internal/alerts"
	"dlmm-lp-bot/internal/config"
	"dlmm-lp-bot/internal/dlmm"
	"dlmm-lp-bot/internal/feed"
	"dlmm-lp-bot/internal/jupiter"
	"dlmm-lp-bot/internal/metrics"
	"dlmm-lp-bot/internal/solana"
	"dlmm-lp-bot/internal/state/sqlite"
	"dlmm-lp-bot/internal/strategy"
	"dlmm-lp-bot/internal/telemetry"

	"go.uber.org/zap"
)

type App struct {
	cfg        *config.Config
	log        *zap.Logger
	store      *sqlite.Store
	signer     solana.Keypair
	ledger     *solana.Client
	swapper    *jupiter.Client
	sink       telemetry.Sink
	pgWriter   *telemetry.PostgresWriter
	alerts     *alerts.Slack
	metrics    *metrics.Metrics
	promServer *http.Server
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	secretKey := strings.TrimSpace(os.Getenv("SECRET_KEY"))
	if secretKey == "" {
		return nil, errors.New("SECRET_KEY is required")
	}
	signer, err := solana.ParseSecretKey(secretKey)
	if err != nil {
		return nil, fmt.Errorf("parse SECRET_KEY: %w", err)
	}

	var sinks telemetry.Multi
	if cfg.Telemetry.Enabled {
		sinks = append(sinks, telemetry.NewHTTPSink(cfg.Telemetry, log))
	}
	pgWriter, err := telemetry.NewPostgresWriter(cfg.Telemetry.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres telemetry: %w", err)
	}
	if pgWriter != nil {
		sinks = append(sinks, pgWriter)
	}
	var sink telemetry.Sink
	if len(sinks) > 0 {
		sink = sinks
	}

	m := metrics.NewNoop()
	var promServer *http.Server
	if cfg.Metrics.Enabled {
		prom := metrics.NewPrometheus()
		m = prom.Metrics
		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.Handler())
		promServer = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
	}

	return &App{
		cfg:        cfg,
		log:        log,
		store:      store,
		signer:     signer,
		ledger:     solana.New(cfg.RPC, log),
		swapper:    jupiter.New(cfg.Swap, log),
		sink:       sink,
		pgWriter:   pgWriter,
		alerts:     alerts.NewSlack(cfg.Alerts, log),
		metrics:    m,
		promServer: promServer,
	}, nil
}

// Run builds one strategy per configured pool and pumps the price stream into
// them until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	defer a.pgWriter.Close()
	a.pgWriter.Start(ctx)

	if a.promServer != nil {
		go func() {
			if err := a.promServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.log.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = a.promServer.Shutdown(shutdownCtx)
		}()
	}

	dispatcher := feed.NewDispatcher(a.log)
	for _, poolCfg := range a.cfg.Pools {
		pool, err := dlmm.NewPool(ctx, a.cfg.Pool, poolCfg.Address, a.log)
		if err != nil {
			return fmt.Errorf("init pool %s: %w", poolCfg.Pair, err)
		}
		meta := pool.Meta()
		a.log.Info("pool initialized",
			zap.String("pair", poolCfg.Pair),
			zap.String("address", poolCfg.Address),
			zap.Int("bin_step", meta.BinStep))
		dispatcher.Register(strategy.New(poolCfg, strategy.Deps{
			Pool:      pool,
			Ledger:    a.ledger,
			Swapper:   a.swapper,
			Signer:    a.signer,
			Telemetry: a.sink,
			Alerts:    a.alerts,
			Metrics:   a.metrics,
			Store:     a.store,
			Log:       a.log,
		}))
	}

	a.log.Info("starting price stream",
		zap.String("wallet", a.signer.PublicKey()),
		zap.Int("pools", len(a.cfg.Pools)))
	stream := feed.NewStream(a.cfg.Feed, dispatcher, a.log)
	return stream.Run(ctx)
}
