package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"dlmm-lp-bot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// PostgresWriter mirrors events into a postgres table through a buffered
// queue. A full queue drops events rather than blocking the strategy.
type PostgresWriter struct {
	db      *sql.DB
	log     *zap.Logger
	schema  string
	events  chan Event
	started atomic.Bool
	dropped atomic.Uint64
}

func NewPostgresWriter(cfg config.PostgresConfig, log *zap.Logger) (*PostgresWriter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	writer := &PostgresWriter{
		db:     db,
		log:    log,
		schema: schema,
		events: make(chan Event, 256),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *PostgresWriter) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *PostgresWriter) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *PostgresWriter) LogEvent(ctx context.Context, event Event) error {
	if w == nil {
		return nil
	}
	_ = ctx
	select {
	case w.events <- event:
		return nil
	default:
		if w.dropped.Add(1) == 1 && w.log != nil {
			w.log.Warn("telemetry event queue full")
		}
		return nil
	}
}

func (w *PostgresWriter) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-w.events:
			w.write(ctx, event)
		}
	}
}

func (w *PostgresWriter) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("postgres db not initialized")
	}
	if w.schema != "public" {
		if _, err := w.db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	_, err := w.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL DEFAULT now(),
		event_type TEXT NOT NULL,
		payload JSONB NOT NULL
	)`, w.table("strategy_events")))
	return err
}

func (w *PostgresWriter) write(ctx context.Context, event Event) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		if w.log != nil {
			w.log.Warn("telemetry event marshal failed", zap.Error(err))
		}
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (event_type, payload) VALUES ($1, $2)`, w.table("strategy_events"))
	if _, err := w.db.ExecContext(writeCtx, query, string(event.Type), payload); err != nil {
		if w.log != nil {
			w.log.Warn("telemetry event write failed", zap.Error(err))
		}
	}
}

func (w *PostgresWriter) table(name string) string {
	return w.schema + "." + name
}
