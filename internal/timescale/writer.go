package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pci-pair-trader/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

const (
	statesTable = "pci_states"
	tradesTable = "pci_trades"
)

type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Close() error
}

// Writer appends state and trade records to TimescaleDB from a background
// goroutine. Enqueueing blocks while the queue is full; records are never
// dropped. Close drains whatever is queued before closing the connection.
type Writer struct {
	db        conn
	log       *zap.Logger
	schema    string
	states    chan StateRecord
	trades    chan TradeRecord
	started   atomic.Bool
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	written   atomic.Uint64
	failed    atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	writer := newWriter(db, log, cfg.Schema, cfg.QueueSize)
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func newWriter(db conn, log *zap.Logger, schema string, queueSize int) *Writer {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "public"
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{
		db:     db,
		log:    log,
		schema: schema,
		states: make(chan StateRecord, queueSize),
		trades: make(chan TradeRecord, queueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

// Close stops the writer after draining queued records. Callers must stop
// enqueueing first.
func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	var err error
	w.closeOnce.Do(func() {
		if w.started.Load() {
			close(w.stop)
			<-w.done
		}
		if failed := w.failed.Load(); failed > 0 {
			w.log.Warn("timescale writes failed", zap.Uint64("failed", failed), zap.Uint64("written", w.written.Load()))
		}
		err = w.db.Close()
	})
	return err
}

func (w *Writer) EnqueueState(ctx context.Context, rec StateRecord) error {
	if w == nil {
		return nil
	}
	select {
	case w.states <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) EnqueueTrade(ctx context.Context, rec TradeRecord) error {
	if w == nil {
		return nil
	}
	select {
	case w.trades <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Written reports how many records were stored successfully.
func (w *Writer) Written() uint64 {
	if w == nil {
		return 0
	}
	return w.written.Load()
}

// Failed reports how many records could not be stored.
func (w *Writer) Failed() uint64 {
	if w == nil {
		return 0
	}
	return w.failed.Load()
}

func (w *Writer) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			w.drain(context.WithoutCancel(ctx))
			return
		case rec := <-w.states:
			w.writeState(ctx, rec)
		case rec := <-w.trades:
			w.writeTrade(ctx, rec)
		}
	}
}

func (w *Writer) drain(ctx context.Context) {
	for {
		select {
		case rec := <-w.states:
			w.writeState(ctx, rec)
		case rec := <-w.trades:
			w.writeTrade(ctx, rec)
		default:
			return
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		pair_key TEXT NOT NULL,
		window_key TEXT NOT NULL,
		run_id TEXT NOT NULL,
		beta DOUBLE PRECISION NOT NULL,
		rho DOUBLE PRECISION NOT NULL,
		sigma_m DOUBLE PRECISION NOT NULL,
		sigma_r DOUBLE PRECISION NOT NULL,
		mt DOUBLE PRECISION NOT NULL,
		rt DOUBLE PRECISION NOT NULL,
		zscore DOUBLE PRECISION NOT NULL,
		r2_mr DOUBLE PRECISION NOT NULL,
		lr_score DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (ts, pair_key, window_key)
	)`, w.table(statesTable))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		entry_date TIMESTAMPTZ NOT NULL,
		pair_key TEXT NOT NULL,
		window_key TEXT NOT NULL,
		run_id TEXT NOT NULL,
		entry_price1 DOUBLE PRECISION NOT NULL,
		entry_price2 DOUBLE PRECISION NOT NULL,
		entry_zscore DOUBLE PRECISION NOT NULL,
		position_type TEXT NOT NULL,
		exit_date TIMESTAMPTZ NOT NULL,
		exit_price1 DOUBLE PRECISION NOT NULL,
		exit_price2 DOUBLE PRECISION NOT NULL,
		exit_zscore DOUBLE PRECISION NOT NULL,
		exit_type TEXT NOT NULL,
		pnl DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (entry_date, pair_key, window_key)
	)`, w.table(tradesTable))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(statesTable))); err != nil {
		w.log.Warn("timescale pci_states hypertable create failed", zap.Error(err))
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'entry_date', if_not_exists => TRUE)", w.table(tradesTable))); err != nil {
		w.log.Warn("timescale pci_trades hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeState(ctx context.Context, rec StateRecord) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if _, err := w.db.ExecContext(ctx, w.stateUpsert(),
		rec.Date,
		rec.PairKey,
		rec.WindowKey,
		rec.RunID,
		rec.Beta,
		rec.Rho,
		rec.SigmaM,
		rec.SigmaR,
		rec.Mt,
		rec.Rt,
		rec.ZScore,
		rec.R2MR,
		rec.LRScore,
	); err != nil {
		if w.failed.Add(1) == 1 {
			w.log.Warn("timescale state upsert failed", zap.String("pair", rec.PairKey), zap.Error(err))
		}
		return
	}
	w.written.Add(1)
}

func (w *Writer) writeTrade(ctx context.Context, rec TradeRecord) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if _, err := w.db.ExecContext(ctx, w.tradeUpsert(),
		rec.EntryDate,
		rec.PairKey,
		rec.WindowKey,
		rec.RunID,
		rec.EntryPrice1,
		rec.EntryPrice2,
		rec.EntryZScore,
		rec.PositionType,
		rec.ExitDate,
		rec.ExitPrice1,
		rec.ExitPrice2,
		rec.ExitZScore,
		rec.ExitType,
		rec.PnL,
	); err != nil {
		if w.failed.Add(1) == 1 {
			w.log.Warn("timescale trade upsert failed", zap.String("pair", rec.PairKey), zap.Error(err))
		}
		return
	}
	w.written.Add(1)
}

func (w *Writer) stateUpsert() string {
	return fmt.Sprintf(`INSERT INTO %s (
		ts, pair_key, window_key, run_id, beta, rho, sigma_m, sigma_r, mt, rt, zscore, r2_mr, lr_score
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
	)
	ON CONFLICT (ts, pair_key, window_key) DO UPDATE SET
		run_id = EXCLUDED.run_id,
		beta = EXCLUDED.beta,
		rho = EXCLUDED.rho,
		sigma_m = EXCLUDED.sigma_m,
		sigma_r = EXCLUDED.sigma_r,
		mt = EXCLUDED.mt,
		rt = EXCLUDED.rt,
		zscore = EXCLUDED.zscore,
		r2_mr = EXCLUDED.r2_mr,
		lr_score = EXCLUDED.lr_score`, w.table(statesTable))
}

func (w *Writer) tradeUpsert() string {
	return fmt.Sprintf(`INSERT INTO %s (
		entry_date, pair_key, window_key, run_id, entry_price1, entry_price2, entry_zscore,
		position_type, exit_date, exit_price1, exit_price2, exit_zscore, exit_type, pnl
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
	)
	ON CONFLICT (entry_date, pair_key, window_key) DO UPDATE SET
		run_id = EXCLUDED.run_id,
		entry_price1 = EXCLUDED.entry_price1,
		entry_price2 = EXCLUDED.entry_price2,
		entry_zscore = EXCLUDED.entry_zscore,
		position_type = EXCLUDED.position_type,
		exit_date = EXCLUDED.exit_date,
		exit_price1 = EXCLUDED.exit_price1,
		exit_price2 = EXCLUDED.exit_price2,
		exit_zscore = EXCLUDED.exit_zscore,
		exit_type = EXCLUDED.exit_type,
		pnl = EXCLUDED.pnl`, w.table(tradesTable))
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
