package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"pci-pair-trader/internal/alerts"
	"pci-pair-trader/internal/clickhouse"
	"pci-pair-trader/internal/config"
	"pci-pair-trader/internal/market"
	"pci-pair-trader/internal/metrics"
	"pci-pair-trader/internal/pci"
	persist "pci-pair-trader/internal/state"
	"pci-pair-trader/internal/state/sqlite"
	"pci-pair-trader/internal/strategy"
	"pci-pair-trader/internal/timescale"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PriceSource supplies the instrument universe and daily closes.
type PriceSource interface {
	Universe(ctx context.Context, groups []string) ([]market.Instrument, error)
	Closes(ctx context.Context, inst market.Instrument, from, to time.Time) (market.PriceSeries, error)
}

// Sink receives the decomposition and trade records of a run.
type Sink interface {
	EnqueueState(ctx context.Context, rec timescale.StateRecord) error
	EnqueueTrade(ctx context.Context, rec timescale.TradeRecord) error
}

type Notifier interface {
	SendStopLoss(ctx context.Context, trade strategy.Trade) error
	SendRunSummary(ctx context.Context, run alerts.RunSummary) error
}

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     persist.Store
	source    PriceSource
	sink      Sink
	writer    *timescale.Writer
	metrics   *metrics.Metrics
	prom      *metrics.Prometheus
	alerts    Notifier
	estimator *pci.Estimator
	session   *strategy.Session
	runID     string
	closers   []func() error
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	source, err := clickhouse.New(cfg.ClickHouse, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	writer, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		_ = source.Close()
		_ = store.Close()
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		log:       log,
		store:     store,
		source:    source,
		metrics:   metrics.NewNoop(),
		alerts:    alerts.NewTelegram(cfg.Telegram, log),
		estimator: pci.NewEstimator(cfg.Window.MinObservations),
		session:   strategy.NewSession(),
		runID:     uuid.NewString(),
		closers:   []func() error{source.Close, store.Close},
	}
	if writer != nil {
		a.writer = writer
		a.sink = writer
	}
	if cfg.Metrics.EnabledValue() {
		a.prom = metrics.NewPrometheus()
		a.metrics = a.prom.Metrics
	}
	if cached, err := store.Count(context.Background(), persist.ParamsKeyPrefix); err == nil {
		log.Info("state store opened", zap.String("path", cfg.State.SQLitePath), zap.Int("cached_fits", cached))
	}
	return a, nil
}

func (a *App) RunID() string {
	return a.runID
}

// Run executes one full pipeline pass and releases every resource on return.
func (a *App) Run(ctx context.Context) error {
	defer a.close()
	if a.prom != nil {
		stopMetrics := a.serveMetrics(ctx)
		defer stopMetrics()
	}
	if a.writer != nil {
		a.writer.Start(ctx)
	}
	report, err := a.Execute(ctx)
	if err != nil {
		return err
	}
	a.log.Info("run complete",
		zap.String("run_id", report.RunID),
		zap.Int("windows", len(report.Windows)),
		zap.Int("trades", report.Summary.Trades),
		zap.Float64("total_pnl", report.Summary.TotalPnL),
		zap.Float64("sharpe", report.Summary.Sharpe),
	)
	return nil
}

func (a *App) close() {
	if a.writer != nil {
		if err := a.writer.Close(); err != nil {
			a.log.Warn("timescale close failed", zap.Error(err))
		}
		for i := uint64(0); i < a.writer.Failed(); i++ {
			a.metrics.SinkFailures.Inc()
		}
	}
	var errs []error
	for _, fn := range a.closers {
		errs = append(errs, fn())
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("shutdown failed", zap.Error(err))
	}
}
