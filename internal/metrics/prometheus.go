package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "pci_pair_trader"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type promGauge struct {
	gauge prometheus.Gauge
}

func (p promGauge) Set(v float64) {
	p.gauge.Set(v)
}

type Prometheus struct {
	Metrics *Metrics

	registry      *prometheus.Registry
	pairsScored   prometheus.Counter
	pairsRejected prometheus.Counter
	pairsSelected prometheus.Counter
	cacheHits     prometheus.Counter
	tradesOpened  prometheus.Counter
	tradesClosed  prometheus.Counter
	stopLosses    prometheus.Counter
	sinkFailures  prometheus.Counter
	windowsRun    prometheus.Counter
	lastRunPnL    prometheus.Gauge
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	pairsScored := newCounter("pairs_scored_total", "Total number of candidate pairs fitted.")
	pairsRejected := newCounter("pairs_rejected_total", "Total number of candidate pairs that failed to fit.")
	pairsSelected := newCounter("pairs_selected_total", "Total number of pairs selected for trading.")
	cacheHits := newCounter("fit_cache_hits_total", "Total number of fits served from the parameter cache.")
	tradesOpened := newCounter("trades_opened_total", "Total number of positions opened.")
	tradesClosed := newCounter("trades_closed_total", "Total number of positions closed.")
	stopLosses := newCounter("stop_losses_total", "Total number of stop-loss exits.")
	sinkFailures := newCounter("sink_failures_total", "Total number of records the sink failed to persist.")
	windowsRun := newCounter("windows_run_total", "Total number of formation/trading windows processed.")
	lastRunPnL := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "last_run_pnl",
		Help:      "Total return-ratio PnL of the last completed run.",
	})

	registry.MustRegister(pairsScored, pairsRejected, pairsSelected, cacheHits, tradesOpened,
		tradesClosed, stopLosses, sinkFailures, windowsRun, lastRunPnL)

	m := &Metrics{
		PairsScored:   promCounter{pairsScored},
		PairsRejected: promCounter{pairsRejected},
		PairsSelected: promCounter{pairsSelected},
		CacheHits:     promCounter{cacheHits},
		TradesOpened:  promCounter{tradesOpened},
		TradesClosed:  promCounter{tradesClosed},
		StopLosses:    promCounter{stopLosses},
		SinkFailures:  promCounter{sinkFailures},
		WindowsRun:    promCounter{windowsRun},
		LastRunPnL:    promGauge{lastRunPnL},
	}

	return &Prometheus{
		Metrics:       m,
		registry:      registry,
		pairsScored:   pairsScored,
		pairsRejected: pairsRejected,
		pairsSelected: pairsSelected,
		cacheHits:     cacheHits,
		tradesOpened:  tradesOpened,
		tradesClosed:  tradesClosed,
		stopLosses:    stopLosses,
		sinkFailures:  sinkFailures,
		windowsRun:    windowsRun,
		lastRunPnL:    lastRunPnL,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
