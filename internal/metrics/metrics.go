package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Set(float64)
}

type Metrics struct {
	PairsScored   Counter
	PairsRejected Counter
	PairsSelected Counter
	CacheHits     Counter
	TradesOpened  Counter
	TradesClosed  Counter
	StopLosses    Counter
	SinkFailures  Counter
	WindowsRun    Counter
	LastRunPnL    Gauge
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		PairsScored:   n,
		PairsRejected: n,
		PairsSelected: n,
		CacheHits:     n,
		TradesOpened:  n,
		TradesClosed:  n,
		StopLosses:    n,
		SinkFailures:  n,
		WindowsRun:    n,
		LastRunPnL:    noopGauge{},
	}
}
