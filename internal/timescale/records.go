package timescale

import "time"

// StateRecord is one date of a pair's decomposition.
type StateRecord struct {
	RunID     string
	PairKey   string
	WindowKey string
	Date      time.Time
	Beta      float64
	Rho       float64
	SigmaM    float64
	SigmaR    float64
	Mt        float64
	Rt        float64
	ZScore    float64
	R2MR      float64
	LRScore   float64
}

// TradeRecord is one completed trade.
type TradeRecord struct {
	RunID        string
	PairKey      string
	WindowKey    string
	EntryDate    time.Time
	EntryPrice1  float64
	EntryPrice2  float64
	EntryZScore  float64
	PositionType string
	ExitDate     time.Time
	ExitPrice1   float64
	ExitPrice2   float64
	ExitZScore   float64
	ExitType     string
	PnL          float64
}
