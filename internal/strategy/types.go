package strategy

import "time"

type Position string

type Event string

type ExitType string

const (
	PositionFlat  Position = "flat"
	PositionLong  Position = "long"
	PositionShort Position = "short"
)

const (
	EventHold      Event = "HOLD"
	EventOpenLong  Event = "OPEN_LONG"
	EventOpenShort Event = "OPEN_SHORT"
	EventClose     Event = "CLOSE"
	EventStopLoss  Event = "STOP_LOSS"
)

const (
	ExitTarget   ExitType = "target"
	ExitStopLoss ExitType = "stop_loss"
)

// Sign is +1 for long (long leg one, short leg two), -1 for short, 0 when flat.
func (p Position) Sign() float64 {
	switch p {
	case PositionLong:
		return 1
	case PositionShort:
		return -1
	}
	return 0
}

// Bar is one trading day of a pair.
type Bar struct {
	Date   time.Time
	Price1 float64
	Price2 float64
	ZScore float64
}

// Signal is the generator's decision for one bar. Position is the position
// held after the bar.
type Signal struct {
	Date       time.Time
	ZScore     float64
	Event      Event
	Position   Position
	HedgeRatio float64
	Value      float64
}

type Trade struct {
	PairKey     string
	WindowKey   string
	EntryDate   time.Time
	EntryPrice1 float64
	EntryPrice2 float64
	EntryZScore float64
	Position    Position
	ExitDate    time.Time
	ExitPrice1  float64
	ExitPrice2  float64
	ExitZScore  float64
	ExitType    ExitType
	PnL         float64
}
