package market

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var (
	ErrEmptySeries = errors.New("price series is empty")
	ErrZeroAnchor  = errors.New("price series starts at zero")
	ErrNonFinite   = errors.New("price series contains non-finite values")
	ErrUnordered   = errors.New("price series dates are not strictly increasing")
)

type PricePoint struct {
	Date   time.Time
	Close  float64
	Symbol string
}

// Instrument is a tradable symbol together with the group (sector) it is
// paired within.
type Instrument struct {
	Symbol string
	Group  string
}

type PriceSeries struct {
	Symbol string
	Group  string
	Points []PricePoint
}

func (s PriceSeries) Len() int {
	return len(s.Points)
}

func (s PriceSeries) Closes() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Close
	}
	return out
}

func (s PriceSeries) Dates() []time.Time {
	out := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Date
	}
	return out
}

// Between returns the points with from <= date < to. A zero bound is open.
func (s PriceSeries) Between(from, to time.Time) PriceSeries {
	lo := 0
	if !from.IsZero() {
		lo = sort.Search(len(s.Points), func(i int) bool { return !s.Points[i].Date.Before(from) })
	}
	hi := len(s.Points)
	if !to.IsZero() {
		hi = sort.Search(len(s.Points), func(i int) bool { return !s.Points[i].Date.Before(to) })
	}
	if hi < lo {
		hi = lo
	}
	return PriceSeries{Symbol: s.Symbol, Group: s.Group, Points: s.Points[lo:hi]}
}

// Validate checks ordering and finiteness of the series.
func (s PriceSeries) Validate() error {
	if len(s.Points) == 0 {
		return fmt.Errorf("%s: %w", s.Symbol, ErrEmptySeries)
	}
	for i, p := range s.Points {
		if math.IsNaN(p.Close) || math.IsInf(p.Close, 0) {
			return fmt.Errorf("%s at %s: %w", s.Symbol, p.Date.Format(time.DateOnly), ErrNonFinite)
		}
		if i > 0 && !p.Date.After(s.Points[i-1].Date) {
			return fmt.Errorf("%s at %s: %w", s.Symbol, p.Date.Format(time.DateOnly), ErrUnordered)
		}
	}
	return nil
}

// Normalize rebases a close-price sequence to its first value.
func Normalize(values []float64) ([]float64, error) {
	if len(values) == 0 {
		return nil, ErrEmptySeries
	}
	if err := CheckFinite(values); err != nil {
		return nil, err
	}
	anchor := values[0]
	if anchor == 0 {
		return nil, ErrZeroAnchor
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v / anchor
	}
	return out, nil
}

func CheckFinite(values []float64) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrNonFinite
		}
	}
	return nil
}

// Align inner-joins two series on date, keeping only dates present in both.
func Align(a, b PriceSeries) (PriceSeries, PriceSeries) {
	outA := PriceSeries{Symbol: a.Symbol, Group: a.Group}
	outB := PriceSeries{Symbol: b.Symbol, Group: b.Group}
	i, j := 0, 0
	for i < len(a.Points) && j < len(b.Points) {
		da, db := a.Points[i].Date, b.Points[j].Date
		switch {
		case da.Equal(db):
			outA.Points = append(outA.Points, a.Points[i])
			outB.Points = append(outB.Points, b.Points[j])
			i++
			j++
		case da.Before(db):
			i++
		default:
			j++
		}
	}
	return outA, outB
}
