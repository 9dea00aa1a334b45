package market

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrMisaligned = errors.New("pair series are not date-aligned")

// CandidatePair holds two date-aligned series from the same group.
type CandidatePair struct {
	Group   string
	Symbol1 string
	Symbol2 string
	Series1 PriceSeries
	Series2 PriceSeries
}

func NewCandidatePair(group string, s1, s2 PriceSeries) (CandidatePair, error) {
	pair := CandidatePair{
		Group:   group,
		Symbol1: s1.Symbol,
		Symbol2: s2.Symbol,
		Series1: s1,
		Series2: s2,
	}
	if err := pair.Validate(); err != nil {
		return CandidatePair{}, err
	}
	return pair, nil
}

// PairKey builds the GROUP_SYM1_SYM2 identifier used by every output record.
func PairKey(group, symbol1, symbol2 string) string {
	g := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(group), " ", "_"))
	if g == "" {
		return symbol1 + "_" + symbol2
	}
	return g + "_" + symbol1 + "_" + symbol2
}

func (p CandidatePair) Key() string {
	return PairKey(p.Group, p.Symbol1, p.Symbol2)
}

func (p CandidatePair) Len() int {
	return p.Series1.Len()
}

func (p CandidatePair) Validate() error {
	if err := p.Series1.Validate(); err != nil {
		return err
	}
	if err := p.Series2.Validate(); err != nil {
		return err
	}
	if p.Series1.Len() != p.Series2.Len() {
		return fmt.Errorf("%s: lengths %d and %d: %w", p.Key(), p.Series1.Len(), p.Series2.Len(), ErrMisaligned)
	}
	for i := range p.Series1.Points {
		if !p.Series1.Points[i].Date.Equal(p.Series2.Points[i].Date) {
			return fmt.Errorf("%s: index %d: %w", p.Key(), i, ErrMisaligned)
		}
	}
	return nil
}

// Between slices both legs to from <= date < to.
func (p CandidatePair) Between(from, to time.Time) CandidatePair {
	out := p
	out.Series1 = p.Series1.Between(from, to)
	out.Series2 = p.Series2.Between(from, to)
	return out
}
