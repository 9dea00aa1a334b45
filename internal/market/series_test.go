package market

import (
	"errors"
	"math"
	"testing"
	"time"
)

func day(offset int) time.Time {
	return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func series(symbol string, closes ...float64) PriceSeries {
	s := PriceSeries{Symbol: symbol, Group: "Energy"}
	for i, c := range closes {
		s.Points = append(s.Points, PricePoint{Date: day(i), Close: c, Symbol: symbol})
	}
	return s
}

func TestNormalizeStartsAtOne(t *testing.T) {
	got, err := Normalize([]float64{50, 55, 45})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got[0] != 1.0 {
		t.Fatalf("expected first value 1.0, got %v", got[0])
	}
	if math.Abs(got[1]-1.1) > 1e-12 || math.Abs(got[2]-0.9) > 1e-12 {
		t.Fatalf("unexpected normalized values %v", got)
	}
}

func TestNormalizeRejectsZeroAnchor(t *testing.T) {
	if _, err := Normalize([]float64{0, 1}); !errors.Is(err, ErrZeroAnchor) {
		t.Fatalf("expected ErrZeroAnchor, got %v", err)
	}
}

func TestNormalizeRejectsEmpty(t *testing.T) {
	if _, err := Normalize(nil); !errors.Is(err, ErrEmptySeries) {
		t.Fatalf("expected ErrEmptySeries, got %v", err)
	}
}

func TestNormalizeRejectsNonFinite(t *testing.T) {
	if _, err := Normalize([]float64{1, math.NaN()}); !errors.Is(err, ErrNonFinite) {
		t.Fatalf("expected ErrNonFinite, got %v", err)
	}
	if _, err := Normalize([]float64{1, math.Inf(1)}); !errors.Is(err, ErrNonFinite) {
		t.Fatalf("expected ErrNonFinite for inf, got %v", err)
	}
}

func TestAlignKeepsCommonDates(t *testing.T) {
	a := series("AAA", 1, 2, 3, 4)
	b := PriceSeries{Symbol: "BBB", Points: []PricePoint{
		{Date: day(1), Close: 10},
		{Date: day(3), Close: 30},
		{Date: day(5), Close: 50},
	}}
	gotA, gotB := Align(a, b)
	if gotA.Len() != 2 || gotB.Len() != 2 {
		t.Fatalf("expected 2 common dates, got %d and %d", gotA.Len(), gotB.Len())
	}
	if gotA.Points[0].Close != 2 || gotB.Points[1].Close != 30 {
		t.Fatalf("unexpected aligned values %v %v", gotA.Points, gotB.Points)
	}
}

func TestCandidatePairRejectsLengthMismatch(t *testing.T) {
	_, err := NewCandidatePair("Energy", series("AAA", 1, 2, 3), series("BBB", 1, 2))
	if !errors.Is(err, ErrMisaligned) {
		t.Fatalf("expected ErrMisaligned, got %v", err)
	}
}

func TestCandidatePairRejectsDateMismatch(t *testing.T) {
	b := series("BBB", 1, 2, 3)
	b.Points[2].Date = day(10)
	_, err := NewCandidatePair("Energy", series("AAA", 1, 2, 3), b)
	if !errors.Is(err, ErrMisaligned) {
		t.Fatalf("expected ErrMisaligned, got %v", err)
	}
}

func TestCandidatePairRejectsNonFinitePrice(t *testing.T) {
	_, err := NewCandidatePair("Energy", series("AAA", 1, math.NaN()), series("BBB", 1, 2))
	if !errors.Is(err, ErrNonFinite) {
		t.Fatalf("expected ErrNonFinite, got %v", err)
	}
}

func TestCandidatePairRejectsUnorderedDates(t *testing.T) {
	a := series("AAA", 1, 2)
	a.Points[1].Date = day(0)
	_, err := NewCandidatePair("Energy", a, series("BBB", 1, 2))
	if !errors.Is(err, ErrUnordered) {
		t.Fatalf("expected ErrUnordered, got %v", err)
	}
}

func TestPairKey(t *testing.T) {
	if got := PairKey("Consumer Staples", "KO", "PEP"); got != "CONSUMER_STAPLES_KO_PEP" {
		t.Fatalf("unexpected pair key %q", got)
	}
	if got := PairKey("", "KO", "PEP"); got != "KO_PEP" {
		t.Fatalf("unexpected pair key without group %q", got)
	}
}

func TestBetweenIsHalfOpen(t *testing.T) {
	s := series("AAA", 1, 2, 3, 4, 5)
	got := s.Between(day(1), day(3))
	if got.Len() != 2 || got.Points[0].Close != 2 || got.Points[1].Close != 3 {
		t.Fatalf("unexpected slice %v", got.Points)
	}
	if all := s.Between(time.Time{}, time.Time{}); all.Len() != 5 {
		t.Fatalf("expected open bounds to keep all points, got %d", all.Len())
	}
}

func TestWindowsSingle(t *testing.T) {
	first := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	got := Windows(first, last, 48, 6, false)
	if len(got) != 1 {
		t.Fatalf("expected one window, got %d", len(got))
	}
	if !got[0].FormationEnd.Equal(time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected formation end %s", got[0].FormationEnd)
	}
	if !got[0].End.Equal(time.Date(2014, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected window end %s", got[0].End)
	}
}

func TestWindowsRolling(t *testing.T) {
	first := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	got := Windows(first, last, 48, 6, true)
	// formation ends 2014-01, 2014-07, 2015-01
	if len(got) != 3 {
		t.Fatalf("expected three rolling windows, got %d", len(got))
	}
	if !got[1].Start.Equal(time.Date(2010, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected second window start %s", got[1].Start)
	}
}

func TestWindowsTooShort(t *testing.T) {
	first := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := Windows(first, first.AddDate(1, 0, 0), 48, 6, true); len(got) != 0 {
		t.Fatalf("expected no windows for short history, got %d", len(got))
	}
}
