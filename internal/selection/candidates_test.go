package selection

import (
	"errors"
	"testing"

	"pci-pair-trader/internal/market"
)

func TestBuildCandidatesEnumeratesCombinations(t *testing.T) {
	series := []market.PriceSeries{
		seriesOf("XOM", []float64{1, 2, 3}),
		seriesOf("BP", []float64{1, 2, 3}),
		seriesOf("CVX", []float64{1, 2, 3}),
	}
	pairs, rejected := BuildCandidates("Energy", series)
	if len(rejected) != 0 {
		t.Fatalf("unexpected rejections %+v", rejected)
	}
	want := []string{"ENERGY_BP_CVX", "ENERGY_BP_XOM", "ENERGY_CVX_XOM"}
	if len(pairs) != len(want) {
		t.Fatalf("expected %d pairs, got %d", len(want), len(pairs))
	}
	for i, p := range pairs {
		if p.Key() != want[i] {
			t.Fatalf("pair %d: expected %s, got %s", i, want[i], p.Key())
		}
	}
	if series[0].Symbol != "XOM" {
		t.Fatalf("input slice was reordered")
	}
}

func TestBuildCandidatesAlignsOnDate(t *testing.T) {
	a := seriesOf("AAA", []float64{1, 2, 3, 4})
	b := market.PriceSeries{Symbol: "BBB", Points: []market.PricePoint{
		{Date: day(1), Close: 5},
		{Date: day(3), Close: 6},
	}}
	pairs, rejected := BuildCandidates("Tech", []market.PriceSeries{a, b})
	if len(rejected) != 0 || len(pairs) != 1 {
		t.Fatalf("expected one pair, got %d pairs %d rejections", len(pairs), len(rejected))
	}
	if pairs[0].Len() != 2 {
		t.Fatalf("expected two common dates, got %d", pairs[0].Len())
	}
}

func TestBuildCandidatesRejectsDisjointHistories(t *testing.T) {
	a := seriesOf("AAA", []float64{1, 2})
	b := market.PriceSeries{Symbol: "BBB", Points: []market.PricePoint{{Date: day(10), Close: 5}}}
	pairs, rejected := BuildCandidates("Tech", []market.PriceSeries{a, b})
	if len(pairs) != 0 || len(rejected) != 1 {
		t.Fatalf("expected a single rejection, got %d pairs %d rejections", len(pairs), len(rejected))
	}
	if !errors.Is(rejected[0].Err, market.ErrEmptySeries) {
		t.Fatalf("expected ErrEmptySeries, got %v", rejected[0].Err)
	}
	if rejected[0].Key != "TECH_AAA_BBB" {
		t.Fatalf("unexpected key %q", rejected[0].Key)
	}
}
