package selection

import (
	"sort"

	"pci-pair-trader/internal/market"
)

// BuildCandidates pairs every two symbols of a group. Symbols are ordered
// alphabetically so the first leg of each pair sorts before the second. Legs
// are inner-joined on date; pairs that fail validation are returned as
// rejections.
func BuildCandidates(group string, series []market.PriceSeries) ([]market.CandidatePair, []Rejection) {
	sorted := make([]market.PriceSeries, len(series))
	copy(sorted, series)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })

	var pairs []market.CandidatePair
	var rejected []Rejection
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			a, b := market.Align(sorted[i], sorted[j])
			pair, err := market.NewCandidatePair(group, a, b)
			if err != nil {
				rejected = append(rejected, Rejection{
					Key: market.PairKey(group, sorted[i].Symbol, sorted[j].Symbol),
					Err: err,
				})
				continue
			}
			pairs = append(pairs, pair)
		}
	}
	return pairs, rejected
}
