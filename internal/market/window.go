package market

import "time"

// Window is a formation period [Start, FormationEnd) followed by a trading
// period [FormationEnd, End).
type Window struct {
	Start        time.Time
	FormationEnd time.Time
	End          time.Time
}

func (w Window) Key() string {
	return w.Start.Format(time.DateOnly) + "_" + w.FormationEnd.Format(time.DateOnly)
}

func (w Window) Formation(p CandidatePair) CandidatePair {
	return p.Between(w.Start, w.FormationEnd)
}

func (w Window) Trading(p CandidatePair) CandidatePair {
	return p.Between(w.FormationEnd, w.End)
}

// Full covers formation and trading bars, the span the decomposer runs over.
func (w Window) Full(p CandidatePair) CandidatePair {
	return p.Between(w.Start, w.End)
}

// Windows lays out formation/trading windows between first and last. Without
// rolling only the first window is produced; with rolling each following window
// starts one trading period later. Windows whose trading period would begin
// after last are omitted.
func Windows(first, last time.Time, formationMonths, tradingMonths int, rolling bool) []Window {
	if formationMonths <= 0 || tradingMonths <= 0 || first.IsZero() || !last.After(first) {
		return nil
	}
	var out []Window
	start := first
	for {
		formationEnd := start.AddDate(0, formationMonths, 0)
		if formationEnd.After(last) {
			break
		}
		out = append(out, Window{
			Start:        start,
			FormationEnd: formationEnd,
			End:          formationEnd.AddDate(0, tradingMonths, 0),
		})
		if !rolling {
			break
		}
		start = start.AddDate(0, tradingMonths, 0)
	}
	return out
}
