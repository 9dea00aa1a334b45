package selection

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"pci-pair-trader/internal/config"
	"pci-pair-trader/internal/market"
	"pci-pair-trader/internal/pci"

	"golang.org/x/sync/errgroup"
)

// Estimator fits the partial cointegration model to a pair of close series.
type Estimator interface {
	Estimate(price1, price2 []float64) (pci.ModelParameters, error)
}

// Cache stores fits across runs, keyed by FitKey.
type Cache interface {
	Load(ctx context.Context, key string) (pci.ModelParameters, bool, error)
	Save(ctx context.Context, key string, params pci.ModelParameters) error
}

// Scored is a pair together with its formation-window fit.
type Scored struct {
	Pair   market.CandidatePair
	Params pci.ModelParameters
}

func (s Scored) Key() string {
	return s.Pair.Key()
}

// Rejection records a pair dropped before ranking.
type Rejection struct {
	Key string
	Err error
}

type Selection struct {
	Group string
	// Ranked holds every successfully scored pair, strongest evidence first.
	Ranked []Scored
	// Filtered are top-ranked pairs that failed the r2_mr or rho thresholds.
	Filtered []Scored
	Selected []Scored
	Rejected []Rejection
	// CacheErrors are cache failures; the affected pairs were fitted afresh.
	CacheErrors []error
	// CacheHits counts pairs whose fit came from the cache.
	CacheHits int
}

type Selector struct {
	cfg   config.SelectionConfig
	est   Estimator
	cache Cache
}

func New(cfg config.SelectionConfig, est Estimator) *Selector {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Selector{cfg: cfg, est: est}
}

// WithCache makes the selector reuse fits for identical formation data.
func (s *Selector) WithCache(cache Cache) *Selector {
	s.cache = cache
	return s
}

// FitKey identifies a pair's formation sample by its key, first and last date
// and length.
func FitKey(pair market.CandidatePair) string {
	n := pair.Len()
	if n == 0 {
		return pair.Key()
	}
	first := pair.Series1.Points[0].Date.Format(time.DateOnly)
	last := pair.Series1.Points[n-1].Date.Format(time.DateOnly)
	return fmt.Sprintf("%s:%s:%s:%d", pair.Key(), first, last, n)
}

// Select scores every pair of a group concurrently, ranks them by LR score and
// keeps the top fraction that also clears the mean-reversion thresholds.
// Cancellation is observed between pairs; a fit that has started completes.
func (s *Selector) Select(ctx context.Context, group string, pairs []market.CandidatePair) (Selection, error) {
	out := Selection{Group: group}
	scored := make([]*Scored, len(pairs))
	errs := make([]error, len(pairs))
	results := make([]fitResult, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range pairs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			params, res, err := s.score(gctx, pairs[i])
			results[i] = res
			if err != nil {
				errs[i] = err
				return nil
			}
			scored[i] = &Scored{Pair: pairs[i], Params: params}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Selection{}, err
	}

	for i := range pairs {
		if results[i].cacheErr != nil {
			out.CacheErrors = append(out.CacheErrors, results[i].cacheErr)
		}
		if results[i].cached {
			out.CacheHits++
		}
		if errs[i] != nil {
			out.Rejected = append(out.Rejected, Rejection{Key: pairs[i].Key(), Err: errs[i]})
			continue
		}
		out.Ranked = append(out.Ranked, *scored[i])
	}
	Rank(out.Ranked)

	n := SelectCount(s.cfg.Fraction, len(out.Ranked))
	for _, sc := range out.Ranked[:n] {
		if sc.Params.R2MR > s.cfg.MinR2MR && sc.Params.Rho > s.cfg.MinRho {
			out.Selected = append(out.Selected, sc)
		} else {
			out.Filtered = append(out.Filtered, sc)
		}
	}
	return out, nil
}

type fitResult struct {
	cached   bool
	cacheErr error
}

func (s *Selector) score(ctx context.Context, pair market.CandidatePair) (pci.ModelParameters, fitResult, error) {
	var res fitResult
	if err := pair.Validate(); err != nil {
		return pci.ModelParameters{}, res, err
	}
	key := FitKey(pair)
	if s.cache != nil {
		params, ok, err := s.cache.Load(ctx, key)
		if err != nil {
			res.cacheErr = fmt.Errorf("load %s: %w", key, err)
		} else if ok {
			res.cached = true
			return params, res, nil
		}
	}
	params, err := s.est.Estimate(pair.Series1.Closes(), pair.Series2.Closes())
	if err != nil {
		return pci.ModelParameters{}, res, fmt.Errorf("%s: %w", pair.Key(), err)
	}
	if s.cache != nil {
		if err := s.cache.Save(ctx, key, params); err != nil && res.cacheErr == nil {
			res.cacheErr = fmt.Errorf("save %s: %w", key, err)
		}
	}
	return params, res, nil
}

// Rank orders scored pairs by descending LR score, breaking ties by pair key.
func Rank(scored []Scored) {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i].Params.LRScore, scored[j].Params.LRScore
		if a != b {
			return a > b
		}
		return scored[i].Key() < scored[j].Key()
	})
}

// SelectCount is max(1, floor(fraction*n)) capped at n.
func SelectCount(fraction float64, n int) int {
	if n <= 0 {
		return 0
	}
	k := int(math.Floor(fraction * float64(n)))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k
}
