package analytics

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"VolLens/internal/domain/models"
	domsvc "VolLens/internal/domain/service"
)

const (
	DefaultRegimeK       = 3
	DefaultRegimeSeed    = 42
	DefaultRegimeNInit   = 10
	DefaultRegimeMaxIter = 300
	defaultRegimeTol     = 1e-10
)

// RegimeConfig is fixed at construction. Window is the volatility window used for features.
type RegimeConfig struct {
	K       int
	Window  int
	Seed    uint64
	NInit   int
	MaxIter int
}

func (c RegimeConfig) withDefaults() RegimeConfig {
	if c.K <= 0 {
		c.K = DefaultRegimeK
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.NInit <= 0 {
		c.NInit = DefaultRegimeNInit
	}
	if c.MaxIter <= 0 {
		c.MaxIter = DefaultRegimeMaxIter
	}
	return c
}

// RegimeClassifier clusters bars by their [historical, parkinson, garman-klass] volatility.
type RegimeClassifier struct {
	cfg RegimeConfig
	vol *VolatilityEstimator
}

func NewRegimeClassifier(cfg RegimeConfig, vol *VolatilityEstimator) *RegimeClassifier {
	return &RegimeClassifier{cfg: cfg.withDefaults(), vol: vol}
}

func (c *RegimeClassifier) Config() RegimeConfig { return c.cfg }

// Classify labels every bar with a cluster id in [0, K). Bars lacking any feature get an
// undefined label. When fewer than K bars have a full feature vector the labels are all
// undefined and an InsufficientDataError is returned alongside them.
func (c *RegimeClassifier) Classify(bars models.BarSeries) (models.RegimeResult, error) {
	res := models.RegimeResult{
		Symbol: bars.Symbol,
		K:      c.cfg.K,
		Window: c.cfg.Window,
		Labels: make([]models.Label, len(bars.Bars)),
	}
	for i, b := range bars.Bars {
		res.Labels[i] = models.Label{Time: b.Time}
	}

	set, err := c.vol.All(bars, c.cfg.Window, true)
	if err != nil {
		return res, fmt.Errorf("regime features: %w", err)
	}
	for _, kind := range models.VolKinds {
		if uerr, ok := set.Unavailable[kind]; ok {
			var pe *PreconditionError
			if errors.As(uerr, &pe) {
				return res, &PreconditionError{Metric: "regime", Missing: pe.Missing}
			}
			return res, uerr
		}
	}

	rows, idx := featureMatrix(set, len(bars.Bars))
	if len(rows) < c.cfg.K || len(rows) == 0 {
		return res, &InsufficientDataError{Op: "regime", Need: max(c.cfg.K, 1), Have: len(rows)}
	}

	km := kmeans(rows, kmeansConfig{
		K:       c.cfg.K,
		NInit:   c.cfg.NInit,
		MaxIter: c.cfg.MaxIter,
		Tol:     defaultRegimeTol,
		Seed:    c.cfg.Seed,
	})
	for r, i := range idx {
		res.Labels[i].Value = km.Labels[r]
		res.Labels[i].Valid = true
	}
	res.Centroids = km.Centroids
	res.Inertia = km.Inertia
	res.Classified = len(rows)
	return res, nil
}

// featureMatrix returns the complete feature rows and the bar index each row came from.
func featureMatrix(set VolatilitySet, n int) ([][]float64, []int) {
	rows := make([][]float64, 0, n)
	idx := make([]int, 0, n)
	for i := 0; i < n; i++ {
		row := make([]float64, 0, len(models.VolKinds))
		for _, kind := range models.VolKinds {
			p := set.Series[kind].Points[i]
			if !p.Valid {
				break
			}
			row = append(row, p.Value)
		}
		if len(row) == len(models.VolKinds) {
			rows = append(rows, row)
			idx = append(idx, i)
		}
	}
	return rows, idx
}

// RankRegimes orders cluster ids by centroid magnitude: ranks[id] is 0 for the calmest
// cluster and K-1 for the most volatile.
func RankRegimes(res models.RegimeResult) []int {
	order := make([]int, len(res.Centroids))
	norms := make([]float64, len(res.Centroids))
	for i, c := range res.Centroids {
		order[i] = i
		norms[i] = floats.Norm(c, 2)
	}
	sort.SliceStable(order, func(a, b int) bool { return norms[order[a]] < norms[order[b]] })
	ranks := make([]int, len(order))
	for rank, id := range order {
		ranks[id] = rank
	}
	return ranks
}

// RegimeName gives a readable name for a magnitude rank among k regimes.
func RegimeName(rank, k int) string {
	switch {
	case k == 2:
		return [...]string{"low", "high"}[rank]
	case k == 3:
		return [...]string{"low", "medium", "high"}[rank]
	default:
		return fmt.Sprintf("level_%d", rank)
	}
}

var _ domsvc.RegimeClassifier = (*RegimeClassifier)(nil)
