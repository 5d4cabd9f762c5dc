package analytics

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"VolLens/internal/domain/models"
)

// DefaultResolution is used when the primary series is too short to infer its spacing.
const DefaultResolution = 24 * time.Hour

// Aligned is two series on a common time index after resampling, lagging and dropping
// undefined rows. Times are the primary series' own timestamps.
type Aligned struct {
	Times      []time.Time
	A          []float64
	B          []float64
	Resolution time.Duration
}

func (a Aligned) Len() int { return len(a.Times) }

// Align resamples b onto a's grid, joins, shifts b forward by lag rows and drops rows
// where either side is undefined.
//
// b is bucketed by resolution (inferred from a when zero) and averaged per bucket, every
// observation weighing the same; b may repeat a timestamp. Buckets start on the wall
// clock of a's location, so daily buckets run from local midnight to local midnight.
// A row of a takes the mean of its own bucket or, failing that, of the latest earlier
// one. Rows before b's first bucket or after its last are dropped.
func Align(a, b models.Series, lag int, resolution time.Duration) (Aligned, error) {
	if lag < 0 {
		return Aligned{}, invalidConfig("lag %d is negative", lag)
	}
	if err := checkOrdered(a.Name, seriesTimes(a)); err != nil {
		return Aligned{}, err
	}
	if err := checkSorted(b.Name, seriesTimes(b)); err != nil {
		return Aligned{}, err
	}
	if a.Defined() == 0 || b.Defined() == 0 {
		return Aligned{}, &InsufficientDataError{Op: "align", Need: 1, Have: min(a.Defined(), b.Defined())}
	}
	if resolution <= 0 {
		resolution = InferResolution(a)
	}

	bk := bucketer{res: resolution, loc: a.Points[0].Time.Location()}
	keys, means := resample(b, bk)
	if len(keys) == 0 {
		return Aligned{}, &InsufficientDataError{Op: "align", Need: 1, Have: 0}
	}
	first, last := keys[0], keys[len(keys)-1]

	times := make([]time.Time, 0, len(a.Points))
	av := make([]float64, 0, len(a.Points))
	bv := make([]float64, 0, len(a.Points))
	for _, p := range a.Points {
		k := bk.key(p.Time)
		if k < first || k > last {
			continue
		}
		times = append(times, p.Time)
		if p.Valid {
			av = append(av, p.Value)
		} else {
			av = append(av, math.NaN())
		}
		i := sort.Search(len(keys), func(i int) bool { return keys[i] > k }) - 1
		bv = append(bv, means[i])
	}
	if len(times) == 0 {
		return Aligned{}, &EmptyOverlapError{A: a.Name, B: b.Name}
	}

	shifted := make([]float64, len(bv))
	for i := range shifted {
		if i < lag {
			shifted[i] = math.NaN()
			continue
		}
		shifted[i] = bv[i-lag]
	}

	out := Aligned{Resolution: resolution}
	for i := range times {
		if !finite(av[i]) || !finite(shifted[i]) {
			continue
		}
		out.Times = append(out.Times, times[i])
		out.A = append(out.A, av[i])
		out.B = append(out.B, shifted[i])
	}
	return out, nil
}

// resample returns the populated bucket keys of s in ascending order with the mean of
// the defined points in each. s must be sorted by time.
func resample(s models.Series, bk bucketer) ([]int64, []float64) {
	var (
		keys  []int64
		means []float64
		vals  []float64
	)
	flush := func() {
		if len(vals) > 0 {
			means = append(means, stat.Mean(vals, nil))
			vals = vals[:0]
		}
	}
	for _, p := range s.Points {
		if !p.Valid || !finite(p.Value) {
			continue
		}
		k := bk.key(p.Time)
		if len(keys) == 0 || k != keys[len(keys)-1] {
			flush()
			keys = append(keys, k)
		}
		vals = append(vals, p.Value)
	}
	flush()
	return keys, means
}

const oneDay = 24 * time.Hour

// bucketer maps a timestamp to the start of its resolution bucket, in Unix nanoseconds,
// measured on the wall clock of loc. Whole-day resolutions follow the calendar so a
// bucket always opens at local midnight, across DST changes too. Resolutions dividing a
// day restart at every local midnight; any other width counts from local midnight of
// 1970-01-01.
type bucketer struct {
	res time.Duration
	loc *time.Location
}

func (b bucketer) key(t time.Time) int64 {
	t = t.In(b.loc)
	y, m, d := t.Date()
	if b.res%oneDay == 0 {
		n := int64(b.res / oneDay)
		days := floorDiv(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()/86400, n) * n
		return time.Date(1970, 1, 1+int(days), 0, 0, 0, 0, b.loc).UnixNano()
	}
	anchor := time.Date(1970, 1, 1, 0, 0, 0, 0, b.loc)
	if oneDay%b.res == 0 {
		anchor = time.Date(y, m, d, 0, 0, 0, 0, b.loc)
	}
	steps := floorDiv(int64(t.Sub(anchor)), int64(b.res))
	return anchor.Add(time.Duration(steps) * b.res).UnixNano()
}

// BucketStart returns the start of the resolution bucket holding t, on loc's wall clock.
func BucketStart(t time.Time, res time.Duration, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(0, bucketer{res: res, loc: loc}.key(t)).In(loc)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// InferResolution returns the median spacing of s, or DefaultResolution when s has
// fewer than two points.
func InferResolution(s models.Series) time.Duration {
	if len(s.Points) < 2 {
		return DefaultResolution
	}
	gaps := make([]float64, 0, len(s.Points)-1)
	for i := 1; i < len(s.Points); i++ {
		gaps = append(gaps, float64(s.Points[i].Time.Sub(s.Points[i-1].Time)))
	}
	sort.Float64s(gaps)
	med := time.Duration(stat.Quantile(0.5, stat.Empirical, gaps, nil))
	if med <= 0 {
		return DefaultResolution
	}
	return med
}
