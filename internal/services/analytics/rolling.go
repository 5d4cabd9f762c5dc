package analytics

import (
	"math"
	"time"

	"VolLens/internal/domain/models"
)

// rolling evaluates fn over every full window of xs. The result at i uses xs[i-size+1 : i+1];
// it is NaN before the first full window or when the window holds a non-finite value.
func rolling(xs []float64, size int, fn func([]float64) float64) []float64 {
	out := make([]float64, len(xs))
	bad := 0
	for i := range xs {
		if !finite(xs[i]) {
			bad++
		}
		if i >= size && !finite(xs[i-size]) {
			bad--
		}
		if i < size-1 || bad > 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = fn(xs[i-size+1 : i+1])
	}
	return out
}

// toPoints pairs values with timestamps, treating non-finite and negative values as undefined.
func toPoints(times []time.Time, xs []float64, scale float64) []models.Point {
	pts := make([]models.Point, len(xs))
	for i, v := range xs {
		if !finite(v) || v < 0 {
			pts[i] = models.Undefined(times[i])
			continue
		}
		pts[i] = models.Defined(times[i], v*scale)
	}
	return pts
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func positive(v ...float64) bool {
	for _, x := range v {
		if !finite(x) || x <= 0 {
			return false
		}
	}
	return true
}

// checkOrdered rejects timestamps that are not strictly increasing.
func checkOrdered(name string, times []time.Time) error {
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			if times[i].Equal(times[i-1]) {
				return malformed("%s: duplicate timestamp %s at index %d", name, times[i].Format(time.RFC3339), i)
			}
			return malformed("%s: timestamp %s at index %d precedes %s", name,
				times[i].Format(time.RFC3339), i, times[i-1].Format(time.RFC3339))
		}
	}
	return nil
}

// checkSorted rejects timestamps that go backwards. Repeats are allowed.
func checkSorted(name string, times []time.Time) error {
	for i := 1; i < len(times); i++ {
		if times[i].Before(times[i-1]) {
			return malformed("%s: timestamp %s at index %d precedes %s", name,
				times[i].Format(time.RFC3339), i, times[i-1].Format(time.RFC3339))
		}
	}
	return nil
}

func seriesTimes(s models.Series) []time.Time {
	out := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Time
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
