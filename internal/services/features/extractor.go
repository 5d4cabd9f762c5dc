package features

import (
	"math"
	"time"

	"VolLens/internal/domain/models"
	domrepo "VolLens/internal/domain/repository"
)

// LogReturns computes r_t = ln(C_t / C_{t-1}) as a series aligned to the bars.
// The first bar and any bar next to a non-positive close is undefined.
func LogReturns(bars models.BarSeries) models.Series {
	out := models.Series{Name: bars.Symbol + ":returns", Points: make([]models.Point, len(bars.Bars))}
	for i, b := range bars.Bars {
		if i == 0 {
			out.Points[i] = models.Undefined(b.Time)
			continue
		}
		prev := bars.Bars[i-1].Close
		cur := b.Close
		if !(prev > 0) || !(cur > 0) || math.IsInf(prev, 0) || math.IsInf(cur, 0) {
			out.Points[i] = models.Undefined(b.Time)
			continue
		}
		out.Points[i] = models.Defined(b.Time, math.Log(cur/prev))
	}
	return out
}

// Closes exposes the close column as a series.
func Closes(bars models.BarSeries) models.Series {
	out := models.Series{Name: bars.Symbol + ":close", Points: make([]models.Point, len(bars.Bars))}
	for i, b := range bars.Bars {
		if math.IsNaN(b.Close) {
			out.Points[i] = models.Undefined(b.Time)
			continue
		}
		out.Points[i] = models.Defined(b.Time, b.Close)
	}
	return out
}

// Sentiment turns scored observations into a series with one point per observation.
// Observations sharing a timestamp stay separate so resampling weighs each of them
// once. Unscored observations are skipped. Input must be sorted by time.
func Sentiment(name string, pts []models.SentimentPoint) models.Series {
	out := models.Series{Name: name, Points: make([]models.Point, 0, len(pts))}
	for _, p := range pts {
		if math.IsNaN(p.Score) || math.IsInf(p.Score, 0) {
			continue
		}
		out.Points = append(out.Points, models.Defined(p.Time, p.Score))
	}
	return out
}

// PeriodsPerYearForTF returns the approximate number of bars per year for a timeframe,
// counting trading days for daily bars.
func PeriodsPerYearForTF(tf string) float64 { return domrepo.Timeframe(tf).PeriodsPerYear() }

// ResolutionForTF returns the bar spacing of a timeframe.
func ResolutionForTF(tf string) time.Duration { return domrepo.Timeframe(tf).Duration() }

// AlignFromTo rounds a time range to bar boundaries of the timeframe.
func AlignFromTo(from, to time.Time, tf string) (time.Time, time.Time) {
	d := ResolutionForTF(tf)
	return from.Truncate(d), to.Truncate(d)
}
