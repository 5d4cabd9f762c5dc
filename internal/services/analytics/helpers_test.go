package analytics

import (
	"math"
	"math/rand"
	"time"

	"VolLens/internal/domain/models"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func day(i int) time.Time { return t0.AddDate(0, 0, i) }

func closeBars(closes ...float64) models.BarSeries {
	bars := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = models.PriceBar{Time: day(i), Close: c}
	}
	return models.BarSeries{Symbol: "TEST", Timeframe: "1d", Fields: models.FieldSet(models.FieldClose), Bars: bars}
}

// regimeBars produces calm, turbulent and calm segments of equal length.
func regimeBars(seg int) models.BarSeries {
	bars := make([]models.PriceBar, 0, 3*seg)
	price := 100.0
	for i := 0; i < 3*seg; i++ {
		step := 0.002
		if i >= seg && i < 2*seg {
			step = 0.03
		}
		dir := 1.0
		if i%3 == 0 {
			dir = -1
		}
		open := price
		price *= 1 + dir*step*(1+0.25*math.Sin(float64(i)))
		hi := math.Max(open, price) * (1 + step/2)
		lo := math.Min(open, price) * (1 - step/2)
		bars = append(bars, models.PriceBar{Time: day(i), Open: open, High: hi, Low: lo, Close: price, Volume: 1000})
	}
	return models.BarSeries{Symbol: "REG", Timeframe: "1d", Fields: models.FieldsOHLCV, Bars: bars}
}

// randomBars generates consistent OHLC bars: low <= min(open, close) <= max(open, close) <= high.
func randomBars(n int, seed int64) models.BarSeries {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]models.PriceBar, n)
	price := 50.0
	for i := range bars {
		open := price
		price *= math.Exp(rng.NormFloat64() * 0.02)
		hi := math.Max(open, price) * (1 + rng.Float64()*0.01)
		lo := math.Min(open, price) * (1 - rng.Float64()*0.01)
		bars[i] = models.PriceBar{Time: day(i), Open: open, High: hi, Low: lo, Close: price}
	}
	return models.BarSeries{Symbol: "RND", Timeframe: "1d", Fields: models.FieldsOHLC, Bars: bars}
}

func series(name string, times []time.Time, vals []float64) models.Series {
	s := models.Series{Name: name, Points: make([]models.Point, len(vals))}
	for i, v := range vals {
		if math.IsNaN(v) {
			s.Points[i] = models.Undefined(times[i])
			continue
		}
		s.Points[i] = models.Defined(times[i], v)
	}
	return s
}

func days(from, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = day(from + i)
	}
	return out
}
