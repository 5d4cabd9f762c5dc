package repository

import (
	"database/sql"
	"math"
	"time"

	"VolLens/internal/domain/models"
)

// barRow is the nullable shape both stores scan bars into. A column counts as
// present in the series schema when at least one row carries a value for it.
type barRow struct {
	Time   time.Time       `db:"timestamp"`
	Open   sql.NullFloat64 `db:"open"`
	High   sql.NullFloat64 `db:"high"`
	Low    sql.NullFloat64 `db:"low"`
	Close  sql.NullFloat64 `db:"close"`
	Volume sql.NullFloat64 `db:"volume"`
	OI     sql.NullFloat64 `db:"oi"`
}

func assembleBars(symbol string, tf string, rows []barRow) models.BarSeries {
	out := models.BarSeries{Symbol: symbol, Timeframe: tf, Bars: make([]models.PriceBar, len(rows))}
	for i, r := range rows {
		out.Bars[i] = models.PriceBar{
			Time:         r.Time.UTC(),
			Open:         nanIfNull(r.Open),
			High:         nanIfNull(r.High),
			Low:          nanIfNull(r.Low),
			Close:        nanIfNull(r.Close),
			Volume:       nanIfNull(r.Volume),
			OpenInterest: nanIfNull(r.OI),
		}
		out.Fields |= presence(r)
	}
	return out
}

func presence(r barRow) models.FieldSet {
	var fs models.FieldSet
	cols := []struct {
		v sql.NullFloat64
		f models.Field
	}{
		{r.Open, models.FieldOpen},
		{r.High, models.FieldHigh},
		{r.Low, models.FieldLow},
		{r.Close, models.FieldClose},
		{r.Volume, models.FieldVolume},
		{r.OI, models.FieldOpenInterest},
	}
	for _, c := range cols {
		if c.v.Valid {
			fs = fs.With(c.f)
		}
	}
	return fs
}

// reverseRows turns a DESC-ordered result into ascending time order.
func reverseRows(rows []barRow) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}

func nanIfNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// nullable maps NaN to SQL NULL.
func nullable(v float64) interface{} {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

// chunks splits n items into [lo, hi) ranges of at most size.
func chunks(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	var out [][2]int
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		out = append(out, [2]int{lo, hi})
	}
	return out
}
