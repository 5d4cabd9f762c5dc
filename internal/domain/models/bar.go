package models

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// Field identifies one column of a bar series.
type Field uint8

const (
	FieldOpen Field = 1 << iota
	FieldHigh
	FieldLow
	FieldClose
	FieldVolume
	FieldOpenInterest
)

var fieldNames = map[Field]string{
	FieldOpen:         "open",
	FieldHigh:         "high",
	FieldLow:          "low",
	FieldClose:        "close",
	FieldVolume:       "volume",
	FieldOpenInterest: "oi",
}

func (f Field) String() string {
	if n, ok := fieldNames[f]; ok {
		return n
	}
	return "unknown"
}

// FieldSet is the schema of a BarSeries: the set of columns the producer populated.
type FieldSet uint8

const (
	FieldsOHLC  = FieldSet(FieldOpen | FieldHigh | FieldLow | FieldClose)
	FieldsOHLCV = FieldsOHLC | FieldSet(FieldVolume)
	FieldsAll   = FieldsOHLCV | FieldSet(FieldOpenInterest)
)

// Has reports whether every field in f is present.
func (s FieldSet) Has(f ...Field) bool {
	for _, x := range f {
		if s&FieldSet(x) == 0 {
			return false
		}
	}
	return true
}

// Missing returns the fields among want that are absent.
func (s FieldSet) Missing(want ...Field) []Field {
	var out []Field
	for _, f := range want {
		if !s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func (s FieldSet) With(f Field) FieldSet { return s | FieldSet(f) }

func (s FieldSet) String() string {
	parts := make([]string, 0, 6)
	for _, f := range []Field{FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume, FieldOpenInterest} {
		if s.Has(f) {
			parts = append(parts, f.String())
		}
	}
	return strings.Join(parts, ",")
}

// PriceBar is one OHLCV(+OI) observation. Absent values inside a present column are NaN.
type PriceBar struct {
	Time         time.Time `json:"time" db:"timestamp"`
	Open         float64   `json:"open" db:"open"`
	High         float64   `json:"high" db:"high"`
	Low          float64   `json:"low" db:"low"`
	Close        float64   `json:"close" db:"close"`
	Volume       float64   `json:"volume" db:"volume"`
	OpenInterest float64   `json:"oi" db:"oi"`
}

// Set assigns the column f.
func (b *PriceBar) Set(f Field, v float64) {
	switch f {
	case FieldOpen:
		b.Open = v
	case FieldHigh:
		b.High = v
	case FieldLow:
		b.Low = v
	case FieldClose:
		b.Close = v
	case FieldVolume:
		b.Volume = v
	case FieldOpenInterest:
		b.OpenInterest = v
	}
}

type barJSON struct {
	Time         time.Time `json:"time"`
	Open         *float64  `json:"open"`
	High         *float64  `json:"high"`
	Low          *float64  `json:"low"`
	Close        *float64  `json:"close"`
	Volume       *float64  `json:"volume"`
	OpenInterest *float64  `json:"oi"`
}

// MarshalJSON writes NaN values as null.
func (b PriceBar) MarshalJSON() ([]byte, error) {
	return json.Marshal(barJSON{
		Time:         b.Time,
		Open:         finitePtr(b.Open),
		High:         finitePtr(b.High),
		Low:          finitePtr(b.Low),
		Close:        finitePtr(b.Close),
		Volume:       finitePtr(b.Volume),
		OpenInterest: finitePtr(b.OpenInterest),
	})
}

// UnmarshalJSON reads null or absent values as NaN.
func (b *PriceBar) UnmarshalJSON(data []byte) error {
	var raw barJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = PriceBar{
		Time:         raw.Time,
		Open:         nanIfNil(raw.Open),
		High:         nanIfNil(raw.High),
		Low:          nanIfNil(raw.Low),
		Close:        nanIfNil(raw.Close),
		Volume:       nanIfNil(raw.Volume),
		OpenInterest: nanIfNil(raw.OpenInterest),
	}
	return nil
}

func finitePtr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func nanIfNil(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// BarSeries is a time-ordered run of bars for one instrument at one resolution.
type BarSeries struct {
	Symbol    string     `json:"symbol"`
	Timeframe string     `json:"timeframe"`
	Fields    FieldSet   `json:"-"`
	Bars      []PriceBar `json:"bars"`
}

func (s BarSeries) Len() int { return len(s.Bars) }

// Times returns the bar timestamps.
func (s BarSeries) Times() []time.Time {
	out := make([]time.Time, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Time
	}
	return out
}

// Tail returns a copy of the series restricted to its last n bars.
func (s BarSeries) Tail(n int) BarSeries {
	if n <= 0 || n >= len(s.Bars) {
		return s
	}
	out := s
	out.Bars = s.Bars[len(s.Bars)-n:]
	return out
}

// SentimentPoint is one scored observation from the sentiment collaborator.
type SentimentPoint struct {
	Time      time.Time `json:"time" db:"timestamp"`
	Symbol    string    `json:"symbol" db:"tradingsymbol"`
	Source    string    `json:"source" db:"source"`
	Score     float64   `json:"score" db:"sentiment_score"`
	Magnitude float64   `json:"magnitude" db:"sentiment_magnitude"`
}
