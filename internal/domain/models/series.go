package models

import (
	"encoding/json"
	"time"
)

// Point is an optional value attached to a timestamp. Undefined points encode as null.
type Point struct {
	Time  time.Time
	Value float64
	Valid bool
}

func Defined(t time.Time, v float64) Point { return Point{Time: t, Value: v, Valid: true} }

func Undefined(t time.Time) Point { return Point{Time: t} }

type pointJSON struct {
	Time  time.Time `json:"time"`
	Value *float64  `json:"value"`
}

func (p Point) MarshalJSON() ([]byte, error) {
	out := pointJSON{Time: p.Time}
	if p.Valid {
		v := p.Value
		out.Value = &v
	}
	return json.Marshal(out)
}

func (p *Point) UnmarshalJSON(b []byte) error {
	var in pointJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	p.Time = in.Time
	p.Valid = in.Value != nil
	p.Value = 0
	if in.Value != nil {
		p.Value = *in.Value
	}
	return nil
}

// Series is a timestamp-indexed run of optional values.
type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

func (s Series) Len() int { return len(s.Points) }

// Defined returns the number of points carrying a value.
func (s Series) Defined() int {
	n := 0
	for _, p := range s.Points {
		if p.Valid {
			n++
		}
	}
	return n
}

// Last returns the latest defined point.
func (s Series) Last() (Point, bool) {
	for i := len(s.Points) - 1; i >= 0; i-- {
		if s.Points[i].Valid {
			return s.Points[i], true
		}
	}
	return Point{}, false
}

// Values returns the defined values in order.
func (s Series) Values() []float64 {
	out := make([]float64, 0, len(s.Points))
	for _, p := range s.Points {
		if p.Valid {
			out = append(out, p.Value)
		}
	}
	return out
}

// In returns a copy of s with every timestamp expressed in loc.
func (s Series) In(loc *time.Location) Series {
	out := Series{Name: s.Name, Points: make([]Point, len(s.Points))}
	for i, p := range s.Points {
		p.Time = p.Time.In(loc)
		out.Points[i] = p
	}
	return out
}

// VolKind tags a volatility series with the estimator that produced it.
type VolKind string

const (
	VolHistorical  VolKind = "historical"
	VolParkinson   VolKind = "parkinson"
	VolGarmanKlass VolKind = "garman_klass"
)

// VolKinds lists the estimators in feature-vector order.
var VolKinds = []VolKind{VolHistorical, VolParkinson, VolGarmanKlass}

// ParseVolKind accepts the canonical names plus common short forms.
func ParseVolKind(s string) (VolKind, bool) {
	switch s {
	case "historical", "hv", "close":
		return VolHistorical, true
	case "parkinson", "pk":
		return VolParkinson, true
	case "garman_klass", "garman-klass", "gk":
		return VolGarmanKlass, true
	}
	return "", false
}

// VolatilityCone maps a look-back period to its annualized historical volatility.
type VolatilityCone struct {
	Symbol  string         `json:"symbol"`
	Periods []int          `json:"periods"`
	Series  map[int]Series `json:"series"`
}

// ConeStats summarises one period of a cone.
type ConeStats struct {
	Period  int     `json:"period"`
	Samples int     `json:"samples"`
	Min     float64 `json:"min"`
	Q25     float64 `json:"q25"`
	Median  float64 `json:"median"`
	Q75     float64 `json:"q75"`
	Max     float64 `json:"max"`
	Latest  Point   `json:"latest"`
}

// Label is an optional regime id attached to a timestamp.
type Label struct {
	Time  time.Time
	Value int
	Valid bool
}

type labelJSON struct {
	Time  time.Time `json:"time"`
	Value *int      `json:"label"`
}

func (l Label) MarshalJSON() ([]byte, error) {
	out := labelJSON{Time: l.Time}
	if l.Valid {
		v := l.Value
		out.Value = &v
	}
	return json.Marshal(out)
}

// RegimeResult is the output of volatility-regime clustering.
// Centroids are in feature order historical, parkinson, garman-klass.
type RegimeResult struct {
	Symbol     string      `json:"symbol"`
	K          int         `json:"k"`
	Window     int         `json:"window"`
	Labels     []Label     `json:"labels"`
	Centroids  [][]float64 `json:"centroids"`
	Inertia    float64     `json:"inertia"`
	Classified int         `json:"classified"`
}

// Latest returns the most recent defined label.
func (r RegimeResult) Latest() (Label, bool) {
	for i := len(r.Labels) - 1; i >= 0; i-- {
		if r.Labels[i].Valid {
			return r.Labels[i], true
		}
	}
	return Label{}, false
}

// CorrelationResult holds either a whole-sample coefficient or a rolling series.
type CorrelationResult struct {
	Lag     int     `json:"lag"`
	Window  int     `json:"window"`
	Samples int     `json:"samples"`
	Value   *Point  `json:"value,omitempty"`
	Rolling *Series `json:"rolling,omitempty"`
}
