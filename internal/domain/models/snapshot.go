package models

import "time"

// RegimeState is the latest regime reading with its magnitude rank.
type RegimeState struct {
	Time  time.Time `json:"time"`
	Label int       `json:"label"`
	Rank  int       `json:"rank"`
	Name  string    `json:"name"`
}

// AnalysisSnapshot is a consolidated view of every analysis for one symbol.
// A part that fails is reported in Errors and left nil.
type AnalysisSnapshot struct {
	ID         string             `json:"id"`
	Symbol     string             `json:"symbol"`
	Timeframe  string             `json:"timeframe"`
	Timestamp  time.Time          `json:"timestamp"`
	Bars       int                `json:"bars"`
	Volatility map[VolKind]Point  `json:"volatility,omitempty"`
	Cone       []ConeStats        `json:"cone,omitempty"`
	Regime     *RegimeState       `json:"regime,omitempty"`
	Sentiment  *CorrelationResult `json:"sentiment,omitempty"`
	Errors     map[string]string  `json:"errors,omitempty"`
}
