package models

// Requests for analysis HTTP endpoints. Defined in domain for reuse by the CLI and scheduler.

// BarsRequest selects the latest N bars, or bars in [From, To] when both are set.
type BarsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	N      int    `query:"n" json:"n" default:"500" validate:"gte=1,lte=10000"`
	TF     string `query:"tf" json:"tf" default:"1d" validate:"oneof=1m 5m 1h 1d"`
}

// VolatilityRequest runs one estimator. Raw disables annualization. Historical needs a
// window of 3; the estimator rejects 2 for it.
type VolatilityRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	Kind   string `query:"kind" json:"kind" default:"historical" validate:"oneof=historical parkinson garman_klass hv pk gk"`
	Window int    `query:"window" json:"window" default:"20" validate:"gte=2,lte=1000"`
	Raw    bool   `query:"raw" json:"raw"`
	N      int    `query:"n" json:"n" default:"500" validate:"gte=1,lte=10000"`
	TF     string `query:"tf" json:"tf" default:"1d" validate:"oneof=1m 5m 1h 1d"`
}

type ConeRequest struct {
	Symbol  string `query:"symbol" json:"symbol" validate:"required"`
	Periods []int  `query:"period" json:"periods" validate:"omitempty,dive,gte=3,lte=1000"`
	Summary bool   `query:"summary" json:"summary"`
	N       int    `query:"n" json:"n" default:"1000" validate:"gte=1,lte=10000"`
	TF      string `query:"tf" json:"tf" default:"1d" validate:"oneof=1m 5m 1h 1d"`
}

type RegimeRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	N      int    `query:"n" json:"n" default:"500" validate:"gte=1,lte=10000"`
	TF     string `query:"tf" json:"tf" default:"1d" validate:"oneof=1m 5m 1h 1d"`
}

// CorrelationRequest correlates sentiment with a price target. Lag 0 compares same-period
// values and Window 0 asks for a whole-sample coefficient.
type CorrelationRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	Target string `query:"target" json:"target" default:"returns" validate:"oneof=returns close volatility"`
	Lag    int    `query:"lag" json:"lag" validate:"gte=0,lte=365"`
	Window int    `query:"window" json:"window" validate:"omitempty,gte=2,lte=1000"`
	N      int    `query:"n" json:"n" default:"500" validate:"gte=1,lte=10000"`
	TF     string `query:"tf" json:"tf" default:"1d" validate:"oneof=1m 5m 1h 1d"`
}

type SnapshotRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	N      int    `query:"n" json:"n" default:"500" validate:"gte=1,lte=10000"`
	TF     string `query:"tf" json:"tf" default:"1d" validate:"oneof=1m 5m 1h 1d"`
}
