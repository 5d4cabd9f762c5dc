package usecase

import (
	"context"
	"fmt"
	"time"

	"VolLens/internal/domain/models"
	domrepo "VolLens/internal/domain/repository"
	"VolLens/internal/services/features"
)

// BarsUseCase serves raw bars for a symbol.
type BarsUseCase struct {
	store domrepo.MarketStore
}

func NewBarsUseCase(store domrepo.MarketStore) *BarsUseCase {
	return &BarsUseCase{store: store}
}

type GetBarsParams struct {
	Symbol    string
	From      time.Time
	To        time.Time
	Timeframe domrepo.Timeframe
	Limit     int
}

type GetBarsResult struct {
	Symbol    string            `json:"symbol"`
	Timeframe string            `json:"timeframe"`
	Fields    string            `json:"fields"`
	Count     int               `json:"count"`
	Bars      []models.PriceBar `json:"bars"`
}

// GetBars returns bars in [From, To] when a range is given, otherwise the latest Limit bars.
func (uc *BarsUseCase) GetBars(ctx context.Context, p GetBarsParams) (*GetBarsResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.Limit <= 0 {
		p.Limit = 500
	}
	if p.Limit > 10000 {
		p.Limit = 10000
	}
	if p.Timeframe == "" {
		p.Timeframe = domrepo.DefaultTimeframe()
	}

	var (
		bars models.BarSeries
		err  error
	)
	if !p.From.IsZero() && !p.To.IsZero() {
		if p.From.After(p.To) {
			return nil, fmt.Errorf("from must be <= to")
		}
		from, to := features.AlignFromTo(p.From, p.To, string(p.Timeframe))
		bars, err = uc.store.GetBars(ctx, p.Symbol, from, to, p.Timeframe)
		bars = bars.Tail(p.Limit)
	} else {
		bars, err = uc.store.GetLatestNBars(ctx, p.Symbol, p.Limit, p.Timeframe)
	}
	if err != nil {
		return nil, fmt.Errorf("get bars: %w", err)
	}

	return &GetBarsResult{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		Fields:    bars.Fields.String(),
		Count:     bars.Len(),
		Bars:      bars.Bars,
	}, nil
}
