package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"VolLens/internal/domain/models"
	domrepo "VolLens/internal/domain/repository"
	pkgkafka "VolLens/pkg/kafka"
)

var eventValidate = validator.New()

// BarEvent is the payload on the bars topic. Absent or null price fields are
// stored as missing values.
type BarEvent struct {
	Symbol string            `json:"symbol" validate:"required"`
	TF     string            `json:"tf" validate:"omitempty,oneof=1m 5m 1h 1d"`
	Bars   []models.PriceBar `json:"bars" validate:"required,min=1"`
}

// SentimentEvent is the payload on the sentiment topic. An empty symbol marks a
// market-wide score.
type SentimentEvent struct {
	Symbol    string    `json:"symbol"`
	Source    string    `json:"source" validate:"required"`
	Time      time.Time `json:"time"`
	Score     float64   `json:"score" validate:"gte=-1,lte=1"`
	Magnitude float64   `json:"magnitude" validate:"gte=0"`
}

// BarsHandler consumes bar events and writes them to the market store.
type BarsHandler struct {
	topic   string
	store   domrepo.MarketStore
	metrics domrepo.Metrics
}

func NewBarsHandler(topic string, store domrepo.MarketStore, metrics domrepo.Metrics) *BarsHandler {
	return &BarsHandler{topic: topic, store: store, metrics: metrics}
}

func (h *BarsHandler) Topic() string { return h.topic }

func (h *BarsHandler) Handle(ctx context.Context, b []byte) error {
	var ev BarEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode bar event: %w", err))
	}
	if err := eventValidate.Struct(ev); err != nil {
		h.metrics.RecordError("consumer_validate")
		return pkgkafka.Permanent(fmt.Errorf("invalid bar event: %w", err))
	}
	for i, bar := range ev.Bars {
		if bar.Time.IsZero() {
			h.metrics.RecordError("consumer_validate")
			return pkgkafka.Permanent(fmt.Errorf("bar %d of %s has no time", i, ev.Symbol))
		}
	}
	tf := domrepo.NormalizeTimeframe(ev.TF)

	start := time.Now()
	err := h.store.StoreBars(ctx, ev.Symbol, tf, ev.Bars)
	h.metrics.RecordComputation("ingest_bars", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	return nil
}

// SentimentHandler consumes sentiment events, one object or an array per message.
type SentimentHandler struct {
	topic   string
	store   domrepo.MarketStore
	metrics domrepo.Metrics
}

func NewSentimentHandler(topic string, store domrepo.MarketStore, metrics domrepo.Metrics) *SentimentHandler {
	return &SentimentHandler{topic: topic, store: store, metrics: metrics}
}

func (h *SentimentHandler) Topic() string { return h.topic }

func (h *SentimentHandler) Handle(ctx context.Context, b []byte) error {
	var evs []SentimentEvent
	var err error
	if trimmed := bytes.TrimSpace(b); len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &evs)
	} else {
		var ev SentimentEvent
		err = json.Unmarshal(b, &ev)
		evs = []SentimentEvent{ev}
	}
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode sentiment event: %w", err))
	}

	pts := make([]models.SentimentPoint, 0, len(evs))
	for _, ev := range evs {
		if err := eventValidate.Struct(ev); err != nil {
			h.metrics.RecordError("consumer_validate")
			return pkgkafka.Permanent(fmt.Errorf("invalid sentiment event: %w", err))
		}
		if ev.Time.IsZero() {
			h.metrics.RecordError("consumer_validate")
			return pkgkafka.Permanent(fmt.Errorf("sentiment event from %s has no time", ev.Source))
		}
		pts = append(pts, models.SentimentPoint{
			Time:      ev.Time.UTC(),
			Symbol:    ev.Symbol,
			Source:    ev.Source,
			Score:     ev.Score,
			Magnitude: ev.Magnitude,
		})
	}

	start := time.Now()
	err = h.store.StoreSentiment(ctx, pts)
	h.metrics.RecordComputation("ingest_sentiment", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	return nil
}

var (
	_ pkgkafka.MessageHandler = (*BarsHandler)(nil)
	_ pkgkafka.MessageHandler = (*SentimentHandler)(nil)
)
