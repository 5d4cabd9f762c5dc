package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"VolLens/internal/domain/models"
	domrepo "VolLens/internal/domain/repository"
	icache "VolLens/internal/service/cache"
	svcmetrics "VolLens/internal/service/metrics"
	"VolLens/internal/service/ratelimit"
	"VolLens/internal/services/analytics"
	"VolLens/internal/usecase"
	xhttp "VolLens/pkg/http"
	applogger "VolLens/pkg/logger"
	"VolLens/pkg/util"
)

const defaultCacheTTL = 30 * time.Second

// AnalysisHandler serves the analysis endpoints under /api.
type AnalysisHandler struct {
	an    *usecase.MarketAnalyzer
	snaps *usecase.SnapshotUseCase
	bars  *usecase.BarsUseCase
	cache icache.BytesCache
	ttl   time.Duration
	rl    *ratelimit.Limiter
	l     *applogger.Logger
}

func NewAnalysisHandler(an *usecase.MarketAnalyzer, snaps *usecase.SnapshotUseCase, bars *usecase.BarsUseCase, l *applogger.Logger) *AnalysisHandler {
	svcmetrics.Register()
	if l == nil {
		l = applogger.Nop()
	}
	return &AnalysisHandler{an: an, snaps: snaps, bars: bars, ttl: defaultCacheTTL, l: l}
}

// SetCache enables response caching; ttl <= 0 keeps the default.
func (h *AnalysisHandler) SetCache(c icache.BytesCache, ttl time.Duration) {
	h.cache = c
	if ttl > 0 {
		h.ttl = ttl
	}
}

func (h *AnalysisHandler) SetRateLimiter(rl *ratelimit.Limiter) { h.rl = rl }

func (h *AnalysisHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/bars", h.Bars)
	g.GET("/volatility", h.Volatility)
	g.GET("/cone", h.Cone)
	g.GET("/regime", h.Regime)
	g.GET("/correlation", h.Correlation)
	g.GET("/snapshot", h.Snapshot)
}

func (h *AnalysisHandler) Bars(c echo.Context) error {
	req := &models.BarsRequest{}
	return h.serve(c, "bars", req, func(ctx context.Context) (interface{}, error) {
		p := usecase.GetBarsParams{Symbol: req.Symbol, Limit: req.N, Timeframe: domrepo.NormalizeTimeframe(req.TF)}
		if req.From != "" || req.To != "" {
			from, okFrom := util.ParseTime(req.From)
			to, okTo := util.ParseTime(req.To)
			if !okFrom || !okTo {
				return nil, xhttp.BadRequestError("from and to must both be valid times")
			}
			if from.After(to) {
				return nil, xhttp.BadRequestError("from must not be after to")
			}
			p.From, p.To = from, to
		}
		return h.bars.GetBars(ctx, p)
	})
}

type volatilityResponse struct {
	Symbol     string         `json:"symbol"`
	Kind       models.VolKind `json:"kind"`
	Window     int            `json:"window"`
	Annualized bool           `json:"annualized"`
	Series     models.Series  `json:"series"`
}

func (h *AnalysisHandler) Volatility(c echo.Context) error {
	req := &models.VolatilityRequest{}
	return h.serve(c, "volatility", req, func(ctx context.Context) (interface{}, error) {
		kind, ok := models.ParseVolKind(req.Kind)
		if !ok {
			return nil, xhttp.BadRequestErrorf("unknown estimator %q", req.Kind)
		}
		s, err := h.an.Volatility(ctx, usecase.VolatilityParams{
			Symbol:    req.Symbol,
			Kind:      kind,
			Window:    req.Window,
			Annualize: !req.Raw,
			N:         req.N,
			Timeframe: domrepo.NormalizeTimeframe(req.TF),
		})
		if err != nil {
			return nil, err
		}
		return volatilityResponse{Symbol: req.Symbol, Kind: kind, Window: req.Window, Annualized: !req.Raw, Series: s}, nil
	})
}

func (h *AnalysisHandler) Cone(c echo.Context) error {
	req := &models.ConeRequest{}
	return h.serve(c, "cone", req, func(ctx context.Context) (interface{}, error) {
		view, err := h.an.Cone(ctx, req.Symbol, req.N, domrepo.NormalizeTimeframe(req.TF), req.Periods)
		if err != nil {
			return nil, err
		}
		if req.Summary {
			return view.Summary, nil
		}
		return view, nil
	})
}

func (h *AnalysisHandler) Regime(c echo.Context) error {
	req := &models.RegimeRequest{}
	return h.serve(c, "regime", req, func(ctx context.Context) (interface{}, error) {
		return h.an.Regime(ctx, req.Symbol, req.N, domrepo.NormalizeTimeframe(req.TF))
	})
}

func (h *AnalysisHandler) Correlation(c echo.Context) error {
	req := &models.CorrelationRequest{}
	return h.serve(c, "correlation", req, func(ctx context.Context) (interface{}, error) {
		return h.an.SentimentCorrelation(ctx, usecase.CorrelationParams{
			Symbol:    req.Symbol,
			Target:    req.Target,
			Lag:       req.Lag,
			Window:    req.Window,
			N:         req.N,
			Timeframe: domrepo.NormalizeTimeframe(req.TF),
		})
	})
}

func (h *AnalysisHandler) Snapshot(c echo.Context) error {
	req := &models.SnapshotRequest{}
	return h.serve(c, "snapshot", req, func(ctx context.Context) (interface{}, error) {
		return h.snaps.GetSnapshot(ctx, usecase.SnapshotParams{
			Symbol:    req.Symbol,
			N:         req.N,
			Timeframe: domrepo.NormalizeTimeframe(req.TF),
		})
	})
}

// serve binds and validates req, applies the rate limit and the response cache, and
// renders run's result in the standard envelope.
func (h *AnalysisHandler) serve(c echo.Context, endpoint string, req interface{}, run func(ctx context.Context) (interface{}, error)) error {
	start := time.Now()
	defer func() { svcmetrics.EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		svcmetrics.EndpointErrors.WithLabelValues(endpoint, "ERR_VALIDATION").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.rl != nil && !h.rl.Allow(c.RealIP()+":"+endpoint) {
		h.l.Warn("api rate_limited", applogger.String("endpoint", endpoint), applogger.String("remote", c.RealIP()))
		svcmetrics.EndpointErrors.WithLabelValues(endpoint, "ERR_RATE_LIMITED").Inc()
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited"))
	}

	ctx := c.Request().Context()
	key := endpoint + ":" + c.QueryParams().Encode()
	if h.cache != nil {
		b, ok, err := h.cache.GetBytes(ctx, key)
		switch {
		case err != nil:
			svcmetrics.CacheLookups.WithLabelValues(endpoint, "error").Inc()
			h.l.Warn("api cache_get_error", applogger.String("endpoint", endpoint), applogger.Error(err))
		case ok:
			svcmetrics.CacheLookups.WithLabelValues(endpoint, "hit").Inc()
			return xhttp.BlobResponse(c, b, xhttp.CacheHit)
		default:
			svcmetrics.CacheLookups.WithLabelValues(endpoint, "miss").Inc()
		}
	}

	data, err := run(ctx)
	if err != nil {
		appErr := analysisError(err)
		svcmetrics.EndpointErrors.WithLabelValues(endpoint, appErr.Code).Inc()
		fields := []applogger.Field{applogger.String("endpoint", endpoint), applogger.String("code", appErr.Code), applogger.Error(err)}
		if appErr.Status >= http.StatusInternalServerError {
			h.l.Error("api request failed", fields...)
		} else {
			h.l.Debug("api request without result", fields...)
		}
		return xhttp.AppErrorResponse(c, appErr)
	}

	b, err := xhttp.MarshalEnvelope(data)
	if err != nil {
		h.l.Error("api marshal_error", applogger.String("endpoint", endpoint), applogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	if h.cache == nil {
		return xhttp.BlobResponse(c, b, "")
	}
	if err := h.cache.SetBytes(ctx, key, b, h.ttl); err != nil {
		h.l.Warn("api cache_set_error", applogger.String("endpoint", endpoint), applogger.Error(err))
	}
	return xhttp.BlobResponse(c, b, xhttp.CacheMiss)
}

// analysisError maps use case and analytics errors onto HTTP application errors.
func analysisError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, analytics.ErrPrecondition):
		return xhttp.UnprocessableError("ERR_PRECONDITION", err.Error()).WithError(err)
	case errors.Is(err, analytics.ErrInsufficientData):
		return xhttp.UnprocessableError("ERR_INSUFFICIENT_DATA", err.Error()).WithError(err)
	case errors.Is(err, analytics.ErrEmptyOverlap):
		return xhttp.ConflictError("ERR_EMPTY_OVERLAP", err.Error()).WithError(err)
	case errors.Is(err, analytics.ErrMalformedSeries):
		return xhttp.NewAppError("ERR_MALFORMED_SERIES", "", err.Error(), http.StatusBadRequest).WithError(err)
	case errors.Is(err, analytics.ErrInvalidConfig):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrNoBars):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, domrepo.ErrStoreUnavailable):
		return xhttp.ServiceUnavailableError("market store unavailable").WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.NewAppError("ERR_TIMEOUT", "", "analysis timed out", http.StatusGatewayTimeout).WithError(err)
	}
	return xhttp.InternalError("internal error").WithError(err)
}

var _ xhttp.Handler = (*AnalysisHandler)(nil)
