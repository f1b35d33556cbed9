package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	domsvc "StockPulse/internal/domain/service"
	"StockPulse/internal/scheduler"
	"StockPulse/internal/service/cache"
	"StockPulse/internal/service/ratelimit"
	"StockPulse/internal/usecase"
	xhttp "StockPulse/pkg/http"
	xlogger "StockPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

const (
	SourceCache = "cache"
	SourceStore = "store"
)

// PredictionResponse is the served prediction and where it came from.
type PredictionResponse struct {
	Prediction models.PredictionRecord `json:"prediction"`
	Outcome    cache.Outcome           `json:"outcome"`
	Source     string                  `json:"source"`
	ValidUntil *time.Time              `json:"valid_until,omitempty"`
}

type CacheClearResponse struct {
	Cleared int `json:"cleared"`
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// TaskRunner fires scheduled tasks on demand.
type TaskRunner interface {
	Tasks() []string
	RunNow(name string) (bool, error)
}

type TaskRunResponse struct {
	Task    string `json:"task"`
	Started bool   `json:"started"`
}

type HealthFunc func(ctx context.Context) error

func (f HealthFunc) Health(ctx context.Context) error { return f(ctx) }

// PredictionHandler serves the dashboard, prediction and maintenance routes.
type PredictionHandler struct {
	logger    *xlogger.Logger
	dashboard *usecase.DashboardService
	engine    *usecase.PredictionEngine
	cache     *cache.PredictionCache
	reader    domrepo.MarketReader
	hours     domsvc.MarketHours
	clock     domsvc.Clock
	refreshRL *ratelimit.Limiter
	health    map[string]HealthChecker
	tasks     TaskRunner
}

type HandlerOption func(*PredictionHandler)

// WithRefreshLimit caps manual refreshes per client address.
func WithRefreshLimit(perMinute float64, burst int) HandlerOption {
	return func(h *PredictionHandler) {
		h.refreshRL = ratelimit.New(perMinute/60, burst)
	}
}

func WithHealthCheck(name string, hc HealthChecker) HandlerOption {
	return func(h *PredictionHandler) {
		if hc != nil {
			h.health[name] = hc
		}
	}
}

// WithTaskRunner exposes the scheduler's tasks for manual runs.
func WithTaskRunner(r TaskRunner) HandlerOption {
	return func(h *PredictionHandler) { h.tasks = r }
}

func WithHandlerClock(c domsvc.Clock) HandlerOption {
	return func(h *PredictionHandler) {
		if c != nil {
			h.clock = c
		}
	}
}

func NewPredictionHandler(
	lgr *xlogger.Logger,
	dashboard *usecase.DashboardService,
	engine *usecase.PredictionEngine,
	pc *cache.PredictionCache,
	reader domrepo.MarketReader,
	hours domsvc.MarketHours,
	opts ...HandlerOption,
) *PredictionHandler {
	if lgr == nil {
		lgr = xlogger.Nop()
	}
	h := &PredictionHandler{
		logger:    lgr.With(xlogger.String("component", "api")),
		dashboard: dashboard,
		engine:    engine,
		cache:     pc,
		reader:    reader,
		hours:     hours,
		clock:     domsvc.SystemClock,
		refreshRL: ratelimit.New(6.0/60, 3),
		health:    make(map[string]HealthChecker),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *PredictionHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/dashboard", h.Dashboard)
	g.GET("/prediction", h.Prediction)
	g.GET("/prediction/fast", h.FastPrediction)
	g.POST("/refresh", h.Refresh)
	g.DELETE("/cache", h.ClearCache)
	g.GET("/market-hours", h.MarketHours)
	g.GET("/history", h.History)
	if h.tasks != nil {
		g.GET("/tasks", h.ListTasks)
		g.POST("/tasks/:name/run", h.RunTask)
	}
}

func (h *PredictionHandler) Dashboard(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	snap, err := h.dashboard.Snapshot(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.fail(c, "dashboard", req.Symbol, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, snap)
}

// Prediction serves the current weighted prediction without computing one.
// A valid cache entry wins; otherwise the newest stored record is returned.
func (h *PredictionHandler) Prediction(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if e, ok := h.cache.Peek(req.Symbol); ok && h.clock.Now().Before(e.ExpiresAt) {
		return xhttp.SuccessResponse(c, PredictionResponse{
			Prediction: e.Record,
			Outcome:    cache.OutcomeHit,
			Source:     SourceCache,
			ValidUntil: &e.ExpiresAt,
		})
	}
	rec, err := h.reader.GetLatestPrediction(c.Request().Context(), req.Symbol, models.ModelComprehensive)
	if err != nil {
		return h.fail(c, "prediction", req.Symbol, err)
	}
	if rec == nil {
		return h.fail(c, "prediction", req.Symbol, usecase.ErrSymbolNotFound)
	}
	return xhttp.SuccessResponse(c, PredictionResponse{
		Prediction: *rec,
		Outcome:    cache.OutcomeStale,
		Source:     SourceStore,
	})
}

// FastPrediction runs the lightweight model on demand. It bypasses the
// stability cache and nothing is persisted.
func (h *PredictionHandler) FastPrediction(c echo.Context) error {
	req := &models.FastPredictionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	lb := usecase.DefaultLookback
	lb.NewsHours = req.NewsHours
	rec, err := h.engine.Fast(c.Request().Context(), req.Symbol, lb)
	if err != nil {
		return h.fail(c, "prediction_fast", req.Symbol, err)
	}
	return xhttp.SuccessResponse(c, rec)
}

func (h *PredictionHandler) Refresh(c echo.Context) error {
	req := &models.RefreshRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.refreshRL.Allow(c.RealIP()) {
		h.logger.Warn("refresh rate limited", xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many refresh requests"))
	}
	ack, err := h.dashboard.TriggerManualRefresh(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.fail(c, "refresh", req.Symbol, err)
	}
	return xhttp.AcceptedResponse(c, ack)
}

func (h *PredictionHandler) ClearCache(c echo.Context) error {
	req := &models.ClearCacheRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	var n int
	if req.Symbol == "" {
		n = h.cache.Clear(c.Request().Context())
	} else {
		n = h.cache.Clear(c.Request().Context(), req.Symbol)
	}
	h.logger.Info("prediction cache cleared", xlogger.String("symbol", req.Symbol), xlogger.Int("entries", n))
	return xhttp.SuccessResponse(c, CacheClearResponse{Cleared: n})
}

func (h *PredictionHandler) MarketHours(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.hours.Window(h.clock.Now()))
}

func (h *PredictionHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, err := h.reader.GetPriceHistory(c.Request().Context(), req.Symbol, req.Hours)
	if err != nil {
		return h.fail(c, "history", req.Symbol, err)
	}
	if rows == nil {
		rows = []models.PriceRecord{}
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *PredictionHandler) Health(c echo.Context) error {
	status := map[string]string{}
	healthy := true
	for name, hc := range h.health {
		if err := hc.Health(c.Request().Context()); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, status)
	}
	return xhttp.SuccessResponse(c, status)
}

func (h *PredictionHandler) ListTasks(c echo.Context) error {
	names := h.tasks.Tasks()
	return xhttp.ListResponse(c, names, int64(len(names)))
}

// RunTask starts one execution of a scheduled task outside its cadence. A
// task that is already running is left alone and reported as not started.
func (h *PredictionHandler) RunTask(c echo.Context) error {
	name := c.Param("name")
	started, err := h.tasks.RunNow(name)
	if errors.Is(err, scheduler.ErrUnknownTask) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown task %q", name).WithError(err))
	}
	if err != nil {
		return h.fail(c, "run_task", "", err)
	}
	h.logger.Info("task run requested", xlogger.String("task", name), xlogger.Bool("started", started))
	return xhttp.AcceptedResponse(c, TaskRunResponse{Task: name, Started: started})
}

func (h *PredictionHandler) fail(c echo.Context, op, symbol string, err error) error {
	switch {
	case errors.Is(err, usecase.ErrSymbolNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no data for %s", symbol).WithError(err))
	case errors.Is(err, usecase.ErrNoCurrentPrice):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no current price for %s", symbol).WithError(err))
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError(op+" timed out").WithError(err))
	}
	h.logger.Error(op+" failed", xlogger.Symbol(symbol), xlogger.Error(err))
	return xhttp.AppErrorResponse(c, err)
}
