package metrics

import (
	"strconv"

	"StockPulse/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stockpulse"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	jobRuns       *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobSkipped    *prometheus.CounterVec
	predictions   *prometheus.CounterVec
	confidence    *prometheus.GaugeVec
	cacheResults  *prometheus.CounterVec
	providerCalls *prometheus.CounterVec
	providerLat   *prometheus.HistogramVec
	lastPrice     *prometheus.GaugeVec
	errorsTotal   *prometheus.CounterVec
}

// New registers the recorder's collectors with reg. A nil reg uses the
// default Prometheus registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		jobRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_runs_total",
				Help:      "Scheduled job executions by outcome",
			},
			[]string{"job", "success"},
		),
		jobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Duration of scheduled job executions",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"job"},
		),
		jobSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_skipped_total",
				Help:      "Ticks skipped because the previous run was still busy or outside its window",
			},
			[]string{"job"},
		),
		predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "predictions_total",
				Help:      "Predictions produced by model and recommendation",
			},
			[]string{"symbol", "model", "recommendation"},
		),
		confidence: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "prediction_confidence",
				Help:      "Confidence of the latest prediction",
			},
			[]string{"symbol", "model"},
		),
		cacheResults: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "prediction_cache_results_total",
				Help:      "Prediction cache lookups by outcome",
			},
			[]string{"result"},
		),
		providerCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Outbound market data calls",
			},
			[]string{"provider", "endpoint", "success"},
		),
		providerLat: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Latency of outbound market data calls",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider", "endpoint"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_price",
				Help:      "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

func (r *Recorder) RecordJobRun(job string, success bool, seconds float64) {
	r.jobRuns.WithLabelValues(job, strconv.FormatBool(success)).Inc()
	r.jobDuration.WithLabelValues(job).Observe(seconds)
}

func (r *Recorder) RecordJobSkipped(job string) {
	r.jobSkipped.WithLabelValues(job).Inc()
}

func (r *Recorder) RecordPrediction(symbol, model string, rec models.Recommendation, confidence float64) {
	r.predictions.WithLabelValues(symbol, model, string(rec)).Inc()
	r.confidence.WithLabelValues(symbol, model).Set(confidence)
}

func (r *Recorder) RecordCacheResult(result string) {
	r.cacheResults.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordProviderCall(provider, endpoint string, success bool, seconds float64) {
	r.providerCalls.WithLabelValues(provider, endpoint, strconv.FormatBool(success)).Inc()
	r.providerLat.WithLabelValues(provider, endpoint).Observe(seconds)
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordJobRun(string, bool, float64)                              {}
func (Nop) RecordJobSkipped(string)                                         {}
func (Nop) RecordPrediction(string, string, models.Recommendation, float64) {}
func (Nop) RecordCacheResult(string)                                        {}
func (Nop) RecordProviderCall(string, string, bool, float64)                {}
func (Nop) RecordLastPrice(string, float64)                                 {}
func (Nop) RecordError(string)                                              {}
