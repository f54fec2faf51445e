// Package telemetry records prepare and validation outcomes as Prometheus
// metrics and structured log lines.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"lookbook-ai/internal/pipeline"
	"lookbook-ai/internal/preset"
)

const namespace = "lookbook"

type Metrics struct {
	prepared    *prometheus.CounterVec
	validations *prometheus.CounterVec
	score       *prometheus.HistogramVec
	failedCheck *prometheus.CounterVec
	logger      *slog.Logger
}

// New registers the collectors on reg. A nil reg uses a private registry so
// tests can build several instances.
func New(reg prometheus.Registerer, logger *slog.Logger) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	m := &Metrics{
		prepared: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompts_prepared_total",
			Help:      "Prompts assembled, by preset used and scenario fallback.",
		}, []string{"preset", "fallback", "blocked"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Validation runs by outcome and preset.",
		}, []string{"result", "preset"}),
		score: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_score",
			Help:      "Weighted validation score.",
			Buckets:   []float64{0.2, 0.4, 0.6, 0.7, 0.8, 0.9, 0.95, 1},
		}, []string{"preset"}),
		failedCheck: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_check_failures_total",
			Help:      "Failed individual checks by name.",
		}, []string{"check"}),
		logger: logger,
	}

	for _, c := range []prometheus.Collector{m.prepared, m.validations, m.score, m.failedCheck} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ObservePrepare(p pipeline.Prepared) {
	used := preset.NeutralID
	if p.Assembly.PresetUsed != nil {
		used = p.Assembly.PresetUsed.ID
	} else if p.PresetRequested != "" {
		used = "rejected"
	}
	m.prepared.WithLabelValues(
		used,
		strconv.FormatBool(p.Selection.Fallback),
		strconv.FormatBool(p.Assembly.Blocked),
	).Inc()
}

func (m *Metrics) RecordValidation(ctx context.Context, r pipeline.ValidationReport) {
	label := r.PresetID
	if label == "" {
		label = preset.NeutralID
	}
	result := "fail"
	if r.Result.Passed {
		result = "pass"
	}

	m.validations.WithLabelValues(result, label).Inc()
	m.score.WithLabelValues(label).Observe(r.Result.Score)

	var failed []string
	for name, ch := range r.Result.Checks {
		if !ch.Passed {
			m.failedCheck.WithLabelValues(name).Inc()
			failed = append(failed, name)
		}
	}

	m.logger.LogAttrs(ctx, slog.LevelDebug, "validation recorded",
		slog.String("request_id", r.RequestID),
		slog.String("preset", label),
		slog.String("result", result),
		slog.Float64("score", r.Result.Score),
		slog.Any("failed_checks", failed),
	)
}

var (
	_ pipeline.Sink            = (*Metrics)(nil)
	_ pipeline.PrepareObserver = (*Metrics)(nil)
)
