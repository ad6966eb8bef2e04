package metrics

import (
	"fmt"
	"math"
	"time"

	"github.com/dvloznov/fraud-detection/internal/evaluate"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Collector on a private registry that is
// written out as a node_exporter textfile once the job finishes.
type PrometheusCollector struct {
	registry *prometheus.Registry

	stepDuration *prometheus.GaugeVec
	stepFailures *prometheus.CounterVec
	rows         *prometheus.GaugeVec
	evaluation   *prometheus.GaugeVec
	confusion    *prometheus.GaugeVec
	lastSuccess  prometheus.Gauge
	runSuccess   prometheus.Gauge
}

// NewPrometheusCollector creates a collector whose metric names start with
// namespace.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	pc := &PrometheusCollector{
		registry: prometheus.NewRegistry(),
		stepDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Wall time of each pipeline step in the last run",
			},
			[]string{"step"},
		),
		stepFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_failures_total",
				Help:      "Number of failed pipeline steps",
			},
			[]string{"step"},
		),
		rows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "dataset_rows",
				Help:      "Row count per data split",
			},
			[]string{"split"},
		),
		evaluation: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "evaluation_metric",
				Help:      "Binary classification metrics on the test split",
			},
			[]string{"metric"},
		),
		confusion: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "confusion_matrix",
				Help:      "Confusion matrix counts on the test split",
			},
			[]string{"actual", "predicted"},
		),
		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time the job last finished successfully",
			},
		),
		runSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_success",
				Help:      "1 if the last run succeeded, 0 otherwise",
			},
		),
	}

	pc.registry.MustRegister(
		pc.stepDuration,
		pc.stepFailures,
		pc.rows,
		pc.evaluation,
		pc.confusion,
		pc.lastSuccess,
		pc.runSuccess,
	)
	return pc
}

// RecordStep implements Collector.
func (pc *PrometheusCollector) RecordStep(step string, success bool, duration time.Duration) {
	pc.stepDuration.WithLabelValues(step).Set(duration.Seconds())
	if !success {
		pc.stepFailures.WithLabelValues(step).Inc()
	}
}

// RecordRows implements Collector.
func (pc *PrometheusCollector) RecordRows(split string, rows int) {
	pc.rows.WithLabelValues(split).Set(float64(rows))
}

// RecordEvaluation implements Collector. NaN metrics are not exported.
func (pc *PrometheusCollector) RecordEvaluation(m evaluate.Metrics) {
	for name, v := range map[string]float64{
		"accuracy":           m.Accuracy,
		"auc":                m.AUC,
		"auprc":              m.AUPRC,
		"f1":                 m.F1,
		"positive_precision": m.PositivePrecision,
		"positive_recall":    m.PositiveRecall,
		"negative_precision": m.NegativePrecision,
		"negative_recall":    m.NegativeRecall,
		"log_loss":           m.LogLoss,
		"log_loss_reduction": m.LogLossReduction,
	} {
		if math.IsNaN(v) {
			continue
		}
		pc.evaluation.WithLabelValues(name).Set(v)
	}

	c := m.Confusion
	pc.confusion.WithLabelValues("fraud", "fraud").Set(float64(c.TruePositives))
	pc.confusion.WithLabelValues("fraud", "legit").Set(float64(c.FalseNegatives))
	pc.confusion.WithLabelValues("legit", "fraud").Set(float64(c.FalsePositives))
	pc.confusion.WithLabelValues("legit", "legit").Set(float64(c.TrueNegatives))
}

// RecordRun implements Collector.
func (pc *PrometheusCollector) RecordRun(success bool, finished time.Time) {
	if success {
		pc.runSuccess.Set(1)
		pc.lastSuccess.Set(float64(finished.Unix()))
		return
	}
	pc.runSuccess.Set(0)
}

// Gatherer exposes the registry, e.g. for tests.
func (pc *PrometheusCollector) Gatherer() prometheus.Gatherer {
	return pc.registry
}

// WriteTextfile writes all collected metrics to path in the text exposition
// format. The file is replaced atomically.
func (pc *PrometheusCollector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, pc.registry); err != nil {
		return fmt.Errorf("WriteTextfile: %w", err)
	}
	return nil
}

var _ Collector = (*PrometheusCollector)(nil)
