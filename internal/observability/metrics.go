package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for task runs, plan steps and model
// calls. A nil *Metrics is valid and records nothing.
type Metrics struct {
	tasksFinished *prometheus.CounterVec
	tasksRunning  prometheus.Gauge
	stepDuration  *prometheus.HistogramVec
	llmRequests   *prometheus.CounterVec
	llmLatency    *prometheus.HistogramVec
}

// NewMetrics registers the collectors with reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wayfarer",
			Subsystem: "tasks",
			Name:      "finished_total",
			Help:      "Task runs that reached a terminal status.",
		}, []string{"status"}),
		tasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wayfarer",
			Subsystem: "tasks",
			Name:      "running",
			Help:      "Task runs currently executing.",
		}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wayfarer",
			Subsystem: "executor",
			Name:      "step_duration_seconds",
			Help:      "Time spent executing plan steps.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type", "outcome"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wayfarer",
			Subsystem: "llm",
			Name:      "attempts_total",
			Help:      "Model backend attempts, by purpose and outcome.",
		}, []string{"purpose", "outcome"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wayfarer",
			Subsystem: "llm",
			Name:      "latency_seconds",
			Help:      "Latency of model backend calls including retries.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"purpose"}),
	}

	collectors := []prometheus.Collector{m.tasksFinished, m.tasksRunning, m.stepDuration, m.llmRequests, m.llmLatency}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.tasksRunning.Inc()
}

func (m *Metrics) TaskFinished(status string) {
	if m == nil {
		return
	}
	m.tasksRunning.Dec()
	m.tasksFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveStep(stepType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(stepType, outcome).Observe(d.Seconds())
}

func (m *Metrics) LLMAttempt(purpose, outcome string) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(purpose, outcome).Inc()
}

func (m *Metrics) ObserveLLM(purpose string, d time.Duration) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(purpose).Observe(d.Seconds())
}
