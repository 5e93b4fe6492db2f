package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "codeowl"

// Metrics groups every collector the services export. Each instance owns a
// private registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	AnswerChecks       *prometheus.CounterVec
	CodeExecutions     *prometheus.HistogramVec
	LessonCompletions  *prometheus.CounterVec
	HeartDeductions    prometheus.Counter
	StoreWriteFailures *prometheus.CounterVec
	ActiveRuns         prometheus.Gauge

	LeagueRuns        *prometheus.CounterVec
	LeagueTransitions *prometheus.CounterVec

	RealtimeClients prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		AnswerChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answer_checks_total",
			Help:      "Checked answers by question kind and outcome.",
		}, []string{"kind", "outcome"}),
		CodeExecutions: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "code_execution_seconds",
			Help:      "Round trip to the code execution sandbox.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"outcome"}),
		LessonCompletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lesson_completions_total",
			Help:      "Completed lesson runs by mode.",
		}, []string{"mode"}),
		HeartDeductions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heart_deductions_total",
			Help:      "Hearts deducted for incorrect answers.",
		}),
		StoreWriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_write_failures_total",
			Help:      "Queued store writes that failed.",
		}, []string{"op"}),
		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lesson_runs_active",
			Help:      "Lesson runs currently held in memory.",
		}),
		LeagueRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "league_runs_total",
			Help:      "Weekly league processing attempts by outcome.",
		}, []string{"outcome"}),
		LeagueTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "league_transitions_total",
			Help:      "League promotions and demotions.",
		}, []string{"action"}),
		RealtimeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_clients",
			Help:      "Connected realtime feed clients.",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.AnswerChecks,
		m.CodeExecutions,
		m.LessonCompletions,
		m.HeartDeductions,
		m.StoreWriteFailures,
		m.ActiveRuns,
		m.LeagueRuns,
		m.LeagueTransitions,
		m.RealtimeClients,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
