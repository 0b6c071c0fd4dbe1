package observer

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder exports judge metrics through a prometheus registerer.
type PrometheusRecorder struct {
	CompileTotal    *prometheus.CounterVec
	CompileDuration *prometheus.HistogramVec
	RunTotal        *prometheus.CounterVec
	RunCPUTime      *prometheus.HistogramVec
	RunMemory       *prometheus.HistogramVec
	JudgeTotal      *prometheus.CounterVec
	JudgeDuration   *prometheus.HistogramVec
	JudgeInFlight   prometheus.Gauge
}

// NewPrometheusRecorder registers the judge collectors on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		CompileTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_compile_total",
			Help: "Total number of compilations",
		}, []string{"language", "ok"}),
		CompileDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "judge_compile_cpu_seconds",
			Help:    "CPU time spent compiling",
			Buckets: prometheus.DefBuckets,
		}, []string{"language"}),
		RunTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_testcase_total",
			Help: "Total number of executed test cases by verdict",
		}, []string{"language", "verdict"}),
		RunCPUTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "judge_testcase_cpu_seconds",
			Help:    "CPU time of executed test cases",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"language"}),
		RunMemory: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "judge_testcase_memory_bytes",
			Help:    "Peak memory of executed test cases",
			Buckets: prometheus.ExponentialBuckets(1<<20, 2, 12),
		}, []string{"language"}),
		JudgeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_submissions_total",
			Help: "Total number of judging passes by final verdict",
		}, []string{"language", "verdict", "state"}),
		JudgeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "judge_submission_duration_seconds",
			Help:    "Wall time of a full judging pass",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"language"}),
		JudgeInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "judge_in_flight",
			Help: "Number of judging passes currently running",
		}),
	}
}

func (m *PrometheusRecorder) ObserveCompile(_ context.Context, languageID string, ok bool, timeMs int64, _ int64) {
	m.CompileTotal.WithLabelValues(languageID, strconv.FormatBool(ok)).Inc()
	m.CompileDuration.WithLabelValues(languageID).Observe(float64(timeMs) / 1000)
}

func (m *PrometheusRecorder) ObserveRun(_ context.Context, languageID string, verdict string, timeMs int64, memoryKB int64, _ int64) {
	m.RunTotal.WithLabelValues(languageID, verdict).Inc()
	m.RunCPUTime.WithLabelValues(languageID).Observe(float64(timeMs) / 1000)
	if memoryKB > 0 {
		m.RunMemory.WithLabelValues(languageID).Observe(float64(memoryKB) * 1024)
	}
}

func (m *PrometheusRecorder) ObserveJudge(_ context.Context, languageID string, verdict string, state string, elapsed time.Duration) {
	m.JudgeTotal.WithLabelValues(languageID, verdict, state).Inc()
	m.JudgeDuration.WithLabelValues(languageID).Observe(elapsed.Seconds())
}

func (m *PrometheusRecorder) AddInFlight(delta float64) {
	m.JudgeInFlight.Add(delta)
}
