// Package observer defines metrics hooks for sandbox execution.
package observer

import (
	"context"
	"time"
)

// MetricsRecorder records sandbox and judging metrics.
type MetricsRecorder interface {
	ObserveCompile(ctx context.Context, languageID string, ok bool, timeMs int64, memoryKB int64)
	ObserveRun(ctx context.Context, languageID string, verdict string, timeMs int64, memoryKB int64, outputBytes int64)
	ObserveJudge(ctx context.Context, languageID string, verdict string, state string, elapsed time.Duration)
	AddInFlight(delta float64)
}

// NoopMetricsRecorder discards all metrics.
type NoopMetricsRecorder struct{}

func (NoopMetricsRecorder) ObserveCompile(context.Context, string, bool, int64, int64) {}
func (NoopMetricsRecorder) ObserveRun(context.Context, string, string, int64, int64, int64) {}
func (NoopMetricsRecorder) ObserveJudge(context.Context, string, string, string, time.Duration) {}
func (NoopMetricsRecorder) AddInFlight(float64) {}
