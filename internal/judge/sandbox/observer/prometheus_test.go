package observer_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"algojudge/internal/judge/sandbox/observer"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := observer.NewPrometheusRecorder(reg)
	ctx := context.Background()

	rec.ObserveCompile(ctx, "cpp", true, 1200, 0)
	rec.ObserveRun(ctx, "cpp", "AC", 10, 2048, 0)
	rec.ObserveRun(ctx, "cpp", "AC", 12, 2048, 0)
	rec.ObserveRun(ctx, "cpp", "WA", 12, 2048, 0)
	rec.ObserveJudge(ctx, "cpp", "WA", "Completed", 2*time.Second)
	rec.AddInFlight(1)
	rec.AddInFlight(1)
	rec.AddInFlight(-1)

	if got := gatherValue(t, reg, "judge_testcase_total", map[string]string{"verdict": "AC"}); got != 2 {
		t.Fatalf("AC runs = %v", got)
	}
	if got := gatherValue(t, reg, "judge_compile_total", map[string]string{"ok": "true"}); got != 1 {
		t.Fatalf("compiles = %v", got)
	}
	if got := gatherValue(t, reg, "judge_submissions_total", map[string]string{"state": "Completed"}); got != 1 {
		t.Fatalf("judges = %v", got)
	}
	if got := gatherValue(t, reg, "judge_in_flight", nil); got != 1 {
		t.Fatalf("in flight = %v", got)
	}
}

func TestNoopRecorderSatisfiesInterface(t *testing.T) {
	var rec observer.MetricsRecorder = observer.NoopMetricsRecorder{}
	rec.ObserveRun(context.Background(), "python", "AC", 1, 1, 1)
}

// gatherValue sums counter and gauge samples of one family matching labels.
func gatherValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	total := 0.0
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			matched := 0
			for _, pair := range metric.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want == pair.GetValue() {
					matched++
				}
			}
			if matched != len(labels) {
				continue
			}
			total += metric.GetCounter().GetValue() + metric.GetGauge().GetValue()
		}
	}
	return total
}
