package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/mcuctrl/internal/mcu"
	"github.com/nerrad567/mcuctrl/internal/reconcile"
)

func TestPassCompleted_Outcomes(t *testing.T) {
	m := New()
	ctx := context.Background()
	started := time.Unix(1767225600, 0)

	m.PassCompleted(ctx, reconcile.Result{StartedAt: started, Snapshot: reconcile.Snapshot{PWMMin: 10, PWMMax: 90, Brightness: 20}})
	m.PassCompleted(ctx, reconcile.Result{StartedAt: started, Diverged: true, Snapshot: reconcile.Snapshot{PWMMin: 3, PWMMax: 90, Brightness: 55}})
	m.PassCompleted(ctx, reconcile.Result{StartedAt: started, Err: fmt.Errorf("pass: %w", mcu.ErrBusIO)})
	m.PassCompleted(ctx, reconcile.Result{StartedAt: started, Err: context.Canceled})

	tests := []struct {
		outcome string
		want    float64
	}{
		{OutcomeOK, 1},
		{OutcomeCorrected, 1},
		{OutcomeFailed, 2},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(m.passes.WithLabelValues(tt.outcome)); got != tt.want {
			t.Errorf("passes{outcome=%q} = %v, want %v", tt.outcome, got, tt.want)
		}
	}

	if got := testutil.ToFloat64(m.busErrors); got != 1 {
		t.Errorf("bus_errors_total = %v, want 1", got)
	}
	// Gauges hold the last successful snapshot, not the failed passes.
	if got := testutil.ToFloat64(m.registers.WithLabelValues("pwm_min")); got != 3 {
		t.Errorf("register_value{pwm_min} = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.registers.WithLabelValues("brightness")); got != 55 {
		t.Errorf("register_value{brightness} = %v, want 55", got)
	}
	if got := testutil.ToFloat64(m.lastPass); got != 1767225600 {
		t.Errorf("last_pass_timestamp_seconds = %v, want 1767225600", got)
	}
}

func TestRegisterWritten(t *testing.T) {
	m := New()
	ctx := context.Background()

	m.RegisterWritten(ctx, mcu.WriteEvent{Register: "pwm_min", Kind: mcu.WriteCorrective})
	m.RegisterWritten(ctx, mcu.WriteEvent{Register: "pwm_min", Kind: mcu.WriteCorrective})
	m.RegisterWritten(ctx, mcu.WriteEvent{Register: "brightness", Kind: mcu.WritePrimary})

	if got := testutil.ToFloat64(m.writes.WithLabelValues("pwm_min", "corrective")); got != 2 {
		t.Errorf("writes{pwm_min,corrective} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.writes.WithLabelValues("brightness", "primary")); got != 1 {
		t.Errorf("writes{brightness,primary} = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RegisterWritten(context.Background(), mcu.WriteEvent{Register: "brightness", Kind: mcu.WritePrimary})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	for _, want := range []string{
		`mcuctrl_register_writes_total{kind="primary",register="brightness"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNew_Independent(t *testing.T) {
	a, b := New(), New()
	a.RegisterWritten(context.Background(), mcu.WriteEvent{Register: "volume", Kind: mcu.WritePrimary})

	if got := testutil.ToFloat64(b.writes.WithLabelValues("volume", "primary")); got != 0 {
		t.Errorf("second registry saw %v writes, want 0", got)
	}
}
