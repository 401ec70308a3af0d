package api

import (
	"net/http"
	"time"

	"github.com/nerrad567/mcuctrl/internal/mcu"
	"github.com/nerrad567/mcuctrl/internal/reconcile"
)

// statusResponse is the body of GET /status.
type statusResponse struct {
	Version             string          `json:"version"`
	PID                 int             `json:"pid"`
	UptimeSeconds       int64           `json:"uptime_seconds"`
	State               reconcile.State `json:"state"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	Thresholds          *thresholds     `json:"thresholds,omitempty"`
	LastResult          *resultResponse `json:"last_result,omitempty"`
}

type thresholds struct {
	MinPWM            byte  `json:"min_pwm"`
	MaxPWM            byte  `json:"max_pwm"`
	DefaultBrightness byte  `json:"default_brightness"`
	IntervalSeconds   int64 `json:"interval_seconds"`
}

// resultResponse flattens reconcile.Result with its error as text.
type resultResponse struct {
	reconcile.Result
	Error string `json:"error,omitempty"`
}

func newResultResponse(res reconcile.Result) *resultResponse {
	out := &resultResponse{Result: res}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

// handleStatus reports process and reconciler state.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Version:       s.version,
		PID:           s.pid,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		State:         reconcile.StateStopped,
	}

	if s.reconciler != nil {
		cfg := s.reconciler.Config()
		resp.State = s.reconciler.State()
		resp.ConsecutiveFailures = s.reconciler.ConsecutiveFailures()
		resp.Thresholds = &thresholds{
			MinPWM:            cfg.MinPWM,
			MaxPWM:            cfg.MaxPWM,
			DefaultBrightness: cfg.DefaultBrightness,
			IntervalSeconds:   int64(cfg.Interval.Seconds()),
		}
		if res, ok := s.reconciler.LastResult(); ok {
			resp.LastResult = newResultResponse(res)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleReconcile runs a pass immediately.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if s.reconciler == nil {
		writeUnavailable(w, "reconciler not running")
		return
	}

	res, err := s.reconciler.Tick(mcu.WithSource(r.Context(), apiSource))
	if err != nil {
		s.logger.Warn("API reconcile pass failed", "pass_id", res.PassID, "error", err)
		writeMCUError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newResultResponse(res))
}
