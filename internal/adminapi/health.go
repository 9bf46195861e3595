package adminapi

import (
	"encoding/json"
	"net/http"
	"time"
)

// healthStatus is the /healthz and /readyz response shape.
type healthStatus struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime,omitempty"`
	Staging    string `json:"staging,omitempty"`
	Relational string `json:"relational,omitempty"`
	Leader     *bool  `json:"leader,omitempty"`
}

// handleHealthz reports liveness: the process is up, independent of
// whether its dependencies are reachable.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	uptime := ""
	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	s.writeJSON(w, http.StatusOK, healthStatus{Status: "healthy", Uptime: uptime, Leader: s.leaderFlag()})
}

// handleReadyz reports readiness: both store dependencies must answer a
// health probe within their own timeout for this worker to be considered
// ready to take traffic.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := healthStatus{Status: "ready", Leader: s.leaderFlag()}
	ready := true

	if s.staging != nil {
		if err := s.staging.HealthCheck(ctx); err != nil {
			status.Staging = "unreachable: " + err.Error()
			ready = false
		} else {
			status.Staging = "ok"
		}
	}

	if s.relational != nil {
		if err := s.relational.HealthCheck(ctx); err != nil {
			status.Relational = "unreachable: " + err.Error()
			ready = false
		} else {
			status.Relational = "ok"
		}
	}

	code := http.StatusOK
	if !ready {
		status.Status = "not_ready"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, status)
}

func (s *Server) leaderFlag() *bool {
	if s.isLeader == nil {
		return nil
	}

	v := s.isLeader()

	return &v
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(data)
}
