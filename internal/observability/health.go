package observability

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// HealthChecker manages liveness and readiness state.
// /healthz is liveness, /readyz is readiness.
type HealthChecker struct {
	ready     atomic.Bool
	startTime time.Time

	mu         sync.RWMutex
	components map[string]bool
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		startTime:  time.Now(),
		components: make(map[string]bool),
	}
}

// SetReady marks the service as ready to accept traffic.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// SetComponent records the health of a dependency (postgres, nats, ...).
// Readiness requires every recorded component to be healthy.
func (h *HealthChecker) SetComponent(name string, healthy bool) {
	h.mu.Lock()
	h.components[name] = healthy
	h.mu.Unlock()
}

// IsReady returns whether the service is ready.
func (h *HealthChecker) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ok := range h.components {
		if !ok {
			return false
		}
	}
	return true
}

// Uptime is the time since the checker was created.
func (h *HealthChecker) Uptime() time.Duration {
	return time.Since(h.startTime)
}

// Unhealthy lists components currently reporting unhealthy, sorted.
func (h *HealthChecker) Unhealthy() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []string
	for name, ok := range h.components {
		if !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// LivenessHandler always returns 200 while the process runs.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "alive",
		"uptime": h.Uptime().String(),
	})
}

// ReadinessHandler returns 200 once recovery and replay are done and every
// dependency is healthy, 503 otherwise.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if h.IsReady() {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ready"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
		"status":    "not_ready",
		"unhealthy": h.Unhealthy(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
