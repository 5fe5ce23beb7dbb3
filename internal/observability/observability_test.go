package observability_test

import (
	"FeeLedger/internal/observability"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_Readiness(t *testing.T) {
	h := observability.NewHealthChecker()
	assert.False(t, h.IsReady(), "not ready before recovery")

	h.SetReady(true)
	assert.True(t, h.IsReady())

	h.SetComponent("postgres", true)
	h.SetComponent("nats", false)
	assert.False(t, h.IsReady())
	assert.Equal(t, []string{"nats"}, h.Unhealthy())

	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body["status"])

	h.SetComponent("nats", true)
	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthChecker_LivenessAlwaysOK(t *testing.T) {
	h := observability.NewHealthChecker()
	rec := httptest.NewRecorder()
	h.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, observability.ParseLogLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, observability.ParseLogLevel("warning"))
	assert.Equal(t, zerolog.ErrorLevel, observability.ParseLogLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, observability.ParseLogLevel(""))
	assert.Equal(t, zerolog.InfoLevel, observability.ParseLogLevel("verbose"))
}

func TestNewLoggerTo(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLoggerTo(&buf, "core", zerolog.InfoLevel)
	logger.Debug().Msg("hidden")
	logger.Info().Int64("sequence", 7).Msg("applied")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "core", entry["component"])
	assert.Equal(t, "applied", entry["message"])
	assert.Equal(t, float64(7), entry["sequence"])
	assert.Contains(t, entry, "time")
}

func TestMetrics_SetChannelMetrics(t *testing.T) {
	m := observability.NewMetricsWith(prometheus.NewRegistry())
	m.SetChannelMetrics("persist", 256, 1024)

	assert.Equal(t, 256.0, testutil.ToFloat64(m.ChannelSize.WithLabelValues("persist")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.ChannelCapacity.WithLabelValues("persist")))
	assert.Equal(t, 0.25, testutil.ToFloat64(m.ChannelUtilization.WithLabelValues("persist")))

	// zero capacity leaves utilization untouched
	m.SetChannelMetrics("projection", 0, 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ChannelUtilization.WithLabelValues("projection")))
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		observability.NewMetricsWith(prometheus.NewRegistry())
		observability.NewMetricsWith(prometheus.NewRegistry())
	})
}
