package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics_ObserveOperation(t *testing.T) {
	m := NewPrometheusMetrics()

	m.ObserveOperation("refresh", OutcomeOK, 3*time.Millisecond)
	m.ObserveOperation("refresh", OutcomeOK, 5*time.Millisecond)
	m.ObserveOperation("refresh", "session_revoked", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("refresh", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("refresh", "session_revoked")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestPrometheusMetrics_Handler(t *testing.T) {
	m := NewPrometheusMetrics()
	m.ObserveOperation("login", OutcomeOK, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `sessionauth_auth_operations_total{operation="login",outcome="ok"} 1`)
	assert.Contains(t, body, "sessionauth_auth_operation_duration_seconds_bucket")
	assert.Contains(t, body, "go_goroutines")
}

func TestNopMetrics(t *testing.T) {
	var m Metrics = NopMetrics{}
	assert.NotPanics(t, func() { m.ObserveOperation("login", OutcomeOK, time.Second) })
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr string
	}{
		{"json info", "info", "json", ""},
		{"console debug", "debug", "console", ""},
		{"default format", "warn", "", ""},
		{"bad level", "verbose", "json", "invalid log level"},
		{"bad format", "info", "xml", "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.format)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}
