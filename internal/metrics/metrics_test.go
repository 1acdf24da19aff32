package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordEvent("text")
	m.RecordDropped("blocked")
	m.RecordUserCreated()
	m.RecordDelivery("ok")
	m.RecordDirectoryLookup("hit")
	m.RecordTransition("idle")
	m.SetActiveSessions(3)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCountersAndExposition(t *testing.T) {
	m := New()
	m.RecordEvent("action")
	m.RecordEvent("action")
	m.RecordDelivery("ok")
	m.SetActiveSessions(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsReceived.WithLabelValues("action")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.activeSessions))

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "relay_events_received_total"))
}
