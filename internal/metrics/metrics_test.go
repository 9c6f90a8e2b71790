package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.InboundEvents.WithLabelValues("new_message").Inc()
	m.MalformedDrops.Inc()
	m.QueueDepth.Set(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.InboundEvents.WithLabelValues("new_message")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.QueueDepth))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mmsync_malformed_events_total 1")
}
