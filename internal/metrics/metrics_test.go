package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectorsOnce(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()

	m1 := New()
	m2 := New()
	assert.Same(t, m1, m2)
}

func TestObserveCommandIncrementsCounters(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()
	m := New()

	initial := testutil.ToFloat64(m.CommandsTotal.WithLabelValues("send_messages", "ok"))
	m.ObserveCommand("send_messages", "ok", 0.002)
	assert.Equal(t, initial+1, testutil.ToFloat64(m.CommandsTotal.WithLabelValues("send_messages", "ok")))
}

func TestConsumerLagGauge(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()
	m := New()

	m.ConsumerLag.WithLabelValues("prod", "events", "0", "worker-1").Set(42)
	assert.Equal(t, float64(42), testutil.ToFloat64(m.ConsumerLag.WithLabelValues("prod", "events", "0", "worker-1")))
}

func TestHandlerServesPrometheusFormat(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()
	m := New()
	m.MessagesSent.WithLabelValues("prod", "events").Add(3)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "streamkeg_messages_sent_total")
}
