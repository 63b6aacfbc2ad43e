package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRecord(t *testing.T) {
	m := New()

	m.ObserveRecord("resize", OutcomeOK, 5*time.Millisecond)
	m.ObserveRecord("resize", OutcomeOK, 7*time.Millisecond)
	m.ObserveRecord("load", OutcomeFailed, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.records.WithLabelValues("resize", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.records.WithLabelValues("load", OutcomeFailed)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRecord("save", OutcomeOK, time.Millisecond)
		m.ObserveRun("linear", time.Second)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRun("parallel", 300*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "imageresize_run_duration_seconds"))
}
