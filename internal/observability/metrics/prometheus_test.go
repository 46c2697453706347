package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetBreakerState(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetBreakerState("summary-api", "open")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("summary-api")))

	m.SetBreakerState("summary-api", "half-open")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("summary-api")))

	m.SetBreakerState("summary-api", "closed")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("summary-api")))
}

func TestFetchCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SummaryFetches.WithLabelValues(OutcomeSuccess).Inc()
	m.SummaryFetches.WithLabelValues(OutcomeHTTPError).Inc()
	m.SummaryFetches.WithLabelValues(OutcomeHTTPError).Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SummaryFetches.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SummaryFetches.WithLabelValues(OutcomeHTTPError)))
}
