package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-summaryview/internal/fhir/r4"
	"github.com/drfirst/go-summaryview/internal/observability/metrics"
	"github.com/drfirst/go-summaryview/internal/requestid"
	"github.com/drfirst/go-summaryview/pkg/circuitbreaker"
)

func loadFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("../summary/testdata/summary_bundle.json")
	require.NoError(t, err)
	return data
}

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: baseURL}, nil, opts...)
	require.NoError(t, err)
	return c
}

func TestFetchSummary_Success(t *testing.T) {
	fixture := loadFixture(t)
	var gotPath, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotRequestID = r.Header.Get("X-Request-ID")
		w.Header().Set("Content-Type", mimeFHIRJSON)
		_, _ = w.Write(fixture)
	}))
	defer srv.Close()

	m := metrics.New(prometheus.NewRegistry())
	c := newTestClient(t, srv.URL+"/", WithMetrics(m))

	ctx := requestid.NewContext(context.Background(), "req-123")
	bundle, err := c.FetchSummary(ctx, "pat-1")
	require.NoError(t, err)

	assert.Equal(t, "/pat-1/summary", gotPath)
	assert.Equal(t, "req-123", gotRequestID)
	assert.Equal(t, r4.TypeBundle, bundle.ResourceType)
	assert.NotEmpty(t, bundle.Entry)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SummaryFetches.WithLabelValues(metrics.OutcomeSuccess)))
}

func TestFetchSummary_EmptyIDMakesNoRequest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	bundle, err := c.FetchSummary(context.Background(), "")

	assert.Nil(t, bundle)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, MissingPatientIDMessage, err.Error())
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestFetchSummary_WhitespaceIDIsSent(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.FetchSummary(context.Background(), " ")

	assert.Equal(t, 404, StatusCode(err))
	assert.Equal(t, "/%20/summary", gotPath)
}

func TestFetchSummary_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"resourceType":"OperationOutcome","issue":[{"severity":"error","code":"not-found","diagnostics":"Patient abc not found"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.FetchSummary(context.Background(), "abc")
	require.Error(t, err)

	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, "HTTP error! Status: 404", err.Error())

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, "Patient abc not found", httpErr.Diagnostics)
	assert.Equal(t, metrics.OutcomeHTTPError, Outcome(err))
}

func TestFetchSummary_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"resourceType":"Patient","id":"p"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.FetchSummary(context.Background(), "p")

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.True(t, errors.Is(err, r4.ErrNotABundle))
	assert.Equal(t, metrics.OutcomeDecode, Outcome(err))
}

func TestFetchSummary_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond}, nil)
	require.NoError(t, err)

	_, err = c.FetchSummary(context.Background(), "slow")
	require.Error(t, err)
	assert.Equal(t, metrics.OutcomeTransport, Outcome(err))
}

func TestFetchSummary_BreakerIgnoresClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := BreakerConfig("summary-api")
	cfg.FailureThreshold = 2
	cb, err := circuitbreaker.New(cfg, nil)
	require.NoError(t, err)

	c := newTestClient(t, srv.URL, WithBreaker(cb))
	for i := 0; i < 5; i++ {
		_, err := c.FetchSummary(context.Background(), "missing")
		assert.Equal(t, 404, StatusCode(err))
	}
	assert.False(t, cb.IsOpen())
}

func TestFetchSummary_BreakerOpensOnServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := BreakerConfig("summary-api")
	cfg.FailureThreshold = 2
	cb, err := circuitbreaker.New(cfg, nil)
	require.NoError(t, err)

	c := newTestClient(t, srv.URL, WithBreaker(cb))
	for i := 0; i < 2; i++ {
		_, err := c.FetchSummary(context.Background(), "p")
		assert.Equal(t, 502, StatusCode(err))
	}

	_, err = c.FetchSummary(context.Background(), "p")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, metrics.OutcomeRejected, Outcome(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchSummary_BreakerIgnoresCancelledCallers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(loadFixture(t))
	}))
	defer srv.Close()

	cfg := BreakerConfig("summary-api")
	cfg.FailureThreshold = 2
	cb, err := circuitbreaker.New(cfg, nil)
	require.NoError(t, err)

	c := newTestClient(t, srv.URL, WithBreaker(cb))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		_, err := c.FetchSummary(ctx, "pat-1")
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.False(t, cb.IsOpen())

	_, err = c.FetchSummary(context.Background(), "pat-1")
	assert.NoError(t, err)
}

func TestSummaryURL_EscapesID(t *testing.T) {
	c := newTestClient(t, "https://fhir.example.org/Patient/")
	assert.Equal(t, "https://fhir.example.org/Patient/a%2Fb/summary", c.SummaryURL("a/b"))
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: "not a url"}, nil)
	assert.Error(t, err)
}
