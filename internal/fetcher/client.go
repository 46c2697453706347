// Package fetcher retrieves patient summary bundles from the configured
// summary endpoint.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-summaryview/internal/fhir/r4"
	"github.com/drfirst/go-summaryview/internal/observability/metrics"
	"github.com/drfirst/go-summaryview/internal/requestid"
	"github.com/drfirst/go-summaryview/pkg/circuitbreaker"
)

const mimeFHIRJSON = "application/fhir+json"

// maxBodyBytes caps the summary document read from upstream.
const maxBodyBytes = 32 << 20

// Config holds fetcher configuration
type Config struct {
	// BaseURL is the summary endpoint; requests go to {BaseURL}/{id}/summary.
	BaseURL string
	// Timeout bounds one fetch. Zero means no client-side timeout.
	Timeout time.Duration
}

// Client fetches summary bundles.
type Client struct {
	baseURL  string
	http     *http.Client
	breaker  *circuitbreaker.CircuitBreaker
	metrics  *metrics.Metrics
	logger   *zap.Logger
	tracer   trace.Tracer
	validate *validator.Validate
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBreaker routes every call through cb.
func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// WithMetrics records fetch outcomes and durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a Client.
func New(cfg Config, logger *zap.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid summary base url %q: %w", cfg.BaseURL, err)
	}

	c := &Client{
		baseURL:  base,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   logger,
		tracer:   otel.Tracer("summary-fetcher"),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BreakerConfig returns the breaker settings suited to the summary endpoint:
// 4xx answers do not trip it.
func BreakerConfig(name string) circuitbreaker.Config {
	cfg := circuitbreaker.DefaultConfig(name)
	cfg.IsSuccessful = func(err error) bool { return !countsAgainstUpstream(err) }
	return cfg
}

type lookupRequest struct {
	PatientID string `validate:"required"`
}

// Validate checks a patient id without touching the network.
func (c *Client) Validate(patientID string) error {
	if err := c.validate.Struct(lookupRequest{PatientID: patientID}); err != nil {
		return &ValidationError{Field: "patientId", Message: MissingPatientIDMessage}
	}
	return nil
}

// SummaryURL returns the request URL for a patient id.
func (c *Client) SummaryURL(patientID string) string {
	return c.baseURL + "/" + url.PathEscape(patientID) + "/summary"
}

// FetchSummary retrieves and decodes the summary bundle for patientID.
// There is no retry: every failure is final for this call.
func (c *Client) FetchSummary(ctx context.Context, patientID string) (*r4.Bundle, error) {
	if err := c.Validate(patientID); err != nil {
		c.observe(err, 0)
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "fetch_summary",
		trace.WithAttributes(attribute.String("patient_id", patientID)))
	defer span.End()

	requestID := requestid.FromContext(ctx)
	c.logger.Info("fetching patient summary",
		zap.String("request_id", requestID),
		zap.String("patient_id", patientID))

	if c.metrics != nil {
		c.metrics.FetchesInFlight.Inc()
		defer c.metrics.FetchesInFlight.Dec()
	}

	start := time.Now()
	bundle, err := c.execute(ctx, patientID)
	c.observe(err, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("patient summary fetch failed",
			zap.String("request_id", requestID),
			zap.String("patient_id", patientID),
			zap.String("outcome", Outcome(err)),
			zap.Error(err))
		return nil, err
	}

	span.SetAttributes(attribute.Int("bundle.entries", len(bundle.Entry)))
	c.logger.Info("patient summary retrieved",
		zap.String("request_id", requestID),
		zap.String("patient_id", patientID),
		zap.Int("entries", len(bundle.Entry)))
	return bundle, nil
}

func (c *Client) execute(ctx context.Context, patientID string) (*r4.Bundle, error) {
	if c.breaker == nil {
		return c.do(ctx, patientID)
	}
	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.do(ctx, patientID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*r4.Bundle), nil
}

func (c *Client) do(ctx context.Context, patientID string) (*r4.Bundle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.SummaryURL(patientID), nil)
	if err != nil {
		return nil, fmt.Errorf("create summary request: %w", err)
	}
	req.Header.Set("Accept", mimeFHIRJSON+", application/json")
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.Header, id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send summary request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read summary response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Diagnostics: diagnostics(body)}
	}

	bundle, err := r4.ParseBundle(body)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return bundle, nil
}

// diagnostics extracts the first OperationOutcome issue from an error body.
func diagnostics(body []byte) string {
	var outcome r4.OperationOutcome
	if err := json.Unmarshal(body, &outcome); err != nil || outcome.ResourceType != r4.TypeOperationOutcome {
		return ""
	}
	return outcome.FirstDiagnostics()
}

func (c *Client) observe(err error, d time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.SummaryFetches.WithLabelValues(Outcome(err)).Inc()
	if d > 0 {
		c.metrics.FetchDuration.Observe(d.Seconds())
	}
}
