package handlers

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/drfirst/go-summaryview/internal/api/middleware"
	"github.com/drfirst/go-summaryview/internal/audit"
	"github.com/drfirst/go-summaryview/internal/auth"
	"github.com/drfirst/go-summaryview/internal/fetcher"
	"github.com/drfirst/go-summaryview/internal/summary"
	"github.com/drfirst/go-summaryview/pkg/circuitbreaker"
)

// SummaryHandler serves extracted patient summaries as JSON.
type SummaryHandler struct {
	fetcher SummaryFetcher
	opts    Options
	logger  *zap.Logger
}

// NewSummaryHandler creates a new summary API handler
func NewSummaryHandler(f SummaryFetcher, opts Options, logger *zap.Logger) *SummaryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryHandler{
		fetcher: f,
		opts:    opts.withDefaults(),
		logger:  logger,
	}
}

// Routes returns the router for summary endpoints
func (h *SummaryHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(h.opts.LookupLimit).Get("/{id}/summary", h.Get)
	return r
}

// SummaryResponse is the JSON view of a patient summary.
type SummaryResponse struct {
	PatientID string `json:"patientId"`
	// Demographics is null when the viewer must log in to see it.
	Demographics  *summary.Demographics   `json:"demographics"`
	LoginRequired bool                    `json:"loginRequired,omitempty"`
	Allergies     []summary.AllergyRow    `json:"allergies"`
	Medications   []summary.MedicationRow `json:"medications"`
	Unresolved    map[string][]string     `json:"unresolved,omitempty"`
}

// Get handles GET /api/v1/patients/{id}/summary
func (h *SummaryHandler) Get(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "id")
	authenticated := auth.IsAuthenticated(r.Context())

	if h.opts.Gate == auth.GateAll && !authenticated {
		jsonError(w, "login required", http.StatusUnauthorized)
		return
	}

	bundle, err := h.fetcher.FetchSummary(r.Context(), patientID)
	if err != nil {
		var validationErr *fetcher.ValidationError
		if !errors.As(err, &validationErr) {
			h.opts.Recorder.Record(r.Context(), accessEvent(r, audit.ChannelAPI, patientID, err, nil))
		}
		h.fetchError(w, r, patientID, err)
		return
	}

	sum := summary.Build(bundle, h.opts.Matcher)
	h.opts.Recorder.Record(r.Context(), accessEvent(r, audit.ChannelAPI, patientID, nil, &sum))

	resp := SummaryResponse{
		PatientID:   patientID,
		Allergies:   nonNil(sum.Allergies),
		Medications: nonNil(sum.Medications),
		Unresolved:  h.opts.unresolvedReferences(bundle),
	}
	if authenticated || !h.opts.Gate.RequiresLogin(auth.SectionDemographics) {
		resp.Demographics = &sum.Demographics
	} else {
		resp.LoginRequired = true
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *SummaryHandler) fetchError(w http.ResponseWriter, r *http.Request, patientID string, err error) {
	var (
		validationErr *fetcher.ValidationError
		httpErr       *fetcher.HTTPError
	)
	switch {
	case errors.As(err, &validationErr):
		jsonError(w, validationErr.Message, http.StatusBadRequest)
	case errors.As(err, &httpErr):
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":          httpErr.Error(),
			"upstreamStatus": httpErr.StatusCode,
			"diagnostics":    httpErr.Diagnostics,
		})
	case errors.Is(err, circuitbreaker.ErrOpen):
		jsonError(w, "summary service unavailable", http.StatusServiceUnavailable)
	case isTimeout(err):
		jsonError(w, err.Error(), http.StatusGatewayTimeout)
	default:
		h.logger.Error("summary fetch failed",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.String("patient_id", patientID),
			zap.Error(err))
		jsonError(w, err.Error(), http.StatusBadGateway)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
