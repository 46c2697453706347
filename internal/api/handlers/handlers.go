// Package handlers provides the HTTP handlers of the summary viewer.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/drfirst/go-summaryview/internal/api/middleware"
	"github.com/drfirst/go-summaryview/internal/audit"
	"github.com/drfirst/go-summaryview/internal/auth"
	"github.com/drfirst/go-summaryview/internal/fetcher"
	"github.com/drfirst/go-summaryview/internal/fhir/r4"
	"github.com/drfirst/go-summaryview/internal/observability/metrics"
	"github.com/drfirst/go-summaryview/internal/summary"
)

// SummaryFetcher retrieves a patient summary bundle.
type SummaryFetcher interface {
	FetchSummary(ctx context.Context, patientID string) (*r4.Bundle, error)
}

// AccessRecorder receives one event per summary lookup.
type AccessRecorder interface {
	Record(ctx context.Context, ev audit.AccessEvent)
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, audit.AccessEvent) {}

// Options are the settings shared by the API and web handlers.
type Options struct {
	Matcher  summary.Matcher
	Gate     auth.GatePolicy
	Recorder AccessRecorder
	Metrics  *metrics.Metrics
	// LookupLimit wraps the endpoints that trigger an upstream fetch.
	LookupLimit func(http.Handler) http.Handler
}

func (o Options) withDefaults() Options {
	if o.Matcher == nil {
		o.Matcher = summary.MatchSubstring
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
	if o.LookupLimit == nil {
		o.LookupLimit = func(next http.Handler) http.Handler { return next }
	}
	return o
}

// accessEvent describes one lookup for the audit trail. sum is nil when
// the fetch failed.
func accessEvent(r *http.Request, channel, patientID string, err error, sum *summary.Summary) audit.AccessEvent {
	ev := audit.AccessEvent{
		RequestID:  middleware.GetRequestID(r.Context()),
		SessionID:  auth.HintFromRequest(r),
		PatientID:  patientID,
		Outcome:    fetcher.Outcome(err),
		StatusCode: fetcher.StatusCode(err),
		Channel:    channel,
	}
	if sess, ok := auth.FromContext(r.Context()); ok {
		ev.Subject = sess.Subject
	}
	if sum != nil {
		ev.Allergies = len(sum.Allergies)
		ev.Medications = len(sum.Medications)
	}
	return ev
}

// unresolvedReferences lists section references that matched no entry and
// counts them in metrics.
func (o Options) unresolvedReferences(b *r4.Bundle) map[string][]string {
	out := make(map[string][]string)
	for _, title := range []string{summary.SectionAllergies, summary.SectionMedications} {
		refs := summary.ResolveSection(b, title, o.Matcher).Unresolved
		if len(refs) == 0 {
			continue
		}
		out[title] = refs
		if o.Metrics != nil {
			o.Metrics.UnresolvedReferences.WithLabelValues(title).Add(float64(len(refs)))
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}
