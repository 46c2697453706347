package handlers

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/drfirst/go-summaryview/internal/api/middleware"
	"github.com/drfirst/go-summaryview/internal/audit"
	"github.com/drfirst/go-summaryview/internal/auth"
	"github.com/drfirst/go-summaryview/internal/fetcher"
	"github.com/drfirst/go-summaryview/internal/summary"
	"github.com/drfirst/go-summaryview/internal/viewer"
)

// ViewerCookie keys a browser to its viewer state.
const ViewerCookie = "summary_viewer"

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// WebHandler serves the server-rendered lookup page.
type WebHandler struct {
	registry  *viewer.Registry
	opts      Options
	endpoints auth.Endpoints
	templates *template.Template
	logger    *zap.Logger
}

// NewWebHandler creates the HTML handler. Lookups run through the viewers
// held by registry.
func NewWebHandler(registry *viewer.Registry, endpoints auth.Endpoints, opts Options, logger *zap.Logger) (*WebHandler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &WebHandler{
		registry:  registry,
		opts:      opts.withDefaults(),
		endpoints: endpoints,
		templates: tmpl,
		logger:    logger,
	}, nil
}

// Routes returns the router for the browser pages
func (h *WebHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Index)
	r.With(h.opts.LookupLimit).Post("/summary", h.Lookup)
	r.Get("/login", h.Login)
	r.Get("/logout", h.Logout)

	static, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	return r
}

type pageData struct {
	Refresh       bool
	Authenticated bool

	PatientID string
	Loading   bool
	Notice    *viewer.Notice
	Error     string
	Loaded    bool

	ShowDemographics bool
	LoginPath        string
	LoginURL         string
	Summary          summary.Summary

	NoPatientMessage    string
	NoAllergyMessage    string
	NoMedicationMessage string
}

// Index renders the lookup form and, once loaded, the three sections.
func (h *WebHandler) Index(w http.ResponseWriter, r *http.Request) {
	authenticated := auth.IsAuthenticated(r.Context())
	if h.opts.Gate == auth.GateAll && !authenticated {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	v := h.registry.Get(h.viewerKey(w, r))
	state, _ := v.Snapshot()

	data := pageData{
		Authenticated:       authenticated,
		PatientID:           state.PatientID(),
		Loading:             state.IsLoading(),
		Refresh:             state.IsLoading(),
		Notice:              v.TakeNotice(),
		LoginPath:           "/login",
		ShowDemographics:    authenticated || !h.opts.Gate.RequiresLogin(auth.SectionDemographics),
		NoPatientMessage:    summary.NoPatientMessage,
		NoAllergyMessage:    summary.NoAllergyMessage,
		NoMedicationMessage: summary.NoMedicationMessage,
	}
	if msg, ok := state.Failure(); ok {
		data.Error = msg
	}
	if b, ok := state.Bundle(); ok {
		data.Loaded = true
		data.Summary = summary.Build(b, h.opts.Matcher)
	}

	h.render(w, r, "index", data)
}

// Lookup handles the form post, runs the fetch, and redirects back to the
// lookup page.
func (h *WebHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	if h.opts.Gate == auth.GateAll && !auth.IsAuthenticated(r.Context()) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	patientID := r.PostFormValue("patientId")
	v := h.registry.Get(h.viewerKey(w, r))

	err := v.Fetch(r.Context(), patientID)
	var validationErr *fetcher.ValidationError
	switch {
	case errors.Is(err, viewer.ErrFetchInProgress), errors.As(err, &validationErr):
	default:
		var sum *summary.Summary
		if state, _ := v.Snapshot(); err == nil {
			if b, ok := state.Bundle(); ok {
				s := summary.Build(b, h.opts.Matcher)
				sum = &s
				h.opts.unresolvedReferences(b)
			}
		}
		h.opts.Recorder.Record(r.Context(), accessEvent(r, audit.ChannelWeb, patientID, err, sum))
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Login renders the login page whose button goes to the auth service.
func (h *WebHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "login", pageData{LoginURL: h.endpoints.LoginURL()})
}

// Logout forgets the viewer state and hands off to the auth service.
func (h *WebHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(ViewerCookie); err == nil {
		h.registry.Remove(c.Value)
	}
	http.Redirect(w, r, h.endpoints.LogoutURL(auth.HintFromRequest(r)), http.StatusFound)
}

// viewerKey returns the browser's viewer id, issuing a cookie on first use.
func (h *WebHandler) viewerKey(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(ViewerCookie); err == nil && c.Value != "" {
		return c.Value
	}
	key := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     ViewerCookie,
		Value:    key,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	// Later lookups in this request reuse the new key.
	r.AddCookie(&http.Cookie{Name: ViewerCookie, Value: key})
	return key
}

func (h *WebHandler) render(w http.ResponseWriter, r *http.Request, name string, data pageData) {
	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.Error("render template",
			zap.String("template", name),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
