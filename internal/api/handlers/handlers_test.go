package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-summaryview/internal/audit"
	"github.com/drfirst/go-summaryview/internal/auth"
	"github.com/drfirst/go-summaryview/internal/fetcher"
	"github.com/drfirst/go-summaryview/internal/fhir/r4"
	"github.com/drfirst/go-summaryview/internal/viewer"
	"github.com/drfirst/go-summaryview/pkg/circuitbreaker"
)

type recordingRecorder struct {
	mu     sync.Mutex
	events []audit.AccessEvent
}

func (r *recordingRecorder) Record(_ context.Context, ev audit.AccessEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingRecorder) all() []audit.AccessEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.AccessEvent(nil), r.events...)
}

// upstream serves the fixture for pat-1, 404 for anything else.
func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	fixture, err := os.ReadFile("../../summary/testdata/summary_bundle.json")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/pat-1/summary" {
			w.Header().Set("Content-Type", "application/fhir+json")
			w.Write(fixture)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	router   http.Handler
	recorder *recordingRecorder
	sessions *auth.MemoryStore
}

func newTestEnv(t *testing.T, gate auth.GatePolicy, f SummaryFetcher) *testEnv {
	t.Helper()
	if f == nil {
		client, err := fetcher.New(fetcher.Config{BaseURL: upstream(t).URL}, nil)
		require.NoError(t, err)
		f = client
	}

	rec := &recordingRecorder{}
	sessions := auth.NewMemoryStore()
	sessions.Put(&auth.Session{ID: "good-hint", Subject: "dr.house", Authenticated: true})
	opts := Options{Gate: gate, Recorder: rec}

	web, err := NewWebHandler(viewer.NewRegistry(f, nil), auth.Endpoints{}, opts, nil)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(auth.Middleware(sessions, nil))
	r.Mount("/api/v1/patients", NewSummaryHandler(f, opts, nil).Routes())
	r.Mount("/", web.Routes())
	return &testEnv{router: r, recorder: rec, sessions: sessions}
}

// browser keeps cookies across requests to the router.
type browser struct {
	t       *testing.T
	env     *testEnv
	cookies map[string]*http.Cookie
}

func newBrowser(t *testing.T, env *testEnv) *browser {
	return &browser{t: t, env: env, cookies: make(map[string]*http.Cookie)}
}

func (b *browser) login() {
	b.cookies[auth.CookieName] = &http.Cookie{Name: auth.CookieName, Value: "good-hint"}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	b.env.router.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		b.cookies[c.Name] = c
	}
	return rec
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (b *browser) lookup(patientID string) *httptest.ResponseRecorder {
	form := url.Values{"patientId": {patientID}}
	req := httptest.NewRequest(http.MethodPost, "/summary", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func TestWeb_LookupRendersSections(t *testing.T) {
	env := newTestEnv(t, auth.GateDemographics, nil)
	b := newBrowser(t, env)
	b.login()

	rec := b.lookup("pat-1")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	page := b.get("/")
	require.Equal(t, http.StatusOK, page.Code)
	body := page.Body.String()
	assert.Contains(t, body, "Patient summary retrieved")
	assert.Contains(t, body, "Martha DeGarmo")
	assert.Contains(t, body, "Penicillin")
	assert.Contains(t, body, "Metformin 500 MG Oral Tablet")
	assert.Contains(t, body, "Twice a day")
	assert.Contains(t, body, `class="high"`)

	events := env.recorder.all()
	require.Len(t, events, 1)
	assert.Equal(t, "pat-1", events[0].PatientID)
	assert.Equal(t, "dr.house", events[0].Subject)
	assert.Equal(t, 1, events[0].Allergies)
	assert.Equal(t, audit.ChannelWeb, events[0].Channel)

	// The notice is shown once.
	assert.NotContains(t, b.get("/").Body.String(), "Patient summary retrieved")
}

func TestWeb_HTTPErrorShowsPanelWithoutSections(t *testing.T) {
	env := newTestEnv(t, auth.GateDemographics, nil)
	b := newBrowser(t, env)
	b.login()

	b.lookup("pat-1")
	b.lookup("abc")
	body := b.get("/").Body.String()

	assert.Contains(t, body, "HTTP error! Status: 404")
	assert.Contains(t, body, "error-panel")
	assert.NotContains(t, body, "Patient Demographics")
	assert.NotContains(t, body, "Penicillin")

	events := env.recorder.all()
	require.Len(t, events, 2)
	assert.Equal(t, 404, events[1].StatusCode)
}

func TestWeb_EmptyIDShowsNoticeOnly(t *testing.T) {
	env := newTestEnv(t, auth.GateDemographics, nil)
	b := newBrowser(t, env)

	b.lookup("")
	body := b.get("/").Body.String()

	assert.Contains(t, body, "Please enter a Patient ID")
	assert.NotContains(t, body, "error-panel")
	assert.Empty(t, env.recorder.all())
}

func TestWeb_AnonymousDemographicsGate(t *testing.T) {
	env := newTestEnv(t, auth.GateDemographics, nil)
	b := newBrowser(t, env)

	b.lookup("pat-1")
	body := b.get("/").Body.String()

	assert.Contains(t, body, "Please log in to view patient demographics.")
	assert.NotContains(t, body, "Martha DeGarmo")
	assert.Contains(t, body, "Penicillin")
	assert.Contains(t, body, "Metformin 500 MG Oral Tablet")
}

func TestWeb_GateAllRedirectsToLogin(t *testing.T) {
	env := newTestEnv(t, auth.GateAll, nil)
	b := newBrowser(t, env)

	rec := b.lookup("pat-1")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Equal(t, "/login", b.get("/").Header().Get("Location"))

	b.login()
	assert.Equal(t, http.StatusOK, b.get("/").Code)
}

func TestWeb_LoginAndLogout(t *testing.T) {
	env := newTestEnv(t, auth.GateDemographics, nil)
	b := newBrowser(t, env)

	login := b.get("/login")
	assert.Equal(t, http.StatusOK, login.Code)
	assert.Contains(t, login.Body.String(), `href="/auth/login"`)

	b.cookies[auth.CookieName] = &http.Cookie{Name: auth.CookieName, Value: "cookie"}
	logout := b.get("/logout")
	assert.Equal(t, http.StatusFound, logout.Code)
	assert.Equal(t, "/auth/logout?session_hint=cookie", logout.Header().Get("Location"))
}

func TestWeb_ViewersAreIsolated(t *testing.T) {
	env := newTestEnv(t, auth.GateDemographics, nil)
	alice := newBrowser(t, env)
	alice.login()
	bob := newBrowser(t, env)
	bob.login()

	alice.lookup("pat-1")
	body := bob.get("/").Body.String()
	assert.NotContains(t, body, "Penicillin")
}

func TestWeb_Static(t *testing.T) {
	env := newTestEnv(t, auth.GateDemographics, nil)
	rec := newBrowser(t, env).get("/static/viewer.css")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_Summary(t *testing.T) {
	env := newTestEnv(t, auth.GateDemographics, nil)
	b := newBrowser(t, env)
	b.login()

	rec := b.get("/api/v1/patients/pat-1/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Demographics)
	assert.Equal(t, "Martha DeGarmo", resp.Demographics.FullName)
	require.Len(t, resp.Allergies, 1)
	assert.Equal(t, "Penicillin", resp.Allergies[0].Allergy)
	require.Len(t, resp.Medications, 1)
	assert.False(t, resp.LoginRequired)

	events := env.recorder.all()
	require.Len(t, events, 1)
	assert.Equal(t, audit.ChannelAPI, events[0].Channel)
}

func TestAPI_AnonymousHidesDemographics(t *testing.T) {
	env := newTestEnv(t, auth.GateDemographics, nil)
	rec := newBrowser(t, env).get("/api/v1/patients/pat-1/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Demographics)
	assert.True(t, resp.LoginRequired)
	assert.Len(t, resp.Allergies, 1)
}

func TestAPI_GateAllRequiresLogin(t *testing.T) {
	env := newTestEnv(t, auth.GateAll, nil)
	rec := newBrowser(t, env).get("/api/v1/patients/pat-1/summary")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_UpstreamNotFound(t *testing.T) {
	env := newTestEnv(t, auth.GateDemographics, nil)
	rec := newBrowser(t, env).get("/api/v1/patients/abc/summary")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "HTTP error! Status: 404", body["error"])
	assert.Equal(t, 404.0, body["upstreamStatus"])
}

type errFetcher struct{ err error }

func (f errFetcher) FetchSummary(context.Context, string) (*r4.Bundle, error) { return nil, f.err }

func TestAPI_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", &fetcher.ValidationError{Message: fetcher.MissingPatientIDMessage}, http.StatusBadRequest},
		{"breaker open", circuitbreaker.ErrOpen, http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"transport", assert.AnError, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSummaryHandler(errFetcher{err: tt.err}, Options{}, nil)
			req := httptest.NewRequest(http.MethodGet, "/x/summary", nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", "x")
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			rec := httptest.NewRecorder()
			h.Get(rec, req)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}
