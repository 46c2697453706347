// Package auth resolves the viewer's login session from the cookie set by
// the external auth service.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CookieName is the cookie the auth service sets after login.
const CookieName = "session_hint"

// ErrNoSession is returned by a store when the hint is unknown or expired.
var ErrNoSession = errors.New("no session")

// Session is an authenticated viewer session.
type Session struct {
	ID            string    `json:"id"`
	Subject       string    `json:"subject"`
	Name          string    `json:"name,omitempty"`
	Authenticated bool      `json:"authenticated"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
}

// Valid reports whether s is authenticated and not expired at now.
func (s *Session) Valid(now time.Time) bool {
	if s == nil || !s.Authenticated {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// SessionStore looks sessions up by hint.
type SessionStore interface {
	Lookup(ctx context.Context, hint string) (*Session, error)
}

// GatePolicy decides which summary sections require a session.
type GatePolicy int

const (
	// GateDemographics hides only the demographics section from anonymous
	// viewers; allergies and medications still render.
	GateDemographics GatePolicy = iota
	// GateAll sends anonymous viewers to the login page before any lookup.
	GateAll
)

func (g GatePolicy) String() string {
	if g == GateAll {
		return "all"
	}
	return "demographics"
}

// ParseGatePolicy maps "all" and "demographics" to a policy.
func ParseGatePolicy(s string) (GatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "demographics":
		return GateDemographics, nil
	case "all":
		return GateAll, nil
	default:
		return GateDemographics, fmt.Errorf("unknown auth gate %q", s)
	}
}

// RequiresLogin reports whether a section is hidden from anonymous viewers.
func (g GatePolicy) RequiresLogin(section string) bool {
	if g == GateAll {
		return true
	}
	return section == SectionDemographics
}

// Section names used with RequiresLogin
const (
	SectionDemographics = "demographics"
	SectionAllergies    = "allergies"
	SectionMedications  = "medications"
)

// Endpoints are the external auth service routes.
type Endpoints struct {
	Prefix string
}

// LoginURL is the auth service login route.
func (e Endpoints) LoginURL() string {
	return e.prefix() + "/login"
}

// LogoutURL is the auth service logout route for the given hint.
func (e Endpoints) LogoutURL(hint string) string {
	return e.prefix() + "/logout?session_hint=" + url.QueryEscape(hint)
}

func (e Endpoints) prefix() string {
	p := strings.TrimRight(e.Prefix, "/")
	if p == "" {
		return "/auth"
	}
	return p
}

// HintFromRequest returns the session_hint cookie value, or "".
func HintFromRequest(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
