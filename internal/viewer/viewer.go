// Package viewer holds the per-session fetch state of the summary viewer.
package viewer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/drfirst/go-summaryview/internal/fetcher"
	"github.com/drfirst/go-summaryview/internal/fhir/r4"
)

// ErrFetchInProgress is returned when a lookup is triggered while another
// one for the same viewer has not finished.
var ErrFetchInProgress = errors.New("a patient summary fetch is already in progress")

// Notification titles
const (
	TitleSuccess = "Success"
	TitleError   = "Error"
)

// SuccessMessage accompanies every completed lookup.
const SuccessMessage = "Patient summary retrieved"

// Notice is the transient notification raised by the last lookup.
type Notice struct {
	Title   string
	Message string
	IsError bool
	At      time.Time
}

// Fetcher retrieves a summary bundle.
type Fetcher interface {
	FetchSummary(ctx context.Context, patientID string) (*r4.Bundle, error)
}

// Viewer drives one session's lookups through Idle, Loading, Loaded and
// Failed. It is safe for concurrent use.
type Viewer struct {
	fetcher Fetcher
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	state    State
	notice   *Notice
	lastUsed time.Time
}

// New creates a Viewer in the Idle state.
func New(f Fetcher, logger *zap.Logger) *Viewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Viewer{
		fetcher:  f,
		logger:   logger,
		now:      time.Now,
		state:    Idle(),
		lastUsed: time.Now(),
	}
}

// Fetch runs one lookup. An empty id raises a notice and leaves the state
// untouched. Otherwise the previous result is cleared, the state moves to
// Loading, and then to Loaded or Failed. Failures are not retried.
func (v *Viewer) Fetch(ctx context.Context, patientID string) error {
	v.mu.Lock()
	v.lastUsed = v.now()
	if patientID == "" {
		err := &fetcher.ValidationError{Field: "patientId", Message: fetcher.MissingPatientIDMessage}
		v.notice = v.errorNotice(err.Message)
		v.mu.Unlock()
		return err
	}
	if v.state.IsLoading() {
		v.mu.Unlock()
		return ErrFetchInProgress
	}
	v.state = Loading(patientID)
	v.notice = nil
	v.mu.Unlock()

	bundle, err := v.fetcher.FetchSummary(ctx, patientID)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastUsed = v.now()
	if err != nil {
		v.state = Failed(patientID, err.Error())
		v.notice = v.errorNotice(err.Error())
		v.logger.Debug("viewer lookup failed",
			zap.String("patient_id", patientID),
			zap.Error(err))
		return err
	}
	v.state = Loaded(patientID, bundle)
	v.notice = &Notice{Title: TitleSuccess, Message: SuccessMessage, At: v.now()}
	return nil
}

func (v *Viewer) errorNotice(msg string) *Notice {
	return &Notice{Title: TitleError, Message: msg, IsError: true, At: v.now()}
}

// Snapshot returns the current state and the last notice, if any.
func (v *Viewer) Snapshot() (State, *Notice) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.notice == nil {
		return v.state, nil
	}
	n := *v.notice
	return v.state, &n
}

// TakeNotice returns the last notice and clears it, so it is shown once.
func (v *Viewer) TakeNotice() *Notice {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := v.notice
	v.notice = nil
	return n
}

func (v *Viewer) idleSince() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastUsed
}
