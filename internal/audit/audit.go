// Package audit records who viewed which patient summary.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/drfirst/go-summaryview/internal/observability/metrics"
	"github.com/drfirst/go-summaryview/pkg/workerpool"
)

// Audit results recorded in metrics
const (
	ResultWritten = "written"
	ResultFailed  = "failed"
	ResultDropped = "dropped"
)

// AccessEvent is one patient summary lookup.
type AccessEvent struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"request_id,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	Subject     string    `json:"subject,omitempty"`
	PatientID   string    `json:"patient_id"`
	Outcome     string    `json:"outcome"`
	StatusCode  int       `json:"status_code,omitempty"`
	Allergies   int       `json:"allergies"`
	Medications int       `json:"medications"`
	Channel     string    `json:"channel"`
	At          time.Time `json:"at"`
}

// Channels through which a summary is viewed
const (
	ChannelWeb = "web"
	ChannelAPI = "api"
	ChannelCLI = "cli"
)

// Sink persists access events.
type Sink interface {
	Name() string
	Write(ctx context.Context, ev *AccessEvent) error
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Name() string                              { return "nop" }
func (NopSink) Write(context.Context, *AccessEvent) error { return nil }

// Recorder fans events out to its sinks through a worker pool so that
// lookups never wait on audit storage.
type Recorder struct {
	pool         *workerpool.Pool
	sinks        []Sink
	metrics      *metrics.Metrics
	logger       *zap.Logger
	writeTimeout time.Duration
	drained      chan struct{}
}

type sinkWrite struct {
	sink  Sink
	event *AccessEvent
}

// NewRecorder creates a Recorder. With no sinks every event goes to NopSink.
func NewRecorder(cfg workerpool.Config, sinks []Sink, m *metrics.Metrics, logger *zap.Logger) (*Recorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(sinks) == 0 {
		sinks = []Sink{NopSink{}}
	}

	r := &Recorder{
		sinks:        sinks,
		metrics:      m,
		logger:       logger,
		writeTimeout: 5 * time.Second,
		drained:      make(chan struct{}),
	}
	pool, err := workerpool.New(cfg, r.write, logger.Named("audit-pool"))
	if err != nil {
		return nil, fmt.Errorf("create audit pool: %w", err)
	}
	r.pool = pool
	return r, nil
}

// Start launches the audit workers.
func (r *Recorder) Start() {
	r.pool.Start()
	go r.collect()
}

// Record queues ev for every sink. It fills ID and At when empty and
// never blocks; events that do not fit in the queue are dropped and logged.
func (r *Recorder) Record(ctx context.Context, ev AccessEvent) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	// Sink writes outlive the request that triggered them.
	ctx = context.WithoutCancel(ctx)

	for _, s := range r.sinks {
		task := &workerpool.Task{
			ID:      ev.ID + "/" + s.Name(),
			Payload: sinkWrite{sink: s, event: &ev},
			Context: ctx,
		}
		if err := r.pool.Submit(task); err != nil {
			r.count(s.Name(), ResultDropped)
			r.logger.Warn("audit event dropped",
				zap.String("event_id", ev.ID),
				zap.String("sink", s.Name()),
				zap.Error(err))
		}
	}
}

// Stop waits for queued events to be written.
func (r *Recorder) Stop() error {
	err := r.pool.Stop()
	<-r.drained
	return err
}

// Stats exposes the underlying pool statistics.
func (r *Recorder) Stats() workerpool.Stats {
	return r.pool.Stats()
}

func (r *Recorder) write(ctx context.Context, task *workerpool.Task) *workerpool.Result {
	w := task.Payload.(sinkWrite)
	ctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	if err := w.sink.Write(ctx, w.event); err != nil {
		return &workerpool.Result{Error: fmt.Errorf("%s sink: %w", w.sink.Name(), err), Data: w.sink.Name()}
	}
	return &workerpool.Result{Success: true, Data: w.sink.Name()}
}

func (r *Recorder) collect() {
	defer close(r.drained)
	for res := range r.pool.Results() {
		sink, ok := res.Data.(string)
		if !ok {
			sink = "unknown"
		}
		if res.Success {
			r.count(sink, ResultWritten)
		} else {
			r.count(sink, ResultFailed)
		}
	}
}

func (r *Recorder) count(sink, result string) {
	if r.metrics != nil {
		r.metrics.AuditEvents.WithLabelValues(sink, result).Inc()
	}
}
