package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-summaryview/internal/observability/metrics"
	"github.com/drfirst/go-summaryview/pkg/workerpool"
)

type memorySink struct {
	name string
	err  error

	mu     sync.Mutex
	events []*AccessEvent
}

func (s *memorySink) Name() string { return s.name }

func (s *memorySink) Write(ctx context.Context, ev *AccessEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *memorySink) written() []*AccessEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*AccessEvent(nil), s.events...)
}

func testPoolConfig() workerpool.Config {
	return workerpool.Config{Workers: 2, QueueSize: 16, MaxRetries: 1, RetryDelay: time.Millisecond}
}

func TestRecorder_WritesToEverySink(t *testing.T) {
	a := &memorySink{name: "a"}
	b := &memorySink{name: "b"}
	m := metrics.New(prometheus.NewRegistry())

	r, err := NewRecorder(testPoolConfig(), []Sink{a, b}, m, nil)
	require.NoError(t, err)
	r.Start()

	r.Record(context.Background(), AccessEvent{PatientID: "pat-1", Outcome: metrics.OutcomeSuccess, Channel: ChannelWeb})
	require.NoError(t, r.Stop())

	require.Len(t, a.written(), 1)
	require.Len(t, b.written(), 1)
	ev := a.written()[0]
	assert.Equal(t, "pat-1", ev.PatientID)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.At.IsZero())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditEvents.WithLabelValues("a", ResultWritten)))
}

func TestRecorder_OutlivesRequestContext(t *testing.T) {
	sink := &memorySink{name: "pg"}
	r, err := NewRecorder(testPoolConfig(), []Sink{sink}, nil, nil)
	require.NoError(t, err)
	r.Start()

	ctx, cancel := context.WithCancel(context.Background())
	r.Record(ctx, AccessEvent{PatientID: "pat-1"})
	cancel()
	require.NoError(t, r.Stop())

	assert.Len(t, sink.written(), 1)
}

func TestRecorder_SinkFailureIsCounted(t *testing.T) {
	sink := &memorySink{name: "kafka", err: errors.New("broker down")}
	m := metrics.New(prometheus.NewRegistry())
	r, err := NewRecorder(testPoolConfig(), []Sink{sink}, m, nil)
	require.NoError(t, err)
	r.Start()

	r.Record(context.Background(), AccessEvent{PatientID: "pat-1"})
	require.NoError(t, r.Stop())

	assert.Len(t, sink.written(), 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditEvents.WithLabelValues("kafka", ResultFailed)))
}

func TestRecorder_DropsWhenStopped(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r, err := NewRecorder(testPoolConfig(), nil, m, nil)
	require.NoError(t, err)
	r.Start()
	require.NoError(t, r.Stop())

	r.Record(context.Background(), AccessEvent{PatientID: "late"})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditEvents.WithLabelValues("nop", ResultDropped)))
}
