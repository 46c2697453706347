package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream unavailable")
var errNotFound = errors.New("not found")

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig("summary-api")
	cfg.FailureThreshold = 2
	cfg.Timeout = time.Hour

	var transitions []State
	cfg.OnStateChange = func(_ string, _, to State) { transitions = append(transitions, to) }

	cb, err := New(cfg, nil)
	require.NoError(t, err)

	fail := func() (interface{}, error) { return nil, errUpstream }
	for i := 0; i < 2; i++ {
		_, err := cb.Execute(context.Background(), fail)
		assert.ErrorIs(t, err, errUpstream)
	}

	assert.True(t, cb.IsOpen())
	assert.Equal(t, []State{StateOpen}, transitions)

	called := false
	_, err = cb.Execute(context.Background(), func() (interface{}, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called, "open circuit must not call through")
	assert.False(t, cb.Health().Healthy)
}

func TestBreakerIgnoresAcceptedErrors(t *testing.T) {
	cfg := DefaultConfig("summary-api")
	cfg.FailureThreshold = 1
	cfg.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, errNotFound) }

	cb, err := New(cfg, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(context.Background(), func() (interface{}, error) { return nil, errNotFound })
		assert.ErrorIs(t, err, errNotFound)
	}
	assert.Equal(t, StateClosed, cb.GetState())
	assert.True(t, cb.Health().Healthy)
}

func TestBreakerPassesResult(t *testing.T) {
	cb, err := New(DefaultConfig("summary-api"), nil)
	require.NoError(t, err)

	got, err := cb.Execute(context.Background(), func() (interface{}, error) { return "bundle", nil })
	require.NoError(t, err)
	assert.Equal(t, "bundle", got)
	assert.Equal(t, uint32(1), cb.Counts().Requests)
	assert.Equal(t, "summary-api", cb.Name())
}
