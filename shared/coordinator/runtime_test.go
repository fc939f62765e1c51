package coordinator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/fulfillment-system/shared/models"
	"github.com/orderflow/fulfillment-system/shared/protocol"
)

// stubProcess runs until cancelled or released and records every signal
// it handles.
type stubProcess struct {
	mu       sync.Mutex
	signals  []protocol.Envelope
	release  chan struct{}
	finished chan struct{}

	signalErr error
}

func newStubProcess() *stubProcess {
	return &stubProcess{
		release:  make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (s *stubProcess) Run(ctx context.Context) {
	defer close(s.finished)
	select {
	case <-s.release:
	case <-ctx.Done():
	}
}

func (s *stubProcess) HandleSignal(env protocol.Envelope) error {
	if s.signalErr != nil {
		return s.signalErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, env)
	return nil
}

func (s *stubProcess) HandleQuery(queryName string) (interface{}, error) {
	if queryName != protocol.QueryStatus {
		return nil, errors.Errorf("unknown query %q", queryName)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.signals), nil
}

func (s *stubProcess) received() []protocol.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Envelope(nil), s.signals...)
}

func newTestRuntime(proc Process) *Runtime {
	rt := NewRuntime(zerolog.Nop())
	rt.RegisterProcessType("stub", func(instanceID models.ID, initialArgs json.RawMessage) (Process, error) {
		return proc, nil
	})
	return rt
}

func TestRuntime_StartUnknownProcessType(t *testing.T) {
	rt := NewRuntime(zerolog.Nop())

	id, err := rt.Start(context.Background(), "nope", "", nil)
	assert.ErrorIs(t, err, ErrUnknownProcessType)
	assert.True(t, id.IsEmpty())
}

func TestRuntime_StartGeneratesInstanceID(t *testing.T) {
	proc := newStubProcess()
	rt := newTestRuntime(proc)
	defer close(proc.release)

	id, err := rt.Start(context.Background(), "stub", "", nil)
	require.NoError(t, err)
	assert.False(t, id.IsEmpty())
	_, err = models.NewID(id.String())
	assert.NoError(t, err)
}

func TestRuntime_StartRejectsDuplicateInstance(t *testing.T) {
	proc := newStubProcess()
	rt := newTestRuntime(proc)
	defer close(proc.release)

	id := models.GenerateUUID()
	_, err := rt.Start(context.Background(), "stub", id, nil)
	require.NoError(t, err)

	_, err = rt.Start(context.Background(), "stub", id, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestRuntime_StartSurfacesFactoryError(t *testing.T) {
	rt := NewRuntime(zerolog.Nop())
	rt.RegisterProcessType("broken", func(instanceID models.ID, initialArgs json.RawMessage) (Process, error) {
		return nil, errors.New("bad initial args")
	})

	_, err := rt.Start(context.Background(), "broken", "", nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "bad initial args")
}

func TestRuntime_SignalReachesInstance(t *testing.T) {
	proc := newStubProcess()
	rt := newTestRuntime(proc)
	defer close(proc.release)

	id, err := rt.Start(context.Background(), "stub", "", nil)
	require.NoError(t, err)

	env, err := protocol.NewEnvelope("", &protocol.Cancel{Reason: "test"})
	require.NoError(t, err)
	require.NoError(t, rt.Signal(context.Background(), id, env))

	received := proc.received()
	require.Len(t, received, 1)
	assert.Equal(t, protocol.KindCancel, received[0].Kind)
}

func TestRuntime_SignalWrapsHandlerError(t *testing.T) {
	proc := newStubProcess()
	proc.signalErr = errors.New("handler rejected")
	rt := newTestRuntime(proc)
	defer close(proc.release)

	id, err := rt.Start(context.Background(), "stub", "", nil)
	require.NoError(t, err)

	env, err := protocol.NewEnvelope("", &protocol.Pause{})
	require.NoError(t, err)
	err = rt.Signal(context.Background(), id, env)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "handler rejected")
}

func TestRuntime_UnknownInstance(t *testing.T) {
	rt := NewRuntime(zerolog.Nop())
	missing := models.GenerateUUID()

	env, err := protocol.NewEnvelope("", &protocol.Cancel{Reason: "test"})
	require.NoError(t, err)

	assert.ErrorIs(t, rt.Signal(context.Background(), missing, env), ErrNotFound)

	_, err = rt.Query(context.Background(), missing, protocol.QueryStatus)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, rt.Wait(context.Background(), missing), ErrNotFound)
}

func TestRuntime_TerminalInstanceStaysQueryable(t *testing.T) {
	proc := newStubProcess()
	rt := newTestRuntime(proc)

	id, err := rt.Start(context.Background(), "stub", "", nil)
	require.NoError(t, err)

	close(proc.release)
	require.NoError(t, rt.Wait(context.Background(), id))

	result, err := rt.Query(context.Background(), id, protocol.QueryStatus)
	require.NoError(t, err)
	assert.Equal(t, 0, result)
}

func TestRuntime_ShutdownCancelsRunningInstances(t *testing.T) {
	proc := newStubProcess()
	rt := newTestRuntime(proc)

	_, err := rt.Start(context.Background(), "stub", "", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, rt.Shutdown(ctx))

	select {
	case <-proc.finished:
	default:
		t.Fatal("instance still running after shutdown")
	}
}
