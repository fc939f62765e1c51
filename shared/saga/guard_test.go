package saga

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_WaitUntilReturnsImmediatelyWhenPredicateHolds(t *testing.T) {
	g := NewGuard()
	ready := true

	err := g.WaitUntil(context.Background(), "test_wait", func() bool { return ready })
	require.NoError(t, err)
	assert.Equal(t, WaitState(""), g.Waiting())
}

func TestGuard_WaitUntilWakesOnMutation(t *testing.T) {
	g := NewGuard()
	ready := false

	done := make(chan error, 1)
	go func() {
		done <- g.WaitUntil(context.Background(), "test_wait", func() bool { return ready })
	}()

	assert.Eventually(t, func() bool {
		return g.Waiting() == WaitState("test_wait")
	}, time.Second, 5*time.Millisecond)

	// an unrelated mutation re-evaluates the predicate without waking
	g.Mutate(func() {})
	select {
	case <-done:
		t.Fatal("WaitUntil returned before the predicate held")
	case <-time.After(20 * time.Millisecond):
	}

	g.Mutate(func() { ready = true })
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitUntil did not wake after the mutation")
	}
	assert.Equal(t, WaitState(""), g.Waiting())
}

func TestGuard_WaitUntilHonorsContextCancellation(t *testing.T) {
	g := NewGuard()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- g.WaitUntil(ctx, "test_wait", func() bool { return false })
	}()

	assert.Eventually(t, func() bool {
		return g.Waiting() == WaitState("test_wait")
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("WaitUntil did not observe context cancellation")
	}
	assert.Equal(t, WaitState(""), g.Waiting())
}

func TestGuard_MutationsAreAtomic(t *testing.T) {
	g := NewGuard()
	counter := 0

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				g.Mutate(func() { counter++ })
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	var got int
	g.Read(func() { got = counter })
	assert.Equal(t, 800, got)
}
