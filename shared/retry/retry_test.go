package retry

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() Policy {
	return Policy{
		MaxAttempts:     4,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		AttemptTimeout:  time.Second,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	result, err := Do(context.Background(), testPolicy(), func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("transient failure")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), testPolicy(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, errors.New("still down")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "still down")
	assert.Equal(t, 4, attempts)
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	rejected := errors.New("business rejection")

	attempts := 0
	_, err := Do(context.Background(), testPolicy(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, Permanent(rejected)
	})

	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, 1, attempts)
}

func TestDoVoid_PropagatesResult(t *testing.T) {
	require.NoError(t, DoVoid(context.Background(), testPolicy(), func(ctx context.Context) error {
		return nil
	}))

	boom := errors.New("boom")
	err := DoVoid(context.Background(), testPolicy(), func(ctx context.Context) error {
		return Permanent(boom)
	})
	assert.ErrorIs(t, err, boom)
}

func TestDo_EachAttemptGetsItsOwnDeadline(t *testing.T) {
	policy := testPolicy()
	policy.AttemptTimeout = 50 * time.Millisecond

	var deadlines []time.Time
	_, err := Do(context.Background(), policy, func(ctx context.Context) (int, error) {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		deadlines = append(deadlines, deadline)
		if len(deadlines) < 2 {
			return 0, errors.New("transient failure")
		}
		return 1, nil
	})

	require.NoError(t, err)
	require.Len(t, deadlines, 2)
	assert.True(t, deadlines[1].After(deadlines[0]))
}
