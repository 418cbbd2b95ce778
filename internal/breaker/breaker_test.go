package breaker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophezy/oracle-resolver/internal/breaker"
)

func TestDo_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := breaker.New(breaker.Settings{Name: "test", ConsecutiveFailures: 2}, nil)
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		_, err := breaker.Do(cb, func() (int, error) { return 0, boom })
		require.ErrorIs(t, err, boom)
	}

	_, err := breaker.Do(cb, func() (int, error) { return 1, nil })
	assert.True(t, breaker.IsOpen(err))
}

func TestDo_CancellationDoesNotTrip(t *testing.T) {
	cb := breaker.New(breaker.Settings{Name: "test", ConsecutiveFailures: 1}, nil)

	_, err := breaker.Do(cb, func() (string, error) { return "", context.Canceled })
	require.ErrorIs(t, err, context.Canceled)

	got, err := breaker.Do(cb, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}
