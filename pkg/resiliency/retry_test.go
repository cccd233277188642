package resiliency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryGetEventuallySucceeds(t *testing.T) {
	t.Parallel()

	attempts := 0
	val, err := RetryGet(context.Background(), func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("not yet")
		}
		return "done", nil
	})

	require.NoError(t, err)
	require.Equal(t, "done", val)
	require.Equal(t, 3, attempts)
}

func TestRetryGetStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	permanentErr := errors.New("no point retrying")
	attempts := 0
	_, err := RetryGet(context.Background(), func() (int, error) {
		attempts++
		return 0, Permanent(permanentErr)
	})

	require.ErrorIs(t, err, permanentErr)
	require.Equal(t, 1, attempts)
}

func TestRetryGetWithTimeoutReportsLastAttemptError(t *testing.T) {
	t.Parallel()

	attemptErr := errors.New("still failing")
	_, err := RetryGetWithTimeout(context.Background(), 100*time.Millisecond, func() (int, error) {
		return 0, attemptErr
	})

	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, err, attemptErr)
}
