package transport

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalhostTransferToRemote(t *testing.T) {
	dir := t.TempDir()
	l := NewLocalhost(dir)
	require.NoError(t, l.BeginSession(context.Background()))

	data := []byte("hello world")
	tf, err := l.TransferToRemote(context.Background(), bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	defer tf.Close()

	got, err := os.ReadFile(tf.Path())
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestLocalhostSizeMismatchIsIntegrityError(t *testing.T) {
	dir := t.TempDir()
	l := NewLocalhost(dir)
	require.NoError(t, l.BeginSession(context.Background()))

	data := []byte("hello world")
	_, err := l.TransferToRemote(context.Background(), bytes.NewReader(data), int64(len(data)+5))
	require.Error(t, err)
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	cfg := BackoffConfig{Base: 1, Max: 2, MaxAttempts: 5, Jitter: false}
	err := Retry(context.Background(), cfg, func(error) bool { return true }, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return assertError{}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	cfg := BackoffConfig{Base: 1, Max: 2, MaxAttempts: 5}
	err := Retry(context.Background(), cfg, func(error) bool { return false }, func(ctx context.Context) error {
		attempts++
		return assertError{}
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
