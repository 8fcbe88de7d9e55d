package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-memory Backend for testing, shared across
// multiple Lock instances the way a real remote would be shared across
// hosts.
type fakeBackend struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{files: map[string][]byte{}}
}

func (b *fakeBackend) FileExists(_ context.Context, relPath string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.files[relPath]
	return ok, nil
}

func (b *fakeBackend) ReadFile(_ context.Context, relPath string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.files[relPath]
	if !ok {
		return nil, assert.AnError
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (b *fakeBackend) WriteFile(_ context.Context, relPath string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	b.files[relPath] = cp
	return nil
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	backend := newFakeBackend()
	l := New(backend, "alice", "sync", WithTimeout(time.Second))

	require.NoError(t, l.Acquire(context.Background()))

	rec, locked, err := l.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, "alice", rec.UserID)

	require.NoError(t, l.Release(context.Background()))

	_, locked, err = l.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, locked)
}

// TestMutualExclusion is the spec's testable property: for any two
// overlapping attempts to acquire the same repo's lock, at most one
// observes success.
func TestMutualExclusion(t *testing.T) {
	backend := newFakeBackend()
	a := New(backend, "alice", "sync", WithTimeout(100*time.Millisecond))
	b := New(backend, "bob", "sync", WithTimeout(100*time.Millisecond))

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0] = a.Acquire(context.Background())
	}()
	go func() {
		defer wg.Done()
		results[1] = b.Acquire(context.Background())
	}()
	wg.Wait()

	successes := 0
	if results[0] == nil {
		successes++
	}
	if results[1] == nil {
		successes++
	}
	assert.Equal(t, 1, successes, "exactly one of two concurrent acquisitions must succeed")

	if results[0] == nil {
		assert.NoError(t, a.Release(context.Background()))
	} else {
		assert.NoError(t, b.Release(context.Background()))
	}
}

func TestAcquireTimesOutWhenHeld(t *testing.T) {
	backend := newFakeBackend()
	holder := New(backend, "alice", "sync", WithTimeout(time.Second))
	require.NoError(t, holder.Acquire(context.Background()))

	waiter := New(backend, "bob", "sync", WithTimeout(50*time.Millisecond))
	err := waiter.Acquire(context.Background())
	assert.Error(t, err)
}

func TestStaleLockIsReclaimed(t *testing.T) {
	backend := newFakeBackend()
	stale := New(backend, "alice", "sync", WithStaleAfter(time.Millisecond))
	require.NoError(t, stale.Acquire(context.Background()))

	time.Sleep(5 * time.Millisecond)

	fresh := New(backend, "bob", "sync", WithTimeout(200*time.Millisecond), WithStaleAfter(time.Millisecond))
	assert.NoError(t, fresh.Acquire(context.Background()))
}

func TestReleaseWithoutAcquireIsNoop(t *testing.T) {
	backend := newFakeBackend()
	l := New(backend, "alice", "sync")
	assert.NoError(t, l.Release(context.Background()))
}
