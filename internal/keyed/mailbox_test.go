package keyed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/ingredient-stock/pkg/logging"
)

func newTestMailbox(t *testing.T, guard Guard, idle time.Duration) *Mailbox {
	t.Helper()
	m := NewMailbox(&Config{Name: "test", IdleTimeout: idle, QueueSize: 8}, guard, logging.Discard(), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Close(ctx)
	})
	return m
}

func TestMailboxSerializesSameKey(t *testing.T) {
	m := newTestMailbox(t, nil, time.Second)

	var inFlight, maxInFlight int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.Do(context.Background(), "org/site/flour", func(ctx context.Context) error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					old := atomic.LoadInt32(&maxInFlight)
					if n <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight)
}

func TestMailboxRunsDifferentKeysInParallel(t *testing.T) {
	m := newTestMailbox(t, nil, time.Second)

	release := make(chan struct{})
	started := make(chan string, 2)
	var wg sync.WaitGroup
	for _, key := range []string{"a", "b"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_ = m.Do(context.Background(), key, func(ctx context.Context) error {
				started <- key
				<-release
				return nil
			})
		}(key)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("jobs for different keys did not run concurrently")
		}
	}
	close(release)
	wg.Wait()
}

func TestMailboxPreservesOrderPerKey(t *testing.T) {
	m := newTestMailbox(t, nil, time.Second)

	var mu sync.Mutex
	var order []int
	block := make(chan struct{})

	go func() {
		_ = m.Do(context.Background(), "k", func(ctx context.Context) error {
			<-block
			return nil
		})
	}()
	require.Eventually(t, func() bool { return m.ActiveLanes() == 1 }, time.Second, time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			_ = m.Do(context.Background(), "k", func(ctx context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		time.Sleep(5 * time.Millisecond)
	}
	close(block)
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestMailboxReturnsJobResult(t *testing.T) {
	m := newTestMailbox(t, nil, time.Second)
	boom := errors.New("boom")

	err := m.Do(context.Background(), "k", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	value, err := Run(context.Background(), m, "k", func(ctx context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, value)
}

func TestMailboxRecoversPanics(t *testing.T) {
	m := newTestMailbox(t, nil, time.Second)

	err := m.Do(context.Background(), "k", func(ctx context.Context) error { panic("bad batch") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad batch")

	err = m.Do(context.Background(), "k", func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestMailboxSkipsCancelledJobs(t *testing.T) {
	m := newTestMailbox(t, nil, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := m.Do(ctx, "k", func(ctx context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

func TestMailboxReapsIdleLanes(t *testing.T) {
	m := newTestMailbox(t, nil, 20*time.Millisecond)

	require.NoError(t, m.Do(context.Background(), "a", func(ctx context.Context) error { return nil }))
	require.NoError(t, m.Do(context.Background(), "b", func(ctx context.Context) error { return nil }))

	assert.Eventually(t, func() bool { return m.ActiveLanes() == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Do(context.Background(), "a", func(ctx context.Context) error { return nil }))
}

func TestMailboxRejectsWorkAfterClose(t *testing.T) {
	m := NewMailbox(DefaultConfig("closing"), nil, nil, nil)
	require.NoError(t, m.Do(context.Background(), "a", func(ctx context.Context) error { return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Close(ctx))

	err := m.Do(context.Background(), "a", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, m.ActiveLanes())
}

type recordingGuard struct {
	mu       sync.Mutex
	acquired []string
	released []string
	err      error
}

func (g *recordingGuard) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.acquired = append(g.acquired, key)
	return func(context.Context) error {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.released = append(g.released, key)
		return nil
	}, nil
}

func TestMailboxHoldsGuardAroundJob(t *testing.T) {
	guard := &recordingGuard{}
	m := newTestMailbox(t, guard, time.Second)

	err := m.Do(context.Background(), "org/site/flour", func(ctx context.Context) error {
		guard.mu.Lock()
		defer guard.mu.Unlock()
		assert.Equal(t, []string{"test:org/site/flour"}, guard.acquired)
		assert.Empty(t, guard.released)
		return nil
	})
	require.NoError(t, err)

	guard.mu.Lock()
	defer guard.mu.Unlock()
	assert.Equal(t, []string{"test:org/site/flour"}, guard.released)
}

func TestMailboxGuardFailureSkipsJob(t *testing.T) {
	guard := &recordingGuard{err: errors.New("lease held elsewhere")}
	m := newTestMailbox(t, guard, time.Second)

	ran := false
	err := m.Do(context.Background(), "k", func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lease held elsewhere")
	assert.False(t, ran)
}
