// Package keyed runs work one job at a time per key. Each key gets its own lane
// goroutine that drains jobs in arrival order and exits after sitting idle; work
// for different keys runs in parallel.
package keyed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wms-platform/ingredient-stock/pkg/logging"
	"github.com/wms-platform/ingredient-stock/pkg/metrics"
)

// ErrClosed is returned for work submitted after Close
var ErrClosed = errors.New("mailbox is closed")

// Guard extends single-writer ownership of a key beyond this process.
// Acquire blocks until the key is owned or ctx ends; release gives it back.
type Guard interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// Config holds mailbox configuration
type Config struct {
	Name        string
	IdleTimeout time.Duration // lanes with no pending work exit after this long
	QueueSize   int           // buffered jobs per lane before submitters block
}

// DefaultConfig returns the default mailbox configuration
func DefaultConfig(name string) *Config {
	return &Config{
		Name:        name,
		IdleTimeout: 30 * time.Second,
		QueueSize:   64,
	}
}

// Mailbox serializes jobs per key
type Mailbox struct {
	name        string
	idleTimeout time.Duration
	queueSize   int
	guard       Guard
	logger      *logging.Logger
	metrics     *metrics.Metrics

	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool
	quit   chan struct{}
	wg     sync.WaitGroup
}

type lane struct {
	jobs    chan *job
	pending int // guarded by Mailbox.mu
}

type job struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// NewMailbox creates a mailbox. guard may be nil for in-process serialization only.
func NewMailbox(config *Config, guard Guard, logger *logging.Logger, m *metrics.Metrics) *Mailbox {
	if config == nil {
		config = DefaultConfig("default")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	idle := config.IdleTimeout
	if idle <= 0 {
		idle = 30 * time.Second
	}
	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Mailbox{
		name:        config.Name,
		idleTimeout: idle,
		queueSize:   queueSize,
		guard:       guard,
		logger:      logger.WithComponent("mailbox").With("mailbox", config.Name),
		metrics:     m,
		lanes:       make(map[string]*lane),
		quit:        make(chan struct{}),
	}
}

// Do runs fn on the lane for key and waits for its result. Jobs for the same key
// never overlap and run in submission order. A job whose ctx is already done when
// its turn comes is skipped with ctx.Err().
func (m *Mailbox) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	l, err := m.enter(key)
	if err != nil {
		return err
	}

	j := &job{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case l.jobs <- j:
	case <-ctx.Done():
		m.leave(key, l)
		return ctx.Err()
	}
	return <-j.done
}

// Run is Do for functions that return a value
func Run[T any](ctx context.Context, m *Mailbox, key string, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := m.Do(ctx, key, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}

// ActiveLanes returns the number of keys that currently own a lane
func (m *Mailbox) ActiveLanes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lanes)
}

// Close stops accepting work and waits for queued jobs to finish or ctx to end
func (m *Mailbox) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.quit)
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Mailbox closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enter reserves a slot on the key's lane, starting the lane if needed
func (m *Mailbox) enter(key string) (*lane, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	l, ok := m.lanes[key]
	if !ok {
		l = &lane{jobs: make(chan *job, m.queueSize)}
		m.lanes[key] = l
		m.wg.Add(1)
		go m.run(key, l)
		m.metrics.SetActiveLanes(m.name, len(m.lanes))
	}
	l.pending++
	return l, nil
}

// leave releases a slot and reports whether the lane was retired
func (m *Mailbox) leave(key string, l *lane) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.pending--
	if l.pending == 0 && m.closed {
		m.retire(key, l)
		return true
	}
	return false
}

// reap retires the lane if nothing is pending
func (m *Mailbox) reap(key string, l *lane) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.pending > 0 {
		return false
	}
	m.retire(key, l)
	return true
}

// retire must be called with m.mu held
func (m *Mailbox) retire(key string, l *lane) {
	if m.lanes[key] == l {
		delete(m.lanes, key)
		m.metrics.SetActiveLanes(m.name, len(m.lanes))
	}
}

func (m *Mailbox) run(key string, l *lane) {
	defer m.wg.Done()

	idle := time.NewTimer(m.idleTimeout)
	defer idle.Stop()
	quit := m.quit

	for {
		select {
		case j := <-l.jobs:
			j.done <- m.execute(key, j)
			if m.leave(key, l) {
				return
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(m.idleTimeout)
		case <-idle.C:
			if m.reap(key, l) {
				return
			}
			idle.Reset(m.idleTimeout)
		case <-quit:
			quit = nil
			if m.reap(key, l) {
				return
			}
		}
	}
}

func (m *Mailbox) execute(key string, j *job) (err error) {
	if err := j.ctx.Err(); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Panic(j.ctx, r)
			err = fmt.Errorf("panic in %s lane %s: %v", m.name, key, r)
		}
	}()

	if m.guard != nil {
		// leases are scoped by mailbox so two mailboxes sharing a key never contend
		release, err := m.guard.Acquire(j.ctx, m.name+":"+key)
		if err != nil {
			return fmt.Errorf("failed to acquire lease for %s: %w", key, err)
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := release(releaseCtx); err != nil {
				m.logger.Warn("Failed to release lease", "key", key, "error", err)
			}
		}()
	}

	return j.fn(j.ctx)
}
