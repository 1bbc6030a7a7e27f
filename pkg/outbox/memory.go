package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRepository keeps messages in insertion order. It backs the memory
// storage driver and tests.
type MemoryRepository struct {
	mu       sync.Mutex
	messages []*Message
	byID     map[string]*Message
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*Message)}
}

// Append stores copies of messages; nothing is stored if any id is taken
func (r *MemoryRepository) Append(_ context.Context, messages ...*Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, msg := range messages {
		if _, taken := r.byID[msg.ID]; taken || msg.ID == "" {
			return fmt.Errorf("outbox message id %q is empty or taken", msg.ID)
		}
	}
	for _, msg := range messages {
		stored := *msg
		r.messages = append(r.messages, &stored)
		r.byID[stored.ID] = &stored
	}
	return nil
}

func (r *MemoryRepository) Pending(_ context.Context, limit int) ([]*Message, error) {
	return r.collect(limit, (*Message).Deliverable), nil
}

func (r *MemoryRepository) ForKey(_ context.Context, stockKey string) ([]*Message, error) {
	return r.collect(0, func(m *Message) bool { return m.StockKey == stockKey }), nil
}

func (r *MemoryRepository) collect(limit int, keep func(*Message) bool) []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Message
	for _, msg := range r.messages {
		if !keep(msg) {
			continue
		}
		copied := *msg
		out = append(out, &copied)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (r *MemoryRepository) MarkPublished(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(m *Message) { m.PublishedAt = &at })
}

func (r *MemoryRepository) RecordFailure(_ context.Context, id, reason string) error {
	return r.update(id, func(m *Message) {
		m.Attempts++
		m.LastError = reason
	})
}

func (r *MemoryRepository) update(id string, apply func(*Message)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("outbox message %s not found", id)
	}
	apply(msg)
	return nil
}

func (r *MemoryRepository) Purge(_ context.Context, publishedBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var purged int64
	kept := r.messages[:0]
	for _, msg := range r.messages {
		if msg.Published() && msg.PublishedAt.Before(publishedBefore) {
			delete(r.byID, msg.ID)
			purged++
			continue
		}
		kept = append(kept, msg)
	}
	r.messages = kept
	return purged, nil
}

func (r *MemoryRepository) CountPending(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, msg := range r.messages {
		if !msg.Published() {
			n++
		}
	}
	return n, nil
}

var _ Repository = (*MemoryRepository)(nil)
