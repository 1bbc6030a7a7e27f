// Package memory holds in-process repositories used by tests and by the
// memory storage driver. State is lost on restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wms-platform/ingredient-stock/internal/domain"
	"github.com/wms-platform/ingredient-stock/internal/infrastructure/eventmapper"
	"github.com/wms-platform/ingredient-stock/pkg/outbox"
)

// InventoryRecordRepository keeps inventory records in a map and writes their
// events to an outbox repository under the same lock
type InventoryRecordRepository struct {
	mu      sync.RWMutex
	records map[domain.StockKey]*domain.InventoryRecord
	outbox  outbox.Repository
	mapper  *eventmapper.Mapper
}

// NewInventoryRecordRepository creates an empty repository. A nil outbox drops events.
func NewInventoryRecordRepository(outboxRepo outbox.Repository, mapper *eventmapper.Mapper) *InventoryRecordRepository {
	if mapper == nil {
		mapper = eventmapper.New(nil, nil, "")
	}
	return &InventoryRecordRepository{
		records: make(map[domain.StockKey]*domain.InventoryRecord),
		outbox:  outboxRepo,
		mapper:  mapper,
	}
}

// Save stores a copy of the record if nobody saved a newer version in between
func (r *InventoryRecordRepository) Save(ctx context.Context, record *domain.InventoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.records[record.Key]
	switch {
	case !exists && record.PersistedVersion() != 0:
		return fmt.Errorf("%w: %s was deleted", domain.ErrConcurrentModification, record.Key)
	case exists && stored.Version != record.PersistedVersion():
		return fmt.Errorf("%w: %s stored at version %d, loaded at %d",
			domain.ErrConcurrentModification, record.Key, stored.Version, record.PersistedVersion())
	}

	messages, err := r.mapper.ToMessages(ctx, record.Key, record.DomainEvents)
	if err != nil {
		return err
	}
	if r.outbox != nil && len(messages) > 0 {
		if err := r.outbox.Append(ctx, messages...); err != nil {
			return err
		}
	}

	record.ClearDomainEvents()
	record.MarkPersisted()
	r.records[record.Key] = record.Clone()
	return nil
}

// FindByKey returns a copy of the stored record
func (r *InventoryRecordRepository) FindByKey(_ context.Context, key domain.StockKey) (*domain.InventoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.records[key]
	if !ok {
		return nil, nil
	}
	return stored.Clone(), nil
}

// FindBySite lists records of one site ordered by item id
func (r *InventoryRecordRepository) FindBySite(_ context.Context, organizationID, siteID string, limit, offset int) ([]*domain.InventoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]*domain.InventoryRecord, 0)
	for key, record := range r.records {
		if key.OrganizationID == organizationID && key.SiteID == siteID {
			matches = append(matches, record)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Key.ItemID < matches[j].Key.ItemID })

	page := paginate(len(matches), limit, offset)
	out := make([]*domain.InventoryRecord, 0, page.end-page.start)
	for _, record := range matches[page.start:page.end] {
		out = append(out, record.Clone())
	}
	return out, nil
}

// FindKeysWithExpiredBatches returns keys holding an active batch that expires before cutoff
func (r *InventoryRecordRepository) FindKeysWithExpiredBatches(_ context.Context, cutoff time.Time, limit int) ([]domain.StockKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]domain.StockKey, 0)
	for key, record := range r.records {
		if record.ExpiredQuantity(cutoff).IsPositive() {
			keys = append(keys, key)
		}
	}
	sortKeys(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

// ListKeys pages over every key in org, site, item order
func (r *InventoryRecordRepository) ListKeys(_ context.Context, limit, offset int) ([]domain.StockKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]domain.StockKey, 0, len(r.records))
	for key := range r.records {
		keys = append(keys, key)
	}
	sortKeys(keys)

	page := paginate(len(keys), limit, offset)
	return keys[page.start:page.end], nil
}

type window struct {
	start, end int
}

func paginate(total, limit, offset int) window {
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return window{start: offset, end: end}
}

func sortKeys(keys []domain.StockKey) {
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
}
