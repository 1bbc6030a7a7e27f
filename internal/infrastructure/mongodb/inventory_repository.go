package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/ingredient-stock/internal/domain"
	"github.com/wms-platform/ingredient-stock/internal/infrastructure/eventmapper"
	"github.com/wms-platform/ingredient-stock/pkg/outbox"
	outboxmongo "github.com/wms-platform/ingredient-stock/pkg/outbox/mongodb"
	"github.com/wms-platform/ingredient-stock/pkg/tracing"
)

// StockRecordsCollection holds one document per stock key
const StockRecordsCollection = "stock_records"

type InventoryRecordRepository struct {
	collection *mongo.Collection
	db         *mongo.Database
	outboxRepo *outboxmongo.Repository
	mapper     *eventmapper.Mapper
	tracer     trace.Tracer
}

func NewInventoryRecordRepository(db *mongo.Database, mapper *eventmapper.Mapper) *InventoryRecordRepository {
	if mapper == nil {
		mapper = eventmapper.New(nil, nil, "")
	}
	return &InventoryRecordRepository{
		collection: db.Collection(StockRecordsCollection),
		db:         db,
		outboxRepo: outboxmongo.NewRepository(db),
		mapper:     mapper,
		tracer:     otel.Tracer("mongodb-stock-records"),
	}
}

// EnsureIndexes creates the record and outbox indexes
func (r *InventoryRecordRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "key.organizationId", Value: 1}, {Key: "key.siteId", Value: 1}, {Key: "key.itemId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "batches.status", Value: 1}, {Key: "batches.expiresAt", Value: 1}}},
		{Keys: bson.D{{Key: "stockLevel", Value: 1}}},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create stock record indexes: %w", err)
	}
	return r.outboxRepo.EnsureIndexes(ctx)
}

// Save writes the record and its outbox events in one transaction. A record that
// was never persisted is inserted; otherwise the stored version must match the
// version it was loaded at.
func (r *InventoryRecordRepository) Save(ctx context.Context, record *domain.InventoryRecord) error {
	return tracing.TracedVoidOperation(ctx, r.tracer, "mongodb.stock_records.save",
		func(ctx context.Context) error { return r.save(ctx, record) },
		r.spanAttributes("save", record.Key)...,
	)
}

func (r *InventoryRecordRepository) save(ctx context.Context, record *domain.InventoryRecord) error {
	messages, err := r.mapper.ToMessages(ctx, record.Key, record.DomainEvents)
	if err != nil {
		return err
	}
	doc := toStockRecordDocument(record)

	session, err := r.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		// 1. Save the aggregate
		if record.PersistedVersion() == 0 {
			if _, err := r.collection.InsertOne(sessCtx, doc); err != nil {
				if mongo.IsDuplicateKeyError(err) {
					return nil, fmt.Errorf("%w: %s already exists", domain.ErrConcurrentModification, record.Key)
				}
				return nil, fmt.Errorf("failed to insert stock record: %w", err)
			}
		} else {
			filter := bson.M{"_id": doc.ID, "version": record.PersistedVersion()}
			result, err := r.collection.ReplaceOne(sessCtx, filter, doc)
			if err != nil {
				return nil, fmt.Errorf("failed to save stock record: %w", err)
			}
			if result.MatchedCount == 0 {
				return nil, fmt.Errorf("%w: %s is no longer at version %d",
					domain.ErrConcurrentModification, record.Key, record.PersistedVersion())
			}
		}

		// 2. Save domain events to outbox
		if err := r.outboxRepo.Append(sessCtx, messages...); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrConcurrentModification) {
			return err
		}
		return fmt.Errorf("transaction failed: %w", err)
	}

	// 3. Clear domain events from the aggregate
	record.ClearDomainEvents()
	record.MarkPersisted()
	return nil
}

func (r *InventoryRecordRepository) FindByKey(ctx context.Context, key domain.StockKey) (*domain.InventoryRecord, error) {
	return tracing.TracedOperation(ctx, r.tracer, "mongodb.stock_records.find", func(ctx context.Context) (*domain.InventoryRecord, error) {
		var doc stockRecordDocument
		err := r.collection.FindOne(ctx, bson.M{"_id": key.String()}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find stock record: %w", err)
		}
		return doc.toDomain()
	}, r.spanAttributes("find", key)...)
}

func (r *InventoryRecordRepository) spanAttributes(operation string, key domain.StockKey) []attribute.KeyValue {
	attrs := tracing.DatabaseSpanAttributes("mongodb", r.db.Name(), operation, StockRecordsCollection)
	return append(attrs, tracing.StockKeySpanAttributes(key.OrganizationID, key.SiteID, key.ItemID)...)
}

func (r *InventoryRecordRepository) FindBySite(ctx context.Context, organizationID, siteID string, limit, offset int) ([]*domain.InventoryRecord, error) {
	filter := bson.M{"key.organizationId": organizationID, "key.siteId": siteID}
	opts := options.Find().
		SetSort(bson.D{{Key: "key.itemId", Value: 1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock records: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []stockRecordDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode stock records: %w", err)
	}

	records := make([]*domain.InventoryRecord, 0, len(docs))
	for i := range docs {
		record, err := docs[i].toDomain()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *InventoryRecordRepository) FindKeysWithExpiredBatches(ctx context.Context, cutoff time.Time, limit int) ([]domain.StockKey, error) {
	filter := bson.M{
		"batches": bson.M{"$elemMatch": bson.M{
			"status":    string(domain.BatchStatusActive),
			"expiresAt": bson.M{"$lt": cutoff},
		}},
	}
	opts := options.Find().
		SetProjection(bson.M{"key": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.findKeys(ctx, filter, opts)
}

func (r *InventoryRecordRepository) ListKeys(ctx context.Context, limit, offset int) ([]domain.StockKey, error) {
	opts := options.Find().
		SetProjection(bson.M{"key": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.findKeys(ctx, bson.M{}, opts)
}

func (r *InventoryRecordRepository) findKeys(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.StockKey, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock keys: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		Key stockKeyDocument `bson:"key"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode stock keys: %w", err)
	}

	keys := make([]domain.StockKey, 0, len(docs))
	for _, doc := range docs {
		keys = append(keys, doc.Key.toDomain())
	}
	return keys, nil
}

// Outbox returns the outbox the record events are written to
func (r *InventoryRecordRepository) Outbox() outbox.Repository {
	return r.outboxRepo
}
