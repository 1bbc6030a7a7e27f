package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/ingredient-stock/internal/domain"
	mongoutil "github.com/wms-platform/ingredient-stock/pkg/mongodb"
)

// Ledger collections
const (
	LedgersCollection       = "stock_ledgers"
	LedgerEntriesCollection = "stock_ledger_entries"
)

// LedgerRepository stores ledger headers and append-only entries. The header and
// the entries it introduces are written in one transaction.
type LedgerRepository struct {
	ledgers *mongo.Collection
	entries *mongo.Collection
	db      *mongo.Database
}

func NewLedgerRepository(db *mongo.Database) *LedgerRepository {
	return &LedgerRepository{
		ledgers: db.Collection(LedgersCollection),
		entries: db.Collection(LedgerEntriesCollection),
		db:      db,
	}
}

// EnsureIndexes creates the entry indexes. The partial index makes a request id
// usable once per ledger even if two writers race past the lookup.
func (r *LedgerRepository) EnsureIndexes(ctx context.Context) error {
	onceOnly := options.Index().
		SetUnique(true).
		SetPartialFilterExpression(bson.M{"idempotencyKey": bson.M{"$exists": true}})

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "ledgerId", Value: 1}, {Key: "sequence", Value: -1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "ledgerId", Value: 1}, {Key: "idempotencyKey", Value: 1}}, Options: onceOnly},
		{Keys: bson.D{{Key: "category", Value: 1}, {Key: "recordedAt", Value: -1}}},
	}
	if _, err := r.entries.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create ledger entry indexes: %w", err)
	}
	return nil
}

func (r *LedgerRepository) Save(ctx context.Context, ledger *domain.LedgerRecord) error {
	doc := toLedgerDocument(ledger)
	pending := ledger.PendingEntries()
	entryDocs := make([]interface{}, 0, len(pending))
	for _, e := range pending {
		entryDocs = append(entryDocs, toLedgerEntryDocument(e))
	}

	session, err := r.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		if ledger.PersistedVersion() == 0 {
			if _, err := r.ledgers.InsertOne(sessCtx, doc); err != nil {
				if mongo.IsDuplicateKeyError(err) {
					return nil, fmt.Errorf("%w: ledger %s already exists", domain.ErrConcurrentModification, ledger.Key)
				}
				return nil, fmt.Errorf("failed to insert ledger: %w", err)
			}
		} else {
			filter := bson.M{"_id": doc.ID, "version": ledger.PersistedVersion()}
			result, err := r.ledgers.ReplaceOne(sessCtx, filter, doc)
			if err != nil {
				return nil, fmt.Errorf("failed to save ledger: %w", err)
			}
			if result.MatchedCount == 0 {
				return nil, fmt.Errorf("%w: ledger %s is no longer at version %d",
					domain.ErrConcurrentModification, ledger.Key, ledger.PersistedVersion())
			}
		}

		if len(entryDocs) > 0 {
			if _, err := r.entries.InsertMany(sessCtx, entryDocs, options.InsertMany().SetOrdered(true)); err != nil {
				if mongo.IsDuplicateKeyError(err) {
					return nil, fmt.Errorf("%w: ledger %s entry already recorded", domain.ErrConcurrentModification, ledger.Key)
				}
				return nil, fmt.Errorf("failed to append ledger entries: %w", err)
			}
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrConcurrentModification) {
			return err
		}
		return fmt.Errorf("transaction failed: %w", err)
	}

	ledger.PullEntries()
	ledger.MarkPersisted()
	return nil
}

func (r *LedgerRepository) FindByKey(ctx context.Context, key domain.StockKey) (*domain.LedgerRecord, error) {
	var doc ledgerDocument
	err := r.ledgers.FindOne(ctx, bson.M{"_id": key.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ledger: %w", err)
	}
	return doc.toDomain()
}

func (r *LedgerRepository) FindEntries(ctx context.Context, key domain.StockKey, limit int) ([]domain.LedgerEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sequence", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.entries.Find(ctx, bson.M{"ledgerId": key.String()}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find ledger entries: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []ledgerEntryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode ledger entries: %w", err)
	}

	entries := make([]domain.LedgerEntry, 0, len(docs))
	for i := range docs {
		entry, err := docs[i].toDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *LedgerRepository) FindEntryByIdempotencyKey(ctx context.Context, key domain.StockKey, idempotencyKey string) (*domain.LedgerEntry, error) {
	if idempotencyKey == "" {
		return nil, nil
	}
	var doc ledgerEntryDocument
	err := r.entries.FindOne(ctx, bson.M{"ledgerId": key.String(), "idempotencyKey": idempotencyKey}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ledger entry: %w", err)
	}
	entry, err := doc.toDomain()
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// SumDeltas sums entry deltas server side in Decimal128
func (r *LedgerRepository) SumDeltas(ctx context.Context, key domain.StockKey) (decimal.Decimal, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"ledgerId": key.String()}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "sum": bson.M{"$sum": "$delta"}}}},
	}
	cursor, err := r.entries.Aggregate(ctx, pipeline)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum ledger entries: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Sum primitive.Decimal128 `bson:"sum"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode ledger sum: %w", err)
	}
	if len(results) == 0 {
		return decimal.Zero, nil
	}
	return mongoutil.FromDecimal128(results[0].Sum)
}
