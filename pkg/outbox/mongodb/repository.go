// Package mongodb stores outbox messages in a MongoDB collection.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/ingredient-stock/pkg/outbox"
)

// CollectionName is the outbox collection next to the stock records
const CollectionName = "stock_outbox"

var oldestFirst = bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}

// Repository implements outbox.Repository
type Repository struct {
	collection *mongo.Collection
}

func NewRepository(db *mongo.Database) *Repository {
	return &Repository{collection: db.Collection(CollectionName)}
}

// Append inserts messages in order
func (r *Repository) Append(ctx context.Context, messages ...*outbox.Message) error {
	if len(messages) == 0 {
		return nil
	}
	docs := make([]interface{}, len(messages))
	for i, msg := range messages {
		docs[i] = msg
	}
	if _, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		return fmt.Errorf("failed to append outbox messages: %w", err)
	}
	return nil
}

func (r *Repository) Pending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	filter := bson.M{
		"publishedAt": bson.M{"$exists": false},
		"attempts":    bson.M{"$lt": outbox.MaxAttempts},
	}
	opts := options.Find().SetSort(oldestFirst)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, filter, opts)
}

func (r *Repository) ForKey(ctx context.Context, stockKey string) ([]*outbox.Message, error) {
	return r.find(ctx, bson.M{"stockKey": stockKey}, options.Find().SetSort(oldestFirst))
}

func (r *Repository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*outbox.Message, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []*outbox.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode outbox messages: %w", err)
	}
	return messages, nil
}

func (r *Repository) MarkPublished(ctx context.Context, id string, at time.Time) error {
	return r.updateOne(ctx, id, bson.M{"$set": bson.M{"publishedAt": at}})
}

func (r *Repository) RecordFailure(ctx context.Context, id, reason string) error {
	return r.updateOne(ctx, id, bson.M{
		"$inc": bson.M{"attempts": 1},
		"$set": bson.M{"lastError": reason},
	})
}

func (r *Repository) updateOne(ctx context.Context, id string, update bson.M) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update outbox message %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("outbox message %s not found", id)
	}
	return nil
}

func (r *Repository) Purge(ctx context.Context, publishedBefore time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"publishedAt": bson.M{"$lt": publishedBefore}})
	if err != nil {
		return 0, fmt.Errorf("failed to purge outbox: %w", err)
	}
	return result.DeletedCount, nil
}

func (r *Repository) CountPending(ctx context.Context) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"publishedAt": bson.M{"$exists": false}})
	if err != nil {
		return 0, fmt.Errorf("failed to count pending outbox messages: %w", err)
	}
	return count, nil
}

// EnsureIndexes creates the indexes behind Pending, ForKey and Purge
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "publishedAt", Value: 1}, {Key: "attempts", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_pending"),
		},
		{
			Keys:    bson.D{{Key: "stockKey", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_stock_key"),
		},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create outbox indexes: %w", err)
	}
	return nil
}

var _ outbox.Repository = (*Repository)(nil)
