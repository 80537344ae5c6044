package outbox

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// outboxCollection is the MongoDB collection holding outbox records.
const outboxCollection = "outbox"

// MongoRepository implements Repository on MongoDB.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository creates a MongoRepository on the given database.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(outboxCollection)}
}

// Insert enqueues a record.
func (r *MongoRepository) Insert(ctx context.Context, rec *Record) error {
	if _, err := r.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("failed to insert outbox record: %w", err)
	}
	return nil
}

// FindPending returns up to limit pending records, oldest first, counting a
// dispatch attempt for each one handed out. Attempts therefore reflect every
// pass that picked the record up, not just the one that published it.
func (r *MongoRepository) FindPending(ctx context.Context, limit int) ([]*Record, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.coll.Find(ctx, bson.M{"status": StatusPending}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending outbox records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*Record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode outbox records: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
		rec.Attempts++
	}
	if _, err := r.coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$inc": bson.M{"attempts": 1}},
	); err != nil {
		return nil, fmt.Errorf("failed to count outbox dispatch attempts: %w", err)
	}
	return records, nil
}

// MarkPublished flips records to published and stamps the publish time.
func (r *MongoRepository) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"status": StatusPublished, "published_at": at}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox records published: %w", err)
	}
	return nil
}

// DeletePublishedBefore removes published records older than cutoff.
func (r *MongoRepository) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{
		"status":       StatusPublished,
		"published_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clean up outbox records: %w", err)
	}
	return res.DeletedCount, nil
}
