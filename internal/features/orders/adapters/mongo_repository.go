package adapters

import (
	"context"
	"errors"
	"fmt"

	"order-tracker/internal/features/orders/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ordersCollection        = "pedidos"
	cancellationsCollection = "solicitudes_cancelacion"
)

// MongoOrderRepository implements ports.OrderRepository on MongoDB.
type MongoOrderRepository struct {
	coll *mongo.Collection
}

// NewMongoOrderRepository creates a MongoOrderRepository on the given database.
func NewMongoOrderRepository(db *mongo.Database) *MongoOrderRepository {
	return &MongoOrderRepository{coll: db.Collection(ordersCollection)}
}

// FindByID loads one order.
func (r *MongoOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var order domain.Order
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order %s: %w", id, err)
	}
	return &order, nil
}

// Save persists the order only if nobody else saved it since it was read,
// bumping the document version. A stale version or a duplicate insert
// returns domain.ErrOrderConflict so the caller can re-read and retry.
func (r *MongoOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	expected := order.Version
	order.Version = expected + 1

	filter := bson.M{"_id": order.ID}
	if expected == 0 {
		// A missing version field counts as zero for documents written
		// before versioning existed.
		filter["version"] = bson.M{"$in": bson.A{int64(0), nil}}
	} else {
		filter["version"] = expected
	}

	opts := options.Replace().SetUpsert(expected == 0)
	res, err := r.coll.ReplaceOne(ctx, filter, order, opts)
	if err != nil {
		order.Version = expected
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrOrderConflict
		}
		return fmt.Errorf("failed to save order %s: %w", order.ID, err)
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		order.Version = expected
		return domain.ErrOrderConflict
	}
	return nil
}

// FindShippedWithTracking returns shipped orders that carry a tracking number.
func (r *MongoOrderRepository) FindShippedWithTracking(ctx context.Context) ([]*domain.Order, error) {
	filter := bson.M{
		"status":                      domain.OrderStatusShipped,
		"seguimiento.tracking_number": bson.M{"$ne": ""},
	}

	cursor, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query shipped orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []*domain.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode shipped orders: %w", err)
	}
	return orders, nil
}

// MongoCancellationRepository implements ports.CancellationRepository on MongoDB.
type MongoCancellationRepository struct {
	coll *mongo.Collection
}

// NewMongoCancellationRepository creates a MongoCancellationRepository on the
// given database.
func NewMongoCancellationRepository(db *mongo.Database) *MongoCancellationRepository {
	return &MongoCancellationRepository{coll: db.Collection(cancellationsCollection)}
}

// Insert stores a new request.
func (r *MongoCancellationRepository) Insert(ctx context.Context, req *domain.CancellationRequest) error {
	if _, err := r.coll.InsertOne(ctx, req); err != nil {
		return fmt.Errorf("failed to insert cancellation request: %w", err)
	}
	return nil
}

// FindByID loads one request.
func (r *MongoCancellationRepository) FindByID(ctx context.Context, id string) (*domain.CancellationRequest, error) {
	var req domain.CancellationRequest
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&req)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrCancellationNotFound
		}
		return nil, fmt.Errorf("failed to load cancellation request %s: %w", id, err)
	}
	return &req, nil
}

// HasPendingForOrder reports whether the order already has an undecided request.
func (r *MongoCancellationRepository) HasPendingForOrder(ctx context.Context, orderID string) (bool, error) {
	count, err := r.coll.CountDocuments(ctx, bson.M{
		"order_id": orderID,
		"status":   domain.CancellationPending,
	})
	if err != nil {
		return false, fmt.Errorf("failed to count pending cancellations: %w", err)
	}
	return count > 0, nil
}

// Save persists a resolved request.
func (r *MongoCancellationRepository) Save(ctx context.Context, req *domain.CancellationRequest) error {
	if _, err := r.coll.ReplaceOne(ctx, bson.M{"_id": req.ID}, req); err != nil {
		return fmt.Errorf("failed to save cancellation request %s: %w", req.ID, err)
	}
	return nil
}
