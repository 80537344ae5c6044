package database

import (
	"context"
	"fmt"
	"time"

	"order-tracker/internal/core/config"
	"order-tracker/internal/core/logger"

	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Mongo wraps the MongoDB client and the database handle used by the service.
type Mongo struct {
	// Client is the underlying MongoDB client.
	Client *mongo.Client
	// DB is the database handle all repositories operate on.
	DB *mongo.Database
	// timeout bounds individual operations.
	timeout time.Duration
}

// Connect establishes the MongoDB connection and verifies it with a ping.
func Connect(ctx context.Context, cfg config.MongoConfig) (*Mongo, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	log := logger.Named("mongo")

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName("order-tracker").
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetConnectTimeout(timeout).
		SetPoolMonitor(&event.PoolMonitor{
			Event: func(evt *event.PoolEvent) {
				switch evt.Type {
				case event.ConnectionCreated:
					log.Debug("connection created", zap.String("address", evt.Address))
				case event.ConnectionClosed:
					log.Debug("connection closed", zap.String("address", evt.Address))
				}
			},
		})

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("mongodb ping failed: %w", err)
	}

	log.Info("Connected to MongoDB", zap.String("database", cfg.Database))

	return &Mongo{
		Client:  client,
		DB:      client.Database(cfg.Database),
		timeout: timeout,
	}, nil
}

// Collection returns a collection handle on the service database.
func (m *Mongo) Collection(name string) *mongo.Collection {
	return m.DB.Collection(name)
}

// WithTransaction runs fn inside a MongoDB session transaction. The order
// mutation and its outbox record are committed or rolled back together.
// The context passed to fn is session-bound and must be used for every
// operation that belongs to the transaction.
func (m *Mongo) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := m.Client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start mongo session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	closeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.Client.Disconnect(closeCtx)
}
