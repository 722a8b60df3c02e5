package training

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/gymstack/presenced/internal/util"
)

// Record is a single training-module completion record for a user.
type Record struct {
	UserID    string    `bson:"user_id" json:"user_id"`
	ModuleID  string    `bson:"module_id" json:"module_id"`
	Status    string    `bson:"status" json:"status"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Store provides access to a user's training-module records.
type Store interface {
	Records(ctx context.Context, userID string) ([]Record, error)
	MarkCompleted(ctx context.Context, userID, moduleID string) error
}

// MongoStore implements Store on a MongoDB collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
}

// NewMongoStore connects to MongoDB and returns a store over the configured
// training-records collection.
func NewMongoStore(cfg util.MongoConfig) (*MongoStore, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.Timeout())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("could not connect to MongoDB: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), cfg.Timeout())
	defer pingCancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("could not ping MongoDB: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "training_records"
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(collection),
		timeout:    cfg.Timeout(),
	}, nil
}

// Records returns all training-module records for a user.
func (s *MongoStore) Records(ctx context.Context, userID string) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cursor, err := s.collection.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("could not fetch training records for %s: %w", userID, err)
	}
	defer cursor.Close(ctx)

	var records []Record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("could not decode training records for %s: %w", userID, err)
	}
	return records, nil
}

// MarkCompleted upserts a completed record for the given user and module.
func (s *MongoStore) MarkCompleted(ctx context.Context, userID, moduleID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	filter := bson.M{"user_id": userID, "module_id": moduleID}
	update := bson.M{"$set": bson.M{
		"status":     StatusCompleted,
		"updated_at": time.Now(),
	}}

	_, err := s.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("could not mark module %s completed for %s: %w", moduleID, userID, err)
	}
	return nil
}

// Ping verifies the MongoDB connection is still alive.
func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
