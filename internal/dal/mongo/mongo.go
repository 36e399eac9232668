package mongo

import (
	"context"
	"os"
	"time"

	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Client represents a MongoDB client scoped to the order database.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// Database returns the order database handle.
func (c *Client) Database() *mongo.Database {
	return c.db
}

// Orders returns the orders collection.
func (c *Client) Orders() *mongo.Collection {
	return c.db.Collection("orders")
}

// ProcessedEvents returns the idempotency ledger collection.
func (c *Client) ProcessedEvents() *mongo.Collection {
	return c.db.Collection("processed_events")
}

// Ping checks the MongoDB connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Close closes the MongoDB connection for graceful shutdown.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// MustNewClient creates a new MongoDB client and ensures indexes.
func MustNewClient() *Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(os.Getenv("MONGO_URI")))
	if err != nil {
		panic(err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		panic(err)
	}

	dbName := viper.GetString("mongo.database")
	if dbName == "" {
		dbName = "ecommerce_orders"
	}

	c := &Client{
		client: client,
		db:     client.Database(dbName),
	}

	c.mustEnsureIndexes(ctx)

	return c
}

// mustEnsureIndexes creates the indexes the saga depends on: point lookups by
// order_id, the list-by-user sort, and the uniqueness that backs the
// idempotency ledger.
func (c *Client) mustEnsureIndexes(ctx context.Context) {
	_, err := c.Orders().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "order_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "customer.user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	})
	if err != nil {
		panic(err)
	}

	_, err = c.ProcessedEvents().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "event_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		panic(err)
	}
}
