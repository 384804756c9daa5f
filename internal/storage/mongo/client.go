// Package mongo is the document-store backend: one document per cache
// partition, one collection per notification ledger.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	cacheCollection    = "listing_cache"
	arrivalsCollection = "notified_arrivals"
	urgentCollection   = "notified_urgent"
)

// Connect opens a client and verifies the server is reachable.
func Connect(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping: %w", err)
	}

	return client, client.Database(database), nil
}

// EnsureIndexes creates the TTL index on cache partitions and the unique
// listing id index each ledger relies on for insert-if-absent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(cacheCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0).SetName("expires_at_ttl"),
	})
	if err != nil {
		return fmt.Errorf("create cache ttl index: %w", err)
	}

	for _, name := range []string{arrivalsCollection, urgentCollection} {
		_, err := db.Collection(name).Indexes().CreateMany(ctx, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "listing_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("listing_id_unique"),
			},
			{
				Keys: bson.D{{Key: "first_seen_at", Value: -1}},
			},
		})
		if err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
	}
	return nil
}
