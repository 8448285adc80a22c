// Package mongostore implements the catalog item store on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/Strob0t/collectibles/internal/config"
)

const (
	itemsCollection    = "items"
	countersCollection = "counters"
	itemsCounterID     = "items"
)

// Connect opens a MongoDB client and verifies it with a ping.
func Connect(ctx context.Context, cfg config.Mongo) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName("collectibles").
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetPoolMonitor(&event.PoolMonitor{
			Event: func(evt *event.PoolEvent) {
				switch evt.Type {
				case event.ConnectionCreated, event.ConnectionClosed:
					slog.Debug("mongo pool event", "type", evt.Type, "address", evt.Address, "reason", evt.Reason)
				}
			},
		})

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the secondary indexes used by the catalog.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(itemsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "price", Value: 1}},
		Options: options.Index().SetName("items_price_idx"),
	})
	if err != nil {
		return fmt.Errorf("create items index: %w", err)
	}
	return nil
}

// isNoDocuments reports whether err means the filter matched nothing.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// now returns the current time at the millisecond precision BSON dates keep.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
