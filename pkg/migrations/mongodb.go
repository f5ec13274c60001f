package migrations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureJournalCollection creates the relay journal indexes. Entries expire after ttl.
func EnsureJournalCollection(ctx context.Context, db *mongo.Database, name string, ttl time.Duration) error {
	collection := db.Collection(name)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "at", Value: -1}},
			Options: options.Index().SetName("idx_relay_journal_at").SetExpireAfterSeconds(int32(ttl.Seconds())),
		},
		{
			Keys:    bson.D{{Key: "sender_key", Value: 1}, {Key: "at", Value: -1}},
			Options: options.Index().SetName("idx_relay_journal_sender_at"),
		},
		{
			Keys:    bson.D{{Key: "success", Value: 1}, {Key: "at", Value: -1}},
			Options: options.Index().SetName("idx_relay_journal_success_at"),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	return nil
}
