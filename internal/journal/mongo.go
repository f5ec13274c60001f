package journal

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"otprelay/internal/constants"
)

type MongoJournal struct {
	collection *mongo.Collection
}

func NewMongoJournal(db *mongo.Database) *MongoJournal {
	return &MongoJournal{
		collection: db.Collection(constants.JournalCollectionName),
	}
}

func (j *MongoJournal) Record(ctx context.Context, e Entry) error {
	if _, err := j.collection.InsertOne(ctx, prepare(e)); err != nil {
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}
	return nil
}

func (j *MongoJournal) List(ctx context.Context, q Query) ([]Entry, error) {
	q = normalizeQuery(q)

	filter := bson.M{}
	if q.SenderKey != "" {
		filter["sender_key"] = q.SenderKey
	}
	if q.FailedOnly {
		filter["success"] = false
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "at", Value: -1}}).
		SetLimit(int64(q.Limit))

	cursor, err := j.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find journal entries: %w", err)
	}
	defer cursor.Close(ctx)

	entries := make([]Entry, 0, q.Limit)
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode journal entries: %w", err)
	}
	return entries, nil
}
