package outbox

import (
	"context"
	"fmt"

	"time"

	"github.com/mdarapour/sse-realtime-demo/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// sequenceDocID is the fixed _id of the singleton sequence counter
// document (spec.md §3).
const sequenceDocID = "event_sequence"

// sequenceDoc is the MongoDB document backing the sequence counter.
type sequenceDoc struct {
	ID         string `bson:"_id"`
	CurrentVal int64  `bson:"CurrentValue"`
}

// MongoStore is the MongoDB-backed Outbox Store and Sequence Allocator. A
// single collection holds outbox entries; the sequence counter lives in a
// second, single-document collection so its index requirements (none
// beyond _id) never collide with the outbox's.
type MongoStore struct {
	outbox     *mongo.Collection
	sequence   *mongo.Collection
	checkpoint *mongo.Collection
}

// NewMongoStore wraps the given database's outbox, sequence, and
// checkpoint collections. Callers should call EnsureIndexes once at
// startup.
func NewMongoStore(db *mongo.Database, outboxColl, sequenceColl, checkpointColl string) *MongoStore {
	return &MongoStore{
		outbox:     db.Collection(outboxColl),
		sequence:   db.Collection(sequenceColl),
		checkpoint: db.Collection(checkpointColl),
	}
}

// EnsureIndexes creates the indexes the persisted schema requires: a
// unique index on SequenceNumber, an ascending index on CreatedAt, and a
// TTL index on Ttl for the outbox; a unique index on ClientId for the
// checkpoint store.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.outbox.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "SequenceNumber", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "CreatedAt", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "Ttl", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	if err != nil {
		return fmt.Errorf("outbox: ensure outbox indexes: %w", err)
	}

	_, err = s.checkpoint.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "ClientId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("outbox: ensure checkpoint index: %w", err)
	}
	return nil
}

// Insert implements Store.
func (s *MongoStore) Insert(ctx context.Context, entry model.OutboxEntry) error {
	_, err := s.outbox.InsertOne(ctx, entry)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateSequence
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ReadAfter implements Store.
func (s *MongoStore) ReadAfter(ctx context.Context, fromSeq int64, limit int) ([]model.OutboxEntry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "SequenceNumber", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := s.outbox.Find(ctx, bson.M{"SequenceNumber": bson.M{"$gt": fromSeq}}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer cursor.Close(ctx)

	var entries []model.OutboxEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return entries, nil
}

// Latest implements Store.
func (s *MongoStore) Latest(ctx context.Context) (*model.OutboxEntry, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "SequenceNumber", Value: -1}})

	var entry model.OutboxEntry
	err := s.outbox.FindOne(ctx, bson.M{}, opts).Decode(&entry)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &entry, nil
}

// Next implements SequenceAllocator via an atomic find-one-and-increment
// with upsert semantics: if the counter document does not exist it is
// created with CurrentValue = 1 and 1 is returned; otherwise the counter
// is incremented and the new value returned.
func (s *MongoStore) Next(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc sequenceDoc
	err := s.sequence.FindOneAndUpdate(
		ctx,
		bson.M{"_id": sequenceDocID},
		bson.M{"$inc": bson.M{"CurrentValue": int64(1)}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return doc.CurrentVal, nil
}

// checkpointDoc is the MongoDB document structure for checkpoints.
type checkpointDoc struct {
	ClientID    string `bson:"ClientId"`
	LastSeq     int64  `bson:"LastSequenceNumber"`
	LastEventID string `bson:"LastEventId,omitempty"`
	CreatedAt   primitive.DateTime `bson:"CreatedAt"`
	UpdatedAt   primitive.DateTime `bson:"UpdatedAt"`
}

// Save implements CheckpointStore via an upserting UpdateOne keyed by
// ClientId: $set refreshes the progress fields and UpdatedAt on every
// save, while $setOnInsert stamps ClientId and CreatedAt only when the
// document is first created.
func (s *MongoStore) Save(ctx context.Context, clientID string, lastSeq int64, lastEventID string) error {
	now := primitive.NewDateTimeFromTime(time.Now().UTC())

	update := bson.M{
		"$set": bson.M{
			"LastSequenceNumber": lastSeq,
			"LastEventId":        lastEventID,
			"UpdatedAt":          now,
		},
		"$setOnInsert": bson.M{
			"ClientId":  clientID,
			"CreatedAt": now,
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := s.checkpoint.UpdateOne(ctx, bson.M{"ClientId": clientID}, update, opts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Load implements CheckpointStore.
func (s *MongoStore) Load(ctx context.Context, clientID string) (*model.Checkpoint, error) {
	var doc checkpointDoc
	err := s.checkpoint.FindOne(ctx, bson.M{"ClientId": clientID}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &model.Checkpoint{
		ClientID:       doc.ClientID,
		LastSequenceNo: doc.LastSeq,
		LastEventID:    doc.LastEventID,
		UpdatedAt:      doc.UpdatedAt.Time(),
	}, nil
}

// Compile-time interface checks.
var (
	_ Store             = (*MongoStore)(nil)
	_ SequenceAllocator = (*MongoStore)(nil)
	_ CheckpointStore   = (*MongoStore)(nil)
)
