package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/anamnesis-ai/anamnesis/src/memory/model"
	"github.com/google/uuid"
)

// MongoStore mirrors memory entries as documents, one per entry, for
// operators who already run Mongo.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

var _ EntryArchive = (*MongoStore)(nil)

const mongoCloseTimeout = 5 * time.Second

// NewMongoStore connects and pings before returning a usable archive.
func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	if collection == "" {
		return nil, errors.New("mongo collection name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

// ArchiveEntry upserts an entry document keyed by the entry id.
func (ms *MongoStore) ArchiveEntry(ctx context.Context, entry model.MemoryEntry) error {
	if ms == nil || ms.collection == nil {
		return nil
	}
	doc := bson.M{
		"_id":        entry.ID.String(),
		"kind":       entry.Kind.Kind.String(),
		"content":    entry.Text,
		"metadata":   entry.Metadata,
		"embedding":  float64Embedding(entry.Embedding),
		"created_at": entry.CreatedAt,
	}
	switch entry.Kind.Kind {
	case model.KindEpisodic:
		doc["session_id"] = entry.Kind.SessionID.String()
		doc["turn"] = entry.Kind.Turn
	case model.KindSemantic:
		doc["category"] = entry.Kind.Category
	}
	opts := options.Replace().SetUpsert(true)
	_, err := ms.collection.ReplaceOne(ctx, bson.M{"_id": entry.ID.String()}, doc, opts)
	return err
}

// DeleteSessionEntries removes every document belonging to one session.
func (ms *MongoStore) DeleteSessionEntries(ctx context.Context, sessionID uuid.UUID) error {
	if ms == nil || ms.collection == nil {
		return nil
	}
	_, err := ms.collection.DeleteMany(ctx, bson.M{"session_id": sessionID.String()})
	return err
}

// Close disconnects from the cluster with a bounded timeout.
func (ms *MongoStore) Close(ctx context.Context) error {
	if ms == nil || ms.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, mongoCloseTimeout)
	defer cancel()
	return ms.client.Disconnect(ctx)
}

func float64Embedding(vec []float32) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}
