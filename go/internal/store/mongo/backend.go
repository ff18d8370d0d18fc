// Package mongo stores documents in MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mcdev12/guessmoji/go/internal/store"
)

const (
	idField      = "_id"
	dataField    = "data"
	versionField = "version"
)

// Config locates the database.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// Backend is a store.Backend with one MongoDB collection per store
// collection. Optimistic concurrency is a version-filtered replace.
type Backend struct {
	client   *mongo.Client
	database *mongo.Database
}

var _ store.Backend = (*Backend)(nil)

// NewBackend connects to MongoDB.
func NewBackend(ctx context.Context, cfg Config) (*Backend, error) {
	clientOptions := options.Client()
	clientOptions.ApplyURI(cfg.URI)
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancelFunc := context.WithTimeout(ctx, timeout)
	defer cancelFunc()
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}
	database := cfg.Database
	if database == "" {
		database = "guessmoji"
	}
	return &Backend{client: client, database: client.Database(database)}, nil
}

func (b *Backend) collection(key store.Key) *mongo.Collection {
	return b.database.Collection(key.Collection)
}

func (b *Backend) Load(ctx context.Context, key store.Key) (store.Document, error) {
	var raw bson.M
	err := b.collection(key).FindOne(ctx, d(e(idField, key.ID))).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return store.Document{}, nil
		}
		return store.Document{}, fmt.Errorf("reading %s: %w", key, err)
	}

	version, ok := raw[versionField].(int64)
	if !ok || version == 0 {
		return store.Document{}, fmt.Errorf("document %s has no version", key)
	}
	data, _ := fromBSON(raw[dataField]).(map[string]any)
	if data == nil {
		data = map[string]any{}
	}
	return store.Document{Data: data, Version: version}, nil
}

func (b *Backend) Commit(ctx context.Context, key store.Key, expect int64, data map[string]any) (int64, error) {
	coll := b.collection(key)

	switch {
	case data == nil && expect == 0:
		return 0, nil

	case data == nil:
		result, err := coll.DeleteOne(ctx, d(e(idField, key.ID), e(versionField, expect)))
		if err != nil {
			return 0, fmt.Errorf("deleting %s: %w", key, err)
		}
		if result.DeletedCount == 0 {
			return 0, store.ErrVersionConflict
		}
		return 0, nil

	case expect == 0:
		version := store.NextVersion(expect)
		_, err := coll.InsertOne(ctx, d(e(idField, key.ID), e(dataField, data), e(versionField, version)))
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return 0, store.ErrVersionConflict
			}
			return 0, fmt.Errorf("creating %s: %w", key, err)
		}
		return version, nil

	default:
		version := store.NextVersion(expect)
		filter := d(e(idField, key.ID), e(versionField, expect))
		replacement := d(e(dataField, data), e(versionField, version))
		result, err := coll.ReplaceOne(ctx, filter, replacement)
		if err != nil {
			return 0, fmt.Errorf("replacing %s: %w", key, err)
		}
		if result.MatchedCount == 0 {
			return 0, store.ErrVersionConflict
		}
		return version, nil
	}
}

// Watch opens a change stream before the first read so no write between
// the two is missed.
func (b *Backend) Watch(ctx context.Context, key store.Key, emit func(store.Document) bool) error {
	pipeline := mongo.Pipeline{d(e("$match", d(e("documentKey._id", key.ID))))}
	stream, err := b.collection(key).Watch(ctx, pipeline)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("watching %s: %w", key, err)
	}
	defer stream.Close(context.Background())

	doc, err := b.Load(ctx, key)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if !emit(doc) {
		return nil
	}

	for stream.Next(ctx) {
		doc, err := b.Load(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !emit(doc) {
			return nil
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return stream.Err()
}

func (b *Backend) Close() error {
	return b.client.Disconnect(context.Background())
}

// fromBSON turns decoded BSON values into the plain tree the store uses.
func fromBSON(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]interface{}, len(t))
		for k, c := range t {
			out[k] = fromBSON(c)
		}
		return out
	case bson.D:
		out := make(map[string]interface{}, len(t))
		for _, el := range t {
			out[el.Key] = fromBSON(el.Value)
		}
		return out
	case bson.A:
		out := make([]interface{}, len(t))
		for i, c := range t {
			out[i] = fromBSON(c)
		}
		return out
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case primitive.DateTime:
		return float64(t)
	default:
		return v
	}
}

// d is a helper function to create bson.D elements.
func d(e ...bson.E) bson.D {
	return bson.D(e)
}

// e is a helper function to create bson.E elements.
func e(key string, value interface{}) bson.E {
	return bson.E{Key: key, Value: value}
}
