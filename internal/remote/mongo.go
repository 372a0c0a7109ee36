package remote

import (
	"context"
	"encoding/json"
	"time"

	"github.com/example/examprep/pkg/models"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoUnauthorized is the server code for a rejected operation.
const mongoUnauthorized = 13

// MongoConfig locates the user collection.
type MongoConfig struct {
	URI         string
	Database    string
	Collection  string
	MaxPoolSize uint64
	Timeout     time.Duration
}

// MongoStore keeps one document per user, keyed by the normalized id.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore connects and pings the server.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetTimeout(cfg.Timeout)
	if cfg.MaxPoolSize > 0 {
		clientOptions.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to MongoDB")
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, errors.Wrap(err, "failed to ping MongoDB")
	}
	return &MongoStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) GetDocument(ctx context.Context, userID string) (*models.Document, error) {
	var raw bson.M
	err := s.collection.FindOne(ctx, bson.M{"_id": NormalizeUserID(userID)}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, mongoError(err, "failed to read user document")
	}
	delete(raw, "_id")

	fields := make(map[string]json.RawMessage, len(raw))
	for name, value := range raw {
		encoded, err := json.Marshal(plain(value))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to convert field %s", name)
		}
		fields[name] = encoded
	}
	return decodeDocument(fields)
}

func (s *MongoStore) SetDocument(ctx context.Context, userID string, fields map[string]any) error {
	encoded, err := encodeFields(fields)
	if err != nil {
		return err
	}
	set := bson.M{}
	for name, raw := range encoded {
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return errors.Wrapf(err, "failed to convert field %s", name)
		}
		set[name] = value
	}

	_, err = s.collection.UpdateOne(ctx,
		bson.M{"_id": NormalizeUserID(userID)},
		bson.M{"$set": set},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return mongoError(err, "failed to write user document")
	}
	return nil
}

func mongoError(err error, msg string) error {
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) && serverErr.HasErrorCode(mongoUnauthorized) {
		return errors.Wrap(ErrPermissionDenied, err.Error())
	}
	return errors.Wrap(err, msg)
}

// plain converts driver container types into maps and slices.
func plain(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = plain(val)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = plain(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = plain(val)
		}
		return out
	default:
		return v
	}
}
