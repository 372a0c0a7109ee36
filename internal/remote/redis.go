package remote

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/example/examprep/pkg/models"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each user document as a hash of field -> JSON value.
// HSET only touches the given fields, which gives merge semantics.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore parses redisURL and pings the server.
func NewRedisStore(ctx context.Context, redisURL, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse Redis URL")
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}
	return NewRedisStoreWithClient(client, prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "examprep:user:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + NormalizeUserID(userID)
}

func (s *RedisStore) GetDocument(ctx context.Context, userID string) (*models.Document, error) {
	values, err := s.client.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return nil, redisError(err, "failed to read user document")
	}
	if len(values) == 0 {
		return nil, nil
	}
	fields := make(map[string]json.RawMessage, len(values))
	for name, value := range values {
		fields[name] = json.RawMessage(value)
	}
	return decodeDocument(fields)
}

func (s *RedisStore) SetDocument(ctx context.Context, userID string, fields map[string]any) error {
	encoded, err := encodeFields(fields)
	if err != nil {
		return err
	}
	if len(encoded) == 0 {
		return nil
	}
	args := make([]any, 0, len(encoded)*2)
	for name, raw := range encoded {
		args = append(args, name, string(raw))
	}
	if err := s.client.HSet(ctx, s.key(userID), args...).Err(); err != nil {
		return redisError(err, "failed to write user document")
	}
	return nil
}

func redisError(err error, msg string) error {
	if strings.HasPrefix(err.Error(), "NOPERM") {
		return errors.Wrap(ErrPermissionDenied, err.Error())
	}
	return errors.Wrap(err, msg)
}
