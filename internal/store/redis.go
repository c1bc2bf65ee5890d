package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/playbingo/backend/internal/logger"
)

// RedisStore keeps each document as a JSON string at its path and publishes
// the new body on a channel named after the path, so subscribers see every
// mutation pushed rather than polling. Merge writes are read-merge-write
// without a transaction; racing merges converge on the last writer.
type RedisStore struct {
	client *redis.Client
	log    *zap.SugaredLogger
}

// Connect establishes a connection to Redis and wraps it as a Store.
func Connect(redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Verify connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewRedisStore(client), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, log: logger.Log}
}

// Close releases the underlying connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) GetDocument(ctx context.Context, path string, out interface{}) (bool, error) {
	raw, err := s.client.Get(ctx, path).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", path, err)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return false, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return true, nil
}

func (s *RedisStore) SetDocument(ctx context.Context, path string, value interface{}, merge bool) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	if merge {
		existing, err := s.client.Get(ctx, path).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("get %s: %w", path, err)
		}
		if err == nil {
			merged, merr := mergeJSON(existing, body)
			if merr != nil {
				return fmt.Errorf("merge %s: %w", path, merr)
			}
			body = merged
		}
	}

	if err := s.client.Set(ctx, path, body, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	s.publish(ctx, path, body)
	return nil
}

func (s *RedisStore) UpdateDocument(ctx context.Context, path string, fields map[string]interface{}) error {
	existing, err := s.client.Get(ctx, path).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}

	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields for %s: %w", path, err)
	}
	merged, err := mergeJSON(existing, patch)
	if err != nil {
		return fmt.Errorf("merge %s: %w", path, err)
	}
	if err := s.client.Set(ctx, path, merged, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	s.publish(ctx, path, merged)
	return nil
}

func (s *RedisStore) CreateDocument(ctx context.Context, path string, value interface{}) (bool, error) {
	body, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", path, err)
	}
	created, err := s.client.SetNX(ctx, path, body, 0).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", path, err)
	}
	if created {
		s.publish(ctx, path, body)
	}
	return created, nil
}

func (s *RedisStore) CompareAndSetDocument(ctx context.Context, path string, value interface{}, expect int64) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, path).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var versioned struct {
			Version int64 `json:"version"`
		}
		if err := json.Unmarshal(raw, &versioned); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		if versioned.Version != expect {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, path, body, 0)
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txn, path)
	if errors.Is(err, redis.TxFailedErr) {
		// Key changed between read and write; same outcome as a stale version.
		return ErrConflict
	}
	if err != nil {
		return err
	}
	s.publish(ctx, path, body)
	return nil
}

func (s *RedisStore) SubscribeDocument(ctx context.Context, path string, onChange func(raw json.RawMessage, exists bool), onError func(error)) (Unsubscribe, error) {
	ps := s.client.Subscribe(ctx, path)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", path, err)
	}

	// Initial snapshot after the subscription is live so no write can land
	// between the read and the first notification.
	var raw json.RawMessage
	exists, err := s.GetDocument(ctx, path, &raw)
	if err != nil {
		ps.Close()
		return nil, err
	}
	onChange(raw, exists)

	go func() {
		for msg := range ps.Channel() {
			onChange(json.RawMessage(msg.Payload), true)
		}
		if ctx.Err() != nil && onError != nil {
			onError(ctx.Err())
		}
	}()

	return func() { ps.Close() }, nil
}

func (s *RedisStore) SubscribeCollection(ctx context.Context, path string, onChange func(docs map[string]json.RawMessage), onError func(error)) (Unsubscribe, error) {
	ps := s.client.PSubscribe(ctx, path+"/*")
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("psubscribe %s: %w", path, err)
	}

	deliver := func() bool {
		docs, err := s.ListCollection(ctx, path)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return false
		}
		onChange(docs)
		return true
	}

	if !deliver() {
		ps.Close()
		return nil, fmt.Errorf("initial list of %s failed", path)
	}

	go func() {
		for range ps.Channel() {
			// Any member changed; re-read the whole mapping. The payload is
			// ignored because a single event cannot describe the collection.
			deliver()
		}
		if ctx.Err() != nil && onError != nil {
			onError(ctx.Err())
		}
	}()

	return func() { ps.Close() }, nil
}

func (s *RedisStore) ListCollection(ctx context.Context, path string) (map[string]json.RawMessage, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, path+"/*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}

	docs := make(map[string]json.RawMessage, len(keys))
	if len(keys) == 0 {
		return docs, nil
	}

	sort.Strings(keys)
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget %s: %w", path, err)
	}
	for i, v := range values {
		body, ok := v.(string)
		if !ok {
			continue // deleted between scan and mget
		}
		docs[MemberID(path, keys[i])] = json.RawMessage(body)
	}
	return docs, nil
}

func (s *RedisStore) BatchUpdate(ctx context.Context, updates []Update) ([]string, error) {
	// Best effort, not atomic: later updates still run when an earlier one
	// fails, and the caller learns exactly which paths were applied.
	var succeeded []string
	var errs []error
	for _, u := range updates {
		if err := s.UpdateDocument(ctx, u.Path, u.Fields); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u.Path, err))
			continue
		}
		succeeded = append(succeeded, u.Path)
	}
	return succeeded, errors.Join(errs...)
}

func (s *RedisStore) publish(ctx context.Context, path string, body []byte) {
	if err := s.client.Publish(ctx, path, body).Err(); err != nil {
		s.log.Errorf("[store] publish %s failed: %v", path, err)
	}
}

// mergeJSON overlays the top-level fields of patch onto base.
func mergeJSON(base, patch []byte) ([]byte, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(base, &doc); err != nil {
		return nil, err
	}
	var overlay map[string]interface{}
	if err := json.Unmarshal(patch, &overlay); err != nil {
		return nil, err
	}
	for k, v := range overlay {
		doc[k] = v
	}
	return json.Marshal(doc)
}
