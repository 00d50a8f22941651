package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisAppendRetries = 5

// RedisStore implements Store on Redis. It is suitable for multi-node
// deployments where several servers handle turns for the same thread.
//
// Layout: one metadata key per session (JSON, carries the version), one list
// per session holding the message log, and one set indexing thread ids.
// Writes run inside WATCH transactions on the metadata key so the version
// check and the log mutation commit together.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix for all session keys (default: "hashtalk:session:").
	Prefix string
	// SessionTTL is the session expiry duration (0 = never expire).
	SessionTTL time.Duration
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

// redisMeta is the stored metadata record; messages live in a separate list.
type redisMeta struct {
	ThreadID   string    `json:"threadId"`
	Title      string    `json:"title"`
	Summarized bool      `json:"summarized"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.Prefix, cfg.SessionTTL), nil
}

// NewRedisStoreFromClient creates a Redis store from an existing client.
// This is useful for testing with miniredis.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "hashtalk:session:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *RedisStore) metaKey(threadID string) string  { return r.prefix + "meta:" + threadID }
func (r *RedisStore) msgsKey(threadID string) string  { return r.prefix + "msgs:" + threadID }
func (r *RedisStore) indexKey() string                { return r.prefix + "threads" }

func (r *RedisStore) checkOpen() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrStoreClosed
	}
	return nil
}

// FindByThreadID retrieves a session by thread id.
func (r *RedisStore) FindByThreadID(ctx context.Context, threadID string) (*Session, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	data, err := r.client.Get(ctx, r.metaKey(threadID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var meta redisMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}

	raw, err := r.client.LRange(ctx, r.msgsKey(threadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	msgs := make([]Message, 0, len(raw))
	for _, d := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(d), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		msgs = append(msgs, msg)
	}

	return &Session{
		ThreadID:   meta.ThreadID,
		Title:      meta.Title,
		Messages:   msgs,
		Summarized: meta.Summarized,
		Version:    meta.Version,
		CreatedAt:  meta.CreatedAt,
		UpdatedAt:  meta.UpdatedAt,
	}, nil
}

// Insert creates a new session.
func (r *RedisStore) Insert(ctx context.Context, sess *Session) error {
	if err := r.checkOpen(); err != nil {
		return err
	}

	metaData, err := json.Marshal(redisMeta{
		ThreadID:   sess.ThreadID,
		Title:      sess.Title,
		Summarized: sess.Summarized,
		Version:    sess.Version,
		CreatedAt:  sess.CreatedAt,
		UpdatedAt:  sess.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.metaKey(sess.ThreadID), metaData, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if !ok {
		return ErrSessionExists
	}

	pipe := r.client.Pipeline()
	pipe.SAdd(ctx, r.indexKey(), sess.ThreadID)
	for _, msg := range sess.Messages {
		data, merr := json.Marshal(msg)
		if merr != nil {
			return fmt.Errorf("marshal message: %w", merr)
		}
		pipe.RPush(ctx, r.msgsKey(sess.ThreadID), data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// AppendMessages appends messages and bumps the version. Runs under WATCH so
// the version bump is consistent with concurrent writers; retries a bounded
// number of times on transaction conflict.
func (r *RedisStore) AppendMessages(ctx context.Context, threadID string, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := r.checkOpen(); err != nil {
		return err
	}

	payload := make([][]byte, len(msgs))
	for i, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		payload[i] = data
	}

	var lastErr error
	for attempt := 0; attempt < redisAppendRetries; attempt++ {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			meta, err := r.loadMeta(ctx, tx, threadID)
			if err != nil {
				return err
			}

			meta.Version++
			meta.UpdatedAt = time.Now().UTC()
			metaData, err := json.Marshal(meta)
			if err != nil {
				return fmt.Errorf("marshal metadata: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, r.metaKey(threadID), metaData, r.ttl)
				for _, data := range payload {
					pipe.RPush(ctx, r.msgsKey(threadID), data)
				}
				if r.ttl > 0 {
					pipe.Expire(ctx, r.msgsKey(threadID), r.ttl)
				}
				return nil
			})
			return err
		}, r.metaKey(threadID))

		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("append messages: %w", lastErr)
}

// ReplaceMessages swaps the message log if the stored version matches
// fromVersion. A concurrent write, observed either via the version check or
// via WATCH failure, surfaces as ErrVersionConflict.
func (r *RedisStore) ReplaceMessages(ctx context.Context, threadID string, fromVersion int64, msgs []Message, summarized bool) error {
	if err := r.checkOpen(); err != nil {
		return err
	}

	payload := make([][]byte, len(msgs))
	for i, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		payload[i] = data
	}

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		meta, err := r.loadMeta(ctx, tx, threadID)
		if err != nil {
			return err
		}
		if meta.Version != fromVersion {
			return ErrVersionConflict
		}

		meta.Version++
		meta.Summarized = summarized
		meta.UpdatedAt = time.Now().UTC()
		metaData, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.metaKey(threadID), metaData, r.ttl)
			pipe.Del(ctx, r.msgsKey(threadID))
			for _, data := range payload {
				pipe.RPush(ctx, r.msgsKey(threadID), data)
			}
			if r.ttl > 0 {
				pipe.Expire(ctx, r.msgsKey(threadID), r.ttl)
			}
			return nil
		})
		return err
	}, r.metaKey(threadID))

	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	return err
}

// SetTitle updates the session title.
func (r *RedisStore) SetTitle(ctx context.Context, threadID, title string) error {
	if err := r.checkOpen(); err != nil {
		return err
	}

	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		meta, err := r.loadMeta(ctx, tx, threadID)
		if err != nil {
			return err
		}
		meta.Title = title
		meta.UpdatedAt = time.Now().UTC()
		metaData, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.metaKey(threadID), metaData, r.ttl)
			return nil
		})
		return err
	}, r.metaKey(threadID))
}

// ListSummaries returns thread ids and titles for every indexed session.
func (r *RedisStore) ListSummaries(ctx context.Context) ([]Summary, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		data, err := r.client.Get(ctx, r.metaKey(id)).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Session expired; drop it from the index.
				r.client.SRem(ctx, r.indexKey(), id)
				continue
			}
			return nil, fmt.Errorf("get session: %w", err)
		}
		var meta redisMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		out = append(out, Summary{ThreadID: meta.ThreadID, Title: meta.Title})
	}
	return out, nil
}

// Close releases the client connection pool.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.client.Close()
}

// Ping checks if the Redis connection is alive.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) loadMeta(ctx context.Context, tx *redis.Tx, threadID string) (*redisMeta, error) {
	data, err := tx.Get(ctx, r.metaKey(threadID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	var meta redisMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &meta, nil
}
