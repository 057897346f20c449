package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces run lists in Redis.
const KeyPrefix = "kiln:runlog:"

const redisTimeout = 2 * time.Second

// listClient is the subset of the Redis client the sink uses.
type listClient interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Close() error
}

// RedisSink appends rows as JSON to a Redis list per run. The list
// expires ttl after the last write.
type RedisSink struct {
	client listClient
	ttl    time.Duration

	mu  sync.Mutex
	key string
}

// NewRedisSink connects to addr and checks the connection.
func NewRedisSink(addr, password string, db int, ttl time.Duration) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       addr,
		Password:   password,
		DB:         db,
		MaxRetries: 3,
	})
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("runlog: connect to redis %s: %w", addr, err)
	}
	return &RedisSink{client: client, ttl: ttl}, nil
}

// Key is the list holding runID's rows.
func Key(runID string) string {
	return KeyPrefix + runID
}

func (r *RedisSink) Begin(runID string, _ []string) error {
	r.mu.Lock()
	r.key = Key(runID)
	r.mu.Unlock()
	return nil
}

func (r *RedisSink) Append(row Row) error {
	r.mu.Lock()
	key := r.key
	r.mu.Unlock()
	if key == "" {
		return nil
	}
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("runlog: marshal row: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := r.client.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("runlog: rpush %s: %w", key, err)
	}
	if r.ttl > 0 {
		if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
			return fmt.Errorf("runlog: expire %s: %w", key, err)
		}
	}
	return nil
}

func (r *RedisSink) End() error {
	r.mu.Lock()
	r.key = ""
	r.mu.Unlock()
	return nil
}

// Close disconnects from Redis.
func (r *RedisSink) Close() error {
	return r.client.Close()
}
