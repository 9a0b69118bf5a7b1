// Package presence tracks which users currently hold at least one live
// WebSocket connection. State lives in Redis hashes with a TTL so that a
// crashed server instance cannot leave users marked online forever; the
// heartbeat refreshes the TTL for connections that are still alive.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for all presence hashes.
	KeyPrefix = "presence:"

	// TTL is the time-to-live for presence keys. It is refreshed on every
	// heartbeat tick, so it only expires when a server dies uncleanly.
	TTL = 5 * time.Minute
)

// Store manages per-user presence state in Redis.
type Store struct {
	client     *redis.Client
	serverName string // identifier for this server instance
}

// NewStore creates a presence store connected to Redis and verifies the
// connection with a ping.
func NewStore(redisAddr, serverName string) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: redisAddr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("presence: redis connection failed: %w", err)
	}

	return &Store{client: client, serverName: serverName}, nil
}

// Connect records one more live connection for the user. A user with
// multiple devices accumulates a connection count above one.
func (s *Store) Connect(ctx context.Context, userID int64) error {
	key := keyFor(userID)

	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, key, "connections", 1)
	pipe.HSet(ctx, key, "server", s.serverName, "last_active", time.Now().Unix())
	pipe.Expire(ctx, key, TTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Disconnect records one fewer live connection for the user, removing
// the presence key entirely when the last connection goes away.
func (s *Store) Disconnect(ctx context.Context, userID int64) error {
	key := keyFor(userID)

	remaining, err := s.client.HIncrBy(ctx, key, "connections", -1).Result()
	if err != nil {
		return err
	}
	if remaining <= 0 {
		return s.client.Del(ctx, key).Err()
	}
	return nil
}

// IsOnline reports whether the user has at least one live connection on
// any server instance.
func (s *Store) IsOnline(ctx context.Context, userID int64) (bool, error) {
	n, err := s.client.Exists(ctx, keyFor(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RefreshTTL extends the presence key's TTL; called from the heartbeat
// for every live connection.
func (s *Store) RefreshTTL(ctx context.Context, userID int64) error {
	return s.client.Expire(ctx, keyFor(userID), TTL).Err()
}

// Client returns the underlying Redis client for use by other packages
// (e.g. the rate limiter shares the connection).
func (s *Store) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func keyFor(userID int64) string {
	return fmt.Sprintf("%s%d", KeyPrefix, userID)
}
