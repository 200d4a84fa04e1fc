package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wayfarelabs/wayfare/internal/models"
)

const (
	sessionTTLDefault = 30 * 24 * time.Hour
	rateLimitTTL      = time.Minute

	// presenceDeadlines is a sorted set of userID scored by the unix-ms
	// moment their online status lapses unless refreshed.
	presenceDeadlines = "presence:deadlines"

	// presenceEvents is the pub/sub channel carrying status changes.
	presenceEvents = "presence:events"
)

// RedisStore handles Redis operations for presence, change feeds, sessions
// and rate limiting.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for middleware that needs raw
// access (rate limiter).
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// statusKey returns the key holding a user's status record.
func statusKey(userID string) string {
	return fmt.Sprintf("presence:status:%s", userID)
}

// sessionKey returns the key holding a user's session token hash.
func sessionKey(userID string) string {
	return fmt.Sprintf("session:%s", userID)
}

// rateLimitKey returns the key for a caller's rate limit counter.
func rateLimitKey(caller string) string {
	return fmt.Sprintf("ratelimit:%s", caller)
}

// SetUserStatus overwrites a user's status record and broadcasts the
// change. When the status is online, ttl bounds how long it stays online
// without a refresh; expired entries are flipped offline by SweepExpired.
func (s *RedisStore) SetUserStatus(ctx context.Context, status models.UserStatus, ttl time.Duration) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, statusKey(status.UserID), string(data), 0)
	if status.Online {
		pipe.ZAdd(ctx, presenceDeadlines, redis.Z{
			Score:  float64(time.Now().Add(ttl).UnixMilli()),
			Member: status.UserID,
		})
	} else {
		pipe.ZRem(ctx, presenceDeadlines, status.UserID)
	}
	pipe.Publish(ctx, presenceEvents, string(data))
	_, err = pipe.Exec(ctx)
	return err
}

// GetUserStatuses retrieves status records for the given users. Users with
// no record are absent from the result map.
func (s *RedisStore) GetUserStatuses(ctx context.Context, userIDs []string) (map[string]models.UserStatus, error) {
	if len(userIDs) == 0 {
		return map[string]models.UserStatus{}, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = statusKey(id)
	}

	results, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	statuses := make(map[string]models.UserStatus, len(results))
	for _, raw := range results {
		data, ok := raw.(string)
		if !ok {
			continue
		}
		var status models.UserStatus
		if err := json.Unmarshal([]byte(data), &status); err != nil {
			continue
		}
		statuses[status.UserID] = status
	}
	return statuses, nil
}

// SubscribeStatusEvents subscribes to the status change feed. The returned
// cancel func is safe to call more than once.
func (s *RedisStore) SubscribeStatusEvents(ctx context.Context) (<-chan models.UserStatus, func(), error) {
	pubsub := s.client.Subscribe(ctx, presenceEvents)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, err
	}

	out := make(chan models.UserStatus, 16)
	go forwardStatusEvents(pubsub.Channel(), out)

	var once sync.Once
	cancel := func() {
		once.Do(func() { pubsub.Close() })
	}
	return out, cancel, nil
}

// forwardStatusEvents decodes pubsub payloads onto out without ever
// blocking: after unsubscribe nobody drains out, and a status is an
// absolute state, so a later event supersedes a dropped one.
func forwardStatusEvents(in <-chan *redis.Message, out chan<- models.UserStatus) {
	defer close(out)
	for msg := range in {
		var status models.UserStatus
		if err := json.Unmarshal([]byte(msg.Payload), &status); err != nil {
			continue
		}
		select {
		case out <- status:
		default:
		}
	}
}

// SweepExpired flips users whose online deadline has passed to offline and
// broadcasts the transitions. This is what makes an ungraceful disconnect
// observable without any further client action.
func (s *RedisStore) SweepExpired(ctx context.Context, now int64) (int, error) {
	expired, err := s.client.ZRangeByScore(ctx, presenceDeadlines, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now),
	}).Result()
	if err != nil {
		return 0, err
	}

	for _, userID := range expired {
		status := models.UserStatus{UserID: userID, Online: false, LastSeen: now}
		if err := s.SetUserStatus(ctx, status, 0); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}

// changeKey returns the pub/sub channel name for a change-feed topic.
func changeKey(topic string) string {
	return fmt.Sprintf("changes:%s", topic)
}

// PublishChange signals that the result set behind topic changed.
// Subscribers re-run their query and deliver a fresh full snapshot.
func (s *RedisStore) PublishChange(ctx context.Context, topic string) error {
	return s.client.Publish(ctx, changeKey(topic), "1").Err()
}

// SubscribeChanges subscribes to change signals for a topic. The returned
// cancel func is idempotent.
func (s *RedisStore) SubscribeChanges(ctx context.Context, topic string) (<-chan struct{}, func(), error) {
	pubsub := s.client.Subscribe(ctx, changeKey(topic))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, err
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for range pubsub.Channel() {
			// Coalesce bursts: a pending signal already implies re-query.
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() { pubsub.Close() })
	}
	return out, cancel, nil
}

// SaveSession stores the bcrypt hash of a user's session token.
func (s *RedisStore) SaveSession(ctx context.Context, userID, tokenHash string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = sessionTTLDefault
	}
	return s.client.Set(ctx, sessionKey(userID), tokenHash, ttl).Err()
}

// GetSessionHash retrieves the stored token hash for a user, or "" if no
// session exists.
func (s *RedisStore) GetSessionHash(ctx context.Context, userID string) (string, error) {
	hash, err := s.client.Get(ctx, sessionKey(userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return hash, nil
}

// DeleteSession revokes a user's session.
func (s *RedisStore) DeleteSession(ctx context.Context, userID string) error {
	return s.client.Del(ctx, sessionKey(userID)).Err()
}

// CheckRateLimit checks if a caller has exceeded the rate limit.
func (s *RedisStore) CheckRateLimit(ctx context.Context, caller string, limit int) (bool, error) {
	count, err := s.client.Get(ctx, rateLimitKey(caller)).Int()
	if err != nil && err != redis.Nil {
		return false, err
	}
	return count < limit, nil
}

// IncrementRateLimit increments the rate limit counter.
func (s *RedisStore) IncrementRateLimit(ctx context.Context, caller string, window time.Duration) error {
	if window <= 0 {
		window = rateLimitTTL
	}
	key := rateLimitKey(caller)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	_, err := pipe.Exec(ctx)
	return err
}
