package repo

import (
	"GoCDN/config"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionExpiryPrefix = "chunk:session:"

// DialRedis connects to Redis with the configured credentials.
func DialRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, err
	}
	log.Println("init redis success")
	return client, nil
}

// EnableKeyspaceNotifications enables Redis expired-key events.
func EnableKeyspaceNotifications(ctx context.Context, rdb *redis.Client) error {
	if rdb == nil {
		return errors.New("redis not initialized")
	}
	return rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err()
}

// RedisLock is a single-attempt lease on one key.
type RedisLock struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
}

// NewRedisLock creates a Redis lock helper.
func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		rdb: rdb,
		key: key,
		ttl: ttl,
	}
}

// Lock acquires the lease or fails immediately when it is held.
func (l *RedisLock) Lock(ctx context.Context) error {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("lock is busy")
	}
	l.token = token
	return nil
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Unlock releases the lease if this holder still owns it.
func (l *RedisLock) Unlock(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	_, err := unlockScript.Run(
		ctx,
		l.rdb,
		[]string{l.key},
		l.token,
	).Result()
	return err
}

// MarkSessionExpiry sets a TTL marker whose expiry event triggers prompt
// reaping of an abandoned chunk session. The periodic sweep stays
// authoritative; this only makes reaping timely.
func MarkSessionExpiry(ctx context.Context, rdb *redis.Client, uploadID string, ttl time.Duration) error {
	if rdb == nil {
		return nil
	}
	return rdb.Set(ctx, sessionExpiryPrefix+uploadID, 1, ttl).Err()
}

// ClearSessionExpiry drops the TTL marker once a session completed.
func ClearSessionExpiry(ctx context.Context, rdb *redis.Client, uploadID string) error {
	if rdb == nil {
		return nil
	}
	return rdb.Del(ctx, sessionExpiryPrefix+uploadID).Err()
}

// ListenSessionExpiry listens for expired session markers and invokes reap
// with the upload ID. Blocks until the subscription drops or ctx is done.
func ListenSessionExpiry(ctx context.Context, rdb *redis.Client, ready chan<- struct{}, reap func(uploadID string)) {
	pubsub := rdb.Subscribe(ctx, fmt.Sprintf("__keyevent@%d__:expired", rdb.Options().DB))
	_, err := pubsub.Receive(ctx)
	if err != nil {
		log.Fatalf("subscribe failed: %v", err)
	}
	close(ready)
	ch := pubsub.Channel()

	for msg := range ch {
		key := msg.Payload
		if !strings.HasPrefix(key, sessionExpiryPrefix) {
			continue
		}
		reap(strings.TrimPrefix(key, sessionExpiryPrefix))
	}
}
