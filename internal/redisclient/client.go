package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"checkout-service/config"
	"checkout-service/internal/cart"
	"checkout-service/internal/util"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:embed scripts/cart_add.lua
var cartAddScript string

//go:embed scripts/cart_set.lua
var cartSetScript string

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb           *redis.Client
	cartTTL       time.Duration
	addScript     *redis.Script
	setScript     *redis.Script
	releaseScript *redis.Script
	logger        *zap.Logger
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(cfg config.RedisConfig, cartTTL time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newClient(rdb, cartTTL), nil
}

func newClient(rdb *redis.Client, cartTTL time.Duration) *Client {
	return &Client{
		rdb:           rdb,
		cartTTL:       cartTTL,
		addScript:     redis.NewScript(cartAddScript),
		setScript:     redis.NewScript(cartSetScript),
		releaseScript: redis.NewScript(releaseLockScript),
		logger:        util.Named("redis"),
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping reports whether Redis is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

var _ cart.Store = (*Client)(nil)

func cartKey(sessionID string) string {
	return fmt.Sprintf("cart:%s", sessionID)
}

func (c *Client) ttlSeconds() int64 {
	secs := int64(c.cartTTL / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// AddLine atomically merges line into the session cart and refreshes its TTL.
func (c *Client) AddLine(ctx context.Context, sessionID string, line cart.Line) (int, error) {
	result, err := c.addScript.Run(ctx, c.rdb, []string{cartKey(sessionID)},
		line.Key(), line.Quantity, c.ttlSeconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("cart add script failed: %w", err)
	}
	return int(result), nil
}

// SetQuantity atomically overwrites a line's quantity. Zero removes the line.
func (c *Client) SetQuantity(ctx context.Context, sessionID, key string, quantity int) (bool, error) {
	result, err := c.setScript.Run(ctx, c.rdb, []string{cartKey(sessionID)},
		key, quantity, c.ttlSeconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("cart set script failed: %w", err)
	}
	return result >= 0, nil
}

// Lines returns the cart's lines. Fields that no longer parse are skipped.
func (c *Client) Lines(ctx context.Context, sessionID string) ([]cart.Line, error) {
	fields, err := c.rdb.HGetAll(ctx, cartKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}

	lines := make([]cart.Line, 0, len(fields))
	for key, raw := range fields {
		line, err := cart.ParseKey(key)
		if err != nil {
			c.logger.Warn("Skipping unreadable cart line", zap.String("session_id", sessionID), zap.Error(err))
			continue
		}
		if _, err := fmt.Sscanf(raw, "%d", &line.Quantity); err != nil {
			c.logger.Warn("Skipping cart line with bad quantity", zap.String("key", key), zap.String("value", raw))
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// Clear deletes the session cart.
func (c *Client) Clear(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, cartKey(sessionID)).Err()
}

// AcquireLock acquires a distributed lock. The returned token must be handed
// back to ReleaseLock.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// ReleaseLock releases a distributed lock held with token. A lock that
// expired and was taken by someone else is left alone.
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}
