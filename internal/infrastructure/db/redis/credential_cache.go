package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheTTL = 10 * time.Minute

// CredentialCache implements ports.CredentialCache on Redis.
// Key format: authcache:<username>:<sha256-of-secret>, value: user id.
// Errors are swallowed deliberately: a broken cache must degrade to plain
// bcrypt verification, never to an authentication failure.
type CredentialCache struct {
	client *redis.Client
}

// NewCredentialCache creates a CredentialCache wrapping the given Redis client.
func NewCredentialCache(client *redis.Client) *CredentialCache {
	return &CredentialCache{client: client}
}

// Get returns the cached user id for this username/secret digest.
func (c *CredentialCache) Get(ctx context.Context, username, secretDigest string) (int64, bool) {
	val, err := c.client.Get(ctx, c.key(username, secretDigest)).Result()
	if err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Put records a successful verification (expires after cacheTTL).
func (c *CredentialCache) Put(ctx context.Context, username, secretDigest string, userID int64) {
	_ = c.client.Set(ctx, c.key(username, secretDigest), strconv.FormatInt(userID, 10), cacheTTL).Err()
}

// Invalidate drops every cached secret for the username.
func (c *CredentialCache) Invalidate(ctx context.Context, username string) {
	iter := c.client.Scan(ctx, 0, fmt.Sprintf("authcache:%s:*", username), 0).Iterator()
	for iter.Next(ctx) {
		_ = c.client.Del(ctx, iter.Val()).Err()
	}
}

func (c *CredentialCache) key(username, secretDigest string) string {
	return fmt.Sprintf("authcache:%s:%s", username, secretDigest)
}
