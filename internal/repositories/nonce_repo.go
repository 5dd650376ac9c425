package repositories

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NonceRepo hands out single-use login nonces backed by Redis TTL keys.
type NonceRepo struct {
	client *redis.Client
	ttl    time.Duration
}

func NewNonceRepo(client *redis.Client, ttl time.Duration) *NonceRepo {
	return &NonceRepo{client: client, ttl: ttl}
}

func nonceKey(address string) string {
	return "auth:nonce:" + strings.ToLower(address)
}

// Issue generates a fresh nonce for the address, replacing any pending one.
func (r *NonceRepo) Issue(ctx context.Context, address string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	nonce := hex.EncodeToString(buf)

	if err := r.client.Set(ctx, nonceKey(address), nonce, r.ttl).Err(); err != nil {
		return "", fmt.Errorf("store nonce: %w", err)
	}
	return nonce, nil
}

// Consume atomically reads and deletes the pending nonce. A nonce can only
// ever be consumed once, expired or missing nonces fail.
func (r *NonceRepo) Consume(ctx context.Context, address string) (string, error) {
	nonce, err := r.client.GetDel(ctx, nonceKey(address)).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("no pending nonce for %s", address)
	}
	if err != nil {
		return "", err
	}
	return nonce, nil
}
