package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisRepository handles token persistence in Redis.
// Keys expire with the token so CleanupExpired has nothing to do.
type RedisRepository struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisRepository(client redis.UniversalClient) *RedisRepository {
	return &RedisRepository{client: client, now: time.Now}
}

// redisToken is the value stored under a token key. Times are Unix milliseconds.
type redisToken struct {
	UserID    uuid.UUID `json:"user_id"`
	ExpiresAt int64     `json:"expires_at_ms"`
	CreatedAt int64     `json:"created_at_ms"`
}

// getTokenKey generates the Redis key for a token hash
func getTokenKey(kind TokenKind, tokenHash string) string {
	return fmt.Sprintf("token:%s:%s", kind, tokenHash)
}

// getUserTokensKey generates the Redis key for a user's token index
func getUserTokensKey(userID uuid.UUID) string {
	return fmt.Sprintf("user_tokens:%s", userID.String())
}

// Create stores the token with a TTL matching its expiry
func (r *RedisRepository) Create(ctx context.Context, userID uuid.UUID, kind TokenKind, secret string, expiresAt time.Time) error {
	now := r.now()
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return fmt.Errorf("token expiration time is in the past")
	}

	tokenHash := hashToken(secret)
	payload, err := json.Marshal(redisToken{
		UserID:    userID,
		ExpiresAt: expiresAt.UnixMilli(),
		CreatedAt: now.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s token: %w", kind, err)
	}

	userTokensKey := getUserTokensKey(userID)

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, getTokenKey(kind, tokenHash), payload, ttl)
	pipe.SAdd(ctx, userTokensKey, getTokenKey(kind, tokenHash))
	indexTTL := pipe.TTL(ctx, userTokensKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store %s token: %w", kind, err)
	}

	// The index lives as long as the longest token it references
	if current := indexTTL.Val(); current < ttl {
		if err := r.client.Expire(ctx, userTokensKey, ttl).Err(); err != nil {
			return fmt.Errorf("failed to extend user token index: %w", err)
		}
	}

	return nil
}

// Find retrieves a token without consuming it
func (r *RedisRepository) Find(ctx context.Context, kind TokenKind, secret string) (*Token, error) {
	tokenHash := hashToken(secret)

	data, err := r.client.Get(ctx, getTokenKey(kind, tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s token: %w", kind, err)
	}

	return decodeRedisToken(kind, tokenHash, data)
}

// Consume atomically reads and deletes the token with GETDEL
func (r *RedisRepository) Consume(ctx context.Context, kind TokenKind, secret string) (*Token, error) {
	tokenHash := hashToken(secret)
	tokenKey := getTokenKey(kind, tokenHash)

	data, err := r.client.GetDel(ctx, tokenKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume %s token: %w", kind, err)
	}

	t, err := decodeRedisToken(kind, tokenHash, data)
	if err != nil {
		return nil, err
	}

	// Stale index entries are harmless, so a failure here is ignored
	r.client.SRem(ctx, getUserTokensKey(t.UserID), tokenKey)

	return t, nil
}

// Delete removes a token if it exists
func (r *RedisRepository) Delete(ctx context.Context, kind TokenKind, secret string) error {
	_, err := r.Consume(ctx, kind, secret)
	if err != nil && !errors.Is(err, ErrTokenNotFound) {
		return err
	}
	return nil
}

// DeleteAllForUser removes every token referenced by the user's index
func (r *RedisRepository) DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	userTokensKey := getUserTokensKey(userID)

	tokenKeys, err := r.client.SMembers(ctx, userTokensKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get user tokens: %w", err)
	}

	if len(tokenKeys) == 0 {
		return 0, nil
	}

	pipe := r.client.TxPipeline()
	deleted := pipe.Del(ctx, tokenKeys...)
	pipe.Del(ctx, userTokensKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to delete user tokens: %w", err)
	}

	return deleted.Val(), nil
}

// CleanupExpired is a no-op: Redis expires keys via TTL
func (r *RedisRepository) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func decodeRedisToken(kind TokenKind, tokenHash string, data []byte) (*Token, error) {
	var rt redisToken
	if err := json.Unmarshal(data, &rt); err != nil {
		return nil, fmt.Errorf("failed to decode %s token: %w", kind, err)
	}

	return &Token{
		UserID:    rt.UserID,
		Kind:      kind,
		TokenHash: tokenHash,
		ExpiresAt: time.UnixMilli(rt.ExpiresAt),
		CreatedAt: time.UnixMilli(rt.CreatedAt),
	}, nil
}
