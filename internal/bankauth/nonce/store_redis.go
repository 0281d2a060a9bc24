package nonce

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	platformredis "giro/internal/platform/redis"
	"giro/pkg/platform/sentinel"
)

const (
	nonceKeyPrefix = "giro:nonce:"
	spentKeyPrefix = "giro:nonce:spent:"

	// expiryGrace keeps an expired nonce around long enough that a late
	// consume attempt reports "expired" instead of "not found".
	expiryGrace = time.Minute
)

// RedisStore persists challenges in Redis so issuance and consumption work
// across replicas.
type RedisStore struct {
	client *platformredis.Client
	ttl    time.Duration
}

// NewRedisStore constructs a Redis-backed nonce store.
func NewRedisStore(client *platformredis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Issue mints a fresh single-use challenge bound to subject in the given domain.
func (s *RedisStore) Issue(ctx context.Context, subject string, domain Domain) (Challenge, error) {
	c := Challenge{
		Value:     NewValue(domain),
		Subject:   subject,
		Domain:    domain,
		ExpiresAt: time.Now().Add(s.ttl),
	}
	payload := fmt.Sprintf("%s|%s|%d", subject, domain, c.ExpiresAt.Unix())

	ok, err := s.client.SetNX(ctx, nonceKeyPrefix+c.Value, payload, s.ttl+expiryGrace).Result()
	if err != nil {
		return Challenge{}, fmt.Errorf("issue nonce: %w", err)
	}
	if !ok {
		// UUID collision is not a realistic event; treat it as a conflict.
		return Challenge{}, fmt.Errorf("nonce value collision: %w", sentinel.ErrConflict)
	}
	return c, nil
}

// consumeScript claims the nonce and writes its spent tombstone in one step.
// A separate Set after GETDEL would leave a window where a racing consumer
// sees neither the nonce nor the tombstone and misreports "not found".
var consumeScript = redis.NewScript(`
local payload = redis.call('GETDEL', KEYS[1])
if payload then
	redis.call('SET', KEYS[2], '1', 'EX', ARGV[1])
end
return payload
`)

// Consume spends a nonce atomically; exactly one caller can win, and every
// loser finds the tombstone.
func (s *RedisStore) Consume(ctx context.Context, value string) (Consumed, error) {
	tombstoneTTL := int64((s.ttl + expiryGrace) / time.Second)
	payload, err := consumeScript.Run(ctx, s.client,
		[]string{nonceKeyPrefix + value, spentKeyPrefix + value}, tombstoneTTL).Text()
	if err == redis.Nil {
		spent, serr := s.client.Exists(ctx, spentKeyPrefix+value).Result()
		if serr == nil && spent > 0 {
			return Consumed{}, fmt.Errorf("nonce already consumed: %w", sentinel.ErrAlreadyUsed)
		}
		return Consumed{}, fmt.Errorf("nonce not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return Consumed{}, fmt.Errorf("consume nonce: %w", err)
	}

	subject, domain, expiresAt, err := parsePayload(payload)
	if err != nil {
		return Consumed{}, err
	}
	if time.Now().After(expiresAt) {
		return Consumed{}, fmt.Errorf("nonce expired: %w", sentinel.ErrExpired)
	}
	return Consumed{Subject: subject, Domain: domain}, nil
}

func parsePayload(payload string) (string, Domain, time.Time, error) {
	parts := strings.SplitN(payload, "|", 3)
	if len(parts) != 3 {
		return "", "", time.Time{}, fmt.Errorf("malformed nonce payload: %w", sentinel.ErrInvalidState)
	}
	unix, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("malformed nonce expiry: %w", sentinel.ErrInvalidState)
	}
	return parts[0], Domain(parts[1]), time.Unix(unix, 0), nil
}
