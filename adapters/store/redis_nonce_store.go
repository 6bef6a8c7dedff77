package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"github.com/redis/go-redis/v9"
)

// nonceKeyGrace keeps a consumed or expired challenge around a little longer than its TTL
// so late replays are reported as such instead of as unknown.
const nonceKeyGrace = time.Minute

const (
	consumeOK = iota
	consumeNotFound
	consumeAlreadyConsumed
	consumeExpired
)

// consumeScript checks value, consumed flag and expiry, then sets the flag, in one server-side step.
// KEYS[1] nonce hash, ARGV[1] expected value, ARGV[2] now in unix millis.
var consumeScript = redis.NewScript(`
local fields = redis.call('HMGET', KEYS[1], 'value', 'issued_at', 'expires_at', 'consumed')
if not fields[1] or fields[1] ~= ARGV[1] then
	return {1}
end
if fields[4] == '1' then
	return {2}
end
if tonumber(ARGV[2]) >= tonumber(fields[3]) then
	return {3}
end
redis.call('HSET', KEYS[1], 'consumed', '1')
return {0, fields[2], fields[3]}
`)

// RedisNonceStore keeps challenges in Redis, one hash per address, shared by all instances
type RedisNonceStore struct {
	client *redis.Client
	prefix string
}

// NewRedisNonceStore creates a nonce store on top of an existing client
func NewRedisNonceStore(client *redis.Client) *RedisNonceStore {
	return &RedisNonceStore{
		client: client,
		prefix: "walletauth:nonce:",
	}
}

var _ ports.NonceStore = (*RedisNonceStore)(nil)

// Replace overwrites the challenge hash for the address in a single transaction
func (s *RedisNonceStore) Replace(ctx context.Context, n *core.Nonce) error {
	key := s.prefix + n.Address
	ttl := n.ExpiresAt.Sub(n.IssuedAt)
	if ttl < 0 {
		ttl = 0
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, map[string]interface{}{
			"value":      n.Value,
			"issued_at":  n.IssuedAt.UnixMilli(),
			"expires_at": n.ExpiresAt.UnixMilli(),
			"consumed":   "0",
		})
		pipe.PExpire(ctx, key, ttl+nonceKeyGrace)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store nonce: %w", err)
	}

	return nil
}

// Lookup reads the current challenge hash for address
func (s *RedisNonceStore) Lookup(ctx context.Context, address string) (*core.Nonce, error) {
	fields, err := s.client.HGetAll(ctx, s.prefix+address).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", err)
	}
	if len(fields) == 0 {
		return nil, core.ErrNonceNotFound
	}

	issuedAt, err := parseMillis(fields["issued_at"])
	if err != nil {
		return nil, err
	}
	expiresAt, err := parseMillis(fields["expires_at"])
	if err != nil {
		return nil, err
	}

	return &core.Nonce{
		Address:   address,
		Value:     fields["value"],
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Consumed:  fields["consumed"] == "1",
	}, nil
}

// Consume runs the check-and-set script for address
func (s *RedisNonceStore) Consume(ctx context.Context, address, value string, now time.Time) (*core.Nonce, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{s.prefix + address}, value, now.UnixMilli()).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to consume nonce: %w", err)
	}
	if len(res) == 0 {
		return nil, errors.New("failed to consume nonce: empty script reply")
	}

	code, ok := res[0].(int64)
	if !ok {
		return nil, fmt.Errorf("failed to consume nonce: unexpected reply %v", res[0])
	}
	switch code {
	case consumeNotFound:
		return nil, core.ErrNonceNotFound
	case consumeAlreadyConsumed:
		return nil, core.ErrNonceAlreadyConsumed
	case consumeExpired:
		return nil, core.ErrNonceExpired
	case consumeOK:
	default:
		return nil, fmt.Errorf("failed to consume nonce: unknown result %d", code)
	}

	if len(res) != 3 {
		return nil, fmt.Errorf("failed to consume nonce: unexpected reply length %d", len(res))
	}
	issued, _ := res[1].(string)
	expires, _ := res[2].(string)
	issuedAt, err := parseMillis(issued)
	if err != nil {
		return nil, err
	}
	expiresAt, err := parseMillis(expires)
	if err != nil {
		return nil, err
	}

	return &core.Nonce{
		Address:   address,
		Value:     value,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Consumed:  true,
	}, nil
}

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", raw, err)
	}
	return time.UnixMilli(ms), nil
}
