package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/lorastack/lorawan"
	"github.com/lorastack/lorawan/device"
)

const (
	sessionKeyTempl  = "lorawan:device:%s:session"
	devNonceKeyTempl = "lorawan:device:%s:devnonce"
)

// RedisStore is a redis-backed SessionStore and NonceStore, used when many
// virtual devices are run against a shared backend (fleet simulation, test
// rigs).
type RedisStore struct {
	client  redis.UniversalClient
	ttl     time.Duration
	wrapper *KeyWrapper
}

// NewRedisStore returns a RedisStore on the given client. A zero ttl keeps
// the entries forever. The wrapper is optional; when given, the session
// keys are wrapped at rest.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration, wrapper *KeyWrapper) *RedisStore {
	return &RedisStore{
		client:  client,
		ttl:     ttl,
		wrapper: wrapper,
	}
}

// SaveSession implements SessionStore.
func (r *RedisStore) SaveSession(devEUI lorawan.EUI64, s *device.Session) error {
	b, err := marshalSession(s, r.wrapper)
	if err != nil {
		return err
	}

	key := fmt.Sprintf(sessionKeyTempl, devEUI)
	if err := r.client.Set(context.Background(), key, b, r.ttl).Err(); err != nil {
		return errors.Wrap(err, "save session error")
	}
	return nil
}

// GetSession implements SessionStore.
func (r *RedisStore) GetSession(devEUI lorawan.EUI64) (*device.Session, error) {
	key := fmt.Sprintf(sessionKeyTempl, devEUI)
	b, err := r.client.Get(context.Background(), key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get session error")
	}
	return unmarshalSession(b, r.wrapper)
}

// DeleteSession implements SessionStore.
func (r *RedisStore) DeleteSession(devEUI lorawan.EUI64) error {
	key := fmt.Sprintf(sessionKeyTempl, devEUI)
	if err := r.client.Del(context.Background(), key).Err(); err != nil {
		return errors.Wrap(err, "delete session error")
	}
	return nil
}

// NextDevNonce implements NonceStore.
func (r *RedisStore) NextDevNonce(devEUI lorawan.EUI64) (lorawan.DevNonce, error) {
	key := fmt.Sprintf(devNonceKeyTempl, devEUI)
	v, err := r.client.Incr(context.Background(), key).Result()
	if err != nil {
		return 0, errors.Wrap(err, "increment DevNonce error")
	}
	return lorawan.DevNonce(v), nil
}

// interface guards
var (
	_ SessionStore = (*RedisStore)(nil)
	_ NonceStore   = (*RedisStore)(nil)
	_ SessionStore = (*MemoryStore)(nil)
	_ NonceStore   = (*MemoryStore)(nil)
)
