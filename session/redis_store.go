package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/shelfauth/storage"
	"github.com/redis/go-redis/v9"
)

const deleteSessionScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[2] .. ARGV[3], ARGV[1])
return 1
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// RedisStore keeps sessions as binary values with a PX TTL equal to their remaining
// lifetime, plus a per-user set of ids for logout-all.
type RedisStore struct {
	redis      redis.UniversalClient
	prefix     string
	userPrefix string
}

// NewRedisStore creates a RedisStore. prefix namespaces session keys ("as" when empty).
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "as"
	}
	return &RedisStore{
		redis:      client,
		prefix:     prefix,
		userPrefix: prefix + "u:",
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":" + id
}

func (s *RedisStore) userKey(userID string) string {
	return s.userPrefix + userID
}

// SaveSession stores sess until its ExpiresAt.
func (s *RedisStore) SaveSession(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return errors.New("session already expired")
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.ID), data, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// GetSession loads a session by id.
func (s *RedisStore) GetSession(ctx context.Context, id string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		// An unreadable record can not be honored; drop it.
		_ = s.redis.Del(ctx, s.key(id)).Err()
		return nil, storage.ErrNotFound
	}
	sess.ID = id
	return sess, nil
}

// UpdateSessionExpiry rewrites the stored expiry and the key TTL.
func (s *RedisStore) UpdateSessionExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	sess.ExpiresAt = expiresAt

	data, err := Encode(sess)
	if err != nil {
		return err
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return s.DeleteSession(ctx, id)
	}

	err = s.redis.SetArgs(ctx, s.key(id), data, redis.SetArgs{Mode: "XX", TTL: ttl}).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// DeleteSession removes one session and its index entry. Unknown ids are a no-op.
func (s *RedisStore) DeleteSession(ctx context.Context, id string) error {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		if delErr := s.redis.Del(ctx, s.key(id)).Err(); delErr != nil {
			return fmt.Errorf("%w: %v", storage.ErrUnavailable, delErr)
		}
		return nil
	}

	if err := deleteSessionLua.Run(ctx, s.redis, []string{s.key(id)}, id, s.userPrefix, sess.UserID).Err(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// DeleteUserSessions removes every session indexed for userID.
func (s *RedisStore) DeleteUserSessions(ctx context.Context, userID string) error {
	userKey := s.userKey(userID)

	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Del(ctx, s.key(id))
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// ActiveSessionIDs lists the indexed ids for userID. Ids whose key already expired
// may still appear until the next logout-all.
func (s *RedisStore) ActiveSessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return ids, nil
}

// Ping measures a Redis round trip.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return time.Since(start), nil
}
