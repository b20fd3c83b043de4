package redisstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	repo "github.com/oksasatya/account-guard/internal/domain/repository"
)

// SessionStore keeps one hash per account: field = session id, value = unix
// expiry. Every session shares the same ttl, so the key expires with the newest one.
type SessionStore struct {
	rdb *redis.Client
	now func() time.Time
}

func NewSessionStore(rdb *redis.Client) *SessionStore {
	return &SessionStore{rdb: rdb, now: time.Now}
}

func sessionKey(accountID int32) string {
	return "account:sessions:" + strconv.FormatInt(int64(accountID), 10)
}

func (s *SessionStore) Create(ctx context.Context, accountID int32, sessionID string, ttl time.Duration) error {
	key := sessionKey(accountID)
	exp := s.now().Add(ttl).Unix()
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, sessionID, exp)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *SessionStore) Exists(ctx context.Context, accountID int32, sessionID string) (bool, error) {
	v, err := s.rdb.HGet(ctx, sessionKey(accountID), sessionID).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.now().Unix() < v, nil
}

func (s *SessionStore) Delete(ctx context.Context, accountID int32, sessionID string) error {
	return s.rdb.HDel(ctx, sessionKey(accountID), sessionID).Err()
}

func (s *SessionStore) InvalidateSessions(ctx context.Context, accountID int32, exceptID string) error {
	key := sessionKey(accountID)
	if exceptID == "" {
		return s.rdb.Del(ctx, key).Err()
	}
	ids, err := s.rdb.HKeys(ctx, key).Result()
	if err != nil {
		return err
	}
	drop := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != exceptID {
			drop = append(drop, id)
		}
	}
	if len(drop) == 0 {
		return nil
	}
	return s.rdb.HDel(ctx, key, drop...).Err()
}

var _ repo.SessionStore = (*SessionStore)(nil)
