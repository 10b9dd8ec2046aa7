package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/smolentsev/shopbot/pkg/enums"
	pkgerrors "github.com/smolentsev/shopbot/pkg/errors"
	"github.com/smolentsev/shopbot/pkg/redis"
)

// Session is the per-user wizard state between entering checkout and
// committing the order. It lives outside the persisted cart and is
// reinitialized on every entry, so an abandoned flow never leaks its
// choices into the next one.
type Session struct {
	Stage    enums.CheckoutStage  `json:"stage"`
	Delivery enums.DeliveryMethod `json:"delivery,omitempty"`
	Payment  enums.PaymentMethod  `json:"payment,omitempty"`
}

// SessionStore keeps checkout sessions keyed by user id.
type SessionStore interface {
	Save(ctx context.Context, userID int64, session Session) error
	Get(ctx context.Context, userID int64) (*Session, error)
	Delete(ctx context.Context, userID int64) error
}

type sessionRedis interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	SessionKey(userID int64) string
}

// RedisSessionStore stores sessions as JSON under a per-user key. The TTL
// is hygiene, not a contract: an expired session just means the user
// starts checkout over.
type RedisSessionStore struct {
	client sessionRedis
	ttl    time.Duration
}

// NewRedisSessionStore builds the redis-backed store.
func NewRedisSessionStore(client sessionRedis, ttl time.Duration) (*RedisSessionStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisSessionStore{client: client, ttl: ttl}, nil
}

// Save implements SessionStore.
func (s *RedisSessionStore) Save(ctx context.Context, userID int64, session Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding checkout session")
	}
	if err := s.client.Set(ctx, s.client.SessionKey(userID), payload, s.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving checkout session")
	}
	return nil
}

// Get implements SessionStore; a missing session returns nil, not an error.
func (s *RedisSessionStore) Get(ctx context.Context, userID int64) (*Session, error) {
	raw, err := s.client.Get(ctx, s.client.SessionKey(userID))
	if err != nil {
		if redis.IsNil(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading checkout session")
	}
	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decoding checkout session")
	}
	return &session, nil
}

// Delete implements SessionStore.
func (s *RedisSessionStore) Delete(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, s.client.SessionKey(userID)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deleting checkout session")
	}
	return nil
}
