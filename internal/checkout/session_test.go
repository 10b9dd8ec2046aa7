package checkout

import (
	"context"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smolentsev/shopbot/pkg/enums"
)

type fakeSessionRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newFakeSessionRedis() *fakeSessionRedis {
	return &fakeSessionRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeSessionRedis) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	default:
		f.values[key] = fmt.Sprint(v)
	}
	f.ttls[key] = ttl
	return nil
}

func (f *fakeSessionRedis) Get(_ context.Context, key string) (string, error) {
	value, ok := f.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return value, nil
}

func (f *fakeSessionRedis) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func (f *fakeSessionRedis) SessionKey(userID int64) string {
	return fmt.Sprintf("test:checkout:session:%d", userID)
}

func TestRedisSessionStoreRoundTrip(t *testing.T) {
	redis := newFakeSessionRedis()
	store, err := NewRedisSessionStore(redis, 30*time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	saved := Session{
		Stage:    enums.CheckoutStageSelectingPayment,
		Delivery: enums.DeliveryParcelLocker,
	}
	require.NoError(t, store.Save(ctx, 55, saved))
	assert.Equal(t, 30*time.Minute, redis.ttls[redis.SessionKey(55)])

	loaded, err := store.Get(ctx, 55)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, saved, *loaded)
}

func TestRedisSessionStoreMissingIsNil(t *testing.T) {
	store, err := NewRedisSessionStore(newFakeSessionRedis(), time.Minute)
	require.NoError(t, err)

	loaded, err := store.Get(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestRedisSessionStoreDelete(t *testing.T) {
	redis := newFakeSessionRedis()
	store, err := NewRedisSessionStore(redis, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, 55, Session{Stage: enums.CheckoutStageSelectingDelivery}))
	require.NoError(t, store.Delete(ctx, 55))

	loaded, err := store.Get(ctx, 55)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
