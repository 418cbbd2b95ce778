package redis_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cache "github.com/prophezy/oracle-resolver/internal/cache/redis"
	"github.com/prophezy/oracle-resolver/internal/domain"
)

func TestLockManager_AcquireFree(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.Regexp().ExpectSetNX("oracle:lock:resolve:42", ".+", 30*time.Second).SetVal(true)

	lm := cache.NewLockManager(cache.Wrap(db))
	unlock, err := lm.Acquire(context.Background(), domain.ResolveLockKey(42), 30*time.Second)

	require.NoError(t, err)
	assert.NotNil(t, unlock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockManager_AcquireHeld(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.Regexp().ExpectSetNX("oracle:lock:resolve:7", ".+", 30*time.Second).SetVal(false)

	lm := cache.NewLockManager(cache.Wrap(db))
	unlock, err := lm.Acquire(context.Background(), domain.ResolveLockKey(7), 30*time.Second)

	assert.Nil(t, unlock)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectoryCache_MissIsNotFound(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectGet("oracle:directory:views").RedisNil()

	dc := cache.NewDirectoryCache(cache.Wrap(db), time.Minute)
	_, err := dc.GetViews(context.Background())

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectoryCache_RoundTrip(t *testing.T) {
	db, mock := redismock.NewClientMock()

	views := []domain.MarketView{{
		Address:  "0xabc",
		Question: "Will BTC close above 50k?",
		Category: "Crypto",
		State:    domain.MarketStateActive,
	}}
	data, err := json.Marshal(views)
	require.NoError(t, err)

	mock.ExpectSet("oracle:directory:views", data, time.Minute).SetVal("OK")
	mock.ExpectGet("oracle:directory:views").SetVal(string(data))
	mock.ExpectDel("oracle:directory:views").SetVal(1)

	dc := cache.NewDirectoryCache(cache.Wrap(db), time.Minute)
	ctx := context.Background()

	require.NoError(t, dc.SetViews(ctx, views))
	got, err := dc.GetViews(ctx)
	require.NoError(t, err)
	assert.Equal(t, views[0].Question, got[0].Question)
	assert.Equal(t, domain.MarketStateActive, got[0].State)
	require.NoError(t, dc.Invalidate(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventBus_ReplayOldestFirst(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectXRevRangeN(domain.StreamResolutions, "+", "-", 3).SetVal([]goredis.XMessage{
		{ID: "3-0", Values: map[string]interface{}{"event": `{"type":"challenge_filed","market_id":2}`}},
		{ID: "2-0", Values: map[string]interface{}{"other": "x"}},
		{ID: "1-0", Values: map[string]interface{}{"event": `{"type":"market_resolved","market_id":1}`}},
	})

	bus := cache.NewEventBus(cache.Wrap(db))
	got, err := bus.Replay(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1-0", got[0].ID)
	assert.Equal(t, "3-0", got[1].ID)
	assert.JSONEq(t, `{"type":"market_resolved","market_id":1}`, string(got[0].Payload))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventBus_ReplayNothingRequested(t *testing.T) {
	db, mock := redismock.NewClientMock()
	got, err := cache.NewEventBus(cache.Wrap(db)).Replay(context.Background(), 0)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
