package resolver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	redismock "github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetHitUnmarshalsResult(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewRedisCache(client)

	want := Result{Outcome: OutcomeResolved, PatientID: "p-1"}
	raw, err := json.Marshal(want)
	require.NoError(t, err)
	mock.ExpectGet(cacheKey("mac:aa:bb")).SetVal(string(raw))

	got, ok := cache.Get(context.Background(), "mac:aa:bb")
	assert.True(t, ok)
	assert.Equal(t, want, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_GetMissReturnsFalse(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewRedisCache(client)

	mock.ExpectGet(cacheKey("mac:miss")).RedisNil()

	_, ok := cache.Get(context.Background(), "mac:miss")
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_SetWritesTTLBoundedEntry(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewRedisCache(client)

	val := Result{Outcome: OutcomeAutoProvisioned, PatientID: "p-2"}
	raw, err := json.Marshal(val)
	require.NoError(t, err)
	mock.ExpectSet(cacheKey("citiz:123"), raw, 60*time.Second).SetVal("OK")

	cache.Set(context.Background(), "citiz:123", val, 60*time.Second)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_FlushDeletesEveryScannedKey(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewRedisCache(client)

	mock.ExpectScan(0, cacheKeyPrefix+"*", 0).SetVal([]string{cacheKey("a"), cacheKey("b")}, 0)
	mock.ExpectDel(cacheKey("a")).SetVal(1)
	mock.ExpectDel(cacheKey("b")).SetVal(1)

	cache.Flush(context.Background())
	require.NoError(t, mock.ExpectationsWereMet())
}
