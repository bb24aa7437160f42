package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisKV(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	kv := NewRedisKV(client, "ck:")

	mock.ExpectGet("ck:" + KeyToken).RedisNil()
	_, ok, err := kv.Get(ctx, KeyToken)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectSet("ck:"+KeyToken, "tok", 0).SetVal("OK")
	require.NoError(t, kv.Set(ctx, KeyToken, "tok"))

	mock.ExpectGet("ck:" + KeyToken).SetVal("tok")
	v, ok, err := kv.Get(ctx, KeyToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", v)

	mock.ExpectDel("ck:" + KeyToken).SetVal(1)
	require.NoError(t, kv.Delete(ctx, KeyToken))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisKV_Errors(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	kv := NewRedisKV(client, "")

	mock.ExpectGet(KeyUser).SetErr(errors.New("conn refused"))
	_, _, err := kv.Get(ctx, KeyUser)
	assert.ErrorContains(t, err, "conn refused")

	mock.ExpectSet(KeyUser, "x", 0).SetErr(errors.New("readonly"))
	assert.Error(t, kv.Set(ctx, KeyUser, "x"))
}

func TestPurchaseCache_OverRedis(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	cache := NewPurchaseCache(NewRedisKV(client, ""), nil)

	mock.ExpectGet(KeyUser).SetVal(`{"schemaVersion":2,"email":"a@b.c","openCategories":[1],"purchasedStages":[]}`)
	u := cache.StoredUser(ctx)
	require.NotNil(t, u)
	assert.Equal(t, []int{1}, u.OpenCategories)
	assert.NoError(t, mock.ExpectationsWereMet())
}
