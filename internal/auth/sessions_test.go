package auth

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRegistry_CreateAndVerify(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	registry := NewSessionRegistry(time.Hour, db)
	ctx := context.Background()

	sessionKey := sessionKeyPrefix + "admin@portfolio.com"

	mock.ExpectSet(sessionKey, "token-a", time.Hour).SetVal("OK")
	require.NoError(t, registry.Create(ctx, "admin@portfolio.com", "token-a"))

	mock.ExpectGet(sessionKey).SetVal("token-a")
	valid, err := registry.Verify(ctx, "admin@portfolio.com", "token-a")
	require.NoError(t, err)
	assert.True(t, valid)

	// only byte-equality counts
	mock.ExpectGet(sessionKey).SetVal("token-a")
	valid, err = registry.Verify(ctx, "admin@portfolio.com", "token-b")
	require.NoError(t, err)
	assert.False(t, valid)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRegistry_Supersession(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	registry := NewSessionRegistry(time.Hour, db)
	ctx := context.Background()

	sessionKey := sessionKeyPrefix + "admin@portfolio.com"

	// a second login overwrites the slot, the first token is dead
	mock.ExpectSet(sessionKey, "token-a", time.Hour).SetVal("OK")
	mock.ExpectSet(sessionKey, "token-b", time.Hour).SetVal("OK")
	require.NoError(t, registry.Create(ctx, "admin@portfolio.com", "token-a"))
	require.NoError(t, registry.Create(ctx, "admin@portfolio.com", "token-b"))

	mock.ExpectGet(sessionKey).SetVal("token-b")
	valid, err := registry.Verify(ctx, "admin@portfolio.com", "token-a")
	require.NoError(t, err)
	assert.False(t, valid)

	mock.ExpectGet(sessionKey).SetVal("token-b")
	valid, err = registry.Verify(ctx, "admin@portfolio.com", "token-b")
	require.NoError(t, err)
	assert.True(t, valid)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRegistry_VerifyAbsent(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	registry := NewSessionRegistry(time.Hour, db)

	mock.ExpectGet(sessionKeyPrefix + "admin@portfolio.com").RedisNil()
	valid, err := registry.Verify(context.Background(), "admin@portfolio.com", "token-a")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestSessionRegistry_DeleteIdempotent(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	registry := NewSessionRegistry(time.Hour, db)
	ctx := context.Background()

	sessionKey := sessionKeyPrefix + "admin@portfolio.com"

	mock.ExpectDel(sessionKey).SetVal(1)
	require.NoError(t, registry.Delete(ctx, "admin@portfolio.com"))

	// deleting an absent session is not an error
	mock.ExpectDel(sessionKey).SetVal(0)
	require.NoError(t, registry.Delete(ctx, "admin@portfolio.com"))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRegistry_IdentityNormalized(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	registry := NewSessionRegistry(time.Hour, db)

	mock.ExpectSet(sessionKeyPrefix+"admin@portfolio.com", "token-a", time.Hour).SetVal("OK")
	require.NoError(t, registry.Create(context.Background(), "  Admin@Portfolio.COM ", "token-a"))

	require.NoError(t, mock.ExpectationsWereMet())
}
