package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy/admin/internal/domain"
)

func tokenExpiringAt(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.RegisteredClaims{
		Subject:   "usr-1",
		ExpiresAt: jwtlib.NewNumericDate(exp),
	}).SignedString([]byte("any-secret"))
	require.NoError(t, err)
	return token
}

func TestFileStoreRoundTripAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewFileStore(path)
	ctx := context.Background()

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Set(ctx, Session{Token: "tok", User: domain.User{ID: "usr-1", Email: "a@b.c"}}))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err = store.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "usr-1", got.User.ID)

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx))
	got, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path).Get(context.Background())
	assert.Error(t, err)
}

func TestIdentityReadsCurrentUser(t *testing.T) {
	store := NewMemoryStore()
	identity := NewIdentity(store)

	_, ok := identity.CurrentUserID()
	assert.False(t, ok)

	require.NoError(t, store.Set(context.Background(), Session{
		Token: tokenExpiringAt(t, time.Now().Add(time.Hour)),
		User:  domain.User{ID: "usr-1"},
	}))
	id, ok := identity.CurrentUserID()
	assert.True(t, ok)
	assert.Equal(t, "usr-1", id)
}

func TestIdentityTreatsExpiredTokenAsSignedOut(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), Session{
		Token: tokenExpiringAt(t, time.Now().Add(-time.Minute)),
		User:  domain.User{ID: "usr-1"},
	}))

	_, ok := NewIdentity(store).CurrentUserID()
	assert.False(t, ok)

	stored, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, stored, "identity must not clear the session")
}

func TestIdentityRejectsGarbageToken(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), Session{Token: "not-a-jwt", User: domain.User{ID: "usr-1"}}))

	_, ok := NewIdentity(store).CurrentUserID()
	assert.False(t, ok)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("PHARMA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set PHARMA_TEST_REDIS_ADDR to run redis integration test")
	}
	store := NewRedisStore(addr, "", 0)
	store.key = "pharmactl-test:session:" + time.Now().Format(time.RFC3339Nano)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))

	require.NoError(t, store.Set(ctx, Session{Token: "tok", User: domain.User{ID: "usr-9"}}))
	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "usr-9", got.User.ID)

	require.NoError(t, store.Clear(ctx))
	got, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}
