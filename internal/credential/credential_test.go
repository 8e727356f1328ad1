package credential

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticInvalidate(t *testing.T) {
	c := NewStatic("sk-1")
	assert.Equal(t, "sk-1", c.Key())

	require.NoError(t, c.Invalidate(context.Background()))
	assert.Empty(t, c.Key())
}

func TestLeaseInvalidateDeletesStoredKey(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	require.NoError(t, st.Set(ctx, "client-a", "sk-a"))
	require.NoError(t, st.Set(ctx, "client-b", "sk-b"))

	lease, err := Acquire(ctx, st, "client-a")
	require.NoError(t, err)
	assert.Equal(t, "sk-a", lease.Key())

	require.NoError(t, lease.Invalidate(ctx))
	assert.Empty(t, lease.Key())

	_, err = st.Get(ctx, "client-a")
	assert.ErrorIs(t, err, ErrNoCredential)

	other, err := st.Get(ctx, "client-b")
	require.NoError(t, err)
	assert.Equal(t, "sk-b", other)
}

func TestAcquireMissing(t *testing.T) {
	_, err := Acquire(context.Background(), NewMemoryStore(), "nobody")
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	st := NewRedisStore(client, time.Minute)
	id := "test-" + time.Now().Format("150405.000000")

	_, err = st.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNoCredential)

	require.NoError(t, st.Set(ctx, id, "sk-redis"))
	got, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "sk-redis", got)

	ttl, err := client.TTL(ctx, credentialKey(id)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	lease, err := Acquire(ctx, st, id)
	require.NoError(t, err)
	require.NoError(t, lease.Invalidate(ctx))
	_, err = st.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNoCredential)
}
