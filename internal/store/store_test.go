package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runContract exercises the SessionStore behaviour every backend shares.
func runContract(t *testing.T, s SessionStore) {
	t.Helper()
	ctx := context.Background()
	key := "contract-session"
	t.Cleanup(func() { _ = s.Delete(ctx, key) })

	t.Run("missing key loads nil", func(t *testing.T) {
		data, err := s.Load(ctx, "never-written")
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("round trip", func(t *testing.T) {
		blob := []byte(`{"nodes":[{"id":"a"}],"edges":[],"viewport":{"x":1,"y":2,"zoom":1}}`)
		require.NoError(t, s.Save(ctx, key, blob))

		got, err := s.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, blob, got)
	})

	t.Run("save overwrites", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, key, []byte("first")))
		require.NoError(t, s.Save(ctx, key, []byte("second")))

		got, err := s.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), got)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, key, []byte("x")))
		require.NoError(t, s.Delete(ctx, key))

		got, err := s.Load(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, got)

		assert.NoError(t, s.Delete(ctx, key), "deleting a missing key is not an error")
	})

	t.Run("empty key rejected", func(t *testing.T) {
		assert.ErrorIs(t, s.Save(ctx, "", []byte("x")), ErrPersistence)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})
}

func TestMemoryStore(t *testing.T) {
	runContract(t, NewMemoryStore())
}

func TestMemoryStoreCopiesData(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	blob := []byte("abc")
	require.NoError(t, s.Save(ctx, "k", blob))
	blob[0] = 'z'

	got, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	runContract(t, s)
}

func TestFileStoreLayoutAndKeys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, "lucid-flow-session", []byte("{}")))
	_, err = os.Stat(filepath.Join(dir, "lucid-flow-session.json"))
	assert.NoError(t, err)

	for _, bad := range []string{"../escape", "a/b", `a\b`} {
		assert.ErrorIs(t, s.Save(ctx, bad, []byte("x")), ErrPersistence, bad)
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer s.Close()
	runContract(t, s)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	require.NoError(t, RunMigrations(ctx, url))
	s, err := NewPostgresStore(ctx, url)
	require.NoError(t, err)
	defer s.Close()
	runContract(t, s)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	s, err := NewRedisStore(context.Background(), url)
	require.NoError(t, err)
	defer s.Close()
	runContract(t, s)
}

// fakeDynamo keeps items in memory keyed by PK and SK.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func itemID(key map[string]types.AttributeValue) string {
	pk := key["PK"].(*types.AttributeValueMemberS).Value
	sk := key["SK"].(*types.AttributeValueMemberS).Value
	return pk + "|" + sk
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[itemID(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[itemID(in.Key)]}, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, itemID(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, nil
}

func TestDynamoStore(t *testing.T) {
	fake := newFakeDynamo()
	runContract(t, NewDynamoStoreWithClient(fake, "sessions"))
}

func TestDynamoStoreItemLayout(t *testing.T) {
	fake := newFakeDynamo()
	s := NewDynamoStoreWithClient(fake, "sessions")
	require.NoError(t, s.Save(context.Background(), "abc", []byte("blob")))

	item, ok := fake.items["SESSION#abc|BLOB"]
	require.True(t, ok)
	data, ok := item["Data"].(*types.AttributeValueMemberB)
	require.True(t, ok)
	assert.Equal(t, []byte("blob"), data.Value)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{Backend: "memory"})
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Backend())

	s, err = Open(ctx, Options{DataDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "file", s.Backend())

	_, err = Open(ctx, Options{Backend: "postgres"})
	assert.ErrorIs(t, err, ErrPersistence)

	_, err = Open(ctx, Options{Backend: "redis"})
	assert.ErrorIs(t, err, ErrPersistence)

	_, err = Open(ctx, Options{Backend: "dynamodb"})
	assert.ErrorIs(t, err, ErrPersistence)

	_, err = Open(ctx, Options{Backend: "floppy"})
	assert.ErrorIs(t, err, ErrPersistence)
}
