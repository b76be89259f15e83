package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"collecthive/internal/platform/openlibrary"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) LookupISBN(ctx context.Context, isbn string) (*openlibrary.Edition, error) {
	args := m.Called(ctx, isbn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*openlibrary.Edition), args.Error(1)
}

// unreachableRedis points at a port nothing listens on, so every command fails fast.
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLookupCache_ServesRepeatLookupsFromRedis(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniredis(t)
	next := new(mockFetcher)
	edition := &openlibrary.Edition{Title: "Lorem ipsum", Authors: []string{"John Doe"}}
	next.On("LookupISBN", ctx, "9780306406157").Return(edition, nil).Once()

	c := NewLookupCache(client, next, 6*time.Hour)

	first, err := c.LookupISBN(ctx, "9780306406157")
	require.NoError(t, err)
	second, err := c.LookupISBN(ctx, "9780306406157")
	require.NoError(t, err)

	assert.Equal(t, edition, first)
	assert.Equal(t, edition, second)
	next.AssertExpectations(t)

	key := "collecthive:lookup:9780306406157"
	require.True(t, mr.Exists(key))
	assert.Equal(t, 6*time.Hour, mr.TTL(key))
}

func TestLookupCache_FailedLookupIsNotCached(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniredis(t)
	next := new(mockFetcher)
	next.On("LookupISBN", ctx, "9780306406157").Return(nil, openlibrary.ErrNotFound).Twice()

	c := NewLookupCache(client, next, time.Hour)

	for i := 0; i < 2; i++ {
		_, err := c.LookupISBN(ctx, "9780306406157")
		assert.ErrorIs(t, err, openlibrary.ErrNotFound)
	}
	assert.False(t, mr.Exists("collecthive:lookup:9780306406157"))
	assert.Empty(t, mr.Keys())
	next.AssertExpectations(t)
}

func TestLookupCache_ReplacesUndecodableEntry(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniredis(t)
	key := "collecthive:lookup:0306406152"
	require.NoError(t, mr.Set(key, "not json"))

	next := new(mockFetcher)
	edition := &openlibrary.Edition{Title: "Fresh", Publisher: "Penguin", Authors: []string{"Jane Doe"}}
	next.On("LookupISBN", ctx, "0306406152").Return(edition, nil).Once()

	c := NewLookupCache(client, next, time.Hour)

	got, err := c.LookupISBN(ctx, "0306406152")
	require.NoError(t, err)
	assert.Equal(t, edition, got)
	next.AssertExpectations(t)

	cached, err := mr.Get(key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Fresh","publisher":"Penguin","authors":["Jane Doe"]}`, cached)
}

func TestLookupCache_FallsThroughWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	next := new(mockFetcher)
	edition := &openlibrary.Edition{Title: "Lorem ipsum", Authors: []string{"John Doe"}}
	next.On("LookupISBN", ctx, "9780306406157").Return(edition, nil).Once()

	c := NewLookupCache(unreachableRedis(t), next, time.Hour)

	got, err := c.LookupISBN(ctx, "9780306406157")
	require.NoError(t, err)
	assert.Equal(t, edition, got)
	next.AssertExpectations(t)
}

func TestLookupCache_PropagatesFetcherErrors(t *testing.T) {
	ctx := context.Background()
	next := new(mockFetcher)
	next.On("LookupISBN", ctx, "9780306406157").Return(nil, openlibrary.ErrNotFound)

	c := NewLookupCache(unreachableRedis(t), next, time.Hour)

	got, err := c.LookupISBN(ctx, "9780306406157")
	assert.Nil(t, got)
	assert.True(t, errors.Is(err, openlibrary.ErrNotFound))
}

func TestLookupCache_PingReportsUnreachableServer(t *testing.T) {
	c := NewLookupCache(unreachableRedis(t), new(mockFetcher), time.Hour)

	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}
