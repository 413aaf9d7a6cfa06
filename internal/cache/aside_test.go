package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedThing struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func setupMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = Close() })
	return mr
}

func TestAside_WithoutRedisCallsFetch(t *testing.T) {
	SetClient(nil)
	calls := 0
	var dest cachedThing
	err := Aside(context.Background(), "k", &dest, time.Minute, func() error {
		calls++
		dest = cachedThing{ID: 1, Name: "bikes"}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "bikes", dest.Name)
}

func TestAside_MissThenHit(t *testing.T) {
	mr := setupMiniredis(t)
	ctx := context.Background()
	calls := 0
	fetch := func(dest *cachedThing) func() error {
		return func() error {
			calls++
			*dest = cachedThing{ID: 7, Name: "cars"}
			return nil
		}
	}

	var first cachedThing
	require.NoError(t, Aside(ctx, CategoryKey(7), &first, time.Minute, fetch(&first)))
	assert.True(t, mr.Exists(CategoryKey(7)))

	var second cachedThing
	require.NoError(t, Aside(ctx, CategoryKey(7), &second, time.Minute, fetch(&second)))
	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(CategoryKey(7)))
}

func TestAside_FetchErrorIsNotCached(t *testing.T) {
	mr := setupMiniredis(t)
	var dest cachedThing
	err := Aside(context.Background(), UserKey(3), &dest, time.Minute, func() error {
		return errors.New("not found")
	})
	assert.Error(t, err)
	assert.False(t, mr.Exists(UserKey(3)))
}

func TestInvalidateHelpers(t *testing.T) {
	mr := setupMiniredis(t)
	ctx := context.Background()
	require.NoError(t, mr.Set(UserKey(1), "{}"))
	require.NoError(t, mr.Set(UserKey(2), "{}"))
	require.NoError(t, mr.Set(CategoriesListKey, "[]"))
	require.NoError(t, mr.Set(CategoryKey(4), "{}"))

	InvalidateUser(ctx, 1)
	assert.False(t, mr.Exists(UserKey(1)))

	InvalidateUsers(ctx, []uint{2})
	assert.False(t, mr.Exists(UserKey(2)))

	InvalidateCategories(ctx, 4)
	assert.False(t, mr.Exists(CategoriesListKey))
	assert.False(t, mr.Exists(CategoryKey(4)))
}
