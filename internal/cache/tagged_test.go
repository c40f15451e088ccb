package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "issues.list", Key("issues.list"))
	assert.Equal(t, "issues.get/42", Key("issues.get", "42"))
	assert.NotEqual(t, Key("op", "a/b"), Key("op", "a", "b"))
}

func TestTagged_InvalidateTagsRemovesOverlappingEntries(t *testing.T) {
	ctx := context.Background()
	tagged := newTagged(t)

	require.NoError(t, tagged.Put(ctx, "issues.list", "[1,2]", "issues"))
	require.NoError(t, tagged.Put(ctx, "issues.get/1", "{1}", "issues", "issues:1"))
	require.NoError(t, tagged.Put(ctx, "issues.get/2", "{2}", "issues", "issues:2"))
	require.NoError(t, tagged.Put(ctx, "events.list", "[]", "events"))

	removed, err := tagged.InvalidateTags(ctx, "issues:1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assertCached(t, tagged, "issues.get/1", false)
	assertCached(t, tagged, "issues.get/2", true)

	removed, err = tagged.InvalidateTags(ctx, "issues")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	assertCached(t, tagged, "issues.list", false)
	assertCached(t, tagged, "issues.get/2", false)
	assertCached(t, tagged, "events.list", true)

	assert.Empty(t, tagged.byTag["issues"], "index entries are dropped with the keys")
}

func TestTagged_PutReplacesTags(t *testing.T) {
	ctx := context.Background()
	tagged := newTagged(t)

	require.NoError(t, tagged.Put(ctx, "k", "v1", "a"))
	require.NoError(t, tagged.Put(ctx, "k", "v2", "b", "b"))

	removed, err := tagged.InvalidateTags(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assertCached(t, tagged, "k", true)

	assert.Equal(t, []string{"b"}, tagged.tagsOf["k"])
}

func TestTagged_InvalidateUnknownTag(t *testing.T) {
	removed, err := newTagged(t).InvalidateTags(context.Background(), "nothing")

	assert.NoError(t, err)
	assert.Zero(t, removed)
}

func TestTagged_Purge(t *testing.T) {
	ctx := context.Background()
	tagged := newTagged(t)

	require.NoError(t, tagged.Put(ctx, "profile", "{}"))
	require.NoError(t, tagged.Put(ctx, "issues.list", "[]", "issues"))

	require.NoError(t, tagged.Purge(ctx))

	assertCached(t, tagged, "profile", false)
	assertCached(t, tagged, "issues.list", false)
	assert.Empty(t, tagged.tagsOf)
}

func TestTagged_ErrorsAreReported(t *testing.T) {
	ctx := context.Background()
	stub := &stubCache[string]{invError: errors.New("backend down")}
	tagged := NewTagged[string](stub)

	require.NoError(t, tagged.Put(ctx, "a", "1", "t"))
	require.NoError(t, tagged.Put(ctx, "b", "2", "t"))

	removed, err := tagged.InvalidateTags(ctx, "t")
	assert.Equal(t, 2, removed)
	assert.ErrorContains(t, err, "backend down")
	assert.ElementsMatch(t, []string{"a", "b"}, stub.invKeys)

	stub.setError = errors.New("full")
	assert.Error(t, tagged.Put(ctx, "c", "3", "t"))
	assert.NotContains(t, tagged.tagsOf, "c", "failed writes are not indexed")
}

func TestTagged_EvictedKeysLeaveTheIndex(t *testing.T) {
	ctx := context.Background()
	backing := &evictingCache{stubCache: &stubCache[string]{}}
	tagged := NewTagged[string](NewInstrumented[string](backing, "test"))

	require.NoError(t, tagged.Put(ctx, "issues.get/1", "{1}", "issues", "issues:1"))
	require.NoError(t, tagged.Put(ctx, "issues.list", "[]", "issues"))

	require.NotNil(t, backing.evicted, "eviction hook is forwarded through Instrumented")
	backing.evicted("issues.get/1")

	assert.NotContains(t, tagged.tagsOf, "issues.get/1")
	assert.NotContains(t, tagged.byTag, "issues:1")
	assert.Equal(t, map[string]struct{}{"issues.list": {}}, tagged.byTag["issues"])

	removed, err := tagged.InvalidateTags(ctx, "issues")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

type evictingCache struct {
	*stubCache[string]
	evicted func(key string)
}

func (c *evictingCache) OnEviction(fn func(key string)) {
	c.evicted = fn
}

func newTagged(t *testing.T) *Tagged[string] {
	t.Helper()

	mem, err := NewMemory[string](time.Minute, 100)
	require.NoError(t, err)
	return NewTagged[string](mem)
}

func assertCached(t *testing.T, tagged *Tagged[string], key string, expected bool) {
	t.Helper()

	_, found, err := tagged.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, expected, found, "cached state of %q", key)
}
