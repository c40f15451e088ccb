package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCache records calls and returns canned results.
type stubCache[T any] struct {
	getValue T
	getFound bool
	getError error
	setError error
	invError error
	closeErr error
	getCalls int
	setCalls int
	invCalls int
	invKeys  []string
}

func (m *stubCache[T]) Get(context.Context, string) (T, bool, error) {
	m.getCalls++
	return m.getValue, m.getFound, m.getError
}

func (m *stubCache[T]) Set(context.Context, string, T) error {
	m.setCalls++
	return m.setError
}

func (m *stubCache[T]) Invalidate(_ context.Context, key string) error {
	m.invCalls++
	m.invKeys = append(m.invKeys, key)
	return m.invError
}

func (m *stubCache[T]) Close() error {
	return m.closeErr
}

func TestInstrumented_Get(t *testing.T) {
	tests := []struct {
		name  string
		stub  *stubCache[string]
		value string
		found bool
		err   error
	}{
		{
			name:  "hit",
			stub:  &stubCache[string]{getValue: "body", getFound: true},
			value: "body",
			found: true,
		},
		{
			name: "miss",
			stub: &stubCache[string]{},
		},
		{
			name: "error",
			stub: &stubCache[string]{getError: errors.New("cache error")},
			err:  errors.New("cache error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instrumented := NewInstrumented(tt.stub, "responses")

			value, found, err := instrumented.Get(context.Background(), "key")

			assert.Equal(t, tt.err, err)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.value, value)
			assert.Equal(t, 1, tt.stub.getCalls)
		})
	}
}

func TestInstrumented_SetAndInvalidate(t *testing.T) {
	ctx := context.Background()

	ok := &stubCache[string]{}
	instrumented := NewInstrumented(ok, "responses")
	require.NoError(t, instrumented.Set(ctx, "key", "value"))
	require.NoError(t, instrumented.Invalidate(ctx, "key"))
	assert.Equal(t, 1, ok.setCalls)
	assert.Equal(t, 1, ok.invCalls)

	setErr := errors.New("set error")
	invErr := errors.New("invalidate error")
	failing := NewInstrumented(&stubCache[string]{setError: setErr, invError: invErr}, "responses")
	assert.Equal(t, setErr, failing.Set(ctx, "key", "value"))
	assert.Equal(t, invErr, failing.Invalidate(ctx, "key"))
}

func TestInstrumented_Close(t *testing.T) {
	closeErr := errors.New("close error")

	assert.NoError(t, NewInstrumented(&stubCache[string]{}, "responses").Close())
	assert.Equal(t, closeErr, NewInstrumented(&stubCache[string]{closeErr: closeErr}, "responses").Close())
}
