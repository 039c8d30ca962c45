package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferNeverExceedsCapacity(t *testing.T) {
	b := New[int](5)
	for i := 0; i < 23; i++ {
		b.Push(i)
		require.LessOrEqual(t, b.Len(), b.Cap())
	}
	require.Equal(t, []int{18, 19, 20, 21, 22}, b.Values())
}

func TestBufferBelowCapacity(t *testing.T) {
	b := New[string](3)
	_, ok := b.Last()
	require.False(t, ok)

	b.Push("a")
	b.Push("b")
	require.Equal(t, []string{"a", "b"}, b.Values())

	last, ok := b.Last()
	require.True(t, ok)
	require.Equal(t, "b", last)
	require.Equal(t, "a", b.At(0))
}

func TestBufferValuesIsACopy(t *testing.T) {
	b := New[int](2)
	b.Push(1)
	vals := b.Values()
	vals[0] = 42
	require.Equal(t, 1, b.At(0))
}

func TestBufferReset(t *testing.T) {
	b := New[int](3)
	b.Push(9)
	b.Reset([]int{1, 2, 3, 4, 5})
	require.Equal(t, []int{3, 4, 5}, b.Values())

	b.Reset(nil)
	require.Equal(t, 0, b.Len())
	require.Empty(t, b.Values())
}

func TestBufferZeroCapacity(t *testing.T) {
	b := New[int](0)
	b.Push(1)
	b.Push(2)
	require.Equal(t, []int{2}, b.Values())
}
