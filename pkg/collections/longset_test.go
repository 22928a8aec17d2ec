package collections

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLongSet_AddContains(t *testing.T) {
	s := NewLongSet()

	assert.False(t, s.Contains(7))
	assert.True(t, s.Add(7))
	assert.True(t, s.Contains(7))
	assert.False(t, s.Add(7), "second add of same key")
	assert.Equal(t, 1, s.Size())
}

func TestLongSet_ZeroKey(t *testing.T) {
	s := NewLongSet()

	assert.False(t, s.Contains(0))
	assert.True(t, s.Add(0))
	assert.True(t, s.Contains(0))
	assert.False(t, s.Add(0))
	assert.Equal(t, 1, s.Size())
}

func TestLongSet_Grow(t *testing.T) {
	s := NewLongSetWithCapacity(2)
	const n = 10_000
	for i := uint64(1); i <= n; i++ {
		require.True(t, s.Add(i<<20|i))
	}
	assert.Equal(t, n, s.Size())
	for i := uint64(1); i <= n; i++ {
		assert.True(t, s.Contains(i<<20|i))
	}
	assert.False(t, s.Contains(0xDEADBEEF00000000))
}

func TestLongSet_ToSlice(t *testing.T) {
	s := NewLongSet()
	for _, k := range []uint64{3, 1, 2} {
		s.Add(k)
	}
	got := s.ToSlice()
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	assert.Equal(t, []uint64{1, 2, 3}, got)
}
