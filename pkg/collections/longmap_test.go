package collections

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLongLongMap_PutGet(t *testing.T) {
	m := NewLongLongMap()

	t.Run("missing key", func(t *testing.T) {
		_, ok := m.Get(42)
		assert.False(t, ok)
		assert.False(t, m.Contains(42))
	})

	t.Run("put and get", func(t *testing.T) {
		m.Put(42, 100)
		v, ok := m.Get(42)
		require.True(t, ok)
		assert.Equal(t, uint64(100), v)
		assert.Equal(t, 1, m.Size())
	})

	t.Run("replace value", func(t *testing.T) {
		m.Put(42, 200)
		v, ok := m.Get(42)
		require.True(t, ok)
		assert.Equal(t, uint64(200), v)
		assert.Equal(t, 1, m.Size())
	})
}

func TestLongLongMap_ZeroKey(t *testing.T) {
	m := NewLongLongMap()

	_, ok := m.Get(0)
	assert.False(t, ok)

	m.Put(0, 7)
	v, ok := m.Get(0)
	require.True(t, ok)
	assert.Equal(t, uint64(7), v)
	assert.Equal(t, 1, m.Size())

	m.Put(0, 9)
	v, _ = m.Get(0)
	assert.Equal(t, uint64(9), v)
	assert.Equal(t, 1, m.Size())
}

func TestLongLongMap_GrowManyEntries(t *testing.T) {
	m := NewLongLongMapWithCapacity(4)

	const n = 10_000
	for i := uint64(1); i <= n; i++ {
		m.Put(i*0x9E3779B97F4A7C15, i)
	}
	assert.Equal(t, n, m.Size())

	for i := uint64(1); i <= n; i++ {
		v, ok := m.Get(i * 0x9E3779B97F4A7C15)
		require.True(t, ok, "key %d missing", i)
		assert.Equal(t, i, v)
	}
}

func TestLongLongMap_Iterate(t *testing.T) {
	m := NewLongLongMap()
	m.Put(0, 10)
	m.Put(1, 11)
	m.Put(2, 12)

	seen := map[uint64]uint64{}
	m.Iterate(func(k, v uint64) bool {
		seen[k] = v
		return true
	})
	assert.Equal(t, map[uint64]uint64{0: 10, 1: 11, 2: 12}, seen)

	count := 0
	m.Iterate(func(k, v uint64) bool {
		count++
		return false
	})
	assert.Equal(t, 1, count)
}

func TestLongObjectMap_PutGet(t *testing.T) {
	m := NewLongObjectMap[string]()

	_, ok := m.Get(5)
	assert.False(t, ok)

	m.Put(5, "java.lang.Object")
	m.Put(0, "null-key")

	v, ok := m.Get(5)
	require.True(t, ok)
	assert.Equal(t, "java.lang.Object", v)

	v, ok = m.Get(0)
	require.True(t, ok)
	assert.Equal(t, "null-key", v)

	m.Put(5, "replaced")
	v, _ = m.Get(5)
	assert.Equal(t, "replaced", v)
	assert.Equal(t, 2, m.Size())
}

func TestLongObjectMap_Grow(t *testing.T) {
	m := NewLongObjectMapWithCapacity[int](2)
	const n = 5_000
	for i := uint64(1); i <= n; i++ {
		m.Put(i, int(i)*3)
	}
	assert.Equal(t, n, m.Size())
	for i := uint64(1); i <= n; i++ {
		v, ok := m.Get(i)
		require.True(t, ok)
		assert.Equal(t, int(i)*3, v)
	}
}
