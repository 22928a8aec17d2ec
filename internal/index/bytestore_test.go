package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnsortedByteEntries_AppendAndSort(t *testing.T) {
	entries := NewUnsortedByteEntries(6, 8, 2)

	ids := []uint64{0x500, 0x100, 0x300, 0x200, 0x400}
	for i, id := range ids {
		w := entries.Append(id)
		w.AppendTruncated(uint64(i), 2) // insertion order marker
		w.AppendUint32(uint32(id) * 2)
	}
	assert.Equal(t, 5, entries.Size())

	m := entries.MoveToSortedMap()
	require.Equal(t, 5, m.Size())

	// Keys come back ascending regardless of insertion order.
	for i := 0; i < m.Size(); i++ {
		assert.Equal(t, uint64(0x100*(i+1)), m.KeyAt(i))
	}

	// Rows stay attached to their identifiers through the sort.
	row := m.Get(0x300)
	require.NotNil(t, row)
	assert.Equal(t, uint64(2), row.ReadTruncated(2))
	assert.Equal(t, uint32(0x600), row.ReadUint32())
}

func TestSortedBytesMap_IndexOf(t *testing.T) {
	entries := NewUnsortedByteEntries(1, 8, 4)
	for _, id := range []uint64{10, 20, 30} {
		entries.Append(id).AppendByte(byte(id))
	}
	m := entries.MoveToSortedMap()

	t.Run("hits", func(t *testing.T) {
		assert.Equal(t, 0, m.IndexOf(10))
		assert.Equal(t, 1, m.IndexOf(20))
		assert.Equal(t, 2, m.IndexOf(30))
	})

	t.Run("misses return insertion point", func(t *testing.T) {
		assert.Equal(t, -1, m.IndexOf(5))  // before slot 0
		assert.Equal(t, -2, m.IndexOf(15)) // before slot 1
		assert.Equal(t, -4, m.IndexOf(99)) // past the end
	})

	t.Run("contains", func(t *testing.T) {
		assert.True(t, m.Contains(20))
		assert.False(t, m.Contains(15))
		assert.Nil(t, m.Get(15))
	})
}

func TestSortedBytesMap_UnsignedKeyOrder(t *testing.T) {
	entries := NewUnsortedByteEntries(0, 8, 4)
	entries.Append(0xFFFFFFFFFFFFFFFF)
	entries.Append(1)
	entries.Append(0x8000000000000000)
	m := entries.MoveToSortedMap()

	assert.Equal(t, uint64(1), m.KeyAt(0))
	assert.Equal(t, uint64(0x8000000000000000), m.KeyAt(1))
	assert.Equal(t, uint64(0xFFFFFFFFFFFFFFFF), m.KeyAt(2))
}

func TestSortedBytesMap_FourByteIdentifiers(t *testing.T) {
	entries := NewUnsortedByteEntries(4, 4, 2)
	w := entries.Append(0xCAFEBABE)
	w.AppendID(0x12345678)
	m := entries.MoveToSortedMap()

	assert.Equal(t, uint64(0xCAFEBABE), m.KeyAt(0))
	row := m.GetAtIndex(0)
	assert.Equal(t, uint64(0x12345678), row.ReadID())
}

func TestRowWriter_TruncatedRoundTrip(t *testing.T) {
	entries := NewUnsortedByteEntries(3+5+1, 8, 1)
	w := entries.Append(7)
	w.AppendTruncated(0x00ABCDEF, 3)
	w.AppendTruncated(0x1122334455, 5)
	w.AppendByte(0x7F)

	m := entries.MoveToSortedMap()
	row := m.Get(7)
	require.NotNil(t, row)
	assert.Equal(t, uint64(0xABCDEF), row.ReadTruncated(3))
	assert.Equal(t, uint64(0x1122334455), row.ReadTruncated(5))
	assert.Equal(t, byte(0x7F), row.ReadByte())
}

func TestRowWriter_OverflowPanics(t *testing.T) {
	entries := NewUnsortedByteEntries(2, 8, 1)
	w := entries.Append(1)
	w.AppendByte(0)
	w.AppendByte(0)
	assert.Panics(t, func() { w.AppendByte(0) })
}

func TestUnsortedByteEntries_Growth(t *testing.T) {
	entries := NewUnsortedByteEntries(2, 8, 2)
	const n = 1000
	for i := n; i >= 1; i-- {
		entries.Append(uint64(i)).AppendTruncated(uint64(i%251), 2)
	}
	m := entries.MoveToSortedMap()
	require.Equal(t, n, m.Size())

	prev := uint64(0)
	m.IterateEntries(func(id uint64, row *RowReader) bool {
		assert.Greater(t, id, prev)
		assert.Equal(t, id%251, row.ReadTruncated(2))
		prev = id
		return true
	})
}

func TestSortedBytesMap_IterateStops(t *testing.T) {
	entries := NewUnsortedByteEntries(0, 8, 4)
	for i := 1; i <= 5; i++ {
		entries.Append(uint64(i))
	}
	m := entries.MoveToSortedMap()

	count := 0
	m.IterateEntries(func(id uint64, row *RowReader) bool {
		count++
		return count < 2
	})
	assert.Equal(t, 2, count)
}
