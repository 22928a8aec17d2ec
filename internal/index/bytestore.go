// Package index builds a compact, queryable in-memory index over a heap
// dump. Per-object records are packed into variable-width byte rows whose
// field widths are sized from a preliminary pass, so an index over tens of
// millions of objects fits in a fraction of the dump size.
package index

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// ============================================================================
// Packed byte entry stores
// ============================================================================
//
// Each store is an associative container from a 64-bit object identifier to
// a fixed-width byte row. Entries are packed back to back in one contiguous
// buffer with no per-entry headers:
//
//   [ id (idSize bytes) | row (rowSize bytes) ] * capacity
//
// The build phase appends unsorted; freezing sorts entries in place by
// identifier and switches to binary-search lookups. Per-entry overhead is
// zero, which is what makes 50M-entry stores practical.

// UnsortedByteEntries is the append-only build phase of a packed store.
type UnsortedByteEntries struct {
	idSize    int
	rowSize   int
	entrySize int
	size      int
	buf       []byte
}

// NewUnsortedByteEntries creates a build-phase store for rows of rowSize
// bytes keyed by identifiers of idSize bytes (4 or 8). initialCapacity
// pre-sizes the buffer for the expected entry count.
func NewUnsortedByteEntries(rowSize, idSize, initialCapacity int) *UnsortedByteEntries {
	if initialCapacity < 4 {
		initialCapacity = 4
	}
	entrySize := idSize + rowSize
	return &UnsortedByteEntries{
		idSize:    idSize,
		rowSize:   rowSize,
		entrySize: entrySize,
		buf:       make([]byte, 0, entrySize*initialCapacity),
	}
}

// Append reserves one row for id and returns a writer that must fill
// exactly the row's width before the next Append.
func (e *UnsortedByteEntries) Append(id uint64) *RowWriter {
	offset := len(e.buf)
	if offset+e.entrySize > cap(e.buf) {
		grown := make([]byte, offset, cap(e.buf)*2+e.entrySize)
		copy(grown, e.buf)
		e.buf = grown
	}
	e.buf = e.buf[:offset+e.entrySize]
	e.size++

	w := &RowWriter{buf: e.buf, off: offset, end: offset + e.entrySize, idSize: e.idSize}
	w.writeTruncated(id, e.idSize)
	return w
}

// Size returns the number of appended entries.
func (e *UnsortedByteEntries) Size() int {
	return e.size
}

// MoveToSortedMap sorts the entries by identifier ascending and hands the
// buffer to a read-only SortedBytesMap. The unsorted store is consumed and
// must not be appended to afterwards.
func (e *UnsortedByteEntries) MoveToSortedMap() *SortedBytesMap {
	m := &SortedBytesMap{
		idSize:    e.idSize,
		rowSize:   e.rowSize,
		entrySize: e.entrySize,
		size:      e.size,
		buf:       e.buf,
	}
	sort.Sort(&entrySorter{m: m, scratch: make([]byte, e.entrySize)})
	e.buf = nil
	e.size = 0
	return m
}

// RowWriter writes one row's fields in order. Writing past the row width
// indicates a field-layout bug and panics.
type RowWriter struct {
	buf    []byte
	off    int
	end    int
	idSize int
}

func (w *RowWriter) writeTruncated(value uint64, n int) {
	if w.off+n > w.end {
		panic(fmt.Sprintf("row overflow: writing %d bytes at offset %d of %d", n, w.off, w.end))
	}
	for i := n - 1; i >= 0; i-- {
		w.buf[w.off+i] = byte(value)
		value >>= 8
	}
	w.off += n
}

// AppendID writes an identifier using the store's identifier width.
func (w *RowWriter) AppendID(id uint64) {
	w.writeTruncated(id, w.idSize)
}

// AppendUint32 writes a 32-bit big-endian value.
func (w *RowWriter) AppendUint32(value uint32) {
	w.writeTruncated(uint64(value), 4)
}

// AppendByte writes a single byte.
func (w *RowWriter) AppendByte(value byte) {
	w.writeTruncated(uint64(value), 1)
}

// AppendTruncated writes the low n bytes of value big-endian. The caller
// guarantees value fits in n bytes.
func (w *RowWriter) AppendTruncated(value uint64, n int) {
	w.writeTruncated(value, n)
}

// SortedBytesMap is the frozen, read-only phase of a packed store. Entries
// are sorted by identifier; lookups are ~log2(N) comparisons against the
// inline identifier prefixes.
type SortedBytesMap struct {
	idSize    int
	rowSize   int
	entrySize int
	size      int
	buf       []byte
}

// Size returns the number of entries.
func (m *SortedBytesMap) Size() int {
	return m.size
}

// keyAtOffset decodes the identifier stored at byte offset off.
func (m *SortedBytesMap) keyAtOffset(off int) uint64 {
	if m.idSize == 4 {
		return uint64(binary.BigEndian.Uint32(m.buf[off:]))
	}
	return binary.BigEndian.Uint64(m.buf[off:])
}

// KeyAt returns the identifier at slot i.
func (m *SortedBytesMap) KeyAt(i int) uint64 {
	return m.keyAtOffset(i * m.entrySize)
}

// IndexOf binary-searches for id. It returns the slot on a hit and
// -(insertionPoint+1) on a miss, mirroring the usual sorted-array contract.
func (m *SortedBytesMap) IndexOf(id uint64) int {
	lo, hi := 0, m.size-1
	for lo <= hi {
		mid := (lo + hi) >> 1
		k := m.KeyAt(mid)
		switch {
		case k < id:
			lo = mid + 1
		case k > id:
			hi = mid - 1
		default:
			return mid
		}
	}
	return -(lo + 1)
}

// Contains reports whether id has an entry.
func (m *SortedBytesMap) Contains(id uint64) bool {
	return m.IndexOf(id) >= 0
}

// GetAtIndex returns a reader over the row at slot i. Fields must be read
// in the order they were written.
func (m *SortedBytesMap) GetAtIndex(i int) *RowReader {
	off := i*m.entrySize + m.idSize
	return &RowReader{buf: m.buf[off : off+m.rowSize], idSize: m.idSize}
}

// Get returns a reader for id's row, or nil when id is absent.
func (m *SortedBytesMap) Get(id uint64) *RowReader {
	i := m.IndexOf(id)
	if i < 0 {
		return nil
	}
	return m.GetAtIndex(i)
}

// IterateEntries calls fn for each entry in ascending identifier order
// until fn returns false.
func (m *SortedBytesMap) IterateEntries(fn func(id uint64, row *RowReader) bool) {
	for i := 0; i < m.size; i++ {
		if !fn(m.KeyAt(i), m.GetAtIndex(i)) {
			return
		}
	}
}

// entrySorter sorts the packed buffer in place by identifier prefix,
// swapping whole entries through a single scratch buffer.
type entrySorter struct {
	m       *SortedBytesMap
	scratch []byte
}

func (s *entrySorter) Len() int { return s.m.size }

func (s *entrySorter) Less(i, j int) bool {
	return s.m.keyAtOffset(i*s.m.entrySize) < s.m.keyAtOffset(j*s.m.entrySize)
}

func (s *entrySorter) Swap(i, j int) {
	entrySize := s.m.entrySize
	a := s.m.buf[i*entrySize : (i+1)*entrySize]
	b := s.m.buf[j*entrySize : (j+1)*entrySize]
	copy(s.scratch, a)
	copy(a, b)
	copy(b, s.scratch)
}

// RowReader reads one row's fields in the order they were written.
type RowReader struct {
	buf    []byte
	off    int
	idSize int
}

// ReadID reads an identifier using the store's identifier width.
func (r *RowReader) ReadID() uint64 {
	return r.ReadTruncated(r.idSize)
}

// ReadUint32 reads a 32-bit big-endian value.
func (r *RowReader) ReadUint32() uint32 {
	return uint32(r.ReadTruncated(4))
}

// ReadByte reads a single byte.
func (r *RowReader) ReadByte() byte {
	return byte(r.ReadTruncated(1))
}

// ReadTruncated reads an n-byte big-endian unsigned value.
func (r *RowReader) ReadTruncated(n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v = v<<8 | uint64(r.buf[r.off+i])
	}
	r.off += n
	return v
}
