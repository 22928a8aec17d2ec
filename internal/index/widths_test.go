package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heap-analysis/internal/hprof"
)

func TestByteSizeForUnsigned(t *testing.T) {
	tests := []struct {
		value    uint64
		expected int
	}{
		{0, 0},
		{1, 1},
		{0xFF, 1},
		{0x100, 2},
		{0xFFFF, 2},
		{0x10000, 3},
		{0xFFFFFF, 3},
		{0x1000000, 4},
		{0xFFFFFFFF, 4},
		{0x100000000, 5},
		{0xFFFFFFFFFFFFFF, 7},
		{0x100000000000000, 8},
		{0xFFFFFFFFFFFFFFFF, 8},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ByteSizeForUnsigned(tt.value), "value 0x%x", tt.value)
	}
}

// TestByteSizeForUnsigned_Minimality checks the width-minimality property:
// n bytes hold exactly the values below 2^(8n).
func TestByteSizeForUnsigned_Minimality(t *testing.T) {
	for n := 1; n <= 7; n++ {
		boundary := uint64(1) << uint(8*n)
		assert.Equal(t, n, ByteSizeForUnsigned(boundary-1), "2^(8*%d)-1", n)
		assert.Equal(t, n+1, ByteSizeForUnsigned(boundary), "2^(8*%d)", n)
	}
}

func TestComputeWidths(t *testing.T) {
	reader := &fakeReader{
		header: &hprof.Header{Version: hprof.VersionJDK122, IDSize: 8},
		records: []scriptedRecord{
			{pos: 100, rec: hprof.ClassSkipContentRecord{ID: 1, RecordSize: 0x3F}},
			{pos: 200, rec: hprof.ClassSkipContentRecord{ID: 2, RecordSize: 0x20}},
			{pos: 300, rec: hprof.InstanceSkipContentRecord{ID: 3, RecordSize: 0x1234}},
			{pos: 400, rec: hprof.ObjectArraySkipContentRecord{ID: 4, RecordSize: 0x10000}},
			{pos: 500, rec: hprof.PrimitiveArraySkipContentRecord{ID: 5, RecordSize: 9}},
			{pos: 600, rec: hprof.PrimitiveArraySkipContentRecord{ID: 6, RecordSize: 0xFF}},
		},
		totalBytes: 0x1FFFF,
	}

	w, err := ComputeWidths(context.Background(), reader)
	require.NoError(t, err)

	assert.Equal(t, 2, w.ClassCount)
	assert.Equal(t, 1, w.InstanceCount)
	assert.Equal(t, 1, w.ObjectArrayCount)
	assert.Equal(t, 2, w.PrimitiveArrayCount)

	assert.Equal(t, uint64(0x3F), w.MaxClassSize)
	assert.Equal(t, uint64(0x1234), w.MaxInstanceSize)
	assert.Equal(t, uint64(0x10000), w.MaxObjectArraySize)
	assert.Equal(t, uint64(0xFF), w.MaxPrimitiveArraySize)
	assert.Equal(t, uint64(0x1FFFF), w.TotalBytesRead)

	assert.Equal(t, 3, w.BytesForPosition)
	assert.Equal(t, 1, w.BytesForClassSize)
	assert.Equal(t, 2, w.BytesForInstanceSize)
	assert.Equal(t, 3, w.BytesForObjectArraySize)
	assert.Equal(t, 1, w.BytesForPrimitiveArraySize)

	// 0x3F leaves the top bit of one byte free.
	assert.True(t, w.UseClassSizeHighBit)
}

func TestComputeWidths_HighBitTaken(t *testing.T) {
	reader := &fakeReader{
		header: &hprof.Header{Version: hprof.VersionJDK122, IDSize: 8},
		records: []scriptedRecord{
			{pos: 10, rec: hprof.ClassSkipContentRecord{ID: 1, RecordSize: 0x80}},
		},
		totalBytes: 1000,
	}

	w, err := ComputeWidths(context.Background(), reader)
	require.NoError(t, err)
	assert.Equal(t, 1, w.BytesForClassSize)
	assert.False(t, w.UseClassSizeHighBit)
}

func TestComputeWidths_EmptyDump(t *testing.T) {
	reader := &fakeReader{
		header:     &hprof.Header{Version: hprof.VersionJDK122, IDSize: 8},
		totalBytes: 31,
	}

	w, err := ComputeWidths(context.Background(), reader)
	require.NoError(t, err)
	assert.Zero(t, w.ClassCount)
	assert.Equal(t, 0, w.BytesForClassSize)
	assert.Equal(t, 1, w.BytesForPosition)
	assert.False(t, w.UseClassSizeHighBit)
}
