package hprof_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heap-analysis/internal/hprof"
	"github.com/heap-analysis/internal/testutil"
)

func collectRecords(t *testing.T, dump []byte, kinds hprof.RecordKindSet) (positions []uint64, records []hprof.Record, total uint64) {
	t.Helper()

	stream, err := hprof.NewStreamReader(bytes.NewReader(dump))
	require.NoError(t, err)

	total, err = stream.ReadRecords(context.Background(), kinds, func(pos uint64, rec hprof.Record) {
		positions = append(positions, pos)
		records = append(records, rec)
	})
	require.NoError(t, err)
	return positions, records, total
}

func TestStreamReader_EmptyDump(t *testing.T) {
	dump := testutil.NewDefaultDumpBuilder().Bytes()

	_, records, total := collectRecords(t, dump, hprof.IndexedKinds())
	assert.Empty(t, records)
	assert.Equal(t, uint64(len(dump)), total)
}

func TestStreamReader_StringAndLoadClass(t *testing.T) {
	dump := testutil.NewDefaultDumpBuilder().
		AddString(1, "java.lang.Object").
		AddLoadClass(100, 1).
		Bytes()

	_, records, _ := collectRecords(t, dump, hprof.KindSetOf(hprof.KindString, hprof.KindLoadClass))
	require.Len(t, records, 2)

	str, ok := records[0].(hprof.StringRecord)
	require.True(t, ok)
	assert.Equal(t, uint64(1), str.ID)
	assert.Equal(t, "java.lang.Object", string(str.Bytes))

	lc, ok := records[1].(hprof.LoadClassRecord)
	require.True(t, ok)
	assert.Equal(t, uint64(100), lc.ClassID)
	assert.Equal(t, uint64(1), lc.ClassNameStringID)
}

func TestStreamReader_SkipContentRecords(t *testing.T) {
	dump := testutil.NewDefaultDumpBuilder().
		AddClassDump(100, 0, 24, hprof.TypeObject, hprof.TypeInt).
		AddInstanceDump(200, 100, []byte{1, 2, 3, 4}).
		AddObjectArrayDump(300, 101, 200, 0, 200).
		AddPrimitiveArrayDump(400, hprof.TypeLong, 3).
		Bytes()

	positions, records, _ := collectRecords(t, dump, hprof.SkipContentKinds())
	require.Len(t, records, 4)

	cls, ok := records[0].(hprof.ClassSkipContentRecord)
	require.True(t, ok)
	assert.Equal(t, uint64(100), cls.ID)
	assert.Equal(t, uint64(0), cls.SuperclassID)
	assert.Equal(t, uint32(24), cls.InstanceSize)
	assert.True(t, cls.HasRefFields)

	inst, ok := records[1].(hprof.InstanceSkipContentRecord)
	require.True(t, ok)
	assert.Equal(t, uint64(200), inst.ID)
	assert.Equal(t, uint64(100), inst.ClassID)
	// tag + id + stack serial + class id + data length + data
	assert.Equal(t, uint64(1+8+4+8+4+4), inst.RecordSize)

	arr, ok := records[2].(hprof.ObjectArraySkipContentRecord)
	require.True(t, ok)
	assert.Equal(t, uint64(300), arr.ID)
	assert.Equal(t, uint64(101), arr.ArrayClassID)
	assert.Equal(t, uint64(1+8+4+4+8+3*8), arr.RecordSize)

	prim, ok := records[3].(hprof.PrimitiveArraySkipContentRecord)
	require.True(t, ok)
	assert.Equal(t, uint64(400), prim.ID)
	assert.Equal(t, hprof.TypeLong, prim.Type)
	assert.Equal(t, uint64(1+8+4+4+1+3*8), prim.RecordSize)

	// Positions plus record sizes chain each record to the next.
	assert.Equal(t, positions[1], positions[0]+cls.RecordSize)
	assert.Equal(t, positions[2], positions[1]+inst.RecordSize)
	assert.Equal(t, positions[3], positions[2]+arr.RecordSize)
}

func TestStreamReader_ClassWithoutRefFields(t *testing.T) {
	dump := testutil.NewDefaultDumpBuilder().
		AddClassDump(100, 0, 8, hprof.TypeInt, hprof.TypeBoolean).
		Bytes()

	_, records, _ := collectRecords(t, dump, hprof.SkipContentKinds())
	require.Len(t, records, 1)
	cls := records[0].(hprof.ClassSkipContentRecord)
	assert.False(t, cls.HasRefFields)
}

func TestStreamReader_Roots(t *testing.T) {
	dump := testutil.NewDefaultDumpBuilder().
		AddRoot(hprof.RootJNIGlobal, 10).
		AddRoot(hprof.RootJavaFrame, 11).
		AddRoot(hprof.RootStickyClass, 12).
		AddRoot(hprof.RootThreadObject, 13).
		Bytes()

	_, records, _ := collectRecords(t, dump, hprof.KindSetOf(hprof.KindGcRoot))
	require.Len(t, records, 4)

	kinds := make([]hprof.RootKind, 0, 4)
	ids := make([]uint64, 0, 4)
	for _, rec := range records {
		root := rec.(hprof.GcRootRecord).Root
		kinds = append(kinds, root.Kind)
		ids = append(ids, root.ObjectID)
	}
	assert.Equal(t, []hprof.RootKind{
		hprof.RootJNIGlobal, hprof.RootJavaFrame,
		hprof.RootStickyClass, hprof.RootThreadObject,
	}, kinds)
	assert.Equal(t, []uint64{10, 11, 12, 13}, ids)
}

func TestStreamReader_FilterSelectsKinds(t *testing.T) {
	dump := testutil.NewDefaultDumpBuilder().
		AddString(1, "java.lang.Object").
		AddLoadClass(100, 1).
		AddClassDump(100, 0, 0).
		AddInstanceDump(200, 100, nil).
		AddRoot(hprof.RootStickyClass, 100).
		Bytes()

	_, records, _ := collectRecords(t, dump, hprof.KindSetOf(hprof.KindInstanceSkipContent))
	require.Len(t, records, 1)
	assert.IsType(t, hprof.InstanceSkipContentRecord{}, records[0])
}

func TestStreamReader_RereadsFromStart(t *testing.T) {
	dump := testutil.NewDefaultDumpBuilder().
		AddClassDump(100, 0, 0).
		AddInstanceDump(200, 100, []byte{0xFF}).
		Bytes()

	stream, err := hprof.NewStreamReader(bytes.NewReader(dump))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		count := 0
		total, err := stream.ReadRecords(context.Background(), hprof.SkipContentKinds(), func(pos uint64, rec hprof.Record) {
			count++
		})
		require.NoError(t, err)
		assert.Equal(t, 2, count, "pass %d", i)
		assert.Equal(t, uint64(len(dump)), total)
	}
}

func TestStreamReader_FourByteIdentifiers(t *testing.T) {
	dump := testutil.NewDumpBuilder(hprof.VersionJDK122, 4).
		AddClassDump(100, 0, 16, hprof.TypeObject).
		AddInstanceDump(200, 100, []byte{9, 9}).
		Bytes()

	stream, err := hprof.NewStreamReader(bytes.NewReader(dump))
	require.NoError(t, err)
	assert.Equal(t, 4, stream.Header().IDSize)

	var records []hprof.Record
	_, err = stream.ReadRecords(context.Background(), hprof.SkipContentKinds(), func(pos uint64, rec hprof.Record) {
		records = append(records, rec)
	})
	require.NoError(t, err)
	require.Len(t, records, 2)

	inst := records[1].(hprof.InstanceSkipContentRecord)
	assert.Equal(t, uint64(1+4+4+4+4+2), inst.RecordSize)
}

func TestStreamReader_ContextCancellation(t *testing.T) {
	dump := testutil.NewDefaultDumpBuilder().
		AddString(1, "x").
		Bytes()

	stream, err := hprof.NewStreamReader(bytes.NewReader(dump))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = stream.ReadRecords(ctx, hprof.IndexedKinds(), func(pos uint64, rec hprof.Record) {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamReader_AndroidHeader(t *testing.T) {
	dump := testutil.NewDumpBuilder(hprof.VersionAndroid, 8).Bytes()

	stream, err := hprof.NewStreamReader(bytes.NewReader(dump))
	require.NoError(t, err)
	assert.Equal(t, hprof.VersionAndroid, stream.Header().Version)
	assert.False(t, stream.Header().Version.UsesSlashPackageSeparator())
}
