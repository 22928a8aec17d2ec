package index

import (
	"context"
	"fmt"

	"github.com/heap-analysis/internal/hprof"
	"github.com/heap-analysis/pkg/collections"
	"github.com/heap-analysis/pkg/utils"
)

// primitiveWrapperNames are the eight boxed-primitive class names, in the
// form they appear in the dump's string table.
var primitiveWrapperNames = map[string]bool{
	"java.lang.Boolean":   true,
	"java.lang.Byte":      true,
	"java.lang.Character": true,
	"java.lang.Short":     true,
	"java.lang.Integer":   true,
	"java.lang.Long":      true,
	"java.lang.Float":     true,
	"java.lang.Double":    true,
	// JVM dumps intern class names with '/' separators.
	"java/lang/Boolean":   true,
	"java/lang/Byte":      true,
	"java/lang/Character": true,
	"java/lang/Short":     true,
	"java/lang/Integer":   true,
	"java/lang/Long":      true,
	"java/lang/Float":     true,
	"java/lang/Double":    true,
}

// Options configures an index build.
type Options struct {
	// RootKinds selects which GC root variants are retained. Nil means
	// all kinds.
	RootKinds []hprof.RootKind

	// Mapper translates obfuscated names at query time. Nil means
	// identity.
	Mapper NameMapper

	// Logger receives build progress and timing. Nil suppresses logging.
	Logger utils.Logger
}

// Build streams the dump twice and produces the frozen index: a first
// sweep sizes the per-field byte widths (ComputeWidths), a second sweep
// fills the four per-kind stores plus the string and class-name tables.
//
// The builder is single-threaded and owns all intermediate buffers; on
// success their ownership moves into the returned Index without copying.
// On error no partial index is exposed.
func Build(ctx context.Context, reader RecordReader, opts *Options) (*Index, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	timer := utils.NewTimer("Index Build", utils.WithLogger(logger), utils.WithEnabled(logger != nil))

	header := reader.Header()

	pt := timer.Start("Width pass")
	widths, err := ComputeWidths(ctx, reader)
	pt.Stop()
	if err != nil {
		return nil, fmt.Errorf("width pass failed: %w", err)
	}

	if logger != nil {
		logger.Debug("widths: %d classes, %d instances, %d object arrays, %d primitive arrays, position width %d",
			widths.ClassCount, widths.InstanceCount, widths.ObjectArrayCount,
			widths.PrimitiveArrayCount, widths.BytesForPosition)
	}

	b := newBuilder(header, widths, opts)

	pt = timer.Start("Index pass")
	_, err = reader.ReadRecords(ctx, hprof.IndexedKinds(), b.onRecord)
	pt.Stop()
	if err != nil {
		return nil, fmt.Errorf("index pass failed: %w", err)
	}

	var idx *Index
	timer.TimeFunc("Sort and freeze", func() {
		idx = b.moveToIndex()
	})
	timer.PrintSummary()

	return idx, nil
}

// builder accumulates the index pass state. It is consumed by moveToIndex.
type builder struct {
	header *hprof.Header
	widths *RecordWidths
	mapper NameMapper

	classEntries          *UnsortedByteEntries
	instanceEntries       *UnsortedByteEntries
	objectArrayEntries    *UnsortedByteEntries
	primitiveArrayEntries *UnsortedByteEntries

	strings    *collections.LongObjectMap[string]
	classNames *collections.LongLongMap

	// wrapperNameIDs holds string IDs matching a boxed-primitive class
	// name. It bridges string records to load-class records and is
	// discarded after the pass.
	wrapperNameIDs  *collections.LongSet
	wrapperClasses  *collections.LongSet
	roots           []hprof.GcRoot
	wantedRootKinds map[hprof.RootKind]bool // nil means all
}

func newBuilder(header *hprof.Header, widths *RecordWidths, opts *Options) *builder {
	idSize := header.IDSize

	classRow := widths.BytesForPosition + idSize + 4 + widths.BytesForClassSize
	if !widths.UseClassSizeHighBit {
		classRow++ // separate has-reference-fields flag byte
	}
	instanceRow := widths.BytesForPosition + idSize + widths.BytesForInstanceSize
	objectArrayRow := widths.BytesForPosition + idSize + widths.BytesForObjectArraySize
	primitiveArrayRow := widths.BytesForPosition + 1 + widths.BytesForPrimitiveArraySize

	var wanted map[hprof.RootKind]bool
	if opts.RootKinds != nil {
		wanted = make(map[hprof.RootKind]bool, len(opts.RootKinds))
		for _, k := range opts.RootKinds {
			wanted[k] = true
		}
	}

	return &builder{
		header:                header,
		widths:                widths,
		mapper:                opts.Mapper,
		classEntries:          NewUnsortedByteEntries(classRow, idSize, widths.ClassCount),
		instanceEntries:       NewUnsortedByteEntries(instanceRow, idSize, widths.InstanceCount),
		objectArrayEntries:    NewUnsortedByteEntries(objectArrayRow, idSize, widths.ObjectArrayCount),
		primitiveArrayEntries: NewUnsortedByteEntries(primitiveArrayRow, idSize, widths.PrimitiveArrayCount),
		strings:               collections.NewLongObjectMap[string](),
		classNames:            collections.NewLongLongMapWithCapacity(widths.ClassCount),
		wrapperNameIDs:        collections.NewLongSet(),
		wrapperClasses:        collections.NewLongSet(),
		wantedRootKinds:       wanted,
	}
}

// onRecord dispatches one record of the index pass.
func (b *builder) onRecord(pos uint64, rec hprof.Record) {
	switch r := rec.(type) {
	case hprof.StringRecord:
		s := string(r.Bytes)
		b.strings.Put(r.ID, s)
		if primitiveWrapperNames[s] {
			b.wrapperNameIDs.Add(r.ID)
		}

	case hprof.LoadClassRecord:
		b.classNames.Put(r.ClassID, r.ClassNameStringID)
		if b.wrapperNameIDs.Contains(r.ClassNameStringID) {
			b.wrapperClasses.Add(r.ClassID)
		}

	case hprof.GcRootRecord:
		root := r.Root
		if root.ObjectID == 0 {
			return
		}
		if b.wantedRootKinds != nil && !b.wantedRootKinds[root.Kind] {
			return
		}
		b.roots = append(b.roots, root)

	case hprof.ClassSkipContentRecord:
		w := b.classEntries.Append(r.ID)
		w.AppendTruncated(pos, b.widths.BytesForPosition)
		w.AppendID(r.SuperclassID)
		w.AppendUint32(r.InstanceSize)
		if b.widths.UseClassSizeHighBit {
			packed := r.RecordSize
			if r.HasRefFields {
				packed |= b.widths.classSizeHighBit()
			}
			w.AppendTruncated(packed, b.widths.BytesForClassSize)
		} else {
			w.AppendTruncated(r.RecordSize, b.widths.BytesForClassSize)
			flag := byte(0)
			if r.HasRefFields {
				flag = 1
			}
			w.AppendByte(flag)
		}

	case hprof.InstanceSkipContentRecord:
		w := b.instanceEntries.Append(r.ID)
		w.AppendTruncated(pos, b.widths.BytesForPosition)
		w.AppendID(r.ClassID)
		w.AppendTruncated(r.RecordSize, b.widths.BytesForInstanceSize)

	case hprof.ObjectArraySkipContentRecord:
		w := b.objectArrayEntries.Append(r.ID)
		w.AppendTruncated(pos, b.widths.BytesForPosition)
		w.AppendID(r.ArrayClassID)
		w.AppendTruncated(r.RecordSize, b.widths.BytesForObjectArraySize)

	case hprof.PrimitiveArraySkipContentRecord:
		w := b.primitiveArrayEntries.Append(r.ID)
		w.AppendTruncated(pos, b.widths.BytesForPosition)
		w.AppendByte(byte(r.Type))
		w.AppendTruncated(r.RecordSize, b.widths.BytesForPrimitiveArraySize)
	}
}

// moveToIndex freezes the stores and transfers ownership to the façade.
// The transient wrapper-name-ID set is dropped here.
func (b *builder) moveToIndex() *Index {
	return &Index{
		header:            b.header,
		widths:            b.widths,
		mapper:            b.mapper,
		classes:           b.classEntries.MoveToSortedMap(),
		instances:         b.instanceEntries.MoveToSortedMap(),
		objectArrays:      b.objectArrayEntries.MoveToSortedMap(),
		primitiveArrays:   b.primitiveArrayEntries.MoveToSortedMap(),
		strings:           b.strings,
		classNames:        b.classNames,
		primitiveWrappers: b.wrapperClasses,
		roots:             b.roots,
	}
}
