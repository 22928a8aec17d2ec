package index

import (
	"context"

	"github.com/heap-analysis/internal/hprof"
)

// RecordReader is the streaming source the index builder consumes. It may
// be invoked multiple times on the same dump; each invocation re-reads
// from the start. *hprof.StreamReader satisfies it.
type RecordReader interface {
	// Header returns the dump header.
	Header() *hprof.Header
	// ReadRecords scans the dump, invoking onRecord once per record whose
	// kind is in kinds, and returns the total number of bytes read.
	ReadRecords(ctx context.Context, kinds hprof.RecordKindSet, onRecord hprof.RecordHandler) (uint64, error)
}

// ByteSizeForUnsigned returns the minimum number of bytes needed to hold
// value, in [0, 8].
func ByteSizeForUnsigned(value uint64) int {
	n := 0
	for value != 0 {
		value >>= 8
		n++
	}
	return n
}

// RecordWidths holds the per-kind counts and the derived field widths from
// the width-selection pass. Knowing each kind's maximum record size and
// the maximum file position lets the index pass pack rows at the minimum
// width instead of a fixed 8-bytes-per-field layout.
type RecordWidths struct {
	ClassCount          int
	InstanceCount       int
	ObjectArrayCount    int
	PrimitiveArrayCount int

	MaxClassSize          uint64
	MaxInstanceSize       uint64
	MaxObjectArraySize    uint64
	MaxPrimitiveArraySize uint64

	// TotalBytesRead is the dump length, the maximum position any record
	// can have.
	TotalBytesRead uint64

	BytesForPosition           int
	BytesForClassSize          int
	BytesForInstanceSize       int
	BytesForObjectArraySize    int
	BytesForPrimitiveArraySize int

	// UseClassSizeHighBit is true when the largest class record size
	// leaves the top bit of its minimal encoding free, so that bit can
	// carry the has-reference-fields flag and save one byte per class row.
	UseClassSizeHighBit bool
}

// classSizeHighBit returns the reusable top bit of the packed class size
// field, or 0 when packing is off.
func (w *RecordWidths) classSizeHighBit() uint64 {
	if !w.UseClassSizeHighBit {
		return 0
	}
	return 1 << uint(8*w.BytesForClassSize-1)
}

// ComputeWidths streams the dump's skip-content records once, tallying
// counts and maxima, and derives the minimal field widths.
func ComputeWidths(ctx context.Context, reader RecordReader) (*RecordWidths, error) {
	w := &RecordWidths{}

	total, err := reader.ReadRecords(ctx, hprof.SkipContentKinds(), func(pos uint64, rec hprof.Record) {
		switch r := rec.(type) {
		case hprof.ClassSkipContentRecord:
			w.ClassCount++
			if r.RecordSize > w.MaxClassSize {
				w.MaxClassSize = r.RecordSize
			}
		case hprof.InstanceSkipContentRecord:
			w.InstanceCount++
			if r.RecordSize > w.MaxInstanceSize {
				w.MaxInstanceSize = r.RecordSize
			}
		case hprof.ObjectArraySkipContentRecord:
			w.ObjectArrayCount++
			if r.RecordSize > w.MaxObjectArraySize {
				w.MaxObjectArraySize = r.RecordSize
			}
		case hprof.PrimitiveArraySkipContentRecord:
			w.PrimitiveArrayCount++
			if r.RecordSize > w.MaxPrimitiveArraySize {
				w.MaxPrimitiveArraySize = r.RecordSize
			}
		}
	})
	if err != nil {
		return nil, err
	}

	w.TotalBytesRead = total
	w.BytesForPosition = ByteSizeForUnsigned(total)
	w.BytesForClassSize = ByteSizeForUnsigned(w.MaxClassSize)
	w.BytesForInstanceSize = ByteSizeForUnsigned(w.MaxInstanceSize)
	w.BytesForObjectArraySize = ByteSizeForUnsigned(w.MaxObjectArraySize)
	w.BytesForPrimitiveArraySize = ByteSizeForUnsigned(w.MaxPrimitiveArraySize)

	if w.BytesForClassSize > 0 {
		highBit := uint64(1) << uint(8*w.BytesForClassSize-1)
		w.UseClassSizeHighBit = w.MaxClassSize&highBit == 0
	}

	return w, nil
}
