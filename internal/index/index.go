package index

import (
	"strings"

	"github.com/heap-analysis/internal/hprof"
	"github.com/heap-analysis/pkg/collections"
	apperrors "github.com/heap-analysis/pkg/errors"
)

// IndexedObject is the decoded form of one per-object store entry.
type IndexedObject interface {
	indexedObject()
}

// IndexedClass is a class store entry.
type IndexedClass struct {
	Position     uint64
	SuperclassID uint64
	InstanceSize uint32
	RecordSize   uint64
	HasRefFields bool
}

func (IndexedClass) indexedObject() {}

// IndexedInstance is an instance store entry.
type IndexedInstance struct {
	Position   uint64
	ClassID    uint64
	RecordSize uint64
}

func (IndexedInstance) indexedObject() {}

// IndexedObjectArray is an object array store entry.
type IndexedObjectArray struct {
	Position     uint64
	ArrayClassID uint64
	RecordSize   uint64
}

func (IndexedObjectArray) indexedObject() {}

// IndexedPrimitiveArray is a primitive array store entry.
type IndexedPrimitiveArray struct {
	Position   uint64
	Type       hprof.PrimitiveType
	RecordSize uint64
}

func (IndexedPrimitiveArray) indexedObject() {}

// Index is the finished, read-only heap index. All methods are pure
// functions of its immutable state; there is no lifecycle after
// construction. Instances are created by Build.
//
// Dense slots give every indexed object a stable position in a total order
// across kinds: class slots first, then instances, then object arrays,
// then primitive arrays. Slots are 1-based in both directions; slot 0 is
// reserved.
type Index struct {
	header *hprof.Header
	widths *RecordWidths
	mapper NameMapper

	classes         *SortedBytesMap
	instances       *SortedBytesMap
	objectArrays    *SortedBytesMap
	primitiveArrays *SortedBytesMap

	strings           *collections.LongObjectMap[string]
	classNames        *collections.LongLongMap
	primitiveWrappers *collections.LongSet
	roots             []hprof.GcRoot
}

// ClassCount returns the number of indexed classes.
func (x *Index) ClassCount() int { return x.classes.Size() }

// InstanceCount returns the number of indexed instances.
func (x *Index) InstanceCount() int { return x.instances.Size() }

// ObjectArrayCount returns the number of indexed object arrays.
func (x *Index) ObjectArrayCount() int { return x.objectArrays.Size() }

// PrimitiveArrayCount returns the number of indexed primitive arrays.
func (x *Index) PrimitiveArrayCount() int { return x.primitiveArrays.Size() }

// ObjectCount returns the total number of indexed objects across kinds.
func (x *Index) ObjectCount() int {
	return x.classes.Size() + x.instances.Size() + x.objectArrays.Size() + x.primitiveArrays.Size()
}

// stringByID resolves an interned string. A missing string is a producer
// bug, reported as an invariant violation.
func (x *Index) stringByID(id uint64) (string, error) {
	s, ok := x.strings.Get(id)
	if !ok {
		return "", apperrors.Newf(apperrors.CodeInvariantViolation, "string 0x%x not in string table", id)
	}
	return s, nil
}

// ClassName resolves the name of classID: class-name table, string table,
// optional deobfuscation, then package-separator rewriting for dumps that
// intern names with '/'.
func (x *Index) ClassName(classID uint64) (string, error) {
	nameID, ok := x.classNames.Get(classID)
	if !ok {
		return "", apperrors.Newf(apperrors.CodeInvariantViolation, "class 0x%x not in class-name table", classID)
	}
	name, err := x.stringByID(nameID)
	if err != nil {
		return "", err
	}
	if x.mapper != nil {
		name = x.mapper.DeobfuscateClassName(name)
	}
	if x.header.Version.UsesSlashPackageSeparator() {
		name = strings.ReplaceAll(name, "/", ".")
	}
	return name, nil
}

// FieldName resolves a field name string in the context of its declaring
// class, applying the optional deobfuscation mapping.
func (x *Index) FieldName(classID, fieldNameStringID uint64) (string, error) {
	name, err := x.stringByID(fieldNameStringID)
	if err != nil {
		return "", err
	}
	if x.mapper == nil {
		return name, nil
	}
	className, err := x.ClassName(classID)
	if err != nil {
		return "", err
	}
	return x.mapper.DeobfuscateFieldName(className, name), nil
}

// ClassID reverse-looks-up a class by its resolved name. This is a linear
// scan over the string table and the class-name table; it is not meant for
// hot paths.
func (x *Index) ClassID(className string) (uint64, bool) {
	var nameID uint64
	found := false
	x.strings.Iterate(func(id uint64, s string) bool {
		if x.mapper != nil {
			s = x.mapper.DeobfuscateClassName(s)
		}
		if x.header.Version.UsesSlashPackageSeparator() {
			s = strings.ReplaceAll(s, "/", ".")
		}
		if s == className {
			nameID = id
			found = true
			return false
		}
		return true
	})
	if !found {
		return 0, false
	}

	var classID uint64
	found = false
	x.classNames.Iterate(func(id, sid uint64) bool {
		if sid == nameID {
			classID = id
			found = true
			return false
		}
		return true
	})
	return classID, found
}

// ObjectIDIsIndexed reports whether id is present in any of the four
// per-kind stores.
func (x *Index) ObjectIDIsIndexed(id uint64) bool {
	return x.classes.Contains(id) ||
		x.instances.Contains(id) ||
		x.objectArrays.Contains(id) ||
		x.primitiveArrays.Contains(id)
}

// IndexedObjectByID looks id up across the stores in kind order and
// returns its dense slot and decoded entry. The miss case is expected and
// reported via ok.
func (x *Index) IndexedObjectByID(id uint64) (denseSlot int, obj IndexedObject, ok bool) {
	if i := x.classes.IndexOf(id); i >= 0 {
		return 1 + i, x.decodeClass(x.classes.GetAtIndex(i)), true
	}
	if i := x.instances.IndexOf(id); i >= 0 {
		return 1 + x.classes.Size() + i, x.decodeInstance(x.instances.GetAtIndex(i)), true
	}
	if i := x.objectArrays.IndexOf(id); i >= 0 {
		return 1 + x.classes.Size() + x.instances.Size() + i,
			x.decodeObjectArray(x.objectArrays.GetAtIndex(i)), true
	}
	if i := x.primitiveArrays.IndexOf(id); i >= 0 {
		return 1 + x.classes.Size() + x.instances.Size() + x.objectArrays.Size() + i,
			x.decodePrimitiveArray(x.primitiveArrays.GetAtIndex(i)), true
	}
	return 0, nil, false
}

// ObjectAtIndex is the inverse of IndexedObjectByID. denseSlot must be in
// [1, ObjectCount()]; anything else is a caller bug.
func (x *Index) ObjectAtIndex(denseSlot int) (uint64, IndexedObject, error) {
	if denseSlot < 1 || denseSlot > x.ObjectCount() {
		return 0, nil, apperrors.Newf(apperrors.CodeInvariantViolation,
			"dense slot %d out of range [1, %d]", denseSlot, x.ObjectCount())
	}

	i := denseSlot - 1
	if i < x.classes.Size() {
		return x.classes.KeyAt(i), x.decodeClass(x.classes.GetAtIndex(i)), nil
	}
	i -= x.classes.Size()
	if i < x.instances.Size() {
		return x.instances.KeyAt(i), x.decodeInstance(x.instances.GetAtIndex(i)), nil
	}
	i -= x.instances.Size()
	if i < x.objectArrays.Size() {
		return x.objectArrays.KeyAt(i), x.decodeObjectArray(x.objectArrays.GetAtIndex(i)), nil
	}
	i -= x.objectArrays.Size()
	return x.primitiveArrays.KeyAt(i), x.decodePrimitiveArray(x.primitiveArrays.GetAtIndex(i)), nil
}

// IterateIndexedClasses yields class entries in ascending identifier order
// until fn returns false.
func (x *Index) IterateIndexedClasses(fn func(id uint64, entry IndexedClass) bool) {
	x.classes.IterateEntries(func(id uint64, row *RowReader) bool {
		return fn(id, x.decodeClass(row))
	})
}

// IterateIndexedInstances yields instance entries in ascending identifier
// order until fn returns false.
func (x *Index) IterateIndexedInstances(fn func(id uint64, entry IndexedInstance) bool) {
	x.instances.IterateEntries(func(id uint64, row *RowReader) bool {
		return fn(id, x.decodeInstance(row))
	})
}

// IterateIndexedObjectArrays yields object array entries in ascending
// identifier order until fn returns false.
func (x *Index) IterateIndexedObjectArrays(fn func(id uint64, entry IndexedObjectArray) bool) {
	x.objectArrays.IterateEntries(func(id uint64, row *RowReader) bool {
		return fn(id, x.decodeObjectArray(row))
	})
}

// IterateIndexedPrimitiveArrays yields primitive array entries in
// ascending identifier order until fn returns false.
func (x *Index) IterateIndexedPrimitiveArrays(fn func(id uint64, entry IndexedPrimitiveArray) bool) {
	x.primitiveArrays.IterateEntries(func(id uint64, row *RowReader) bool {
		return fn(id, x.decodePrimitiveArray(row))
	})
}

// IterateIndexedObjects yields every indexed object in dense-slot order:
// classes, then instances, then object arrays, then primitive arrays, each
// ascending by identifier.
func (x *Index) IterateIndexedObjects(fn func(id uint64, entry IndexedObject) bool) {
	stopped := false
	x.IterateIndexedClasses(func(id uint64, entry IndexedClass) bool {
		if !fn(id, entry) {
			stopped = true
		}
		return !stopped
	})
	if stopped {
		return
	}
	x.IterateIndexedInstances(func(id uint64, entry IndexedInstance) bool {
		if !fn(id, entry) {
			stopped = true
		}
		return !stopped
	})
	if stopped {
		return
	}
	x.IterateIndexedObjectArrays(func(id uint64, entry IndexedObjectArray) bool {
		if !fn(id, entry) {
			stopped = true
		}
		return !stopped
	})
	if stopped {
		return
	}
	x.IterateIndexedPrimitiveArrays(func(id uint64, entry IndexedPrimitiveArray) bool {
		return fn(id, entry)
	})
}

// GcRoots returns the retained roots in stream order. The slice is owned
// by the index and must not be mutated.
func (x *Index) GcRoots() []hprof.GcRoot {
	return x.roots
}

// PrimitiveWrapperTypes returns the identifiers of the boxed-primitive
// classes. The set is owned by the index and must not be mutated.
func (x *Index) PrimitiveWrapperTypes() *collections.LongSet {
	return x.primitiveWrappers
}

// Header returns the dump header the index was built from.
func (x *Index) Header() *hprof.Header {
	return x.header
}

// TotalBytesRead returns the dump length observed by the width pass.
func (x *Index) TotalBytesRead() uint64 {
	return x.widths.TotalBytesRead
}

// decodeClass reads a class row in write order.
func (x *Index) decodeClass(row *RowReader) IndexedClass {
	entry := IndexedClass{
		Position: row.ReadTruncated(x.widths.BytesForPosition),
	}
	entry.SuperclassID = row.ReadID()
	entry.InstanceSize = row.ReadUint32()
	if x.widths.UseClassSizeHighBit {
		packed := row.ReadTruncated(x.widths.BytesForClassSize)
		highBit := x.widths.classSizeHighBit()
		entry.HasRefFields = packed&highBit != 0
		entry.RecordSize = packed &^ highBit
	} else {
		entry.RecordSize = row.ReadTruncated(x.widths.BytesForClassSize)
		entry.HasRefFields = row.ReadByte() != 0
	}
	return entry
}

// decodeInstance reads an instance row in write order.
func (x *Index) decodeInstance(row *RowReader) IndexedInstance {
	return IndexedInstance{
		Position:   row.ReadTruncated(x.widths.BytesForPosition),
		ClassID:    row.ReadID(),
		RecordSize: row.ReadTruncated(x.widths.BytesForInstanceSize),
	}
}

// decodeObjectArray reads an object array row in write order.
func (x *Index) decodeObjectArray(row *RowReader) IndexedObjectArray {
	return IndexedObjectArray{
		Position:     row.ReadTruncated(x.widths.BytesForPosition),
		ArrayClassID: row.ReadID(),
		RecordSize:   row.ReadTruncated(x.widths.BytesForObjectArraySize),
	}
}

// decodePrimitiveArray reads a primitive array row in write order.
func (x *Index) decodePrimitiveArray(row *RowReader) IndexedPrimitiveArray {
	return IndexedPrimitiveArray{
		Position:   row.ReadTruncated(x.widths.BytesForPosition),
		Type:       hprof.PrimitiveType(row.ReadByte()),
		RecordSize: row.ReadTruncated(x.widths.BytesForPrimitiveArraySize),
	}
}
