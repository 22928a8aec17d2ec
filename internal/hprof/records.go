package hprof

// RecordKind identifies one of the record kinds a scan can deliver.
type RecordKind uint8

const (
	KindString RecordKind = iota
	KindLoadClass
	KindGcRoot
	KindClassSkipContent
	KindInstanceSkipContent
	KindObjectArraySkipContent
	KindPrimitiveArraySkipContent
)

// RecordKindSet is a bitmask of RecordKind values used to filter a scan.
type RecordKindSet uint32

// KindSetOf builds a RecordKindSet from the given kinds.
func KindSetOf(kinds ...RecordKind) RecordKindSet {
	var s RecordKindSet
	for _, k := range kinds {
		s |= 1 << k
	}
	return s
}

// Has reports whether kind is in the set.
func (s RecordKindSet) Has(kind RecordKind) bool {
	return s&(1<<kind) != 0
}

// SkipContentKinds selects the four object skip-content record kinds.
func SkipContentKinds() RecordKindSet {
	return KindSetOf(
		KindClassSkipContent,
		KindInstanceSkipContent,
		KindObjectArraySkipContent,
		KindPrimitiveArraySkipContent,
	)
}

// IndexedKinds selects every record kind the index pass consumes.
func IndexedKinds() RecordKindSet {
	return SkipContentKinds() | KindSetOf(KindString, KindLoadClass, KindGcRoot)
}

// Record is the tagged union of record values a scan can deliver.
type Record interface {
	// Kind returns the discriminator for this record.
	Kind() RecordKind
}

// StringRecord is an interned string in the dump's string table.
type StringRecord struct {
	ID    uint64
	Bytes []byte
}

// Kind implements Record.
func (StringRecord) Kind() RecordKind { return KindString }

// LoadClassRecord associates a class identifier with its name string.
type LoadClassRecord struct {
	ClassID           uint64
	ClassNameStringID uint64
}

// Kind implements Record.
func (LoadClassRecord) Kind() RecordKind { return KindLoadClass }

// GcRootRecord wraps a single GC root entry.
type GcRootRecord struct {
	Root GcRoot
}

// Kind implements Record.
func (GcRootRecord) Kind() RecordKind { return KindGcRoot }

// ClassSkipContentRecord carries a class dump's header fields and its total
// byte length, without the constant pool / field payloads.
type ClassSkipContentRecord struct {
	ID           uint64
	SuperclassID uint64
	InstanceSize uint32
	RecordSize   uint64
	HasRefFields bool
}

// Kind implements Record.
func (ClassSkipContentRecord) Kind() RecordKind { return KindClassSkipContent }

// InstanceSkipContentRecord carries an instance dump's header fields and
// its total byte length, without the field data.
type InstanceSkipContentRecord struct {
	ID         uint64
	ClassID    uint64
	RecordSize uint64
}

// Kind implements Record.
func (InstanceSkipContentRecord) Kind() RecordKind { return KindInstanceSkipContent }

// ObjectArraySkipContentRecord carries an object array dump's header fields
// and its total byte length, without the element identifiers.
type ObjectArraySkipContentRecord struct {
	ID           uint64
	ArrayClassID uint64
	RecordSize   uint64
}

// Kind implements Record.
func (ObjectArraySkipContentRecord) Kind() RecordKind { return KindObjectArraySkipContent }

// PrimitiveArraySkipContentRecord carries a primitive array dump's header
// fields and its total byte length, without the element data.
type PrimitiveArraySkipContentRecord struct {
	ID         uint64
	Type       PrimitiveType
	RecordSize uint64
}

// Kind implements Record.
func (PrimitiveArraySkipContentRecord) Kind() RecordKind { return KindPrimitiveArraySkipContent }

// RecordHandler is invoked once per matching record with the file position
// of the record's first byte and the decoded record value.
type RecordHandler func(position uint64, record Record)
