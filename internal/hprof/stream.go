package hprof

import (
	"context"
	"fmt"
	"io"
	"math"
)

// StreamReader scans an HPROF dump and delivers a filtered stream of
// records. Object payloads are never materialized: the four object record
// kinds are delivered in skip-content form, carrying header fields and the
// record byte length only.
//
// ReadRecords may be invoked any number of times on the same dump; every
// invocation re-reads from the start. This is what makes the two-pass
// index build possible without buffering the dump.
type StreamReader struct {
	src    io.ReaderAt
	header *Header
}

// NewStreamReader creates a StreamReader over src and parses the dump
// header eagerly so callers can inspect the identifier size up front.
func NewStreamReader(src io.ReaderAt) (*StreamReader, error) {
	r := NewReader(io.NewSectionReader(src, 0, math.MaxInt64))
	header, err := r.ReadHeader()
	if err != nil {
		return nil, fmt.Errorf("failed to read dump header: %w", err)
	}
	return &StreamReader{src: src, header: header}, nil
}

// Header returns the parsed dump header.
func (s *StreamReader) Header() *Header {
	return s.header
}

// ReadRecords scans the whole dump from the start, invoking onRecord for
// every record whose kind is in kinds. It returns the total number of
// bytes read, which is also the maximum file position any delivered
// record can refer to.
func (s *StreamReader) ReadRecords(ctx context.Context, kinds RecordKindSet, onRecord RecordHandler) (uint64, error) {
	r := NewReader(io.NewSectionReader(s.src, 0, math.MaxInt64))
	if _, err := r.ReadHeader(); err != nil {
		return 0, err
	}

	for {
		select {
		case <-ctx.Done():
			return r.Position(), ctx.Err()
		default:
		}

		recordPos := r.Position()
		tag, _, length, err := r.ReadRecordHeader()
		if err == io.EOF {
			return r.Position(), nil
		}
		if err != nil {
			return r.Position(), err
		}

		switch tag {
		case TagString:
			if kinds.Has(KindString) {
				if err := s.readStringRecord(r, recordPos, length, onRecord); err != nil {
					return r.Position(), err
				}
			} else if err := r.Skip(int64(length)); err != nil {
				return r.Position(), err
			}

		case TagLoadClass:
			if kinds.Has(KindLoadClass) {
				if err := s.readLoadClassRecord(r, recordPos, onRecord); err != nil {
					return r.Position(), err
				}
			} else if err := r.Skip(int64(length)); err != nil {
				return r.Position(), err
			}

		case TagHeapDump, TagHeapDumpSegment:
			if err := s.readHeapDumpSegment(r, length, kinds, onRecord); err != nil {
				return r.Position(), err
			}

		default:
			if err := r.Skip(int64(length)); err != nil {
				return r.Position(), err
			}
		}
	}
}

// readStringRecord reads a STRING record body.
func (s *StreamReader) readStringRecord(r *Reader, pos uint64, length uint32, onRecord RecordHandler) error {
	id, err := r.ReadID()
	if err != nil {
		return err
	}

	strLen := int(length) - r.IDSize()
	if strLen < 0 {
		return fmt.Errorf("invalid string length: %d", strLen)
	}

	strBytes, err := r.ReadBytes(strLen)
	if err != nil {
		return err
	}

	onRecord(pos, StringRecord{ID: id, Bytes: strBytes})
	return nil
}

// readLoadClassRecord reads a LOAD_CLASS record body.
func (s *StreamReader) readLoadClassRecord(r *Reader, pos uint64, onRecord RecordHandler) error {
	// Class serial number.
	if _, err := r.ReadUint32(); err != nil {
		return err
	}

	classID, err := r.ReadID()
	if err != nil {
		return err
	}

	// Stack trace serial number.
	if _, err := r.ReadUint32(); err != nil {
		return err
	}

	nameID, err := r.ReadID()
	if err != nil {
		return err
	}

	onRecord(pos, LoadClassRecord{ClassID: classID, ClassNameStringID: nameID})
	return nil
}

// readHeapDumpSegment walks the sub-records of a HEAP_DUMP or
// HEAP_DUMP_SEGMENT record. Every sub-record is parsed far enough to know
// its length; only requested kinds are delivered.
func (s *StreamReader) readHeapDumpSegment(r *Reader, length uint32, kinds RecordKindSet, onRecord RecordHandler) error {
	end := r.Position() + uint64(length)

	for r.Position() < end {
		tagPos := r.Position()
		tagByte, err := r.ReadByte()
		if err != nil {
			return err
		}
		tag := HeapDumpTag(tagByte)

		switch tag {
		case 0x00:
			// Padding byte, skip.

		case HeapTagClassDump:
			if err := s.readClassDump(r, tagPos, kinds, onRecord); err != nil {
				return err
			}

		case HeapTagInstanceDump:
			if err := s.readInstanceDump(r, tagPos, kinds, onRecord); err != nil {
				return err
			}

		case HeapTagObjectArrayDump:
			if err := s.readObjectArrayDump(r, tagPos, kinds, onRecord); err != nil {
				return err
			}

		case HeapTagPrimitiveArrayDump:
			if err := s.readPrimitiveArrayDump(r, tagPos, kinds, onRecord); err != nil {
				return err
			}

		case HeapTagHeapDumpInfo:
			// Heap type (4 bytes) + heap name string ID.
			if err := r.Skip(int64(4 + r.IDSize())); err != nil {
				return err
			}

		default:
			kind, extra, known := rootLayout(tag)
			if !known {
				// Unknown sub-tag: the length is unknowable, skip the
				// rest of the segment to stay in sync.
				remaining := int64(end - r.Position())
				if remaining > 0 {
					if err := r.Skip(remaining); err != nil {
						return err
					}
				}
				return nil
			}
			if err := s.readRoot(r, tagPos, kind, extra, kinds, onRecord); err != nil {
				return err
			}
		}
	}

	return nil
}

// rootExtra describes the trailing payload of a root sub-record after the
// object identifier.
type rootExtra uint8

const (
	rootExtraNone         rootExtra = iota
	rootExtraRefID                  // JNI global ref ID (idSize bytes)
	rootExtraThread                 // thread serial (4 bytes)
	rootExtraThreadFrame            // thread serial + frame index (8 bytes)
	rootExtraThreadStack            // thread serial + stack trace serial (8 bytes)
)

// rootLayout maps a heap dump sub-tag to its root kind and payload layout.
func rootLayout(tag HeapDumpTag) (RootKind, rootExtra, bool) {
	switch tag {
	case HeapTagRootUnknown:
		return RootUnknown, rootExtraNone, true
	case HeapTagRootJNIGlobal:
		return RootJNIGlobal, rootExtraRefID, true
	case HeapTagRootJNILocal:
		return RootJNILocal, rootExtraThreadFrame, true
	case HeapTagRootJavaFrame:
		return RootJavaFrame, rootExtraThreadFrame, true
	case HeapTagRootNativeStack:
		return RootNativeStack, rootExtraThread, true
	case HeapTagRootStickyClass:
		return RootStickyClass, rootExtraNone, true
	case HeapTagRootThreadBlock:
		return RootThreadBlock, rootExtraThread, true
	case HeapTagRootMonitorUsed:
		return RootMonitorUsed, rootExtraNone, true
	case HeapTagRootThreadObject:
		return RootThreadObject, rootExtraThreadStack, true
	case HeapTagRootInternedString:
		return RootInternedString, rootExtraNone, true
	case HeapTagRootFinalizing:
		return RootFinalizing, rootExtraNone, true
	case HeapTagRootDebugger:
		return RootDebugger, rootExtraNone, true
	case HeapTagRootReferenceCleanup:
		return RootReferenceCleanup, rootExtraNone, true
	case HeapTagRootVMInternal:
		return RootVMInternal, rootExtraNone, true
	case HeapTagRootJNIMonitor:
		return RootJNIMonitor, rootExtraThreadFrame, true
	case HeapTagRootUnreachable:
		return RootUnreachable, rootExtraNone, true
	default:
		return RootUnknown, rootExtraNone, false
	}
}

// readRoot reads a root sub-record and delivers it if requested.
func (s *StreamReader) readRoot(r *Reader, pos uint64, kind RootKind, extra rootExtra, kinds RecordKindSet, onRecord RecordHandler) error {
	objectID, err := r.ReadID()
	if err != nil {
		return err
	}

	root := GcRoot{Kind: kind, ObjectID: objectID}

	switch extra {
	case rootExtraRefID:
		if err := r.Skip(int64(r.IDSize())); err != nil {
			return err
		}
	case rootExtraThread:
		threadSerial, err := r.ReadUint32()
		if err != nil {
			return err
		}
		root.ThreadSerial = threadSerial
	case rootExtraThreadFrame:
		threadSerial, err := r.ReadUint32()
		if err != nil {
			return err
		}
		frameIndex, err := r.ReadUint32()
		if err != nil {
			return err
		}
		root.ThreadSerial = threadSerial
		root.FrameIndex = frameIndex
	case rootExtraThreadStack:
		threadSerial, err := r.ReadUint32()
		if err != nil {
			return err
		}
		// Stack trace serial number.
		if _, err := r.ReadUint32(); err != nil {
			return err
		}
		root.ThreadSerial = threadSerial
	}

	if kinds.Has(KindGcRoot) {
		onRecord(pos, GcRootRecord{Root: root})
	}
	return nil
}

// readClassDump walks a CLASS_DUMP sub-record. The constant pool and field
// lists are variable-length, so the record is walked in full even when
// class records were not requested.
func (s *StreamReader) readClassDump(r *Reader, tagPos uint64, kinds RecordKindSet, onRecord RecordHandler) error {
	idSize := r.IDSize()

	classID, err := r.ReadID()
	if err != nil {
		return err
	}

	// Stack trace serial number.
	if _, err := r.ReadUint32(); err != nil {
		return err
	}

	superclassID, err := r.ReadID()
	if err != nil {
		return err
	}

	// Class loader, signers, protection domain, two reserved IDs.
	if err := r.Skip(int64(idSize * 5)); err != nil {
		return err
	}

	instanceSize, err := r.ReadUint32()
	if err != nil {
		return err
	}

	// Constant pool.
	cpSize, err := r.ReadUint16()
	if err != nil {
		return err
	}
	for i := 0; i < int(cpSize); i++ {
		// Constant pool index.
		if _, err := r.ReadUint16(); err != nil {
			return err
		}
		typeByte, err := r.ReadByte()
		if err != nil {
			return err
		}
		if err := r.Skip(int64(PrimitiveTypeSize(PrimitiveType(typeByte), idSize))); err != nil {
			return err
		}
	}

	// Static fields.
	staticCount, err := r.ReadUint16()
	if err != nil {
		return err
	}
	for i := 0; i < int(staticCount); i++ {
		if err := r.Skip(int64(idSize)); err != nil { // field name ID
			return err
		}
		typeByte, err := r.ReadByte()
		if err != nil {
			return err
		}
		if err := r.Skip(int64(PrimitiveTypeSize(PrimitiveType(typeByte), idSize))); err != nil {
			return err
		}
	}

	// Instance fields: name ID + type. A class has reference fields iff
	// any declared field holds an object.
	fieldCount, err := r.ReadUint16()
	if err != nil {
		return err
	}
	hasRefFields := false
	for i := 0; i < int(fieldCount); i++ {
		if err := r.Skip(int64(idSize)); err != nil { // field name ID
			return err
		}
		typeByte, err := r.ReadByte()
		if err != nil {
			return err
		}
		if PrimitiveType(typeByte) == TypeObject {
			hasRefFields = true
		}
	}

	if kinds.Has(KindClassSkipContent) {
		onRecord(tagPos, ClassSkipContentRecord{
			ID:           classID,
			SuperclassID: superclassID,
			InstanceSize: instanceSize,
			RecordSize:   r.Position() - tagPos,
			HasRefFields: hasRefFields,
		})
	}
	return nil
}

// readInstanceDump reads an INSTANCE_DUMP sub-record, skipping field data.
func (s *StreamReader) readInstanceDump(r *Reader, tagPos uint64, kinds RecordKindSet, onRecord RecordHandler) error {
	objectID, err := r.ReadID()
	if err != nil {
		return err
	}

	// Stack trace serial number.
	if _, err := r.ReadUint32(); err != nil {
		return err
	}

	classID, err := r.ReadID()
	if err != nil {
		return err
	}

	dataSize, err := r.ReadUint32()
	if err != nil {
		return err
	}
	if err := r.Skip(int64(dataSize)); err != nil {
		return err
	}

	if kinds.Has(KindInstanceSkipContent) {
		onRecord(tagPos, InstanceSkipContentRecord{
			ID:         objectID,
			ClassID:    classID,
			RecordSize: r.Position() - tagPos,
		})
	}
	return nil
}

// readObjectArrayDump reads an OBJECT_ARRAY_DUMP sub-record, skipping the
// element identifiers.
func (s *StreamReader) readObjectArrayDump(r *Reader, tagPos uint64, kinds RecordKindSet, onRecord RecordHandler) error {
	objectID, err := r.ReadID()
	if err != nil {
		return err
	}

	// Stack trace serial number.
	if _, err := r.ReadUint32(); err != nil {
		return err
	}

	numElements, err := r.ReadUint32()
	if err != nil {
		return err
	}

	arrayClassID, err := r.ReadID()
	if err != nil {
		return err
	}

	if err := r.Skip(int64(numElements) * int64(r.IDSize())); err != nil {
		return err
	}

	if kinds.Has(KindObjectArraySkipContent) {
		onRecord(tagPos, ObjectArraySkipContentRecord{
			ID:           objectID,
			ArrayClassID: arrayClassID,
			RecordSize:   r.Position() - tagPos,
		})
	}
	return nil
}

// readPrimitiveArrayDump reads a PRIMITIVE_ARRAY_DUMP sub-record, skipping
// the element data.
func (s *StreamReader) readPrimitiveArrayDump(r *Reader, tagPos uint64, kinds RecordKindSet, onRecord RecordHandler) error {
	objectID, err := r.ReadID()
	if err != nil {
		return err
	}

	// Stack trace serial number.
	if _, err := r.ReadUint32(); err != nil {
		return err
	}

	numElements, err := r.ReadUint32()
	if err != nil {
		return err
	}

	typeByte, err := r.ReadByte()
	if err != nil {
		return err
	}
	elemType := PrimitiveType(typeByte)

	elemSize := PrimitiveTypeSize(elemType, r.IDSize())
	if elemSize == 0 {
		return fmt.Errorf("unknown primitive array element type: %d", typeByte)
	}
	if err := r.Skip(int64(numElements) * int64(elemSize)); err != nil {
		return err
	}

	if kinds.Has(KindPrimitiveArraySkipContent) {
		onRecord(tagPos, PrimitiveArraySkipContentRecord{
			ID:         objectID,
			Type:       elemType,
			RecordSize: r.Position() - tagPos,
		})
	}
	return nil
}
