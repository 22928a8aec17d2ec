// Package testutil provides utilities for testing, including a synthetic
// HPROF dump builder used by the hprof and index test suites.
package testutil

import (
	"bytes"
	"encoding/binary"

	"github.com/heap-analysis/internal/hprof"
)

// DumpBuilder assembles a minimal but well-formed HPROF byte stream.
//
// Strings and load-class records are emitted as top-level records in the
// order they are added; heap sub-records (objects and roots) are collected
// into a single HEAP_DUMP_SEGMENT, also in insertion order.
type DumpBuilder struct {
	version string
	idSize  int
	top     bytes.Buffer
	heap    bytes.Buffer
}

// NewDumpBuilder creates a builder for a dump with the given version
// string and identifier size (4 or 8).
func NewDumpBuilder(version hprof.Version, idSize int) *DumpBuilder {
	return &DumpBuilder{version: string(version), idSize: idSize}
}

// NewDefaultDumpBuilder creates a JVM-dialect builder with 8-byte IDs.
func NewDefaultDumpBuilder() *DumpBuilder {
	return NewDumpBuilder(hprof.VersionJDK122, 8)
}

func (b *DumpBuilder) writeID(buf *bytes.Buffer, id uint64) {
	if b.idSize == 4 {
		binary.Write(buf, binary.BigEndian, uint32(id))
	} else {
		binary.Write(buf, binary.BigEndian, id)
	}
}

func (b *DumpBuilder) writeRecordHeader(tag hprof.RecordTag, length int) {
	b.top.WriteByte(byte(tag))
	binary.Write(&b.top, binary.BigEndian, uint32(0)) // time delta
	binary.Write(&b.top, binary.BigEndian, uint32(length))
}

// AddString appends a STRING record.
func (b *DumpBuilder) AddString(id uint64, s string) *DumpBuilder {
	b.writeRecordHeader(hprof.TagString, b.idSize+len(s))
	b.writeID(&b.top, id)
	b.top.WriteString(s)
	return b
}

// AddLoadClass appends a LOAD_CLASS record.
func (b *DumpBuilder) AddLoadClass(classID, nameStringID uint64) *DumpBuilder {
	b.writeRecordHeader(hprof.TagLoadClass, 4+b.idSize+4+b.idSize)
	binary.Write(&b.top, binary.BigEndian, uint32(1)) // class serial
	b.writeID(&b.top, classID)
	binary.Write(&b.top, binary.BigEndian, uint32(0)) // stack trace serial
	b.writeID(&b.top, nameStringID)
	return b
}

// AddClassDump appends a CLASS_DUMP sub-record with no constant pool and
// no static fields. fieldTypes declares the instance fields; a TypeObject
// entry gives the class reference fields.
func (b *DumpBuilder) AddClassDump(classID, superclassID uint64, instanceSize uint32, fieldTypes ...hprof.PrimitiveType) *DumpBuilder {
	b.heap.WriteByte(byte(hprof.HeapTagClassDump))
	b.writeID(&b.heap, classID)
	binary.Write(&b.heap, binary.BigEndian, uint32(0)) // stack trace serial
	b.writeID(&b.heap, superclassID)
	for i := 0; i < 5; i++ { // loader, signers, domain, 2 reserved
		b.writeID(&b.heap, 0)
	}
	binary.Write(&b.heap, binary.BigEndian, instanceSize)
	binary.Write(&b.heap, binary.BigEndian, uint16(0)) // constant pool size
	binary.Write(&b.heap, binary.BigEndian, uint16(0)) // static field count
	binary.Write(&b.heap, binary.BigEndian, uint16(len(fieldTypes)))
	for i, t := range fieldTypes {
		b.writeID(&b.heap, uint64(0x5000+i)) // field name string ID
		b.heap.WriteByte(byte(t))
	}
	return b
}

// AddInstanceDump appends an INSTANCE_DUMP sub-record with the given raw
// field data.
func (b *DumpBuilder) AddInstanceDump(objectID, classID uint64, data []byte) *DumpBuilder {
	b.heap.WriteByte(byte(hprof.HeapTagInstanceDump))
	b.writeID(&b.heap, objectID)
	binary.Write(&b.heap, binary.BigEndian, uint32(0))
	b.writeID(&b.heap, classID)
	binary.Write(&b.heap, binary.BigEndian, uint32(len(data)))
	b.heap.Write(data)
	return b
}

// AddObjectArrayDump appends an OBJECT_ARRAY_DUMP sub-record.
func (b *DumpBuilder) AddObjectArrayDump(objectID, arrayClassID uint64, elements ...uint64) *DumpBuilder {
	b.heap.WriteByte(byte(hprof.HeapTagObjectArrayDump))
	b.writeID(&b.heap, objectID)
	binary.Write(&b.heap, binary.BigEndian, uint32(0))
	binary.Write(&b.heap, binary.BigEndian, uint32(len(elements)))
	b.writeID(&b.heap, arrayClassID)
	for _, e := range elements {
		b.writeID(&b.heap, e)
	}
	return b
}

// AddPrimitiveArrayDump appends a PRIMITIVE_ARRAY_DUMP sub-record with
// zeroed element data.
func (b *DumpBuilder) AddPrimitiveArrayDump(objectID uint64, elemType hprof.PrimitiveType, numElements int) *DumpBuilder {
	b.heap.WriteByte(byte(hprof.HeapTagPrimitiveArrayDump))
	b.writeID(&b.heap, objectID)
	binary.Write(&b.heap, binary.BigEndian, uint32(0))
	binary.Write(&b.heap, binary.BigEndian, uint32(numElements))
	b.heap.WriteByte(byte(elemType))
	b.heap.Write(make([]byte, numElements*hprof.PrimitiveTypeSize(elemType, b.idSize)))
	return b
}

// AddRoot appends a GC root sub-record of the given kind. Kinds without a
// case below are written as ROOT_UNKNOWN sub-records.
func (b *DumpBuilder) AddRoot(kind hprof.RootKind, objectID uint64) *DumpBuilder {
	switch kind {
	case hprof.RootJNIGlobal:
		b.heap.WriteByte(byte(hprof.HeapTagRootJNIGlobal))
		b.writeID(&b.heap, objectID)
		b.writeID(&b.heap, 0) // JNI global ref ID
	case hprof.RootJNILocal:
		b.heap.WriteByte(byte(hprof.HeapTagRootJNILocal))
		b.writeID(&b.heap, objectID)
		binary.Write(&b.heap, binary.BigEndian, uint32(1)) // thread serial
		binary.Write(&b.heap, binary.BigEndian, uint32(0)) // frame index
	case hprof.RootJavaFrame:
		b.heap.WriteByte(byte(hprof.HeapTagRootJavaFrame))
		b.writeID(&b.heap, objectID)
		binary.Write(&b.heap, binary.BigEndian, uint32(1))
		binary.Write(&b.heap, binary.BigEndian, uint32(0))
	case hprof.RootNativeStack:
		b.heap.WriteByte(byte(hprof.HeapTagRootNativeStack))
		b.writeID(&b.heap, objectID)
		binary.Write(&b.heap, binary.BigEndian, uint32(1))
	case hprof.RootThreadBlock:
		b.heap.WriteByte(byte(hprof.HeapTagRootThreadBlock))
		b.writeID(&b.heap, objectID)
		binary.Write(&b.heap, binary.BigEndian, uint32(1))
	case hprof.RootThreadObject:
		b.heap.WriteByte(byte(hprof.HeapTagRootThreadObject))
		b.writeID(&b.heap, objectID)
		binary.Write(&b.heap, binary.BigEndian, uint32(1))
		binary.Write(&b.heap, binary.BigEndian, uint32(0)) // stack trace serial
	case hprof.RootStickyClass:
		b.heap.WriteByte(byte(hprof.HeapTagRootStickyClass))
		b.writeID(&b.heap, objectID)
	case hprof.RootMonitorUsed:
		b.heap.WriteByte(byte(hprof.HeapTagRootMonitorUsed))
		b.writeID(&b.heap, objectID)
	default:
		b.heap.WriteByte(byte(hprof.HeapTagRootUnknown))
		b.writeID(&b.heap, objectID)
	}
	return b
}

// Bytes assembles the dump: header, top-level records, then one heap dump
// segment when any sub-records were added.
func (b *DumpBuilder) Bytes() []byte {
	var out bytes.Buffer
	out.WriteString(b.version)
	out.WriteByte(0)
	binary.Write(&out, binary.BigEndian, uint32(b.idSize))
	binary.Write(&out, binary.BigEndian, uint64(0)) // timestamp

	out.Write(b.top.Bytes())

	if b.heap.Len() > 0 {
		out.WriteByte(byte(hprof.TagHeapDumpSegment))
		binary.Write(&out, binary.BigEndian, uint32(0))
		binary.Write(&out, binary.BigEndian, uint32(b.heap.Len()))
		out.Write(b.heap.Bytes())

		out.WriteByte(byte(hprof.TagHeapDumpEnd))
		binary.Write(&out, binary.BigEndian, uint32(0))
		binary.Write(&out, binary.BigEndian, uint32(0))
	}

	return out.Bytes()
}
