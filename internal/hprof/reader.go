package hprof

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Reader provides buffered reading of HPROF binary data. It tracks the
// number of bytes consumed so callers can record file positions without a
// seekable source.
type Reader struct {
	r       *bufio.Reader
	idSize  int
	pos     uint64
	byteBuf []byte
}

// NewReader creates a new HPROF reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:       bufio.NewReaderSize(r, 64*1024), // 64KB buffer
		idSize:  8,                               // Default to 8, set from header
		byteBuf: make([]byte, 8),
	}
}

// SetIDSize sets the identifier size (4 or 8 bytes).
func (r *Reader) SetIDSize(size int) {
	r.idSize = size
}

// IDSize returns the current identifier size.
func (r *Reader) IDSize() int {
	return r.idSize
}

// Position returns the number of bytes consumed so far.
func (r *Reader) Position() uint64 {
	return r.pos
}

// ReadHeader reads the HPROF file header.
func (r *Reader) ReadHeader() (*Header, error) {
	version, err := r.readNullTerminatedString()
	if err != nil {
		return nil, fmt.Errorf("failed to read version string: %w", err)
	}

	idSize, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("failed to read ID size: %w", err)
	}
	if idSize != 4 && idSize != 8 {
		return nil, fmt.Errorf("unsupported identifier size: %d", idSize)
	}
	r.idSize = int(idSize)

	// Timestamp, milliseconds since epoch.
	timestamp, err := r.ReadUint64()
	if err != nil {
		return nil, fmt.Errorf("failed to read timestamp: %w", err)
	}

	return &Header{
		Version:   Version(version),
		IDSize:    int(idSize),
		Timestamp: time.UnixMilli(int64(timestamp)),
	}, nil
}

// ReadRecordHeader reads a top-level record header (tag, time delta, length).
func (r *Reader) ReadRecordHeader() (tag RecordTag, timeDelta uint32, length uint32, err error) {
	tagByte, err := r.ReadByte()
	if err != nil {
		return 0, 0, 0, err
	}
	tag = RecordTag(tagByte)

	timeDelta, err = r.ReadUint32()
	if err != nil {
		return 0, 0, 0, err
	}

	length, err = r.ReadUint32()
	if err != nil {
		return 0, 0, 0, err
	}

	return tag, timeDelta, length, nil
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.r.ReadByte()
	if err == nil {
		r.pos++
	}
	return b, err
}

// ReadBytes reads n bytes into a new slice.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(r.r, buf)
	r.pos += uint64(read)
	return buf, err
}

// ReadUint16 reads a big-endian uint16.
func (r *Reader) ReadUint16() (uint16, error) {
	read, err := io.ReadFull(r.r, r.byteBuf[:2])
	r.pos += uint64(read)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(r.byteBuf[:2]), nil
}

// ReadUint32 reads a big-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	read, err := io.ReadFull(r.r, r.byteBuf[:4])
	r.pos += uint64(read)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(r.byteBuf[:4]), nil
}

// ReadUint64 reads a big-endian uint64.
func (r *Reader) ReadUint64() (uint64, error) {
	read, err := io.ReadFull(r.r, r.byteBuf[:8])
	r.pos += uint64(read)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(r.byteBuf[:8]), nil
}

// ReadID reads an identifier (size depends on header).
func (r *Reader) ReadID() (uint64, error) {
	if r.idSize == 4 {
		v, err := r.ReadUint32()
		return uint64(v), err
	}
	return r.ReadUint64()
}

// Skip skips n bytes.
func (r *Reader) Skip(n int64) error {
	discarded, err := r.r.Discard(int(n))
	r.pos += uint64(discarded)
	return err
}

// readNullTerminatedString reads a null-terminated string.
func (r *Reader) readNullTerminatedString() (string, error) {
	var result []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == 0 {
			break
		}
		result = append(result, b)
	}
	return string(result), nil
}
