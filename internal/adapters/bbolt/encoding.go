// Binary encoding for the index source stamp.
//
// The stamp records which version of the target file the line bucket was
// built from, so a restart can reuse the index instead of rebuilding it.
//
// Format v1 (little-endian, 25 bytes):
//
//	version:   uint8
//	size:      int64   target size in bytes
//	modTime:   int64   target mtime, unix nanoseconds
//	lineCount: uint64  distinct indexed lines
package bbolt

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const stampVersion = 1

// stampSize is the encoded size of a sourceStamp.
const stampSize = 1 + 8 + 8 + 8

// sourceStamp identifies the file content an index was built from.
type sourceStamp struct {
	Size      int64
	ModTime   int64
	LineCount uint64
}

// sameSource reports whether two stamps describe the same file version.
// LineCount is derived data and is not compared.
func (s sourceStamp) sameSource(o sourceStamp) bool {
	return s.Size == o.Size && s.ModTime == o.ModTime
}

func encodeStamp(s sourceStamp) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, stampSize))
	buf.WriteByte(stampVersion)
	_ = binary.Write(buf, binary.LittleEndian, s.Size)
	_ = binary.Write(buf, binary.LittleEndian, s.ModTime)
	_ = binary.Write(buf, binary.LittleEndian, s.LineCount)
	return buf.Bytes()
}

func decodeStamp(data []byte) (sourceStamp, error) {
	if len(data) != stampSize {
		return sourceStamp{}, fmt.Errorf("stamp: want %d bytes, got %d", stampSize, len(data))
	}
	if data[0] != stampVersion {
		return sourceStamp{}, fmt.Errorf("stamp: unsupported version %d", data[0])
	}
	var s sourceStamp
	r := bytes.NewReader(data[1:])
	if err := binary.Read(r, binary.LittleEndian, &s.Size); err != nil {
		return sourceStamp{}, fmt.Errorf("stamp size: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &s.ModTime); err != nil {
		return sourceStamp{}, fmt.Errorf("stamp mtime: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &s.LineCount); err != nil {
		return sourceStamp{}, fmt.Errorf("stamp line count: %w", err)
	}
	return s, nil
}
