package edfs

import (
	"encoding/binary"
	"fmt"
	"io"
)

type marshaler interface {
	recordSize() int
	MarshalEdfs(b []byte) error
}

type unmarshaler interface {
	UnmarshalEdfs([]byte) error
}

func toUint32(b []byte, start int, to *uint32) (int, error) {
	if len(b) < start+4 {
		return 0, fmt.Errorf("%w: expected at least %d bytes, received: %d", io.EOF, start+4, len(b))
	}
	*to = binary.LittleEndian.Uint32(b[start:])
	return start + 4, nil
}

func toUint16(b []byte, start int, to *uint16) (int, error) {
	if len(b) < start+2 {
		return 0, fmt.Errorf("%w: expected at least %d bytes, received: %d", io.EOF, start+2, len(b))
	}
	*to = binary.LittleEndian.Uint16(b[start:])
	return start + 2, nil
}

func toUint8(b []byte, start int, to *uint8) (int, error) {
	if len(b) <= start {
		return 0, fmt.Errorf("%w: expected at least %d bytes, received: %d", io.EOF, start+1, len(b))
	}
	*to = b[start]
	return start + 1, nil
}

// toCString reads a NUL terminated string out of a fixed width field
func toCString(b []byte, start, length int, to *string) (int, error) {
	if len(b) < start+length {
		return 0, fmt.Errorf("%w: expected at least %d bytes, received: %d", io.EOF, start+length, len(b))
	}
	field := b[start : start+length]
	end := 0
	for end < len(field) && field[end] != 0 {
		end++
	}
	*to = string(field[:end])
	return start + length, nil
}
