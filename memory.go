package stablebt

import "fmt"

// Memory is a byte-addressable, growable linear region. Write grows the
// region exactly enough to cover the write and never shrinks it; callers
// that want amortized growth batch their writes. No concurrent-access
// contract is defined, the map serializes all operations itself.
type Memory interface {
	// Read fills p from offset. Fails with ErrOutOfBounds when
	// offset+len(p) exceeds Size.
	Read(offset uint64, p []byte) error
	// Write copies p to offset, growing the region as needed.
	Write(offset uint64, p []byte) error
	Size() uint64
}

// HeapMemory keeps the region in a plain byte slice. It is the default
// backing for tests and for embedders that arrange durability themselves.
type HeapMemory struct {
	buf []byte
}

func NewHeapMemory() *HeapMemory {
	return &HeapMemory{}
}

func (m *HeapMemory) Read(offset uint64, p []byte) error {
	end := offset + uint64(len(p))
	if end < offset || end > uint64(len(m.buf)) {
		return fmt.Errorf("%w: read [%d, %d) size %d", ErrOutOfBounds, offset, end, len(m.buf))
	}
	copy(p, m.buf[offset:end])
	return nil
}

func (m *HeapMemory) Write(offset uint64, p []byte) error {
	end := offset + uint64(len(p))
	if end < offset {
		return fmt.Errorf("%w: write [%d, %d)", ErrOutOfBounds, offset, end)
	}
	if end > uint64(len(m.buf)) {
		m.buf = append(m.buf, make([]byte, end-uint64(len(m.buf)))...)
	}
	copy(m.buf[offset:end], p)
	return nil
}

func (m *HeapMemory) Size() uint64 {
	return uint64(len(m.buf))
}
