package stablebt

import (
	"encoding/binary"
	"fmt"
)

// Address is an offset into the persistent region. It is the only form of
// reference between nodes; every access re-resolves it through Memory, so no
// in-memory pointer survives a restart. Address 0 means null/unallocated.
type Address uint64

const nilAddress Address = 0

var headerMagic = [3]byte{'S', 'B', 'T'}

const (
	formatVersion uint8 = 1

	// magic(3) + version(1) + maxKeySize(4) + maxValueSize(4) +
	// length(8) + rootAddr(8) + freeHead(8)
	headerSize = 36

	allocGranularity = 8
)

func alignUp(v uint64) uint64 {
	return (v + allocGranularity - 1) &^ (allocGranularity - 1)
}

// treeHeader mirrors the fixed header at address 0. The scalar fields are
// cached in the BTreeMap handle and flushed back on every mutation.
type treeHeader struct {
	maxKeySize   uint32
	maxValueSize uint32
	length       uint64
	rootAddr     Address
	freeHead     Address
}

func (h *treeHeader) encode() [headerSize]byte {
	var buf [headerSize]byte
	copy(buf[0:3], headerMagic[:])
	buf[3] = formatVersion
	binary.BigEndian.PutUint32(buf[4:8], h.maxKeySize)
	binary.BigEndian.PutUint32(buf[8:12], h.maxValueSize)
	binary.BigEndian.PutUint64(buf[12:20], h.length)
	binary.BigEndian.PutUint64(buf[20:28], uint64(h.rootAddr))
	binary.BigEndian.PutUint64(buf[28:36], uint64(h.freeHead))
	return buf
}

func (h *treeHeader) decode(buf []byte) error {
	if len(buf) < headerSize {
		return fmt.Errorf("header too short: %d", len(buf))
	}
	if [3]byte(buf[0:3]) != headerMagic {
		return fmt.Errorf("bad header magic: %q", buf[0:3])
	}
	if buf[3] != formatVersion {
		return fmt.Errorf("unsupported format version: %d", buf[3])
	}
	h.maxKeySize = binary.BigEndian.Uint32(buf[4:8])
	h.maxValueSize = binary.BigEndian.Uint32(buf[8:12])
	h.length = binary.BigEndian.Uint64(buf[12:20])
	h.rootAddr = Address(binary.BigEndian.Uint64(buf[20:28]))
	h.freeHead = Address(binary.BigEndian.Uint64(buf[28:36]))
	return nil
}

// hasMagic reports whether the region starts with a recognizable header.
// A region without one is treated as blank and gets formatted.
func hasMagic(mem Memory) bool {
	if mem.Size() < headerSize {
		return false
	}
	var buf [3]byte
	if err := mem.Read(0, buf[:]); err != nil {
		return false
	}
	return buf == headerMagic
}
