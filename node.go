package stablebt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"slices"
)

const (
	tagLeaf     uint8 = 1
	tagInternal uint8 = 2

	// treeFanout is the branching factor B. A node holds at most B-1
	// entries and, when internal, at most B children. The block layout
	// below reserves slots for exactly that many.
	treeFanout     = 12
	maxNodeEntries = treeFanout - 1
	minNodeEntries = (treeFanout+1)/2 - 1
)

type treeEntry struct {
	key []byte
	val []byte
}

// treeNode is the decoded form of one block. It never outlives the operation
// that loaded it; all cross-node references stay Addresses on disk.
type treeNode struct {
	addr     Address
	tag      uint8
	entries  []treeEntry
	children []Address
}

func (n *treeNode) isLeaf() bool {
	return n.tag == tagLeaf
}

func (n *treeNode) search(key []byte) (int, bool) {
	return slices.BinarySearchFunc(n.entries, key, func(e treeEntry, k []byte) int {
		return bytes.Compare(e.key, k)
	})
}

// nodeLayout fixes the byte format of a node block for one pair of size
// bounds. Every entry gets a fixed-width slot (length prefix plus padding to
// the bound) so in-place overwrites never reshuffle neighboring bytes and
// every offset is computable from constants alone. Block layout:
//
//	tag(1) count(2)
//	(B-1) entry slots: keyLen(4) key[maxKeySize] valLen(4) val[maxValueSize]
//	B child address slots of 8 bytes (zero-filled and unread in leaves)
type nodeLayout struct {
	maxKeySize   uint32
	maxValueSize uint32
	entrySize    uint64
	blockSize    uint64
}

const nodeHeaderSize = 3

func newNodeLayout(maxKeySize, maxValueSize uint32) nodeLayout {
	l := nodeLayout{
		maxKeySize:   maxKeySize,
		maxValueSize: maxValueSize,
	}
	l.entrySize = 4 + uint64(maxKeySize) + 4 + uint64(maxValueSize)
	raw := uint64(nodeHeaderSize) + maxNodeEntries*l.entrySize + treeFanout*8
	l.blockSize = alignUp(raw)
	return l
}

func (l nodeLayout) entryOff(i int) uint64 {
	return nodeHeaderSize + uint64(i)*l.entrySize
}

func (l nodeLayout) childOff(i int) uint64 {
	return nodeHeaderSize + maxNodeEntries*l.entrySize + uint64(i)*8
}

// load decodes the node stored at addr. Undecodable blocks are fatal, the
// persisted format must already be trusted by construction.
func (l nodeLayout) load(mem Memory, addr Address) (*treeNode, error) {
	buf := make([]byte, l.blockSize)
	if err := mem.Read(uint64(addr), buf); err != nil {
		return nil, err
	}
	tag := buf[0]
	if tag != tagLeaf && tag != tagInternal {
		return nil, fmt.Errorf("%w: addr %d has tag %d", ErrCorruptNode, addr, tag)
	}
	count := int(binary.BigEndian.Uint16(buf[1:3]))
	if count > maxNodeEntries {
		return nil, fmt.Errorf("%w: addr %d has %d entries", ErrCorruptNode, addr, count)
	}
	n := &treeNode{
		addr:    addr,
		tag:     tag,
		entries: make([]treeEntry, 0, count),
	}
	for i := 0; i < count; i++ {
		s := buf[l.entryOff(i):]
		keyLen := binary.BigEndian.Uint32(s[0:4])
		valLen := binary.BigEndian.Uint32(s[4+l.maxKeySize : 8+l.maxKeySize])
		if keyLen > l.maxKeySize || valLen > l.maxValueSize {
			return nil, fmt.Errorf("%w: addr %d entry %d size %d/%d", ErrCorruptNode, addr, i, keyLen, valLen)
		}
		n.entries = append(n.entries, treeEntry{
			key: s[4 : 4+keyLen],
			val: s[8+l.maxKeySize : 8+uint64(l.maxKeySize)+uint64(valLen)],
		})
	}
	if tag == tagInternal {
		n.children = make([]Address, 0, count+1)
		for i := 0; i <= count; i++ {
			child := Address(binary.BigEndian.Uint64(buf[l.childOff(i):]))
			if child == nilAddress {
				return nil, fmt.Errorf("%w: addr %d child %d is null", ErrCorruptNode, addr, i)
			}
			n.children = append(n.children, child)
		}
	}
	return n, nil
}

// store encodes the node back to its own address, never relocating it.
// Unused slots are zero-filled but not read.
func (l nodeLayout) store(mem Memory, n *treeNode) error {
	if len(n.entries) > maxNodeEntries {
		return fmt.Errorf("%w: %d entries exceed node capacity", ErrCorruptNode, len(n.entries))
	}
	buf := make([]byte, l.blockSize)
	buf[0] = n.tag
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(n.entries)))
	for i, e := range n.entries {
		s := buf[l.entryOff(i):]
		binary.BigEndian.PutUint32(s[0:4], uint32(len(e.key)))
		copy(s[4:], e.key)
		binary.BigEndian.PutUint32(s[4+l.maxKeySize:8+l.maxKeySize], uint32(len(e.val)))
		copy(s[8+l.maxKeySize:], e.val)
	}
	if n.tag == tagInternal {
		for i, child := range n.children {
			binary.BigEndian.PutUint64(buf[l.childOff(i):], uint64(child))
		}
	}
	return mem.Write(uint64(n.addr), buf)
}
