package stablebt

import "encoding/binary"

// Freed node blocks form a singly linked chain threaded through the region
// itself: the first 8 bytes of a free block hold the address of the next
// free block, nilAddress terminating the chain. The chain head lives in the
// map header, so the freelist survives restarts with everything else.

// allocNode pops a block off the freelist or claims fresh space past the
// current end of the region. Fresh blocks are written immediately so that
// the region's size is the high-water mark for the next allocation.
func (m *BTreeMap[K, V]) allocNode(tag uint8) (*treeNode, error) {
	m.stat.nodeAllocs++
	if m.freeHead != nilAddress {
		addr := m.freeHead
		var buf [8]byte
		if err := m.mem.Read(uint64(addr), buf[:]); err != nil {
			return nil, err
		}
		m.freeHead = Address(binary.BigEndian.Uint64(buf[:]))
		return &treeNode{addr: addr, tag: tag}, nil
	}
	end := m.mem.Size()
	if end < headerSize {
		end = headerSize
	}
	n := &treeNode{addr: Address(alignUp(end)), tag: tag}
	if err := m.storeNode(n); err != nil {
		return nil, err
	}
	return n, nil
}

// freeNode pushes the block onto the freelist. Only its first 8 bytes are
// repurposed; the rest stays stale until the slot is reused. A freed address
// is never reachable from the root, so it is never decoded as a node.
func (m *BTreeMap[K, V]) freeNode(n *treeNode) error {
	m.stat.nodeFrees++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(m.freeHead))
	if err := m.mem.Write(uint64(n.addr), buf[:]); err != nil {
		return err
	}
	m.freeHead = n.addr
	return nil
}
