package stablebt

import (
	"fmt"
	"log/slog"
	"slices"
)

type Config struct {
	// MaxKeySize and MaxValueSize bound the encoded byte length of every
	// key and value. They are part of the persisted format and cannot be
	// changed by re-attaching to an existing region.
	MaxKeySize   uint32
	MaxValueSize uint32
	Logger       *slog.Logger
}

// BTreeMap is a map whose entire state lives inside a Memory region, so a
// handle rebuilt over the same bytes observes the same contents. Keys order
// byte-lexicographically over their marshaled form. The handle caches the
// header scalars (root address, length, freelist head) and flushes them as
// part of every mutation; it performs no locking, the host execution model
// is expected to serialize calls.
type BTreeMap[K any, V any] struct {
	mem      Memory
	layout   nodeLayout
	keyCodec Codec[K]
	valCodec Codec[V]
	logger   *slog.Logger

	rootAddr Address
	length   uint64
	freeHead Address
	stat     iStat
}

func NewBTreeMap[K any, V any](mem Memory, cfg Config, keyCodec Codec[K], valCodec Codec[V]) *BTreeMap[K, V] {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BTreeMap[K, V]{
		mem:      mem,
		layout:   newNodeLayout(cfg.MaxKeySize, cfg.MaxValueSize),
		keyCodec: keyCodec,
		valCodec: valCodec,
		logger:   logger,
	}
}

// Init attaches to an already formatted region, trusting its cached length
// and root address, or formats a blank one. Attaching fails with
// ErrIncompatibleBounds when the stored size bounds differ from the
// configured ones.
func (m *BTreeMap[K, V]) Init() error {
	if m.layout.maxKeySize == 0 || m.layout.maxValueSize == 0 {
		return fmt.Errorf("stablebt: max key/value size must be > 0")
	}
	if !hasMagic(m.mem) {
		return m.Format()
	}
	buf := make([]byte, headerSize)
	if err := m.mem.Read(0, buf); err != nil {
		return err
	}
	var h treeHeader
	if err := h.decode(buf); err != nil {
		return fmt.Errorf("stablebt: %w", err)
	}
	if h.maxKeySize != m.layout.maxKeySize || h.maxValueSize != m.layout.maxValueSize {
		return fmt.Errorf("%w: stored %d/%d, configured %d/%d", ErrIncompatibleBounds,
			h.maxKeySize, h.maxValueSize, m.layout.maxKeySize, m.layout.maxValueSize)
	}
	m.rootAddr = h.rootAddr
	m.length = h.length
	m.freeHead = h.freeHead
	m.logger.Debug("attached to formatted region",
		slog.Uint64("len", m.length), slog.Uint64("root", uint64(m.rootAddr)))
	return nil
}

// Format unconditionally reformats the region to an empty map, discarding
// whatever it held before.
func (m *BTreeMap[K, V]) Format() error {
	m.rootAddr = Address(alignUp(headerSize))
	m.length = 0
	m.freeHead = nilAddress
	root := &treeNode{addr: m.rootAddr, tag: tagLeaf}
	if err := m.storeNode(root); err != nil {
		return err
	}
	if err := m.writeHeader(); err != nil {
		return err
	}
	m.logger.Debug("formatted region",
		slog.Uint64("block_size", m.layout.blockSize))
	return nil
}

func (m *BTreeMap[K, V]) Len() uint64 {
	return m.length
}

func (m *BTreeMap[K, V]) IsEmpty() bool {
	return m.length == 0
}

func (m *BTreeMap[K, V]) Stat() ExportStat {
	return m.stat.export()
}

func (m *BTreeMap[K, V]) writeHeader() error {
	h := treeHeader{
		maxKeySize:   m.layout.maxKeySize,
		maxValueSize: m.layout.maxValueSize,
		length:       m.length,
		rootAddr:     m.rootAddr,
		freeHead:     m.freeHead,
	}
	buf := h.encode()
	return m.mem.Write(0, buf[:])
}

func (m *BTreeMap[K, V]) loadNode(addr Address) (*treeNode, error) {
	m.stat.nodeReads++
	return m.layout.load(m.mem, addr)
}

func (m *BTreeMap[K, V]) storeNode(n *treeNode) error {
	m.stat.nodeWrites++
	return m.layout.store(m.mem, n)
}

// Put inserts or overwrites a key. A new key returns replaced == false; an
// existing key has its value slot overwritten in place and returns the
// previous value. Size bounds are checked before any node byte is touched,
// so a rejected entry has zero side effects.
func (m *BTreeMap[K, V]) Put(key K, val V) (old V, replaced bool, err error) {
	kb, err := m.keyCodec.Marshal(&key)
	if err != nil {
		return
	}
	if uint32(len(kb)) > m.layout.maxKeySize {
		err = fmt.Errorf("%w: %d > %d", ErrKeyTooLarge, len(kb), m.layout.maxKeySize)
		return
	}
	vb, err := m.valCodec.Marshal(&val)
	if err != nil {
		return
	}
	if uint32(len(vb)) > m.layout.maxValueSize {
		err = fmt.Errorf("%w: %d > %d", ErrValueTooLarge, len(vb), m.layout.maxValueSize)
		return
	}
	root, err := m.loadNode(m.rootAddr)
	if err != nil {
		return
	}
	oldBytes, replaced, full, err := m.doPut(root, kb, vb)
	if err != nil {
		return
	}
	if full {
		// root split: the tree grows one level taller
		medium, leftAddr, rightAddr, err2 := m.splitNode(root)
		if err2 != nil {
			err = err2
			return
		}
		newRoot, err2 := m.allocNode(tagInternal)
		if err2 != nil {
			err = err2
			return
		}
		newRoot.entries = []treeEntry{medium}
		newRoot.children = []Address{leftAddr, rightAddr}
		if err2 = m.storeNode(newRoot); err2 != nil {
			err = err2
			return
		}
		m.rootAddr = newRoot.addr
	}
	if !replaced {
		m.length++
	}
	if err = m.writeHeader(); err != nil {
		return
	}
	if replaced {
		err = m.valCodec.Unmarshal(oldBytes, &old)
	}
	return
}

func (m *BTreeMap[K, V]) doPut(n *treeNode, key, val []byte) (old []byte, replaced, full bool, err error) {
	idx, found := n.search(key)
	if found {
		old = n.entries[idx].val
		n.entries[idx].val = val
		err = m.storeNode(n)
		return old, true, false, err
	}
	if n.isLeaf() {
		n.entries = slices.Insert(n.entries, idx, treeEntry{key: key, val: val})
		if err = m.storeNode(n); err != nil {
			return
		}
		return nil, false, len(n.entries) == maxNodeEntries, nil
	}
	child, err := m.loadNode(n.children[idx])
	if err != nil {
		return
	}
	old, replaced, childFull, err := m.doPut(child, key, val)
	if err != nil {
		return
	}
	if childFull {
		var medium treeEntry
		var leftAddr, rightAddr Address
		medium, leftAddr, rightAddr, err = m.splitNode(child)
		if err != nil {
			return
		}
		n.entries = slices.Insert(n.entries, idx, medium)
		n.children[idx] = leftAddr
		n.children = slices.Insert(n.children, idx+1, rightAddr)
		if err = m.storeNode(n); err != nil {
			return
		}
	}
	return old, replaced, len(n.entries) == maxNodeEntries, nil
}

// splitNode divides a full node around its median entry into two halves and
// returns the node's slot to the freelist. Entry order and the search-tree
// invariant are preserved at every step.
func (m *BTreeMap[K, V]) splitNode(n *treeNode) (medium treeEntry, left, right Address, err error) {
	m.stat.splits++
	mid := len(n.entries) / 2
	medium = n.entries[mid]
	s1, err := m.allocNode(n.tag)
	if err != nil {
		return
	}
	s2, err := m.allocNode(n.tag)
	if err != nil {
		return
	}
	s1.entries = append(s1.entries, n.entries[:mid]...)
	s2.entries = append(s2.entries, n.entries[mid+1:]...)
	if !n.isLeaf() {
		s1.children = append(s1.children, n.children[:mid+1]...)
		s2.children = append(s2.children, n.children[mid+1:]...)
	}
	if err = m.storeNode(s1); err != nil {
		return
	}
	if err = m.storeNode(s2); err != nil {
		return
	}
	err = m.freeNode(n)
	return medium, s1.addr, s2.addr, err
}

// Get descends from the root, binary-searching separators at each internal
// node, and returns the value stored under key. No side effects.
func (m *BTreeMap[K, V]) Get(key K) (val V, found bool, err error) {
	kb, err := m.keyCodec.Marshal(&key)
	if err != nil {
		return
	}
	if uint32(len(kb)) > m.layout.maxKeySize {
		// an oversized key can never have been stored
		return
	}
	addr := m.rootAddr
	for {
		var n *treeNode
		n, err = m.loadNode(addr)
		if err != nil {
			return
		}
		idx, ok := n.search(kb)
		if ok {
			err = m.valCodec.Unmarshal(n.entries[idx].val, &val)
			found = err == nil
			return
		}
		if n.isLeaf() {
			return
		}
		addr = n.children[idx]
	}
}

func (m *BTreeMap[K, V]) ContainsKey(key K) (bool, error) {
	_, found, err := m.Get(key)
	return found, err
}

// Del removes key and returns its value. A separator hit in an internal node
// is replaced by its in-order predecessor pulled from a descendant leaf;
// underflowing nodes borrow from a sibling through the parent or merge with
// one, shrinking the root when it empties.
func (m *BTreeMap[K, V]) Del(key K) (val V, found bool, err error) {
	kb, err := m.keyCodec.Marshal(&key)
	if err != nil {
		return
	}
	if uint32(len(kb)) > m.layout.maxKeySize {
		return
	}
	s := new(stack)
	n, err := m.loadNode(m.rootAddr)
	if err != nil {
		return
	}
	var idx int
	for {
		var ok bool
		idx, ok = n.search(kb)
		if ok {
			break
		}
		if n.isLeaf() {
			return
		}
		s.push(stackElement{node: n, tag: idx})
		if n, err = m.loadNode(n.children[idx]); err != nil {
			return
		}
	}
	valBytes := n.entries[idx].val
	if n.isLeaf() {
		n.entries = slices.Delete(n.entries, idx, idx+1)
		if err = m.storeNode(n); err != nil {
			return
		}
		if err = m.fixUnderflow(n, s); err != nil {
			return
		}
	} else {
		target := n
		s.push(stackElement{node: target, tag: idx})
		var cur *treeNode
		if cur, err = m.loadNode(target.children[idx]); err != nil {
			return
		}
		for !cur.isLeaf() {
			s.push(stackElement{node: cur, tag: len(cur.entries)})
			if cur, err = m.loadNode(cur.children[len(cur.entries)]); err != nil {
				return
			}
		}
		target.entries[idx] = cur.entries[len(cur.entries)-1]
		cur.entries = cur.entries[:len(cur.entries)-1]
		if err = m.storeNode(target); err != nil {
			return
		}
		if err = m.storeNode(cur); err != nil {
			return
		}
		if err = m.fixUnderflow(cur, s); err != nil {
			return
		}
	}
	m.length--
	if err = m.writeHeader(); err != nil {
		return
	}
	found = true
	err = m.valCodec.Unmarshal(valBytes, &val)
	return
}

// fixUnderflow walks the recorded descent path back up, borrowing or merging
// until every node on it holds the minimum entry count again. The root is
// exempt: it may hold down to zero entries, and an internal root emptied by
// a merge hands its single child over as the new root.
func (m *BTreeMap[K, V]) fixUnderflow(n *treeNode, s *stack) error {
	for len(n.entries) < minNodeEntries {
		parent := s.pop()
		if parent.node == nil {
			if !n.isLeaf() && len(n.entries) == 0 {
				m.rootAddr = n.children[0]
				return m.freeNode(n)
			}
			return nil
		}
		p, pidx := parent.node, parent.tag
		if pidx > 0 {
			left, err := m.loadNode(p.children[pidx-1])
			if err != nil {
				return err
			}
			if len(left.entries) > minNodeEntries {
				// rotate right through the parent separator
				m.stat.rotations++
				n.entries = slices.Insert(n.entries, 0, p.entries[pidx-1])
				p.entries[pidx-1] = left.entries[len(left.entries)-1]
				left.entries = left.entries[:len(left.entries)-1]
				if !n.isLeaf() {
					n.children = slices.Insert(n.children, 0, left.children[len(left.children)-1])
					left.children = left.children[:len(left.children)-1]
				}
				return m.storeAll(left, n, p)
			}
		}
		if pidx < len(p.entries) {
			right, err := m.loadNode(p.children[pidx+1])
			if err != nil {
				return err
			}
			if len(right.entries) > minNodeEntries {
				// rotate left through the parent separator
				m.stat.rotations++
				n.entries = append(n.entries, p.entries[pidx])
				p.entries[pidx] = right.entries[0]
				right.entries = slices.Delete(right.entries, 0, 1)
				if !n.isLeaf() {
					n.children = append(n.children, right.children[0])
					right.children = slices.Delete(right.children, 0, 1)
				}
				return m.storeAll(right, n, p)
			}
		}
		// no sibling has a surplus: merge, pulling the separator down
		m.stat.merges++
		if pidx < len(p.entries) {
			right, err := m.loadNode(p.children[pidx+1])
			if err != nil {
				return err
			}
			n.entries = append(n.entries, p.entries[pidx])
			n.entries = append(n.entries, right.entries...)
			if !n.isLeaf() {
				n.children = append(n.children, right.children...)
			}
			p.entries = slices.Delete(p.entries, pidx, pidx+1)
			p.children = slices.Delete(p.children, pidx+1, pidx+2)
			if err = m.storeNode(n); err != nil {
				return err
			}
			if err = m.freeNode(right); err != nil {
				return err
			}
		} else {
			left, err := m.loadNode(p.children[pidx-1])
			if err != nil {
				return err
			}
			left.entries = append(left.entries, p.entries[pidx-1])
			left.entries = append(left.entries, n.entries...)
			if !left.isLeaf() {
				left.children = append(left.children, n.children...)
			}
			p.entries = slices.Delete(p.entries, pidx-1, pidx)
			p.children = slices.Delete(p.children, pidx, pidx+1)
			if err = m.storeNode(left); err != nil {
				return err
			}
			if err = m.freeNode(n); err != nil {
				return err
			}
		}
		if err := m.storeNode(p); err != nil {
			return err
		}
		n = p
	}
	return nil
}

func (m *BTreeMap[K, V]) storeAll(nodes ...*treeNode) error {
	for _, n := range nodes {
		if err := m.storeNode(n); err != nil {
			return err
		}
	}
	return nil
}

// Min returns the smallest key, or ok == false on an empty map.
func (m *BTreeMap[K, V]) Min() (key K, ok bool, err error) {
	return m.edgeKey(false)
}

// Max returns the largest key, or ok == false on an empty map.
func (m *BTreeMap[K, V]) Max() (key K, ok bool, err error) {
	return m.edgeKey(true)
}

func (m *BTreeMap[K, V]) edgeKey(rightmost bool) (key K, ok bool, err error) {
	if m.length == 0 {
		return
	}
	addr := m.rootAddr
	for {
		var n *treeNode
		n, err = m.loadNode(addr)
		if err != nil {
			return
		}
		if n.isLeaf() {
			e := n.entries[0]
			if rightmost {
				e = n.entries[len(n.entries)-1]
			}
			err = m.keyCodec.Unmarshal(e.key, &key)
			ok = err == nil
			return
		}
		if rightmost {
			addr = n.children[len(n.children)-1]
		} else {
			addr = n.children[0]
		}
	}
}

// Clear removes every entry one key at a time. There is no bulk reset
// primitive; per-key removal keeps the freelist and header consistent.
func (m *BTreeMap[K, V]) Clear() error {
	keys := make([]K, 0, m.length)
	it := m.Iter()
	for {
		ok, err := it.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		keys = append(keys, it.Key())
	}
	for _, k := range keys {
		if _, _, err := m.Del(k); err != nil {
			return err
		}
	}
	return nil
}
