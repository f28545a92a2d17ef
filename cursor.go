package stablebt

// Iterator is a lazy in-order cursor. It holds an explicit stack of the
// descent path instead of recursing, so its footprint is bounded by tree
// height. Mutating the map while an iterator is alive is undefined; callers
// materialize results before mutating.
type Iterator[K any, V any] struct {
	m       *BTreeMap[K, V]
	s       stack
	started bool
	key     K
	val     V
}

func (m *BTreeMap[K, V]) Iter() *Iterator[K, V] {
	return &Iterator[K, V]{m: m}
}

// Next advances to the following entry. It returns false once the traversal
// is exhausted; Key and Value are valid after every true return.
func (it *Iterator[K, V]) Next() (bool, error) {
	if !it.started {
		it.started = true
		if err := it.descendMin(it.m.rootAddr); err != nil {
			return false, err
		}
	}
	for len(it.s.list) > 0 {
		f := &it.s.list[len(it.s.list)-1]
		if f.tag >= len(f.node.entries) {
			it.s.pop()
			continue
		}
		e := f.node.entries[f.tag]
		f.tag++
		if !f.node.isLeaf() {
			// the subtree left of this entry is already exhausted;
			// queue up the one to its right before emitting
			if err := it.descendMin(f.node.children[f.tag]); err != nil {
				return false, err
			}
		}
		if err := it.m.keyCodec.Unmarshal(e.key, &it.key); err != nil {
			return false, err
		}
		if err := it.m.valCodec.Unmarshal(e.val, &it.val); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func (it *Iterator[K, V]) Key() K {
	return it.key
}

func (it *Iterator[K, V]) Value() V {
	return it.val
}

func (it *Iterator[K, V]) descendMin(addr Address) error {
	for {
		n, err := it.m.loadNode(addr)
		if err != nil {
			return err
		}
		it.s.push(stackElement{node: n, tag: 0})
		if n.isLeaf() {
			return nil
		}
		addr = n.children[0]
	}
}

// Range walks every entry in ascending key order until fn returns false.
func (m *BTreeMap[K, V]) Range(fn func(key K, val V) bool) error {
	it := m.Iter()
	for {
		ok, err := it.Next()
		if err != nil || !ok {
			return err
		}
		if !fn(it.key, it.val) {
			return nil
		}
	}
}
