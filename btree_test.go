package stablebt

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zbh255/gocode/random"
)

func newTestMap(t *testing.T) (*BTreeMap[uint64, string], *HeapMemory) {
	mem := NewHeapMemory()
	bt := NewBTreeMap[uint64, string](mem, Config{
		MaxKeySize:   16,
		MaxValueSize: 64,
	}, new(Uint64Codec), new(StringCodec))
	require.NoError(t, bt.Init())
	return bt, mem
}

func TestBTreeMap(t *testing.T) {
	t.Run("PutGet", func(t *testing.T) {
		bt, _ := newTestMap(t)
		for i := uint64(0); i < 1024; i++ {
			_, replaced, err := bt.Put(i, "hello world")
			require.NoError(t, err)
			require.False(t, replaced)
		}
		require.EqualValues(t, 1024, bt.Len())
		for i := uint64(0); i < 1024; i++ {
			v, found, err := bt.Get(i)
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, "hello world", v)
		}
		_, found, err := bt.Get(1024)
		require.NoError(t, err)
		require.False(t, found)
	})
	t.Run("Overwrite", func(t *testing.T) {
		bt, _ := newTestMap(t)
		_, replaced, err := bt.Put(7, "first")
		require.NoError(t, err)
		require.False(t, replaced)
		old, replaced, err := bt.Put(7, "second")
		require.NoError(t, err)
		require.True(t, replaced)
		require.Equal(t, "first", old)
		require.EqualValues(t, 1, bt.Len())
		v, found, err := bt.Get(7)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "second", v)
	})
	t.Run("BoundRejection", func(t *testing.T) {
		bt, _ := newTestMap(t)
		_, _, err := bt.Put(1, "ok")
		require.NoError(t, err)
		// a value of exactly the bound still fits
		_, _, err = bt.Put(2, strings.Repeat("a", 64))
		require.NoError(t, err)
		_, _, err = bt.Put(3, strings.Repeat("a", 65))
		require.ErrorIs(t, err, ErrValueTooLarge)
		require.EqualValues(t, 2, bt.Len())

		bs := NewBTreeMap[string, string](NewHeapMemory(), Config{
			MaxKeySize:   8,
			MaxValueSize: 8,
		}, new(StringCodec), new(StringCodec))
		require.NoError(t, bs.Init())
		_, _, err = bs.Put("123456789", "v")
		require.ErrorIs(t, err, ErrKeyTooLarge)
		require.EqualValues(t, 0, bs.Len())
	})
	t.Run("Delete", func(t *testing.T) {
		bt, _ := newTestMap(t)
		for i := uint64(0); i < 1024; i++ {
			_, _, err := bt.Put(i, "hello world")
			require.NoError(t, err)
		}
		v, found, err := bt.Del(512)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "hello world", v)
		require.EqualValues(t, 1023, bt.Len())
		_, found, err = bt.Get(512)
		require.NoError(t, err)
		require.False(t, found)
		// removing an absent key changes nothing
		_, found, err = bt.Del(512)
		require.NoError(t, err)
		require.False(t, found)
		require.EqualValues(t, 1023, bt.Len())
	})
	t.Run("DeleteAll", func(t *testing.T) {
		bt, _ := newTestMap(t)
		keys := make([]uint64, 0, 512)
		for i := uint64(0); i < 512; i++ {
			keys = append(keys, i)
			_, _, err := bt.Put(i, "v")
			require.NoError(t, err)
		}
		rand.Shuffle(len(keys), func(i, j int) {
			keys[i], keys[j] = keys[j], keys[i]
		})
		for _, k := range keys {
			_, found, err := bt.Del(k)
			require.NoError(t, err)
			require.True(t, found)
		}
		require.True(t, bt.IsEmpty())
		st := bt.Stat()
		require.NotZero(t, st.Merges)
		require.NotZero(t, st.NodeFrees)
	})
	t.Run("Persistence", func(t *testing.T) {
		mem := NewHeapMemory()
		cfg := Config{MaxKeySize: 16, MaxValueSize: 64}
		bt := NewBTreeMap[uint64, string](mem, cfg, new(Uint64Codec), new(StringCodec))
		require.NoError(t, bt.Init())
		_, _, err := bt.Put(12345, "hello")
		require.NoError(t, err)
		require.EqualValues(t, 1, bt.Len())
		v, found, err := bt.Get(12345)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "hello", v)

		// simulate a restart: rebuild the handle over the same bytes
		bt2 := NewBTreeMap[uint64, string](mem, cfg, new(Uint64Codec), new(StringCodec))
		require.NoError(t, bt2.Init())
		require.EqualValues(t, 1, bt2.Len())
		v, found, err = bt2.Get(12345)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "hello", v)

		// reformatting discards everything
		bt3 := NewBTreeMap[uint64, string](mem, cfg, new(Uint64Codec), new(StringCodec))
		require.NoError(t, bt3.Format())
		require.EqualValues(t, 0, bt3.Len())
		_, found, err = bt3.Get(12345)
		require.NoError(t, err)
		require.False(t, found)
	})
	t.Run("IncompatibleBounds", func(t *testing.T) {
		mem := NewHeapMemory()
		bt := NewBTreeMap[uint64, string](mem, Config{
			MaxKeySize:   16,
			MaxValueSize: 64,
		}, new(Uint64Codec), new(StringCodec))
		require.NoError(t, bt.Init())
		bt2 := NewBTreeMap[uint64, string](mem, Config{
			MaxKeySize:   16,
			MaxValueSize: 128,
		}, new(Uint64Codec), new(StringCodec))
		require.ErrorIs(t, bt2.Init(), ErrIncompatibleBounds)
	})
	t.Run("MinMax", func(t *testing.T) {
		bt, _ := newTestMap(t)
		_, ok, err := bt.Min()
		require.NoError(t, err)
		require.False(t, ok)
		for _, k := range []uint64{42, 7, 99, 13, 77} {
			_, _, err := bt.Put(k, "v")
			require.NoError(t, err)
		}
		minKey, ok, err := bt.Min()
		require.NoError(t, err)
		require.True(t, ok)
		require.EqualValues(t, 7, minKey)
		maxKey, ok, err := bt.Max()
		require.NoError(t, err)
		require.True(t, ok)
		require.EqualValues(t, 99, maxKey)
	})
	t.Run("Clear", func(t *testing.T) {
		bt, _ := newTestMap(t)
		for i := uint64(0); i < 300; i++ {
			_, _, err := bt.Put(i, "v")
			require.NoError(t, err)
		}
		require.NoError(t, bt.Clear())
		require.True(t, bt.IsEmpty())
		_, found, err := bt.Get(0)
		require.NoError(t, err)
		require.False(t, found)
		it := bt.Iter()
		ok, err := it.Next()
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestBTreeMapScale(t *testing.T) {
	const n = 5000
	fill := func(t *testing.T, keys []uint64) {
		bt, _ := newTestMap(t)
		model := make(map[uint64]string, len(keys))
		for _, k := range keys {
			v := random.GenStringOnAscii(32)
			_, _, err := bt.Put(k, v)
			require.NoError(t, err)
			model[k] = v
		}
		require.EqualValues(t, len(model), bt.Len())
		for k, want := range model {
			got, found, err := bt.Get(k)
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, want, got)
		}
	}
	t.Run("Ascending", func(t *testing.T) {
		keys := make([]uint64, 0, n)
		for i := uint64(0); i < n; i++ {
			keys = append(keys, i)
		}
		fill(t, keys)
	})
	t.Run("Descending", func(t *testing.T) {
		keys := make([]uint64, 0, n)
		for i := uint64(n); i > 0; i-- {
			keys = append(keys, i)
		}
		fill(t, keys)
	})
	t.Run("Random", func(t *testing.T) {
		keys := make([]uint64, 0, n)
		for i := 0; i < n; i++ {
			keys = append(keys, rand.Uint64N(n*4))
		}
		fill(t, keys)
	})
}

// The order and count invariants must hold after any sequence of mutations:
// a full traversal yields strictly ascending keys and exactly Len entries.
func TestBTreeMapOrderInvariant(t *testing.T) {
	bt, _ := newTestMap(t)
	model := make(map[uint64]string)
	for i := 0; i < 8000; i++ {
		k := rand.Uint64N(2000)
		if rand.Uint64N(3) == 0 {
			_, found, err := bt.Del(k)
			require.NoError(t, err)
			_, ok := model[k]
			require.Equal(t, ok, found)
			delete(model, k)
		} else {
			v := random.GenStringOnAscii(16)
			_, replaced, err := bt.Put(k, v)
			require.NoError(t, err)
			_, ok := model[k]
			require.Equal(t, ok, replaced)
			model[k] = v
		}
	}
	require.EqualValues(t, len(model), bt.Len())
	var (
		count   uint64
		prevKey uint64
	)
	it := bt.Iter()
	for {
		ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		if count > 0 {
			require.Greater(t, it.Key(), prevKey)
		}
		prevKey = it.Key()
		require.Equal(t, model[it.Key()], it.Value())
		count++
	}
	require.Equal(t, bt.Len(), count)
}

// Deleting everything and refilling in the same order must reuse freed
// blocks instead of growing the region.
func TestBTreeMapFreelistReuse(t *testing.T) {
	bt, mem := newTestMap(t)
	for i := uint64(0); i < 2000; i++ {
		_, _, err := bt.Put(i, "v")
		require.NoError(t, err)
	}
	highWater := mem.Size()
	for i := uint64(0); i < 2000; i++ {
		_, found, err := bt.Del(i)
		require.NoError(t, err)
		require.True(t, found)
	}
	require.NotZero(t, bt.Stat().NodeFrees)
	for i := uint64(0); i < 2000; i++ {
		_, _, err := bt.Put(i, "v")
		require.NoError(t, err)
	}
	require.Equal(t, highWater, mem.Size())
}
