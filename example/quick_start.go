package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path"
	"strconv"

	"github.com/nyan233/stablebt"
)

func main() {
	err := os.MkdirAll("dbset", 0755)
	if err != nil {
		panic(err)
	}
	// the map's whole state lives in this file; rerunning the program
	// attaches to whatever it holds
	mem := stablebt.NewMMapMemory(path.Join("dbset", "quick_start.dat"))
	err = mem.Init()
	if err != nil {
		panic(err)
	}
	t := stablebt.NewBTreeMap[uint64, string](mem, stablebt.Config{
		MaxKeySize:   16,
		MaxValueSize: 64,
	}, new(stablebt.Uint64Codec), new(stablebt.StringCodec))
	err = t.Init()
	if err != nil {
		panic(err)
	}
	fmt.Printf("attached, len=%d\n", t.Len())
	for i := uint64(0); i < 64; i++ {
		_, _, err = t.Put(i, strconv.FormatUint(rand.Uint64(), 10))
		if err != nil {
			panic(fmt.Errorf("put err:%v", err))
		}
	}
	for i := 0; i < 8; i++ {
		k := rand.Uint64N(63)
		v, found, err := t.Get(k)
		if err != nil {
			panic(fmt.Errorf("get err:%v", err))
		}
		if !found {
			panic(fmt.Errorf("not found :%d", k))
		}
		fmt.Printf("tree.getVal key=%d, val=%s\n", k, v)
	}
	err = t.Range(func(key uint64, val string) bool {
		return key < 4
	})
	if err != nil {
		panic(fmt.Errorf("range err:%v", err))
	}
	// flush the mapped bytes before exit
	err = mem.Sync()
	if err != nil {
		panic(fmt.Errorf("sync err:%v", err))
	}
	err = mem.Close()
	if err != nil {
		panic(fmt.Errorf("close err:%v", err))
	}
}
