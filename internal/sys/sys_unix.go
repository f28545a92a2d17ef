//go:build unix

package sys

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func MMap(file *os.File, length uint64) (dat []byte, err error) {
	dat, err = unix.Mmap(int(file.Fd()), 0, int(length), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	return
}

func MUnmap(file *os.File, dat []byte) (err error) {
	return unix.Munmap(dat)
}

// Remap replaces an existing mapping with one of the new length. Plain
// munmap+mmap keeps this portable across the unix family.
func Remap(file *os.File, newLength uint64, olddat []byte) (dat []byte, err error) {
	if len(olddat) > 0 {
		err = MUnmap(file, olddat)
		if err != nil {
			return
		}
	}
	return MMap(file, newLength)
}

// MSync flushes the mapped region to its backing file.
func MSync(dat []byte) (err error) {
	return unix.Msync(dat, unix.MS_SYNC)
}
