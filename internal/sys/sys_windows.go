//go:build windows

package sys

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

const fileMapAllAccess = 0x000F001F

// MMap maps a file into memory with read/write access, similar to Unix mmap.
func MMap(file *os.File, length uint64) (dat []byte, err error) {
	hFile := windows.Handle(file.Fd())
	hMap, err := windows.CreateFileMapping(
		hFile,
		nil,
		windows.PAGE_READWRITE,
		uint32(length>>32),
		uint32(length),
		nil,
	)
	if err != nil {
		return nil, err
	}
	addr, err := windows.MapViewOfFile(
		hMap,
		fileMapAllAccess,
		0,
		0,
		uintptr(length),
	)
	if err != nil {
		windows.CloseHandle(hMap)
		return nil, err
	}
	dat = unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)
	// Windows keeps the mapping alive until all views are unmapped.
	windows.CloseHandle(hMap)
	return dat, nil
}

func MUnmap(file *os.File, dat []byte) (err error) {
	if len(dat) == 0 {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&dat[0]))
	return windows.UnmapViewOfFile(addr)
}

// Remap replaces an existing mapping with one of the new length.
func Remap(file *os.File, newLength uint64, olddat []byte) (dat []byte, err error) {
	if len(olddat) > 0 {
		err = MUnmap(file, olddat)
		if err != nil {
			return nil, err
		}
	}
	return MMap(file, newLength)
}

// MSync flushes the mapped region to its backing file.
func MSync(dat []byte) (err error) {
	if len(dat) == 0 {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&dat[0]))
	return windows.FlushViewOfFile(addr, uintptr(len(dat)))
}
