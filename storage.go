package stablebt

import (
	"fmt"
	"os"

	"github.com/nyan233/stablebt/internal/sys"
)

// MMapMemory is a Memory whose bytes live in a memory-mapped file, so they
// survive a process restart. Growth truncates the file to exactly the byte
// needed and remaps; callers wanting amortized growth batch their writes,
// which the engine does by writing whole node blocks.
type MMapMemory struct {
	path string
	file *os.File
	dat  []byte
	size uint64
}

func NewMMapMemory(path string) *MMapMemory {
	return &MMapMemory{
		path: path,
	}
}

func (m *MMapMemory) Init() (err error) {
	m.file, err = os.OpenFile(m.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return
	}
	stat, err := m.file.Stat()
	if err != nil {
		return
	}
	m.size = uint64(stat.Size())
	if m.size > 0 {
		m.dat, err = sys.MMap(m.file, m.size)
	}
	return
}

func (m *MMapMemory) Read(offset uint64, p []byte) error {
	end := offset + uint64(len(p))
	if end < offset || end > m.size {
		return fmt.Errorf("%w: read [%d, %d) size %d", ErrOutOfBounds, offset, end, m.size)
	}
	copy(p, m.dat[offset:end])
	return nil
}

func (m *MMapMemory) Write(offset uint64, p []byte) error {
	end := offset + uint64(len(p))
	if end < offset {
		return fmt.Errorf("%w: write [%d, %d)", ErrOutOfBounds, offset, end)
	}
	if end > m.size {
		if err := m.grow(end); err != nil {
			return err
		}
	}
	copy(m.dat[offset:end], p)
	return nil
}

func (m *MMapMemory) grow(newSize uint64) (err error) {
	if err = m.file.Truncate(int64(newSize)); err != nil {
		return
	}
	m.dat, err = sys.Remap(m.file, newSize, m.dat)
	if err != nil {
		return
	}
	m.size = newSize
	return
}

func (m *MMapMemory) Size() uint64 {
	return m.size
}

// Sync flushes the mapped bytes to the backing file.
func (m *MMapMemory) Sync() error {
	if m.dat == nil {
		return nil
	}
	return sys.MSync(m.dat)
}

func (m *MMapMemory) Close() (err error) {
	if m.dat != nil {
		if err = sys.MUnmap(m.file, m.dat); err != nil {
			return
		}
		m.dat = nil
	}
	if m.file != nil {
		err = m.file.Close()
		m.file = nil
	}
	return
}
