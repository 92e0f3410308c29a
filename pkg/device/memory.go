package device

import (
	"fmt"
	"io"

	"github.com/google/btree"
	. "github.com/weberc2/ext2fs/pkg/types"
)

type memoryBlock struct {
	index uint64
	data  *[DeviceBlockSize]byte
}

func lessMemoryBlock(a, b memoryBlock) bool { return a.index < b.index }

// Memory is a sparse in-memory device. Only blocks holding nonzero data are
// stored; everything else reads as zeros.
type Memory struct {
	blocks uint64
	tree   *btree.BTreeG[memoryBlock]
}

func NewMemory(blocks uint64) *Memory {
	return &Memory{
		blocks: blocks,
		tree:   btree.NewG(16, lessMemoryBlock),
	}
}

func (m *Memory) Len() uint64 { return m.blocks }

func (m *Memory) ReadBlock(index uint64, b *[DeviceBlockSize]byte) error {
	if err := checkIndex(m, index); err != nil {
		return fmt.Errorf("reading memory device: %w", err)
	}
	if item, ok := m.tree.Get(memoryBlock{index: index}); ok {
		*b = *item.data
		return nil
	}
	zero(b)
	return nil
}

func (m *Memory) WriteBlock(index uint64, b *[DeviceBlockSize]byte) error {
	if err := checkIndex(m, index); err != nil {
		return fmt.Errorf("writing memory device: %w", err)
	}
	if isZero(b) {
		m.tree.Delete(memoryBlock{index: index})
		return nil
	}
	data := new([DeviceBlockSize]byte)
	*data = *b
	m.tree.ReplaceOrInsert(memoryBlock{index: index, data: data})
	return nil
}

// Stored returns the number of nonzero blocks held in memory.
func (m *Memory) Stored() int { return m.tree.Len() }

// WriteTo writes the device's full, dense image to `w`.
func (m *Memory) WriteTo(w io.Writer) (int64, error) {
	var (
		written int64
		next    uint64
		err     error
		zeros   [DeviceBlockSize]byte
	)

	writeBlock := func(b *[DeviceBlockSize]byte) bool {
		var n int
		n, err = w.Write(b[:])
		written += int64(n)
		return err == nil
	}

	m.tree.Ascend(func(item memoryBlock) bool {
		for ; next < item.index; next++ {
			if !writeBlock(&zeros) {
				return false
			}
		}
		next++
		return writeBlock(item.data)
	})
	for ; err == nil && next < m.blocks; next++ {
		writeBlock(&zeros)
	}

	if err != nil {
		return written, fmt.Errorf("writing memory device image: %w", err)
	}
	return written, nil
}

// ReadFrom loads a dense image from `r` starting at block 0. A trailing
// partial block is zero-padded; data beyond the device is an error.
func (m *Memory) ReadFrom(r io.Reader) (int64, error) {
	var (
		read  int64
		index uint64
		b     [DeviceBlockSize]byte
	)
	for {
		n, err := io.ReadFull(r, b[:])
		read += int64(n)
		if n > 0 {
			for i := n; i < len(b); i++ {
				b[i] = 0
			}
			if err := m.WriteBlock(index, &b); err != nil {
				return read, fmt.Errorf("loading memory device image: %w", err)
			}
			index++
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return read, nil
		}
		if err != nil {
			return read, fmt.Errorf("loading memory device image: %w", err)
		}
	}
}
