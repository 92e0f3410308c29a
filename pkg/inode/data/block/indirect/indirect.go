// Package indirect reads and writes block pointers stored in indirect
// blocks.
package indirect

import (
	"fmt"

	"github.com/weberc2/ext2fs/pkg/encode"
	"github.com/weberc2/ext2fs/pkg/io"
	. "github.com/weberc2/ext2fs/pkg/types"
)

// Index is a slot within an indirect block.
type Index uint32

type Reader struct {
	volume io.BlockReader
}

func NewReader(volume io.BlockReader) Reader {
	return Reader{volume}
}

func (r Reader) ReadIndirect(indirect Block, index Index) (Block, error) {
	buf := new([BlockPointerSize]byte)
	if err := r.volume.ReadAt(
		indirect,
		Byte(index)*BlockPointerSize,
		buf[:],
	); err != nil {
		return BlockNil, fmt.Errorf(
			"reading indirect block `%d` at index `%d`: %w",
			indirect,
			index,
			err,
		)
	}
	return encode.DecodeBlock(buf), nil
}

// ReadAll decodes every pointer in `indirect` into `out`, which must hold
// exactly one block's worth of pointers.
func (r Reader) ReadAll(indirect Block, out []Block) error {
	p := make([]byte, Byte(len(out))*BlockPointerSize)
	if err := r.volume.ReadBlock(indirect, p); err != nil {
		return fmt.Errorf("reading indirect block `%d`: %w", indirect, err)
	}
	encode.DecodeBlocks(p, out)
	return nil
}

type ReadWriter struct {
	volume io.BlockReadWriter
}

func NewReadWriter(volume io.BlockReadWriter) ReadWriter {
	return ReadWriter{volume}
}

// Entries is the number of pointers an indirect block holds.
func (rw ReadWriter) Entries() Block {
	return Block(rw.volume.BlockSize() / BlockPointerSize)
}

func (rw ReadWriter) Reader() Reader { return Reader{rw.volume} }

func (rw ReadWriter) ReadIndirect(indirect Block, index Index) (Block, error) {
	return rw.Reader().ReadIndirect(indirect, index)
}

func (rw ReadWriter) ReadAll(indirect Block, out []Block) error {
	return rw.Reader().ReadAll(indirect, out)
}

func (rw ReadWriter) WriteIndirect(
	indirect Block,
	index Index,
	target Block,
) error {
	buf := new([BlockPointerSize]byte)
	encode.EncodeBlock(target, buf)
	if err := rw.volume.WriteAt(
		indirect,
		Byte(index)*BlockPointerSize,
		buf[:],
	); err != nil {
		return fmt.Errorf(
			"writing target block `%d` to indirect block `%d` at index "+
				"`%d`: %w",
			target,
			indirect,
			index,
			err,
		)
	}
	return nil
}

func (rw ReadWriter) WriteAll(indirect Block, blocks []Block) error {
	p := make([]byte, Byte(len(blocks))*BlockPointerSize)
	encode.EncodeBlocks(blocks, p)
	if err := rw.volume.WriteBlock(indirect, p); err != nil {
		return fmt.Errorf("writing indirect block `%d`: %w", indirect, err)
	}
	return nil
}
