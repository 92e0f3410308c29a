// Package data reads and writes an inode's byte stream, splitting each
// transfer into chunks that never cross a block boundary.
package data

import (
	"fmt"

	"github.com/weberc2/ext2fs/pkg/inode/data/block/physical"
	"github.com/weberc2/ext2fs/pkg/io"
	"github.com/weberc2/ext2fs/pkg/math"
	. "github.com/weberc2/ext2fs/pkg/types"
)

type ReadWriter struct {
	volume   io.BlockReadWriter
	physical *physical.ReadWriter
}

func NewReadWriter(
	volume io.BlockReadWriter,
	physical *physical.ReadWriter,
) *ReadWriter {
	return &ReadWriter{volume: volume, physical: physical}
}

// Read copies up to `len(b)` bytes starting at `offset`, clamped to the
// inode's size. The blocks being read must already be allocated.
func (rw *ReadWriter) Read(inode *Inode, offset Byte, b []byte) (Byte, error) {
	if offset >= inode.Size {
		return 0, nil
	}

	var (
		blockSize  = rw.volume.BlockSize()
		reader     = rw.physical.Reader()
		maxLength  = math.Min(Byte(len(b)), inode.Size-offset)
		chunkBegin Byte
	)
	for chunkBegin < maxLength {
		chunkBlock := Block((offset + chunkBegin) / blockSize)
		chunkOffset := (offset + chunkBegin) % blockSize
		chunkLength := math.Min(maxLength-chunkBegin, blockSize-chunkOffset)

		p, err := reader.Read(inode, chunkBlock)
		if err == nil {
			err = rw.volume.ReadAt(
				p,
				chunkOffset,
				b[chunkBegin:chunkBegin+chunkLength],
			)
		}
		if err != nil {
			return chunkBegin, fmt.Errorf(
				"reading up to `%d` bytes from inode `%d` at offset `%d`: %w",
				len(b),
				inode.Ino,
				offset,
				err,
			)
		}
		chunkBegin += chunkLength
	}

	return chunkBegin, nil
}

// Write copies all of `b` to the inode's stream at `offset`, allocating
// any missing blocks. It doesn't change the inode's size; callers size the
// file first.
func (rw *ReadWriter) Write(
	inode *Inode,
	offset Byte,
	b []byte,
) (Byte, error) {
	var (
		blockSize  = rw.volume.BlockSize()
		chunkBegin Byte
	)
	for chunkBegin < Byte(len(b)) {
		chunkBlock := Block((offset + chunkBegin) / blockSize)
		chunkOffset := (offset + chunkBegin) % blockSize
		chunkLength := math.Min(
			Byte(len(b))-chunkBegin,
			blockSize-chunkOffset,
		)

		p, err := rw.physical.ReadAlloc(inode, chunkBlock)
		if err == nil {
			err = rw.volume.WriteAt(
				p,
				chunkOffset,
				b[chunkBegin:chunkBegin+chunkLength],
			)
		}
		if err != nil {
			return chunkBegin, fmt.Errorf(
				"writing up to `%d` bytes to inode `%d` at offset `%d`: %w",
				len(b),
				inode.Ino,
				offset,
				err,
			)
		}
		chunkBegin += chunkLength
	}

	return chunkBegin, nil
}
