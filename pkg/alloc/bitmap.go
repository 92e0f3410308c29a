package alloc

import (
	"fmt"

	"github.com/diskfs/go-diskfs/util/bitmap"
	"github.com/weberc2/ext2fs/pkg/io"
	. "github.com/weberc2/ext2fs/pkg/types"
)

// Bitmap is a one-block allocation bitmap stored at a fixed block. Bits are
// LSB-first and 1 means allocated. Every mutation is written straight back
// to the volume.
type Bitmap struct {
	volume io.BlockReadWriter
	block  Block
}

func NewBitmap(volume io.BlockReadWriter, block Block) Bitmap {
	return Bitmap{volume: volume, block: block}
}

func (bm Bitmap) load() (*bitmap.Bitmap, error) {
	p := make([]byte, bm.volume.BlockSize())
	if err := bm.volume.ReadBlock(bm.block, p); err != nil {
		return nil, fmt.Errorf("loading bitmap block `%d`: %w", bm.block, err)
	}
	bits := bitmap.NewBits(len(p) * 8)
	bits.FromBytes(p)
	return bits, nil
}

func (bm Bitmap) store(bits *bitmap.Bitmap) error {
	if err := bm.volume.WriteBlock(bm.block, bits.ToBytes()); err != nil {
		return fmt.Errorf("storing bitmap block `%d`: %w", bm.block, err)
	}
	return nil
}

func (bm Bitmap) Test(offset uint32) (bool, error) {
	bits, err := bm.load()
	if err != nil {
		return false, err
	}
	set, err := bits.IsSet(int(offset))
	if err != nil {
		return false, fmt.Errorf(
			"testing bit `%d` in bitmap block `%d`: %w",
			offset,
			bm.block,
			err,
		)
	}
	return set, nil
}

// Tag sets or clears the bit at `offset` and reports the bit's prior value.
func (bm Bitmap) Tag(offset uint32, allocated bool) (bool, error) {
	bits, err := bm.load()
	if err != nil {
		return false, err
	}
	prior, err := bits.IsSet(int(offset))
	if err != nil {
		return false, fmt.Errorf(
			"tagging bit `%d` in bitmap block `%d`: %w",
			offset,
			bm.block,
			err,
		)
	}
	if prior == allocated {
		return prior, nil
	}

	if allocated {
		err = bits.Set(int(offset))
	} else {
		err = bits.Clear(int(offset))
	}
	if err != nil {
		return prior, fmt.Errorf(
			"tagging bit `%d` in bitmap block `%d`: %w",
			offset,
			bm.block,
			err,
		)
	}
	return prior, bm.store(bits)
}

// Claim sets the first clear bit below `limit` and returns its offset. It
// returns `false` if every bit below `limit` is set.
func (bm Bitmap) Claim(limit uint32) (uint32, bool, error) {
	bits, err := bm.load()
	if err != nil {
		return 0, false, err
	}
	free := bits.FirstFree(0)
	if free < 0 || uint32(free) >= limit {
		return 0, false, nil
	}
	if err := bits.Set(free); err != nil {
		return 0, false, fmt.Errorf(
			"claiming bit `%d` in bitmap block `%d`: %w",
			free,
			bm.block,
			err,
		)
	}
	if err := bm.store(bits); err != nil {
		return 0, false, err
	}
	return uint32(free), true, nil
}
