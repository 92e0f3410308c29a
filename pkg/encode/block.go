package encode

import (
	. "github.com/weberc2/ext2fs/pkg/types"
)

func EncodeBlock(b Block, p *[BlockPointerSize]byte) {
	putBlock(p[:], 0, b)
}

func DecodeBlock(p *[BlockPointerSize]byte) Block {
	return getBlock(p[:], 0)
}

// DecodeBlocks decodes an indirect block's pointer array. `p` must hold
// exactly `len(out)` pointers.
func DecodeBlocks(p []byte, out []Block) {
	for i := range out {
		out[i] = getBlock(p, Byte(i)*BlockPointerSize)
	}
}

func EncodeBlocks(blocks []Block, p []byte) {
	for i := range blocks {
		putBlock(p, Byte(i)*BlockPointerSize, blocks[i])
	}
}
