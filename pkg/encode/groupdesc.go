package encode

import (
	. "github.com/weberc2/ext2fs/pkg/types"
)

func EncodeGroupDesc(desc *GroupDesc, b *[GroupDescSize]byte) {
	p := b[:]
	putBlock(p, groupDescBlockBitmapStart, desc.BlockBitmap)
	putBlock(p, groupDescInodeBitmapStart, desc.InodeBitmap)
	putBlock(p, groupDescInodeTableStart, desc.InodeTable)
	putU16(p, groupDescFreeBlocksStart, desc.FreeBlocksCount)
	putU16(p, groupDescFreeInodesStart, desc.FreeInodesCount)
	putU16(p, groupDescUsedDirsStart, desc.UsedDirsCount)
	for i := groupDescUsedDirsEnd; i < GroupDescSize; i++ {
		p[i] = 0
	}
}

func DecodeGroupDesc(desc *GroupDesc, b *[GroupDescSize]byte) {
	p := b[:]
	desc.BlockBitmap = getBlock(p, groupDescBlockBitmapStart)
	desc.InodeBitmap = getBlock(p, groupDescInodeBitmapStart)
	desc.InodeTable = getBlock(p, groupDescInodeTableStart)
	desc.FreeBlocksCount = getU16(p, groupDescFreeBlocksStart)
	desc.FreeInodesCount = getU16(p, groupDescFreeInodesStart)
	desc.UsedDirsCount = getU16(p, groupDescUsedDirsStart)
}

const (
	groupDescBlockBitmapStart = 0
	groupDescBlockBitmapEnd   = groupDescBlockBitmapStart + BlockPointerSize

	groupDescInodeBitmapStart = groupDescBlockBitmapEnd
	groupDescInodeBitmapEnd   = groupDescInodeBitmapStart + BlockPointerSize

	groupDescInodeTableStart = groupDescInodeBitmapEnd
	groupDescInodeTableEnd   = groupDescInodeTableStart + BlockPointerSize

	groupDescFreeBlocksStart = groupDescInodeTableEnd
	groupDescFreeBlocksEnd   = groupDescFreeBlocksStart + 2

	groupDescFreeInodesStart = groupDescFreeBlocksEnd
	groupDescFreeInodesEnd   = groupDescFreeInodesStart + 2

	groupDescUsedDirsStart = groupDescFreeInodesEnd
	groupDescUsedDirsEnd   = groupDescUsedDirsStart + 2
)
