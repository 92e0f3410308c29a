package encode

import (
	. "github.com/weberc2/ext2fs/pkg/types"
)

func EncodeInode(inode *Inode, b *[InodeSize]byte) {
	p := b[:]

	putU16(p, inodeModeStart, uint16(inode.Mode))
	putU16(p, inodeUIDStart, inode.UID)
	putU32(p, inodeSizeStart, uint32(inode.Size))
	putU32(p, inodeATimeStart, inode.ATime)
	putU32(p, inodeCTimeStart, inode.CTime)
	putU32(p, inodeMTimeStart, inode.MTime)
	putU32(p, inodeDTimeStart, inode.DTime)
	putU16(p, inodeGIDStart, inode.GID)
	putU16(p, inodeLinksCountStart, inode.LinksCount)
	putU32(p, inodeSectorsStart, inode.Sectors)
	putU32(p, inodeFlagsStart, inode.Flags)
	putU32(p, inodeOSD1Start, 0)

	for i := range inode.Block {
		putBlock(p, inodeBlockStart+Byte(i)*BlockPointerSize, inode.Block[i])
	}

	putU32(p, inodeGenerationStart, inode.Generation)
	putU32(p, inodeFileACLStart, inode.FileACL)
	putU32(p, inodeDirACLStart, inode.DirACL)

	for i := inodeDirACLEnd; i < InodeSize; i++ {
		p[i] = 0
	}
}

// DecodeInode decodes an inode record. Unlike directory entries, a zeroed
// record is valid here (it's what a freshly allocated inode looks like), so
// the mode isn't validated.
func DecodeInode(inode *Inode, b *[InodeSize]byte) {
	p := b[:]

	inode.Mode = Mode(getU16(p, inodeModeStart))
	inode.UID = getU16(p, inodeUIDStart)
	inode.Size = Byte(getU32(p, inodeSizeStart))
	inode.ATime = getU32(p, inodeATimeStart)
	inode.CTime = getU32(p, inodeCTimeStart)
	inode.MTime = getU32(p, inodeMTimeStart)
	inode.DTime = getU32(p, inodeDTimeStart)
	inode.GID = getU16(p, inodeGIDStart)
	inode.LinksCount = getU16(p, inodeLinksCountStart)
	inode.Sectors = getU32(p, inodeSectorsStart)
	inode.Flags = getU32(p, inodeFlagsStart)

	for i := range inode.Block {
		inode.Block[i] = getBlock(p, inodeBlockStart+Byte(i)*BlockPointerSize)
	}

	inode.Generation = getU32(p, inodeGenerationStart)
	inode.FileACL = getU32(p, inodeFileACLStart)
	inode.DirACL = getU32(p, inodeDirACLStart)
}

const (
	inodeModeStart = 0
	inodeModeSize  = 2
	inodeModeEnd   = inodeModeStart + inodeModeSize

	inodeUIDStart = inodeModeEnd
	inodeUIDSize  = 2
	inodeUIDEnd   = inodeUIDStart + inodeUIDSize

	inodeSizeStart = inodeUIDEnd
	inodeSizeSize  = 4
	inodeSizeEnd   = inodeSizeStart + inodeSizeSize

	inodeATimeStart = inodeSizeEnd
	inodeATimeEnd   = inodeATimeStart + 4

	inodeCTimeStart = inodeATimeEnd
	inodeCTimeEnd   = inodeCTimeStart + 4

	inodeMTimeStart = inodeCTimeEnd
	inodeMTimeEnd   = inodeMTimeStart + 4

	inodeDTimeStart = inodeMTimeEnd
	inodeDTimeEnd   = inodeDTimeStart + 4

	inodeGIDStart = inodeDTimeEnd
	inodeGIDEnd   = inodeGIDStart + 2

	inodeLinksCountStart = inodeGIDEnd
	inodeLinksCountEnd   = inodeLinksCountStart + 2

	inodeSectorsStart = inodeLinksCountEnd
	inodeSectorsEnd   = inodeSectorsStart + 4

	inodeFlagsStart = inodeSectorsEnd
	inodeFlagsEnd   = inodeFlagsStart + 4

	inodeOSD1Start = inodeFlagsEnd
	inodeOSD1End   = inodeOSD1Start + 4

	inodeBlockStart = inodeOSD1End
	inodeBlockSize  = Byte(BlockPointersCount) * BlockPointerSize
	inodeBlockEnd   = inodeBlockStart + inodeBlockSize

	inodeGenerationStart = inodeBlockEnd
	inodeGenerationEnd   = inodeGenerationStart + 4

	inodeFileACLStart = inodeGenerationEnd
	inodeFileACLEnd   = inodeFileACLStart + 4

	inodeDirACLStart = inodeFileACLEnd
	inodeDirACLEnd   = inodeDirACLStart + 4
)
