package encode

import (
	"bytes"
	"fmt"

	. "github.com/weberc2/ext2fs/pkg/types"
)

func EncodeSuperblock(sb *Superblock, b *[SuperblockSize]byte) {
	p := b[:]
	putU32(p, 0, sb.InodesCount)
	putU32(p, 4, sb.BlocksCount)
	putU32(p, 8, sb.ReservedBlocksCount)
	putU32(p, 12, sb.FreeBlocksCount)
	putU32(p, 16, sb.FreeInodesCount)
	putU32(p, 20, sb.FirstDataBlock)
	putU32(p, 24, sb.LogBlockSize)
	putU32(p, 28, sb.LogFragSize)
	putU32(p, 32, sb.BlocksPerGroup)
	putU32(p, 36, sb.FragsPerGroup)
	putU32(p, 40, sb.InodesPerGroup)
	putU32(p, 44, sb.MountTime)
	putU32(p, 48, sb.WriteTime)
	putU16(p, 52, sb.MountCount)
	putU16(p, 54, sb.MaxMountCount)
	putU16(p, 56, sb.Magic)
	putU16(p, 58, uint16(sb.State))
	putU16(p, 60, sb.Errors)
	putU16(p, 62, sb.MinorRevLevel)
	putU32(p, 64, sb.LastCheck)
	putU32(p, 68, sb.CheckInterval)
	putU32(p, 72, sb.CreatorOS)
	putU32(p, 76, sb.RevLevel)
	putU16(p, 80, sb.DefResUID)
	putU16(p, 82, sb.DefResGID)
	putU32(p, 84, sb.FirstIno)
	putU16(p, 88, sb.InodeSize)
	putU16(p, 90, sb.BlockGroupNr)
	copy(p[superblockUUIDStart:superblockUUIDEnd], sb.UUID[:])

	name := p[superblockVolumeNameStart:superblockVolumeNameEnd]
	for i := range name {
		name[i] = 0
	}
	copy(name, sb.VolumeName)
}

func DecodeSuperblock(sb *Superblock, b *[SuperblockSize]byte) error {
	p := b[:]

	// validate before mutating `sb`
	if magic := getU16(p, 56); magic != SuperblockMagic {
		return fmt.Errorf("decoding superblock: %w", ErrBadMagic{Found: magic})
	}

	sb.InodesCount = getU32(p, 0)
	sb.BlocksCount = getU32(p, 4)
	sb.ReservedBlocksCount = getU32(p, 8)
	sb.FreeBlocksCount = getU32(p, 12)
	sb.FreeInodesCount = getU32(p, 16)
	sb.FirstDataBlock = getU32(p, 20)
	sb.LogBlockSize = getU32(p, 24)
	sb.LogFragSize = getU32(p, 28)
	sb.BlocksPerGroup = getU32(p, 32)
	sb.FragsPerGroup = getU32(p, 36)
	sb.InodesPerGroup = getU32(p, 40)
	sb.MountTime = getU32(p, 44)
	sb.WriteTime = getU32(p, 48)
	sb.MountCount = getU16(p, 52)
	sb.MaxMountCount = getU16(p, 54)
	sb.Magic = getU16(p, 56)
	sb.State = SuperblockState(getU16(p, 58))
	sb.Errors = getU16(p, 60)
	sb.MinorRevLevel = getU16(p, 62)
	sb.LastCheck = getU32(p, 64)
	sb.CheckInterval = getU32(p, 68)
	sb.CreatorOS = getU32(p, 72)
	sb.RevLevel = getU32(p, 76)
	sb.DefResUID = getU16(p, 80)
	sb.DefResGID = getU16(p, 82)
	sb.FirstIno = getU32(p, 84)
	sb.InodeSize = getU16(p, 88)
	sb.BlockGroupNr = getU16(p, 90)
	copy(sb.UUID[:], p[superblockUUIDStart:superblockUUIDEnd])

	name := p[superblockVolumeNameStart:superblockVolumeNameEnd]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	sb.VolumeName = string(name)
	return nil
}

const (
	superblockUUIDStart = 104
	superblockUUIDSize  = 16
	superblockUUIDEnd   = superblockUUIDStart + superblockUUIDSize

	superblockVolumeNameStart = superblockUUIDEnd
	superblockVolumeNameSize  = 16
	superblockVolumeNameEnd   = superblockVolumeNameStart +
		superblockVolumeNameSize

	// MaxVolumeNameLen is the longest volume name which fits in the
	// superblock.
	MaxVolumeNameLen = superblockVolumeNameSize
)
