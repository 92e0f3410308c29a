package types

import (
	"fmt"

	"github.com/google/uuid"
)

type SuperblockState uint16

const (
	SuperblockMagic uint16 = 0xef53

	// SuperblockSize is the size of the superblock record on disk. It always
	// occupies exactly device block 1 regardless of the filesystem block
	// size.
	SuperblockSize        Byte   = 1024
	SuperblockDeviceBlock uint64 = 1

	StateValid SuperblockState = 1
	StateError SuperblockState = 2

	CreatorOSLinux uint32 = 0

	RevLevelDynamic uint32 = 1
	DefaultFirstIno uint32 = 11
)

type Superblock struct {
	InodesCount         uint32
	BlocksCount         uint32
	ReservedBlocksCount uint32
	FreeBlocksCount     uint32
	FreeInodesCount     uint32
	FirstDataBlock      uint32
	LogBlockSize        uint32
	LogFragSize         uint32
	BlocksPerGroup      uint32
	FragsPerGroup       uint32
	InodesPerGroup      uint32
	MountTime           uint32
	WriteTime           uint32
	MountCount          uint16
	MaxMountCount       uint16
	Magic               uint16
	State               SuperblockState
	Errors              uint16
	MinorRevLevel       uint16
	LastCheck           uint32
	CheckInterval       uint32
	CreatorOS           uint32
	RevLevel            uint32
	DefResUID           uint16
	DefResGID           uint16
	FirstIno            uint32
	InodeSize           uint16
	BlockGroupNr        uint16
	UUID                uuid.UUID
	VolumeName          string
}

// BlockSize is the filesystem block size: `1024 << LogBlockSize`.
func (sb *Superblock) BlockSize() Byte {
	return DeviceBlockSize << sb.LogBlockSize
}

// DeviceBlocksPerBlock is the number of device blocks which make up one
// filesystem block.
func (sb *Superblock) DeviceBlocksPerBlock() uint64 {
	return 1 << sb.LogBlockSize
}

// SectorsPerBlock is the number of 512-byte sectors in one filesystem
// block. `Inode.Sectors` is counted in these units.
func (sb *Superblock) SectorsPerBlock() uint32 {
	return uint32(sb.BlockSize() / SectorSize)
}

// EntriesPerBlock is the number of block pointers in an indirect block.
func (sb *Superblock) EntriesPerBlock() Block {
	return Block(sb.BlockSize() / BlockPointerSize)
}

// InodesPerBlock is the number of inode records in one inode table block.
func (sb *Superblock) InodesPerBlock() uint32 {
	return uint32(sb.BlockSize() / InodeSize)
}

// InodeTableBlocks is the number of blocks each group's inode table spans.
func (sb *Superblock) InodeTableBlocks() uint32 {
	perBlock := sb.InodesPerBlock()
	return (sb.InodesPerGroup + perBlock - 1) / perBlock
}

// GroupCount is `ceil((BlocksCount - FirstDataBlock) / BlocksPerGroup)`.
func (sb *Superblock) GroupCount() uint32 {
	return (sb.BlocksCount - sb.FirstDataBlock + sb.BlocksPerGroup - 1) /
		sb.BlocksPerGroup
}

// GroupDescTableBlock is the first block of the group descriptor table.
func (sb *Superblock) GroupDescTableBlock() Block {
	return Block(sb.FirstDataBlock + 1)
}

func (sb *Superblock) Validate() error {
	if sb.Magic != SuperblockMagic {
		return fmt.Errorf("validating superblock: %w", ErrBadMagic{sb.Magic})
	}
	if sb.BlocksPerGroup == 0 || sb.InodesPerGroup == 0 {
		return fmt.Errorf(
			"validating superblock: %w",
			ErrBadGeometry{"blocks and inodes per group must be nonzero"},
		)
	}
	if sb.BlocksPerGroup > uint32(sb.BlockSize()*8) {
		return fmt.Errorf(
			"validating superblock: %w",
			ErrBadGeometry{fmt.Sprintf(
				"`%d` blocks per group don't fit in one bitmap block",
				sb.BlocksPerGroup,
			)},
		)
	}
	if sb.InodesPerGroup > uint32(sb.BlockSize()*8) {
		return fmt.Errorf(
			"validating superblock: %w",
			ErrBadGeometry{fmt.Sprintf(
				"`%d` inodes per group don't fit in one bitmap block",
				sb.InodesPerGroup,
			)},
		)
	}
	if sb.FirstDataBlock >= sb.BlocksCount {
		return fmt.Errorf(
			"validating superblock: %w",
			ErrBadGeometry{fmt.Sprintf(
				"first data block `%d` beyond blocks count `%d`",
				sb.FirstDataBlock,
				sb.BlocksCount,
			)},
		)
	}
	return nil
}

type ErrBadMagic struct {
	Found uint16
}

func (err ErrBadMagic) Error() string {
	return fmt.Sprintf(
		"bad magic: wanted `%#04x`; found `%#04x`",
		SuperblockMagic,
		err.Found,
	)
}

type ErrBadGeometry struct {
	Reason string
}

func (err ErrBadGeometry) Error() string {
	return "bad geometry: " + err.Reason
}
