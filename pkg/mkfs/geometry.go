package mkfs

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	. "github.com/weberc2/ext2fs/pkg/types"
)

const (
	UnknownPresetErr ConstError = "unknown geometry preset"
)

// Geometry describes the layout of a filesystem to be created.
type Geometry struct {
	BlocksCount    uint32 `json:"blocksCount" yaml:"blocksCount"`
	LogBlockSize   uint32 `json:"logBlockSize" yaml:"logBlockSize"`
	BlocksPerGroup uint32 `json:"blocksPerGroup" yaml:"blocksPerGroup"`
	InodesPerGroup uint32 `json:"inodesPerGroup" yaml:"inodesPerGroup"`

	// SparseBackups places copies of the superblock and descriptor table
	// in groups 1 and powers of 3, 5 and 7. Group 0 always has the
	// primary copies.
	SparseBackups bool `json:"sparseBackups" yaml:"sparseBackups"`

	VolumeName string    `json:"volumeName" yaml:"volumeName"`
	UUID       uuid.UUID `json:"uuid" yaml:"uuid"`
}

var (
	// Floppy is a 1.44MB image with a single group.
	Floppy = Geometry{
		BlocksCount:    1440,
		BlocksPerGroup: 1439,
		InodesPerGroup: 184,
	}

	// FloppyPlus is a 24MB image spanning three groups, with a backup
	// superblock in group 1.
	FloppyPlus = Geometry{
		BlocksCount:    24577,
		BlocksPerGroup: 8192,
		InodesPerGroup: 1712,
		SparseBackups:  true,
	}
)

// Preset looks up a named geometry (case-insensitive).
func Preset(name string) (Geometry, error) {
	switch strings.ToLower(name) {
	case "floppy":
		return Floppy, nil
	case "floppyplus", "floppy-plus":
		return FloppyPlus, nil
	default:
		return Geometry{}, fmt.Errorf("`%s`: %w", name, UnknownPresetErr)
	}
}

func (g Geometry) BlockSize() Byte { return DeviceBlockSize << g.LogBlockSize }

// FirstDataBlock is 1 for 1KiB blocks, where block 0 is the boot block and
// the superblock fills block 1; otherwise the superblock shares block 0.
func (g Geometry) FirstDataBlock() uint32 {
	if g.LogBlockSize == 0 {
		return 1
	}
	return 0
}

// DeviceBlocks is the minimum device length, in device blocks.
func (g Geometry) DeviceBlocks() uint64 {
	return uint64(g.BlocksCount) << g.LogBlockSize
}
