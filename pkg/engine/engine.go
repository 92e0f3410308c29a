// Package engine wires the on-disk components of a volume together.
package engine

import (
	"fmt"

	"github.com/weberc2/ext2fs/pkg/alloc"
	"github.com/weberc2/ext2fs/pkg/device"
	"github.com/weberc2/ext2fs/pkg/directory"
	"github.com/weberc2/ext2fs/pkg/group"
	"github.com/weberc2/ext2fs/pkg/inode/data"
	"github.com/weberc2/ext2fs/pkg/inode/data/block/indirect"
	"github.com/weberc2/ext2fs/pkg/inode/data/block/physical"
	"github.com/weberc2/ext2fs/pkg/inode/resize"
	"github.com/weberc2/ext2fs/pkg/inode/store"
	"github.com/weberc2/ext2fs/pkg/io"
	"github.com/weberc2/ext2fs/pkg/superblock"
	. "github.com/weberc2/ext2fs/pkg/types"
)

type Engine struct {
	Device      device.Device
	Superblock  *superblock.Store
	Volume      *io.Volume
	Groups      *group.Directory
	Blocks      *alloc.BlockAllocator
	Inos        *alloc.InoAllocator
	Inodes      InodeStore
	Physical    *physical.ReadWriter
	Data        *data.ReadWriter
	Resizer     *resize.Resizer
	Directories *directory.Directories
}

type Options struct {
	// InodeCacheCapacity is the number of inode records kept in memory. Zero
	// disables the cache.
	InodeCacheCapacity int
}

// Open reads the superblock and group descriptors from `dev` and builds
// every component on top of them.
func Open(dev device.Device, options Options) (*Engine, error) {
	sbStore := superblock.NewStore(dev)
	sb, err := sbStore.Read()
	if err != nil {
		return nil, fmt.Errorf("opening volume: %w", err)
	}

	if needed := uint64(sb.BlocksCount) * sb.DeviceBlocksPerBlock(); dev.Len() < needed {
		return nil, fmt.Errorf(
			"opening volume: device has `%d` blocks; filesystem needs "+
				"`%d`: %w",
			dev.Len(),
			needed,
			device.OutOfRangeErr,
		)
	}

	volume := io.NewVolume(dev, sb.LogBlockSize)
	groups := group.NewDirectory(volume, sbStore)
	if err := groups.Refresh(); err != nil {
		return nil, fmt.Errorf("opening volume: %w", err)
	}

	var inodes InodeStore = store.NewVolumeInodeStore(volume, groups)
	if options.InodeCacheCapacity > 0 {
		inodes = store.NewCachingInodeStore(
			inodes,
			options.InodeCacheCapacity,
		)
	}

	var (
		blockSize = sb.BlockSize()
		blocks    = alloc.NewBlockAllocator(volume, groups, sbStore)
		rw        = physical.NewReadWriter(
			blocks,
			indirect.NewReadWriter(volume),
			inodes,
		)
		stream  = data.NewReadWriter(volume, rw)
		resizer = resize.NewResizer(volume, blocks, rw, inodes)
	)
	return &Engine{
		Device:      dev,
		Superblock:  sbStore,
		Volume:      volume,
		Groups:      groups,
		Blocks:      blocks,
		Inos:        alloc.NewInoAllocator(volume, groups, sbStore),
		Inodes:      inodes,
		Physical:    rw,
		Data:        stream,
		Resizer:     resizer,
		Directories: directory.New(stream, resizer, blockSize),
	}, nil
}

// BlockSize is the filesystem block size in bytes.
func (e *Engine) BlockSize() Byte { return e.Volume.BlockSize() }
