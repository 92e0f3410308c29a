// Package mkfs formats a device with an empty filesystem.
package mkfs

import (
	"fmt"
	"time"

	"github.com/diskfs/go-diskfs/util/bitmap"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/weberc2/ext2fs/pkg/device"
	"github.com/weberc2/ext2fs/pkg/encode"
	"github.com/weberc2/ext2fs/pkg/engine"
	"github.com/weberc2/ext2fs/pkg/group"
	"github.com/weberc2/ext2fs/pkg/io"
	"github.com/weberc2/ext2fs/pkg/math"
	"github.com/weberc2/ext2fs/pkg/superblock"
	. "github.com/weberc2/ext2fs/pkg/types"
)

const (
	DeviceTooSmallErr ConstError = "device too small for geometry"
)

// layout is where one group's metadata lives.
type layout struct {
	start       Block
	blocks      uint32
	backup      bool
	overhead    uint32
	tableBlocks uint32
	desc        GroupDesc
}

// Format writes a fresh filesystem to `dev`: superblock, descriptor table
// (and backups), zeroed bitmaps and inode tables with metadata blocks
// marked used, and a root directory at inode 1 holding `.` and `..`.
func Format(dev device.Device, geometry Geometry) error {
	if dev.Len() < geometry.DeviceBlocks() {
		return fmt.Errorf(
			"formatting device: `%d` device blocks; geometry needs `%d`: %w",
			dev.Len(),
			geometry.DeviceBlocks(),
			DeviceTooSmallErr,
		)
	}
	if len(geometry.VolumeName) > encode.MaxVolumeNameLen {
		return fmt.Errorf(
			"formatting device: volume name `%s`: %w",
			geometry.VolumeName,
			ErrBadGeometry{Reason: fmt.Sprintf(
				"longer than `%d` bytes",
				encode.MaxVolumeNameLen,
			)},
		)
	}

	id := geometry.UUID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := uint32(time.Now().Unix())
	sb := Superblock{
		BlocksCount:    geometry.BlocksCount,
		FirstDataBlock: geometry.FirstDataBlock(),
		LogBlockSize:   geometry.LogBlockSize,
		LogFragSize:    geometry.LogBlockSize,
		BlocksPerGroup: geometry.BlocksPerGroup,
		FragsPerGroup:  geometry.BlocksPerGroup,
		InodesPerGroup: geometry.InodesPerGroup,
		WriteTime:      now,
		MaxMountCount:  20,
		Magic:          SuperblockMagic,
		State:          StateValid,
		Errors:         1,
		LastCheck:      now,
		CreatorOS:      CreatorOSLinux,
		RevLevel:       RevLevelDynamic,
		FirstIno:       uint32(InoRoot) + 1,
		InodeSize:      uint16(InodeSize),
		UUID:           id,
		VolumeName:     geometry.VolumeName,
	}
	if err := sb.Validate(); err != nil {
		return fmt.Errorf("formatting device: %w", err)
	}
	sb.InodesCount = sb.InodesPerGroup * sb.GroupCount()

	layouts, err := plan(&sb, geometry.SparseBackups)
	if err != nil {
		return fmt.Errorf("formatting device: %w", err)
	}
	for i := range layouts {
		sb.FreeBlocksCount += uint32(layouts[i].desc.FreeBlocksCount)
		sb.FreeInodesCount += uint32(layouts[i].desc.FreeInodesCount)
	}

	sbStore := superblock.NewStore(dev)
	if err := sbStore.Write(&sb); err != nil {
		return fmt.Errorf("formatting device: %w", err)
	}

	volume := io.NewVolume(dev, sb.LogBlockSize)
	groups := group.NewDirectory(volume, sbStore)
	if err := groups.Refresh(); err != nil {
		return fmt.Errorf("formatting device: %w", err)
	}
	for g := range layouts {
		if err := writeGroup(volume, groups, uint32(g), &layouts[g]); err != nil {
			return fmt.Errorf("formatting device: %w", err)
		}
	}

	e, err := engine.Open(dev, engine.Options{})
	if err != nil {
		return fmt.Errorf("formatting device: %w", err)
	}
	if err := makeRoot(e, now); err != nil {
		return fmt.Errorf("formatting device: %w", err)
	}
	if err := writeBackups(e, layouts); err != nil {
		return fmt.Errorf("formatting device: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"uuid":      id,
		"blocks":    sb.BlocksCount,
		"blockSize": sb.BlockSize(),
		"groups":    len(layouts),
		"inodes":    sb.InodesCount,
	}).Info("formatted filesystem")
	return nil
}

func plan(sb *Superblock, sparse bool) ([]layout, error) {
	var (
		count       = sb.GroupCount()
		tableBlocks = uint32(math.DivRoundUp(
			Byte(count)*GroupDescSize,
			sb.BlockSize(),
		))
		layouts = make([]layout, count)
	)
	for g := uint32(0); g < count; g++ {
		l := &layouts[g]
		l.start = Block(sb.FirstDataBlock + g*sb.BlocksPerGroup)
		l.blocks = math.Min(
			sb.BlocksCount-uint32(l.start),
			sb.BlocksPerGroup,
		)
		l.backup = g == 0 || (sparse && group.HasSuperblockBackup(g))

		next := l.start
		if l.backup {
			next += Block(1 + tableBlocks)
		}
		l.desc = GroupDesc{
			BlockBitmap: next,
			InodeBitmap: next + 1,
			InodeTable:  next + 2,
		}
		l.tableBlocks = sb.InodeTableBlocks()
		l.overhead = uint32(next-l.start) + 2 + l.tableBlocks
		if l.overhead >= l.blocks {
			return nil, fmt.Errorf(
				"planning group `%d`: %w",
				g,
				ErrBadGeometry{Reason: fmt.Sprintf(
					"`%d` metadata blocks leave no room in a `%d` block group",
					l.overhead,
					l.blocks,
				)},
			)
		}
		l.desc.FreeBlocksCount = uint16(l.blocks - l.overhead)
		l.desc.FreeInodesCount = uint16(sb.InodesPerGroup)
	}
	return layouts, nil
}

// writeGroup stores a group's descriptor, zeroes its inode table, and
// writes its bitmaps with the metadata blocks and the padding past the end
// of the group marked used.
func writeGroup(
	volume *io.Volume,
	groups *group.Directory,
	g uint32,
	l *layout,
) error {
	if err := groups.Put(g, &l.desc); err != nil {
		return fmt.Errorf("writing group `%d`: %w", g, err)
	}

	bits := int(volume.BlockSize() * 8)
	if err := writeBitmap(
		volume,
		l.desc.BlockBitmap,
		bits,
		func(i int) bool { return i < int(l.overhead) || i >= int(l.blocks) },
	); err != nil {
		return fmt.Errorf("writing group `%d`: block bitmap: %w", g, err)
	}
	if err := writeBitmap(
		volume,
		l.desc.InodeBitmap,
		bits,
		func(i int) bool { return i >= int(groups.InodesPerGroup()) },
	); err != nil {
		return fmt.Errorf("writing group `%d`: inode bitmap: %w", g, err)
	}

	end := l.desc.InodeTable + Block(l.tableBlocks)
	for b := l.desc.InodeTable; b < end; b++ {
		if err := volume.ZeroBlock(b); err != nil {
			return fmt.Errorf("writing group `%d`: inode table: %w", g, err)
		}
	}
	return nil
}

func writeBitmap(
	volume *io.Volume,
	b Block,
	size int,
	used func(i int) bool,
) error {
	bm := bitmap.NewBits(size)
	for i := 0; i < size; i++ {
		if used(i) {
			if err := bm.Set(i); err != nil {
				return fmt.Errorf("marking bit `%d`: %w", i, err)
			}
		}
	}
	if err := volume.WriteBlock(b, bm.ToBytes()); err != nil {
		return fmt.Errorf("writing bitmap block `%d`: %w", b, err)
	}
	return nil
}

func makeRoot(e *engine.Engine, now uint32) error {
	if err := e.Inos.Reserve(InoRoot); err != nil {
		return fmt.Errorf("making root directory: %w", err)
	}
	root := Inode{
		Ino:        InoRoot,
		Mode:       ModeDir | 0755,
		ATime:      now,
		CTime:      now,
		MTime:      now,
		LinksCount: 2,
	}
	if err := e.Inodes.Put(&root); err != nil {
		return fmt.Errorf("making root directory: %w", err)
	}
	if err := e.Directories.Init(&root, InoRoot); err != nil {
		return fmt.Errorf("making root directory: %w", err)
	}
	if err := e.Inos.CountDir(InoRoot, 1); err != nil {
		return fmt.Errorf("making root directory: %w", err)
	}
	return nil
}

// writeBackups copies the final superblock and descriptor table into every
// group that carries a backup.
func writeBackups(e *engine.Engine, layouts []layout) error {
	sb, err := e.Superblock.Read()
	if err != nil {
		return fmt.Errorf("writing backups: %w", err)
	}
	blockSize := e.BlockSize()
	tableBlocks := math.DivRoundUp(
		Byte(len(layouts))*GroupDescSize,
		blockSize,
	)
	table := make([]byte, tableBlocks*blockSize)
	for i := Byte(0); i < tableBlocks; i++ {
		if err := e.Volume.ReadBlock(
			sb.GroupDescTableBlock()+Block(i),
			table[i*blockSize:(i+1)*blockSize],
		); err != nil {
			return fmt.Errorf("writing backups: reading table: %w", err)
		}
	}

	for g := 1; g < len(layouts); g++ {
		l := &layouts[g]
		if !l.backup {
			continue
		}

		backup := sb
		backup.BlockGroupNr = uint16(g)
		var buf [SuperblockSize]byte
		encode.EncodeSuperblock(&backup, &buf)
		if err := e.Volume.WriteAt(l.start, 0, buf[:]); err != nil {
			return fmt.Errorf(
				"writing backups: superblock in group `%d`: %w",
				g,
				err,
			)
		}
		for i := Byte(0); i < tableBlocks; i++ {
			if err := e.Volume.WriteBlock(
				l.start+1+Block(i),
				table[i*blockSize:(i+1)*blockSize],
			); err != nil {
				return fmt.Errorf(
					"writing backups: descriptor table in group `%d`: %w",
					g,
					err,
				)
			}
		}
	}
	return nil
}
