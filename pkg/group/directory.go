// Package group indexes the block groups: which group owns a block or
// inode, and where each group's bitmaps and inode table live.
package group

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/weberc2/ext2fs/pkg/encode"
	"github.com/weberc2/ext2fs/pkg/io"
	"github.com/weberc2/ext2fs/pkg/math"
	"github.com/weberc2/ext2fs/pkg/superblock"
	. "github.com/weberc2/ext2fs/pkg/types"
)

// Directory caches the block group descriptor table. The cache is only as
// fresh as the last `Refresh()`, which must run before first use and after
// any write that changes the superblock's geometry.
type Directory struct {
	volume     io.BlockReadWriter
	superblock *superblock.Store
	geometry   Superblock
	descs      []GroupDesc
}

func NewDirectory(
	volume io.BlockReadWriter,
	superblock *superblock.Store,
) *Directory {
	return &Directory{volume: volume, superblock: superblock}
}

// Refresh recomputes the group count from the current superblock and
// reloads every descriptor from the descriptor table.
func (d *Directory) Refresh() error {
	sb, err := d.superblock.Read()
	if err != nil {
		return fmt.Errorf("refreshing group descriptors: %w", err)
	}

	count := sb.GroupCount()
	blockSize := d.volume.BlockSize()
	tableBlocks := math.DivRoundUp(Byte(count)*GroupDescSize, blockSize)
	table := make([]byte, tableBlocks*blockSize)
	for i := Byte(0); i < tableBlocks; i++ {
		b := sb.GroupDescTableBlock() + Block(i)
		if err := d.volume.ReadBlock(
			b,
			table[i*blockSize:(i+1)*blockSize],
		); err != nil {
			return fmt.Errorf(
				"refreshing group descriptors: reading table block `%d`: %w",
				b,
				err,
			)
		}
	}

	descs := make([]GroupDesc, count)
	for g := range descs {
		encode.DecodeGroupDesc(
			&descs[g],
			(*[GroupDescSize]byte)(table[Byte(g)*GroupDescSize:]),
		)
	}

	d.geometry = sb
	d.descs = descs
	logrus.WithField("groups", count).Debug("refreshed group descriptors")
	return nil
}

func (d *Directory) Len() uint32 { return uint32(len(d.descs)) }

func (d *Directory) Desc(group uint32) GroupDesc {
	d.checkGroup(group)
	return d.descs[group]
}

// Put writes a group's descriptor through to the descriptor table.
func (d *Directory) Put(group uint32, desc *GroupDesc) error {
	d.checkGroup(group)

	var b [GroupDescSize]byte
	encode.EncodeGroupDesc(desc, &b)

	blockSize := d.volume.BlockSize()
	offset := Byte(group) * GroupDescSize
	if err := d.volume.WriteAt(
		d.geometry.GroupDescTableBlock()+Block(offset/blockSize),
		offset%blockSize,
		b[:],
	); err != nil {
		return fmt.Errorf("writing descriptor for group `%d`: %w", group, err)
	}
	d.descs[group] = *desc
	return nil
}

// Update applies `f` to a group's descriptor and writes the result.
func (d *Directory) Update(group uint32, f func(desc *GroupDesc)) error {
	desc := d.Desc(group)
	f(&desc)
	return d.Put(group, &desc)
}

// LocateBlock returns the group owning block `b` and the block's bit offset
// in that group's block bitmap.
func (d *Directory) LocateBlock(b Block) (uint32, uint32) {
	if uint32(b) < d.geometry.FirstDataBlock ||
		uint32(b) >= d.geometry.BlocksCount {
		panic(fmt.Sprintf(
			"locating block `%d`: outside data blocks [%d, %d)",
			b,
			d.geometry.FirstDataBlock,
			d.geometry.BlocksCount,
		))
	}
	local := uint32(b) - d.geometry.FirstDataBlock
	return local / d.geometry.BlocksPerGroup, local % d.geometry.BlocksPerGroup
}

// LocateIno returns the group owning inode `ino` and the inode's offset in
// that group's inode bitmap and table. Inode ids are 1-based.
func (d *Directory) LocateIno(ino Ino) (uint32, uint32) {
	if ino == InoNil || uint32(ino) > d.InodesCount() {
		panic(fmt.Sprintf(
			"locating inode `%d`: outside inodes [1, %d]",
			ino,
			d.InodesCount(),
		))
	}
	local := uint32(ino) - 1
	return local / d.geometry.InodesPerGroup, local % d.geometry.InodesPerGroup
}

// GroupBlock returns the block id of bit `offset` in `group`'s block bitmap.
func (d *Directory) GroupBlock(group, offset uint32) Block {
	return Block(
		d.geometry.FirstDataBlock + group*d.geometry.BlocksPerGroup + offset,
	)
}

// GroupIno returns the inode id of bit `offset` in `group`'s inode bitmap.
func (d *Directory) GroupIno(group, offset uint32) Ino {
	return Ino(group*d.geometry.InodesPerGroup + offset + 1)
}

// BlocksInGroup is the number of blocks `group` spans; the last group may
// be short.
func (d *Directory) BlocksInGroup(group uint32) uint32 {
	d.checkGroup(group)
	remaining := d.geometry.BlocksCount - d.geometry.FirstDataBlock -
		group*d.geometry.BlocksPerGroup
	return math.Min(remaining, d.geometry.BlocksPerGroup)
}

func (d *Directory) InodesPerGroup() uint32 { return d.geometry.InodesPerGroup }

func (d *Directory) InodesCount() uint32 {
	return d.geometry.InodesPerGroup * uint32(len(d.descs))
}

func (d *Directory) checkGroup(group uint32) {
	if group >= uint32(len(d.descs)) {
		panic(fmt.Sprintf(
			"group `%d` out of range (`%d` groups; refreshed?)",
			group,
			len(d.descs),
		))
	}
}
