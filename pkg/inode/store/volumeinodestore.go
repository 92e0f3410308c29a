package store

import (
	"fmt"

	"github.com/weberc2/ext2fs/pkg/encode"
	"github.com/weberc2/ext2fs/pkg/group"
	"github.com/weberc2/ext2fs/pkg/io"
	. "github.com/weberc2/ext2fs/pkg/types"
)

// VolumeInodeStore reads and writes inode records in the per-group inode
// tables.
type VolumeInodeStore struct {
	volume io.BlockReadWriter
	groups *group.Directory
}

func NewVolumeInodeStore(
	volume io.BlockReadWriter,
	groups *group.Directory,
) VolumeInodeStore {
	return VolumeInodeStore{volume: volume, groups: groups}
}

// locate returns the inode table block holding `ino` and the record's byte
// offset within that block.
func (store VolumeInodeStore) locate(ino Ino) (Block, Byte) {
	g, local := store.groups.LocateIno(ino)
	perBlock := uint32(store.volume.BlockSize() / InodeSize)
	block := store.groups.Desc(g).InodeTable + Block(local/perBlock)
	return block, Byte(local%perBlock) * InodeSize
}

func (store VolumeInodeStore) Put(inode *Inode) error {
	buf := new([InodeSize]byte)
	encode.EncodeInode(inode, buf)
	block, offset := store.locate(inode.Ino)
	if err := store.volume.WriteAt(block, offset, buf[:]); err != nil {
		return fmt.Errorf(
			"writing inode `%d` to block `%d` at offset `%d`: %w",
			inode.Ino,
			block,
			offset,
			err,
		)
	}
	return nil
}

func (store VolumeInodeStore) Get(ino Ino, output *Inode) error {
	buf := new([InodeSize]byte)
	block, offset := store.locate(ino)
	if err := store.volume.ReadAt(block, offset, buf[:]); err != nil {
		return fmt.Errorf(
			"reading inode `%d` from block `%d` at offset `%d`: %w",
			ino,
			block,
			offset,
			err,
		)
	}
	encode.DecodeInode(output, buf)
	output.Ino = ino
	return nil
}
