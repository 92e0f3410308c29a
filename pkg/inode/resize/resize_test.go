package resize_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/weberc2/ext2fs/pkg/device"
	"github.com/weberc2/ext2fs/pkg/engine"
	"github.com/weberc2/ext2fs/pkg/inode/data/block/physical"
	"github.com/weberc2/ext2fs/pkg/mkfs"
	. "github.com/weberc2/ext2fs/pkg/types"
)

var now = time.Unix(1700000000, 0)

func setup(t *testing.T, geometry mkfs.Geometry) (*engine.Engine, *Inode) {
	t.Helper()
	dev := device.NewMemory(geometry.DeviceBlocks())
	if err := mkfs.Format(dev, geometry); err != nil {
		t.Fatalf("formatting: %v", err)
	}
	e, err := engine.Open(dev, engine.Options{})
	if err != nil {
		t.Fatalf("opening: %v", err)
	}
	e.Resizer.Now = func() time.Time { return now }
	ino, err := e.Inos.AllocateIdle()
	if err != nil {
		t.Fatalf("allocating inode: %v", err)
	}
	inode := &Inode{Ino: ino, Mode: ModeRegular | 0644, LinksCount: 1}
	if err := e.Inodes.Put(inode); err != nil {
		t.Fatalf("storing inode: %v", err)
	}
	return e, inode
}

func freeBlocks(t *testing.T, e *engine.Engine) uint32 {
	t.Helper()
	sb, err := e.Superblock.Read()
	if err != nil {
		t.Fatalf("reading superblock: %v", err)
	}
	return sb.FreeBlocksCount
}

func TestResizer_Resize(t *testing.T) {
	// sizes in bytes with 1KiB blocks; `overhead` counts indirect blocks
	for _, testCase := range []struct {
		name     string
		from     Byte
		to       Byte
		blocks   uint32
		overhead uint32
	}{
		{name: "empty", from: 0, to: 0, blocks: 0},
		{name: "grow-one-byte", from: 0, to: 1, blocks: 1},
		{name: "grow-direct", from: 0, to: 12 * 1024, blocks: 12},
		{name: "grow-singly", from: 0, to: 13 * 1024, blocks: 13, overhead: 1},
		{
			name:     "grow-doubly",
			from:     0,
			to:       300 * 1024,
			blocks:   300,
			overhead: 3,
		},
		{
			name:     "shrink-into-singly",
			from:     300 * 1024,
			to:       20*1024 + 1,
			blocks:   21,
			overhead: 1,
		},
		{
			name:   "shrink-to-direct",
			from:   300 * 1024,
			to:     12 * 1024,
			blocks: 12,
		},
		{
			name:     "shrink-within-doubly",
			from:     900 * 1024,
			to:       600 * 1024,
			blocks:   600,
			overhead: 4,
		},
		{
			name:     "shrink-to-first-doubly-child",
			from:     600 * 1024,
			to:       400*1024 - 1,
			blocks:   400,
			overhead: 3,
		},
		{name: "shrink-to-zero", from: 300 * 1024, to: 0, blocks: 0},
		{name: "same-blocks", from: 1000, to: 10, blocks: 1},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			e, inode := setup(t, mkfs.FloppyPlus)
			baseline := freeBlocks(t, e)

			if err := e.Resizer.ResizeInode(inode, testCase.from); err != nil {
				t.Fatalf("ResizeInode(`%d`): %v", testCase.from, err)
			}
			if err := e.Resizer.Resize(inode.Ino, testCase.to); err != nil {
				t.Fatalf("Resize(`%d`): %v", testCase.to, err)
			}

			var stored Inode
			if err := e.Inodes.Get(inode.Ino, &stored); err != nil {
				t.Fatalf("loading inode: %v", err)
			}
			if stored.Size != testCase.to {
				t.Fatalf("Size: wanted `%d`; found `%d`", testCase.to, stored.Size)
			}
			if wanted := testCase.blocks * 2; stored.Sectors != wanted {
				t.Fatalf("Sectors: wanted `%d`; found `%d`", wanted, stored.Sectors)
			}
			if stored.MTime != uint32(now.Unix()) || stored.CTime != uint32(now.Unix()) {
				t.Fatalf("times: wanted `%d`; found `%+v`", now.Unix(), stored)
			}

			wanted := testCase.blocks + testCase.overhead
			if used := baseline - freeBlocks(t, e); used != wanted {
				t.Fatalf("used blocks: wanted `%d`; found `%d`", wanted, used)
			}
			for b := Block(0); b < Block(testCase.blocks); b++ {
				if _, err := e.Physical.Read(&stored, b); err != nil {
					t.Fatalf("Read(`%d`): %v", b, err)
				}
			}
			for slot := int(testCase.blocks); slot < DirectBlocksCount; slot++ {
				if stored.Block[slot] != BlockNil {
					t.Fatalf("Block[%d]: wanted nil; found `%d`", slot, stored.Block[slot])
				}
			}
			if testCase.overhead == 0 {
				for slot := SinglyIndirectIndex; slot < BlockPointersCount; slot++ {
					if stored.Block[slot] != BlockNil {
						t.Fatalf("Block[%d]: wanted nil; found `%d`", slot, stored.Block[slot])
					}
				}
			}
		})
	}
}

func TestResizer_Idempotent(t *testing.T) {
	e, inode := setup(t, mkfs.FloppyPlus)
	if err := e.Resizer.ResizeInode(inode, 100*1024); err != nil {
		t.Fatalf("ResizeInode(): %v", err)
	}
	free, pointers := freeBlocks(t, e), inode.Block

	if err := e.Resizer.ResizeInode(inode, 100*1024); err != nil {
		t.Fatalf("ResizeInode() again: %v", err)
	}
	if found := freeBlocks(t, e); found != free {
		t.Fatalf("free blocks: wanted `%d`; found `%d`", free, found)
	}
	if inode.Block != pointers {
		t.Fatalf("pointers: wanted `%v`; found `%v`", pointers, inode.Block)
	}
}

func TestResizer_GrowAfterShrinkReadsZeros(t *testing.T) {
	e, inode := setup(t, mkfs.Floppy)
	data := bytes.Repeat([]byte{0xEE}, 3000)
	if err := e.Resizer.ResizeInode(inode, Byte(len(data))); err != nil {
		t.Fatalf("ResizeInode(): %v", err)
	}
	if _, err := e.Data.Write(inode, 0, data); err != nil {
		t.Fatalf("Write(): %v", err)
	}

	if err := e.Resizer.ResizeInode(inode, 100); err != nil {
		t.Fatalf("shrinking: %v", err)
	}
	if err := e.Resizer.ResizeInode(inode, 3000); err != nil {
		t.Fatalf("growing: %v", err)
	}

	found := make([]byte, 3000)
	if _, err := e.Data.Read(inode, 0, found); err != nil {
		t.Fatalf("Read(): %v", err)
	}
	if !bytes.Equal(found[:100], data[:100]) {
		t.Fatal("bytes [0, 100): wanted original data")
	}
	if !bytes.Equal(found[100:], make([]byte, 2900)) {
		t.Fatal("bytes [100, 3000): wanted zeros")
	}
}

func TestResizer_TooLarge(t *testing.T) {
	e, inode := setup(t, mkfs.Floppy)
	size := Byte(physical.MaxBlocks(256)+1) * 1024
	if err := e.Resizer.ResizeInode(inode, size); !errors.Is(err, physical.OutOfRangeErr) {
		t.Fatalf("wanted `%v`; found `%v`", physical.OutOfRangeErr, err)
	}
}
