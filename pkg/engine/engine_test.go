package engine_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/weberc2/ext2fs/pkg/device"
	"github.com/weberc2/ext2fs/pkg/engine"
	"github.com/weberc2/ext2fs/pkg/inode/store"
	"github.com/weberc2/ext2fs/pkg/mkfs"
	. "github.com/weberc2/ext2fs/pkg/types"
)

func formatted(t *testing.T) *device.Memory {
	t.Helper()
	dev := device.NewMemory(mkfs.Floppy.DeviceBlocks())
	if err := mkfs.Format(dev, mkfs.Floppy); err != nil {
		t.Fatalf("formatting: %v", err)
	}
	return dev
}

func TestOpen(t *testing.T) {
	for _, testCase := range []struct {
		name          string
		options       engine.Options
		wantedCaching bool
	}{
		{name: "uncached", options: engine.Options{}},
		{
			name:          "cached",
			options:       engine.Options{InodeCacheCapacity: 8},
			wantedCaching: true,
		},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			e, err := engine.Open(formatted(t), testCase.options)
			if err != nil {
				t.Fatalf("Open(): %v", err)
			}
			if e.BlockSize() != 1024 {
				t.Fatalf("BlockSize(): wanted `1024`; found `%d`", e.BlockSize())
			}
			if e.Groups.Len() != 1 {
				t.Fatalf("Groups.Len(): wanted `1`; found `%d`", e.Groups.Len())
			}
			_, caching := e.Inodes.(*store.CachingInodeStore)
			if caching != testCase.wantedCaching {
				t.Fatalf(
					"caching inode store: wanted `%t`; found `%t`",
					testCase.wantedCaching,
					caching,
				)
			}
		})
	}
}

func TestOpen_Unformatted(t *testing.T) {
	if _, err := engine.Open(device.NewMemory(1440), engine.Options{}); err == nil {
		t.Fatal("wanted error opening an unformatted device")
	}
}

func TestOpen_DeviceTooSmall(t *testing.T) {
	full := formatted(t)
	truncated := device.NewMemory(100)
	var b [DeviceBlockSize]byte
	for i := uint64(0); i < truncated.Len(); i++ {
		if err := full.ReadBlock(i, &b); err != nil {
			t.Fatalf("reading block `%d`: %v", i, err)
		}
		if err := truncated.WriteBlock(i, &b); err != nil {
			t.Fatalf("writing block `%d`: %v", i, err)
		}
	}

	_, err := engine.Open(truncated, engine.Options{})
	if !errors.Is(err, device.OutOfRangeErr) {
		t.Fatalf("wanted `%v`; found `%v`", device.OutOfRangeErr, err)
	}
}

func TestOpen_InodesSurviveReopen(t *testing.T) {
	dev := formatted(t)
	e, err := engine.Open(dev, engine.Options{InodeCacheCapacity: 4})
	if err != nil {
		t.Fatalf("Open(): %v", err)
	}
	ino, err := e.Inos.AllocateIdle()
	if err != nil {
		t.Fatalf("AllocateIdle(): %v", err)
	}
	wanted := Inode{
		Ino:        ino,
		Mode:       ModeRegular | 0600,
		UID:        1000,
		Size:       42,
		LinksCount: 1,
		MTime:      1700000000,
	}
	if err := e.Inodes.Put(&wanted); err != nil {
		t.Fatalf("Put(): %v", err)
	}

	reopened, err := engine.Open(dev, engine.Options{})
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	var found Inode
	if err := reopened.Inodes.Get(ino, &found); err != nil {
		t.Fatalf("Get(): %v", err)
	}
	if diff := cmp.Diff(wanted, found); diff != "" {
		t.Fatalf("(-wanted +found):\n%s", diff)
	}

	sb, err := reopened.Superblock.Read()
	if err != nil {
		t.Fatalf("reading superblock: %v", err)
	}
	if sb.FreeInodesCount != 182 {
		t.Fatalf("FreeInodesCount: wanted `182`; found `%d`", sb.FreeInodesCount)
	}
}
