package mkfs_test

import (
	"errors"
	"testing"

	"github.com/diskfs/go-diskfs/util/bitmap"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/weberc2/ext2fs/pkg/device"
	"github.com/weberc2/ext2fs/pkg/encode"
	"github.com/weberc2/ext2fs/pkg/engine"
	"github.com/weberc2/ext2fs/pkg/mkfs"
	. "github.com/weberc2/ext2fs/pkg/types"
)

func format(t *testing.T, geometry mkfs.Geometry) *engine.Engine {
	t.Helper()
	dev := device.NewMemory(geometry.DeviceBlocks())
	if err := mkfs.Format(dev, geometry); err != nil {
		t.Fatalf("Format(): %v", err)
	}
	e, err := engine.Open(dev, engine.Options{})
	if err != nil {
		t.Fatalf("opening: %v", err)
	}
	return e
}

func TestFormat(t *testing.T) {
	id := uuid.MustParse("6f1c1d3a-8f3e-4f55-9b2c-0d1e2f3a4b5c")

	for _, testCase := range []struct {
		name         string
		geometry     mkfs.Geometry
		wantedSB     Superblock
		wantedGroups []GroupDesc
	}{
		{
			name:     "floppy",
			geometry: mkfs.Floppy,
			wantedSB: Superblock{
				InodesCount:     184,
				BlocksCount:     1440,
				FreeBlocksCount: 1411,
				FreeInodesCount: 183,
				FirstDataBlock:  1,
				BlocksPerGroup:  1439,
				FragsPerGroup:   1439,
				InodesPerGroup:  184,
				MaxMountCount:   20,
				Magic:           SuperblockMagic,
				State:           StateValid,
				Errors:          1,
				CreatorOS:       CreatorOSLinux,
				RevLevel:        RevLevelDynamic,
				FirstIno:        2,
				InodeSize:       128,
				UUID:            id,
				VolumeName:      "floppy",
			},
			wantedGroups: []GroupDesc{{
				BlockBitmap:     3,
				InodeBitmap:     4,
				InodeTable:      5,
				FreeBlocksCount: 1411,
				FreeInodesCount: 183,
				UsedDirsCount:   1,
			}},
		},
		{
			name:     "floppy-plus",
			geometry: mkfs.FloppyPlus,
			wantedSB: Superblock{
				InodesCount:     3 * 1712,
				BlocksCount:     24577,
				FreeBlocksCount: 7973 + 7974 + 7976,
				FreeInodesCount: 3*1712 - 1,
				FirstDataBlock:  1,
				BlocksPerGroup:  8192,
				FragsPerGroup:   8192,
				InodesPerGroup:  1712,
				MaxMountCount:   20,
				Magic:           SuperblockMagic,
				State:           StateValid,
				Errors:          1,
				CreatorOS:       CreatorOSLinux,
				RevLevel:        RevLevelDynamic,
				FirstIno:        2,
				InodeSize:       128,
				UUID:            id,
				VolumeName:      "floppy",
			},
			wantedGroups: []GroupDesc{
				{
					BlockBitmap:     3,
					InodeBitmap:     4,
					InodeTable:      5,
					FreeBlocksCount: 7973,
					FreeInodesCount: 1711,
					UsedDirsCount:   1,
				},
				{
					// superblock and descriptor table backups come first
					BlockBitmap:     8195,
					InodeBitmap:     8196,
					InodeTable:      8197,
					FreeBlocksCount: 7974,
					FreeInodesCount: 1712,
				},
				{
					BlockBitmap:     16385,
					InodeBitmap:     16386,
					InodeTable:      16387,
					FreeBlocksCount: 7976,
					FreeInodesCount: 1712,
				},
			},
		},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			geometry := testCase.geometry
			geometry.UUID = id
			geometry.VolumeName = "floppy"
			e := format(t, geometry)

			sb, err := e.Superblock.Read()
			if err != nil {
				t.Fatalf("reading superblock: %v", err)
			}
			if diff := cmp.Diff(
				testCase.wantedSB,
				sb,
				cmpopts.IgnoreFields(Superblock{}, "WriteTime", "LastCheck"),
			); diff != "" {
				t.Fatalf("superblock (-wanted +found):\n%s", diff)
			}

			groups := make([]GroupDesc, e.Groups.Len())
			for g := range groups {
				groups[g] = e.Groups.Desc(uint32(g))
			}
			if diff := cmp.Diff(testCase.wantedGroups, groups); diff != "" {
				t.Fatalf("groups (-wanted +found):\n%s", diff)
			}
		})
	}
}

func TestFormat_Root(t *testing.T) {
	e := format(t, mkfs.Floppy)

	var root Inode
	if err := e.Inodes.Get(InoRoot, &root); err != nil {
		t.Fatalf("loading root: %v", err)
	}
	if !root.IsDir() || root.LinksCount != 2 {
		t.Fatalf("root: wanted a directory with 2 links; found `%+v`", root)
	}
	if root.Block[0] != 28 || root.Sectors != 2 {
		t.Fatalf("root: wanted block `28` (2 sectors); found `%+v`", root)
	}

	entries, err := e.Directories.List(&root)
	if err != nil {
		t.Fatalf("listing root: %v", err)
	}
	wanted := []DirEntry{
		{Ino: InoRoot, NameLen: 1, FileType: FileTypeDir, Name: "."},
		{Ino: InoRoot, NameLen: 2, FileType: FileTypeDir, Name: ".."},
	}
	if diff := cmp.Diff(
		wanted,
		entries,
		cmpopts.IgnoreFields(DirEntry{}, "RecLen"),
	); diff != "" {
		t.Fatalf("root entries (-wanted +found):\n%s", diff)
	}
}

func loadBitmap(data []byte) *bitmap.Bitmap {
	bm := bitmap.NewBits(len(data) * 8)
	bm.FromBytes(data)
	return bm
}

func TestFormat_Bitmaps(t *testing.T) {
	e := format(t, mkfs.Floppy)
	desc := e.Groups.Desc(0)

	data := make([]byte, e.BlockSize())
	if err := e.Volume.ReadBlock(desc.BlockBitmap, data); err != nil {
		t.Fatalf("reading block bitmap: %v", err)
	}
	bm := loadBitmap(data)
	for _, testCase := range []struct {
		bit    int
		wanted bool
	}{
		{0, true},     // superblock
		{1, true},     // descriptor table
		{26, true},    // last inode table block
		{27, true},    // root directory data
		{28, false},   // first free block
		{1438, false}, // last block
		{1439, true},  // padding
		{8191, true},  // padding
	} {
		found, err := bm.IsSet(testCase.bit)
		if err != nil {
			t.Fatalf("IsSet(`%d`): %v", testCase.bit, err)
		}
		if found != testCase.wanted {
			t.Fatalf("bit `%d`: wanted `%t`; found `%t`", testCase.bit, testCase.wanted, found)
		}
	}

	if err := e.Volume.ReadBlock(desc.InodeBitmap, data); err != nil {
		t.Fatalf("reading inode bitmap: %v", err)
	}
	bm = loadBitmap(data)
	for bit, wanted := range map[int]bool{0: true, 1: false, 183: false, 184: true} {
		found, err := bm.IsSet(bit)
		if err != nil {
			t.Fatalf("IsSet(`%d`): %v", bit, err)
		}
		if found != wanted {
			t.Fatalf("inode bit `%d`: wanted `%t`; found `%t`", bit, wanted, found)
		}
	}
}

func TestFormat_Backups(t *testing.T) {
	e := format(t, mkfs.FloppyPlus)
	primary, err := e.Superblock.Read()
	if err != nil {
		t.Fatalf("reading superblock: %v", err)
	}

	var buf [SuperblockSize]byte
	if err := e.Volume.ReadAt(8193, 0, buf[:]); err != nil {
		t.Fatalf("reading backup: %v", err)
	}
	var backup Superblock
	if err := encode.DecodeSuperblock(&backup, &buf); err != nil {
		t.Fatalf("decoding backup: %v", err)
	}
	if backup.BlockGroupNr != 1 {
		t.Fatalf("backup group: wanted `1`; found `%d`", backup.BlockGroupNr)
	}
	backup.BlockGroupNr = 0
	if diff := cmp.Diff(primary, backup); diff != "" {
		t.Fatalf("backup (-primary +backup):\n%s", diff)
	}

	table := make([]byte, e.BlockSize())
	backupTable := make([]byte, e.BlockSize())
	if err := e.Volume.ReadBlock(2, table); err != nil {
		t.Fatalf("reading descriptor table: %v", err)
	}
	if err := e.Volume.ReadBlock(8194, backupTable); err != nil {
		t.Fatalf("reading backup descriptor table: %v", err)
	}
	if diff := cmp.Diff(table, backupTable); diff != "" {
		t.Fatalf("backup descriptor table (-primary +backup):\n%s", diff)
	}
}

func TestFormat_DeviceTooSmall(t *testing.T) {
	err := mkfs.Format(device.NewMemory(100), mkfs.Floppy)
	if !errors.Is(err, mkfs.DeviceTooSmallErr) {
		t.Fatalf("wanted `%v`; found `%v`", mkfs.DeviceTooSmallErr, err)
	}
}

func TestPreset(t *testing.T) {
	for _, testCase := range []struct {
		name    string
		wanted  mkfs.Geometry
		wantErr error
	}{
		{name: "floppy", wanted: mkfs.Floppy},
		{name: "FloppyPlus", wanted: mkfs.FloppyPlus},
		{name: "floppy-plus", wanted: mkfs.FloppyPlus},
		{name: "zip", wantErr: mkfs.UnknownPresetErr},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			found, err := mkfs.Preset(testCase.name)
			if !errors.Is(err, testCase.wantErr) {
				t.Fatalf("wanted error `%v`; found `%v`", testCase.wantErr, err)
			}
			if diff := cmp.Diff(testCase.wanted, found); diff != "" {
				t.Fatalf("(-wanted +found):\n%s", diff)
			}
		})
	}
}
