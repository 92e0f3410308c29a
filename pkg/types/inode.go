package types

import (
	"fmt"
)

type Ino uint32

const (
	DirectBlocksCount   = 12
	SinglyIndirectIndex = DirectBlocksCount
	DoublyIndirectIndex = SinglyIndirectIndex + 1
	TriplyIndirectIndex = DoublyIndirectIndex + 1
	BlockPointersCount  = TriplyIndirectIndex + 1

	InodeSize Byte = 128
	InoSize   Byte = 4
	InoNil    Ino  = 0
	InoRoot   Ino  = 1
)

type Inode struct {
	// Ino is not persisted; it's the inode's position in the inode table.
	Ino        Ino
	Mode       Mode
	UID        uint16
	Size       Byte
	ATime      uint32
	CTime      uint32
	MTime      uint32
	DTime      uint32
	GID        uint16
	LinksCount uint16

	// Sectors is the number of 512-byte sectors backing the inode's data
	// (ext2's `i_blocks`).
	Sectors    uint32
	Flags      uint32
	Block      [BlockPointersCount]Block
	Generation uint32
	FileACL    uint32
	DirACL     uint32
}

func (inode *Inode) FileType() FileType { return inode.Mode.FileType() }

func (inode *Inode) IsDir() bool { return inode.Mode.FileType() == FileTypeDir }

func (inode *Inode) IsRegular() bool {
	return inode.Mode.FileType() == FileTypeRegular
}

// Mode is an inode's `i_mode`: the file format in the high nibble and the
// permission bits below it.
type Mode uint16

const (
	ModeFifo     Mode = 0x1000
	ModeCharDev  Mode = 0x2000
	ModeDir      Mode = 0x4000
	ModeBlockDev Mode = 0x6000
	ModeRegular  Mode = 0x8000
	ModeSymlink  Mode = 0xA000
	ModeSocket   Mode = 0xC000

	ModeFormatMask Mode = 0xF000
	ModePermMask   Mode = 0x0FFF
)

func (mode Mode) Format() Mode { return mode & ModeFormatMask }

func (mode Mode) Perm() Mode { return mode & ModePermMask }

func (mode Mode) FileType() FileType {
	switch mode.Format() {
	case ModeRegular:
		return FileTypeRegular
	case ModeDir:
		return FileTypeDir
	case ModeCharDev:
		return FileTypeCharDev
	case ModeBlockDev:
		return FileTypeBlockDev
	case ModeFifo:
		return FileTypeFifo
	case ModeSocket:
		return FileTypeSocket
	case ModeSymlink:
		return FileTypeSymlink
	default:
		return FileTypeInvalid
	}
}

// FileType is the file type tag stored in directory entries (ext2's
// `EXT2_FT_*` values).
type FileType uint8

const (
	FileTypeInvalid FileType = iota
	FileTypeRegular
	FileTypeDir
	FileTypeCharDev
	FileTypeBlockDev
	FileTypeFifo
	FileTypeSocket
	FileTypeSymlink
)

func (ft FileType) String() string {
	switch ft {
	case FileTypeInvalid:
		return "Invalid"
	case FileTypeRegular:
		return "Regular"
	case FileTypeDir:
		return "Dir"
	case FileTypeCharDev:
		return "CharDev"
	case FileTypeBlockDev:
		return "BlockDev"
	case FileTypeFifo:
		return "Fifo"
	case FileTypeSocket:
		return "Socket"
	case FileTypeSymlink:
		return "Symlink"
	default:
		panic(fmt.Sprintf("invalid file type: `%d`", ft))
	}
}

func (ft FileType) Mode() Mode {
	switch ft {
	case FileTypeRegular:
		return ModeRegular
	case FileTypeDir:
		return ModeDir
	case FileTypeCharDev:
		return ModeCharDev
	case FileTypeBlockDev:
		return ModeBlockDev
	case FileTypeFifo:
		return ModeFifo
	case FileTypeSocket:
		return ModeSocket
	case FileTypeSymlink:
		return ModeSymlink
	default:
		panic(fmt.Sprintf("invalid file type: `%d`", ft))
	}
}

func (ft FileType) MarshalJSON() ([]byte, error) {
	s := ft.String()
	out := make([]byte, len(s)+2)
	out[0] = '"'
	out[len(out)-1] = '"'
	copy(out[1:], s)
	return out, nil
}

func (ft *FileType) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("unmarshaling file type `%s`: %w", data, InvalidFileTypeErr)
	}
	name := string(data[1 : len(data)-1])
	for candidate := FileTypeInvalid; candidate <= FileTypeSymlink; candidate++ {
		if candidate.String() == name {
			*ft = candidate
			return nil
		}
	}
	return fmt.Errorf("unmarshaling file type `%s`: %w", name, InvalidFileTypeErr)
}

func (ft FileType) Validate() error {
	if ft <= FileTypeInvalid || ft > FileTypeSymlink {
		return fmt.Errorf(
			"validating file type `%d`: %w",
			ft,
			InvalidFileTypeErr,
		)
	}
	return nil
}
