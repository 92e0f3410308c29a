package encode

import (
	"github.com/weberc2/ext2fs/pkg/math"
	. "github.com/weberc2/ext2fs/pkg/types"
)

// DirEntrySize is the minimum record length of an entry with a name of
// `nameLen` bytes: the header plus the name, rounded up to 4 bytes.
func DirEntrySize(nameLen uint8) uint16 {
	return math.AlignUp(uint16(DirEntryHeaderSize)+uint16(nameLen), 4)
}

func EncodeDirEntryHeader(entry *DirEntry, b *[DirEntryHeaderSize]byte) {
	p := b[:]
	putU32(p, dirEntryInoStart, uint32(entry.Ino))
	putU16(p, DirEntryRecLenStart, entry.RecLen)
	putU8(p, dirEntryNameLenStart, entry.NameLen)
	putU8(p, dirEntryFileTypeStart, uint8(entry.FileType))
}

func DecodeDirEntryHeader(entry *DirEntry, b *[DirEntryHeaderSize]byte) {
	p := b[:]
	// NB: the file type isn't validated; a zero tag is legal on disk.
	entry.Ino = Ino(getU32(p, dirEntryInoStart))
	entry.RecLen = getU16(p, DirEntryRecLenStart)
	entry.NameLen = getU8(p, dirEntryNameLenStart)
	entry.FileType = FileType(getU8(p, dirEntryFileTypeStart))
}

// EncodeDirEntry encodes the header and name into `p`, which must be at
// least `DirEntryHeaderSize + len(entry.Name)` bytes. Bytes past the name
// are left untouched.
func EncodeDirEntry(entry *DirEntry, p []byte) {
	EncodeDirEntryHeader(entry, (*[DirEntryHeaderSize]byte)(p))
	copy(p[DirEntryHeaderSize:], entry.Name)
}

func EncodeDirEntryRecLen(recLen uint16, b *[dirEntryRecLenSize]byte) {
	putU16(b[:], 0, recLen)
}

const (
	dirEntryInoStart = 0
	dirEntryInoSize  = InoSize
	dirEntryInoEnd   = dirEntryInoStart + dirEntryInoSize

	DirEntryRecLenStart = dirEntryInoEnd
	dirEntryRecLenSize  = 2
	dirEntryRecLenEnd   = DirEntryRecLenStart + dirEntryRecLenSize

	dirEntryNameLenStart = dirEntryRecLenEnd
	dirEntryNameLenSize  = 1
	dirEntryNameLenEnd   = dirEntryNameLenStart + dirEntryNameLenSize

	dirEntryFileTypeStart = dirEntryNameLenEnd
	dirEntryFileTypeSize  = 1
	dirEntryFileTypeEnd   = dirEntryFileTypeStart + dirEntryFileTypeSize

	DirEntryHeaderSize = dirEntryFileTypeEnd
)
