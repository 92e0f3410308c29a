// Package directory reads and edits directory entries stored in a
// directory inode's data.
package directory

import (
	"fmt"

	"github.com/weberc2/ext2fs/pkg/encode"
	"github.com/weberc2/ext2fs/pkg/inode/data"
	. "github.com/weberc2/ext2fs/pkg/types"
)

const (
	CorruptEntryErr ConstError = "corrupt directory entry"
)

// Iterator walks a directory's entries in on-disk order. It holds a copy
// of the directory inode taken at creation. Unused records (inode `0`) are
// skipped unless the iterator was made by `NewRecordIterator`.
type Iterator struct {
	data   *data.ReadWriter
	dir    Inode
	offset Byte
	next   Byte
	unused bool
}

func NewIterator(data *data.ReadWriter, dir *Inode) *Iterator {
	return &Iterator{data: data, dir: *dir}
}

// NewRecordIterator returns an iterator over every record, including the
// unused ones left behind by deleting the first entry of a block.
func NewRecordIterator(data *data.ReadWriter, dir *Inode) *Iterator {
	return &Iterator{data: data, dir: *dir, unused: true}
}

// Offset is the byte offset of the entry most recently returned by `Next`.
func (it *Iterator) Offset() Byte { return it.offset }

// Next decodes the next entry. It returns `false` once the iterator
// reaches the directory's size.
func (it *Iterator) Next() (DirEntry, bool, error) {
	for {
		entry, ok, err := it.record()
		if err != nil || !ok || it.unused || entry.Ino != 0 {
			return entry, ok, err
		}
	}
}

func (it *Iterator) record() (DirEntry, bool, error) {
	if it.next >= it.dir.Size {
		return DirEntry{}, false, nil
	}

	var (
		entry  DirEntry
		header [encode.DirEntryHeaderSize]byte
	)
	if err := it.read(it.next, header[:]); err != nil {
		return DirEntry{}, false, err
	}
	encode.DecodeDirEntryHeader(&entry, &header)
	if entry.RecLen < uint16(encode.DirEntryHeaderSize) ||
		it.next+Byte(entry.RecLen) > it.dir.Size ||
		encode.DirEntrySize(entry.NameLen) > entry.RecLen {
		return DirEntry{}, false, fmt.Errorf(
			"reading entry at offset `%d` of directory `%d` (reclen `%d`, "+
				"namelen `%d`): %w",
			it.next,
			it.dir.Ino,
			entry.RecLen,
			entry.NameLen,
			CorruptEntryErr,
		)
	}

	name := make([]byte, entry.NameLen)
	if err := it.read(it.next+encode.DirEntryHeaderSize, name); err != nil {
		return DirEntry{}, false, err
	}
	entry.Name = string(name)

	it.offset = it.next
	it.next += Byte(entry.RecLen)
	return entry, true, nil
}

func (it *Iterator) read(offset Byte, p []byte) error {
	n, err := it.data.Read(&it.dir, offset, p)
	if err != nil {
		return fmt.Errorf(
			"reading directory `%d` at offset `%d`: %w",
			it.dir.Ino,
			offset,
			err,
		)
	}
	if n != Byte(len(p)) {
		return fmt.Errorf(
			"reading directory `%d` at offset `%d`: short read of `%d` "+
				"bytes: %w",
			it.dir.Ino,
			offset,
			n,
			CorruptEntryErr,
		)
	}
	return nil
}
