package directory

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/weberc2/ext2fs/pkg/encode"
	"github.com/weberc2/ext2fs/pkg/inode/data"
	"github.com/weberc2/ext2fs/pkg/inode/resize"
	. "github.com/weberc2/ext2fs/pkg/types"
)

const (
	NotFoundErr    ConstError = "directory entry not found"
	NameTooLongErr ConstError = "directory entry name too long"
)

// Directories edits the entry lists of directory inodes. Entries are
// packed back to back; the record lengths of a directory sum to its size
// and no entry crosses a block boundary. A record with inode `0` is unused.
type Directories struct {
	data      *data.ReadWriter
	resizer   *resize.Resizer
	blockSize Byte
}

func New(
	data *data.ReadWriter,
	resizer *resize.Resizer,
	blockSize Byte,
) *Directories {
	return &Directories{data: data, resizer: resizer, blockSize: blockSize}
}

func (d *Directories) Iterator(dir *Inode) *Iterator {
	checkDir(dir)
	return NewIterator(d.data, dir)
}

// Records iterates every record of `dir`, unused ones included.
func (d *Directories) Records(dir *Inode) *Iterator {
	checkDir(dir)
	return NewRecordIterator(d.data, dir)
}

// Init writes the `.` and `..` entries of an empty directory.
func (d *Directories) Init(dir *Inode, parent Ino) error {
	if dir.Size != 0 {
		panic(fmt.Sprintf(
			"initializing directory `%d`: size is `%d`, not `0`",
			dir.Ino,
			dir.Size,
		))
	}
	if err := d.Add(dir, dir.Ino, ".", FileTypeDir); err != nil {
		return fmt.Errorf("initializing directory `%d`: %w", dir.Ino, err)
	}
	if err := d.Add(dir, parent, "..", FileTypeDir); err != nil {
		return fmt.Errorf("initializing directory `%d`: %w", dir.Ino, err)
	}
	return nil
}

// Add stores an entry naming `target` in the first unused record large
// enough to hold it. Failing that, the entry is appended; if it doesn't fit
// in the rest of the last block, the last entry is first stretched to the
// end of its block and the new entry starts the next one. `dir` is updated
// in place.
func (d *Directories) Add(
	dir *Inode,
	target Ino,
	name string,
	fileType FileType,
) error {
	checkDir(dir)
	if len(name) == 0 || len(name) > MaxNameLen {
		return fmt.Errorf(
			"adding entry `%s` to directory `%d`: %w",
			name,
			dir.Ino,
			NameTooLongErr,
		)
	}

	entry := DirEntry{
		Ino:      target,
		NameLen:  uint8(len(name)),
		FileType: fileType,
		Name:     name,
	}
	entry.RecLen = encode.DirEntrySize(entry.NameLen)

	unused, unusedOffset, err := d.unused(dir, entry.RecLen)
	if err != nil {
		return fmt.Errorf(
			"adding entry `%s` to directory `%d`: %w",
			name,
			dir.Ino,
			err,
		)
	}
	if unused.RecLen != 0 {
		entry.RecLen = unused.RecLen
		if err := d.write(dir, unusedOffset, &entry); err != nil {
			return fmt.Errorf(
				"adding entry `%s` to directory `%d`: %w",
				name,
				dir.Ino,
				err,
			)
		}
		logrus.WithFields(logrus.Fields{
			"dir":    dir.Ino,
			"target": target,
			"name":   name,
			"offset": unusedOffset,
		}).Debug("reused directory record")
		return nil
	}

	offset := dir.Size
	if tail := dir.Size % d.blockSize; tail != 0 &&
		tail+Byte(entry.RecLen) > d.blockSize {
		last, lastOffset, err := d.last(dir)
		if err != nil {
			return fmt.Errorf(
				"adding entry `%s` to directory `%d`: %w",
				name,
				dir.Ino,
				err,
			)
		}
		slack := d.blockSize - tail
		if err := d.writeRecLen(
			dir,
			lastOffset,
			last.RecLen+uint16(slack),
		); err != nil {
			return fmt.Errorf(
				"adding entry `%s` to directory `%d`: %w",
				name,
				dir.Ino,
				err,
			)
		}
		offset += slack
	}

	if err := d.resizer.ResizeInode(
		dir,
		offset+Byte(entry.RecLen),
	); err != nil {
		return fmt.Errorf(
			"adding entry `%s` to directory `%d`: %w",
			name,
			dir.Ino,
			err,
		)
	}

	if err := d.write(dir, offset, &entry); err != nil {
		return fmt.Errorf(
			"adding entry `%s` to directory `%d`: %w",
			name,
			dir.Ino,
			err,
		)
	}

	logrus.WithFields(logrus.Fields{
		"dir":    dir.Ino,
		"target": target,
		"name":   name,
		"offset": offset,
	}).Debug("added directory entry")
	return nil
}

// Delete removes the entry called `name` by folding its record into the
// preceding record of the same block. An entry that starts its block is
// marked unused instead. It reports whether a matching entry was found.
// The first entry (`.`) can't be deleted.
func (d *Directories) Delete(dir *Inode, name string) (bool, error) {
	var (
		it         = d.Records(dir)
		prev       DirEntry
		prevOffset Byte = -1
	)
	for {
		entry, ok, err := it.Next()
		if err != nil {
			return false, fmt.Errorf(
				"deleting entry `%s` from directory `%d`: %w",
				name,
				dir.Ino,
				err,
			)
		}
		if !ok {
			return false, nil
		}

		if entry.Ino != 0 && entry.Name == name {
			if prevOffset < 0 {
				panic(fmt.Sprintf(
					"deleting entry `%s` from directory `%d`: entry is first",
					name,
					dir.Ino,
				))
			}
			offset := it.Offset()
			if prevOffset/d.blockSize == offset/d.blockSize {
				err = d.writeRecLen(dir, prevOffset, prev.RecLen+entry.RecLen)
			} else {
				entry.Ino = 0
				err = d.writeHeader(dir, offset, &entry)
			}
			if err != nil {
				return false, fmt.Errorf(
					"deleting entry `%s` from directory `%d`: %w",
					name,
					dir.Ino,
					err,
				)
			}
			logrus.WithFields(logrus.Fields{
				"dir":  dir.Ino,
				"name": name,
			}).Debug("deleted directory entry")
			return true, nil
		}
		prev, prevOffset = entry, it.Offset()
	}
}

// Lookup returns the entry called `name`, or `NotFoundErr`.
func (d *Directories) Lookup(dir *Inode, name string) (DirEntry, error) {
	entry, _, err := d.find(dir, name)
	return entry, err
}

// Retarget points the existing entry called `name` at `target`.
func (d *Directories) Retarget(
	dir *Inode,
	name string,
	target Ino,
	fileType FileType,
) error {
	entry, offset, err := d.find(dir, name)
	if err != nil {
		return fmt.Errorf(
			"retargeting entry `%s` of directory `%d` to inode `%d`: %w",
			name,
			dir.Ino,
			target,
			err,
		)
	}
	entry.Ino = target
	entry.FileType = fileType
	if err := d.writeHeader(dir, offset, &entry); err != nil {
		return fmt.Errorf(
			"retargeting entry `%s` of directory `%d` to inode `%d`: %w",
			name,
			dir.Ino,
			target,
			err,
		)
	}
	return nil
}

func (d *Directories) List(dir *Inode) ([]DirEntry, error) {
	var entries []DirEntry
	it := d.Iterator(dir)
	for {
		entry, ok, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("listing directory `%d`: %w", dir.Ino, err)
		}
		if !ok {
			return entries, nil
		}
		entries = append(entries, entry)
	}
}

// IsEmpty reports whether `dir` holds nothing but `.` and `..`.
func (d *Directories) IsEmpty(dir *Inode) (bool, error) {
	it := d.Iterator(dir)
	for {
		entry, ok, err := it.Next()
		if err != nil {
			return false, fmt.Errorf(
				"checking whether directory `%d` is empty: %w",
				dir.Ino,
				err,
			)
		}
		if !ok {
			return true, nil
		}
		if entry.Name != "." && entry.Name != ".." {
			return false, nil
		}
	}
}

func (d *Directories) find(dir *Inode, name string) (DirEntry, Byte, error) {
	it := d.Iterator(dir)
	for {
		entry, ok, err := it.Next()
		if err != nil {
			return DirEntry{}, 0, fmt.Errorf(
				"looking up `%s` in directory `%d`: %w",
				name,
				dir.Ino,
				err,
			)
		}
		if !ok {
			return DirEntry{}, 0, fmt.Errorf(
				"looking up `%s` in directory `%d`: %w",
				name,
				dir.Ino,
				NotFoundErr,
			)
		}
		if entry.Name == name {
			return entry, it.Offset(), nil
		}
	}
}

func (d *Directories) last(dir *Inode) (DirEntry, Byte, error) {
	var (
		it     = d.Records(dir)
		last   DirEntry
		offset Byte
	)
	for {
		entry, ok, err := it.Next()
		if err != nil {
			return DirEntry{}, 0, fmt.Errorf("finding last entry: %w", err)
		}
		if !ok {
			return last, offset, nil
		}
		last, offset = entry, it.Offset()
	}
}

// unused finds the first unused record of at least `size` bytes. The
// returned record has a zero length if there is none.
func (d *Directories) unused(dir *Inode, size uint16) (DirEntry, Byte, error) {
	it := d.Records(dir)
	for {
		entry, ok, err := it.Next()
		if err != nil {
			return DirEntry{}, 0, fmt.Errorf("finding unused record: %w", err)
		}
		if !ok {
			return DirEntry{}, 0, nil
		}
		if entry.Ino == 0 && entry.RecLen >= size {
			return entry, it.Offset(), nil
		}
	}
}

func (d *Directories) write(dir *Inode, offset Byte, entry *DirEntry) error {
	buf := make([]byte, encode.DirEntrySize(entry.NameLen))
	encode.EncodeDirEntry(entry, buf)
	if _, err := d.data.Write(dir, offset, buf); err != nil {
		return fmt.Errorf(
			"writing entry `%s` at offset `%d`: %w",
			entry.Name,
			offset,
			err,
		)
	}
	return nil
}

func (d *Directories) writeHeader(dir *Inode, offset Byte, entry *DirEntry) error {
	var header [encode.DirEntryHeaderSize]byte
	encode.EncodeDirEntryHeader(entry, &header)
	if _, err := d.data.Write(dir, offset, header[:]); err != nil {
		return fmt.Errorf(
			"writing header of entry at offset `%d`: %w",
			offset,
			err,
		)
	}
	return nil
}

func (d *Directories) writeRecLen(dir *Inode, offset Byte, recLen uint16) error {
	var b [2]byte
	encode.EncodeDirEntryRecLen(recLen, &b)
	if _, err := d.data.Write(
		dir,
		offset+encode.DirEntryRecLenStart,
		b[:],
	); err != nil {
		return fmt.Errorf(
			"writing record length `%d` of entry at offset `%d`: %w",
			recLen,
			offset,
			err,
		)
	}
	return nil
}

func checkDir(dir *Inode) {
	if !dir.IsDir() {
		panic(fmt.Sprintf(
			"inode `%d` used as a directory: mode `%#o`",
			dir.Ino,
			dir.Mode,
		))
	}
}
