package device

import (
	"errors"
	"fmt"
	"io"
	"os"

	. "github.com/weberc2/ext2fs/pkg/types"
)

// File is a device backed by a disk image file.
type File struct {
	file   *os.File
	blocks uint64
}

// OpenFile opens an existing image. The device length is the file size in
// whole blocks.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening image file `%s`: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening image file `%s`: %w", path, err)
	}
	return &File{file: f, blocks: uint64(info.Size() / int64(DeviceBlockSize))}, nil
}

// CreateFile creates (or truncates) an image file with room for `blocks`
// blocks. The file is sparse; unwritten blocks read as zeros.
func CreateFile(path string, blocks uint64) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating image file `%s`: %w", path, err)
	}
	if err := f.Truncate(int64(blocks) * int64(DeviceBlockSize)); err != nil {
		f.Close()
		return nil, fmt.Errorf(
			"creating image file `%s`: sizing to `%d` blocks: %w",
			path,
			blocks,
			err,
		)
	}
	return &File{file: f, blocks: blocks}, nil
}

func (f *File) Len() uint64 { return f.blocks }

func (f *File) ReadBlock(index uint64, b *[DeviceBlockSize]byte) error {
	if err := checkIndex(f, index); err != nil {
		return fmt.Errorf("reading image file `%s`: %w", f.file.Name(), err)
	}
	n, err := f.file.ReadAt(b[:], int64(index)*int64(DeviceBlockSize))
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf(
			"reading image file `%s` block `%d`: %w",
			f.file.Name(),
			index,
			err,
		)
	}
	// a short read can only happen at the end of a sparse file
	for i := n; i < len(b); i++ {
		b[i] = 0
	}
	return nil
}

func (f *File) WriteBlock(index uint64, b *[DeviceBlockSize]byte) error {
	if err := checkIndex(f, index); err != nil {
		return fmt.Errorf("writing image file `%s`: %w", f.file.Name(), err)
	}
	if _, err := f.file.WriteAt(
		b[:],
		int64(index)*int64(DeviceBlockSize),
	); err != nil {
		return fmt.Errorf(
			"writing image file `%s` block `%d`: %w",
			f.file.Name(),
			index,
			err,
		)
	}
	return nil
}

func (f *File) Sync() error { return f.file.Sync() }

func (f *File) Close() error { return f.file.Close() }
