// Package filesystem exposes a path-based, POSIX-like interface over a
// mounted volume. Every operation takes a single filesystem-wide lock.
// Failures wrap errno values from `golang.org/x/sys/unix`; see `Errno` and
// `Result`.
package filesystem

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/weberc2/ext2fs/pkg/device"
	"github.com/weberc2/ext2fs/pkg/directory"
	"github.com/weberc2/ext2fs/pkg/engine"
	. "github.com/weberc2/ext2fs/pkg/types"
	"golang.org/x/sys/unix"
)

type FileSystem struct {
	mutex  sync.Mutex
	engine *engine.Engine

	// Now stamps inode times; tests pin it.
	Now func() time.Time
}

func New(e *engine.Engine) *FileSystem {
	return &FileSystem{engine: e, Now: time.Now}
}

// Open mounts the filesystem on `dev`, recording the mount in the
// superblock.
func Open(dev device.Device, options engine.Options) (*FileSystem, error) {
	e, err := engine.Open(dev, options)
	if err != nil {
		return nil, fmt.Errorf("mounting filesystem: %w", err)
	}
	fs := New(e)
	if err := e.Superblock.Update(func(sb *Superblock) {
		sb.MountTime = fs.now()
		sb.MountCount++
	}); err != nil {
		return nil, fmt.Errorf("mounting filesystem: %w", err)
	}
	logrus.WithField("blockSize", e.BlockSize()).Info("mounted filesystem")
	return fs, nil
}

func (fs *FileSystem) Engine() *engine.Engine { return fs.engine }

func (fs *FileSystem) now() uint32 { return uint32(fs.Now().Unix()) }

// Lookup resolves an absolute path to its inode.
func (fs *FileSystem) Lookup(path string) (Inode, error) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	inode, err := fs.resolve(path)
	if err != nil {
		return Inode{}, fmt.Errorf("looking up `%s`: %w", path, err)
	}
	return inode, nil
}

// Readdir lists the entries of the directory at `path`, including `.` and
// `..`.
func (fs *FileSystem) Readdir(path string) ([]DirEntry, error) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	dir, err := fs.resolveDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory `%s`: %w", path, err)
	}
	entries, err := fs.engine.Directories.List(&dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory `%s`: %w", path, err)
	}
	return entries, nil
}

// Create makes an empty, non-directory file called `name` in the directory
// at `parent`. A mode without a file format creates a regular file.
func (fs *FileSystem) Create(parent, name string, mode Mode) (Inode, error) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	if mode.Format() == 0 {
		mode |= ModeRegular
	}
	if mode.FileType() == FileTypeInvalid || mode.FileType() == FileTypeDir {
		return Inode{}, fmt.Errorf(
			"creating `%s` in `%s` with mode `%#o`: %w",
			name,
			parent,
			mode,
			unix.EINVAL,
		)
	}

	inode, err := fs.create(parent, name, mode)
	if err != nil {
		return Inode{}, fmt.Errorf(
			"creating `%s` in `%s`: %w",
			name,
			parent,
			err,
		)
	}
	return inode, nil
}

// Mkdir makes an empty directory called `name` in the directory at
// `parent`.
func (fs *FileSystem) Mkdir(parent, name string, mode Mode) (Inode, error) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	inode, err := fs.create(parent, name, ModeDir|mode.Perm())
	if err != nil {
		return Inode{}, fmt.Errorf(
			"making directory `%s` in `%s`: %w",
			name,
			parent,
			err,
		)
	}
	return inode, nil
}

func (fs *FileSystem) create(parent, name string, mode Mode) (Inode, error) {
	if err := validateName(name); err != nil {
		return Inode{}, err
	}
	dir, err := fs.resolveDir(parent)
	if err != nil {
		return Inode{}, err
	}
	if _, err := fs.engine.Directories.Lookup(&dir, name); err == nil {
		return Inode{}, unix.EEXIST
	} else if !errors.Is(err, directory.NotFoundErr) {
		return Inode{}, err
	}

	ino, err := fs.engine.Inos.AllocateIdle()
	if err != nil {
		return Inode{}, err
	}
	now := fs.now()
	inode := Inode{
		Ino:        ino,
		Mode:       mode,
		ATime:      now,
		CTime:      now,
		MTime:      now,
		LinksCount: 1,
	}
	if inode.IsDir() {
		inode.LinksCount = 2
	}
	if err := fs.engine.Inodes.Put(&inode); err != nil {
		return Inode{}, err
	}

	if inode.IsDir() {
		if err := fs.engine.Directories.Init(&inode, dir.Ino); err != nil {
			return Inode{}, err
		}
		if err := fs.engine.Inos.CountDir(ino, 1); err != nil {
			return Inode{}, err
		}
		dir.LinksCount++
	}

	if err := fs.engine.Directories.Add(
		&dir,
		ino,
		name,
		inode.FileType(),
	); err != nil {
		return Inode{}, err
	}
	if err := fs.touch(&dir); err != nil {
		return Inode{}, err
	}

	logrus.WithFields(logrus.Fields{
		"ino":    ino,
		"parent": dir.Ino,
		"name":   name,
		"type":   inode.FileType(),
	}).Debug("created inode")
	return inode, nil
}

// Unlink removes the entry for the non-directory at `path`, releasing the
// inode when its last link is gone.
func (fs *FileSystem) Unlink(path string) error {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	if err := fs.unlink(path); err != nil {
		return fmt.Errorf("unlinking `%s`: %w", path, err)
	}
	return nil
}

func (fs *FileSystem) unlink(path string) error {
	parent, name, err := fs.resolveParent(path)
	if err != nil {
		return err
	}
	child, err := fs.child(&parent, name)
	if err != nil {
		return err
	}
	if child.IsDir() {
		return unix.EISDIR
	}
	return fs.unlinkChild(&parent, name, &child)
}

func (fs *FileSystem) unlinkChild(parent *Inode, name string, child *Inode) error {
	if err := fs.removeEntry(parent, name); err != nil {
		return err
	}
	child.LinksCount--
	if child.LinksCount > 0 {
		child.CTime = fs.now()
		return fs.engine.Inodes.Put(child)
	}
	return fs.release(child)
}

// Rmdir removes the empty directory at `path`.
func (fs *FileSystem) Rmdir(path string) error {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	if err := fs.rmdir(path); err != nil {
		return fmt.Errorf("removing directory `%s`: %w", path, err)
	}
	return nil
}

func (fs *FileSystem) rmdir(path string) error {
	components, err := Split(path)
	if err != nil {
		return err
	}
	if len(components) < 1 {
		return unix.EBUSY
	}
	parent, name, err := fs.resolveParent(path)
	if err != nil {
		return err
	}
	child, err := fs.child(&parent, name)
	if err != nil {
		return err
	}
	return fs.rmdirChild(&parent, name, &child)
}

func (fs *FileSystem) rmdirChild(parent *Inode, name string, child *Inode) error {
	if !child.IsDir() {
		return unix.ENOTDIR
	}
	empty, err := fs.engine.Directories.IsEmpty(child)
	if err != nil {
		return err
	}
	if !empty {
		return unix.ENOTEMPTY
	}

	if err := fs.removeEntry(parent, name); err != nil {
		return err
	}
	parent.LinksCount--
	if err := fs.engine.Inodes.Put(parent); err != nil {
		return err
	}
	if err := fs.engine.Inos.CountDir(child.Ino, -1); err != nil {
		return err
	}
	child.LinksCount = 0
	return fs.release(child)
}

// Truncate resizes the regular file at `path` to `size` bytes.
func (fs *FileSystem) Truncate(path string, size Byte) error {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	if err := fs.truncate(path, size); err != nil {
		return fmt.Errorf("truncating `%s` to `%d` bytes: %w", path, size, err)
	}
	return nil
}

func (fs *FileSystem) truncate(path string, size Byte) error {
	if size < 0 {
		return unix.EINVAL
	}
	inode, err := fs.resolve(path)
	if err != nil {
		return err
	}
	if inode.IsDir() {
		return unix.EISDIR
	}
	return fs.engine.Resizer.ResizeInode(&inode, size)
}

// Read copies bytes from the file at `path` starting at `offset`. Reading
// at or past the end of the file returns 0.
func (fs *FileSystem) Read(path string, buf []byte, offset Byte) (int, error) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	n, err := fs.read(path, buf, offset)
	if err != nil {
		return n, fmt.Errorf(
			"reading `%d` bytes from `%s` at offset `%d`: %w",
			len(buf),
			path,
			offset,
			err,
		)
	}
	return n, nil
}

func (fs *FileSystem) read(path string, buf []byte, offset Byte) (int, error) {
	if offset < 0 {
		return 0, unix.EINVAL
	}
	inode, err := fs.resolve(path)
	if err != nil {
		return 0, err
	}
	if inode.IsDir() {
		return 0, unix.EISDIR
	}
	n, err := fs.engine.Data.Read(&inode, offset, buf)
	return int(n), err
}

// Write copies `buf` into the file at `path` at `offset`, growing the file
// first if the write ends past its size.
func (fs *FileSystem) Write(path string, buf []byte, offset Byte) (int, error) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	n, err := fs.write(path, buf, offset)
	if err != nil {
		return n, fmt.Errorf(
			"writing `%d` bytes to `%s` at offset `%d`: %w",
			len(buf),
			path,
			offset,
			err,
		)
	}
	return n, nil
}

func (fs *FileSystem) write(path string, buf []byte, offset Byte) (int, error) {
	if offset < 0 {
		return 0, unix.EINVAL
	}
	inode, err := fs.resolve(path)
	if err != nil {
		return 0, err
	}
	if inode.FileType() != FileTypeRegular {
		return 0, unix.EISDIR
	}

	if end := offset + Byte(len(buf)); len(buf) > 0 && end > inode.Size {
		if err := fs.engine.Resizer.ResizeInode(&inode, end); err != nil {
			return 0, err
		}
	} else if err := fs.touch(&inode); err != nil {
		return 0, err
	}

	n, err := fs.engine.Data.Write(&inode, offset, buf)
	return int(n), err
}

// resolve walks `path` from the root directory.
func (fs *FileSystem) resolve(path string) (Inode, error) {
	components, err := Split(path)
	if err != nil {
		return Inode{}, err
	}

	var inode Inode
	if err := fs.engine.Inodes.Get(InoRoot, &inode); err != nil {
		return Inode{}, err
	}
	for _, name := range components {
		if !inode.IsDir() {
			return Inode{}, unix.ENOTDIR
		}
		if inode, err = fs.child(&inode, name); err != nil {
			return Inode{}, err
		}
	}
	return inode, nil
}

func (fs *FileSystem) resolveDir(path string) (Inode, error) {
	dir, err := fs.resolve(path)
	if err != nil {
		return Inode{}, err
	}
	if !dir.IsDir() {
		return Inode{}, unix.ENOTDIR
	}
	return dir, nil
}

// resolveParent resolves the directory containing `path` and returns it
// along with the final component of `path`.
func (fs *FileSystem) resolveParent(path string) (Inode, string, error) {
	parentPath, name, err := SplitParent(path)
	if err != nil {
		return Inode{}, "", err
	}
	if err := validateName(name); err != nil {
		return Inode{}, "", err
	}
	parent, err := fs.resolveDir(parentPath)
	if err != nil {
		return Inode{}, "", err
	}
	return parent, name, nil
}

// child loads the inode named `name` in `dir`. A missing entry is ENOENT.
func (fs *FileSystem) child(dir *Inode, name string) (Inode, error) {
	entry, err := fs.engine.Directories.Lookup(dir, name)
	if err != nil {
		if errors.Is(err, directory.NotFoundErr) {
			return Inode{}, unix.ENOENT
		}
		return Inode{}, err
	}
	var inode Inode
	if err := fs.engine.Inodes.Get(entry.Ino, &inode); err != nil {
		return Inode{}, err
	}
	return inode, nil
}

func (fs *FileSystem) removeEntry(dir *Inode, name string) error {
	found, err := fs.engine.Directories.Delete(dir, name)
	if err != nil {
		return err
	}
	if !found {
		return unix.ENOENT
	}
	return fs.touch(dir)
}

// release frees an unlinked inode's data and then the inode itself.
func (fs *FileSystem) release(inode *Inode) error {
	inode.DTime = fs.now()
	if err := fs.engine.Resizer.ResizeInode(inode, 0); err != nil {
		return err
	}
	if err := fs.engine.Inos.Delete(inode.Ino); err != nil {
		return err
	}
	logrus.WithField("ino", inode.Ino).Debug("released inode")
	return nil
}

// touch stamps MTime and CTime and stores the inode.
func (fs *FileSystem) touch(inode *Inode) error {
	now := fs.now()
	inode.MTime = now
	inode.CTime = now
	return fs.engine.Inodes.Put(inode)
}
