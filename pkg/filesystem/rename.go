package filesystem

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	. "github.com/weberc2/ext2fs/pkg/types"
	"golang.org/x/sys/unix"
)

// Rename flags. The values match Linux's `renameat2(2)`.
const (
	RenameNoReplace uint32 = 1 << 0
	RenameExchange  uint32 = 1 << 1
)

// Rename moves the entry at `oldPath` to `newPath`. An existing
// destination is replaced unless `RenameNoReplace` is given; with
// `RenameExchange` the two entries swap inodes instead.
func (fs *FileSystem) Rename(oldPath, newPath string, flags uint32) error {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	if err := fs.rename(oldPath, newPath, flags); err != nil {
		return fmt.Errorf("renaming `%s` to `%s`: %w", oldPath, newPath, err)
	}
	logrus.WithFields(logrus.Fields{
		"old":   oldPath,
		"new":   newPath,
		"flags": flags,
	}).Debug("renamed")
	return nil
}

func (fs *FileSystem) rename(oldPath, newPath string, flags uint32) error {
	if flags&^(RenameNoReplace|RenameExchange) != 0 ||
		flags == RenameNoReplace|RenameExchange {
		return unix.EINVAL
	}

	oldParent, oldName, err := fs.resolveParent(oldPath)
	if err != nil {
		return err
	}
	source, err := fs.child(&oldParent, oldName)
	if err != nil {
		return err
	}

	newParentInode, newName, err := fs.resolveParent(newPath)
	if err != nil {
		return err
	}
	// both parents must share one copy or the second write clobbers the
	// first
	newParent := &newParentInode
	if newParent.Ino == oldParent.Ino {
		newParent = &oldParent
	}

	target, err := fs.child(newParent, newName)
	exists := err == nil
	if err != nil && !errors.Is(err, unix.ENOENT) {
		return err
	}
	if exists && target.Ino == source.Ino {
		return nil
	}

	if flags&RenameExchange != 0 {
		if !exists {
			return unix.ENOENT
		}
		return fs.exchange(&oldParent, oldName, &source, newParent, newName, &target)
	}

	if exists {
		if flags&RenameNoReplace != 0 {
			return unix.EEXIST
		}
		if target.IsDir() && !source.IsDir() {
			return unix.EISDIR
		}
		if !target.IsDir() && source.IsDir() {
			return unix.ENOTDIR
		}
	}
	if source.IsDir() {
		within, err := fs.isAncestor(source.Ino, newParent)
		if err != nil {
			return err
		}
		if within {
			return unix.EINVAL
		}
	}

	if exists {
		if target.IsDir() {
			err = fs.rmdirChild(newParent, newName, &target)
		} else {
			err = fs.unlinkChild(newParent, newName, &target)
		}
		if err != nil {
			return err
		}
	}

	if err := fs.removeEntry(&oldParent, oldName); err != nil {
		return err
	}
	if err := fs.engine.Directories.Add(
		newParent,
		source.Ino,
		newName,
		source.FileType(),
	); err != nil {
		return err
	}
	if source.IsDir() && newParent != &oldParent {
		if err := fs.engine.Directories.Retarget(
			&source,
			"..",
			newParent.Ino,
			FileTypeDir,
		); err != nil {
			return err
		}
		oldParent.LinksCount--
		newParent.LinksCount++
		if err := fs.engine.Inodes.Put(&oldParent); err != nil {
			return err
		}
	}

	source.CTime = fs.now()
	if err := fs.engine.Inodes.Put(&source); err != nil {
		return err
	}
	return fs.touch(newParent)
}

// exchange swaps the inodes named by two entries. Directories that change
// parent get their `..` rewritten and move a link between the parents.
func (fs *FileSystem) exchange(
	oldParent *Inode,
	oldName string,
	source *Inode,
	newParent *Inode,
	newName string,
	target *Inode,
) error {
	for _, check := range []struct {
		moved *Inode
		into  *Inode
	}{{source, newParent}, {target, oldParent}} {
		if !check.moved.IsDir() {
			continue
		}
		within, err := fs.isAncestor(check.moved.Ino, check.into)
		if err != nil {
			return err
		}
		if within {
			return unix.EINVAL
		}
	}

	if err := fs.engine.Directories.Retarget(
		oldParent,
		oldName,
		target.Ino,
		target.FileType(),
	); err != nil {
		return err
	}
	if err := fs.engine.Directories.Retarget(
		newParent,
		newName,
		source.Ino,
		source.FileType(),
	); err != nil {
		return err
	}

	if oldParent != newParent {
		for _, moved := range []struct {
			inode    *Inode
			from, to *Inode
		}{{source, oldParent, newParent}, {target, newParent, oldParent}} {
			if !moved.inode.IsDir() {
				continue
			}
			if err := fs.engine.Directories.Retarget(
				moved.inode,
				"..",
				moved.to.Ino,
				FileTypeDir,
			); err != nil {
				return err
			}
			moved.from.LinksCount--
			moved.to.LinksCount++
		}
		if err := fs.touch(oldParent); err != nil {
			return err
		}
	}
	return fs.touch(newParent)
}

// isAncestor reports whether directory `ancestor` is `dir` or lies on the
// `..` chain from `dir` to the root.
func (fs *FileSystem) isAncestor(ancestor Ino, dir *Inode) (bool, error) {
	cur := *dir
	for {
		if cur.Ino == ancestor {
			return true, nil
		}
		if cur.Ino == InoRoot {
			return false, nil
		}
		parent, err := fs.child(&cur, "..")
		if err != nil {
			return false, err
		}
		cur = parent
	}
}
