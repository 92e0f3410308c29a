package filesystem

import (
	"errors"

	"github.com/weberc2/ext2fs/pkg/directory"
	"github.com/weberc2/ext2fs/pkg/inode/data/block/physical"
	"golang.org/x/sys/unix"
)

// Errno maps an error returned by this package to the errno a POSIX
// caller expects. Errors that don't carry or imply an errno are `EIO`.
func Errno(err error) unix.Errno {
	var errno unix.Errno
	switch {
	case err == nil:
		return 0
	case errors.As(err, &errno):
		return errno
	case errors.Is(err, directory.NotFoundErr):
		return unix.ENOENT
	case errors.Is(err, directory.NameTooLongErr):
		return unix.ENAMETOOLONG
	case errors.Is(err, physical.OutOfRangeErr):
		return unix.EFBIG
	case errors.Is(err, NotAbsolutePathErr), errors.Is(err, InvalidNameErr):
		return unix.EINVAL
	default:
		return unix.EIO
	}
}

// Result renders an operation's outcome in the signed-integer convention:
// `n` on success and the negated errno on failure.
func Result(n int, err error) int {
	if err != nil {
		return -int(Errno(err))
	}
	return n
}
