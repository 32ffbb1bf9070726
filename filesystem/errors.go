package filesystem

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

var (
	// ErrCorruptImage is returned when the image fails validation at mount, or
	// when on-disk data references something outside the image geometry.
	ErrCorruptImage = errors.New("corrupt image")
	// ErrNoSuchInode is returned for an inode number outside the inode table.
	ErrNoSuchInode = errors.New("no such inode")
	// ErrNoSpace is returned when the free-block bitmap or the inode table is exhausted.
	ErrNoSpace = errors.New("no space left on volume")
	// ErrDirectoryFull is returned when a directory has no free entry slot left.
	// It is distinct from ErrNoSpace, which is block level exhaustion.
	ErrDirectoryFull = errors.New("directory full")
	// ErrNotFound is returned when a path component or directory entry does not exist.
	ErrNotFound = os.ErrNotExist
	// ErrAlreadyExists is returned when a name is already bound in a directory.
	ErrAlreadyExists = os.ErrExist
	// ErrInvalidArgument is returned for malformed paths, names and block numbers.
	ErrInvalidArgument = os.ErrInvalid
	// ErrNotADirectory is returned when a directory operation targets a file.
	ErrNotADirectory = errors.New("not a directory")
	// ErrIsADirectory is returned when a file operation targets a directory.
	ErrIsADirectory = errors.New("is a directory")
	// ErrNameTooLong is returned for names longer than the directory entry name field.
	ErrNameTooLong = errors.New("file name too long")
	// ErrNotEmpty is returned when removing a directory that still has entries.
	ErrNotEmpty = errors.New("directory not empty")
	// ErrFileTooLarge is returned when a range falls outside what the direct and
	// indirect pointers of an inode can map.
	ErrFileTooLarge = errors.New("file too large")
	// ErrBusy is returned when removing the root directory.
	ErrBusy = errors.New("resource busy")
	// ErrReadOnly is returned for mutations against a volume opened read-only.
	ErrReadOnly = errors.New("read-only volume")
	// ErrIO is returned for short reads and writes against the backing store.
	ErrIO = errors.New("input/output error")
	// ErrInconsistent is returned when a multi-step mutation failed after its
	// point of no return. The image must be checked before it is trusted again.
	ErrInconsistent = errors.New("image left inconsistent")
)

// Errno maps an error returned by a filesystem operation onto the POSIX error
// number an adapter should hand back to the kernel. nil maps to 0.
func Errno(err error) unix.Errno {
	if err == nil {
		return 0
	}
	// order matters: a partial failure wraps the error of the step that failed
	// as well, but it must always surface as EIO
	switch {
	case errors.Is(err, ErrInconsistent):
		return unix.EIO
	case errors.Is(err, ErrIO):
		return unix.EIO
	case errors.Is(err, ErrCorruptImage):
		return unix.EIO
	case errors.Is(err, ErrNoSuchInode):
		return unix.ENOENT
	case errors.Is(err, ErrNoSpace):
		return unix.ENOSPC
	case errors.Is(err, ErrDirectoryFull):
		return unix.ENOMSG
	case errors.Is(err, ErrNotFound):
		return unix.ENOENT
	case errors.Is(err, ErrAlreadyExists):
		return unix.EEXIST
	case errors.Is(err, ErrNotADirectory):
		return unix.ENOTDIR
	case errors.Is(err, ErrIsADirectory):
		return unix.EISDIR
	case errors.Is(err, ErrNameTooLong):
		return unix.ENAMETOOLONG
	case errors.Is(err, ErrNotEmpty):
		return unix.ENOTEMPTY
	case errors.Is(err, ErrFileTooLarge):
		return unix.EFBIG
	case errors.Is(err, ErrBusy):
		return unix.EBUSY
	case errors.Is(err, ErrReadOnly):
		return unix.EROFS
	case errors.Is(err, ErrInvalidArgument):
		return unix.EINVAL
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return unix.EIO
}
