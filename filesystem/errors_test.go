package filesystem

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

func TestErrno(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want unix.Errno
	}{
		{"nil", nil, 0},
		{"corrupt", fmt.Errorf("bad magic: %w", ErrCorruptImage), unix.EIO},
		{"no space", fmt.Errorf("allocating block: %w", ErrNoSpace), unix.ENOSPC},
		{"directory full", fmt.Errorf("inserting: %w", ErrDirectoryFull), unix.ENOMSG},
		{"not found", fmt.Errorf("looking up a: %w", ErrNotFound), unix.ENOENT},
		{"path error", &os.PathError{Op: "open", Path: "/x", Err: unix.ENOENT}, unix.ENOENT},
		{"exists", fmt.Errorf("inserting a: %w", ErrAlreadyExists), unix.EEXIST},
		{"not dir", ErrNotADirectory, unix.ENOTDIR},
		{"is dir", ErrIsADirectory, unix.EISDIR},
		{"name too long", ErrNameTooLong, unix.ENAMETOOLONG},
		{"not empty", ErrNotEmpty, unix.ENOTEMPTY},
		{"too large", ErrFileTooLarge, unix.EFBIG},
		{"invalid", ErrInvalidArgument, unix.EINVAL},
		{"read only", ErrReadOnly, unix.EROFS},
		{"busy", ErrBusy, unix.EBUSY},
		{"inconsistent wins", fmt.Errorf("%w: freeing blocks: %w", ErrInconsistent, ErrNoSpace), unix.EIO},
		{"raw errno", fmt.Errorf("ioctl: %w", unix.ENOTTY), unix.ENOTTY},
		{"unknown", errors.New("something"), unix.EIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Errno(tt.err); got != tt.want {
				t.Errorf("Errno(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNoSpaceAndDirectoryFullAreDistinct(t *testing.T) {
	if errors.Is(ErrNoSpace, ErrDirectoryFull) || errors.Is(ErrDirectoryFull, ErrNoSpace) {
		t.Fatal("ErrNoSpace and ErrDirectoryFull must not match each other")
	}
}
