package edfs

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// deviceGeometry asks the kernel for the byte size and logical sector size of
// the block device behind f
func deviceGeometry(f *os.File) (size int64, sectorSize int, err error) {
	var n uint64
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&n))); errno != 0 {
		return 0, 0, fmt.Errorf("ioctl BLKGETSIZE64 on %s: %w", f.Name(), errno)
	}
	sectorSize, err = unix.IoctlGetInt(int(f.Fd()), unix.BLKSSZGET)
	if err != nil {
		return 0, 0, fmt.Errorf("ioctl BLKSSZGET on %s: %w", f.Name(), err)
	}
	return int64(n), sectorSize, nil
}
