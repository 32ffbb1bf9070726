//go:build !linux

package edfs

import (
	"fmt"
	"os"

	"github.com/edfs/go-edfs/filesystem"
)

func deviceGeometry(f *os.File) (size int64, sectorSize int, err error) {
	return 0, 0, fmt.Errorf("%w: block device %s is only supported on linux", filesystem.ErrInvalidArgument, f.Name())
}
