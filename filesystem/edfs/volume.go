package edfs

import (
	"errors"
	"fmt"
	"os"

	"github.com/edfs/go-edfs/filesystem"
	"github.com/sirupsen/logrus"
)

// Volume is an open image: the backing file, the validated superblock and
// raw block and region I/O. It never interprets inodes.
type Volume struct {
	file     *os.File
	name     string
	start    int64
	size     int64
	sb       *superblock
	log      logrus.FieldLogger
	readOnly bool
	closed   bool
}

// OpenVolume opens the image at p, reads its superblock and validates the
// declared geometry against the physical size of the image.
func OpenVolume(p string, opts ...Option) (*Volume, error) {
	o := newOptions(opts)
	flag := os.O_RDWR
	if o.readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(p, flag, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("could not open image %s: %w", p, err)
		}
		return nil, fmt.Errorf("%w: could not open image %s: %w", filesystem.ErrIO, p, err)
	}
	v, err := openVolumeFile(f, p, o)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return v, nil
}

func openVolumeFile(f *os.File, name string, o options) (*Volume, error) {
	log := o.log.WithField("image", name)
	size, err := imageSize(f, log)
	if err != nil {
		return nil, err
	}
	if o.start < 0 || o.start > size {
		return nil, fmt.Errorf("%w: start %d outside of image of %d bytes", filesystem.ErrInvalidArgument, o.start, size)
	}
	size -= o.start
	if size < int64(superblockSize) {
		return nil, fmt.Errorf("%w: image of %d bytes is too small to hold a superblock", filesystem.ErrCorruptImage, size)
	}

	v := &Volume{
		file:     f,
		name:     name,
		start:    o.start,
		size:     size,
		log:      log,
		readOnly: o.readOnly,
	}
	b := make([]byte, superblockSize)
	if err := v.readAt(b, SuperblockOffset, "superblock"); err != nil {
		return nil, err
	}
	sb, err := superblockFromBytes(b)
	if err != nil {
		return nil, err
	}
	if err := sb.validate(size); err != nil {
		return nil, err
	}
	v.sb = sb
	log.WithFields(logrus.Fields{
		"blockSize": sb.blockSize,
		"blocks":    sb.blockCount,
		"inodes":    sb.inodeCount,
		"uuid":      sb.uuid.String(),
	}).Info("mounted volume")
	return v, nil
}

// imageSize is the size of a regular image file, or of the device behind a
// block special file
func imageSize(f *os.File, log logrus.FieldLogger) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: could not stat image: %w", filesystem.ErrIO, err)
	}
	if info.Mode()&os.ModeDevice == 0 {
		return info.Size(), nil
	}
	size, sectorSize, err := deviceGeometry(f)
	if err != nil {
		return 0, fmt.Errorf("%w: could not get size of block device: %w", filesystem.ErrIO, err)
	}
	log.WithFields(logrus.Fields{"size": size, "sectorSize": sectorSize}).Debug("image is a block device")
	return size, nil
}

// Close releases the backing file. Closing an already closed volume is a no-op.
func (v *Volume) Close() error {
	if v == nil || v.closed {
		return nil
	}
	v.closed = true
	if err := v.file.Close(); err != nil {
		return fmt.Errorf("%w: could not close image %s: %w", filesystem.ErrIO, v.name, err)
	}
	return nil
}

// BlockSize is the size in bytes of every block on the volume
func (v *Volume) BlockSize() int {
	return int(v.sb.blockSize)
}

// BlockCount is the number of blocks on the volume, metadata included
func (v *Volume) BlockCount() uint32 {
	return v.sb.blockCount
}

// ReadBlock reads the whole of block into b, which must be exactly one block long
func (v *Volume) ReadBlock(block uint32, b []byte) error {
	if err := v.checkBlock(block, b); err != nil {
		return err
	}
	return v.readAt(b, v.sb.blockOffset(block), fmt.Sprintf("block %d", block))
}

// WriteBlock writes b, exactly one block long, over the whole of block
func (v *Volume) WriteBlock(block uint32, b []byte) error {
	if err := v.checkBlock(block, b); err != nil {
		return err
	}
	return v.writeAt(b, v.sb.blockOffset(block), fmt.Sprintf("block %d", block))
}

func (v *Volume) checkBlock(block uint32, b []byte) error {
	if block >= v.sb.blockCount {
		return fmt.Errorf("%w: block %d outside of volume of %d blocks", filesystem.ErrCorruptImage, block, v.sb.blockCount)
	}
	if len(b) != int(v.sb.blockSize) {
		return fmt.Errorf("%w: buffer of %d bytes for block %d instead of block size of %d", filesystem.ErrInvalidArgument, len(b), block, v.sb.blockSize)
	}
	return nil
}

// readAt reads a region at an offset relative to the start of the volume
func (v *Volume) readAt(b []byte, offset int64, what string) error {
	if v.closed {
		return fmt.Errorf("%w: read %s from closed image", filesystem.ErrIO, what)
	}
	read, err := v.file.ReadAt(b, v.start+offset)
	if read == len(b) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: failed to read %s: %w", filesystem.ErrIO, what, err)
	}
	return fmt.Errorf("%w: read %d bytes for %s instead of %d", filesystem.ErrIO, read, what, len(b))
}

// writeAt writes a region at an offset relative to the start of the volume
func (v *Volume) writeAt(b []byte, offset int64, what string) error {
	if v.readOnly {
		return fmt.Errorf("%w: cannot write %s", filesystem.ErrReadOnly, what)
	}
	if v.closed {
		return fmt.Errorf("%w: write %s to closed image", filesystem.ErrIO, what)
	}
	wrote, err := v.file.WriteAt(b, v.start+offset)
	if err != nil {
		return fmt.Errorf("%w: failed to write %s: %w", filesystem.ErrIO, what, err)
	}
	if wrote != len(b) {
		return fmt.Errorf("%w: wrote %d bytes for %s instead of %d", filesystem.ErrIO, wrote, what, len(b))
	}
	return nil
}

// readRecord reads and decodes a fixed size record at offset
func (v *Volume) readRecord(u unmarshaler, size int, offset int64, what string) error {
	b := make([]byte, size)
	if err := v.readAt(b, offset, what); err != nil {
		return err
	}
	return u.UnmarshalEdfs(b)
}

// writeRecord encodes and writes a fixed size record at offset
func (v *Volume) writeRecord(m marshaler, offset int64, what string) error {
	b := make([]byte, m.recordSize())
	if err := m.MarshalEdfs(b); err != nil {
		return fmt.Errorf("could not encode %s: %w", what, err)
	}
	return v.writeAt(b, offset, what)
}
