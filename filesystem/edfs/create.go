package edfs

import (
	"fmt"
	"math"
	"os"

	"github.com/edfs/go-edfs/filesystem"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultBlockSize is used when Params.BlockSize is 0
	DefaultBlockSize int = 512
	// RootInumber is the inode of the root directory on volumes made by Create
	RootInumber Inumber = 1

	minInodeCount uint32 = 16
	// one inode for every inodeRatio blocks unless asked otherwise
	inodeRatio uint32 = 4
)

// Params tune the layout of a new volume. The zero value picks defaults.
type Params struct {
	UUID       *uuid.UUID
	BlockSize  int
	InodeCount uint32
}

// Create formats a volume of size bytes in the image at p, creating the file
// if it does not exist. The volume starts WithStart bytes into the file.
//
// The layout is the superblock in block 0, then the inode table, then the
// free-block bitmap, each starting on a block boundary, then data blocks.
// Every metadata block is marked allocated. The root directory is inode 1
// and starts out empty, with no blocks.
func Create(p string, size int64, params *Params, opts ...Option) (*FileSystem, error) {
	if params == nil {
		params = &Params{}
	}
	o := newOptions(opts)
	if o.readOnly {
		return nil, fmt.Errorf("%w: cannot create a volume read-only", filesystem.ErrInvalidArgument)
	}
	if o.start < 0 {
		return nil, fmt.Errorf("%w: negative start %d", filesystem.ErrInvalidArgument, o.start)
	}
	sb, err := layout(size, params)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: could not open image %s: %w", filesystem.ErrIO, p, err)
	}
	if err := format(f, sb, size, o); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("could not format %s: %w", p, err)
	}
	v, err := openVolumeFile(f, p, o)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := writeLabel(f, sb.uuid); err != nil {
		v.log.WithError(err).Debug("image file not labelled")
	}
	o.log.WithFields(logrus.Fields{
		"image":     p,
		"blockSize": sb.blockSize,
		"blocks":    sb.blockCount,
		"inodes":    sb.inodeCount,
	}).Info("created volume")
	return newFileSystem(v), nil
}

// layout computes the superblock for a volume of size bytes
func layout(size int64, params *Params) (*superblock, error) {
	bs := params.BlockSize
	if bs == 0 {
		bs = DefaultBlockSize
	}
	if bs < MinBlockSize || bs > MaxBlockSize || bs%DirEntrySize != 0 {
		return nil, fmt.Errorf("%w: block size %d must be a multiple of %d between %d and %d", filesystem.ErrInvalidArgument, bs, DirEntrySize, MinBlockSize, MaxBlockSize)
	}
	blocks := size / int64(bs)
	if blocks > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d blocks of %d bytes is more than a volume can address", filesystem.ErrInvalidArgument, blocks, bs)
	}
	blockCount := uint32(blocks)

	inodes := params.InodeCount
	if inodes == 0 {
		inodes = max(minInodeCount, blockCount/inodeRatio)
	}
	if inodes < 2 {
		return nil, fmt.Errorf("%w: need at least 2 inodes, requested %d", filesystem.ErrInvalidArgument, inodes)
	}

	blocksFor := func(n int64) int64 { return (n + int64(bs) - 1) / int64(bs) }
	tableBlocks := blocksFor(int64(inodes) * inodeRecordSize)
	bitmapBlocks := blocksFor((blocks + 7) / 8)
	metadata := 1 + tableBlocks + bitmapBlocks
	if blocks <= metadata {
		return nil, fmt.Errorf("%w: volume of %d bytes has %d blocks, %d needed for metadata alone", filesystem.ErrInvalidArgument, size, blocks, metadata)
	}
	if tableBlocks*int64(bs) > math.MaxUint32 || metadata*int64(bs) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: inode table of %d inodes too large", filesystem.ErrInvalidArgument, inodes)
	}

	fsuuid := params.UUID
	if fsuuid == nil {
		fsuuid2, _ := uuid.NewRandom()
		fsuuid = &fsuuid2
	}
	return &superblock{
		blockSize:       uint16(bs),
		blockCount:      blockCount,
		inodeTableStart: uint32(bs),
		inodeTableSize:  uint32(tableBlocks * int64(bs)),
		inodeCount:      inodes,
		bitmapStart:     uint32((1 + tableBlocks) * int64(bs)),
		rootInumber:     RootInumber,
		uuid:            *fsuuid,
	}, nil
}

// metadataBlocks how many leading blocks hold the superblock, inode table and bitmap
func (sb *superblock) metadataBlocks() uint32 {
	end := int64(sb.bitmapStart) + sb.bitmapSize()
	return uint32((end + int64(sb.blockSize) - 1) / int64(sb.blockSize))
}

// format writes the metadata regions of sb into f
func format(f *os.File, sb *superblock, size int64, o options) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: could not stat image: %w", filesystem.ErrIO, err)
	}
	if info.Mode()&os.ModeDevice != 0 {
		devSize, _, err := deviceGeometry(f)
		if err != nil {
			return fmt.Errorf("%w: could not get size of block device: %w", filesystem.ErrIO, err)
		}
		if o.start+size > devSize {
			return fmt.Errorf("%w: volume of %d bytes at %d does not fit on device of %d bytes", filesystem.ErrInvalidArgument, size, o.start, devSize)
		}
	} else if info.Size() < o.start+size {
		if err := f.Truncate(o.start + size); err != nil {
			return fmt.Errorf("%w: could not grow image to %d bytes: %w", filesystem.ErrIO, o.start+size, err)
		}
	}

	meta := sb.metadataBlocks()
	b := make([]byte, int64(meta)*int64(sb.blockSize))
	if err := sb.MarshalEdfs(b); err != nil {
		return err
	}
	bitmap := b[sb.bitmapStart:]
	for block := uint32(0); block < meta; block++ {
		bitmap[block/8] |= 1 << (block % 8)
	}
	root := &Inode{Number: sb.rootInumber, Type: InodeDirectory}
	if err := root.MarshalEdfs(b[sb.inodeOffset(root.Number):]); err != nil {
		return err
	}
	wrote, err := f.WriteAt(b, o.start)
	if err != nil {
		return fmt.Errorf("%w: could not write metadata: %w", filesystem.ErrIO, err)
	}
	if wrote != len(b) {
		return fmt.Errorf("%w: wrote %d bytes of metadata instead of %d", filesystem.ErrIO, wrote, len(b))
	}
	return nil
}

// Open mounts the volume in the image at p
func Open(p string, opts ...Option) (*FileSystem, error) {
	v, err := OpenVolume(p, opts...)
	if err != nil {
		return nil, err
	}
	fs := newFileSystem(v)
	root, err := fs.inodes.Read(v.sb.rootInumber)
	if err != nil {
		_ = v.Close()
		return nil, err
	}
	if !root.IsDir() {
		_ = v.Close()
		return nil, fmt.Errorf("%w: root inode %d is a %s", filesystem.ErrCorruptImage, root.Number, root.Type)
	}
	return fs, nil
}
