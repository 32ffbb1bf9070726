package edfs

import (
	"encoding/binary"
	"fmt"

	"github.com/edfs/go-edfs/filesystem"
	"github.com/google/uuid"
)

const (
	// SuperblockOffset is where the superblock lives, relative to the start of the volume
	SuperblockOffset int64 = 0
	// MaxBlockSize is the largest block size a volume may declare; a whole block
	// must fit in one scratch buffer
	MaxBlockSize int = 4096
	// MinBlockSize is the smallest block size a volume may declare
	MinBlockSize int = 64

	superblockMagic uint32 = 0x000ed1f5
	superblockSize  int    = 0x30
)

// superblock is the geometry of a volume. It is read once at mount and never
// changes afterwards.
type superblock struct {
	blockSize       uint16
	blockCount      uint32
	bitmapStart     uint32
	inodeTableStart uint32
	inodeTableSize  uint32
	inodeCount      uint32
	rootInumber     Inumber
	uuid            uuid.UUID
}

func (sb *superblock) equal(a *superblock) bool {
	if (sb == nil && a != nil) || (a == nil && sb != nil) {
		return false
	}
	if sb == nil && a == nil {
		return true
	}
	return *sb == *a
}

func (sb *superblock) recordSize() int { return superblockSize }

func (sb *superblock) MarshalEdfs(b []byte) error {
	if len(b) < superblockSize {
		return fmt.Errorf("superblock needs %d bytes, received %d", superblockSize, len(b))
	}
	binary.LittleEndian.PutUint32(b[0x0:0x4], superblockMagic)
	binary.LittleEndian.PutUint16(b[0x4:0x6], sb.blockSize)
	binary.LittleEndian.PutUint16(b[0x6:0x8], 0)
	binary.LittleEndian.PutUint32(b[0x8:0xc], sb.blockCount)
	binary.LittleEndian.PutUint32(b[0xc:0x10], sb.bitmapStart)
	binary.LittleEndian.PutUint32(b[0x10:0x14], sb.inodeTableStart)
	binary.LittleEndian.PutUint32(b[0x14:0x18], sb.inodeTableSize)
	binary.LittleEndian.PutUint32(b[0x18:0x1c], sb.inodeCount)
	binary.LittleEndian.PutUint32(b[0x1c:0x20], uint32(sb.rootInumber))
	copy(b[0x20:0x30], sb.uuid[:])
	return nil
}

func (sb *superblock) toBytes() []byte {
	b := make([]byte, superblockSize)
	_ = sb.MarshalEdfs(b)
	return b
}

// UnmarshalEdfs decodes the superblock and checks its magic. Geometry is
// checked separately by validate, once the size of the image is known.
func (sb *superblock) UnmarshalEdfs(b []byte) (err error) {
	var (
		magic  uint32
		offset int
		root   uint32
	)
	if offset, err = toUint32(b, 0x0, &magic); err != nil {
		return fmt.Errorf("%w: failed to deserialize magic: %w", filesystem.ErrCorruptImage, err)
	}
	if magic != superblockMagic {
		return fmt.Errorf("%w: magic number mismatch: expected %#x, found %#x", filesystem.ErrCorruptImage, superblockMagic, magic)
	}
	if offset, err = toUint16(b, offset, &sb.blockSize); err != nil {
		return fmt.Errorf("%w: failed to deserialize block size: %w", filesystem.ErrCorruptImage, err)
	}
	// skip reserved
	offset += 2
	fields := []struct {
		name string
		to   *uint32
	}{
		{"block count", &sb.blockCount},
		{"bitmap start", &sb.bitmapStart},
		{"inode table start", &sb.inodeTableStart},
		{"inode table size", &sb.inodeTableSize},
		{"inode count", &sb.inodeCount},
		{"root inode number", &root},
	}
	for _, f := range fields {
		if offset, err = toUint32(b, offset, f.to); err != nil {
			return fmt.Errorf("%w: failed to deserialize %s: %w", filesystem.ErrCorruptImage, f.name, err)
		}
	}
	sb.rootInumber = Inumber(root)
	if len(b) < offset+len(sb.uuid) {
		return fmt.Errorf("%w: superblock too short for volume UUID", filesystem.ErrCorruptImage)
	}
	copy(sb.uuid[:], b[offset:offset+len(sb.uuid)])
	return nil
}

func superblockFromBytes(b []byte) (*superblock, error) {
	sb := &superblock{}
	if err := sb.UnmarshalEdfs(b); err != nil {
		return nil, err
	}
	return sb, nil
}

// validate checks the geometry against itself and against the physical size
// of the image.
func (sb *superblock) validate(imageSize int64) error {
	bs := int(sb.blockSize)
	switch {
	case bs < MinBlockSize || bs > MaxBlockSize:
		return fmt.Errorf("%w: block size %d outside of [%d, %d]", filesystem.ErrCorruptImage, bs, MinBlockSize, MaxBlockSize)
	case bs%DirEntrySize != 0:
		return fmt.Errorf("%w: block size %d is not a multiple of the directory entry size %d", filesystem.ErrCorruptImage, bs, DirEntrySize)
	case sb.blockCount == 0:
		return fmt.Errorf("%w: volume has no blocks", filesystem.ErrCorruptImage)
	case sb.inodeCount < 2:
		return fmt.Errorf("%w: inode table holds %d inodes, need at least 2", filesystem.ErrCorruptImage, sb.inodeCount)
	case uint64(sb.inodeTableSize) < uint64(sb.inodeCount)*uint64(inodeRecordSize):
		return fmt.Errorf("%w: inode table of %d bytes cannot hold %d inodes", filesystem.ErrCorruptImage, sb.inodeTableSize, sb.inodeCount)
	case sb.rootInumber == InvalidInumber || uint32(sb.rootInumber) >= sb.inodeCount:
		return fmt.Errorf("%w: root inode number %d outside of [1, %d)", filesystem.ErrCorruptImage, sb.rootInumber, sb.inodeCount)
	case int64(sb.inodeTableStart) < int64(superblockSize):
		return fmt.Errorf("%w: inode table at %d overlaps the superblock", filesystem.ErrCorruptImage, sb.inodeTableStart)
	case int64(sb.bitmapStart) < int64(superblockSize):
		return fmt.Errorf("%w: bitmap at %d overlaps the superblock", filesystem.ErrCorruptImage, sb.bitmapStart)
	}
	if required := sb.requiredSize(); imageSize < required {
		return fmt.Errorf("%w: file system size %d larger than image size %d", filesystem.ErrCorruptImage, required, imageSize)
	}
	return nil
}

// requiredSize is the smallest image that holds every region the superblock declares
func (sb *superblock) requiredSize() int64 {
	required := int64(sb.blockSize) * int64(sb.blockCount)
	if end := int64(sb.bitmapStart) + sb.bitmapSize(); end > required {
		required = end
	}
	if end := int64(sb.inodeTableStart) + int64(sb.inodeTableSize); end > required {
		required = end
	}
	return required
}

// bitmapSize how many bytes of bitmap are needed for one bit per block
func (sb *superblock) bitmapSize() int64 {
	return (int64(sb.blockCount) + 7) / 8
}

func (sb *superblock) blockOffset(block uint32) int64 {
	return int64(block) * int64(sb.blockSize)
}

func (sb *superblock) inodeOffset(n Inumber) int64 {
	return int64(sb.inodeTableStart) + int64(n)*int64(inodeRecordSize)
}

// pointersPerBlock how many block pointers an indirect block holds
func (sb *superblock) pointersPerBlock() uint32 {
	return uint32(sb.blockSize) / blockPointerSize
}

// maxFileBlocks how many blocks one inode can map
func (sb *superblock) maxFileBlocks() uint32 {
	return NumDirectBlocks + sb.pointersPerBlock()
}

func (sb *superblock) maxFileSize() int64 {
	return int64(sb.maxFileBlocks()) * int64(sb.blockSize)
}
