package edfs

import (
	"encoding/binary"
	"fmt"

	"github.com/edfs/go-edfs/filesystem"
)

const (
	// NumDirectBlocks is how many block pointers an inode holds inline
	NumDirectBlocks = 12

	inodeRecordSize  = 64
	blockPointerSize = 4
)

// Inumber identifies an inode by its index in the inode table
type Inumber uint32

// InvalidInumber is never a valid inode. An empty directory slot carries it.
const InvalidInumber Inumber = 0

// InodeType what an inode holds
type InodeType uint8

const (
	InodeFree      InodeType = 0
	InodeFile      InodeType = 1
	InodeDirectory InodeType = 2
)

func (t InodeType) String() string {
	switch t {
	case InodeFree:
		return "free"
	case InodeFile:
		return "file"
	case InodeDirectory:
		return "directory"
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// BlockRef refers to a block, or to no block at all. The zero value is absent.
type BlockRef struct {
	block   uint32
	present bool
}

// BlockAt refers to block
func BlockAt(block uint32) BlockRef {
	return BlockRef{block: block, present: true}
}

// Block returns the block referred to, and whether there is one
func (r BlockRef) Block() (uint32, bool) {
	return r.block, r.present
}

func (r BlockRef) IsPresent() bool {
	return r.present
}

func (r BlockRef) String() string {
	if !r.present {
		return "absent"
	}
	return fmt.Sprintf("block %d", r.block)
}

// on disk a pointer of 0 is absent; block 0 holds the superblock so it can never be data
func blockRefFromUint32(v uint32) BlockRef {
	if v == 0 {
		return BlockRef{}
	}
	return BlockAt(v)
}

func (r BlockRef) toUint32() uint32 {
	if !r.present {
		return 0
	}
	return r.block
}

// Inode is the in-memory copy of one inode record
type Inode struct {
	Number   Inumber
	Type     InodeType
	Size     uint32
	Direct   [NumDirectBlocks]BlockRef
	Indirect BlockRef
}

func (in *Inode) equal(a *Inode) bool {
	if (in == nil && a != nil) || (a == nil && in != nil) {
		return false
	}
	if in == nil && a == nil {
		return true
	}
	return *in == *a
}

// IsDir reports whether the inode is a directory
func (in *Inode) IsDir() bool {
	return in.Type == InodeDirectory
}

func (in *Inode) recordSize() int {
	return inodeRecordSize
}

func (in *Inode) MarshalEdfs(b []byte) error {
	if len(b) < inodeRecordSize {
		return fmt.Errorf("inode record needs %d bytes, received %d", inodeRecordSize, len(b))
	}
	clear(b[:inodeRecordSize])
	b[0x0] = uint8(in.Type)
	binary.LittleEndian.PutUint32(b[0x4:0x8], in.Size)
	for i, ref := range in.Direct {
		binary.LittleEndian.PutUint32(b[0x8+4*i:0xc+4*i], ref.toUint32())
	}
	binary.LittleEndian.PutUint32(b[0x38:0x3c], in.Indirect.toUint32())
	return nil
}

// UnmarshalEdfs decodes a record. The inode number is not stored in the record,
// so it is left untouched.
func (in *Inode) UnmarshalEdfs(b []byte) (err error) {
	var (
		typ    uint8
		ptr    uint32
		offset int
	)
	if _, err = toUint8(b, 0x0, &typ); err != nil {
		return fmt.Errorf("%w: could not read inode type: %w", filesystem.ErrCorruptImage, err)
	}
	switch InodeType(typ) {
	case InodeFree, InodeFile, InodeDirectory:
		in.Type = InodeType(typ)
	default:
		return fmt.Errorf("%w: unknown inode type %d", filesystem.ErrCorruptImage, typ)
	}
	if offset, err = toUint32(b, 0x4, &in.Size); err != nil {
		return fmt.Errorf("%w: could not read inode size: %w", filesystem.ErrCorruptImage, err)
	}
	for i := range in.Direct {
		if offset, err = toUint32(b, offset, &ptr); err != nil {
			return fmt.Errorf("%w: could not read direct pointer %d: %w", filesystem.ErrCorruptImage, i, err)
		}
		in.Direct[i] = blockRefFromUint32(ptr)
	}
	if _, err = toUint32(b, offset, &ptr); err != nil {
		return fmt.Errorf("%w: could not read indirect pointer: %w", filesystem.ErrCorruptImage, err)
	}
	in.Indirect = blockRefFromUint32(ptr)
	return nil
}

func inodeFromBytes(b []byte, number Inumber) (*Inode, error) {
	in := &Inode{Number: number}
	if err := in.UnmarshalEdfs(b); err != nil {
		return nil, fmt.Errorf("inode %d: %w", number, err)
	}
	return in, nil
}

// indirectBlock is the pointer array held by an indirect block
type indirectBlock []BlockRef

func indirectBlockFromBytes(b []byte) indirectBlock {
	refs := make(indirectBlock, len(b)/blockPointerSize)
	for i := range refs {
		refs[i] = blockRefFromUint32(binary.LittleEndian.Uint32(b[i*blockPointerSize:]))
	}
	return refs
}

func (ib indirectBlock) toBytes(blockSize int) []byte {
	b := make([]byte, blockSize)
	for i, ref := range ib {
		binary.LittleEndian.PutUint32(b[i*blockPointerSize:], ref.toUint32())
	}
	return b
}
