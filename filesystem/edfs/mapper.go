package edfs

import (
	"fmt"

	"github.com/edfs/go-edfs/filesystem"
	"github.com/sirupsen/logrus"
)

// Mapper turns byte ranges of an inode's data into block I/O through the 12
// direct pointers and the single indirect block.
type Mapper struct {
	vol    *Volume
	alloc  *Allocator
	inodes *InodeTable
}

func NewMapper(vol *Volume, alloc *Allocator, inodes *InodeTable) *Mapper {
	return &Mapper{vol: vol, alloc: alloc, inodes: inodes}
}

// MaxFileSize is the largest size an inode can map
func (m *Mapper) MaxFileSize() int64 {
	return m.vol.sb.maxFileSize()
}

func (m *Mapper) checkSlot(slot uint32) error {
	if max := m.vol.sb.maxFileBlocks(); slot >= max {
		return fmt.Errorf("%w: block slot %d beyond the %d an inode can map", filesystem.ErrFileTooLarge, slot, max)
	}
	return nil
}

// BlockForSlot returns the block backing slot of the inode's data. An absent
// block is a hole, and so is any indirect slot of an inode without an indirect
// block.
func (m *Mapper) BlockForSlot(in *Inode, slot uint32) (BlockRef, error) {
	if err := m.checkSlot(slot); err != nil {
		return BlockRef{}, err
	}
	if slot < NumDirectBlocks {
		return in.Direct[slot], nil
	}
	if !in.Indirect.IsPresent() {
		return BlockRef{}, nil
	}
	refs, err := m.readIndirect(in)
	if err != nil {
		return BlockRef{}, err
	}
	return refs[slot-NumDirectBlocks], nil
}

func (m *Mapper) readIndirect(in *Inode) (indirectBlock, error) {
	block, _ := in.Indirect.Block()
	b := make([]byte, m.vol.BlockSize())
	if err := m.vol.ReadBlock(block, b); err != nil {
		return nil, fmt.Errorf("could not read indirect block %d of inode %d: %w", block, in.Number, err)
	}
	return indirectBlockFromBytes(b), nil
}

func (m *Mapper) writeIndirect(in *Inode, refs indirectBlock) error {
	block, _ := in.Indirect.Block()
	if err := m.vol.WriteBlock(block, refs.toBytes(m.vol.BlockSize())); err != nil {
		return fmt.Errorf("could not write indirect block %d of inode %d: %w", block, in.Number, err)
	}
	return nil
}

// ReadSlot reads the block backing slot into b, which must be one block long.
// It returns 0 for a hole and the block size otherwise.
func (m *Mapper) ReadSlot(in *Inode, slot uint32, b []byte) (int, error) {
	ref, err := m.BlockForSlot(in, slot)
	if err != nil {
		return 0, err
	}
	block, ok := ref.Block()
	if !ok {
		return 0, nil
	}
	if err := m.vol.ReadBlock(block, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (m *Mapper) checkRange(offset int64, length int) error {
	if offset < 0 {
		return fmt.Errorf("%w: negative offset %d", filesystem.ErrInvalidArgument, offset)
	}
	if end := offset + int64(length); end > m.MaxFileSize() {
		return fmt.Errorf("%w: range ending at %d beyond maximum file size %d", filesystem.ErrFileTooLarge, end, m.MaxFileSize())
	}
	return nil
}

// ReadRange fills p from the inode's data starting at offset. Holes read as
// zeros. The inode's size is not consulted.
func (m *Mapper) ReadRange(in *Inode, p []byte, offset int64) (int, error) {
	if err := m.checkRange(offset, len(p)); err != nil {
		return 0, err
	}
	bs := int64(m.vol.BlockSize())
	buf := make([]byte, bs)
	read := 0
	for read < len(p) {
		pos := offset + int64(read)
		slot := uint32(pos / bs)
		within := int(pos % bs)
		n := min(int(bs)-within, len(p)-read)
		got, err := m.ReadSlot(in, slot, buf)
		if err != nil {
			return read, err
		}
		if got == 0 {
			clear(p[read : read+n])
		} else {
			copy(p[read:read+n], buf[within:])
		}
		read += n
	}
	return read, nil
}

// WriteRange writes p into the inode's data at offset, allocating blocks for
// holes it covers and growing the inode's size to the end of the range. The
// inode is updated in place and persisted.
func (m *Mapper) WriteRange(in *Inode, p []byte, offset int64) (int, error) {
	if err := m.checkRange(offset, len(p)); err != nil {
		return 0, err
	}
	// an empty write never changes the size, even past the end
	if len(p) == 0 {
		return 0, nil
	}
	bs := int64(m.vol.BlockSize())
	buf := make([]byte, bs)
	written := 0
	for written < len(p) {
		pos := offset + int64(written)
		slot := uint32(pos / bs)
		within := int(pos % bs)
		n := min(int(bs)-within, len(p)-written)
		block, fresh, err := m.ensureSlot(in, slot, pos+int64(n))
		if err != nil {
			return written, err
		}
		switch {
		case n == int(bs):
		case fresh:
			clear(buf)
		default:
			if err := m.vol.ReadBlock(block, buf); err != nil {
				return written, err
			}
		}
		copy(buf[within:], p[written:written+n])
		if err := m.vol.WriteBlock(block, buf); err != nil {
			return written, err
		}
		written += n
	}
	if end := offset + int64(written); end > int64(in.Size) {
		in.Size = uint32(end)
		if err := m.inodes.Write(in); err != nil {
			return written, err
		}
	}
	return written, nil
}

// ensureSlot returns the block backing slot, allocating a zeroed one on a
// miss. A newly installed block raises the inode's size to highWater before
// anything is written into it.
func (m *Mapper) ensureSlot(in *Inode, slot uint32, highWater int64) (block uint32, fresh bool, err error) {
	ref, err := m.BlockForSlot(in, slot)
	if err != nil {
		return 0, false, err
	}
	if block, ok := ref.Block(); ok {
		return block, false, nil
	}
	log := m.vol.log.WithFields(logrus.Fields{"inumber": in.Number, "slot": slot})

	if slot >= NumDirectBlocks && !in.Indirect.IsPresent() {
		indirect, err := m.allocateZeroed()
		if err != nil {
			return 0, false, err
		}
		in.Indirect = BlockAt(indirect)
		if err := m.inodes.Write(in); err != nil {
			in.Indirect = BlockRef{}
			return 0, false, m.release(indirect, err)
		}
		log.WithField("block", indirect).Trace("installed indirect block")
	}

	block, err = m.allocateZeroed()
	if err != nil {
		return 0, false, err
	}
	if slot < NumDirectBlocks {
		in.Direct[slot] = BlockAt(block)
	} else {
		refs, err := m.readIndirect(in)
		if err != nil {
			return 0, false, m.release(block, err)
		}
		refs[slot-NumDirectBlocks] = BlockAt(block)
		if err := m.writeIndirect(in, refs); err != nil {
			return 0, false, m.release(block, err)
		}
	}
	if highWater > int64(in.Size) {
		in.Size = uint32(highWater)
	}
	if err := m.inodes.Write(in); err != nil {
		return 0, false, fmt.Errorf("%w: installed block %d at slot %d of inode %d but could not persist it: %w", filesystem.ErrInconsistent, block, slot, in.Number, err)
	}
	log.WithField("block", block).Trace("installed data block")
	return block, true, nil
}

// allocateZeroed allocates a block and zeroes it on disk
func (m *Mapper) allocateZeroed() (uint32, error) {
	block, err := m.alloc.Allocate()
	if err != nil {
		return 0, err
	}
	if block == 0 {
		return 0, fmt.Errorf("%w: superblock block is marked free in the bitmap", filesystem.ErrCorruptImage)
	}
	if err := m.vol.WriteBlock(block, make([]byte, m.vol.BlockSize())); err != nil {
		return 0, m.release(block, err)
	}
	return block, nil
}

// release frees a block that was allocated but never installed, then returns cause
func (m *Mapper) release(block uint32, cause error) error {
	if err := m.alloc.Free(block); err != nil {
		m.vol.log.WithField("block", block).WithError(err).Warn("could not release block")
		return fmt.Errorf("%w: block %d leaked: %w", filesystem.ErrInconsistent, block, cause)
	}
	return cause
}

// Truncate sets the inode's size. Growing leaves a hole. Shrinking zeroes the
// tail of the new last block and frees every block beyond it, the indirect
// block included once no indirect slot remains.
func (m *Mapper) Truncate(in *Inode, size int64) error {
	if size < 0 {
		return fmt.Errorf("%w: negative size %d", filesystem.ErrInvalidArgument, size)
	}
	if size > m.MaxFileSize() {
		return fmt.Errorf("%w: size %d beyond maximum file size %d", filesystem.ErrFileTooLarge, size, m.MaxFileSize())
	}
	if size > int64(in.Size) {
		in.Size = uint32(size)
		return m.inodes.Write(in)
	}
	// truncating to 0 always walks the pointers so Release frees everything
	if size == int64(in.Size) && size != 0 {
		return nil
	}

	bs := int64(m.vol.BlockSize())
	keep := uint32((size + bs - 1) / bs)
	if tail := size % bs; tail != 0 {
		ref, err := m.BlockForSlot(in, keep-1)
		if err != nil {
			return err
		}
		if block, ok := ref.Block(); ok {
			buf := make([]byte, bs)
			if err := m.vol.ReadBlock(block, buf); err != nil {
				return err
			}
			clear(buf[tail:])
			if err := m.vol.WriteBlock(block, buf); err != nil {
				return err
			}
		}
	}

	var freed []uint32
	for slot := keep; slot < NumDirectBlocks; slot++ {
		if block, ok := in.Direct[slot].Block(); ok {
			freed = append(freed, block)
			in.Direct[slot] = BlockRef{}
		}
	}
	persisted := false
	if indirect, ok := in.Indirect.Block(); ok {
		refs, err := m.readIndirect(in)
		if err != nil {
			return err
		}
		first := uint32(0)
		if keep > NumDirectBlocks {
			first = keep - NumDirectBlocks
		}
		for i := first; i < uint32(len(refs)); i++ {
			if block, ok := refs[i].Block(); ok {
				freed = append(freed, block)
				refs[i] = BlockRef{}
			}
		}
		if keep <= NumDirectBlocks {
			freed = append(freed, indirect)
			in.Indirect = BlockRef{}
		} else {
			if err := m.writeIndirect(in, refs); err != nil {
				return err
			}
			persisted = true
		}
	}
	in.Size = uint32(size)
	if err := m.inodes.Write(in); err != nil {
		if persisted {
			return fmt.Errorf("%w: truncating inode %d: %w", filesystem.ErrInconsistent, in.Number, err)
		}
		return err
	}
	for _, block := range freed {
		if err := m.alloc.Free(block); err != nil {
			return fmt.Errorf("%w: truncated inode %d but could not free block %d: %w", filesystem.ErrInconsistent, in.Number, block, err)
		}
	}
	m.vol.log.WithFields(logrus.Fields{"inumber": in.Number, "size": size, "freed": len(freed)}).Debug("truncated inode")
	return nil
}

// Release frees every block the inode references and leaves it empty
func (m *Mapper) Release(in *Inode) error {
	return m.Truncate(in, 0)
}
