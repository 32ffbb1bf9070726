package edfs

import (
	"fmt"

	"github.com/edfs/go-edfs/filesystem"
)

// Allocator hands out blocks from the free-block bitmap. Bit b%8 of byte b/8
// is set when block b is allocated. Nothing is cached between calls: every
// call reads the bitmap from the image.
type Allocator struct {
	vol *Volume
}

func NewAllocator(vol *Volume) *Allocator {
	return &Allocator{vol: vol}
}

// Allocate marks the lowest free block allocated and returns it
func (a *Allocator) Allocate() (uint32, error) {
	block, found, err := a.findFree()
	if err != nil {
		return 0, err
	}
	if !found {
		a.vol.log.WithField("blocks", a.vol.sb.blockCount).Warn("block bitmap exhausted")
		return 0, fmt.Errorf("%w: all %d blocks allocated", filesystem.ErrNoSpace, a.vol.sb.blockCount)
	}
	if err := a.setBit(block, true); err != nil {
		return 0, err
	}
	a.vol.log.WithField("block", block).Trace("allocated block")
	return block, nil
}

// Free marks block free. Freeing a free block is a no-op. Block 0 holds the
// superblock and can never be freed.
func (a *Allocator) Free(block uint32) error {
	if block == 0 {
		return fmt.Errorf("%w: cannot free block 0, it holds the superblock", filesystem.ErrInvalidArgument)
	}
	if block >= a.vol.sb.blockCount {
		return fmt.Errorf("%w: cannot free block %d outside of volume of %d blocks", filesystem.ErrInvalidArgument, block, a.vol.sb.blockCount)
	}
	if err := a.setBit(block, false); err != nil {
		return err
	}
	a.vol.log.WithField("block", block).Trace("freed block")
	return nil
}

// IsAllocated reports whether the bit for block is set
func (a *Allocator) IsAllocated(block uint32) (bool, error) {
	if block >= a.vol.sb.blockCount {
		return false, fmt.Errorf("%w: block %d outside of volume of %d blocks", filesystem.ErrInvalidArgument, block, a.vol.sb.blockCount)
	}
	b, err := a.readByte(block / 8)
	if err != nil {
		return false, err
	}
	return b&(1<<(block%8)) != 0, nil
}

// CountFree counts the clear bits of the bitmap
func (a *Allocator) CountFree() (uint32, error) {
	var free uint32
	err := a.scan(func(block uint32, allocated bool) bool {
		if !allocated {
			free++
		}
		return true
	})
	return free, err
}

func (a *Allocator) findFree() (block uint32, found bool, err error) {
	err = a.scan(func(b uint32, allocated bool) bool {
		if !allocated {
			block, found = b, true
			return false
		}
		return true
	})
	return block, found, err
}

// scan calls fn for every block in order until fn returns false. The bitmap is
// read in chunks of at most one maximum sized block.
func (a *Allocator) scan(fn func(block uint32, allocated bool) bool) error {
	sb := a.vol.sb
	size := sb.bitmapSize()
	chunk := make([]byte, MaxBlockSize)
	for start := int64(0); start < size; start += int64(len(chunk)) {
		b := chunk
		if remaining := size - start; remaining < int64(len(b)) {
			b = b[:remaining]
		}
		if err := a.vol.readAt(b, int64(sb.bitmapStart)+start, "block bitmap"); err != nil {
			return err
		}
		for i, v := range b {
			for bit := uint32(0); bit < 8; bit++ {
				block := uint32(start+int64(i))*8 + bit
				if block >= sb.blockCount {
					return nil
				}
				if !fn(block, v&(1<<bit) != 0) {
					return nil
				}
			}
		}
	}
	return nil
}

func (a *Allocator) readByte(index uint32) (byte, error) {
	b := make([]byte, 1)
	if err := a.vol.readAt(b, int64(a.vol.sb.bitmapStart)+int64(index), fmt.Sprintf("bitmap byte %d", index)); err != nil {
		return 0, err
	}
	return b[0], nil
}

// setBit is a single byte read-modify-write of the bit for block
func (a *Allocator) setBit(block uint32, allocated bool) error {
	index := block / 8
	v, err := a.readByte(index)
	if err != nil {
		return err
	}
	if allocated {
		v |= 1 << (block % 8)
	} else {
		v &^= 1 << (block % 8)
	}
	return a.vol.writeAt([]byte{v}, int64(a.vol.sb.bitmapStart)+int64(index), fmt.Sprintf("bitmap byte %d", index))
}
