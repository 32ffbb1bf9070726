package edfs

import (
	"fmt"

	"github.com/edfs/go-edfs/filesystem"
	"github.com/sirupsen/logrus"
)

// slotState what a directory slot holds
type slotState int

const (
	// slotHole lies in a block that was never allocated
	slotHole slotState = iota
	slotEmpty
	slotUsed
)

// Directories treats the direct blocks of a directory inode as a flat array of
// entry slots. Directories never grow into the indirect block.
type Directories struct {
	vol    *Volume
	mapper *Mapper
}

func NewDirectories(vol *Volume, mapper *Mapper) *Directories {
	return &Directories{vol: vol, mapper: mapper}
}

// SlotCount is the number of entries a directory can hold
func (d *Directories) SlotCount() int {
	return NumDirectBlocks * d.vol.BlockSize() / DirEntrySize
}

// scan calls fn for every slot in order until fn returns false
func (d *Directories) scan(dir *Inode, fn func(slot int, state slotState, de *DirEntry) bool) error {
	if !dir.IsDir() {
		return fmt.Errorf("%w: inode %d is a %s", filesystem.ErrNotADirectory, dir.Number, dir.Type)
	}
	bs := d.vol.BlockSize()
	perBlock := bs / DirEntrySize
	buf := make([]byte, bs)
	for block := uint32(0); block < NumDirectBlocks; block++ {
		got, err := d.mapper.ReadSlot(dir, block, buf)
		if err != nil {
			return fmt.Errorf("could not read block slot %d of directory %d: %w", block, dir.Number, err)
		}
		for i := 0; i < perBlock; i++ {
			slot := int(block)*perBlock + i
			if got == 0 {
				if !fn(slot, slotHole, nil) {
					return nil
				}
				continue
			}
			de := &DirEntry{}
			if err := de.UnmarshalEdfs(buf[i*DirEntrySize : (i+1)*DirEntrySize]); err != nil {
				return fmt.Errorf("%w: directory %d slot %d: %w", filesystem.ErrCorruptImage, dir.Number, slot, err)
			}
			state := slotUsed
			if de.isEmpty() {
				state = slotEmpty
			}
			if !fn(slot, state, de) {
				return nil
			}
		}
	}
	return nil
}

// Lookup returns the inode bound to name in dir
func (d *Directories) Lookup(dir *Inode, name string) (Inumber, error) {
	found := InvalidInumber
	err := d.scan(dir, func(_ int, state slotState, de *DirEntry) bool {
		if state == slotUsed && de.Name == name {
			found = de.Inumber
			return false
		}
		return true
	})
	if err != nil {
		return InvalidInumber, err
	}
	if found == InvalidInumber {
		return InvalidInumber, fmt.Errorf("%w: %q in directory %d", filesystem.ErrNotFound, name, dir.Number)
	}
	return found, nil
}

// Insert binds name to n in the first free slot of dir. dir is updated in
// place when the insert allocates a block.
func (d *Directories) Insert(dir *Inode, name string, n Inumber) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if n == InvalidInumber {
		return fmt.Errorf("%w: cannot bind %q to inode 0", filesystem.ErrInvalidArgument, name)
	}
	free := -1
	exists := false
	err := d.scan(dir, func(slot int, state slotState, de *DirEntry) bool {
		switch state {
		case slotUsed:
			if de.Name == name {
				exists = true
				return false
			}
		default:
			if free < 0 {
				free = slot
			}
		}
		return true
	})
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %q in directory %d", filesystem.ErrAlreadyExists, name, dir.Number)
	}
	if free < 0 {
		return fmt.Errorf("%w: all %d slots of directory %d in use", filesystem.ErrDirectoryFull, d.SlotCount(), dir.Number)
	}
	de := &DirEntry{Inumber: n, Name: name}
	if _, err := d.mapper.WriteRange(dir, de.toBytes(), int64(free)*DirEntrySize); err != nil {
		return fmt.Errorf("could not write entry %q to slot %d of directory %d: %w", name, free, dir.Number, err)
	}
	d.vol.log.WithFields(logrus.Fields{"inumber": dir.Number, "name": name, "slot": free}).Trace("inserted directory entry")
	return nil
}

// Remove clears the slot bound to name in dir
func (d *Directories) Remove(dir *Inode, name string) error {
	slot := -1
	err := d.scan(dir, func(i int, state slotState, de *DirEntry) bool {
		if state == slotUsed && de.Name == name {
			slot = i
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	if slot < 0 {
		return fmt.Errorf("%w: %q in directory %d", filesystem.ErrNotFound, name, dir.Number)
	}
	empty := &DirEntry{}
	if _, err := d.mapper.WriteRange(dir, empty.toBytes(), int64(slot)*DirEntrySize); err != nil {
		return fmt.Errorf("could not clear slot %d of directory %d: %w", slot, dir.Number, err)
	}
	return nil
}

// List returns the occupied entries of dir in slot order
func (d *Directories) List(dir *Inode) ([]DirEntry, error) {
	var entries []DirEntry
	err := d.scan(dir, func(_ int, state slotState, de *DirEntry) bool {
		if state == slotUsed {
			entries = append(entries, *de)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// IsEmpty reports whether dir has no occupied entries
func (d *Directories) IsEmpty(dir *Inode) (bool, error) {
	empty := true
	err := d.scan(dir, func(_ int, state slotState, _ *DirEntry) bool {
		if state == slotUsed {
			empty = false
			return false
		}
		return true
	})
	return empty, err
}
