package edfs

import (
	"fmt"

	"github.com/edfs/go-edfs/filesystem"
	"github.com/sirupsen/logrus"
)

// InodeTable reads and writes inode records by number
type InodeTable struct {
	vol *Volume
}

func NewInodeTable(vol *Volume) *InodeTable {
	return &InodeTable{vol: vol}
}

// Capacity is the number of slots in the table, slot 0 included
func (t *InodeTable) Capacity() uint32 {
	return t.vol.sb.inodeCount
}

func (t *InodeTable) checkNumber(n Inumber) error {
	if uint32(n) >= t.Capacity() {
		return fmt.Errorf("%w: inode %d outside of table of %d inodes", filesystem.ErrNoSuchInode, n, t.Capacity())
	}
	return nil
}

// Read reads the record for inode n
func (t *InodeTable) Read(n Inumber) (*Inode, error) {
	if err := t.checkNumber(n); err != nil {
		return nil, err
	}
	in := &Inode{Number: n}
	if err := t.vol.readRecord(in, inodeRecordSize, t.vol.sb.inodeOffset(n), fmt.Sprintf("inode %d", n)); err != nil {
		return nil, fmt.Errorf("could not read inode %d: %w", n, err)
	}
	return in, nil
}

// Write writes in over the record for in.Number
func (t *InodeTable) Write(in *Inode) error {
	if in.Number == InvalidInumber {
		return fmt.Errorf("%w: cannot write inode 0", filesystem.ErrNoSuchInode)
	}
	if err := t.checkNumber(in.Number); err != nil {
		return err
	}
	if err := t.vol.writeRecord(in, t.vol.sb.inodeOffset(in.Number), fmt.Sprintf("inode %d", in.Number)); err != nil {
		return fmt.Errorf("could not write inode %d: %w", in.Number, err)
	}
	return nil
}

// Clear zeroes the record for inode n, which makes it free. Blocks the inode
// still references are not released.
func (t *InodeTable) Clear(n Inumber) error {
	if n == InvalidInumber {
		return fmt.Errorf("%w: cannot clear inode 0", filesystem.ErrNoSuchInode)
	}
	return t.Write(&Inode{Number: n})
}

// FindFree returns the lowest numbered free inode, or InvalidInumber when the
// table is full. The inode is not reserved.
func (t *InodeTable) FindFree() (Inumber, error) {
	for n := Inumber(1); uint32(n) < t.Capacity(); n++ {
		in, err := t.Read(n)
		if err != nil {
			return InvalidInumber, err
		}
		if in.Type == InodeFree {
			return n, nil
		}
	}
	return InvalidInumber, nil
}

// New prepares an empty inode of typ in the first free slot. Nothing is
// written: the inode is only allocated once the caller writes it.
func (t *InodeTable) New(typ InodeType) (*Inode, error) {
	if typ == InodeFree {
		return nil, fmt.Errorf("%w: cannot create an inode of type %s", filesystem.ErrInvalidArgument, typ)
	}
	n, err := t.FindFree()
	if err != nil {
		return nil, err
	}
	if n == InvalidInumber {
		t.vol.log.WithField("inodes", t.Capacity()).Warn("inode table exhausted")
		return nil, fmt.Errorf("%w: no free inode in table of %d inodes", filesystem.ErrNoSpace, t.Capacity())
	}
	t.vol.log.WithFields(logrus.Fields{"inumber": n, "type": typ.String()}).Trace("found free inode")
	return &Inode{Number: n, Type: typ}, nil
}

// CountFree counts free inodes, slot 0 excluded
func (t *InodeTable) CountFree() (uint32, error) {
	var free uint32
	for n := Inumber(1); uint32(n) < t.Capacity(); n++ {
		in, err := t.Read(n)
		if err != nil {
			return 0, err
		}
		if in.Type == InodeFree {
			free++
		}
	}
	return free, nil
}
