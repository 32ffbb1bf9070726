package edfs

import (
	"encoding/binary"
	"fmt"

	"github.com/edfs/go-edfs/filesystem"
	"github.com/elliotwutingfeng/asciiset"
)

const (
	// DirEntrySize is the size of one directory slot
	DirEntrySize = 64
	// MaxNameLength is the longest name a directory entry can hold
	MaxNameLength = nameFieldSize - 1

	nameFieldSize = DirEntrySize - 4
	nameChars     = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789 ."
)

var validNameChars, _ = asciiset.MakeASCIISet(nameChars)

// DirEntry binds a name to an inode within a directory
type DirEntry struct {
	Inumber Inumber
	Name    string
}

func (de *DirEntry) equal(other *DirEntry) bool {
	return de.Inumber == other.Inumber && de.Name == other.Name
}

func (de *DirEntry) recordSize() int {
	return DirEntrySize
}

// isEmpty an empty slot is free for reuse
func (de *DirEntry) isEmpty() bool {
	return de.Inumber == InvalidInumber
}

func (de *DirEntry) MarshalEdfs(b []byte) error {
	if len(b) < DirEntrySize {
		return fmt.Errorf("directory entry needs %d bytes, received %d", DirEntrySize, len(b))
	}
	if len(de.Name) > MaxNameLength {
		return fmt.Errorf("%w: name of %d bytes does not fit in %d", filesystem.ErrNameTooLong, len(de.Name), MaxNameLength)
	}
	clear(b[:DirEntrySize])
	binary.LittleEndian.PutUint32(b[0x0:0x4], uint32(de.Inumber))
	copy(b[0x4:DirEntrySize], de.Name)
	return nil
}

func (de *DirEntry) UnmarshalEdfs(b []byte) (err error) {
	var (
		n      uint32
		offset int
	)
	if offset, err = toUint32(b, 0x0, &n); err != nil {
		return fmt.Errorf("failed to deserialize inode number: %w", err)
	}
	de.Inumber = Inumber(n)
	if _, err = toCString(b, offset, nameFieldSize, &de.Name); err != nil {
		return fmt.Errorf("failed to deserialize file name: %w", err)
	}
	return nil
}

func (de *DirEntry) toBytes() []byte {
	b := make([]byte, DirEntrySize)
	_ = de.MarshalEdfs(b)
	return b
}

// ValidateName checks that name can be stored in a directory entry
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", filesystem.ErrInvalidArgument)
	case len(name) > MaxNameLength:
		return fmt.Errorf("%w: name %q is %d bytes, maximum is %d", filesystem.ErrNameTooLong, name, len(name), MaxNameLength)
	case name == "." || name == "..":
		return fmt.Errorf("%w: name %q is reserved", filesystem.ErrInvalidArgument, name)
	}
	for i := 0; i < len(name); i++ {
		if !validNameChars.Contains(name[i]) {
			return fmt.Errorf("%w: name %q contains invalid character %q", filesystem.ErrInvalidArgument, name, name[i])
		}
	}
	return nil
}
