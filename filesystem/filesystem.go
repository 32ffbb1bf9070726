// Package filesystem holds the types and errors shared by the filesystem
// implementations in this module.
package filesystem

// Type represents the type of filesystem
type Type int

const (
	// TypeEdFS is an EdFS image: a flat file holding a superblock, an inode table,
	// a free-block bitmap and the data blocks
	TypeEdFS Type = iota
)

func (t Type) String() string {
	switch t {
	case TypeEdFS:
		return "edfs"
	default:
		return "unknown"
	}
}
