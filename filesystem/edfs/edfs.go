package edfs

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/djherbis/times"
	"github.com/edfs/go-edfs/filesystem"
	"github.com/sirupsen/logrus"
)

// FileSystem is a mounted volume. Every operation takes an absolute path and
// leaves the image durable before it returns.
type FileSystem struct {
	vol      *Volume
	alloc    *Allocator
	inodes   *InodeTable
	mapper   *Mapper
	dirs     *Directories
	resolver *Resolver
	log      logrus.FieldLogger
}

// Attr the attributes reported for a file or directory
type Attr struct {
	Inumber Inumber
	Mode    os.FileMode
	Nlink   uint32
	Size    int64
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
}

// Statfs usage of the volume
type Statfs struct {
	BlockSize  int
	Blocks     uint32
	FreeBlocks uint32
	Inodes     uint32
	FreeInodes uint32
	NameMax    int
}

// Info describes the geometry of the volume
type Info struct {
	UUID            string `yaml:"uuid"`
	Label           string `yaml:"label,omitempty"`
	BlockSize       int    `yaml:"blockSize"`
	Blocks          uint32 `yaml:"blocks"`
	BitmapStart     uint32 `yaml:"bitmapStart"`
	InodeTableStart uint32 `yaml:"inodeTableStart"`
	InodeTableSize  uint32 `yaml:"inodeTableSize"`
	Inodes          uint32 `yaml:"inodes"`
	RootInumber     uint32 `yaml:"rootInumber"`
	MaxFileSize     int64  `yaml:"maxFileSize"`
	DirectorySlots  int    `yaml:"directorySlots"`
}

func newFileSystem(v *Volume) *FileSystem {
	alloc := NewAllocator(v)
	inodes := NewInodeTable(v)
	mapper := NewMapper(v, alloc, inodes)
	dirs := NewDirectories(v, mapper)
	return &FileSystem{
		vol:      v,
		alloc:    alloc,
		inodes:   inodes,
		mapper:   mapper,
		dirs:     dirs,
		resolver: NewResolver(v.sb.rootInumber, inodes, dirs),
		log:      v.log,
	}
}

// Type returns the type code for the filesystem. Always returns filesystem.TypeEdFS
func (fs *FileSystem) Type() filesystem.Type {
	return filesystem.TypeEdFS
}

// Close unmounts the volume. Closing twice is a no-op.
func (fs *FileSystem) Close() error {
	return fs.vol.Close()
}

func (fs *FileSystem) checkWritable(op, p string) error {
	if fs.vol.readOnly {
		return fmt.Errorf("%w: %s %s", filesystem.ErrReadOnly, op, p)
	}
	return nil
}

// Lookup returns the inode at p
func (fs *FileSystem) Lookup(p string) (*Inode, error) {
	return fs.resolver.Resolve(p)
}

// ReadDir returns the entries of the directory at p, without "." and ".."
func (fs *FileSystem) ReadDir(p string) ([]DirEntry, error) {
	dir, err := fs.resolver.Resolve(p)
	if err != nil {
		return nil, err
	}
	if !dir.IsDir() {
		return nil, fmt.Errorf("%w: %s", filesystem.ErrNotADirectory, p)
	}
	return fs.dirs.List(dir)
}

// Getattr reports the attributes of p. Inodes carry no timestamps, so the
// times are those of the image file.
func (fs *FileSystem) Getattr(p string) (*Attr, error) {
	in, err := fs.resolver.Resolve(p)
	if err != nil {
		return nil, err
	}
	attr := &Attr{
		Inumber: in.Number,
		Size:    int64(in.Size),
	}
	switch {
	case in.Number == fs.vol.sb.rootInumber:
		attr.Mode = os.ModeDir | 0o755
		attr.Nlink = 2
	case in.IsDir():
		attr.Mode = os.ModeDir | 0o770
		attr.Nlink = 2
	default:
		attr.Mode = 0o660
		attr.Nlink = 1
	}
	if ts, err := times.Stat(fs.vol.name); err == nil {
		attr.Atime = ts.AccessTime()
		attr.Mtime = ts.ModTime()
		attr.Ctime = ts.ModTime()
		if ts.HasChangeTime() {
			attr.Ctime = ts.ChangeTime()
		}
	} else {
		fs.log.WithError(err).Debug("could not stat image for times")
	}
	return attr, nil
}

// OpenFile checks that p exists and is a file
func (fs *FileSystem) OpenFile(p string) (*Inode, error) {
	in, err := fs.resolver.Resolve(p)
	if err != nil {
		return nil, err
	}
	if in.IsDir() {
		return nil, fmt.Errorf("%w: %s", filesystem.ErrIsADirectory, p)
	}
	return in, nil
}

// Mkdir creates an empty directory at p. The parent must exist.
func (fs *FileSystem) Mkdir(p string) error {
	_, err := fs.mknod("mkdir", p, InodeDirectory)
	return err
}

// CreateFile creates an empty file at p. The parent must exist.
func (fs *FileSystem) CreateFile(p string) (*Inode, error) {
	return fs.mknod("create", p, InodeFile)
}

// mknod persists a new inode of typ, then binds it in the parent directory.
// If the binding fails the inode is released again.
func (fs *FileSystem) mknod(op, p string, typ InodeType) (*Inode, error) {
	if err := fs.checkWritable(op, p); err != nil {
		return nil, err
	}
	parent, name, err := fs.resolver.ResolveParent(p)
	if err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	switch _, err := fs.dirs.Lookup(parent, name); {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", filesystem.ErrAlreadyExists, p)
	case !errors.Is(err, filesystem.ErrNotFound):
		return nil, err
	}
	in, err := fs.inodes.New(typ)
	if err != nil {
		return nil, err
	}
	if err := fs.inodes.Write(in); err != nil {
		return nil, err
	}
	if err := fs.dirs.Insert(parent, name, in.Number); err != nil {
		if cerr := fs.inodes.Clear(in.Number); cerr != nil {
			fs.log.WithField("inumber", in.Number).WithError(cerr).Warn("could not release inode")
			return nil, fmt.Errorf("%w: inode %d leaked: %w", filesystem.ErrInconsistent, in.Number, err)
		}
		return nil, err
	}
	fs.log.WithFields(logrus.Fields{"inumber": in.Number, "path": p, "type": typ.String()}).Debug("created inode")
	return in, nil
}

// Rmdir removes the empty directory at p
func (fs *FileSystem) Rmdir(p string) error {
	return fs.remove("rmdir", p, true)
}

// Unlink removes the file at p and frees its blocks
func (fs *FileSystem) Unlink(p string) error {
	return fs.remove("unlink", p, false)
}

// remove unbinds p from its parent, then frees the blocks and the inode. A
// failure after the entry is gone is not rolled back.
func (fs *FileSystem) remove(op, p string, dir bool) error {
	if err := fs.checkWritable(op, p); err != nil {
		return err
	}
	if len(splitPath(p)) == 0 {
		if dir {
			return fmt.Errorf("%w: cannot remove the root directory", filesystem.ErrBusy)
		}
		return fmt.Errorf("%w: %s", filesystem.ErrIsADirectory, p)
	}
	parent, name, err := fs.resolver.ResolveParent(p)
	if err != nil {
		return err
	}
	n, err := fs.dirs.Lookup(parent, name)
	if err != nil {
		return err
	}
	in, err := fs.inodes.Read(n)
	if err != nil {
		return err
	}
	switch {
	case dir && !in.IsDir():
		return fmt.Errorf("%w: %s", filesystem.ErrNotADirectory, p)
	case !dir && in.IsDir():
		return fmt.Errorf("%w: %s", filesystem.ErrIsADirectory, p)
	case dir:
		empty, err := fs.dirs.IsEmpty(in)
		if err != nil {
			return err
		}
		if !empty {
			return fmt.Errorf("%w: %s", filesystem.ErrNotEmpty, p)
		}
	}

	if err := fs.dirs.Remove(parent, name); err != nil {
		return err
	}
	log := fs.log.WithFields(logrus.Fields{"inumber": n, "path": p})
	if err := fs.mapper.Release(in); err != nil {
		log.WithError(err).Warn("removed entry but could not release blocks")
		return fmt.Errorf("%w: %s: %w", filesystem.ErrInconsistent, p, err)
	}
	if err := fs.inodes.Clear(n); err != nil {
		log.WithError(err).Warn("removed entry but could not clear inode")
		return fmt.Errorf("%w: %s: %w", filesystem.ErrInconsistent, p, err)
	}
	log.Debug("removed inode")
	return nil
}

// Read reads into b from the file at p starting at offset. Reading stops at
// the end of the file; at or past the end it returns 0 bytes.
func (fs *FileSystem) Read(p string, b []byte, offset int64) (int, error) {
	in, err := fs.OpenFile(p)
	if err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", filesystem.ErrInvalidArgument, offset)
	}
	size := int64(in.Size)
	if offset >= size {
		return 0, nil
	}
	n := min(int64(len(b)), size-offset)
	return fs.mapper.ReadRange(in, b[:n], offset)
}

// Write writes b into the file at p starting at offset, extending the file as needed
func (fs *FileSystem) Write(p string, b []byte, offset int64) (int, error) {
	if err := fs.checkWritable("write", p); err != nil {
		return 0, err
	}
	in, err := fs.OpenFile(p)
	if err != nil {
		return 0, err
	}
	return fs.mapper.WriteRange(in, b, offset)
}

// Truncate sets the size of the file at p
func (fs *FileSystem) Truncate(p string, size int64) error {
	if err := fs.checkWritable("truncate", p); err != nil {
		return err
	}
	in, err := fs.OpenFile(p)
	if err != nil {
		return err
	}
	return fs.mapper.Truncate(in, size)
}

// Statfs reports block and inode usage
func (fs *FileSystem) Statfs() (*Statfs, error) {
	freeBlocks, err := fs.alloc.CountFree()
	if err != nil {
		return nil, err
	}
	freeInodes, err := fs.inodes.CountFree()
	if err != nil {
		return nil, err
	}
	return &Statfs{
		BlockSize:  fs.vol.BlockSize(),
		Blocks:     fs.vol.BlockCount(),
		FreeBlocks: freeBlocks,
		Inodes:     fs.inodes.Capacity() - 1,
		FreeInodes: freeInodes,
		NameMax:    MaxNameLength,
	}, nil
}

// Info describes the volume geometry. Label is the UUID the image file was
// tagged with at creation, if the host filesystem kept it.
func (fs *FileSystem) Info() *Info {
	sb := fs.vol.sb
	info := &Info{
		UUID:            sb.uuid.String(),
		BlockSize:       int(sb.blockSize),
		Blocks:          sb.blockCount,
		BitmapStart:     sb.bitmapStart,
		InodeTableStart: sb.inodeTableStart,
		InodeTableSize:  sb.inodeTableSize,
		Inodes:          sb.inodeCount,
		RootInumber:     uint32(sb.rootInumber),
		MaxFileSize:     sb.maxFileSize(),
		DirectorySlots:  fs.dirs.SlotCount(),
	}
	if !fs.vol.closed {
		switch id, err := readLabel(fs.vol.file); {
		case err == nil:
			info.Label = id.String()
		case !errors.Is(err, errNoLabel):
			fs.log.WithError(err).Debug("could not read image label")
		}
	}
	return info
}
