package edfs

import (
	"fmt"
	"strings"

	"github.com/edfs/go-edfs/filesystem"
)

// Resolver walks absolute paths from the root directory
type Resolver struct {
	root   Inumber
	inodes *InodeTable
	dirs   *Directories
}

func NewResolver(root Inumber, inodes *InodeTable, dirs *Directories) *Resolver {
	return &Resolver{root: root, inodes: inodes, dirs: dirs}
}

// Resolve returns the inode at p. Repeated separators collapse and a trailing
// separator resolves to the last directory reached.
func (r *Resolver) Resolve(p string) (*Inode, error) {
	if !strings.HasPrefix(p, "/") {
		return nil, fmt.Errorf("%w: path %q is not absolute", filesystem.ErrNotFound, p)
	}
	current, err := r.inodes.Read(r.root)
	if err != nil {
		return nil, fmt.Errorf("could not read root directory: %w", err)
	}
	for _, name := range splitPath(p) {
		if len(name) >= nameFieldSize {
			return nil, fmt.Errorf("%w: path component %q of %q", filesystem.ErrNameTooLong, name, p)
		}
		if !current.IsDir() {
			return nil, fmt.Errorf("%w: %q in path %q", filesystem.ErrNotADirectory, name, p)
		}
		n, err := r.dirs.Lookup(current, name)
		if err != nil {
			return nil, fmt.Errorf("could not resolve %q: %w", p, err)
		}
		if current, err = r.inodes.Read(n); err != nil {
			return nil, fmt.Errorf("could not resolve %q: %w", p, err)
		}
		if current.Type == InodeFree {
			return nil, fmt.Errorf("%w: entry %q of %q refers to free inode %d", filesystem.ErrCorruptImage, name, p, n)
		}
	}
	return current, nil
}

// ResolveParent returns the directory that holds the last component of p,
// and that component.
func (r *Resolver) ResolveParent(p string) (*Inode, string, error) {
	trimmed := strings.TrimRight(p, "/")
	if trimmed == "" {
		return nil, "", fmt.Errorf("%w: path %q has no final component", filesystem.ErrInvalidArgument, p)
	}
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return nil, "", fmt.Errorf("%w: path %q is not absolute", filesystem.ErrInvalidArgument, p)
	}
	base := trimmed[idx+1:]
	parentPath := trimmed[:idx]
	if idx == 0 {
		parentPath = "/"
	}
	parent, err := r.Resolve(parentPath)
	if err != nil {
		return nil, "", err
	}
	if !parent.IsDir() {
		return nil, "", fmt.Errorf("%w: parent of %q", filesystem.ErrNotADirectory, p)
	}
	return parent, base, nil
}

// splitPath the non-empty components of p
func splitPath(p string) []string {
	return strings.FieldsFunc(p, func(c rune) bool { return c == '/' })
}
