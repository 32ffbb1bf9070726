package edfs

import (
	"errors"
	"strings"
	"testing"

	"github.com/edfs/go-edfs/filesystem"
)

func testTree(t *testing.T) *FileSystem {
	t.Helper()
	fs, _ := testCreate(t, 128*1024, 512)
	for _, d := range []string{"/a", "/a/b", "/a/b/c"} {
		if err := fs.Mkdir(d); err != nil {
			t.Fatalf("Mkdir(%s) error: %v", d, err)
		}
	}
	testNewFile(t, fs, "/a/file")
	return fs
}

func TestResolve(t *testing.T) {
	fs := testTree(t)
	tests := []struct {
		path    string
		typ     InodeType
		inumber Inumber
		err     error
	}{
		{"/", InodeDirectory, RootInumber, nil},
		{"//", InodeDirectory, RootInumber, nil},
		{"/a", InodeDirectory, 2, nil},
		{"/a/", InodeDirectory, 2, nil},
		{"/a//b", InodeDirectory, 3, nil},
		{"/a/b/c/", InodeDirectory, 4, nil},
		{"/a/file", InodeFile, 5, nil},
		{"a/b", 0, 0, filesystem.ErrNotFound},
		{"", 0, 0, filesystem.ErrNotFound},
		{"/missing", 0, 0, filesystem.ErrNotFound},
		{"/a/missing/c", 0, 0, filesystem.ErrNotFound},
		{"/a/file/x", 0, 0, filesystem.ErrNotADirectory},
		{"/" + strings.Repeat("n", 60), 0, 0, filesystem.ErrNameTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			in, err := fs.resolver.Resolve(tt.path)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Errorf("Resolve() error = %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error: %v", err)
			}
			if in.Type != tt.typ || in.Number != tt.inumber {
				t.Errorf("Resolve() = %s %d, want %s %d", in.Type, in.Number, tt.typ, tt.inumber)
			}
		})
	}
}

func TestResolveParent(t *testing.T) {
	fs := testTree(t)
	tests := []struct {
		path   string
		parent Inumber
		base   string
		err    error
	}{
		{"/x", RootInumber, "x", nil},
		{"/a", RootInumber, "a", nil},
		{"/a/b/", 2, "b", nil},
		{"/a/b/new", 3, "new", nil},
		{"/a//b///", 2, "b", nil},
		{"", 0, "", filesystem.ErrInvalidArgument},
		{"/", 0, "", filesystem.ErrInvalidArgument},
		{"///", 0, "", filesystem.ErrInvalidArgument},
		{"relative", 0, "", filesystem.ErrInvalidArgument},
		{"/missing/x", 0, "", filesystem.ErrNotFound},
		{"/a/file/x", 0, "", filesystem.ErrNotADirectory},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			parent, base, err := fs.resolver.ResolveParent(tt.path)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Errorf("ResolveParent() error = %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveParent() error: %v", err)
			}
			if parent.Number != tt.parent || base != tt.base {
				t.Errorf("ResolveParent() = %d %q, want %d %q", parent.Number, base, tt.parent, tt.base)
			}
		})
	}
}
