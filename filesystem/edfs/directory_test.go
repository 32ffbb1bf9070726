package edfs

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/edfs/go-edfs/filesystem"
	"github.com/go-test/deep"
	"github.com/google/go-cmp/cmp"
)

func testRoot(t *testing.T, fs *FileSystem) *Inode {
	t.Helper()
	root, err := fs.inodes.Read(RootInumber)
	if err != nil {
		t.Fatalf("Read(root) error: %v", err)
	}
	return root
}

func TestDirEntryFromBytes(t *testing.T) {
	expected := &DirEntry{Inumber: 12, Name: "hello world.txt"}
	b := expected.toBytes()
	if len(b) != DirEntrySize {
		t.Fatalf("toBytes() gave %d bytes", len(b))
	}
	if b[4+len(expected.Name)] != 0 {
		t.Errorf("name is not NUL terminated")
	}
	de := &DirEntry{}
	if err := de.UnmarshalEdfs(b); err != nil {
		t.Fatalf("UnmarshalEdfs() error: %v", err)
	}
	deep.CompareUnexportedFields = true
	if diff := deep.Equal(expected, de); diff != nil {
		t.Errorf("UnmarshalEdfs() = %v", diff)
	}
	long := &DirEntry{Inumber: 1, Name: strings.Repeat("a", MaxNameLength+1)}
	if err := long.MarshalEdfs(make([]byte, DirEntrySize)); !errors.Is(err, filesystem.ErrNameTooLong) {
		t.Errorf("MarshalEdfs() of long name error = %v, want %v", err, filesystem.ErrNameTooLong)
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"a", nil},
		{"Hello World.TXT", nil},
		{"0123456789", nil},
		{strings.Repeat("x", MaxNameLength), nil},
		{strings.Repeat("x", MaxNameLength+1), filesystem.ErrNameTooLong},
		{"", filesystem.ErrInvalidArgument},
		{".", filesystem.ErrInvalidArgument},
		{"..", filesystem.ErrInvalidArgument},
		{"a/b", filesystem.ErrInvalidArgument},
		{"tab\there", filesystem.ErrInvalidArgument},
		{"under_score", filesystem.ErrInvalidArgument},
		{"café", filesystem.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.name), func(t *testing.T) {
			err := ValidateName(tt.name)
			switch {
			case tt.err == nil && err != nil:
				t.Errorf("ValidateName() unexpected error: %v", err)
			case tt.err != nil && !errors.Is(err, tt.err):
				t.Errorf("ValidateName() error = %v, want %v", err, tt.err)
			}
		})
	}
}

func TestDirectoryInsertLookup(t *testing.T) {
	fs, _ := testCreate(t, 64*1024, 512)
	root := testRoot(t, fs)
	names := map[string]Inumber{"a": 2, "b.txt": 3, "with space": 4, strings.Repeat("z", MaxNameLength): 5}
	for name, n := range names {
		if err := fs.dirs.Insert(root, name, n); err != nil {
			t.Fatalf("Insert(%q) error: %v", name, err)
		}
	}
	if root.Size%DirEntrySize != 0 {
		t.Errorf("directory size %d is not a multiple of %d", root.Size, DirEntrySize)
	}
	for name, want := range names {
		got, err := fs.dirs.Lookup(root, name)
		if err != nil {
			t.Errorf("Lookup(%q) error: %v", name, err)
			continue
		}
		if got != want {
			t.Errorf("Lookup(%q) = %d, want %d", name, got, want)
		}
	}
	if _, err := fs.dirs.Lookup(root, "missing"); !errors.Is(err, filesystem.ErrNotFound) {
		t.Errorf("Lookup(missing) error = %v, want %v", err, filesystem.ErrNotFound)
	}
	if err := fs.dirs.Insert(root, "zero", InvalidInumber); !errors.Is(err, filesystem.ErrInvalidArgument) {
		t.Errorf("Insert() of inode 0 error = %v, want %v", err, filesystem.ErrInvalidArgument)
	}
}

func TestDirectoryInsertDuplicate(t *testing.T) {
	fs, _ := testCreate(t, 64*1024, 512)
	root := testRoot(t, fs)
	if err := fs.dirs.Insert(root, "a", 2); err != nil {
		t.Fatal(err)
	}
	if err := fs.dirs.Insert(root, "b", 3); err != nil {
		t.Fatal(err)
	}
	if err := fs.dirs.Remove(root, "a"); err != nil {
		t.Fatal(err)
	}
	block, _ := root.Direct[0].Block()
	before := make([]byte, 512)
	if err := fs.vol.ReadBlock(block, before); err != nil {
		t.Fatal(err)
	}
	// slot 0 is free, the duplicate is in slot 1
	if err := fs.dirs.Insert(root, "b", 9); !errors.Is(err, filesystem.ErrAlreadyExists) {
		t.Fatalf("Insert() of duplicate error = %v, want %v", err, filesystem.ErrAlreadyExists)
	}
	after := make([]byte, 512)
	if err := fs.vol.ReadBlock(block, after); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Errorf("failed Insert() changed the directory")
	}
}

func TestDirectoryRemoveAndReuse(t *testing.T) {
	fs, _ := testCreate(t, 64*1024, 512)
	root := testRoot(t, fs)
	for i, name := range []string{"a", "b", "c"} {
		if err := fs.dirs.Insert(root, name, Inumber(i+2)); err != nil {
			t.Fatal(err)
		}
	}
	if err := fs.dirs.Remove(root, "b"); err != nil {
		t.Fatalf("Remove(b) error: %v", err)
	}
	if _, err := fs.dirs.Lookup(root, "b"); !errors.Is(err, filesystem.ErrNotFound) {
		t.Errorf("Lookup(b) after Remove() error = %v, want %v", err, filesystem.ErrNotFound)
	}
	if err := fs.dirs.Remove(root, "b"); !errors.Is(err, filesystem.ErrNotFound) {
		t.Errorf("second Remove(b) error = %v, want %v", err, filesystem.ErrNotFound)
	}
	// the reclaimed slot between a and c is skipped
	if n, err := fs.dirs.Lookup(root, "c"); err != nil || n != 4 {
		t.Errorf("Lookup(c) = %d, %v", n, err)
	}
	entries, err := fs.dirs.List(root)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]DirEntry{{2, "a"}, {4, "c"}}, entries); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
	// and reused by the next insert
	if err := fs.dirs.Insert(root, "d", 5); err != nil {
		t.Fatal(err)
	}
	entries, err = fs.dirs.List(root)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]DirEntry{{2, "a"}, {5, "d"}, {4, "c"}}, entries); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
}

func TestDirectoryFull(t *testing.T) {
	const bs = 64
	fs, _ := testCreate(t, 256*bs, bs)
	root := testRoot(t, fs)
	slots := fs.dirs.SlotCount()
	if slots != NumDirectBlocks {
		t.Fatalf("SlotCount() = %d, want %d", slots, NumDirectBlocks)
	}
	for i := 0; i < slots; i++ {
		if err := fs.dirs.Insert(root, fmt.Sprintf("e%d", i), Inumber(i+2)); err != nil {
			t.Fatalf("Insert() #%d error: %v", i, err)
		}
	}
	err := fs.dirs.Insert(root, "overflow", 40)
	if !errors.Is(err, filesystem.ErrDirectoryFull) {
		t.Fatalf("Insert() beyond capacity error = %v, want %v", err, filesystem.ErrDirectoryFull)
	}
	if errors.Is(err, filesystem.ErrNoSpace) {
		t.Errorf("directory full reported as %v", filesystem.ErrNoSpace)
	}
	if root.Indirect.IsPresent() {
		t.Errorf("directory grew into the indirect block")
	}
	for i := 0; i < slots; i++ {
		if n, err := fs.dirs.Lookup(root, fmt.Sprintf("e%d", i)); err != nil || n != Inumber(i+2) {
			t.Errorf("Lookup(e%d) = %d, %v", i, n, err)
		}
	}
}

func TestDirectoryHoles(t *testing.T) {
	fs, _ := testCreate(t, 64*1024, 512)
	root := testRoot(t, fs)
	// an entry written straight into block slot 3 leaves slots 0-2 as holes
	de := &DirEntry{Inumber: 7, Name: "far"}
	if _, err := fs.mapper.WriteRange(root, de.toBytes(), 3*512); err != nil {
		t.Fatal(err)
	}
	if n, err := fs.dirs.Lookup(root, "far"); err != nil || n != 7 {
		t.Errorf("Lookup(far) = %d, %v", n, err)
	}
	if err := fs.dirs.Insert(root, "near", 8); err != nil {
		t.Fatal(err)
	}
	if !root.Direct[0].IsPresent() {
		t.Errorf("Insert() did not fill the first hole")
	}
	entries, err := fs.dirs.List(root)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]DirEntry{{8, "near"}, {7, "far"}}, entries); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
}

func TestDirectoryOnFile(t *testing.T) {
	fs, _ := testCreate(t, 64*1024, 512)
	in := testNewFile(t, fs, "/f")
	if _, err := fs.dirs.Lookup(in, "x"); !errors.Is(err, filesystem.ErrNotADirectory) {
		t.Errorf("Lookup() on file error = %v, want %v", err, filesystem.ErrNotADirectory)
	}
	if err := fs.dirs.Insert(in, "x", 3); !errors.Is(err, filesystem.ErrNotADirectory) {
		t.Errorf("Insert() on file error = %v, want %v", err, filesystem.ErrNotADirectory)
	}
}
