package edfs

import (
	"errors"
	"testing"

	"github.com/edfs/go-edfs/filesystem"
	"github.com/go-test/deep"
)

func TestInodeFromBytes(t *testing.T) {
	expected := &Inode{
		Number:   7,
		Type:     InodeFile,
		Size:     12345,
		Indirect: BlockAt(99),
	}
	expected.Direct[0] = BlockAt(10)
	expected.Direct[11] = BlockAt(21)

	b := make([]byte, inodeRecordSize)
	if err := expected.MarshalEdfs(b); err != nil {
		t.Fatalf("MarshalEdfs() error: %v", err)
	}
	in, err := inodeFromBytes(b, 7)
	if err != nil {
		t.Fatalf("inodeFromBytes() error: %v", err)
	}
	deep.CompareUnexportedFields = true
	if diff := deep.Equal(expected, in); diff != nil {
		t.Errorf("inodeFromBytes() = %v", diff)
	}
	if in.Direct[1].IsPresent() {
		t.Errorf("direct pointer 1 decoded as %s, want absent", in.Direct[1])
	}
}

func TestInodeUnknownType(t *testing.T) {
	b := make([]byte, inodeRecordSize)
	b[0] = 9
	if _, err := inodeFromBytes(b, 3); !errors.Is(err, filesystem.ErrCorruptImage) {
		t.Errorf("inodeFromBytes() error = %v, want %v", err, filesystem.ErrCorruptImage)
	}
}

func TestIndirectBlockBytes(t *testing.T) {
	refs := make(indirectBlock, 16)
	refs[0] = BlockAt(5)
	refs[15] = BlockAt(0xfffffffe)
	got := indirectBlockFromBytes(refs.toBytes(64))
	deep.CompareUnexportedFields = true
	if diff := deep.Equal(refs, got); diff != nil {
		t.Errorf("indirectBlockFromBytes() = %v", diff)
	}
}

func TestBlockRef(t *testing.T) {
	var absent BlockRef
	if _, ok := absent.Block(); ok {
		t.Errorf("zero BlockRef is present")
	}
	if absent.toUint32() != 0 {
		t.Errorf("absent BlockRef encodes as %d", absent.toUint32())
	}
	if got := blockRefFromUint32(0); got.IsPresent() {
		t.Errorf("pointer 0 decoded as %s", got)
	}
	if b, ok := blockRefFromUint32(42).Block(); !ok || b != 42 {
		t.Errorf("pointer 42 decoded as %d, %v", b, ok)
	}
}
