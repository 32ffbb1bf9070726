package edfs

import (
	"errors"
	"testing"

	"github.com/edfs/go-edfs/filesystem"
	"github.com/go-test/deep"
)

func testGetValidSuperblock() *superblock {
	return &superblock{
		blockSize:       512,
		blockCount:      128,
		inodeTableStart: 512,
		inodeTableSize:  2048,
		inodeCount:      32,
		bitmapStart:     2560,
		rootInumber:     1,
		uuid:            testUUID,
	}
}

func TestSuperblockFromBytes(t *testing.T) {
	expected := testGetValidSuperblock()
	b := expected.toBytes()
	if len(b) != superblockSize {
		t.Fatalf("toBytes() gave %d bytes instead of %d", len(b), superblockSize)
	}
	sb, err := superblockFromBytes(b)
	if err != nil {
		t.Fatalf("superblockFromBytes() error: %v", err)
	}
	deep.CompareUnexportedFields = true
	if diff := deep.Equal(expected, sb); diff != nil {
		t.Errorf("superblockFromBytes() = %v", diff)
	}
	if !sb.equal(expected) {
		t.Errorf("equal() false for decoded superblock")
	}
}

func TestSuperblockBadMagic(t *testing.T) {
	b := testGetValidSuperblock().toBytes()
	b[0] ^= 0xff
	if _, err := superblockFromBytes(b); !errors.Is(err, filesystem.ErrCorruptImage) {
		t.Errorf("superblockFromBytes() error = %v, want %v", err, filesystem.ErrCorruptImage)
	}
	if _, err := superblockFromBytes(b[:10]); !errors.Is(err, filesystem.ErrCorruptImage) {
		t.Errorf("short superblockFromBytes() error = %v, want %v", err, filesystem.ErrCorruptImage)
	}
}

func TestSuperblockValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(sb *superblock)
		size    int64
		wantErr bool
	}{
		{"valid", func(sb *superblock) {}, 128 * 512, false},
		{"larger image", func(sb *superblock) {}, 1 << 20, false},
		{"image too small", func(sb *superblock) {}, 128*512 - 1, true},
		{"block size too small", func(sb *superblock) { sb.blockSize = 32 }, 1 << 20, true},
		{"block size too large", func(sb *superblock) { sb.blockSize = 8192 }, 1 << 30, true},
		{"block size not entry aligned", func(sb *superblock) { sb.blockSize = 100 }, 1 << 20, true},
		{"root is inode 0", func(sb *superblock) { sb.rootInumber = 0 }, 1 << 20, true},
		{"root beyond table", func(sb *superblock) { sb.rootInumber = 32 }, 1 << 20, true},
		{"table too small", func(sb *superblock) { sb.inodeTableSize = 32*64 - 1 }, 1 << 20, true},
		{"bitmap beyond image", func(sb *superblock) { sb.bitmapStart = 128 * 512 }, 128 * 512, true},
		{"table beyond image", func(sb *superblock) { sb.inodeTableStart = 127 * 512 }, 128 * 512, true},
		{"table overlaps superblock", func(sb *superblock) { sb.inodeTableStart = 0 }, 1 << 20, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sb := testGetValidSuperblock()
			tt.modify(sb)
			err := sb.validate(tt.size)
			switch {
			case tt.wantErr && !errors.Is(err, filesystem.ErrCorruptImage):
				t.Errorf("validate() error = %v, want %v", err, filesystem.ErrCorruptImage)
			case !tt.wantErr && err != nil:
				t.Errorf("validate() unexpected error: %v", err)
			}
		})
	}
}

func TestSuperblockGeometry(t *testing.T) {
	sb := testGetValidSuperblock()
	if got := sb.pointersPerBlock(); got != 128 {
		t.Errorf("pointersPerBlock() = %d, want 128", got)
	}
	if got := sb.maxFileSize(); got != (12+128)*512 {
		t.Errorf("maxFileSize() = %d, want %d", got, (12+128)*512)
	}
	if got := sb.inodeOffset(3); got != 512+3*64 {
		t.Errorf("inodeOffset(3) = %d, want %d", got, 512+3*64)
	}
	if got := sb.metadataBlocks(); got != 6 {
		t.Errorf("metadataBlocks() = %d, want 6", got)
	}
}
