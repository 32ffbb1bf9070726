package edfs

import (
	"errors"
	"testing"

	"github.com/edfs/go-edfs/filesystem"
)

func TestAllocateExhaustion(t *testing.T) {
	fs, _ := testCreate(t, 64*1024, 512)
	a := fs.alloc
	free := testFreeBlocks(t, fs)
	if free != 128-6 {
		t.Fatalf("fresh volume has %d free blocks, want %d", free, 128-6)
	}
	seen := map[uint32]bool{}
	for i := uint32(0); i < free; i++ {
		b, err := a.Allocate()
		if err != nil {
			t.Fatalf("Allocate() #%d error: %v", i, err)
		}
		if b < 6 || b >= 128 {
			t.Fatalf("Allocate() = %d, outside of data blocks", b)
		}
		if seen[b] {
			t.Fatalf("Allocate() returned %d twice", b)
		}
		seen[b] = true
	}
	if _, err := a.Allocate(); !errors.Is(err, filesystem.ErrNoSpace) {
		t.Errorf("Allocate() on full bitmap error = %v, want %v", err, filesystem.ErrNoSpace)
	}

	if err := a.Free(77); err != nil {
		t.Fatalf("Free(77) error: %v", err)
	}
	b, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate() after Free() error: %v", err)
	}
	if b != 77 {
		t.Errorf("Allocate() after Free(77) = %d, want 77", b)
	}
}

func TestAllocateLowestFirst(t *testing.T) {
	fs, _ := testCreate(t, 64*1024, 512)
	a := fs.alloc
	for want := uint32(6); want < 10; want++ {
		b, err := a.Allocate()
		if err != nil {
			t.Fatalf("Allocate() error: %v", err)
		}
		if b != want {
			t.Errorf("Allocate() = %d, want %d", b, want)
		}
	}
	// bits 0-9 set: byte 0 full, byte 1 holds bits 8 and 9
	got, err := a.readByte(1)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0x03 {
		t.Errorf("bitmap byte 1 = %#x, want 0x03", got)
	}
}

func TestFree(t *testing.T) {
	fs, _ := testCreate(t, 64*1024, 512)
	a := fs.alloc
	b, err := a.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := a.IsAllocated(b); !ok {
		t.Errorf("IsAllocated(%d) false after Allocate()", b)
	}
	if err := a.Free(b); err != nil {
		t.Fatalf("Free() error: %v", err)
	}
	if ok, _ := a.IsAllocated(b); ok {
		t.Errorf("IsAllocated(%d) true after Free()", b)
	}
	if err := a.Free(b); err != nil {
		t.Errorf("Free() of a free block error: %v", err)
	}
	if err := a.Free(128); !errors.Is(err, filesystem.ErrInvalidArgument) {
		t.Errorf("Free(128) error = %v, want %v", err, filesystem.ErrInvalidArgument)
	}
	if _, err := a.IsAllocated(1000); !errors.Is(err, filesystem.ErrInvalidArgument) {
		t.Errorf("IsAllocated(1000) error = %v, want %v", err, filesystem.ErrInvalidArgument)
	}
}

func TestFreeSuperblockBlock(t *testing.T) {
	fs, _ := testCreate(t, 64*1024, 512)
	a := fs.alloc
	if err := a.Free(0); !errors.Is(err, filesystem.ErrInvalidArgument) {
		t.Errorf("Free(0) error = %v, want %v", err, filesystem.ErrInvalidArgument)
	}
	if ok, err := a.IsAllocated(0); err != nil || !ok {
		t.Errorf("IsAllocated(0) = %v, %v, want true", ok, err)
	}
	b, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate() error: %v", err)
	}
	if b == 0 {
		t.Errorf("Allocate() returned block 0")
	}
}

func TestAllocatorIgnoresTrailingBits(t *testing.T) {
	// 100 blocks leaves the top 4 bits of the last bitmap byte unused
	fs, _ := testCreate(t, 100*512, 512)
	free := testFreeBlocks(t, fs)
	for i := uint32(0); i < free; i++ {
		if _, err := fs.alloc.Allocate(); err != nil {
			t.Fatalf("Allocate() #%d error: %v", i, err)
		}
	}
	if _, err := fs.alloc.Allocate(); !errors.Is(err, filesystem.ErrNoSpace) {
		t.Errorf("Allocate() error = %v, want %v", err, filesystem.ErrNoSpace)
	}
}
