package edfs

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var testUUID = uuid.MustParse("5d2ee5f0-9c1b-4b59-8c3e-6b1f7c0a2d11")

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// testCreate formats a fresh image in a temporary directory
func testCreate(t *testing.T, size int64, blockSize int, opts ...Option) (*FileSystem, string) {
	t.Helper()
	p := filepath.Join(t.TempDir(), "edfs.img")
	id := testUUID
	opts = append([]Option{WithLogger(testLogger())}, opts...)
	fs, err := Create(p, size, &Params{UUID: &id, BlockSize: blockSize}, opts...)
	if err != nil {
		t.Fatalf("Create(%d, %d) error: %v", size, blockSize, err)
	}
	t.Cleanup(func() { _ = fs.Close() })
	return fs, p
}

func testFreeBlocks(t *testing.T, fs *FileSystem) uint32 {
	t.Helper()
	free, err := fs.alloc.CountFree()
	if err != nil {
		t.Fatalf("CountFree() error: %v", err)
	}
	return free
}

// testPattern returns n bytes that differ from any shifted copy of themselves
func testPattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7+i/251) ^ seed
		if b[i] == 0 {
			b[i] = seed | 1
		}
	}
	return b
}
