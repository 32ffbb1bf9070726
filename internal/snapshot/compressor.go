package snapshot

import (
	"fmt"
	"io"
	"strings"

	"github.com/edfs/go-edfs/filesystem"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies how the image bytes of a snapshot are compressed. The
// numbering follows the squashfs compression ids.
type Codec uint8

const (
	CodecGzip Codec = 1
	CodecLzma Codec = 2
	CodecXz   Codec = 4
	CodecLz4  Codec = 5
	CodecZstd Codec = 6

	// DefaultCodec is used when no codec is named
	DefaultCodec = CodecZstd
)

var codecNames = map[Codec]string{
	CodecGzip: "gzip",
	CodecLzma: "lzma",
	CodecXz:   "xz",
	CodecLz4:  "lz4",
	CodecZstd: "zstd",
}

func (c Codec) String() string {
	if name, ok := codecNames[c]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(c))
}

// ParseCodec returns the codec called name. An empty name is the default codec.
func ParseCodec(name string) (Codec, error) {
	if name == "" {
		return DefaultCodec, nil
	}
	for c, n := range codecNames {
		if strings.EqualFold(n, name) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown snapshot codec %q", filesystem.ErrInvalidArgument, name)
}

// Compressor streams image bytes through one codec
type Compressor interface {
	newWriter(w io.Writer) (io.WriteCloser, error)
	newReader(r io.Reader) (io.ReadCloser, error)
}

func newCompressor(c Codec) (Compressor, error) {
	switch c {
	case CodecGzip:
		return &CompressorGzip{Level: gzip.BestCompression}, nil
	case CodecLzma:
		return &CompressorLzma{}, nil
	case CodecXz:
		return &CompressorXz{}, nil
	case CodecLz4:
		return &CompressorLz4{}, nil
	case CodecZstd:
		return &CompressorZstd{}, nil
	}
	return nil, fmt.Errorf("%w: unknown snapshot codec %d", filesystem.ErrInvalidArgument, uint8(c))
}

// CompressorGzip gzip compression
type CompressorGzip struct {
	Level int
}

func (c *CompressorGzip) newWriter(w io.Writer) (io.WriteCloser, error) {
	gz, err := gzip.NewWriterLevel(w, c.Level)
	if err != nil {
		return nil, fmt.Errorf("error creating gzip compressor: %w", err)
	}
	return gz, nil
}

func (c *CompressorGzip) newReader(r io.Reader) (io.ReadCloser, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("error creating gzip decompressor: %w", err)
	}
	return gz, nil
}

// CompressorLz4 lz4 frame compression
type CompressorLz4 struct{}

func (c *CompressorLz4) newWriter(w io.Writer) (io.WriteCloser, error) {
	return lz4.NewWriter(w), nil
}

func (c *CompressorLz4) newReader(r io.Reader) (io.ReadCloser, error) {
	return readCloser(lz4.NewReader(r)), nil
}

// CompressorZstd zstd compression
type CompressorZstd struct{}

func (c *CompressorZstd) newWriter(w io.Writer) (io.WriteCloser, error) {
	z, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("error creating zstd compressor: %w", err)
	}
	return z, nil
}

func (c *CompressorZstd) newReader(r io.Reader) (io.ReadCloser, error) {
	z, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("error creating zstd decompressor: %w", err)
	}
	return z.IOReadCloser(), nil
}

// readCloser keeps the Close of decompressors that have one
func readCloser(r io.Reader) io.ReadCloser {
	if rc, ok := r.(io.ReadCloser); ok {
		return rc
	}
	return io.NopCloser(r)
}
