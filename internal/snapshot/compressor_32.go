//go:build arm || 386

// lzma and xz do not compile for 32bit systems
package snapshot

import (
	"errors"
	"io"
)

var errNot64Bit = errors.New("not supported on 32 bit systems")

// CompressorLzma lzma compression
type CompressorLzma struct{}

func (c *CompressorLzma) newWriter(w io.Writer) (io.WriteCloser, error) {
	return nil, errNot64Bit
}

func (c *CompressorLzma) newReader(r io.Reader) (io.ReadCloser, error) {
	return nil, errNot64Bit
}

// CompressorXz xz compression
type CompressorXz struct{}

func (c *CompressorXz) newWriter(w io.Writer) (io.WriteCloser, error) {
	return nil, errNot64Bit
}

func (c *CompressorXz) newReader(r io.Reader) (io.ReadCloser, error) {
	return nil, errNot64Bit
}
