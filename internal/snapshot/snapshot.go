// Package snapshot exports an image to a compressed stream and restores it.
//
// A snapshot is a fixed header followed by the whole image file run through
// one codec. The header records the codec, the image length and the volume
// UUID, which is checked against the restored image.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/edfs/go-edfs/filesystem"
	"github.com/edfs/go-edfs/filesystem/edfs"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	headerMagic   = "EDFSSNAP"
	headerVersion = 1
	headerSize    = 36
)

// ErrBadSnapshot is returned for streams that are not snapshots, or whose
// contents do not match their header
var ErrBadSnapshot = errors.New("invalid snapshot")

// Header describes the image held by a snapshot
type Header struct {
	Codec  Codec
	Length int64
	UUID   uuid.UUID
}

func (h *Header) toBytes() []byte {
	b := make([]byte, headerSize)
	copy(b[0x0:0x8], headerMagic)
	b[0x8] = headerVersion
	b[0x9] = byte(h.Codec)
	binary.LittleEndian.PutUint64(b[0xc:0x14], uint64(h.Length))
	copy(b[0x14:0x24], h.UUID[:])
	return b
}

func headerFromBytes(b []byte) (*Header, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("%w: header of %d bytes instead of %d", ErrBadSnapshot, len(b), headerSize)
	}
	if !bytes.Equal(b[0x0:0x8], []byte(headerMagic)) {
		return nil, fmt.Errorf("%w: magic mismatch", ErrBadSnapshot)
	}
	if b[0x8] != headerVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadSnapshot, b[0x8])
	}
	h := &Header{
		Codec:  Codec(b[0x9]),
		Length: int64(binary.LittleEndian.Uint64(b[0xc:0x14])),
	}
	if h.Length < 0 {
		return nil, fmt.Errorf("%w: negative image length", ErrBadSnapshot)
	}
	copy(h.UUID[:], b[0x14:0x24])
	return h, nil
}

// ReadHeader reads the snapshot header from the front of r
func ReadHeader(r io.Reader) (*Header, error) {
	b := make([]byte, headerSize)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("%w: could not read header: %w", ErrBadSnapshot, err)
	}
	return headerFromBytes(b)
}

// Write validates the image by mounting it read-only, then writes a snapshot
// of the whole image file to w.
func Write(w io.Writer, image string, codec Codec, opts ...edfs.Option) (*Header, error) {
	id, err := volumeUUID(image, opts)
	if err != nil {
		return nil, err
	}
	c, err := newCompressor(codec)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(image)
	if err != nil {
		return nil, fmt.Errorf("%w: could not open image %s: %w", filesystem.ErrIO, image, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: could not stat image %s: %w", filesystem.ErrIO, image, err)
	}

	h := &Header{Codec: codec, Length: info.Size(), UUID: id}
	if _, err := w.Write(h.toBytes()); err != nil {
		return nil, fmt.Errorf("could not write snapshot header: %w", err)
	}
	cw, err := c.newWriter(w)
	if err != nil {
		return nil, err
	}
	n, err := io.Copy(cw, f)
	if err != nil {
		_ = cw.Close()
		return nil, fmt.Errorf("could not compress image %s: %w", image, err)
	}
	if err := cw.Close(); err != nil {
		return nil, fmt.Errorf("could not finish %s stream: %w", codec, err)
	}
	if n != h.Length {
		return nil, fmt.Errorf("%w: image %s changed size while writing snapshot: %d bytes instead of %d", filesystem.ErrIO, image, n, h.Length)
	}
	edfs.LoggerFrom(opts...).WithFields(logrus.Fields{
		"image": image,
		"codec": codec.String(),
		"bytes": n,
		"uuid":  id.String(),
	}).Info("wrote snapshot")
	return h, nil
}

// Restore writes the image held by the snapshot in r to dst, replacing dst,
// then mounts it read-only to check it is the volume the header names.
func Restore(r io.Reader, dst string, opts ...edfs.Option) (*Header, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	c, err := newCompressor(h.Codec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadSnapshot, err)
	}
	cr, err := c.newReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadSnapshot, err)
	}
	defer cr.Close()

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: could not create %s: %w", filesystem.ErrIO, dst, err)
	}
	// one byte past the declared length shows up as a length mismatch
	n, err := io.Copy(f, io.LimitReader(cr, h.Length+1))
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("%w: %w", filesystem.ErrIO, cerr)
	}
	if err != nil {
		return nil, fmt.Errorf("could not restore image to %s: %w", dst, err)
	}
	if n != h.Length {
		return nil, fmt.Errorf("%w: restored %d bytes, header declares %d", ErrBadSnapshot, n, h.Length)
	}

	id, err := volumeUUID(dst, opts)
	if err != nil {
		return nil, fmt.Errorf("restored image does not mount: %w", err)
	}
	if id != h.UUID {
		return nil, fmt.Errorf("%w: restored volume %s, header declares %s", ErrBadSnapshot, id, h.UUID)
	}
	edfs.LoggerFrom(opts...).WithFields(logrus.Fields{
		"image": dst,
		"codec": h.Codec.String(),
		"bytes": n,
		"uuid":  id.String(),
	}).Info("restored snapshot")
	return h, nil
}

func volumeUUID(image string, opts []edfs.Option) (uuid.UUID, error) {
	fs, err := edfs.Open(image, append(opts, edfs.WithReadOnly(true))...)
	if err != nil {
		return uuid.Nil, err
	}
	defer fs.Close()
	id, err := uuid.Parse(fs.Info().UUID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: volume UUID: %w", filesystem.ErrCorruptImage, err)
	}
	return id, nil
}
