package edfs

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/xattr"
	"golang.org/x/sys/unix"
)

// labelAttr is the extended attribute of the image file holding the volume UUID
const labelAttr = "user.edfs.uuid"

var errNoLabel = errors.New("image file carries no label")

func writeLabel(f *os.File, id uuid.UUID) error {
	if err := xattr.FSet(f, labelAttr, []byte(id.String())); err != nil {
		return fmt.Errorf("could not set %s on %s: %w", labelAttr, f.Name(), err)
	}
	return nil
}

// readLabel returns the UUID the image file was labelled with. A filesystem
// without extended attributes reads as unlabelled.
func readLabel(f *os.File) (uuid.UUID, error) {
	b, err := xattr.FGet(f, labelAttr)
	switch {
	case err == nil:
	case errors.Is(err, xattr.ENOATTR), errors.Is(err, unix.ENOTSUP), errors.Is(err, unix.EOPNOTSUPP):
		return uuid.Nil, errNoLabel
	default:
		return uuid.Nil, fmt.Errorf("could not read %s from %s: %w", labelAttr, f.Name(), err)
	}
	id, err := uuid.ParseBytes(b)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s on %s: %w", labelAttr, f.Name(), err)
	}
	return id, nil
}
