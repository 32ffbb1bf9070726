package edfs

import (
	"github.com/sirupsen/logrus"
)

// Option configures how a volume is opened or created
type Option func(*options)

type options struct {
	log      logrus.FieldLogger
	start    int64
	readOnly bool
}

func newOptions(opts []Option) options {
	o := options{
		log: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger used for mount, format and allocation messages.
// A nil logger leaves the standard logrus logger in place.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithStart sets how far in bytes from the beginning of the image file the
// volume begins, for images that carry a partition table or other header.
func WithStart(start int64) Option {
	return func(o *options) {
		o.start = start
	}
}

// WithReadOnly opens the image without write access. Every mutation fails
// with filesystem.ErrReadOnly.
func WithReadOnly(readOnly bool) Option {
	return func(o *options) {
		o.readOnly = readOnly
	}
}

// LoggerFrom returns the logger opts would configure a volume with
func LoggerFrom(opts ...Option) logrus.FieldLogger {
	return newOptions(opts).log
}
