package rdb

import (
	"errors"
	"fmt"
)

var (
	// ErrCorrupt is wrapped by errors caused by truncated or malformed
	// snapshot bytes.
	ErrCorrupt = errors.New("rdb: corrupt snapshot")

	// ErrUnsupported is wrapped by errors for well-formed content this
	// package cannot decode (unknown type tags, module values without a
	// parser, unsupported encodings).
	ErrUnsupported = errors.New("rdb: unsupported encoding")

	// ErrExhausted is returned by iterators once every element has been
	// produced. It never signals corruption.
	ErrExhausted = errors.New("rdb: iterator exhausted")
)

func corruptf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}

func unsupportedf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, fmt.Sprintf(format, args...))
}
