package stablebt

import "errors"

var (
	// ErrOutOfBounds reports a Memory access past the region end. It always
	// indicates a layout bug and is not recoverable.
	ErrOutOfBounds = errors.New("stablebt: memory access out of bounds")
	// ErrIncompatibleBounds is returned by Init when the region was formatted
	// with different max key/value sizes than the configured ones.
	ErrIncompatibleBounds = errors.New("stablebt: region formatted with different size bounds")
	ErrKeyTooLarge        = errors.New("stablebt: encoded key exceeds max key size")
	ErrValueTooLarge      = errors.New("stablebt: encoded value exceeds max value size")
	// ErrCorruptNode reports an undecodable node block. The persisted format
	// is trusted by construction, so this is fatal.
	ErrCorruptNode = errors.New("stablebt: corrupt node block")
)
