package storage

import (
	"fmt"

	"pagefs/internal/common"
)

// zeroPage is the template appended for every fresh page.
var zeroPage [PageSize]byte

// AllocatePage appends one zero-filled page to the backing file and
// returns its index, computed from the size after the append. Pages are
// never reclaimed, so indexes grow monotonically.
func AllocatePage(b *BackingFile) (uint64, error) {
	n, err := b.Append(zeroPage[:])
	if err != nil {
		return 0, err
	}
	if n != PageSize {
		return 0, fmt.Errorf("allocate page in %s: %w", b.Path(), common.ErrFileWrite)
	}
	return uint64((b.Size()-headerSize)/PageSize) - 1, nil
}

// InitEmpty lays out a fresh backing file: a zero file header followed by
// the empty root directory page 0. No-op shape is the caller's concern;
// this must only run on a zero-sized file.
func InitEmpty(b *BackingFile) error {
	n, err := b.Append(zeroPage[:headerSize])
	if err != nil {
		return err
	}
	if n != headerSize {
		return fmt.Errorf("init header of %s: %w", b.Path(), common.ErrFileWrite)
	}
	if _, err := AllocatePage(b); err != nil {
		return err
	}
	return nil
}
