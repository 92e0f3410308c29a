// Package device provides the fixed-size block devices the filesystem is
// stored on. Every device reads and writes whole 1024-byte blocks by index
// and validates the index itself.
package device

import (
	"fmt"

	. "github.com/weberc2/ext2fs/pkg/types"
)

type Device interface {
	ReadBlock(index uint64, b *[DeviceBlockSize]byte) error
	WriteBlock(index uint64, b *[DeviceBlockSize]byte) error

	// Len returns the number of blocks on the device.
	Len() uint64
}

const (
	OutOfRangeErr ConstError = "device block index out of range"
)

func checkIndex(d Device, index uint64) error {
	if index >= d.Len() {
		return fmt.Errorf(
			"block `%d` (device has `%d` blocks): %w",
			index,
			d.Len(),
			OutOfRangeErr,
		)
	}
	return nil
}

func zero(b *[DeviceBlockSize]byte) {
	*b = [DeviceBlockSize]byte{}
}

func isZero(b *[DeviceBlockSize]byte) bool {
	return *b == [DeviceBlockSize]byte{}
}
