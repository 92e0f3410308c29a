package io

import (
	"fmt"

	"github.com/weberc2/ext2fs/pkg/device"
	. "github.com/weberc2/ext2fs/pkg/types"
)

// Volume addresses a device in filesystem blocks. Filesystem block `b`
// spans device blocks `[b*n, (b+1)*n)` where `n` is the number of device
// blocks per filesystem block. All device I/O is whole-block; sub-block
// writes are read-modify-write.
type Volume struct {
	device       device.Device
	logBlockSize uint32
}

func NewVolume(dev device.Device, logBlockSize uint32) *Volume {
	return &Volume{device: dev, logBlockSize: logBlockSize}
}

func (v *Volume) Device() device.Device { return v.device }

func (v *Volume) BlockSize() Byte { return DeviceBlockSize << v.logBlockSize }

func (v *Volume) perBlock() uint64 { return 1 << v.logBlockSize }

// Len is the number of whole filesystem blocks on the device.
func (v *Volume) Len() Block {
	return Block(v.device.Len() >> v.logBlockSize)
}

func (v *Volume) ReadBlock(b Block, p []byte) error {
	if Byte(len(p)) != v.BlockSize() {
		panic(fmt.Sprintf(
			"reading block `%d`: buffer is `%d` bytes; block size is `%d`",
			b,
			len(p),
			v.BlockSize(),
		))
	}
	for i := uint64(0); i < v.perBlock(); i++ {
		chunk := (*[DeviceBlockSize]byte)(p[Byte(i)*DeviceBlockSize:])
		if err := v.device.ReadBlock(uint64(b)*v.perBlock()+i, chunk); err != nil {
			return fmt.Errorf("reading block `%d`: %w", b, err)
		}
	}
	return nil
}

func (v *Volume) WriteBlock(b Block, p []byte) error {
	if Byte(len(p)) != v.BlockSize() {
		panic(fmt.Sprintf(
			"writing block `%d`: buffer is `%d` bytes; block size is `%d`",
			b,
			len(p),
			v.BlockSize(),
		))
	}
	for i := uint64(0); i < v.perBlock(); i++ {
		chunk := (*[DeviceBlockSize]byte)(p[Byte(i)*DeviceBlockSize:])
		if err := v.device.WriteBlock(uint64(b)*v.perBlock()+i, chunk); err != nil {
			return fmt.Errorf("writing block `%d`: %w", b, err)
		}
	}
	return nil
}

func (v *Volume) ZeroBlock(b Block) error {
	if err := v.WriteBlock(b, make([]byte, v.BlockSize())); err != nil {
		return fmt.Errorf("zeroing: %w", err)
	}
	return nil
}

// ReadAt reads `len(p)` bytes starting `offset` bytes into block `b`. The
// range must not cross the end of the block.
func (v *Volume) ReadAt(b Block, offset Byte, p []byte) error {
	v.checkRange(b, offset, p)
	buf := make([]byte, v.BlockSize())
	if err := v.ReadBlock(b, buf); err != nil {
		return fmt.Errorf(
			"reading `%d` bytes at offset `%d`: %w",
			len(p),
			offset,
			err,
		)
	}
	copy(p, buf[offset:])
	return nil
}

// WriteAt writes `p` starting `offset` bytes into block `b`. The range must
// not cross the end of the block.
func (v *Volume) WriteAt(b Block, offset Byte, p []byte) error {
	v.checkRange(b, offset, p)
	buf := make([]byte, v.BlockSize())
	if offset != 0 || Byte(len(p)) != v.BlockSize() {
		if err := v.ReadBlock(b, buf); err != nil {
			return fmt.Errorf(
				"writing `%d` bytes at offset `%d`: %w",
				len(p),
				offset,
				err,
			)
		}
	}
	copy(buf[offset:], p)
	if err := v.WriteBlock(b, buf); err != nil {
		return fmt.Errorf(
			"writing `%d` bytes at offset `%d`: %w",
			len(p),
			offset,
			err,
		)
	}
	return nil
}

func (v *Volume) checkRange(b Block, offset Byte, p []byte) {
	if offset < 0 || offset+Byte(len(p)) > v.BlockSize() {
		panic(fmt.Sprintf(
			"block `%d`: range [%d, %d) crosses the block boundary (`%d`)",
			b,
			offset,
			offset+Byte(len(p)),
			v.BlockSize(),
		))
	}
}
