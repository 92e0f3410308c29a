package types

// Byte is a count or offset in bytes.
type Byte int64

// Block is a filesystem block id. On disk, block ids are 32 bits wide.
type Block uint32

const (
	// DeviceBlockSize is the unit of I/O of the underlying block device.
	// Filesystem blocks are `1024 << LogBlockSize` bytes and are composed
	// of one or more device blocks.
	DeviceBlockSize Byte = 1024

	BlockPointerSize Byte = 4
	SectorSize       Byte = 512

	BlockNil Block = 0
)
