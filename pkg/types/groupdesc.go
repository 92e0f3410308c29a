package types

type GroupDesc struct {
	BlockBitmap     Block
	InodeBitmap     Block
	InodeTable      Block
	FreeBlocksCount uint16
	FreeInodesCount uint16
	UsedDirsCount   uint16
}

const GroupDescSize Byte = 32
