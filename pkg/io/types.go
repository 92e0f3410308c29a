package io

import (
	. "github.com/weberc2/ext2fs/pkg/types"
)

type BlockReader interface {
	ReadBlock(b Block, p []byte) error
	ReadAt(b Block, offset Byte, p []byte) error
}

type BlockWriter interface {
	WriteBlock(b Block, p []byte) error
	WriteAt(b Block, offset Byte, p []byte) error
	ZeroBlock(b Block) error
}

type BlockReadWriter interface {
	BlockReader
	BlockWriter
	BlockSize() Byte
}

var _ BlockReadWriter = (*Volume)(nil)
