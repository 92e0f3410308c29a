package physical

import (
	"fmt"
	"strings"

	"github.com/weberc2/ext2fs/pkg/inode/data/block/indirect"
	. "github.com/weberc2/ext2fs/pkg/types"
)

// Reader maps logical blocks to physical blocks without allocating. Every
// pointer along the path must already be set; a hole is a bug in the
// caller, which is expected to have sized the file first.
type Reader struct {
	indirects indirect.Reader
	entries   uint64
}

func NewReader(indirects indirect.Reader, blockSize Byte) Reader {
	return Reader{
		indirects: indirects,
		entries:   uint64(blockSize / BlockPointerSize),
	}
}

func (r Reader) Read(inode *Inode, inodeBlock Block) (Block, error) {
	var ind indirection
	if err := ind.fromInodeBlock(r.entries, inodeBlock); err != nil {
		return BlockNil, fmt.Errorf(
			"reading physical block for inode `%d`, block `%d`: %w",
			inode.Ino,
			inodeBlock,
			err,
		)
	}

	type errctx struct {
		b Block
		i indirect.Index
	}

	block := *ind.ptr(inode)
	ctx := []errctx{}
	for _, index := range ind.path() {
		if block == BlockNil {
			break
		}
		ctx = append(ctx, errctx{block, index})
		var err error
		block, err = r.indirects.ReadIndirect(block, index)
		if err != nil {
			var sb strings.Builder
			fmt.Fprintf(
				&sb,
				"reading physical block for inode `%d`, block `%d`",
				inode.Ino,
				inodeBlock,
			)
			for _, c := range ctx {
				fmt.Fprintf(&sb, ": reading block `%d`, index `%d`", c.b, c.i)
			}
			return BlockNil, fmt.Errorf("%s: %w", &sb, err)
		}
	}

	if block == BlockNil {
		panic(fmt.Sprintf(
			"reading physical block for inode `%d`, block `%d`: %s path "+
				"reaches a nil pointer after `%d` hops",
			inode.Ino,
			inodeBlock,
			ind.level,
			len(ctx),
		))
	}
	return block, nil
}
