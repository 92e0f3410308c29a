package physical

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/weberc2/ext2fs/pkg/alloc"
	"github.com/weberc2/ext2fs/pkg/inode/data/block/indirect"
	"github.com/weberc2/ext2fs/pkg/math"
	. "github.com/weberc2/ext2fs/pkg/types"
)

// ReadWriter maps logical blocks to physical blocks, allocating any
// missing block along the way, and releases whole ranges of an indirect
// tree.
type ReadWriter struct {
	allocator  *alloc.BlockAllocator
	indirects  indirect.ReadWriter
	inodeStore InodeStore
}

func NewReadWriter(
	allocator *alloc.BlockAllocator,
	indirects indirect.ReadWriter,
	inodeStore InodeStore,
) *ReadWriter {
	return &ReadWriter{
		allocator:  allocator,
		indirects:  indirects,
		inodeStore: inodeStore,
	}
}

func (rw *ReadWriter) entries() uint64 { return uint64(rw.indirects.Entries()) }

func (rw *ReadWriter) Reader() Reader {
	return Reader{indirects: rw.indirects.Reader(), entries: rw.entries()}
}

func (rw *ReadWriter) Read(inode *Inode, block Block) (Block, error) {
	return rw.Reader().Read(inode, block)
}

// ReadAlloc returns the physical block behind logical block `inodeBlock`,
// allocating (zero-filled) blocks for any missing level of the path. Each
// indirect block is only written if one of its slots was filled, and the
// inode is only stored if its top-level pointer changed.
func (rw *ReadWriter) ReadAlloc(
	inode *Inode,
	inodeBlock Block,
) (Block, error) {
	var ind indirection
	if err := ind.fromInodeBlock(rw.entries(), inodeBlock); err != nil {
		return BlockNil, fmt.Errorf(
			"getting physical block for inode `%d`, block `%d`: %w",
			inode.Ino,
			inodeBlock,
			err,
		)
	}

	if err := rw.ensureToplevel(inode, &ind); err != nil {
		return BlockNil, fmt.Errorf(
			"getting physical block for inode `%d`, block `%d`: %w",
			inode.Ino,
			inodeBlock,
			err,
		)
	}

	p, err := rw.readIndirect(*ind.ptr(inode), ind.path())
	if err != nil {
		return BlockNil, fmt.Errorf(
			"getting physical block for inode `%d`, block `%d`: "+
				"traversing %s block: %w",
			inode.Ino,
			inodeBlock,
			ind.level,
			err,
		)
	}
	return p, nil
}

func (rw *ReadWriter) ensureToplevel(inode *Inode, ind *indirection) error {
	ptr := ind.ptr(inode)
	if *ptr != BlockNil {
		return nil
	}

	b, err := rw.allocator.AllocateIdle()
	if err != nil {
		return fmt.Errorf("allocating %s block: %w", ind.level, err)
	}
	*ptr = b
	if err := rw.inodeStore.Put(inode); err != nil {
		*ptr = BlockNil
		if ferr := rw.allocator.Free(b); ferr != nil {
			logrus.WithError(ferr).WithField("block", b).
				Error("releasing block after failed inode store")
		}
		return fmt.Errorf(
			"allocating %s block: storing updated inode: %w",
			ind.level,
			err,
		)
	}
	return nil
}

// readIndirect descends from block `b` along `indices` (outermost first),
// allocating and linking any missing child.
func (rw *ReadWriter) readIndirect(
	b Block,
	indices []indirect.Index,
) (Block, error) {
	for _, index := range indices {
		next, err := rw.indirects.ReadIndirect(b, index)
		if err != nil {
			return BlockNil, fmt.Errorf(
				"reading block pointer at index `%d` from block `%d`: %w",
				index,
				b,
				err,
			)
		}

		if next == BlockNil {
			// link each new block into its parent before descending so an
			// allocated block is always reachable
			next, err = rw.allocator.AllocateIdle()
			if err != nil {
				return BlockNil, fmt.Errorf(
					"allocating block to store in (block `%d`, index "+
						"`%d`): %w",
					b,
					index,
					err,
				)
			}
			if err := rw.indirects.WriteIndirect(b, index, next); err != nil {
				if ferr := rw.allocator.Free(next); ferr != nil {
					logrus.WithError(ferr).WithField("block", next).
						Error("releasing unlinked block")
				}
				return BlockNil, fmt.Errorf(
					"writing newly-allocated block pointer `%d` to parent "+
						"block `%d` at index `%d`: %w",
					next,
					b,
					index,
					err,
				)
			}
		}
		b = next
	}
	return b, nil
}

// FreeRange releases the entries `[start, end)` of the subtree rooted at
// indirect block `b`, where `lvl` is the subtree's depth (1 for a singly
// indirect block) and the range is measured in logical blocks relative to
// the subtree. If `start` is 0, `b` itself is released too and `true` is
// returned so the caller can clear its pointer.
func (rw *ReadWriter) FreeRange(
	b Block,
	lvl int,
	start Block,
	end Block,
) (bool, error) {
	entries := rw.entries()
	span := math.Pow(entries, lvl)
	if b == BlockNil {
		panic(fmt.Sprintf(
			"freeing range [%d, %d) of level `%d` subtree: nil block",
			start,
			end,
			lvl,
		))
	}
	if lvl < 1 || lvl > int(levelTriply) ||
		start >= end ||
		uint64(end) > span {
		panic(fmt.Sprintf(
			"freeing range [%d, %d) of level `%d` subtree at block `%d`: "+
				"malformed bounds (span `%d`)",
			start,
			end,
			lvl,
			b,
			span,
		))
	}

	children := make([]Block, entries)
	if err := rw.indirects.ReadAll(b, children); err != nil {
		return false, fmt.Errorf(
			"freeing range [%d, %d) of block `%d`: %w",
			start,
			end,
			b,
			err,
		)
	}

	if lvl == 1 {
		for i := start; i < end; i++ {
			if children[i] == BlockNil {
				continue
			}
			if err := rw.allocator.Free(children[i]); err != nil {
				return false, fmt.Errorf(
					"freeing range [%d, %d) of block `%d`: index `%d`: %w",
					start,
					end,
					b,
					i,
					err,
				)
			}
			children[i] = BlockNil
		}
	} else {
		childSpan := span / entries
		first, last := uint64(start)/childSpan, (uint64(end)-1)/childSpan
		for i := first; i <= last; i++ {
			if children[i] == BlockNil {
				continue
			}
			base := i * childSpan
			subStart := uint64(0)
			if uint64(start) > base {
				subStart = uint64(start) - base
			}
			subEnd := math.Min(uint64(end)-base, childSpan)
			freed, err := rw.FreeRange(
				children[i],
				lvl-1,
				Block(subStart),
				Block(subEnd),
			)
			if err != nil {
				return false, fmt.Errorf(
					"freeing range [%d, %d) of block `%d`: index `%d`: %w",
					start,
					end,
					b,
					i,
					err,
				)
			}
			if freed {
				children[i] = BlockNil
			}
		}
	}

	if err := rw.indirects.WriteAll(b, children); err != nil {
		return false, fmt.Errorf(
			"freeing range [%d, %d) of block `%d`: %w",
			start,
			end,
			b,
			err,
		)
	}

	if start != 0 {
		return false, nil
	}
	if err := rw.allocator.Free(b); err != nil {
		return false, fmt.Errorf(
			"freeing range [%d, %d) of block `%d`: releasing block: %w",
			start,
			end,
			b,
			err,
		)
	}
	logrus.WithFields(logrus.Fields{
		"block": b,
		"level": lvl,
	}).Trace("released indirect block")
	return true, nil
}
