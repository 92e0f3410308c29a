package physical

import (
	"fmt"

	"github.com/weberc2/ext2fs/pkg/inode/data/block/indirect"
	. "github.com/weberc2/ext2fs/pkg/types"
)

const (
	OutOfRangeErr ConstError = "block out of range"
)

type level int

const (
	levelDirect level = iota
	levelSingly
	levelDoubly
	levelTriply
)

func (level level) String() string {
	switch level {
	case levelDirect:
		return "direct"
	case levelSingly:
		return "singly indirect"
	case levelDoubly:
		return "doubly indirect"
	case levelTriply:
		return "triply indirect"
	default:
		panic(fmt.Sprintf("invalid level: %d", level))
	}
}

// indirection is the path from an inode's block array to one of its
// logical blocks. `indices` are ordered from the top-level indirect block
// down to the block holding the physical pointer.
type indirection struct {
	level   level
	slot    int
	indices [levelTriply]indirect.Index
}

func (ind *indirection) path() []indirect.Index {
	return ind.indices[:ind.level]
}

func (ind *indirection) ptr(inode *Inode) *Block {
	return &inode.Block[ind.slot]
}

// singly
// |____
// | | |

// doubly
// |______________
// |____  |____  |____
// | | |  | | |  | | |

// triply
// |____________________________________________
// |______________       |______________       |______________
// |____  |____  |____   |____  |____  |____   |____  |____  |____
// | | |  | | |  | | |   | | |  | | |  | | |   | | |  | | |  | | |
func (ind *indirection) fromInodeBlock(
	entries uint64,
	block Block,
) error {
	local := uint64(block)
	if local < DirectBlocksCount {
		*ind = indirection{level: levelDirect, slot: int(local)}
		return nil
	}

	local -= DirectBlocksCount
	if local < entries {
		*ind = indirection{
			level:   levelSingly,
			slot:    SinglyIndirectIndex,
			indices: [levelTriply]indirect.Index{indirect.Index(local)},
		}
		return nil
	}

	local -= entries
	if local < entries*entries {
		*ind = indirection{
			level: levelDoubly,
			slot:  DoublyIndirectIndex,
			indices: [levelTriply]indirect.Index{
				indirect.Index(local / entries),
				indirect.Index(local % entries),
			},
		}
		return nil
	}

	local -= entries * entries
	if local < entries*entries*entries {
		*ind = indirection{
			level: levelTriply,
			slot:  TriplyIndirectIndex,
			indices: [levelTriply]indirect.Index{
				indirect.Index(local / entries / entries),
				indirect.Index(local / entries % entries),
				indirect.Index(local % entries),
			},
		}
		return nil
	}

	return OutOfRangeErr
}

// MaxBlocks is the number of logical blocks addressable by one inode when
// each indirect block holds `entries` pointers.
func MaxBlocks(entries uint64) uint64 {
	return DirectBlocksCount + entries + entries*entries +
		entries*entries*entries
}
