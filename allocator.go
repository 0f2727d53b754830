package bvfs

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// allocator hands out free block indices with a monotonic cursor and a
// linear scan, and tracks the lowest known-free index so deallocation
// can move the cursor backward. There is no bitmap or free list: for
// images sized for this format, a scan forward from the last checked
// position is cheap and never needs more state than nextFree.
type allocator struct {
	io       *BlockIO
	nextFree uint64
	log      *logrus.Entry
}

func newAllocator(io *BlockIO, log *logrus.Entry) *allocator {
	return &allocator{io: io, log: log}
}

// allocate returns the index of a block guaranteed to be free, growing
// the image by one block if the scan reaches the current end without
// finding a free type-0 block.
func (a *allocator) allocate() (uint64, error) {
	for {
		if a.nextFree >= a.io.Len() {
			idx := a.nextFree
			if err := a.io.writeBlock(idx, nil, false); err != nil {
				return 0, fmt.Errorf("bvfs: extend image for allocation: %w", err)
			}
			a.nextFree++
			return idx, nil
		}

		buf, err := a.io.readBlock(a.nextFree)
		if err != nil {
			return 0, fmt.Errorf("bvfs: scan for free block %d: %w", a.nextFree, err)
		}
		if blockType(buf) == BlockTypeFree {
			idx := a.nextFree
			a.nextFree++
			return idx, nil
		}
		a.nextFree++
	}
}

// deallocate zeroes the block at index, marking it free, and rewinds
// nextFree if index is lower than the current cursor so a subsequent
// allocate call can reclaim it.
func (a *allocator) deallocate(index uint64) error {
	if err := a.io.writeBlock(index, newBlock(BlockTypeFree), true); err != nil {
		return fmt.Errorf("bvfs: deallocate block %d: %w", index, err)
	}
	if index < a.nextFree {
		a.nextFree = index
	}
	return nil
}
