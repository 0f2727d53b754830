package bvfs

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/amaank404/bvfs/backend"
)

// BlockIO presents a backend.Storage as an indexable array of BlockSize
// blocks. It serializes all access through a single mutex and keeps a
// small insertion-ordered cache of recently touched blocks.
//
// The cache is intentionally a FIFO, not an LRU: it is bounded by
// cacheSize and evicts the oldest-inserted entry on overflow, with no
// reordering on a read hit. Workloads here are dominated by sequential
// directory-chain and superblock-chain walks, where a strict LRU buys
// nothing over a FIFO of the same size.
type BlockIO struct {
	mu      sync.Mutex
	storage backend.Storage

	blockLen  uint64
	prevBlock uint64

	cache      map[uint64][]byte
	cacheOrder []uint64
	cacheSize  int

	log *logrus.Entry
}

func newBlockIO(storage backend.Storage, cacheSize int, log *logrus.Entry) (*BlockIO, error) {
	info, err := storage.Stat()
	if err != nil {
		return nil, fmt.Errorf("bvfs: stat backing store: %w", err)
	}
	size := info.Size()
	extra := size % BlockSize
	if extra != 0 {
		wf, werr := storage.Writable()
		if werr == nil {
			if terr := wf.Truncate(size - extra); terr != nil {
				return nil, fmt.Errorf("bvfs: truncate trailing partial block: %w", terr)
			}
			size -= extra
		}
	}
	return &BlockIO{
		storage:   storage,
		blockLen:  uint64(size / BlockSize),
		cache:     make(map[uint64][]byte),
		cacheSize: cacheSize,
		log:       log,
	}, nil
}

// Len reports how many blocks are currently materialized in the image.
func (b *BlockIO) Len() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blockLen
}

// readBlock returns the buffer for block index, from cache if present.
func (b *BlockIO) readBlock(index uint64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if buf, ok := b.cache[index]; ok {
		return buf, nil
	}

	if b.prevBlock+1 != index {
		if _, err := b.storage.Seek(int64(index)*BlockSize, io.SeekStart); err != nil {
			return nil, fmt.Errorf("bvfs: seek to block %d: %w", index, err)
		}
	}
	b.prevBlock = index

	buf := make([]byte, BlockSize)
	if _, err := io.ReadFull(b.storage, buf); err != nil {
		return nil, fmt.Errorf("bvfs: read block %d: %w", index, err)
	}
	b.insertCache(index, buf)
	return buf, nil
}

// writeBlock writes data (padded/truncated to BlockSize) to block index.
// If index is beyond the current block length, the backing store is
// truncated to materialize it first. When write is false, no bytes are
// emitted: the block is only reserved (used by the allocator to extend
// the image without committing content).
func (b *BlockIO) writeBlock(index uint64, data []byte, write bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.prevBlock+1 != index {
		if _, err := b.storage.Seek(int64(index)*BlockSize, io.SeekStart); err != nil {
			return fmt.Errorf("bvfs: seek to block %d: %w", index, err)
		}
	}
	b.prevBlock = index

	if index >= b.blockLen {
		wf, err := b.storage.Writable()
		if err != nil {
			return fmt.Errorf("bvfs: acquire writable backing store: %w", err)
		}
		if err := wf.Truncate(int64(index+1) * BlockSize); err != nil {
			return fmt.Errorf("bvfs: extend backing store to block %d: %w", index, err)
		}
		b.blockLen = index + 1
	}

	if write {
		buf := fitBlock(data)
		wf, err := b.storage.Writable()
		if err != nil {
			return fmt.Errorf("bvfs: acquire writable backing store: %w", err)
		}
		if _, err := wf.Write(buf); err != nil {
			return fmt.Errorf("bvfs: write block %d: %w", index, err)
		}
		if _, ok := b.cache[index]; ok {
			b.cache[index] = buf
		}
	}
	return nil
}

// insertCache inserts a freshly read block into the FIFO cache,
// evicting the oldest entry if this insertion exceeds cacheSize.
func (b *BlockIO) insertCache(index uint64, buf []byte) {
	if b.cacheSize <= 0 {
		return
	}
	b.cache[index] = buf
	b.cacheOrder = append(b.cacheOrder, index)
	if len(b.cacheOrder) > b.cacheSize {
		oldest := b.cacheOrder[0]
		b.cacheOrder = b.cacheOrder[1:]
		delete(b.cache, oldest)
	}
}
