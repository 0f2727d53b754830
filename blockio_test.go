package bvfs

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/amaank404/bvfs/backend/file"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func newTestBlockIO(t *testing.T, blocks int) *BlockIO {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.img")
	store, err := file.CreateOrTruncate(path, int64(blocks)*BlockSize)
	if err != nil {
		t.Fatalf("create image: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	bio, err := newBlockIO(store, 4, testLogger())
	if err != nil {
		t.Fatalf("newBlockIO: %v", err)
	}
	return bio
}

func TestBlockIOReadWriteRoundTrip(t *testing.T) {
	bio := newTestBlockIO(t, 4)

	buf := newBlock(BlockTypeData)
	buf[headerSize] = 0xAB
	if err := bio.writeBlock(2, buf, true); err != nil {
		t.Fatalf("writeBlock: %v", err)
	}

	got, err := bio.readBlock(2)
	if err != nil {
		t.Fatalf("readBlock: %v", err)
	}
	if got[headerSize] != 0xAB {
		t.Fatalf("roundtrip mismatch: got %x", got[headerSize])
	}
}

func TestBlockIOExtendsOnWriteBeyondLength(t *testing.T) {
	bio := newTestBlockIO(t, 1)
	if bio.Len() != 1 {
		t.Fatalf("expected initial length 1, got %d", bio.Len())
	}

	if err := bio.writeBlock(3, newBlock(BlockTypeData), true); err != nil {
		t.Fatalf("writeBlock: %v", err)
	}
	if bio.Len() != 4 {
		t.Fatalf("expected length 4 after extending to block 3, got %d", bio.Len())
	}
}

func TestBlockIOCacheIsFIFONotLRU(t *testing.T) {
	bio := newTestBlockIO(t, 8)
	bio.cacheSize = 2

	for i := uint64(0); i < 3; i++ {
		if i == 2 {
			// A read hit on block 0, the oldest entry, does not move it
			// to the back of the FIFO the way an LRU would.
			if _, err := bio.readBlock(0); err != nil {
				t.Fatalf("readBlock(0): %v", err)
			}
		}
		buf := newBlock(BlockTypeData)
		buf[headerSize] = byte(i + 1)
		if err := bio.writeBlock(i, buf, true); err != nil {
			t.Fatalf("writeBlock(%d): %v", i, err)
		}
		if _, err := bio.readBlock(i); err != nil {
			t.Fatalf("readBlock(%d): %v", i, err)
		}
	}

	// Inserting block 2 evicted block 0, the oldest insertion, despite
	// the hit on it just before; an LRU would have evicted block 1
	// instead. The cache holds {1, 2}.
	if _, ok := bio.cache[0]; ok {
		t.Fatalf("expected block 0 to have been evicted from the FIFO cache")
	}
	if _, ok := bio.cache[1]; !ok {
		t.Fatalf("expected block 1 to still be cached")
	}
	if _, ok := bio.cache[2]; !ok {
		t.Fatalf("expected block 2 to still be cached")
	}
}
