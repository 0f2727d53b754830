package bvfs

import "testing"

func TestAllocatorAllocateExtendsImage(t *testing.T) {
	bio := newTestBlockIO(t, 1)
	alloc := newAllocator(bio, testLogger())

	// Block 0 holds a root block, as in a real image, so the scan finds
	// no free block before the end of the image.
	if err := bio.writeBlock(0, newBlock(BlockTypeRoot), true); err != nil {
		t.Fatalf("writeBlock: %v", err)
	}

	idx, err := alloc.allocate()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if idx != 1 {
		t.Fatalf("expected first allocation to extend past block 0, got %d", idx)
	}
	if bio.Len() != 2 {
		t.Fatalf("expected image length 2, got %d", bio.Len())
	}
}

func TestAllocatorReusesDeallocatedBlock(t *testing.T) {
	bio := newTestBlockIO(t, 1)
	alloc := newAllocator(bio, testLogger())

	a, err := alloc.allocate()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	b, err := alloc.allocate()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct allocations, got %d twice", a)
	}

	if err := alloc.deallocate(a); err != nil {
		t.Fatalf("deallocate: %v", err)
	}
	if alloc.nextFree != a {
		t.Fatalf("expected nextFree to rewind to %d, got %d", a, alloc.nextFree)
	}

	c, err := alloc.allocate()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if c != a {
		t.Fatalf("expected reallocation to reclaim block %d, got %d", a, c)
	}
}
