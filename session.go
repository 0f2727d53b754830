package bvfs

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/amaank404/bvfs/backend"
	"github.com/amaank404/bvfs/backend/file"
)

// rootBlockIndex is the fixed location of the root block in every
// image; rootDirBlockIndex is the directory block CreateFS seeds the
// filesystem root with.
const (
	rootBlockIndex    = 0
	rootDirBlockIndex = 1
)

// BVFS is an open handle to a single-file virtual filesystem. It owns
// the block cache, the free-block allocator, and the session lock on
// the underlying image, and is the receiver for every namespace and
// file operation this package exposes.
type BVFS struct {
	io    *BlockIO
	alloc *allocator

	rootDir uint64

	store backend.Storage
	id    uuid.UUID

	closed bool
}

// CreateFS writes a brand-new, empty image at path, overwriting any
// file already there. The image starts with a root block pointing at
// an empty root directory.
func CreateFS(path string) error {
	store, err := file.CreateOrTruncate(path, 2*BlockSize)
	if err != nil {
		return fmt.Errorf("bvfs: create image: %w", err)
	}
	defer store.Close()

	wf, err := store.Writable()
	if err != nil {
		return fmt.Errorf("bvfs: open image for write: %w", err)
	}

	root := encodeRoot(rootDirBlockIndex, false)
	if _, err := wf.WriteAt(root, rootBlockIndex*BlockSize); err != nil {
		return fmt.Errorf("bvfs: write root block: %w", err)
	}

	dir := newDirectoryBlock()
	if _, err := wf.WriteAt(dir, rootDirBlockIndex*BlockSize); err != nil {
		return fmt.Errorf("bvfs: write root directory block: %w", err)
	}

	return nil
}

// OpenFS opens an existing image at path. cacheLimit bounds how many
// blocks the session keeps warm in memory; pass 0 to disable caching.
func OpenFS(path string, cacheLimit int) (*BVFS, error) {
	store, err := file.OpenFromPath(path, false)
	if err != nil {
		return nil, fmt.Errorf("bvfs: open image: %w", err)
	}
	fs, err := openSession(store, cacheLimit)
	if err != nil {
		store.Close()
		return nil, err
	}
	return fs, nil
}

func openSession(store backend.Storage, cacheLimit int) (*BVFS, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("bvfs: generate session id: %w", err)
	}
	log := sessionLogger(id)

	bio, err := newBlockIO(store, cacheLimit, log)
	if err != nil {
		return nil, err
	}

	rootBuf, err := bio.readBlock(rootBlockIndex)
	if err != nil {
		return nil, fmt.Errorf("bvfs: read root block: %w", err)
	}
	root, err := decodeRoot(rootBuf)
	if err != nil {
		return nil, err
	}
	if root.locked {
		return nil, newErr(ErrLocked, "bvfs: filesystem is locked by another session")
	}

	setRootLock(rootBuf, true)
	if err := bio.writeBlock(rootBlockIndex, rootBuf, true); err != nil {
		return nil, fmt.Errorf("bvfs: set lock: %w", err)
	}

	fs := &BVFS{
		io:      bio,
		alloc:   newAllocator(bio, log),
		rootDir: root.rootDir,
		store:   store,
		id:      id,
	}
	log.WithField("rootdir", fs.rootDir).Debug("bvfs session opened")
	return fs, nil
}

// Close releases the session lock and closes the underlying backing
// store. Close is idempotent; calling it twice is a no-op.
func (s *BVFS) Close() error {
	if s.closed {
		return nil
	}
	rootBuf, err := s.io.readBlock(rootBlockIndex)
	if err != nil {
		return fmt.Errorf("bvfs: read root block on close: %w", err)
	}
	setRootLock(rootBuf, false)
	if err := s.io.writeBlock(rootBlockIndex, rootBuf, true); err != nil {
		return fmt.Errorf("bvfs: clear lock: %w", err)
	}
	s.closed = true
	return s.store.Close()
}

// Stat describes a file or directory node's metadata.
type Stat struct {
	Perms uint16
	Group uint32
	User  uint32
	Size  uint64
	IsDir bool
}

// Stat returns the metadata recorded for name, which may be a file or
// a directory.
func (s *BVFS) Stat(name string) (Stat, error) {
	parent, leaf := splitPath(name)
	dirnode, err := s.openDirectory(parent)
	if err != nil {
		return Stat{}, err
	}
	entry, err := s.findEntry(dirnode, leaf)
	if err != nil {
		return Stat{}, err
	}
	metaBuf, err := s.io.readBlock(entry.metaPtr)
	if err != nil {
		return Stat{}, fmt.Errorf("bvfs: read metadata for %q: %w", name, err)
	}
	m := decodeMetadata(metaBuf)
	return Stat{
		Perms: m.perms,
		Group: m.group,
		User:  m.user,
		Size:  m.size,
		IsDir: m.ntype == NodeTypeDirectory,
	}, nil
}

// Chmod updates the permission bits recorded for name.
func (s *BVFS) Chmod(name string, perms uint16) error {
	return s.patchMetadata(name, func(m *nodeMetadata) { m.perms = perms })
}

// Chown updates the owning user and group recorded for name.
func (s *BVFS) Chown(name string, uid, gid uint32) error {
	return s.patchMetadata(name, func(m *nodeMetadata) {
		m.user = uid
		m.group = gid
	})
}

func (s *BVFS) patchMetadata(name string, mutate func(*nodeMetadata)) error {
	parent, leaf := splitPath(name)
	dirnode, err := s.openDirectory(parent)
	if err != nil {
		return err
	}
	entry, err := s.findEntry(dirnode, leaf)
	if err != nil {
		return err
	}
	metaBuf, err := s.io.readBlock(entry.metaPtr)
	if err != nil {
		return fmt.Errorf("bvfs: read metadata for %q: %w", name, err)
	}
	m := decodeMetadata(metaBuf)
	mutate(&m)
	encodeMetadata(metaBuf, m)
	return s.io.writeBlock(entry.metaPtr, metaBuf, true)
}

// BlockView is a read-only snapshot of one block, as consumed by
// external diagnostic tooling that has no access to this package's
// internal layout details.
type BlockView struct {
	Index   uint64
	Type    BlockType
	Payload []byte
}

// WalkBlocks calls fn once for every block in the image, in index
// order, stopping at the first error fn returns.
func (s *BVFS) WalkBlocks(fn func(BlockView) error) error {
	n := s.io.Len()
	for i := uint64(0); i < n; i++ {
		buf, err := s.io.readBlock(i)
		if err != nil {
			return fmt.Errorf("bvfs: read block %d: %w", i, err)
		}
		view := BlockView{
			Index:   i,
			Type:    blockType(buf),
			Payload: buf[headerSize:],
		}
		if err := fn(view); err != nil {
			return err
		}
	}
	return nil
}
