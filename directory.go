package bvfs

import (
	"errors"
	"fmt"
	"strings"
)

// splitPath divides an absolute, slash-separated path into its parent
// directory and leaf name. splitPath("/a/b/c") returns ("/a/b", "c");
// splitPath("/c") returns ("/", "c").
func splitPath(p string) (parent, leaf string) {
	p = strings.Trim(p, "/")
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return "/", p
	}
	return "/" + p[:idx], p[idx+1:]
}

// openDirectory resolves a slash-separated path to the block index of
// that directory's first (head) block, walking down from the
// filesystem root one path component at a time.
func (s *BVFS) openDirectory(dirname string) (uint64, error) {
	dirname = strings.Trim(dirname, "/")
	cur := s.rootDir
	if dirname == "" {
		return cur, nil
	}
	for _, part := range strings.Split(dirname, "/") {
		entry, err := s.findEntry(cur, part)
		if err != nil {
			return 0, err
		}
		metaBuf, err := s.io.readBlock(entry.metaPtr)
		if err != nil {
			return 0, fmt.Errorf("bvfs: read metadata for %q: %w", part, err)
		}
		if decodeMetadata(metaBuf).ntype != NodeTypeDirectory {
			return 0, newErr(ErrDirectoryNotFound, fmt.Sprintf("bvfs: %q is not a directory", part))
		}
		cur = entry.subtreePtr
	}
	return cur, nil
}

// findEntry scans the block chain headed by dirnode for an entry named
// name, returning ErrFileNotFound if none of its blocks carry it.
func (s *BVFS) findEntry(dirnode uint64, name string) (dirEntry, error) {
	block := dirnode
	for block != 0 {
		buf, err := s.io.readBlock(block)
		if err != nil {
			return dirEntry{}, fmt.Errorf("bvfs: read directory block %d: %w", block, err)
		}
		for slot := 0; slot < entriesPerBlock; slot++ {
			e := decodeEntry(buf, slot)
			if !e.empty() && e.name == name {
				return e, nil
			}
		}
		block = directoryForward(buf)
	}
	return dirEntry{}, newErr(ErrFileNotFound, fmt.Sprintf("bvfs: %q not found", name))
}

// createNodeMetadata allocates and writes a fresh node-metadata block,
// returning its index.
func (s *BVFS) createNodeMetadata(ntype byte, perms uint16, group, user uint32, size uint64) (uint64, error) {
	idx, err := s.alloc.allocate()
	if err != nil {
		return 0, fmt.Errorf("bvfs: allocate node metadata: %w", err)
	}
	buf := newMetadataBlock(nodeMetadata{perms: perms, group: group, user: user, size: size, ntype: ntype})
	if err := s.io.writeBlock(idx, buf, true); err != nil {
		return 0, fmt.Errorf("bvfs: write node metadata: %w", err)
	}
	return idx, nil
}

// writeDirectoryNode appends an entry (metadata pointer nm, subtree
// pointer sb, name) to the directory chain headed by dirnode,
// allocating a new trailing block if every existing block is full.
func (s *BVFS) writeDirectoryNode(dirnode, nm, sb uint64, name string) error {
	block := dirnode
	var lastBuf []byte
	var lastIdx uint64
	for {
		buf, err := s.io.readBlock(block)
		if err != nil {
			return fmt.Errorf("bvfs: read directory block %d: %w", block, err)
		}
		for slot := 0; slot < entriesPerBlock; slot++ {
			if decodeEntry(buf, slot).empty() {
				if err := encodeEntry(buf, slot, dirEntry{metaPtr: nm, subtreePtr: sb, name: name}); err != nil {
					return err
				}
				return s.io.writeBlock(block, buf, true)
			}
		}
		lastBuf, lastIdx = buf, block
		fwd := directoryForward(buf)
		if fwd == 0 {
			break
		}
		block = fwd
	}

	newIdx, err := s.alloc.allocate()
	if err != nil {
		return fmt.Errorf("bvfs: allocate directory block: %w", err)
	}
	newBuf := newDirectoryBlock()
	if err := encodeEntry(newBuf, 0, dirEntry{metaPtr: nm, subtreePtr: sb, name: name}); err != nil {
		return err
	}
	if err := s.io.writeBlock(newIdx, newBuf, true); err != nil {
		return fmt.Errorf("bvfs: write new directory block: %w", err)
	}
	setDirectoryForward(lastBuf, newIdx)
	return s.io.writeBlock(lastIdx, lastBuf, true)
}

// Mkdir creates a new, empty directory at dirname. Its parent must
// already exist.
func (s *BVFS) Mkdir(dirname string) error {
	parent, leaf := splitPath(dirname)
	parentNode, err := s.openDirectory(parent)
	if err != nil {
		return err
	}
	if _, err := s.findEntry(parentNode, leaf); err == nil {
		return newErr(ErrFileAlreadyExists, fmt.Sprintf("bvfs: %q already exists", dirname))
	}

	subIdx, err := s.alloc.allocate()
	if err != nil {
		return fmt.Errorf("bvfs: allocate directory block: %w", err)
	}
	if err := s.io.writeBlock(subIdx, newDirectoryBlock(), true); err != nil {
		return fmt.Errorf("bvfs: write new directory block: %w", err)
	}

	metaIdx, err := s.createNodeMetadata(NodeTypeDirectory, 0, 0, 0, 0)
	if err != nil {
		return err
	}
	return s.writeDirectoryNode(parentNode, metaIdx, subIdx, leaf)
}

// Exists reports whether name (a file or directory) is present in its
// parent directory.
func (s *BVFS) Exists(name string) (bool, error) {
	parent, leaf := splitPath(name)
	parentNode, err := s.openDirectory(parent)
	if err != nil {
		return false, err
	}
	_, err = s.findEntry(parentNode, leaf)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Lsdir lists the entry names directly inside dirname.
func (s *BVFS) Lsdir(dirname string) ([]string, error) {
	dirnode, err := s.openDirectory(dirname)
	if err != nil {
		return nil, err
	}
	var names []string
	block := dirnode
	for block != 0 {
		buf, err := s.io.readBlock(block)
		if err != nil {
			return nil, fmt.Errorf("bvfs: read directory block %d: %w", block, err)
		}
		for slot := 0; slot < entriesPerBlock; slot++ {
			e := decodeEntry(buf, slot)
			if !e.empty() {
				names = append(names, e.name)
			}
		}
		block = directoryForward(buf)
	}
	return names, nil
}

// clearEntry zeroes out the slot holding name within the directory
// chain headed by dirnode, without touching the chain's block count.
func (s *BVFS) clearEntry(dirnode uint64, name string) error {
	block := dirnode
	for block != 0 {
		buf, err := s.io.readBlock(block)
		if err != nil {
			return fmt.Errorf("bvfs: read directory block %d: %w", block, err)
		}
		for slot := 0; slot < entriesPerBlock; slot++ {
			e := decodeEntry(buf, slot)
			if !e.empty() && e.name == name {
				clearEntrySlot(buf, slot)
				return s.io.writeBlock(block, buf, true)
			}
		}
		block = directoryForward(buf)
	}
	return newErr(ErrFileNotFound, fmt.Sprintf("bvfs: %q not found", name))
}

// directoryBlockEmpty reports whether every entry slot in buf is empty.
func directoryBlockEmpty(buf []byte) bool {
	for slot := 0; slot < entriesPerBlock; slot++ {
		if !decodeEntry(buf, slot).empty() {
			return false
		}
	}
	return true
}

// compactChain walks the directory chain headed by dirnum and unlinks
// any non-head block that has become fully empty, deallocating it.
//
// The head block of a directory is never removed, since other
// directories hold a subtree pointer to it. prevIdx/prevBuf track the
// last block retained in the output chain, advancing only when a block
// survives; this correctly splices out runs of two or more consecutive
// empty blocks, rather than losing the chain after the first removal
// in such a run.
func (s *BVFS) compactChain(dirnum uint64) error {
	headBuf, err := s.io.readBlock(dirnum)
	if err != nil {
		return fmt.Errorf("bvfs: read directory head %d: %w", dirnum, err)
	}

	prevIdx := dirnum
	prevBuf := headBuf
	block := directoryForward(headBuf)

	for block != 0 {
		buf, err := s.io.readBlock(block)
		if err != nil {
			return fmt.Errorf("bvfs: read directory block %d: %w", block, err)
		}
		next := directoryForward(buf)

		if directoryBlockEmpty(buf) {
			setDirectoryForward(prevBuf, next)
			if err := s.io.writeBlock(prevIdx, prevBuf, true); err != nil {
				return fmt.Errorf("bvfs: relink directory chain: %w", err)
			}
			if err := s.alloc.deallocate(block); err != nil {
				return fmt.Errorf("bvfs: deallocate empty directory block %d: %w", block, err)
			}
		} else {
			prevIdx, prevBuf = block, buf
		}
		block = next
	}
	return nil
}

// Rmdir removes the empty directory dirname. It fails with
// ErrDirectoryNotEmpty if the directory still has entries.
func (s *BVFS) Rmdir(dirname string) error {
	parent, leaf := splitPath(dirname)
	parentNode, err := s.openDirectory(parent)
	if err != nil {
		return err
	}
	entry, err := s.findEntry(parentNode, leaf)
	if err != nil {
		return err
	}
	metaBuf, err := s.io.readBlock(entry.metaPtr)
	if err != nil {
		return fmt.Errorf("bvfs: read metadata for %q: %w", dirname, err)
	}
	if decodeMetadata(metaBuf).ntype != NodeTypeDirectory {
		return newErr(ErrDirectoryNotFound, fmt.Sprintf("bvfs: %q is not a directory", dirname))
	}

	names, err := s.Lsdir(dirname)
	if err != nil {
		return err
	}
	if len(names) > 0 {
		return newErr(ErrDirectoryNotEmpty, fmt.Sprintf("bvfs: %q is not empty", dirname))
	}

	if err := s.alloc.deallocate(entry.subtreePtr); err != nil {
		return fmt.Errorf("bvfs: deallocate directory block: %w", err)
	}
	if err := s.alloc.deallocate(entry.metaPtr); err != nil {
		return fmt.Errorf("bvfs: deallocate node metadata: %w", err)
	}
	if err := s.clearEntry(parentNode, leaf); err != nil {
		return err
	}
	return s.compactChain(parentNode)
}
