package bvfs

import (
	"fmt"
	"io"
)

// File is an open handle to a regular file's content. It implements
// io.Reader, io.Writer, and io.Seeker over the superblock/data-block
// chain described by the file's directory entry.
//
// A freshly created file has no superblock at all (sb0 == 0): the
// first superblock is materialized lazily on the first Write, and the
// directory entry's subtree pointer is back-patched to point at it.
// This mirrors files that are opened for writing but never written to
// staying as zero-length entries with no wasted allocation.
type File struct {
	s *BVFS

	sb0       uint64
	dirnode   uint64
	name      string
	metaPtr   uint64
	writable  bool

	offset int64
	size   uint64
	closed bool
}

// OpenFile opens name for access according to mode:
//
//	"r"  - open an existing file for reading only
//	"w"  - create name (truncating any existing content) for writing
//	"x"  - create name for writing, failing if it already exists
//	"a"  - open an existing file for writing, positioned at its end
func (s *BVFS) OpenFile(name string, mode string) (*File, error) {
	parent, leaf := splitPath(name)
	dirnode, err := s.openDirectory(parent)
	if err != nil {
		return nil, err
	}
	entry, findErr := s.findEntry(dirnode, leaf)
	exists := findErr == nil

	switch mode {
	case "r":
		if !exists {
			return nil, findErr
		}
		metaBuf, err := s.io.readBlock(entry.metaPtr)
		if err != nil {
			return nil, fmt.Errorf("bvfs: read metadata for %q: %w", name, err)
		}
		m := decodeMetadata(metaBuf)
		if m.ntype != NodeTypeFile {
			return nil, newErr(ErrFileNotFound, fmt.Sprintf("bvfs: %q is a directory", name))
		}
		return &File{s: s, sb0: entry.subtreePtr, dirnode: dirnode, name: leaf, metaPtr: entry.metaPtr, writable: false, size: m.size}, nil

	case "w":
		if exists {
			metaBuf, err := s.io.readBlock(entry.metaPtr)
			if err != nil {
				return nil, fmt.Errorf("bvfs: read metadata for %q: %w", name, err)
			}
			m := decodeMetadata(metaBuf)
			if m.ntype != NodeTypeFile {
				return nil, newErr(ErrFileAlreadyExists, fmt.Sprintf("bvfs: %q is a directory", name))
			}
			if entry.subtreePtr != 0 {
				if err := s.freeChain(entry.subtreePtr); err != nil {
					return nil, err
				}
			}
			m.size = 0
			encodeMetadata(metaBuf, m)
			if err := s.io.writeBlock(entry.metaPtr, metaBuf, true); err != nil {
				return nil, err
			}
			if err := s.patchFileSubtree(dirnode, leaf, 0); err != nil {
				return nil, err
			}
			return &File{s: s, sb0: 0, dirnode: dirnode, name: leaf, metaPtr: entry.metaPtr, writable: true, size: 0}, nil
		}
		return s.createFile(dirnode, leaf)

	case "x":
		if exists {
			return nil, newErr(ErrFileAlreadyExists, fmt.Sprintf("bvfs: %q already exists", name))
		}
		return s.createFile(dirnode, leaf)

	case "a":
		if !exists {
			return nil, findErr
		}
		metaBuf, err := s.io.readBlock(entry.metaPtr)
		if err != nil {
			return nil, fmt.Errorf("bvfs: read metadata for %q: %w", name, err)
		}
		m := decodeMetadata(metaBuf)
		if m.ntype != NodeTypeFile {
			return nil, newErr(ErrFileNotFound, fmt.Sprintf("bvfs: %q is a directory", name))
		}
		return &File{s: s, sb0: entry.subtreePtr, dirnode: dirnode, name: leaf, metaPtr: entry.metaPtr, writable: true, size: m.size, offset: int64(m.size)}, nil

	default:
		return nil, fmt.Errorf("bvfs: unknown open mode %q", mode)
	}
}

// createFile allocates a fresh, empty file node named leaf within
// dirnode and returns a writable handle to it.
func (s *BVFS) createFile(dirnode uint64, leaf string) (*File, error) {
	metaIdx, err := s.createNodeMetadata(NodeTypeFile, 0, 0, 0, 0)
	if err != nil {
		return nil, err
	}
	if err := s.writeDirectoryNode(dirnode, metaIdx, 0, leaf); err != nil {
		return nil, err
	}
	return &File{s: s, sb0: 0, dirnode: dirnode, name: leaf, metaPtr: metaIdx, writable: true, size: 0}, nil
}

// patchFileSubtree updates the subtree pointer of the directory entry
// named name within dirnode's chain, leaving its metadata pointer
// untouched. Used to back-patch a file's entry once its first
// superblock is materialized.
func (s *BVFS) patchFileSubtree(dirnode uint64, name string, subtree uint64) error {
	block := dirnode
	for block != 0 {
		buf, err := s.io.readBlock(block)
		if err != nil {
			return fmt.Errorf("bvfs: read directory block %d: %w", block, err)
		}
		for slot := 0; slot < entriesPerBlock; slot++ {
			e := decodeEntry(buf, slot)
			if !e.empty() && e.name == name {
				e.subtreePtr = subtree
				if err := encodeEntry(buf, slot, e); err != nil {
					return err
				}
				return s.io.writeBlock(block, buf, true)
			}
		}
		block = directoryForward(buf)
	}
	return newErr(ErrFileNotFound, fmt.Sprintf("bvfs: %q not found", name))
}

// freeChain deallocates every superblock and data block reachable from
// sb0, following superblock forward pointers.
func (s *BVFS) freeChain(sb0 uint64) error {
	sbIdx := sb0
	for sbIdx != 0 {
		sbBuf, err := s.io.readBlock(sbIdx)
		if err != nil {
			return fmt.Errorf("bvfs: read superblock %d: %w", sbIdx, err)
		}
		for slot := 0; slot < pointersPerSuperblock; slot++ {
			if ptr := superblockPointer(sbBuf, slot); ptr != 0 {
				if err := s.alloc.deallocate(ptr); err != nil {
					return err
				}
			}
		}
		next := superblockForward(sbBuf)
		if err := s.alloc.deallocate(sbIdx); err != nil {
			return err
		}
		sbIdx = next
	}
	return nil
}

// locate resolves byteOffset to its superblock and data block. When
// allocate is true, every missing superblock or data block along the
// way (including the file's very first superblock) is created; when
// false, a missing block yields io.EOF.
func (f *File) locate(byteOffset int64, allocate bool) (sbIdx uint64, sbBuf []byte, dIdx int, dataPtr uint64, dataBuf []byte, posInBlock int, err error) {
	sbSeq := int(byteOffset / superblockCapacity)
	remainder := int(byteOffset % superblockCapacity)
	dIdx = remainder / dataBlockCapacity
	posInBlock = remainder % dataBlockCapacity

	if f.sb0 == 0 {
		if !allocate {
			return 0, nil, 0, 0, nil, 0, io.EOF
		}
		idx, aerr := f.s.alloc.allocate()
		if aerr != nil {
			return 0, nil, 0, 0, nil, 0, aerr
		}
		buf := newSuperblock()
		if werr := f.s.io.writeBlock(idx, buf, true); werr != nil {
			return 0, nil, 0, 0, nil, 0, werr
		}
		if perr := f.s.patchFileSubtree(f.dirnode, f.name, idx); perr != nil {
			return 0, nil, 0, 0, nil, 0, perr
		}
		f.sb0 = idx
	}

	sbIdx = f.sb0
	sbBuf, err = f.s.io.readBlock(sbIdx)
	if err != nil {
		return 0, nil, 0, 0, nil, 0, fmt.Errorf("bvfs: read superblock %d: %w", sbIdx, err)
	}

	for i := 0; i < sbSeq; i++ {
		fwd := superblockForward(sbBuf)
		if fwd == 0 {
			if !allocate {
				return 0, nil, 0, 0, nil, 0, io.EOF
			}
			idx, aerr := f.s.alloc.allocate()
			if aerr != nil {
				return 0, nil, 0, 0, nil, 0, aerr
			}
			newBuf := newSuperblock()
			setSuperblockPrev(newBuf, sbIdx)
			if werr := f.s.io.writeBlock(idx, newBuf, true); werr != nil {
				return 0, nil, 0, 0, nil, 0, werr
			}
			setSuperblockForward(sbBuf, idx)
			if werr := f.s.io.writeBlock(sbIdx, sbBuf, true); werr != nil {
				return 0, nil, 0, 0, nil, 0, werr
			}
			fwd = idx
		}
		sbIdx = fwd
		sbBuf, err = f.s.io.readBlock(sbIdx)
		if err != nil {
			return 0, nil, 0, 0, nil, 0, fmt.Errorf("bvfs: read superblock %d: %w", sbIdx, err)
		}
	}

	dataPtr = superblockPointer(sbBuf, dIdx)
	if dataPtr == 0 {
		if !allocate {
			return 0, nil, 0, 0, nil, 0, io.EOF
		}
		idx, aerr := f.s.alloc.allocate()
		if aerr != nil {
			return 0, nil, 0, 0, nil, 0, aerr
		}
		dataBuf = newDataBlock()
		if werr := f.s.io.writeBlock(idx, dataBuf, true); werr != nil {
			return 0, nil, 0, 0, nil, 0, werr
		}
		setSuperblockPointer(sbBuf, dIdx, idx)
		if werr := f.s.io.writeBlock(sbIdx, sbBuf, true); werr != nil {
			return 0, nil, 0, 0, nil, 0, werr
		}
		dataPtr = idx
		return sbIdx, sbBuf, dIdx, dataPtr, dataBuf, posInBlock, nil
	}

	dataBuf, err = f.s.io.readBlock(dataPtr)
	if err != nil {
		return 0, nil, 0, 0, nil, 0, fmt.Errorf("bvfs: read data block %d: %w", dataPtr, err)
	}
	return sbIdx, sbBuf, dIdx, dataPtr, dataBuf, posInBlock, nil
}

// zeroFillGap materializes every data block between the file's
// current recorded size and its current offset, setting each one's
// content-size to cover the gap (the bytes themselves are already
// zero, since a freshly allocated or never-before-written block
// starts zero). This runs before a Write that starts past the old end
// of file, so the sparse region reads back as zero bytes instead of
// leaving holes in the superblock's data-block pointers.
func (f *File) zeroFillGap() error {
	pos := int64(f.size)
	for pos < f.offset {
		_, _, _, dataPtr, dataBuf, posInBlock, err := f.locate(pos, true)
		if err != nil {
			return err
		}
		blockStart := pos - int64(posInBlock)
		blockEnd := blockStart + dataBlockCapacity
		fillTo := f.offset
		if blockEnd < fillTo {
			fillTo = blockEnd
		}
		newSize := int(fillTo - blockStart)
		if newSize > int(dataContentSize(dataBuf)) {
			setDataContentSize(dataBuf, uint16(newSize))
			if err := f.s.io.writeBlock(dataPtr, dataBuf, true); err != nil {
				return fmt.Errorf("bvfs: zero-fill gap for %q: %w", f.name, err)
			}
		}
		pos = fillTo
	}
	return nil
}

// Write implements io.Writer, extending the file and allocating new
// blocks as needed past the current end of content. Writing past the
// current end of file first zero-fills the gap via zeroFillGap, so
// later reads of the skipped region see zero bytes rather than
// stopping early.
func (f *File) Write(p []byte) (int, error) {
	if !f.writable {
		return 0, fmt.Errorf("bvfs: %q is not open for writing", f.name)
	}
	gapFilled := false
	if uint64(f.offset) > f.size {
		if err := f.zeroFillGap(); err != nil {
			return 0, err
		}
		f.size = uint64(f.offset)
		gapFilled = true
	}
	n := 0
	for n < len(p) {
		_, _, _, dataPtr, dataBuf, posInBlock, err := f.locate(f.offset, true)
		if err != nil {
			return n, err
		}
		space := dataBlockCapacity - posInBlock
		chunk := p[n:]
		if len(chunk) > space {
			chunk = chunk[:space]
		}
		contentStart := headerSize + dataContentOff
		copy(dataBuf[contentStart+posInBlock:], chunk)

		end := posInBlock + len(chunk)
		if end > int(dataContentSize(dataBuf)) {
			setDataContentSize(dataBuf, uint16(end))
		}
		if err := f.s.io.writeBlock(dataPtr, dataBuf, true); err != nil {
			return n, err
		}

		f.offset += int64(len(chunk))
		n += len(chunk)
		if uint64(f.offset) > f.size {
			f.size = uint64(f.offset)
		}
	}
	if n > 0 || gapFilled {
		if err := f.persistSize(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Read implements io.Reader, bounded by the file's recorded size. A
// data block's content-size only covers the bytes actually written to
// it; any remainder of the block up to the next block boundary (and
// still within the file's recorded size) is a zero-filled gap left by
// a sparse write, so Read always advances a full block's worth at a
// time instead of stopping the moment a block's real content runs
// out.
func (f *File) Read(p []byte) (int, error) {
	if uint64(f.offset) >= f.size || len(p) == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := 0
	for n < len(p) && uint64(f.offset) < f.size {
		_, _, _, _, dataBuf, posInBlock, err := f.locate(f.offset, false)
		if err != nil {
			if err == io.EOF {
				break
			}
			return n, err
		}
		contentSize := int(dataContentSize(dataBuf))
		remaining := int(f.size - uint64(f.offset))
		avail := dataBlockCapacity - posInBlock
		if avail > remaining {
			avail = remaining
		}
		chunk := p[n:]
		if len(chunk) > avail {
			chunk = chunk[:avail]
		}

		realLen := contentSize - posInBlock
		if realLen < 0 {
			realLen = 0
		}
		if realLen > len(chunk) {
			realLen = len(chunk)
		}
		contentStart := headerSize + dataContentOff
		if realLen > 0 {
			copy(chunk[:realLen], dataBuf[contentStart+posInBlock:contentStart+posInBlock+realLen])
		}
		for i := realLen; i < len(chunk); i++ {
			chunk[i] = 0
		}

		n += len(chunk)
		f.offset += int64(len(chunk))
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// ReadAll reads the file's entire remaining content from the current
// offset to its end.
func (f *File) ReadAll() ([]byte, error) {
	return io.ReadAll(f)
}

// Seek implements io.Seeker. Seeking past the current end is allowed
// on writable files (the gap is zero-filled lazily by the next
// Write); it is rejected on read-only files.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.offset + offset
	case io.SeekEnd:
		abs = int64(f.size) + offset
	default:
		return 0, fmt.Errorf("bvfs: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("bvfs: negative seek position")
	}
	if !f.writable && uint64(abs) > f.size {
		return 0, fmt.Errorf("bvfs: seek past end of read-only file %q", f.name)
	}
	f.offset = abs
	return abs, nil
}

func (f *File) persistSize() error {
	metaBuf, err := f.s.io.readBlock(f.metaPtr)
	if err != nil {
		return fmt.Errorf("bvfs: read metadata for %q: %w", f.name, err)
	}
	m := decodeMetadata(metaBuf)
	m.size = f.size
	encodeMetadata(metaBuf, m)
	return f.s.io.writeBlock(f.metaPtr, metaBuf, true)
}

// Close flushes the file's recorded size, if it was opened writable.
// Close is idempotent.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	if f.writable {
		return f.persistSize()
	}
	return nil
}

// removeFile deletes the metadata and content chain for a file entry
// already known to be a file, then compacts the parent chain.
func (s *BVFS) removeFile(name string) error {
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
	if decodeMetadata(metaBuf).ntype != NodeTypeFile {
		return newErr(ErrFileNotFound, fmt.Sprintf("bvfs: %q is a directory", name))
	}

	if entry.subtreePtr != 0 {
		if err := s.freeChain(entry.subtreePtr); err != nil {
			return err
		}
	}
	if err := s.alloc.deallocate(entry.metaPtr); err != nil {
		return err
	}
	if err := s.clearEntry(dirnode, leaf); err != nil {
		return err
	}
	return s.compactChain(dirnode)
}

// Remove deletes the file named name.
func (s *BVFS) Remove(name string) error {
	return s.removeFile(name)
}
