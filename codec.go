package bvfs

import (
	"encoding/binary"
	"fmt"
)

// --- root block -------------------------------------------------------

const (
	rootMagicOff   = 0
	rootMagicLen   = 4
	rootVersionOff = 4
	rootDirOff     = 6
	rootLockOff    = 14
)

var rootMagic = [4]byte{'B', 'v', 'F', 's'}

type rootBlock struct {
	version uint16
	rootDir uint64
	locked  bool
}

func encodeRoot(rootDir uint64, locked bool) []byte {
	b := newBlock(BlockTypeRoot)
	payload := b[headerSize:]
	copy(payload[rootMagicOff:rootMagicOff+rootMagicLen], rootMagic[:])
	binary.BigEndian.PutUint16(payload[rootVersionOff:], FSVersion)
	binary.BigEndian.PutUint64(payload[rootDirOff:], rootDir)
	if locked {
		payload[rootLockOff] = 255
	} else {
		payload[rootLockOff] = 0
	}
	return b
}

func decodeRoot(b []byte) (rootBlock, error) {
	payload := b[headerSize:]
	if string(payload[rootMagicOff:rootMagicOff+rootMagicLen]) != string(rootMagic[:]) {
		return rootBlock{}, newErr(ErrMagic, "bvfs: root block magic mismatch")
	}
	version := binary.BigEndian.Uint16(payload[rootVersionOff:])
	if version > FSVersion {
		return rootBlock{}, newErr(ErrVersion, fmt.Sprintf("bvfs: unsupported format version %d", version))
	}
	return rootBlock{
		version: version,
		rootDir: binary.BigEndian.Uint64(payload[rootDirOff:]),
		locked:  payload[rootLockOff] != 0,
	}, nil
}

func setRootLock(b []byte, locked bool) {
	payload := b[headerSize:]
	if locked {
		payload[rootLockOff] = 255
	} else {
		payload[rootLockOff] = 0
	}
}

func setRootDir(b []byte, rootDir uint64) {
	binary.BigEndian.PutUint64(b[headerSize+rootDirOff:], rootDir)
}

// --- directory block ----------------------------------------------------

const (
	dirFwdOff     = 0
	dirEntriesOff = 8

	entryMetaPtrOff   = 0
	entrySubtreePtrOff = 8
	entryNameOff      = 16
)

func newDirectoryBlock() []byte {
	return newBlock(BlockTypeDirectory)
}

func directoryForward(b []byte) uint64 {
	return binary.BigEndian.Uint64(b[headerSize+dirFwdOff:])
}

func setDirectoryForward(b []byte, ptr uint64) {
	binary.BigEndian.PutUint64(b[headerSize+dirFwdOff:], ptr)
}

func entryOffset(slot int) int {
	return headerSize + dirEntriesOff + slot*entrySize
}

// dirEntry is the decoded form of one 124-byte directory-entry slot.
type dirEntry struct {
	metaPtr    uint64
	subtreePtr uint64
	name       string
}

func (e dirEntry) empty() bool {
	return e.metaPtr == 0
}

func decodeEntry(b []byte, slot int) dirEntry {
	off := entryOffset(slot)
	raw := b[off : off+entrySize]
	metaPtr := binary.BigEndian.Uint64(raw[entryMetaPtrOff:])
	subtreePtr := binary.BigEndian.Uint64(raw[entrySubtreePtrOff:])
	nameBytes := raw[entryNameOff : entryNameOff+entryNameMax]
	nul := len(nameBytes)
	for i, c := range nameBytes {
		if c == 0 {
			nul = i
			break
		}
	}
	return dirEntry{metaPtr: metaPtr, subtreePtr: subtreePtr, name: string(nameBytes[:nul])}
}

func encodeEntry(b []byte, slot int, e dirEntry) error {
	if len(e.name) > entryNameMax {
		return fmt.Errorf("bvfs: name %q exceeds %d bytes", e.name, entryNameMax)
	}
	off := entryOffset(slot)
	raw := b[off : off+entrySize]
	for i := range raw {
		raw[i] = 0
	}
	binary.BigEndian.PutUint64(raw[entryMetaPtrOff:], e.metaPtr)
	binary.BigEndian.PutUint64(raw[entrySubtreePtrOff:], e.subtreePtr)
	copy(raw[entryNameOff:entryNameOff+entryNameMax], []byte(e.name))
	return nil
}

func clearEntrySlot(b []byte, slot int) {
	off := entryOffset(slot)
	raw := b[off : off+entrySize]
	for i := range raw {
		raw[i] = 0
	}
}

// --- node metadata block -------------------------------------------------

const (
	metaPermsOff = 0
	metaGroupOff = 2
	metaUserOff  = 6
	metaSizeOff  = 10
	metaTypeOff  = 18
)

type nodeMetadata struct {
	perms uint16
	group uint32
	user  uint32
	size  uint64
	ntype byte
}

func newMetadataBlock(m nodeMetadata) []byte {
	b := newBlock(BlockTypeMetadata)
	encodeMetadata(b, m)
	return b
}

func encodeMetadata(b []byte, m nodeMetadata) {
	payload := b[headerSize:]
	binary.BigEndian.PutUint16(payload[metaPermsOff:], m.perms)
	binary.BigEndian.PutUint32(payload[metaGroupOff:], m.group)
	binary.BigEndian.PutUint32(payload[metaUserOff:], m.user)
	binary.BigEndian.PutUint64(payload[metaSizeOff:], m.size)
	payload[metaTypeOff] = m.ntype
}

func decodeMetadata(b []byte) nodeMetadata {
	payload := b[headerSize:]
	return nodeMetadata{
		perms: binary.BigEndian.Uint16(payload[metaPermsOff:]),
		group: binary.BigEndian.Uint32(payload[metaGroupOff:]),
		user:  binary.BigEndian.Uint32(payload[metaUserOff:]),
		size:  binary.BigEndian.Uint64(payload[metaSizeOff:]),
		ntype: payload[metaTypeOff],
	}
}

// --- superblock -----------------------------------------------------------

const (
	superblockPrevOff    = 0
	superblockForwardOff = 8
	superblockPointersOff = 16
)

func newSuperblock() []byte {
	return newBlock(BlockTypeSuperblock)
}

func superblockPrev(b []byte) uint64 {
	return binary.BigEndian.Uint64(b[headerSize+superblockPrevOff:])
}

func setSuperblockPrev(b []byte, ptr uint64) {
	binary.BigEndian.PutUint64(b[headerSize+superblockPrevOff:], ptr)
}

func superblockForward(b []byte) uint64 {
	return binary.BigEndian.Uint64(b[headerSize+superblockForwardOff:])
}

func setSuperblockForward(b []byte, ptr uint64) {
	binary.BigEndian.PutUint64(b[headerSize+superblockForwardOff:], ptr)
}

func superblockPointer(b []byte, slot int) uint64 {
	off := headerSize + superblockPointersOff + slot*8
	return binary.BigEndian.Uint64(b[off:])
}

func setSuperblockPointer(b []byte, slot int, ptr uint64) {
	off := headerSize + superblockPointersOff + slot*8
	binary.BigEndian.PutUint64(b[off:], ptr)
}

// --- data block -------------------------------------------------------

const (
	dataSizeOff    = 0
	dataContentOff = 2
)

func newDataBlock() []byte {
	return newBlock(BlockTypeData)
}

func dataContentSize(b []byte) uint16 {
	return binary.BigEndian.Uint16(b[headerSize+dataSizeOff:])
}

func setDataContentSize(b []byte, n uint16) {
	binary.BigEndian.PutUint16(b[headerSize+dataSizeOff:], n)
}

func dataContent(b []byte) []byte {
	n := dataContentSize(b)
	start := headerSize + dataContentOff
	return b[start : start+int(n)]
}

func setDataContent(b []byte, content []byte) error {
	if len(content) > dataBlockCapacity {
		return fmt.Errorf("bvfs: data block content of %d bytes exceeds capacity %d", len(content), dataBlockCapacity)
	}
	setDataContentSize(b, uint16(len(content)))
	start := headerSize + dataContentOff
	copy(b[start:start+len(content)], content)
	return nil
}
