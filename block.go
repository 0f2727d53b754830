package bvfs

// newBlock allocates a zeroed block buffer with its type tag set. The
// remaining 23 reserved header bytes and the full payload start zero,
// which codecs rely on instead of re-zeroing fields they don't set.
func newBlock(btype BlockType) []byte {
	b := make([]byte, BlockSize)
	b[0] = byte(btype)
	return b
}

// fitBlock pads or truncates data to exactly BlockSize bytes.
func fitBlock(data []byte) []byte {
	b := make([]byte, BlockSize)
	copy(b, data)
	return b
}

func blockType(b []byte) BlockType { return BlockType(b[0]) }
