package main

import (
	"testing"
	"unsafe"
)

func TestBitmapLocate(t *testing.T) {
	cases := []struct {
		block              uint32
		blkIdx, byteIdx, bitIdx uint32
	}{
		{0, 0, 0, 0},
		{1, 0, 0, 1},
		{7, 0, 0, 7},
		{8, 0, 1, 0},
		{ktfsBlkSz*8 - 1, 0, ktfsBlkSz - 1, 7},
		{ktfsBlkSz * 8, 1, 0, 0},
		{ktfsBlkSz*8 + 9, 1, 1, 1},
	}
	for _, c := range cases {
		blkIdx, byteIdx, bitIdx := bitmapLocate(c.block)
		if blkIdx != c.blkIdx || byteIdx != c.byteIdx || bitIdx != c.bitIdx {
			t.Errorf("bitmapLocate(%d) = (%d,%d,%d), want (%d,%d,%d)",
				c.block, blkIdx, byteIdx, bitIdx, c.blkIdx, c.byteIdx, c.bitIdx)
		}
	}
}

func TestInodeAndDirentSizes(t *testing.T) {
	if sz := int(unsafe.Sizeof(ktfsInode{})); sz != ktfsInoSz {
		t.Errorf("ktfsInode size = %d, want %d", sz, ktfsInoSz)
	}
	if sz := int(unsafe.Sizeof(ktfsDirEntry{})); sz != ktfsDenSz {
		t.Errorf("ktfsDirEntry size = %d, want %d", sz, ktfsDenSz)
	}
}

func TestMaxFileBlocksMatchesLayout(t *testing.T) {
	want := ktfsNumDirect + entriesPerIndirectBlock +
		ktfsNumDind*entriesPerIndirectBlock*entriesPerIndirectBlock
	if maxFileBlocks != want {
		t.Errorf("maxFileBlocks = %d, want %d", maxFileBlocks, want)
	}
}
