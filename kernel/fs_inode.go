package main

import "unsafe"

// On-disk layout: packed structs read/written directly against cached
// block buffers via unsafe.Pointer, the same way the page-table and
// trap-frame code treats memory as typed structs in place.
const (
	ktfsBlkSz       = 512
	ktfsInoSz       = 32
	ktfsDenSz       = 16
	ktfsMaxNameLen  = ktfsDenSz - 2 // inode(u16) leaves 14 bytes for name
	ktfsNumDirect   = 3
	ktfsNumIndirect = 1
	ktfsNumDind     = 2

	entriesPerIndirectBlock = ktfsBlkSz / 4 // 128 uint32 block pointers

	// Structural maximum file size in blocks: 3 direct + 128 single
	// indirect + 2*128*128 double indirect.
	maxFileBlocks = ktfsNumDirect + entriesPerIndirectBlock +
		ktfsNumDind*entriesPerIndirectBlock*entriesPerIndirectBlock
)

type ktfsSuperblock struct {
	blockCount       uint32
	bitmapBlockCount uint32
	inodeBlockCount  uint32
	rootDirInode     uint16
}

type ktfsInode struct {
	size      uint32
	flags     uint32
	direct    [ktfsNumDirect]uint32
	indirect  uint32
	dindirect [ktfsNumDind]uint32
}

const ktfsFileInUse = 1 << 0

type ktfsDirEntry struct {
	inode uint16
	name  [ktfsMaxNameLen]byte
}

// init asserts the packed structs above actually match their on-disk
// sizes; a mismatch here means a field was added or the platform padded
// the struct, and every block offset computed below would be wrong.
func init() {
	if unsafe.Sizeof(ktfsInode{}) != ktfsInoSz {
		panic("fs_inode: ktfsInode size does not match ktfsInoSz")
	}
	if unsafe.Sizeof(ktfsDirEntry{}) != ktfsDenSz {
		panic("fs_inode: ktfsDirEntry size does not match ktfsDenSz")
	}
}

// bitmapLocate: bit i within byte j of bitmap block k locates block
// k*4096 + j*8 + i.
func bitmapLocate(block uint32) (blkIdx, byteIdx, bitIdx uint32) {
	blkIdx = block / (ktfsBlkSz * 8)
	rem := block % (ktfsBlkSz * 8)
	byteIdx = rem / 8
	bitIdx = rem % 8
	return
}

// allocDataBlock finds a free block in the bitmap, marks it in use, and
// returns its absolute block number; returns -ENODATABLKS if none free.
func (fs *fileSystem) allocDataBlock() (uint32, int) {
	for b := fs.firstDataBlock(); b < fs.sb.blockCount; b++ {
		blkIdx, byteIdx, bitIdx := bitmapLocate(b)
		ptr, rc := fs.cache.cacheGetBlock(int64(1 + blkIdx))
		if rc != 0 {
			return 0, rc
		}
		bytePtr := (*byte)(unsafe.Pointer(ptr + uintptr(byteIdx)))
		if *bytePtr&(1<<bitIdx) == 0 {
			*bytePtr |= 1 << bitIdx
			fs.cache.cacheReleaseBlock(ptr, true)
			return b, 0
		}
		fs.cache.cacheReleaseBlock(ptr, false)
	}
	return 0, -ENODATABLKS
}

func (fs *fileSystem) freeDataBlock(b uint32) {
	blkIdx, byteIdx, bitIdx := bitmapLocate(b)
	ptr, rc := fs.cache.cacheGetBlock(int64(1 + blkIdx))
	if rc != 0 {
		return
	}
	bytePtr := (*byte)(unsafe.Pointer(ptr + uintptr(byteIdx)))
	*bytePtr &^= 1 << bitIdx
	fs.cache.cacheReleaseBlock(ptr, true)
}

func (fs *fileSystem) firstDataBlock() uint32 {
	return 1 + fs.sb.bitmapBlockCount + fs.sb.inodeBlockCount
}

func (fs *fileSystem) inodeBlockAndOffset(ino uint16) (int64, uintptr) {
	perBlock := uint32(ktfsBlkSz / ktfsInoSz)
	blk := int64(1 + fs.sb.bitmapBlockCount + uint32(ino)/perBlock)
	off := uintptr(uint32(ino)%perBlock) * ktfsInoSz
	return blk, off
}

func (fs *fileSystem) readInode(ino uint16, out *ktfsInode) int {
	blk, off := fs.inodeBlockAndOffset(ino)
	ptr, rc := fs.cache.cacheGetBlock(blk)
	if rc != 0 {
		return rc
	}
	*out = *(*ktfsInode)(unsafe.Pointer(ptr + off))
	fs.cache.cacheReleaseBlock(ptr, false)
	return 0
}

func (fs *fileSystem) writeInode(ino uint16, in *ktfsInode) int {
	blk, off := fs.inodeBlockAndOffset(ino)
	ptr, rc := fs.cache.cacheGetBlock(blk)
	if rc != 0 {
		return rc
	}
	*(*ktfsInode)(unsafe.Pointer(ptr + off)) = *in
	fs.cache.cacheReleaseBlock(ptr, true)
	return 0
}

// fileBlockToDataBlock translates a file-relative block number to an
// absolute data-block index through direct/indirect/double-indirect
// references. alloc, if true, allocates any missing intermediate or leaf
// blocks along the way (used by SETEND).
func (fs *fileSystem) fileBlockToDataBlock(inode *ktfsInode, ino uint16, fbn uint32, alloc bool) (uint32, int) {
	if fbn < ktfsNumDirect {
		if inode.direct[fbn] == 0 && alloc {
			b, rc := fs.allocDataBlock()
			if rc != 0 {
				return 0, rc
			}
			inode.direct[fbn] = b
			fs.writeInode(ino, inode)
		}
		return inode.direct[fbn], 0
	}
	fbn -= ktfsNumDirect

	if fbn < entriesPerIndirectBlock {
		return fs.throughIndirect(&inode.indirect, ino, inode, fbn, alloc)
	}
	fbn -= entriesPerIndirectBlock

	dindIdx := fbn / (entriesPerIndirectBlock * entriesPerIndirectBlock)
	if dindIdx >= ktfsNumDind {
		return 0, -EINVAL
	}
	fbn %= entriesPerIndirectBlock * entriesPerIndirectBlock

	dindBlockPtr := &inode.dindirect[dindIdx]
	if *dindBlockPtr == 0 {
		if !alloc {
			return 0, 0
		}
		b, rc := fs.allocDataBlock()
		if rc != 0 {
			return 0, rc
		}
		*dindBlockPtr = b
		fs.zeroBlock(b)
		fs.writeInode(ino, inode)
	}
	indIdx := fbn / entriesPerIndirectBlock
	innerFbn := fbn % entriesPerIndirectBlock

	indBlockNum, rc := fs.readIndirectEntry(*dindBlockPtr, indIdx)
	if rc != 0 {
		return 0, rc
	}
	if indBlockNum == 0 {
		if !alloc {
			return 0, 0
		}
		b, rc := fs.allocDataBlock()
		if rc != 0 {
			return 0, rc
		}
		fs.zeroBlock(b)
		if rc := fs.writeIndirectEntry(*dindBlockPtr, indIdx, b); rc != 0 {
			return 0, rc
		}
		indBlockNum = b
	}
	return fs.readIndirectEntry(indBlockNum, innerFbn)
}

func (fs *fileSystem) throughIndirect(indBlockPtr *uint32, ino uint16, inode *ktfsInode, idx uint32, alloc bool) (uint32, int) {
	if *indBlockPtr == 0 {
		if !alloc {
			return 0, 0
		}
		b, rc := fs.allocDataBlock()
		if rc != 0 {
			return 0, rc
		}
		*indBlockPtr = b
		fs.zeroBlock(b)
		fs.writeInode(ino, inode)
	}
	entry, rc := fs.readIndirectEntry(*indBlockPtr, idx)
	if rc != 0 {
		return 0, rc
	}
	if entry == 0 && alloc {
		b, rc := fs.allocDataBlock()
		if rc != 0 {
			return 0, rc
		}
		if rc := fs.writeIndirectEntry(*indBlockPtr, idx, b); rc != 0 {
			return 0, rc
		}
		entry = b
	}
	return entry, 0
}

func (fs *fileSystem) readIndirectEntry(indBlock uint32, idx uint32) (uint32, int) {
	ptr, rc := fs.cache.cacheGetBlock(int64(indBlock))
	if rc != 0 {
		return 0, rc
	}
	v := *(*uint32)(unsafe.Pointer(ptr + uintptr(idx)*4))
	fs.cache.cacheReleaseBlock(ptr, false)
	return v, 0
}

func (fs *fileSystem) writeIndirectEntry(indBlock uint32, idx uint32, val uint32) int {
	ptr, rc := fs.cache.cacheGetBlock(int64(indBlock))
	if rc != 0 {
		return rc
	}
	*(*uint32)(unsafe.Pointer(ptr + uintptr(idx)*4)) = val
	fs.cache.cacheReleaseBlock(ptr, true)
	return 0
}

func (fs *fileSystem) zeroBlock(b uint32) {
	ptr, rc := fs.cache.cacheGetBlock(int64(b))
	if rc != 0 {
		return
	}
	memset(ptr, 0, ktfsBlkSz)
	fs.cache.cacheReleaseBlock(ptr, true)
}

// freeInodeBlocks frees every data block the inode references (direct,
// indirect, double-indirect, plus the indirect/dindirect blocks
// themselves), used by delete.
func (fs *fileSystem) freeInodeBlocks(inode *ktfsInode) {
	for _, b := range inode.direct {
		if b != 0 {
			fs.freeDataBlock(b)
		}
	}
	if inode.indirect != 0 {
		fs.freeIndirectBlock(inode.indirect)
		fs.freeDataBlock(inode.indirect)
	}
	for _, dind := range inode.dindirect {
		if dind == 0 {
			continue
		}
		for i := uint32(0); i < entriesPerIndirectBlock; i++ {
			ind, rc := fs.readIndirectEntry(dind, i)
			if rc == 0 && ind != 0 {
				fs.freeIndirectBlock(ind)
				fs.freeDataBlock(ind)
			}
		}
		fs.freeDataBlock(dind)
	}
}

func (fs *fileSystem) freeIndirectBlock(indBlock uint32) {
	for i := uint32(0); i < entriesPerIndirectBlock; i++ {
		b, rc := fs.readIndirectEntry(indBlock, i)
		if rc == 0 && b != 0 {
			fs.freeDataBlock(b)
		}
	}
}
