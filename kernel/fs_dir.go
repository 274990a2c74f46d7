package main

import "unsafe"

// Root directory operations. The root directory is itself stored as a
// sequence of 16-byte directory entries in the root inode's data blocks,
// scanned in order across direct/indirect/double-indirect references
// exactly like file data.

const dirEntriesPerBlock = ktfsBlkSz / ktfsDenSz

// readRootInode reloads the cached root inode record from disk.
func (fs *fileSystem) readRootInode() int {
	return fs.readInode(fs.sb.rootDirInode, &fs.rootInode)
}

func (fs *fileSystem) writeRootInode() int {
	return fs.writeInode(fs.sb.rootDirInode, &fs.rootInode)
}

func (fs *fileSystem) dirEntryCount() uint32 {
	return fs.rootInode.size / ktfsDenSz
}

// dirEntryAt loads directory entry index i (0-based) of the root
// directory.
func (fs *fileSystem) dirEntryAt(i uint32) (ktfsDirEntry, int) {
	fbn := i / dirEntriesPerBlock
	off := uintptr(i%dirEntriesPerBlock) * ktfsDenSz
	dataBlk, rc := fs.fileBlockToDataBlock(&fs.rootInode, fs.sb.rootDirInode, fbn, false)
	if rc != 0 || dataBlk == 0 {
		return ktfsDirEntry{}, -ENOENT
	}
	ptr, rc := fs.cache.cacheGetBlock(int64(dataBlk))
	if rc != 0 {
		return ktfsDirEntry{}, rc
	}
	e := *(*ktfsDirEntry)(unsafe.Pointer(ptr + off))
	fs.cache.cacheReleaseBlock(ptr, false)
	return e, 0
}

func (fs *fileSystem) setDirEntryAt(i uint32, e ktfsDirEntry) int {
	fbn := i / dirEntriesPerBlock
	off := uintptr(i%dirEntriesPerBlock) * ktfsDenSz
	dataBlk, rc := fs.fileBlockToDataBlock(&fs.rootInode, fs.sb.rootDirInode, fbn, true)
	if rc != 0 {
		return rc
	}
	ptr, rc := fs.cache.cacheGetBlock(int64(dataBlk))
	if rc != 0 {
		return rc
	}
	*(*ktfsDirEntry)(unsafe.Pointer(ptr + off)) = e
	fs.cache.cacheReleaseBlock(ptr, true)
	return 0
}

// findDirEntry scans the root directory for a name match, returning the
// entry index and its contents, or -ENOENT.
func (fs *fileSystem) findDirEntry(name string) (uint32, ktfsDirEntry, int) {
	n := fs.dirEntryCount()
	for i := uint32(0); i < n; i++ {
		e, rc := fs.dirEntryAt(i)
		if rc != 0 {
			return 0, ktfsDirEntry{}, rc
		}
		if goString(e.name[:]) == name {
			return i, e, 0
		}
	}
	return 0, ktfsDirEntry{}, -ENOENT
}

// inodeNumberInUse reports whether ino appears in any existing directory
// entry (used by fsCreate's free-inode search).
func (fs *fileSystem) inodeNumberInUse(ino uint16) bool {
	n := fs.dirEntryCount()
	for i := uint32(0); i < n; i++ {
		e, rc := fs.dirEntryAt(i)
		if rc == 0 && e.inode == ino {
			return true
		}
	}
	return false
}

// appendDirEntry appends a directory entry, allocating a new directory
// data block if the last one is full, then updates the root inode's size.
func (fs *fileSystem) appendDirEntry(e ktfsDirEntry) int {
	n := fs.dirEntryCount()
	if rc := fs.setDirEntryAt(n, e); rc != 0 {
		return rc
	}
	fs.rootInode.size += ktfsDenSz
	return fs.writeRootInode()
}

// removeDirEntrySwap swaps the entry at idx with the last directory entry
// and shrinks the directory by one; frees the last data block if it held
// only that one swapped-out entry.
func (fs *fileSystem) removeDirEntrySwap(idx uint32) int {
	n := fs.dirEntryCount()
	last := n - 1
	if idx != last {
		lastEntry, rc := fs.dirEntryAt(last)
		if rc != 0 {
			return rc
		}
		if rc := fs.setDirEntryAt(idx, lastEntry); rc != 0 {
			return rc
		}
	}
	fs.rootInode.size -= ktfsDenSz
	if rc := fs.writeRootInode(); rc != 0 {
		return rc
	}
	if fs.rootInode.size%ktfsBlkSz == 0 {
		lastFbn := last / dirEntriesPerBlock
		dataBlk, rc := fs.fileBlockToDataBlock(&fs.rootInode, fs.sb.rootDirInode, lastFbn, false)
		if rc == 0 && dataBlk != 0 {
			fs.freeDataBlock(dataBlk)
			fs.clearBlockRef(lastFbn)
		}
	}
	return 0
}

// clearBlockRef zeroes the reference to file-block fbn of the root
// directory (in the root inode or in the index block that holds it),
// undoing what fileBlockToDataBlock(alloc=true) installed, so a later
// append doesn't collide with a freed-but-still-referenced block. The
// index blocks themselves stay allocated.
func (fs *fileSystem) clearBlockRef(fbn uint32) {
	if fbn < ktfsNumDirect {
		fs.rootInode.direct[fbn] = 0
		fs.writeRootInode()
		return
	}
	fbn -= ktfsNumDirect
	if fbn < entriesPerIndirectBlock {
		fs.writeIndirectEntry(fs.rootInode.indirect, fbn, 0)
		return
	}
	fbn -= entriesPerIndirectBlock
	span := uint32(entriesPerIndirectBlock * entriesPerIndirectBlock)
	dind := fs.rootInode.dindirect[fbn/span]
	if ind, rc := fs.readIndirectEntry(dind, (fbn%span)/entriesPerIndirectBlock); rc == 0 && ind != 0 {
		fs.writeIndirectEntry(ind, fbn%entriesPerIndirectBlock, 0)
	}
}
