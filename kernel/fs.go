package main

import "unsafe"

// KTFS file system: superblock + bitmap + inode table + root directory
// over a block cache bound to a backing I/O endpoint (normally the
// VirtIO block driver).

const maxOpenFiles = 16

type openFileSlot struct {
	inUse    bool
	ino      uint16
	name     [ktfsMaxNameLen]byte
}

type fileSystem struct {
	backing   ioRef
	cache     *blockCache
	sb        ktfsSuperblock
	rootInode ktfsInode
	openFiles [maxOpenFiles]openFileSlot
}

var rootFS *fileSystem

// mountFS reads the superblock, reads the root inode, retains a reference
// to the backing endpoint, and initializes the block cache over it.
func mountFS(backing ioRef) (*fileSystem, int) {
	fs := &fileSystem{backing: ioAddRef(backing)}
	fs.cache = createCache(fs.backing)

	ptr, rc := fs.cache.cacheGetBlock(0)
	if rc != 0 {
		return nil, rc
	}
	fs.sb = *(*ktfsSuperblock)(unsafe.Pointer(ptr))
	fs.cache.cacheReleaseBlock(ptr, false)

	if rc := fs.readRootInode(); rc != 0 {
		return nil, rc
	}
	return fs, 0
}

// fsOpen scans the root directory for name, allocates a file record, wraps
// it in a seekable endpoint, and registers it in the open-file list. Fails
// EMFILE if already open or not found; the distinct -ENOENT is used
// internally by findDirEntry and mapped to EMFILE here for the syscall
// surface.
func (fs *fileSystem) fsOpen(name string) (ioRef, int) {
	for i := range fs.openFiles {
		if fs.openFiles[i].inUse && goString(fs.openFiles[i].name[:]) == name {
			return ioRef{}, -EMFILE
		}
	}
	_, entry, rc := fs.findDirEntry(name)
	if rc != 0 {
		return ioRef{}, -EMFILE
	}

	var slot *openFileSlot
	for i := range fs.openFiles {
		if !fs.openFiles[i].inUse {
			slot = &fs.openFiles[i]
			break
		}
	}
	if slot == nil {
		return ioRef{}, -EMFILE
	}
	slot.inUse = true
	slot.ino = entry.inode
	putString(slot.name[:], name)

	f := &fileEndpoint{fs: fs, ino: entry.inode, slot: slot}
	raw := newIoRef(f, func() { slot.inUse = false })
	return createSeekableIO(raw), 0
}

// fileEndpoint is the raw (unseekable) per-open-file backing object;
// fsOpen wraps it in a seekable endpoint so callers use positional
// read/write like every other endpoint variant.
type fileEndpoint struct {
	baseEndpoint
	fs   *fileSystem
	ino  uint16
	slot *openFileSlot
}

func (f *fileEndpoint) ioClose() {}

func (f *fileEndpoint) ioCntl(cmd int, arg uintptr) int {
	var inode ktfsInode
	if rc := f.fs.readInode(f.ino, &inode); rc != 0 {
		return rc
	}
	switch cmd {
	case IOCTL_GETBLKSZ:
		return ktfsBlkSz
	case IOCTL_GETEND:
		*(*uint64)(unsafe.Pointer(arg)) = uint64(inode.size)
		return 0
	case IOCTL_SETEND:
		newSize := *(*uint64)(unsafe.Pointer(arg))
		return f.fs.setEnd(f.ino, &inode, uint32(newSize))
	default:
		return -ENOTSUP
	}
}

// setEnd extends the file, allocating new data blocks as needed. Shrinking
// is accepted too, but simply leaves now-unreferenced blocks beyond the
// new size allocated; there is no on-disk deallocation-by-shrink.
func (fs *fileSystem) setEnd(ino uint16, inode *ktfsInode, newSize uint32) int {
	if uint64(newSize) > uint64(maxFileBlocks)*ktfsBlkSz {
		return -EINVAL
	}
	oldBlocks := (inode.size + ktfsBlkSz - 1) / ktfsBlkSz
	newBlocks := (newSize + ktfsBlkSz - 1) / ktfsBlkSz
	for fbn := oldBlocks; fbn < newBlocks; fbn++ {
		if _, rc := fs.fileBlockToDataBlock(inode, ino, fbn, true); rc != 0 {
			return rc
		}
	}
	inode.size = newSize
	return fs.writeInode(ino, inode)
}

// ioReadAt/ioWriteAt identify the byte-range touched, translate each
// file-relative block number to a data block, fetch it via the cache, and
// copy bytes to/from the caller's buffer. Read clamps to EOF; write is
// clamped to stay within the existing file size — extension only happens
// through SETEND.
func (f *fileEndpoint) ioReadAt(pos uint64, buf uintptr, n int) int {
	var inode ktfsInode
	if rc := f.fs.readInode(f.ino, &inode); rc != 0 {
		return rc
	}
	if pos >= uint64(inode.size) {
		return 0
	}
	avail := uint64(inode.size) - pos
	if uint64(n) > avail {
		n = int(avail)
	}
	return f.fs.copyBlocks(&inode, f.ino, pos, buf, n, false)
}

func (f *fileEndpoint) ioWriteAt(pos uint64, buf uintptr, n int) int {
	var inode ktfsInode
	if rc := f.fs.readInode(f.ino, &inode); rc != 0 {
		return rc
	}
	if pos >= uint64(inode.size) {
		return 0
	}
	avail := uint64(inode.size) - pos
	if uint64(n) > avail {
		n = int(avail)
	}
	return f.fs.copyBlocks(&inode, f.ino, pos, buf, n, true)
}

// copyBlocks walks [pos, pos+n) a block at a time, copying to/from buf via
// the cache, writing dirty on write and clean on read.
func (fs *fileSystem) copyBlocks(inode *ktfsInode, ino uint16, pos uint64, buf uintptr, n int, write bool) int {
	total := 0
	for total < n {
		fbn := uint32((pos + uint64(total)) / ktfsBlkSz)
		blkOff := uintptr((pos + uint64(total)) % ktfsBlkSz)
		chunk := int(ktfsBlkSz - uint64(blkOff))
		if chunk > n-total {
			chunk = n - total
		}

		dataBlk, rc := fs.fileBlockToDataBlock(inode, ino, fbn, false)
		if rc != 0 {
			return rc
		}
		if dataBlk == 0 {
			// A hole: treat as zero-filled on read, skip on write (can't
			// happen for write since range is clamped to existing size,
			// whose blocks are always allocated).
			if !write {
				memset(buf+uintptr(total), 0, uint(chunk))
			}
			total += chunk
			continue
		}

		ptr, rc := fs.cache.cacheGetBlock(int64(dataBlk))
		if rc != 0 {
			return rc
		}
		if write {
			memcpy(ptr+blkOff, buf+uintptr(total), uint(chunk))
		} else {
			memcpy(buf+uintptr(total), ptr+blkOff, uint(chunk))
		}
		fs.cache.cacheReleaseBlock(ptr, write)
		total += chunk
	}
	return total
}

// fsCreate allocates a free inode and appends a directory entry for name.
func (fs *fileSystem) fsCreate(name string) int {
	if len(name) >= ktfsMaxNameLen {
		return -EINVAL
	}
	if _, _, rc := fs.findDirEntry(name); rc == 0 {
		return -EMFILE
	}

	perBlock := uint32(ktfsBlkSz / ktfsInoSz)
	maxInodes := fs.sb.inodeBlockCount * perBlock
	var freeIno uint16 = 0xFFFF
	for ino := uint16(1); uint32(ino) < maxInodes; ino++ {
		if ino == fs.sb.rootDirInode || fs.inodeNumberInUse(ino) {
			continue
		}
		freeIno = ino
		break
	}
	if freeIno == 0xFFFF {
		return -ENOINODEBLKS
	}

	var inode ktfsInode
	if rc := fs.writeInode(freeIno, &inode); rc != 0 {
		return rc
	}

	var e ktfsDirEntry
	e.inode = freeIno
	putString(e.name[:], name)
	return fs.appendDirEntry(e)
}

// fsDelete closes any open handle for the name first, frees every data
// block the file references, and swaps the entry out of the directory.
func (fs *fileSystem) fsDelete(name string) int {
	for i := range fs.openFiles {
		if fs.openFiles[i].inUse && goString(fs.openFiles[i].name[:]) == name {
			fs.openFiles[i].inUse = false
		}
	}
	idx, entry, rc := fs.findDirEntry(name)
	if rc != 0 {
		return -ENOENT
	}
	var inode ktfsInode
	if rc := fs.readInode(entry.inode, &inode); rc != 0 {
		return rc
	}
	fs.freeInodeBlocks(&inode)
	return fs.removeDirEntrySwap(idx)
}

// fsFlush is a no-op under write-through.
func (fs *fileSystem) fsFlush() int { return fs.cache.cacheFlush() }
