package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ktfsWriter mutates an in-memory image buffer the way the kernel's block
// cache + fs_inode.go/fs_dir.go mutate cached blocks, except synchronously
// and directly against a byte slice instead of through cacheGetBlock.
type ktfsWriter struct {
	img []byte
	sb  superblock
}

func (w *ktfsWriter) blockOff(b uint32) int { return int(b) * blockSize }

func (w *ktfsWriter) readBlock(b uint32) []byte {
	off := w.blockOff(b)
	return w.img[off : off+blockSize]
}

func (w *ktfsWriter) firstDataBlock() uint32 {
	return 1 + w.sb.BitmapBlockCount + w.sb.InodeBlockCount
}

func (w *ktfsWriter) inodeBlockAndOffset(ino uint16) (uint32, int) {
	perBlock := uint32(blockSize / inodeSize)
	blk := 1 + w.sb.BitmapBlockCount + uint32(ino)/perBlock
	off := int(uint32(ino)%perBlock) * inodeSize
	return blk, off
}

func (w *ktfsWriter) readInode(ino uint16) (inode, error) {
	blk, off := w.inodeBlockAndOffset(ino)
	var in inode
	r := bytes.NewReader(w.readBlock(blk)[off : off+inodeSize])
	if err := binary.Read(r, binary.LittleEndian, &in); err != nil {
		return inode{}, err
	}
	return in, nil
}

func (w *ktfsWriter) writeInode(ino uint16, in inode) error {
	blk, off := w.inodeBlockAndOffset(ino)
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, in); err != nil {
		return err
	}
	copy(w.readBlock(blk)[off:off+inodeSize], buf.Bytes())
	return nil
}

func (w *ktfsWriter) allocDataBlock() (uint32, error) {
	for b := w.firstDataBlock(); b < w.sb.BlockCount; b++ {
		blkIdx, byteIdx, bitIdx := bitmapLocate(b)
		bm := w.readBlock(1 + blkIdx)
		if bm[byteIdx]&(1<<bitIdx) == 0 {
			bm[byteIdx] |= 1 << bitIdx
			return b, nil
		}
	}
	return 0, fmt.Errorf("no free data blocks")
}

// fileBlockToDataBlock mirrors kernel/fs_inode.go's translation through
// direct/indirect/double-indirect references, allocating as it goes (this
// tool only ever builds images, never reads holes lazily).
func (w *ktfsWriter) fileBlockToDataBlock(in *inode, ino uint16, fbn uint32, alloc bool) (uint32, error) {
	if fbn < numDirect {
		if in.Direct[fbn] == 0 && alloc {
			b, err := w.allocDataBlock()
			if err != nil {
				return 0, err
			}
			in.Direct[fbn] = b
			if err := w.writeInode(ino, *in); err != nil {
				return 0, err
			}
		}
		return in.Direct[fbn], nil
	}
	fbn -= numDirect

	if fbn < ptrsPerIndirect {
		return w.throughIndirect(&in.Indirect, fbn, alloc, func() error { return w.writeInode(ino, *in) })
	}
	fbn -= ptrsPerIndirect

	for i := 0; i < numDindirect; i++ {
		span := uint32(ptrsPerIndirect) * uint32(ptrsPerIndirect)
		if fbn >= span {
			fbn -= span
			continue
		}
		return w.throughDindirect(&in.Dindirect[i], fbn, alloc, func() error { return w.writeInode(ino, *in) })
	}
	return 0, fmt.Errorf("file block number out of range")
}

func (w *ktfsWriter) throughIndirect(ref *uint32, idx uint32, alloc bool, persist func() error) (uint32, error) {
	if *ref == 0 {
		if !alloc {
			return 0, nil
		}
		b, err := w.allocDataBlock()
		if err != nil {
			return 0, err
		}
		*ref = b
		if err := persist(); err != nil {
			return 0, err
		}
	}
	blk := w.readBlock(*ref)
	cur := binary.LittleEndian.Uint32(blk[idx*4:])
	if cur == 0 && alloc {
		b, err := w.allocDataBlock()
		if err != nil {
			return 0, err
		}
		binary.LittleEndian.PutUint32(blk[idx*4:], b)
		cur = b
	}
	return cur, nil
}

// throughDindirect walks a double-indirect reference: ref points at a
// block of pointers to second-level indirect blocks, each of which points
// at data blocks, allocating any missing level on the way down.
func (w *ktfsWriter) throughDindirect(ref *uint32, fbn uint32, alloc bool, persist func() error) (uint32, error) {
	outer := fbn / ptrsPerIndirect
	inner := fbn % ptrsPerIndirect

	if *ref == 0 {
		if !alloc {
			return 0, nil
		}
		b, err := w.allocDataBlock()
		if err != nil {
			return 0, err
		}
		*ref = b
		if err := persist(); err != nil {
			return 0, err
		}
	}
	outerBlk := w.readBlock(*ref)
	l2 := binary.LittleEndian.Uint32(outerBlk[outer*4:])
	if l2 == 0 {
		if !alloc {
			return 0, nil
		}
		b, err := w.allocDataBlock()
		if err != nil {
			return 0, err
		}
		binary.LittleEndian.PutUint32(outerBlk[outer*4:], b)
		l2 = b
	}
	innerBlk := w.readBlock(l2)
	data := binary.LittleEndian.Uint32(innerBlk[inner*4:])
	if data == 0 && alloc {
		b, err := w.allocDataBlock()
		if err != nil {
			return 0, err
		}
		binary.LittleEndian.PutUint32(innerBlk[inner*4:], b)
		data = b
	}
	return data, nil
}

// appendDirEntry implements kernel/fs_dir.go's appendDirEntry: grow the
// root inode by one directory entry, allocating a new data block whenever
// the entry crosses a block boundary.
func (w *ktfsWriter) appendDirEntry(e dirent) error {
	root, err := w.readInode(w.sb.RootDirInode)
	if err != nil {
		return err
	}
	idx := root.Size / direntSize
	fbn := idx / (blockSize / direntSize)
	off := int(idx%(blockSize/direntSize)) * direntSize

	blk, err := w.fileBlockToDataBlock(&root, w.sb.RootDirInode, fbn, true)
	if err != nil {
		return err
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, e); err != nil {
		return err
	}
	copy(w.readBlock(blk)[off:off+direntSize], buf.Bytes())

	root.Size += direntSize
	return w.writeInode(w.sb.RootDirInode, root)
}

func (w *ktfsWriter) listDirEntries() ([]dirent, error) {
	root, err := w.readInode(w.sb.RootDirInode)
	if err != nil {
		return nil, err
	}
	count := root.Size / direntSize
	out := make([]dirent, 0, count)
	for i := uint32(0); i < count; i++ {
		fbn := i / (blockSize / direntSize)
		off := int(i%(blockSize/direntSize)) * direntSize
		blk, err := w.fileBlockToDataBlock(&root, w.sb.RootDirInode, fbn, false)
		if err != nil {
			return nil, err
		}
		if blk == 0 {
			continue
		}
		var e dirent
		r := bytes.NewReader(w.readBlock(blk)[off : off+direntSize])
		if err := binary.Read(r, binary.LittleEndian, &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// allocInode scans the inode table for a free slot (flags without
// inodeInUse set), skipping inode 0 which is permanently the root
// directory.
func (w *ktfsWriter) allocInode() (uint16, error) {
	maxIno := uint16(w.sb.InodeBlockCount * (blockSize / inodeSize))
	for ino := uint16(1); ino < maxIno; ino++ {
		in, err := w.readInode(ino)
		if err != nil {
			return 0, err
		}
		if in.Flags&inodeInUse == 0 {
			return ino, nil
		}
	}
	return 0, fmt.Errorf("no free inodes")
}

// writeFileData writes contents into ino's data blocks, allocating as
// needed, and sets the inode's recorded size.
func (w *ktfsWriter) writeFileData(ino uint16, in *inode, contents []byte) error {
	if int64(len(contents)) > maxFileSize {
		return fmt.Errorf("file too large for KTFS: %d bytes", len(contents))
	}
	for pos := 0; pos < len(contents); pos += blockSize {
		fbn := uint32(pos / blockSize)
		blk, err := w.fileBlockToDataBlock(in, ino, fbn, true)
		if err != nil {
			return err
		}
		// Reread the inode from the image so in matches exactly what
		// fileBlockToDataBlock persisted before the next iteration.
		*in, err = w.readInode(ino)
		if err != nil {
			return err
		}
		end := pos + blockSize
		if end > len(contents) {
			end = len(contents)
		}
		copy(w.readBlock(blk)[:], make([]byte, blockSize)) // zero the block first
		copy(w.readBlock(blk)[:end-pos], contents[pos:end])
	}
	in.Size = uint32(len(contents))
	in.Flags |= inodeInUse
	return w.writeInode(ino, *in)
}
