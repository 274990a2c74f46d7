package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

type formatCmd struct {
	sizeMB int
}

func (*formatCmd) Name() string     { return "format" }
func (*formatCmd) Synopsis() string { return "create an empty KTFS disk image" }
func (*formatCmd) Usage() string {
	return "format [-size MB] <image>\n  Creates a fresh KTFS image with an empty root directory.\n"
}
func (c *formatCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.sizeMB, "size", 8, "image size in megabytes")
}

func (c *formatCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	path := f.Arg(0)

	totalBlocks := uint32(c.sizeMB * 1024 * 1024 / blockSize)
	// Reserve enough inode blocks for one inode per 64 image blocks, a
	// generous fixed ratio since this image is meant for small test
	// programs, not a production filesystem sizing policy.
	inodeCount := totalBlocks / 64
	if inodeCount < 16 {
		inodeCount = 16
	}
	inodeBlocks := (inodeCount*inodeSize + blockSize - 1) / blockSize
	bitmapBlocks := (totalBlocks + blockSize*8 - 1) / (blockSize * 8)

	sb := superblock{
		BlockCount:       totalBlocks,
		BitmapBlockCount: bitmapBlocks,
		InodeBlockCount:  inodeBlocks,
		RootDirInode:     0,
	}

	img := make([]byte, int64(totalBlocks)*blockSize)

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, sb); err != nil {
		log.WithError(err).Error("encode superblock")
		return subcommands.ExitFailure
	}
	copy(img[0:], buf.Bytes())

	// Mark every bitmap/inode-table block slot that falls inside the
	// metadata region as a block number that will simply never be
	// allocated: the bitmap only tracks data blocks starting at
	// firstDataBlock, so no explicit marking is needed here.

	firstData := 1 + bitmapBlocks + inodeBlocks
	if firstData >= totalBlocks {
		log.Fatal("image too small for its own metadata")
	}

	w := &ktfsWriter{img: img, sb: sb}
	if err := w.writeInode(0, inode{}); err != nil {
		log.WithError(err).Error("write root inode")
		return subcommands.ExitFailure
	}

	if err := os.WriteFile(path, img, 0644); err != nil {
		log.WithError(err).Error("write image")
		return subcommands.ExitFailure
	}
	log.WithFields(logrusFields(path, totalBlocks, bitmapBlocks, inodeBlocks)).Info("formatted KTFS image")
	fmt.Printf("formatted %s: %d blocks, %d bitmap blocks, %d inode blocks, %d inodes\n",
		path, totalBlocks, bitmapBlocks, inodeBlocks, inodeCount)
	return subcommands.ExitSuccess
}

func logrusFields(path string, totalBlocks, bitmapBlocks, inodeBlocks uint32) map[string]interface{} {
	return map[string]interface{}{
		"path":         path,
		"blocks":       totalBlocks,
		"bitmapBlocks": bitmapBlocks,
		"inodeBlocks":  inodeBlocks,
	}
}
