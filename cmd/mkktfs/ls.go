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

type lsCmd struct{}

func (*lsCmd) Name() string     { return "ls" }
func (*lsCmd) Synopsis() string { return "list the root directory of a KTFS image" }
func (*lsCmd) Usage() string    { return "ls <image>\n" }
func (*lsCmd) SetFlags(*flag.FlagSet) {}

func (c *lsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	img, err := os.ReadFile(f.Arg(0))
	if err != nil {
		log.WithError(err).Error("read image")
		return subcommands.ExitFailure
	}

	var sb superblock
	if err := binary.Read(bytes.NewReader(img), binary.LittleEndian, &sb); err != nil {
		log.WithError(err).Error("decode superblock")
		return subcommands.ExitFailure
	}
	w := &ktfsWriter{img: img, sb: sb}

	entries, err := w.listDirEntries()
	if err != nil {
		log.WithError(err).Error("scan root directory")
		return subcommands.ExitFailure
	}
	for _, e := range entries {
		in, err := w.readInode(e.Inode)
		if err != nil {
			log.WithError(err).WithField("inode", e.Inode).Error("read inode")
			return subcommands.ExitFailure
		}
		fmt.Printf("%-14s ino=%-4d size=%d\n", direntName(e), e.Inode, in.Size)
	}
	return subcommands.ExitSuccess
}
