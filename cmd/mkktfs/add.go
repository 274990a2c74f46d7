package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/subcommands"
)

type addCmd struct {
	as string
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "copy a host file into a KTFS image" }
func (*addCmd) Usage() string {
	return "add [-as name] <image> <host-file>\n  Adds host-file to image's root directory.\n"
}
func (c *addCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.as, "as", "", "name to store the file under (default: host-file's base name)")
}

func (c *addCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	imagePath, hostPath := f.Arg(0), f.Arg(1)

	name := c.as
	if name == "" {
		name = filepath.Base(hostPath)
	}
	if len(name) > maxNameLen {
		log.WithField("name", name).Error("name too long for KTFS directory entry")
		return subcommands.ExitFailure
	}

	img, err := os.ReadFile(imagePath)
	if err != nil {
		log.WithError(err).Error("read image")
		return subcommands.ExitFailure
	}
	contents, err := os.ReadFile(hostPath)
	if err != nil {
		log.WithError(err).Error("read host file")
		return subcommands.ExitFailure
	}

	var sb superblock
	if err := binary.Read(bytes.NewReader(img), binary.LittleEndian, &sb); err != nil {
		log.WithError(err).Error("decode superblock")
		return subcommands.ExitFailure
	}
	w := &ktfsWriter{img: img, sb: sb}

	existing, err := w.listDirEntries()
	if err != nil {
		log.WithError(err).Error("scan root directory")
		return subcommands.ExitFailure
	}
	for _, e := range existing {
		if direntName(e) == name {
			log.WithField("name", name).Error("name already exists in image")
			return subcommands.ExitFailure
		}
	}

	ino, err := w.allocInode()
	if err != nil {
		log.WithError(err).Error("allocate inode")
		return subcommands.ExitFailure
	}
	in := inode{}
	if err := w.writeFileData(ino, &in, contents); err != nil {
		log.WithError(err).Error("write file data")
		return subcommands.ExitFailure
	}

	var e dirent
	e.Inode = ino
	copy(e.Name[:], name)
	if err := w.appendDirEntry(e); err != nil {
		log.WithError(err).Error("append directory entry")
		return subcommands.ExitFailure
	}

	if err := os.WriteFile(imagePath, w.img, 0644); err != nil {
		log.WithError(err).Error("write image")
		return subcommands.ExitFailure
	}
	log.WithFields(map[string]interface{}{"name": name, "inode": ino, "bytes": len(contents)}).Info("added file")
	fmt.Printf("added %s (%d bytes) as inode %d\n", name, len(contents), ino)
	return subcommands.ExitSuccess
}

func direntName(e dirent) string {
	n := 0
	for n < len(e.Name) && e.Name[n] != 0 {
		n++
	}
	return string(e.Name[:n])
}
