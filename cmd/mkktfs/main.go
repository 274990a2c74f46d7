// Command mkktfs builds and inspects KTFS disk images for the kernel in
// this module, the host-side counterpart to kernel/fs_inode.go's on-disk
// layout. It is a plain userspace Go program (not freestanding) and talks
// to image files with encoding/binary rather than kernel/fs_inode.go's
// unsafe.Pointer casts over cached blocks, since it has no block cache and
// no MMU to share.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

var log = logrus.StandardLogger()

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&formatCmd{}, "")
	subcommands.Register(&addCmd{}, "")
	subcommands.Register(&lsCmd{}, "")

	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	flag.Parse()
	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}
