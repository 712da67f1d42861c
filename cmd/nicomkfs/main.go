package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/nano-go/nicofs/common"
	"github.com/nano-go/nicofs/config"
	"github.com/nano-go/nicofs/disk"
	"github.com/nano-go/nicofs/mkfs"
)

func main() {
	app := cli.App{
		Name:        "nicomkfs",
		Description: "format a nicofs disk image, optionally copying host files into it",
		ArgsUsage:   "[FILE...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "image",
				Aliases: []string{"o"},
				Usage:   "the image file to write (NICOFS_IMAGE)",
			},
			&cli.UintFlag{
				Name:  "blocks",
				Usage: "image size in 512-byte blocks (NICOFS_BLOCKS)",
			},
			&cli.UintFlag{
				Name:  "inodes",
				Usage: "number of on-disk inodes (NICOFS_INODES)",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "overwrite an existing file system",
			},
			&cli.BoolFlag{
				Name:  "tree",
				Usage: "create /bin, /dev, /etc, /home and /dev/console",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func run(ctx *cli.Context) error {
	c, err := config.Load()
	if err != nil {
		return err
	}
	if ctx.IsSet("image") {
		c.Image = ctx.String("image")
	}
	if ctx.IsSet("blocks") {
		c.Blocks = uint32(ctx.Uint("blocks"))
	}
	if ctx.IsSet("inodes") {
		c.Inodes = uint32(ctx.Uint("inodes"))
	}
	if ctx.IsSet("force") {
		c.Force = ctx.Bool("force")
	}
	c.SetupLogging()
	if err := c.Validate(); err != nil {
		return err
	}

	d, err := disk.NewFileDisk(c.Image, uint64(c.Blocks))
	if err != nil {
		return err
	}
	defer d.Close()

	b, err := mkfs.Format(d, c.FormatOptions())
	if err != nil {
		return fmt.Errorf("formatting `%s`: %w", c.Image, err)
	}
	dst := common.ROOTINUM
	if ctx.Bool("tree") {
		if dst, err = b.InitTree(); err != nil {
			return fmt.Errorf("creating directory tree: %w", err)
		}
	}
	for _, path := range ctx.Args().Slice() {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading `%s`: %w", path, err)
		}
		name := filepath.Base(path)
		inum, err := b.AddFile(dst, name, data)
		if err != nil {
			return fmt.Errorf("adding `%s`: %w", path, err)
		}
		logrus.WithFields(logrus.Fields{
			"file":  name,
			"inum":  inum,
			"bytes": len(data),
		}).Info("added file")
	}
	if err := d.Barrier(); err != nil {
		return fmt.Errorf("flushing `%s`: %w", c.Image, err)
	}

	sb := b.Superblock()
	logrus.WithFields(logrus.Fields{
		"image":  c.Image,
		"size":   sb.Size,
		"inodes": sb.Ninodes,
		"log":    sb.LogStart,
		"bitmap": sb.BmapStart,
		"data":   sb.BdataStart,
	}).Info("formatted")
	return nil
}
