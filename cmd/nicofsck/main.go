package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/nano-go/nicofs/config"
	"github.com/nano-go/nicofs/disk"
	"github.com/nano-go/nicofs/fs"
	"github.com/nano-go/nicofs/fsck"
	"github.com/nano-go/nicofs/mkfs"
)

func main() {
	app := cli.App{
		Name:        "nicofsck",
		Description: "check and inspect a nicofs disk image",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "image",
				Aliases: []string{"i"},
				Usage:   "the image file (NICOFS_IMAGE)",
			},
		},
		Commands: []*cli.Command{{
			Name:        "check",
			Description: "recover the log and report structural problems",
			Action: withFS(func(fsys *fs.FS, p *fs.Proc, ctx *cli.Context) error {
				r := fsck.Check(fsys)
				for _, msg := range r.Problems {
					logrus.Warn(msg)
				}
				logrus.WithFields(logrus.Fields{
					"files":   r.Files,
					"dirs":    r.Dirs,
					"devices": r.Devices,
					"blocks":  r.Blocks,
					"free":    fsys.NumFreeBlocks(),
				}).Info("checked")
				if !r.Clean() {
					return fmt.Errorf("%d problems found", len(r.Problems))
				}
				return nil
			}),
		}, {
			Name:        "ls",
			Description: "list a directory",
			ArgsUsage:   "PATH",
			Action: withFS(func(fsys *fs.FS, p *fs.Proc, ctx *cli.Context) error {
				path := ctx.Args().First()
				if path == "" {
					path = "/"
				}
				des, err := p.ReadDir(path)
				if err != nil {
					return err
				}
				for _, de := range des {
					st, err := p.Stat(path + "/" + de.Name)
					if err != nil {
						return err
					}
					fmt.Printf("%-8v %5d %3d %8d %s\n", st.Type, st.Inum, st.Nlink, st.Size, de.Name)
				}
				return nil
			}),
		}, {
			Name:        "cat",
			Description: "copy a file to standard output",
			ArgsUsage:   "PATH",
			Action: withFS(func(fsys *fs.FS, p *fs.Proc, ctx *cli.Context) error {
				f, err := p.Open(ctx.Args().First(), fs.O_RDONLY)
				if err != nil {
					return err
				}
				defer f.Close()
				_, err = io.Copy(os.Stdout, f)
				return err
			}),
		}, {
			Name:        "put",
			Description: "copy a host file into the image",
			ArgsUsage:   "HOSTFILE PATH",
			Action: withFS(func(fsys *fs.FS, p *fs.Proc, ctx *cli.Context) error {
				src, err := os.Open(ctx.Args().Get(0))
				if err != nil {
					return err
				}
				defer src.Close()
				f, err := p.Open(ctx.Args().Get(1), fs.O_CREAT|fs.O_WRONLY)
				if err != nil {
					return err
				}
				defer f.Close()
				_, err = io.Copy(f, src)
				return err
			}),
		}, {
			Name:        "mkdir",
			Description: "create a directory",
			ArgsUsage:   "PATH",
			Action: withFS(func(fsys *fs.FS, p *fs.Proc, ctx *cli.Context) error {
				return p.Mkdir(ctx.Args().First())
			}),
		}, {
			Name:        "rm",
			Aliases:     []string{"unlink"},
			Description: "remove a file or an empty directory",
			ArgsUsage:   "PATH",
			Action: withFS(func(fsys *fs.FS, p *fs.Proc, ctx *cli.Context) error {
				return p.Unlink(ctx.Args().First())
			}),
		}, {
			Name:        "stat",
			Description: "show an inode",
			ArgsUsage:   "PATH",
			Action: withFS(func(fsys *fs.FS, p *fs.Proc, ctx *cli.Context) error {
				st, err := p.Stat(ctx.Args().First())
				if err != nil {
					return err
				}
				fmt.Printf("inum %d type %v nlink %d size %d major %d minor %d\n",
					st.Inum, st.Type, st.Nlink, st.Size, st.Major, st.Minor)
				return nil
			}),
		}},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

// withFS mounts the configured image around f.
func withFS(f func(*fs.FS, *fs.Proc, *cli.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		if ctx.IsSet("image") {
			c.Image = ctx.String("image")
		}
		c.SetupLogging()
		if err := c.Validate(); err != nil {
			return err
		}

		d, err := disk.OpenFileDisk(c.Image)
		if err != nil {
			return err
		}
		defer d.Close()
		if ok, err := mkfs.HasFS(d); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("`%s` holds no file system", c.Image)
		}

		opts := c.MountOptions()
		opts.ConsoleIn = os.Stdin
		opts.ConsoleOut = os.Stdout
		fsys, err := fs.Mount(d, opts)
		if err != nil {
			return fmt.Errorf("mounting `%s`: %w", c.Image, err)
		}
		p := fsys.NewProc()
		ferr := f(fsys, p, ctx)
		p.Exit()
		if err := fsys.Unmount(); err != nil {
			return err
		}
		return ferr
	}
}
