package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/edfs/go-edfs/filesystem"
	"github.com/edfs/go-edfs/filesystem/edfs"
	"github.com/edfs/go-edfs/internal/snapshot"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v2"
)

const copyBufferSize = 64 * 1024

func (a *app) commands() []*cli.Command {
	return []*cli.Command{{
		Name:  "mkfs",
		Usage: "format a new volume in the image",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "size", Usage: "volume size in bytes", Required: true},
			&cli.IntFlag{Name: "block-size", Usage: "block size in bytes", Value: edfs.DefaultBlockSize},
			&cli.UintFlag{Name: "inodes", Usage: "inode table slots (default one per four blocks)"},
			&cli.StringFlag{Name: "uuid", Usage: "volume UUID (default random)"},
		},
		Action: a.mkfs,
	}, {
		Name:  "info",
		Usage: "print the volume geometry and usage",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "text or yaml", Value: "text"},
		},
		Action: a.withFS(true, a.info),
	}, {
		Name:      "ls",
		Usage:     "list a directory",
		ArgsUsage: "PATH",
		Action:    a.withFS(true, ls),
	}, {
		Name:      "stat",
		Usage:     "print the attributes of a file or directory",
		ArgsUsage: "PATH",
		Action:    a.withFS(true, stat),
	}, {
		Name:      "mkdir",
		Usage:     "create a directory",
		ArgsUsage: "PATH",
		Action: a.withFS(false, func(fs *edfs.FileSystem, ctx *cli.Context) error {
			p, err := pathArg(ctx)
			if err != nil {
				return err
			}
			return fs.Mkdir(p)
		}),
	}, {
		Name:      "rmdir",
		Usage:     "remove an empty directory",
		ArgsUsage: "PATH",
		Action: a.withFS(false, func(fs *edfs.FileSystem, ctx *cli.Context) error {
			p, err := pathArg(ctx)
			if err != nil {
				return err
			}
			return fs.Rmdir(p)
		}),
	}, {
		Name:      "touch",
		Usage:     "create an empty file if it does not exist",
		ArgsUsage: "PATH",
		Action: a.withFS(false, func(fs *edfs.FileSystem, ctx *cli.Context) error {
			p, err := pathArg(ctx)
			if err != nil {
				return err
			}
			_, err = ensureFile(fs, p)
			return err
		}),
	}, {
		Name:      "rm",
		Aliases:   []string{"unlink"},
		Usage:     "remove a file",
		ArgsUsage: "PATH",
		Action: a.withFS(false, func(fs *edfs.FileSystem, ctx *cli.Context) error {
			p, err := pathArg(ctx)
			if err != nil {
				return err
			}
			return fs.Unlink(p)
		}),
	}, {
		Name:      "cat",
		Usage:     "write the contents of a file to stdout",
		ArgsUsage: "PATH",
		Action:    a.withFS(true, cat),
	}, {
		Name:      "put",
		Usage:     "write stdin, or a host file, into a file, creating it if needed",
		ArgsUsage: "PATH",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "offset", Usage: "byte offset to write at"},
			&cli.StringFlag{Name: "from", Usage: "host file to read instead of stdin"},
		},
		Action: a.withFS(false, put),
	}, {
		Name:      "truncate",
		Usage:     "set the size of a file",
		ArgsUsage: "PATH",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "size", Usage: "new size in bytes", Required: true},
		},
		Action: a.withFS(false, func(fs *edfs.FileSystem, ctx *cli.Context) error {
			p, err := pathArg(ctx)
			if err != nil {
				return err
			}
			return fs.Truncate(p, ctx.Int64("size"))
		}),
	}, {
		Name:  "snapshot",
		Usage: "write a compressed snapshot of the image",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Usage: "snapshot file to write", Required: true},
			&cli.StringFlag{Name: "codec", Usage: "gzip, lzma, xz, lz4 or zstd (default from config)"},
		},
		Action: a.snapshot,
	}, {
		Name:  "restore",
		Usage: "replace the image with the contents of a snapshot",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Usage: "snapshot file to read", Required: true},
		},
		Action: a.restore,
	}}
}

func (a *app) mkfs(ctx *cli.Context) error {
	image, err := a.image()
	if err != nil {
		return err
	}
	params := &edfs.Params{
		BlockSize:  ctx.Int("block-size"),
		InodeCount: uint32(ctx.Uint("inodes")),
	}
	if s := ctx.String("uuid"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("%w: uuid: %w", filesystem.ErrInvalidArgument, err)
		}
		params.UUID = &id
	}
	fs, err := edfs.Create(image, ctx.Int64("size"), params, a.options(false)...)
	if err != nil {
		return err
	}
	info := fs.Info()
	fmt.Fprintf(ctx.App.Writer, "created %s: %d blocks of %d bytes, %d inodes, uuid %s\n", image, info.Blocks, info.BlockSize, info.Inodes-1, info.UUID)
	return fs.Close()
}

func (a *app) info(fs *edfs.FileSystem, ctx *cli.Context) error {
	info := fs.Info()
	st, err := fs.Statfs()
	if err != nil {
		return err
	}
	switch ctx.String("output") {
	case "yaml":
		b, err := yaml.Marshal(struct {
			Info   *edfs.Info   `yaml:"volume"`
			Statfs *edfs.Statfs `yaml:"usage"`
		}{info, st})
		if err != nil {
			return err
		}
		_, err = ctx.App.Writer.Write(b)
		return err
	case "text":
		w := ctx.App.Writer
		fmt.Fprintf(w, "uuid:              %s\n", info.UUID)
		if info.Label != "" {
			fmt.Fprintf(w, "label:             %s\n", info.Label)
		}
		fmt.Fprintf(w, "block size:        %d\n", info.BlockSize)
		fmt.Fprintf(w, "blocks:            %d (%d free)\n", info.Blocks, st.FreeBlocks)
		fmt.Fprintf(w, "inodes:            %d (%d free)\n", st.Inodes, st.FreeInodes)
		fmt.Fprintf(w, "inode table:       %d bytes at %d\n", info.InodeTableSize, info.InodeTableStart)
		fmt.Fprintf(w, "bitmap:            at %d\n", info.BitmapStart)
		fmt.Fprintf(w, "root inode:        %d\n", info.RootInumber)
		fmt.Fprintf(w, "max file size:     %d\n", info.MaxFileSize)
		fmt.Fprintf(w, "directory entries: %d\n", info.DirectorySlots)
		return nil
	}
	return fmt.Errorf("%w: output %q, must be text or yaml", filesystem.ErrInvalidArgument, ctx.String("output"))
}

func ls(fs *edfs.FileSystem, ctx *cli.Context) error {
	p, err := pathArg(ctx)
	if err != nil {
		return err
	}
	dir, err := fs.Lookup(p)
	if err != nil {
		return err
	}
	entries, err := fs.ReadDir(p)
	if err != nil {
		return err
	}
	w := ctx.App.Writer
	fmt.Fprintf(w, "%d\t.\n", dir.Number)
	fmt.Fprintf(w, "%d\t..\n", parentInumber(fs, p, dir))
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\n", e.Inumber, e.Name)
	}
	return nil
}

// parentInumber the inode ".." refers to; the root is its own parent
func parentInumber(fs *edfs.FileSystem, p string, dir *edfs.Inode) edfs.Inumber {
	clean := path.Clean(p)
	if clean == "/" {
		return dir.Number
	}
	parent, err := fs.Lookup(path.Dir(clean))
	if err != nil {
		return dir.Number
	}
	return parent.Number
}

func stat(fs *edfs.FileSystem, ctx *cli.Context) error {
	p, err := pathArg(ctx)
	if err != nil {
		return err
	}
	attr, err := fs.Getattr(p)
	if err != nil {
		return err
	}
	w := ctx.App.Writer
	fmt.Fprintf(w, "inode: %d\n", attr.Inumber)
	fmt.Fprintf(w, "mode:  %s\n", attr.Mode)
	fmt.Fprintf(w, "links: %d\n", attr.Nlink)
	fmt.Fprintf(w, "size:  %d\n", attr.Size)
	fmt.Fprintf(w, "mtime: %s\n", attr.Mtime.Format("2006-01-02 15:04:05 -0700"))
	return nil
}

func cat(fs *edfs.FileSystem, ctx *cli.Context) error {
	p, err := pathArg(ctx)
	if err != nil {
		return err
	}
	buf := make([]byte, copyBufferSize)
	for offset := int64(0); ; {
		n, err := fs.Read(p, buf, offset)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := ctx.App.Writer.Write(buf[:n]); err != nil {
			return err
		}
		offset += int64(n)
	}
}

func put(fs *edfs.FileSystem, ctx *cli.Context) error {
	p, err := pathArg(ctx)
	if err != nil {
		return err
	}
	r := ctx.App.Reader
	if from := ctx.String("from"); from != "" {
		f, err := os.Open(from)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	if _, err := ensureFile(fs, p); err != nil {
		return err
	}
	buf := make([]byte, copyBufferSize)
	offset := ctx.Int64("offset")
	for {
		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			if _, err := fs.Write(p, buf[:n], offset); err != nil {
				return err
			}
			offset += int64(n)
		}
		switch {
		case rerr == nil:
		case errors.Is(rerr, io.EOF), errors.Is(rerr, io.ErrUnexpectedEOF):
			return nil
		default:
			return rerr
		}
	}
}

// ensureFile creates p unless a file already exists there
func ensureFile(fs *edfs.FileSystem, p string) (*edfs.Inode, error) {
	in, err := fs.OpenFile(p)
	if err == nil {
		return in, nil
	}
	if !errors.Is(err, filesystem.ErrNotFound) {
		return nil, err
	}
	return fs.CreateFile(p)
}

func (a *app) snapshot(ctx *cli.Context) error {
	image, err := a.image()
	if err != nil {
		return err
	}
	name := a.cfg.SnapshotCodec
	if ctx.IsSet("codec") {
		name = ctx.String("codec")
	}
	codec, err := snapshot.ParseCodec(name)
	if err != nil {
		return err
	}
	f, err := os.Create(ctx.String("out"))
	if err != nil {
		return err
	}
	h, err := snapshot.Write(f, image, codec, a.options(true)...)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "wrote %s snapshot of %d bytes, volume %s\n", h.Codec, h.Length, h.UUID)
	return nil
}

func (a *app) restore(ctx *cli.Context) error {
	image, err := a.image()
	if err != nil {
		return err
	}
	f, err := os.Open(ctx.String("in"))
	if err != nil {
		return err
	}
	defer f.Close()
	h, err := snapshot.Restore(f, image, a.options(true)...)
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "restored %d bytes, volume %s\n", h.Length, h.UUID)
	return nil
}
