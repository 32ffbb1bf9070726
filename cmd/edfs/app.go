package main

import (
	"fmt"
	"io"

	"github.com/edfs/go-edfs/filesystem"
	"github.com/edfs/go-edfs/filesystem/edfs"
	"github.com/edfs/go-edfs/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

type app struct {
	cfg *config.Config
	log *logrus.Logger
}

func newApp(stdout io.Writer, stdin io.Reader) *cli.App {
	a := &app{}
	return &cli.App{
		Name:   "edfs",
		Usage:  "format, inspect and edit EdFS images",
		Writer: stdout,
		Reader: stdin,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "image",
				Aliases: []string{"i"},
				Usage:   "path to the image file (default from $EDFS_IMAGE)",
			},
			&cli.Int64Flag{
				Name:  "start",
				Usage: "byte offset of the volume within the image",
			},
			&cli.BoolFlag{
				Name:  "read-only",
				Usage: "open the image without write access",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "trace, debug, info, warning or error",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "text or json",
			},
		},
		Before:   a.before,
		Commands: a.commands(),
	}
}

// before loads the configuration and lets global flags override it
func (a *app) before(ctx *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if ctx.IsSet("image") {
		cfg.Image = ctx.String("image")
	}
	if ctx.IsSet("start") {
		cfg.Start = ctx.Int64("start")
	}
	if ctx.IsSet("read-only") {
		cfg.ReadOnly = ctx.Bool("read-only")
	}
	if ctx.IsSet("log-level") {
		cfg.LogLevel = ctx.String("log-level")
	}
	if ctx.IsSet("log-format") {
		cfg.LogFormat = ctx.String("log-format")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	l, err := cfg.Logger()
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, l
	return nil
}

func (a *app) image() (string, error) {
	if a.cfg.Image == "" {
		return "", fmt.Errorf("%w: no image given, use --image or EDFS_IMAGE", filesystem.ErrInvalidArgument)
	}
	return a.cfg.Image, nil
}

func (a *app) options(readOnly bool) []edfs.Option {
	return []edfs.Option{
		edfs.WithLogger(a.log),
		edfs.WithStart(a.cfg.Start),
		edfs.WithReadOnly(readOnly || a.cfg.ReadOnly),
	}
}

// withFS mounts the image for the duration of fn
func (a *app) withFS(readOnly bool, fn func(fs *edfs.FileSystem, ctx *cli.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		image, err := a.image()
		if err != nil {
			return err
		}
		fs, err := edfs.Open(image, a.options(readOnly)...)
		if err != nil {
			return err
		}
		if err := fn(fs, ctx); err != nil {
			_ = fs.Close()
			return err
		}
		return fs.Close()
	}
}

// pathArg the single path argument of a command
func pathArg(ctx *cli.Context) (string, error) {
	if ctx.NArg() != 1 {
		return "", fmt.Errorf("%w: %s takes exactly one path, got %d arguments", filesystem.ErrInvalidArgument, ctx.Command.Name, ctx.NArg())
	}
	return ctx.Args().First(), nil
}
