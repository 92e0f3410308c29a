package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"github.com/weberc2/ext2fs/pkg/filesystem"
	"github.com/weberc2/ext2fs/pkg/fuse"
	"github.com/weberc2/ext2fs/pkg/inspect"
	"github.com/weberc2/ext2fs/pkg/mkfs"
	. "github.com/weberc2/ext2fs/pkg/types"
)

const copyChunk = 64 * 1024

func main() {
	app := cli.App{
		Name:        appName,
		Description: "create, inspect and mount ext2 volumes",
		Commands: []*cli.Command{{
			Name:        "mkfs",
			Aliases:     []string{"format"},
			Description: "format the configured device with an empty filesystem",
			Action: withConfig(func(c *Config, ctx *cli.Context) error {
				dev, closeDev, err := c.OpenDevice(true)
				if err != nil {
					return err
				}
				if err := mkfs.Format(dev, c.GeometryPreset()); err != nil {
					closeDev()
					return err
				}
				logrus.WithFields(logrus.Fields{
					"backend":  c.Backend,
					"geometry": c.Geometry,
					"volume":   c.Volume,
				}).Info("formatted volume")
				return closeDev()
			}),
		}, {
			Name:        "statfs",
			Aliases:     []string{"df"},
			Description: "print filesystem statistics as JSON",
			Action: withFS(func(fs *filesystem.FileSystem, ctx *cli.Context) error {
				stats, err := fs.Statfs()
				if err != nil {
					return err
				}
				return printJSON(&stats)
			}),
		}, {
			Name:        "stat",
			Description: "print a file's attributes as JSON",
			ArgsUsage:   "PATH",
			Action: withFS(func(fs *filesystem.FileSystem, ctx *cli.Context) error {
				attr, err := fs.Getattr(arg(ctx, 0, "/"))
				if err != nil {
					return err
				}
				return printJSON(&attr)
			}),
		}, {
			Name:        "ls",
			Description: "list a directory",
			ArgsUsage:   "PATH",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:    "long",
					Aliases: []string{"l"},
					Usage:   "include inode numbers and file types",
				},
			},
			Action: withFS(func(fs *filesystem.FileSystem, ctx *cli.Context) error {
				entries, err := fs.Readdir(arg(ctx, 0, "/"))
				if err != nil {
					return err
				}
				for _, entry := range entries {
					if ctx.Bool("long") {
						fmt.Printf(
							"%8d %-8s %s\n",
							entry.Ino,
							entry.FileType,
							entry.Name,
						)
						continue
					}
					fmt.Println(entry.Name)
				}
				return nil
			}),
		}, {
			Name:        "cat",
			Description: "write a file's contents to stdout",
			ArgsUsage:   "PATH",
			Action: withFS(func(fs *filesystem.FileSystem, ctx *cli.Context) error {
				return cat(fs, requiredArg(ctx, 0), os.Stdout)
			}),
		}, {
			Name:        "put",
			Description: "copy a local file (or `-` for stdin) into the volume",
			ArgsUsage:   "SRC DST",
			Action: withFS(func(fs *filesystem.FileSystem, ctx *cli.Context) error {
				src := requiredArg(ctx, 0)
				dst := requiredArg(ctx, 1)
				var r io.Reader = os.Stdin
				if src != "-" {
					f, err := os.Open(src)
					if err != nil {
						return fmt.Errorf("opening `%s`: %w", src, err)
					}
					defer f.Close()
					r = f
				}
				return put(fs, r, dst)
			}),
		}, {
			Name:        "mkdir",
			Description: "make a directory",
			ArgsUsage:   "PATH",
			Flags: []cli.Flag{
				&cli.UintFlag{Name: "mode", Value: 0755},
			},
			Action: withFS(func(fs *filesystem.FileSystem, ctx *cli.Context) error {
				parent, name, err := filesystem.SplitParent(requiredArg(ctx, 0))
				if err != nil {
					return err
				}
				_, err = fs.Mkdir(parent, name, Mode(ctx.Uint("mode")))
				return err
			}),
		}, {
			Name:        "rm",
			Aliases:     []string{"unlink"},
			Description: "remove a file",
			ArgsUsage:   "PATH",
			Action: withFS(func(fs *filesystem.FileSystem, ctx *cli.Context) error {
				return fs.Unlink(requiredArg(ctx, 0))
			}),
		}, {
			Name:        "rmdir",
			Description: "remove an empty directory",
			ArgsUsage:   "PATH",
			Action: withFS(func(fs *filesystem.FileSystem, ctx *cli.Context) error {
				return fs.Rmdir(requiredArg(ctx, 0))
			}),
		}, {
			Name:        "mv",
			Aliases:     []string{"rename"},
			Description: "rename a file or directory",
			ArgsUsage:   "OLD NEW",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "no-replace",
					Usage: "fail if NEW exists",
				},
				&cli.BoolFlag{
					Name:  "exchange",
					Usage: "atomically swap OLD and NEW",
				},
			},
			Action: withFS(func(fs *filesystem.FileSystem, ctx *cli.Context) error {
				var flags uint32
				if ctx.Bool("no-replace") {
					flags |= filesystem.RenameNoReplace
				}
				if ctx.Bool("exchange") {
					flags |= filesystem.RenameExchange
				}
				return fs.Rename(requiredArg(ctx, 0), requiredArg(ctx, 1), flags)
			}),
		}, {
			Name:        "truncate",
			Description: "resize a file",
			ArgsUsage:   "PATH SIZE",
			Action: withFS(func(fs *filesystem.FileSystem, ctx *cli.Context) error {
				size, err := strconv.ParseInt(requiredArg(ctx, 1), 10, 64)
				if err != nil {
					return fmt.Errorf("parsing size: %w", err)
				}
				return fs.Truncate(requiredArg(ctx, 0), Byte(size))
			}),
		}, {
			Name:        "mount",
			Description: "serve the volume over FUSE until interrupted",
			ArgsUsage:   "DIR",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "debug", Usage: "log FUSE traffic"},
			},
			Action: withFS(func(fs *filesystem.FileSystem, ctx *cli.Context) error {
				server, err := fuse.Mount(
					requiredArg(ctx, 0),
					fs,
					ctx.Bool("debug"),
				)
				if err != nil {
					return fmt.Errorf("mounting: %w", err)
				}
				signals := make(chan os.Signal, 1)
				signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
				go func() {
					<-signals
					if err := server.Unmount(); err != nil {
						logrus.WithError(err).Error("unmounting")
					}
				}()
				server.Wait()
				return nil
			}),
		}, {
			Name:        "serve",
			Description: "serve read-only JSON views of the volume over HTTP",
			Action: withConfig(func(c *Config, ctx *cli.Context) error {
				return withOpenFS(c, func(fs *filesystem.FileSystem) error {
					server := inspect.Server{FileSystem: fs}
					logrus.WithField("addr", c.InspectAddr).Info("serving")
					return http.ListenAndServe(
						c.InspectAddr,
						server.Handler(os.Stderr),
					)
				})
			}),
		}},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func withConfig(f func(*Config, *cli.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		c, err := LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := c.Validate(); err != nil {
			return err
		}
		c.ConfigureLogging()
		return f(c, ctx)
	}
}

func withFS(f func(*filesystem.FileSystem, *cli.Context) error) cli.ActionFunc {
	return withConfig(func(c *Config, ctx *cli.Context) error {
		return withOpenFS(c, func(fs *filesystem.FileSystem) error {
			return f(fs, ctx)
		})
	})
}

func withOpenFS(c *Config, f func(*filesystem.FileSystem) error) error {
	dev, closeDev, err := c.OpenDevice(false)
	if err != nil {
		return err
	}
	fs, err := filesystem.Open(dev, c.EngineOptions())
	if err != nil {
		closeDev()
		return err
	}
	if err := f(fs); err != nil {
		closeDev()
		return err
	}
	return closeDev()
}

func arg(ctx *cli.Context, i int, def string) string {
	if ctx.Args().Len() > i {
		return ctx.Args().Get(i)
	}
	return def
}

func requiredArg(ctx *cli.Context, i int) string {
	if ctx.Args().Len() <= i {
		fmt.Fprintf(
			os.Stderr,
			"usage: %s %s %s\n",
			appName,
			ctx.Command.Name,
			ctx.Command.ArgsUsage,
		)
		os.Exit(2)
	}
	return ctx.Args().Get(i)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling to JSON: %w", err)
	}
	if _, err := fmt.Printf("%s\n", data); err != nil {
		return fmt.Errorf("writing JSON to stdout: %w", err)
	}
	return nil
}

func cat(fs *filesystem.FileSystem, path string, w io.Writer) error {
	buf := make([]byte, copyChunk)
	for offset := Byte(0); ; {
		n, err := fs.Read(path, buf, offset)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return fmt.Errorf("writing `%s`: %w", path, err)
		}
		offset += Byte(n)
	}
}

// put replaces the contents of `dst`, creating it if necessary.
func put(fs *filesystem.FileSystem, r io.Reader, dst string) error {
	if _, err := fs.Lookup(dst); err != nil {
		if filesystem.Errno(err) != syscall.ENOENT {
			return err
		}
		parent, name, err := filesystem.SplitParent(dst)
		if err != nil {
			return err
		}
		if _, err := fs.Create(parent, name, ModeRegular|0644); err != nil {
			return err
		}
	} else if err := fs.Truncate(dst, 0); err != nil {
		return err
	}

	buf := make([]byte, copyChunk)
	for offset := Byte(0); ; {
		n, err := r.Read(buf)
		if n > 0 {
			if _, err := fs.Write(dst, buf[:n], offset); err != nil {
				return err
			}
			offset += Byte(n)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
	}
}
