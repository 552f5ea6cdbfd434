package cmd

import (
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/othello-os/go-othello/internal/device/ide"
	"github.com/othello-os/go-othello/internal/devsim"
	"github.com/othello-os/go-othello/internal/disk"
	"github.com/othello-os/go-othello/internal/ramfs"
	"github.com/othello-os/go-othello/internal/services"
)

var fsCmd = &cobra.Command{
	Use:   "fs",
	Short: "Operate on the persistent filesystem inside a disk image",
	Long: `Mount the record log of a disk image, replay it into the RAM
filesystem, run one operation and sync mutations back.

Every operation goes through the emulated ATA drive, the same path the
kernel takes. A virgin image is formatted on first mount.

Examples:
  # List the root directory
  go-othello fs ls othello.img

  # Store a file and read it back
  go-othello fs put othello.img /etc/motd ./motd.txt
  go-othello fs cat othello.img /etc/motd

  # Directories and removal
  go-othello fs mkdir othello.img /var/log
  go-othello fs rm othello.img /etc/motd`,
}

var fsLsCmd = &cobra.Command{
	Use:   "ls [image-path] [path]",
	Short: "List a directory",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		dir := "/"
		if len(args) == 2 {
			dir = args[1]
		}
		if err := runFsLs(args[0], dir); err != nil {
			cobra.CheckErr(err)
		}
	},
}

var fsCatCmd = &cobra.Command{
	Use:   "cat [image-path] [path]",
	Short: "Print a file",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runFsCat(args[0], args[1]); err != nil {
			cobra.CheckErr(err)
		}
	},
}

var fsPutCmd = &cobra.Command{
	Use:   "put [image-path] [path] [local-file]",
	Short: "Store a local file",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runFsPut(args[0], args[1], args[2]); err != nil {
			cobra.CheckErr(err)
		}
	},
}

var fsMkdirCmd = &cobra.Command{
	Use:   "mkdir [image-path] [path]",
	Short: "Create a directory chain",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runFsMkdir(args[0], args[1]); err != nil {
			cobra.CheckErr(err)
		}
	},
}

var fsRmCmd = &cobra.Command{
	Use:   "rm [image-path] [path]",
	Short: "Remove a file or empty directory",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runFsRm(args[0], args[1]); err != nil {
			cobra.CheckErr(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(fsCmd)
	fsCmd.AddCommand(fsLsCmd)
	fsCmd.AddCommand(fsCatCmd)
	fsCmd.AddCommand(fsPutCmd)
	fsCmd.AddCommand(fsMkdirCmd)
	fsCmd.AddCommand(fsRmCmd)
}

// withMountedFS opens the image, attaches it behind the emulated ATA drive,
// mounts and replays the log, and runs op. A non-nil error from op skips
// the sync.
func withMountedFS(imagePath string, op func(fs *ramfs.RamFS) error) error {
	cfg, err := disk.LoadDiskConfig()
	if err != nil {
		return err
	}
	img, err := disk.OpenImage(imagePath, cfg)
	if err != nil {
		return err
	}
	defer img.Close()

	bus := devsim.NewBus()
	if err := bus.Register(devsim.NewAtaDevice(img)); err != nil {
		return err
	}
	drive, err := ide.Identify(bus)
	if err != nil {
		return fmt.Errorf("failed to identify drive: %w", err)
	}

	fs := ramfs.New()
	persist, err := services.NewPersistenceService(drive, fs)
	if err != nil {
		return err
	}
	if err := persist.Mount(); err != nil {
		return err
	}
	replayed, err := persist.Replay()
	if err != nil {
		return err
	}
	if verbose {
		fmt.Printf("replayed %d records from %s\n", replayed, drive.SerialNumber())
	}

	if err := op(fs); err != nil {
		return err
	}

	synced, err := persist.Sync()
	if err != nil {
		return err
	}
	if verbose && synced > 0 {
		fmt.Printf("synced %d records\n", synced)
	}
	return nil
}

func runFsLs(imagePath, dir string) error {
	return withMountedFS(imagePath, func(fs *ramfs.RamFS) error {
		names, err := fs.Ls(dir)
		if err != nil {
			return err
		}
		for _, name := range names {
			full := path.Join(dir, name)
			if fs.IsDir(full) {
				fmt.Printf("%8s  %s/\n", "-", name)
				continue
			}
			data, err := fs.ReadAll(full)
			if err != nil {
				return err
			}
			fmt.Printf("%8d  %s\n", len(data), name)
		}
		return nil
	})
}

func runFsCat(imagePath, file string) error {
	return withMountedFS(imagePath, func(fs *ramfs.RamFS) error {
		data, err := fs.ReadAll(file)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	})
}

func runFsPut(imagePath, file, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	return withMountedFS(imagePath, func(fs *ramfs.RamFS) error {
		return fs.WriteAll(file, data)
	})
}

func runFsMkdir(imagePath, dir string) error {
	return withMountedFS(imagePath, func(fs *ramfs.RamFS) error {
		return fs.MkdirP(dir)
	})
}

func runFsRm(imagePath, file string) error {
	return withMountedFS(imagePath, func(fs *ramfs.RamFS) error {
		return fs.Rm(file)
	})
}
