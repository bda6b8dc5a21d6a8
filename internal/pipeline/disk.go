package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/silverhadch/arkdep/internal/runner"
)

// provisionDisk allocates the sparse scratch image, formats it as btrfs,
// mounts it and carves the three subvolumes. The etc and var subvolumes are
// bind-mounted into the rootfs working root so the bootstrap tool writes
// through them directly; that is what makes the subvolume boundaries land
// exactly where the updater expects them.
func (c *Controller) provisionDisk(ctx context.Context, bctx BuildContext) error {
	imagePath := bctx.ImagePath()
	mountpoint := bctx.Mountpoint()

	file, err := os.OpenFile(imagePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create scratch image %s: %w", imagePath, err)
	}
	if err := file.Truncate(int64(bctx.DiskSizeGB) << 30); err != nil {
		file.Close()
		return fmt.Errorf("size scratch image to %d GiB: %w", bctx.DiskSizeGB, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("finalize scratch image: %w", err)
	}

	if err := c.Run.Run(ctx, runner.Command{
		Name: "mkfs.btrfs",
		Args: []string{"-f", "-q", imagePath},
	}); err != nil {
		return fmt.Errorf("format scratch image: %w", err)
	}

	if err := os.MkdirAll(mountpoint, 0o755); err != nil {
		return fmt.Errorf("create mountpoint %s: %w", mountpoint, err)
	}
	if err := c.Run.Run(ctx, runner.Command{
		Name: "mount",
		Args: []string{"-o", "loop,compress=zstd", imagePath, mountpoint},
	}); err != nil {
		return fmt.Errorf("mount scratch image: %w", err)
	}

	for _, subvolume := range []string{bctx.WorkingRoot(), bctx.EtcSubvolume(), bctx.VarSubvolume()} {
		if err := c.Run.Run(ctx, runner.Command{
			Name: "btrfs",
			Args: []string{"subvolume", "create", subvolume},
		}); err != nil {
			return fmt.Errorf("create subvolume %s: %w", subvolume, err)
		}
	}

	for _, bind := range []struct{ subvolume, target string }{
		{bctx.EtcSubvolume(), filepath.Join(bctx.WorkingRoot(), "etc")},
		{bctx.VarSubvolume(), filepath.Join(bctx.WorkingRoot(), "var")},
	} {
		if err := os.MkdirAll(bind.target, 0o755); err != nil {
			return fmt.Errorf("create bind target %s: %w", bind.target, err)
		}
		if err := c.Run.Run(ctx, runner.Command{
			Name: "mount",
			Args: []string{"--bind", bind.subvolume, bind.target},
		}); err != nil {
			return fmt.Errorf("bind subvolume %s: %w", bind.subvolume, err)
		}
	}

	return nil
}

// mountPackageCache binds the host package cache into the working root for
// the secondary install and returns an unmount function.
func (c *Controller) mountPackageCache(ctx context.Context, workingRoot, cacheDir string) (func() error, error) {
	target := filepath.Join(workingRoot, cacheDir)
	for _, dir := range []string{cacheDir, target} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create package cache directory %s: %w", dir, err)
		}
	}
	if err := c.Run.Run(ctx, runner.Command{
		Name: "mount",
		Args: []string{"--bind", cacheDir, target},
	}); err != nil {
		return nil, fmt.Errorf("bind package cache: %w", err)
	}
	return func() error {
		return c.Run.Run(ctx, runner.Command{Name: "umount", Args: []string{target}})
	}, nil
}

// cleanup tears down scratch state: lazy recursive unmount, then removal of
// the backing image and mountpoint. It tolerates partial setup, so the
// error path can call it from any state; an unmount failure on a path that
// was never mounted is logged and ignored.
func (c *Controller) cleanup(ctx context.Context, bctx BuildContext, logger *slog.Logger) error {
	var errs error

	mountpoint := bctx.Mountpoint()
	if _, err := os.Stat(mountpoint); err == nil {
		if err := c.Run.Run(ctx, runner.Command{
			Name: "umount",
			Args: []string{"-R", "-l", mountpoint},
		}); err != nil {
			logger.Debug("unmount skipped", "mountpoint", mountpoint, "error", err)
		}
		if err := os.Remove(mountpoint); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = errors.Join(errs, fmt.Errorf("remove mountpoint: %w", err))
		}
	}

	if err := os.Remove(bctx.ImagePath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = errors.Join(errs, fmt.Errorf("remove scratch image: %w", err))
	}

	return errs
}
