package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/silverhadch/arkdep/internal/runner"
)

// ArchLinux bootstraps via pacstrap and installs via pacman in a chroot.
type ArchLinux struct {
	Run    runner.Runner
	Logger *slog.Logger
}

func (b *ArchLinux) Name() string { return "archlinux" }

func (b *ArchLinux) CacheDir() string { return "/var/cache/pacman/pkg" }

func (b *ArchLinux) Bootstrap(ctx context.Context, workingRoot string, packages []string) error {
	if len(packages) == 0 {
		return errors.New("archlinux bootstrap requires a non-empty package list")
	}
	// -c uses the host package cache, -K initializes a fresh keyring for
	// the new root.
	args := append([]string{"-c", "-K", workingRoot}, packages...)
	return b.Run.Run(ctx, runner.Command{Name: "pacstrap", Args: args})
}

func (b *ArchLinux) Install(ctx context.Context, workingRoot string, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	args := append([]string{workingRoot, "pacman", "-S", "--noconfirm", "--needed"}, packages...)
	return b.Run.Run(ctx, runner.Command{Name: "arch-chroot", Args: args})
}

func (b *ArchLinux) ListPackages(ctx context.Context, workingRoot string) (string, error) {
	return b.Run.Output(ctx, runner.Command{
		Name: "pacman",
		Args: []string{"-Q", "--dbpath", filepath.Join(workingRoot, "var/lib/pacman")},
	})
}

// StageKernel copies CPU microcode images from boot/ into each installed
// kernel's module directory, where the deploy-time boot entry generator
// expects them. Arch kernel packages already place vmlinuz under
// usr/lib/modules/<version>/.
func (b *ArchLinux) StageKernel(ctx context.Context, workingRoot string) error {
	ucode, err := filepath.Glob(filepath.Join(workingRoot, "boot", "*-ucode.img"))
	if err != nil {
		return err
	}
	if len(ucode) == 0 {
		return nil
	}

	moduleDirs, err := os.ReadDir(filepath.Join(workingRoot, "usr/lib/modules"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read module directories: %w", err)
	}

	for _, dir := range moduleDirs {
		if !dir.IsDir() {
			continue
		}
		for _, src := range ucode {
			dst := filepath.Join(workingRoot, "usr/lib/modules", dir.Name(), filepath.Base(src))
			if err := copyRegularFile(src, dst); err != nil {
				return fmt.Errorf("stage microcode %s: %w", filepath.Base(src), err)
			}
			b.logger().Info("staged microcode", "image", filepath.Base(src), "kernel", dir.Name())
		}
	}
	return nil
}

func (b *ArchLinux) logger() *slog.Logger {
	if b != nil && b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

func copyRegularFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, info.Mode().Perm())
}
