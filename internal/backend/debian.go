package backend

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/silverhadch/arkdep/internal/runner"
)

const debianRelease = "stable"

// Debian bootstraps via debootstrap and installs via apt-get in a chroot.
type Debian struct {
	Run    runner.Runner
	Logger *slog.Logger
	// Release selects the suite passed to debootstrap; defaults to stable.
	Release string
}

func (b *Debian) Name() string { return "debian" }

func (b *Debian) CacheDir() string { return "/var/cache/apt/archives" }

func (b *Debian) Bootstrap(ctx context.Context, workingRoot string, packages []string) error {
	if len(packages) == 0 {
		return errors.New("debian bootstrap requires a non-empty package list")
	}
	release := b.Release
	if release == "" {
		release = debianRelease
	}
	return b.Run.Run(ctx, runner.Command{
		Name: "debootstrap",
		Args: []string{
			"--include=" + strings.Join(packages, ","),
			release,
			workingRoot,
		},
	})
}

func (b *Debian) Install(ctx context.Context, workingRoot string, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	args := append([]string{workingRoot, "apt-get", "install", "--yes"}, packages...)
	return b.Run.Run(ctx, runner.Command{
		Name: "chroot",
		Args: args,
		Env:  []string{"DEBIAN_FRONTEND=noninteractive"},
	})
}

func (b *Debian) ListPackages(ctx context.Context, workingRoot string) (string, error) {
	return b.Run.Output(ctx, runner.Command{
		Name: "chroot",
		Args: []string{workingRoot, "dpkg-query", "-W", "-f", "${Package} ${Version}\n"},
	})
}

// StageKernel is a no-op: Debian kernel packages manage their own layout
// under /boot and the deploy side consumes it as-is.
func (b *Debian) StageKernel(ctx context.Context, workingRoot string) error {
	return nil
}

func (b *Debian) logger() *slog.Logger {
	if b != nil && b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}
