// Package stage transforms a freshly populated root tree into the layout
// the atomic-update consumer depends on. The steps are sequential and
// irreversible; later steps assume earlier ones completed, and any failure
// aborts the build through the pipeline's cleanup path.
package stage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/silverhadch/arkdep/internal/overlay"
	"github.com/silverhadch/arkdep/internal/runner"
)

// relocation maps a root directory onto its new home under var/ with a
// compatibility symlink left behind. var is the only subvolume carrying
// host-local mutable state across updates; root and etc are immutable
// snapshots, so anything writable has to live under var.
type relocation struct {
	Path    string // relative to the working root
	VarName string // directory name under var/
	Target  string // literal symlink target replacing Path
}

var relocations = []relocation{
	{Path: "usr/local", VarName: "usrlocal", Target: "../var/usrlocal"},
	{Path: "opt", VarName: "opt", Target: "var/opt"},
	{Path: "srv", VarName: "srv", Target: "var/srv"},
	{Path: "mnt", VarName: "mnt", Target: "var/mnt"},
}

// Deploy-time bind-mount targets recreated empty during staging.
var mountpointDirs = []struct {
	Path string
	Perm os.FileMode
}{
	{Path: "root", Perm: 0o700},
	{Path: "arkdep", Perm: 0o755},
	{Path: "var/lib/flatpak", Perm: 0o755},
}

// Update-manager subvolumes removed before snapshotting; leaving them in
// place makes btrfs send fail on the nested boundaries.
var nestedSubvolumes = []string{
	"var/lib/portables",
	"var/lib/machines",
}

// Stager performs the root transformation. StageKernel, when set, is the
// backend-specific kernel/firmware relocation step.
type Stager struct {
	Run         runner.Runner
	Logger      *slog.Logger
	StageKernel func(ctx context.Context, workingRoot string) error
}

// Stage runs every transformation step except read-only sealing, in order:
// nested subvolume removal, directory relocation to var, mountpoint
// recreation, machine identity scrubbing, credential splitting, credential
// backup removal, backend kernel staging. Sealing is separate so post-build
// hooks can still write.
func (s *Stager) Stage(ctx context.Context, workingRoot string) error {
	logger := s.logger().With("root", workingRoot)

	if err := s.removeNestedSubvolumes(ctx, workingRoot, logger); err != nil {
		return err
	}
	if err := relocateToVar(workingRoot, logger); err != nil {
		return err
	}
	if err := recreateMountpoints(workingRoot); err != nil {
		return err
	}
	if err := scrubMachineIdentity(workingRoot, logger); err != nil {
		return err
	}
	if err := SplitCredentials(workingRoot); err != nil {
		return err
	}
	if err := removeCredentialBackups(workingRoot); err != nil {
		return err
	}
	if s.StageKernel != nil {
		if err := s.StageKernel(ctx, workingRoot); err != nil {
			return fmt.Errorf("backend kernel staging: %w", err)
		}
	}
	return nil
}

// Seal marks the given subvolumes read-only. This is terminal: nothing may
// write to the tree afterwards.
func (s *Stager) Seal(ctx context.Context, subvolumes ...string) error {
	for _, subvolume := range subvolumes {
		err := s.Run.Run(ctx, runner.Command{
			Name: "btrfs",
			Args: []string{"property", "set", subvolume, "ro", "true"},
		})
		if err != nil {
			return fmt.Errorf("mark subvolume %s read-only: %w", subvolume, err)
		}
	}
	return nil
}

func (s *Stager) removeNestedSubvolumes(ctx context.Context, workingRoot string, logger *slog.Logger) error {
	for _, rel := range nestedSubvolumes {
		path := filepath.Join(workingRoot, rel)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("stat %s: %w", path, err)
		}
		logger.Info("removing nested subvolume", "path", rel)
		err := s.Run.Run(ctx, runner.Command{
			Name: "btrfs",
			Args: []string{"subvolume", "delete", path},
		})
		if err != nil {
			return fmt.Errorf("remove nested subvolume %s: %w", path, err)
		}
	}
	return nil
}

func relocateToVar(workingRoot string, logger *slog.Logger) error {
	for _, rel := range relocations {
		src := filepath.Join(workingRoot, rel.Path)
		dst := filepath.Join(workingRoot, "var", rel.VarName)

		info, err := os.Lstat(src)
		switch {
		case os.IsNotExist(err):
			// Nothing to move; the symlink is still contractual.
		case err != nil:
			return fmt.Errorf("stat %s: %w", src, err)
		case info.Mode()&os.ModeSymlink != 0:
			// Already relocated by an earlier run or an overlay.
			continue
		default:
			if err := moveTree(src, dst); err != nil {
				return fmt.Errorf("relocate %s to var/%s: %w", rel.Path, rel.VarName, err)
			}
		}

		if err := os.MkdirAll(dst, 0o755); err != nil {
			return fmt.Errorf("ensure var/%s: %w", rel.VarName, err)
		}
		if err := os.Symlink(rel.Target, src); err != nil {
			return fmt.Errorf("link %s to %s: %w", rel.Path, rel.Target, err)
		}
		logger.Info("relocated directory", "path", rel.Path, "target", rel.Target)
	}
	return nil
}

func recreateMountpoints(workingRoot string) error {
	for _, mp := range mountpointDirs {
		path := filepath.Join(workingRoot, mp.Path)
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("clear mountpoint %s: %w", path, err)
		}
		if err := os.MkdirAll(path, mp.Perm); err != nil {
			return fmt.Errorf("recreate mountpoint %s: %w", path, err)
		}
		if err := os.Chmod(path, mp.Perm); err != nil {
			return fmt.Errorf("chmod mountpoint %s: %w", path, err)
		}
	}
	return nil
}

// scrubMachineIdentity deletes SSH host keys and the machine-id so every
// deployed instance regenerates its own identity on first boot.
func scrubMachineIdentity(workingRoot string, logger *slog.Logger) error {
	hostKeys, err := filepath.Glob(filepath.Join(workingRoot, "etc/ssh", "ssh_host_*key*"))
	if err != nil {
		return err
	}
	for _, key := range hostKeys {
		if err := os.Remove(key); err != nil {
			return fmt.Errorf("remove host key %s: %w", key, err)
		}
	}

	machineID := filepath.Join(workingRoot, "etc/machine-id")
	if err := os.Remove(machineID); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove machine-id: %w", err)
	}

	logger.Info("scrubbed machine identity", "host_keys", len(hostKeys))
	return nil
}

func removeCredentialBackups(workingRoot string) error {
	for _, name := range []string{"passwd-", "group-", "shadow-"} {
		path := filepath.Join(workingRoot, "etc", name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove credential backup %s: %w", path, err)
		}
	}
	return nil
}

// moveTree renames src to dst, falling back to copy-and-delete when the two
// sit on different subvolumes (rename across subvolume boundaries fails
// with EXDEV).
func moveTree(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := overlay.CopyTree(src, dst); err != nil {
		return err
	}
	return os.RemoveAll(src)
}

func (s *Stager) logger() *slog.Logger {
	if s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
