// Package overlay layers variant-supplied file trees onto the working root.
package overlay

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/silverhadch/arkdep/internal/logging"
	"github.com/silverhadch/arkdep/internal/variant"
)

// Dir is the overlay tree root inside a variant directory; each pipeline
// stage has its own subtree under it.
const Dir = "overlay"

// Stage names accepted under a variant's overlay directory.
const (
	StagePostBootstrap = "post-bootstrap"
	StagePostInstall   = "post-install"
)

// Apply copies each contributor's overlay/<stage> tree onto workingRoot in
// plan order. Later contributors overwrite earlier ones at the same path,
// and the requested variant is always last, so local files win. A
// contributor without an overlay for the stage is skipped; an I/O failure
// while copying an existing tree is fatal.
func Apply(logger *slog.Logger, workingRoot string, plan variant.Plan, stage string) error {
	logger = logging.Ensure(logger)
	for _, contributor := range plan.Contributors {
		src := filepath.Join(contributor.Dir, Dir, stage)
		info, err := os.Stat(src)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("stat overlay %s: %w", src, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("overlay path %s is not a directory", src)
		}

		logger.Info("applying overlay", "contributor", contributor.Name, "stage", stage)
		if err := CopyTree(src, workingRoot); err != nil {
			return fmt.Errorf("apply overlay of %s: %w", contributor.Name, err)
		}
	}
	return nil
}

// CopyTree recursively copies the contents of srcDir onto dstDir, preserving
// relative paths, permission bits and symlinks. Symlinks are recreated with
// their literal targets, never followed; existing files at the destination
// are replaced.
func CopyTree(srcDir, dstDir string) error {
	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dstDir, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		mode := info.Mode()

		switch {
		case mode&os.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("read symlink %s: %w", path, err)
			}
			if err := os.RemoveAll(target); err != nil {
				return err
			}
			return os.Symlink(linkTarget, target)

		case d.IsDir():
			if rel == "." {
				return os.MkdirAll(dstDir, mode.Perm())
			}
			// A file being replaced by a directory must go first.
			if existing, err := os.Lstat(target); err == nil && !existing.IsDir() {
				if err := os.Remove(target); err != nil {
					return err
				}
			}
			return os.MkdirAll(target, mode.Perm())

		case mode.IsRegular():
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if existing, err := os.Lstat(target); err == nil && existing.IsDir() {
				if err := os.RemoveAll(target); err != nil {
					return err
				}
			}
			return copyFile(path, target, mode.Perm())

		default:
			return fmt.Errorf("unsupported file type %s in overlay: %s", mode, path)
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	// Remove first so symlinks at the destination are replaced rather than
	// written through.
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, perm)
}
