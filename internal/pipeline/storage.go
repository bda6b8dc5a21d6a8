package pipeline

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Free-space thresholds checked before any destructive action. These are
// pre-flight guards, not reservations: the output side needs room for
// images plus archive, the workspace for the scratch disk image.
const (
	minOutputFreeBytes    = 10 << 30
	minWorkspaceFreeBytes = 15 << 30
)

// statfsFree returns the free bytes available to unprivileged writes on the
// filesystem holding path. Swappable so tests can fake scarcity.
type statfsFree func(path string) (uint64, error)

func unixStatfsFree(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// checkStorage verifies both filesystems meet their thresholds. Both
// directories are created first; statfs needs an existing path.
func checkStorage(free statfsFree, bctx BuildContext) error {
	checks := []struct {
		path string
		min  uint64
	}{
		{bctx.OutputRoot, minOutputFreeBytes},
		{bctx.WorkspaceDir, minWorkspaceFreeBytes},
	}

	for _, check := range checks {
		if err := os.MkdirAll(check.path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", check.path, err)
		}
		available, err := free(check.path)
		if err != nil {
			return err
		}
		if available < check.min {
			return &ResourceError{Path: check.path, Required: check.min, Free: available}
		}
	}
	return nil
}
