// Package export serializes finished subvolumes into portable image files
// and bundles the build output for distribution.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/silverhadch/arkdep/internal/runner"
)

// Subvolume pairs a mounted subvolume path with the artifact suffix its
// image file carries.
type Subvolume struct {
	Path   string
	Suffix string // rootfs, etc, var
}

// Exporter writes the build artifact set: one image per subvolume plus the
// package manifest. Subvolumes must already be read-only; btrfs send
// refuses writable subvolumes.
type Exporter struct {
	Run    runner.Runner
	Logger *slog.Logger
}

// Export serializes each subvolume into <outputDir>/<imageName>-<suffix>.img
// using the filesystem's native send mechanism and returns the artifact
// paths in subvolume order.
func (e *Exporter) Export(ctx context.Context, outputDir, imageName string, subvolumes []Subvolume) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", outputDir, err)
	}

	var paths []string
	for _, subvolume := range subvolumes {
		imagePath := filepath.Join(outputDir, fmt.Sprintf("%s-%s.img", imageName, subvolume.Suffix))
		e.logger().Info("exporting subvolume", "subvolume", subvolume.Path, "image", imagePath)

		err := e.Run.Run(ctx, runner.Command{
			Name: "btrfs",
			Args: []string{"send", "-f", imagePath, subvolume.Path},
		})
		if err != nil {
			return nil, fmt.Errorf("export subvolume %s: %w", subvolume.Path, err)
		}
		paths = append(paths, imagePath)
	}
	return paths, nil
}

// WriteManifest records the installed package set as a plain-text manifest
// at <outputDir>/<imageName>.pkgs.
func (e *Exporter) WriteManifest(outputDir, imageName, packages string) (string, error) {
	path := filepath.Join(outputDir, imageName+".pkgs")
	if err := os.WriteFile(path, []byte(packages), 0o644); err != nil {
		return "", fmt.Errorf("write package manifest %s: %w", path, err)
	}
	return path, nil
}

func (e *Exporter) logger() *slog.Logger {
	if e != nil && e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
