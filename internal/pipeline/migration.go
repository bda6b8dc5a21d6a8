package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/silverhadch/arkdep/internal/export"
	"github.com/silverhadch/arkdep/internal/overlay"
)

const (
	migrationScript   = "migration.sh"
	migrationAssetDir = "migration"
)

// buildMigration handles the migration build type: no disk image, no
// mountpoint, no subvolumes. The output directory receives the variant's
// migration script plus its optional asset tree, then gets archived like
// any other build.
func (c *Controller) buildMigration(logger *slog.Logger, bctx BuildContext) error {
	variantDir := bctx.Plan.Variant.Dir

	script := filepath.Join(variantDir, migrationScript)
	data, err := os.ReadFile(script)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("migration variant %s has no %s", bctx.Plan.Variant.Name, migrationScript)
		}
		return fmt.Errorf("read migration script %s: %w", script, err)
	}

	if err := os.MkdirAll(bctx.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", bctx.OutputDir, err)
	}

	dst := filepath.Join(bctx.OutputDir, bctx.ImageName+"-migration.sh")
	if err := os.WriteFile(dst, data, 0o755); err != nil {
		return fmt.Errorf("write migration script %s: %w", dst, err)
	}

	assets := filepath.Join(variantDir, migrationAssetDir)
	if info, err := os.Stat(assets); err == nil && info.IsDir() {
		target := filepath.Join(bctx.OutputDir, migrationAssetDir)
		if err := overlay.CopyTree(assets, target); err != nil {
			return fmt.Errorf("copy migration assets: %w", err)
		}
	}

	if !bctx.SkipArchive {
		logger.Info("archiving output", "archive", bctx.ArchivePath())
		if err := export.Archive(bctx.OutputDir, bctx.ArchivePath()); err != nil {
			return err
		}
	}

	logger.Info("migration build finished", "output", bctx.OutputDir)
	return nil
}
