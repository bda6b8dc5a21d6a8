// Package pipeline sequences a full image build: variant resolution,
// storage preflight, scratch disk provisioning, bootstrap, secondary
// install, filesystem staging and export, with guaranteed cleanup of the
// scratch state on success or failure.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/silverhadch/arkdep/internal/backend"
	"github.com/silverhadch/arkdep/internal/config"
	"github.com/silverhadch/arkdep/internal/export"
	"github.com/silverhadch/arkdep/internal/hooks"
	"github.com/silverhadch/arkdep/internal/overlay"
	"github.com/silverhadch/arkdep/internal/runner"
	"github.com/silverhadch/arkdep/internal/stage"
	"github.com/silverhadch/arkdep/internal/variant"
)

// Controller owns one build invocation. The pipeline is strictly
// sequential: every external tool blocks it until completion, and the
// working root and scratch image are exclusively owned until cleanup.
type Controller struct {
	Config config.Config
	Run    runner.Runner
	Logger *slog.Logger

	// Test seams; production builds leave them nil.
	freeBytes statfsFree
	euid      func() int
}

// Build runs the whole pipeline for the named variant.
func (c *Controller) Build(ctx context.Context, variantName string) error {
	logger := c.logger().With("variant", variantName)
	state := StateInit
	logger.Info("pipeline state", "state", state)

	plan, err := variant.Resolve(c.Config.ConfigDir, variantName)
	if err != nil {
		return err
	}

	bctx, err := c.newBuildContext(plan)
	if err != nil {
		return err
	}
	logger = logger.With("image", bctx.ImageName, "build_type", string(plan.Variant.Type))

	if plan.Variant.Type == variant.BuildTypeMigration {
		// Degenerate pipeline: no disk, no staging, no storage check.
		return c.buildMigration(logger, bctx)
	}

	be, err := backend.ForType(plan.Variant.Type, c.Run, logger)
	if err != nil {
		return err
	}

	state = StateStorageCheck
	logger.Info("pipeline state", "state", state)
	if c.geteuid() != 0 {
		return &PrivilegeError{}
	}
	if err := checkStorage(c.statfs(), bctx); err != nil {
		return err
	}

	err = c.runProvisioned(ctx, logger, bctx, be, &state)
	if err != nil {
		state = StateAborted
		logger.Error("pipeline aborted", "state", state, "error", err)
	}

	if bctx.NoCleanup {
		logger.Warn("cleanup disabled, leaving scratch state in place",
			"image", bctx.ImagePath(), "mountpoint", bctx.Mountpoint())
		return err
	}
	if cleanupErr := c.cleanup(ctx, bctx, logger); cleanupErr != nil {
		logger.Warn("cleanup incomplete", "error", cleanupErr)
	}
	return err
}

// runProvisioned is the destructive portion of the pipeline; everything
// after it returns is cleanup.
func (c *Controller) runProvisioned(ctx context.Context, logger *slog.Logger, bctx BuildContext, be backend.Backend, state *State) error {
	hookRunner := &hooks.Runner{Run: c.Run, Logger: logger}
	workingRoot := bctx.WorkingRoot()

	if err := c.provisionDisk(ctx, bctx); err != nil {
		return err
	}
	*state = StateDiskProvisioned
	logger.Info("pipeline state", "state", *state)

	if err := hookRunner.Execute(ctx, bctx.Plan.Variant, hooks.PreBuild, workingRoot); err != nil {
		return err
	}

	bootstrapPackages, err := variant.MergeLists(bctx.Plan, variant.BootstrapList)
	if err != nil {
		return err
	}
	if err := be.Bootstrap(ctx, workingRoot, bootstrapPackages); err != nil {
		return err
	}
	*state = StateBootstrapped
	logger.Info("pipeline state", "state", *state, "packages", len(bootstrapPackages))

	if err := overlay.Apply(logger, workingRoot, bctx.Plan, overlay.StagePostBootstrap); err != nil {
		return err
	}
	if err := hookRunner.Execute(ctx, bctx.Plan.Variant, hooks.PostBootstrap, workingRoot); err != nil {
		return err
	}

	secondaryPackages, err := variant.MergeLists(bctx.Plan, variant.PackageList)
	if err != nil {
		return err
	}
	if len(secondaryPackages) > 0 {
		unmount, err := c.mountPackageCache(ctx, workingRoot, be.CacheDir())
		if err != nil {
			return err
		}
		installErr := be.Install(ctx, workingRoot, secondaryPackages)
		if err := unmount(); err != nil && installErr == nil {
			installErr = err
		}
		if installErr != nil {
			return installErr
		}
	}
	*state = StateSecondaryInstalled
	logger.Info("pipeline state", "state", *state, "packages", len(secondaryPackages))

	if err := overlay.Apply(logger, workingRoot, bctx.Plan, overlay.StagePostInstall); err != nil {
		return err
	}
	if err := hookRunner.Execute(ctx, bctx.Plan.Variant, hooks.PostInstall, workingRoot); err != nil {
		return err
	}

	// Package query happens while the root is still writable; chroot-based
	// queries touch lock files on some backends.
	manifest, err := be.ListPackages(ctx, workingRoot)
	if err != nil {
		return err
	}

	stager := &stage.Stager{Run: c.Run, Logger: logger, StageKernel: be.StageKernel}
	if err := stager.Stage(ctx, workingRoot); err != nil {
		return err
	}
	*state = StateStaged
	logger.Info("pipeline state", "state", *state)

	// Last chance to write: sealing follows immediately.
	if err := hookRunner.Execute(ctx, bctx.Plan.Variant, hooks.PostBuild, workingRoot); err != nil {
		return err
	}
	if err := stager.Seal(ctx, workingRoot, bctx.EtcSubvolume(), bctx.VarSubvolume()); err != nil {
		return err
	}

	if err := c.export(ctx, logger, bctx, manifest); err != nil {
		return err
	}
	*state = StateExported
	logger.Info("pipeline state", "state", *state)

	*state = StateDone
	logger.Info("build finished", "state", *state, "output", bctx.OutputDir)
	return nil
}

func (c *Controller) export(ctx context.Context, logger *slog.Logger, bctx BuildContext, manifest string) error {
	exporter := &export.Exporter{Run: c.Run, Logger: logger}

	subvolumes := []export.Subvolume{
		{Path: bctx.WorkingRoot(), Suffix: "rootfs"},
		{Path: bctx.EtcSubvolume(), Suffix: "etc"},
		{Path: bctx.VarSubvolume(), Suffix: "var"},
	}
	if _, err := exporter.Export(ctx, bctx.OutputDir, bctx.ImageName, subvolumes); err != nil {
		return err
	}
	if _, err := exporter.WriteManifest(bctx.OutputDir, bctx.ImageName, manifest); err != nil {
		return err
	}

	if err := c.copyUpdateScript(bctx); err != nil {
		return err
	}

	if bctx.SkipArchive {
		return nil
	}
	logger.Info("archiving output", "archive", bctx.ArchivePath())
	return export.Archive(bctx.OutputDir, bctx.ArchivePath())
}

func (c *Controller) copyUpdateScript(bctx BuildContext) error {
	src := filepath.Join(bctx.Plan.Variant.Dir, "update.sh")
	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read update script %s: %w", src, err)
	}
	dst := filepath.Join(bctx.OutputDir, bctx.ImageName+"-update.sh")
	if err := os.WriteFile(dst, data, 0o755); err != nil {
		return fmt.Errorf("write update script %s: %w", dst, err)
	}
	return nil
}

func (c *Controller) newBuildContext(plan variant.Plan) (BuildContext, error) {
	opts, err := variant.LoadOptions(plan.Variant.Dir)
	if err != nil {
		return BuildContext{}, err
	}

	imageName := c.Config.ImageName
	if imageName == "" {
		imageName = fmt.Sprintf("%s-%s", plan.Variant.Name, uuid.New().String())
	}

	diskSize := c.Config.DiskSizeGB
	if opts.DiskSizeGB > 0 {
		diskSize = opts.DiskSizeGB
	}
	skipArchive := c.Config.SkipArchive
	if opts.SkipArchive != nil {
		skipArchive = *opts.SkipArchive
	}

	return BuildContext{
		Plan:         plan,
		ImageName:    imageName,
		OutputRoot:   c.Config.OutputDir,
		OutputDir:    filepath.Join(c.Config.OutputDir, imageName),
		WorkspaceDir: c.Config.WorkspaceDir,
		DiskSizeGB:   diskSize,
		SkipArchive:  skipArchive,
		NoCleanup:    c.Config.NoCleanup,
	}, nil
}

func (c *Controller) statfs() statfsFree {
	if c.freeBytes != nil {
		return c.freeBytes
	}
	return unixStatfsFree
}

func (c *Controller) geteuid() int {
	if c.euid != nil {
		return c.euid()
	}
	return os.Geteuid()
}

func (c *Controller) logger() *slog.Logger {
	if c != nil && c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
