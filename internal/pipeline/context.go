package pipeline

import (
	"path/filepath"

	"github.com/silverhadch/arkdep/internal/variant"
)

// State labels the pipeline's progress through one build invocation.
type State string

const (
	StateInit               State = "init"
	StateStorageCheck       State = "storage-check"
	StateDiskProvisioned    State = "disk-provisioned"
	StateBootstrapped       State = "bootstrapped"
	StateSecondaryInstalled State = "secondary-installed"
	StateStaged             State = "staged"
	StateExported           State = "exported"
	StateDone               State = "done"
	StateAborted            State = "aborted"
)

// BuildContext is the immutable per-build value threaded through every
// pipeline stage. It is computed once during Init and never mutated.
type BuildContext struct {
	Plan      variant.Plan
	ImageName string

	// OutputRoot is the configured output directory; OutputDir is the
	// per-image directory inside it.
	OutputRoot string
	OutputDir  string

	// WorkspaceDir holds the scratch image and mountpoint. Its layout is
	// fixed, so concurrent builds sharing it would collide; running one
	// build at a time is an assumption, not something enforced here.
	WorkspaceDir string

	DiskSizeGB  int
	SkipArchive bool
	NoCleanup   bool
}

// ImagePath is the scratch disk image backing the working root.
func (c BuildContext) ImagePath() string {
	return filepath.Join(c.WorkspaceDir, "scratch.img")
}

// Mountpoint is where the scratch image is mounted.
func (c BuildContext) Mountpoint() string {
	return filepath.Join(c.WorkspaceDir, "mnt")
}

// WorkingRoot is the staged filesystem tree under construction, the rootfs
// subvolume of the mounted scratch image.
func (c BuildContext) WorkingRoot() string {
	return filepath.Join(c.Mountpoint(), "rootfs")
}

// Subvolume paths inside the mounted scratch image.
func (c BuildContext) EtcSubvolume() string { return filepath.Join(c.Mountpoint(), "etc") }
func (c BuildContext) VarSubvolume() string { return filepath.Join(c.Mountpoint(), "var") }

// ArchivePath is the optional compressed bundle of the output directory.
func (c BuildContext) ArchivePath() string {
	return filepath.Join(c.OutputRoot, c.ImageName+".tar.zst")
}
