// Package backend adapts the supported OS bootstrap tools to the build
// pipeline. A backend populates the working root, installs secondary
// packages inside it and answers package queries; the pipeline owns
// everything around those calls.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/silverhadch/arkdep/internal/runner"
	"github.com/silverhadch/arkdep/internal/variant"
)

// Backend drives one bootstrap tool family.
type Backend interface {
	Name() string

	// Bootstrap populates an empty working root with the merged base
	// package list.
	Bootstrap(ctx context.Context, workingRoot string, packages []string) error

	// Install installs the merged secondary package list inside the
	// working root. The host package cache is bind-mounted at CacheDir
	// inside the root for the duration of the call.
	Install(ctx context.Context, workingRoot string, packages []string) error

	// CacheDir is the package cache path, used both on the host and as the
	// bind target inside the working root.
	CacheDir() string

	// ListPackages returns the installed package set of the working root
	// as manifest text, one package per line.
	ListPackages(ctx context.Context, workingRoot string) (string, error)

	// StageKernel performs backend-specific kernel/firmware relocation
	// during filesystem staging. Backends without such a step return nil.
	StageKernel(ctx context.Context, workingRoot string) error
}

// ForType returns the backend for a variant build type. The migration type
// has no backend; it never touches a working root.
func ForType(t variant.BuildType, run runner.Runner, logger *slog.Logger) (Backend, error) {
	switch t {
	case variant.BuildTypeArchLinux:
		return &ArchLinux{Run: run, Logger: logger}, nil
	case variant.BuildTypeDebian:
		return &Debian{Run: run, Logger: logger}, nil
	default:
		return nil, fmt.Errorf("build type %q has no bootstrap backend", t)
	}
}
