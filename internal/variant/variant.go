// Package variant loads variant configuration directories and resolves them
// into an ordered build plan.
//
// A variant directory contains a build-type marker file plus optional list
// files, overlay trees and lifecycle scripts:
//
//	<configRoot>/<name>/
//	    type              one of: archlinux, debian, migration
//	    depends.list      other variants contributing lists and overlays
//	    bootstrap.list    base packages for the bootstrap stage
//	    package.list      packages for the secondary install stage
//	    options.yaml      optional per-variant build options
//	    overlay/<stage>/  files layered onto the working root
//	    extensions/<hook>.sh
package variant

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BuildType selects the bootstrap backend for a variant.
type BuildType string

const (
	BuildTypeArchLinux BuildType = "archlinux"
	BuildTypeDebian    BuildType = "debian"
	// BuildTypeMigration produces no disk image; the build only packages a
	// migration script and its assets.
	BuildTypeMigration BuildType = "migration"
)

// TypeFileName is the build-type marker file inside a variant directory.
const TypeFileName = "type"

// Well-known list file names.
const (
	DependsList   = "depends.list"
	BootstrapList = "bootstrap.list"
	PackageList   = "package.list"
)

// ErrNoBuildType reports a variant whose type marker is missing or names an
// unknown backend. The CLI maps it to a dedicated exit code.
var ErrNoBuildType = errors.New("no recognized build type configured")

// Variant is a named configuration bundle on disk. It is read-only to the
// build; no component ever writes into a variant directory.
type Variant struct {
	Name string
	Dir  string
	Type BuildType
}

// Contributor is one entry of a resolved build plan: either a dependency or
// the requested variant itself.
type Contributor struct {
	Name string
	Dir  string
}

// Plan is the resolved, ordered set of contributors for one build. It is
// built once per build and immutable afterward. Contributors are ordered
// dependencies-first with the requested variant last, so later entries win
// when lists are merged or overlays are layered.
type Plan struct {
	Variant      Variant
	Contributors []Contributor
}

// MissingDependencyError reports every dependency that does not resolve to
// an existing variant directory, not just the first.
type MissingDependencyError struct {
	Variant string
	Missing []string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("variant %s: missing dependencies: %s",
		e.Variant, strings.Join(e.Missing, ", "))
}

// Load reads a single variant from configRoot without resolving its
// dependencies.
func Load(configRoot, name string) (Variant, error) {
	dir := filepath.Join(configRoot, name)
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Variant{}, fmt.Errorf("variant %q not found under %s", name, configRoot)
		}
		return Variant{}, fmt.Errorf("stat variant directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return Variant{}, fmt.Errorf("variant path %s is not a directory", dir)
	}

	buildType, err := readBuildType(dir)
	if err != nil {
		return Variant{}, err
	}

	return Variant{Name: name, Dir: dir, Type: buildType}, nil
}

// List returns the names of all variant directories under configRoot.
func List(configRoot string) ([]string, error) {
	entries, err := os.ReadDir(configRoot)
	if err != nil {
		return nil, fmt.Errorf("read configuration root %s: %w", configRoot, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

func readBuildType(dir string) (BuildType, error) {
	data, err := os.ReadFile(filepath.Join(dir, TypeFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("variant %s: %w", dir, ErrNoBuildType)
		}
		return "", fmt.Errorf("read build type of %s: %w", dir, err)
	}

	switch t := BuildType(strings.TrimSpace(string(data))); t {
	case BuildTypeArchLinux, BuildTypeDebian, BuildTypeMigration:
		return t, nil
	default:
		return "", fmt.Errorf("variant %s declares type %q: %w", dir, t, ErrNoBuildType)
	}
}
