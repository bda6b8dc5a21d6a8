// Package hooks executes variant-supplied lifecycle scripts at defined
// pipeline points.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/silverhadch/arkdep/internal/runner"
	"github.com/silverhadch/arkdep/internal/variant"
)

// Dir is the directory inside a variant holding lifecycle scripts.
const Dir = "extensions"

// Lifecycle hook names, in pipeline order.
const (
	PreBuild      = "pre-build"
	PostBootstrap = "post-bootstrap"
	PostInstall   = "post-install"
	PostBuild     = "post-build"
)

// Runner executes a variant's lifecycle scripts. Scripts run with the
// working root as their working directory and receive it via the
// environment, so they can mutate the tree under construction freely.
type Runner struct {
	Run    runner.Runner
	Logger *slog.Logger
}

// Execute runs <variantDir>/extensions/<hook>.sh if it exists. A missing
// script is a no-op. A script exiting nonzero fails the build: a lifecycle
// script that breaks half-way leaves the image wrong in ways only found at
// deploy time.
func (r *Runner) Execute(ctx context.Context, v variant.Variant, hook, workingRoot string) error {
	script := filepath.Join(v.Dir, Dir, hook+".sh")
	if _, err := os.Stat(script); err != nil {
		if os.IsNotExist(err) {
			r.logger().Debug("no hook script", "variant", v.Name, "hook", hook)
			return nil
		}
		return fmt.Errorf("stat hook script %s: %w", script, err)
	}

	r.logger().Info("running hook", "variant", v.Name, "hook", hook)
	err := r.Run.Run(ctx, runner.Command{
		Name: "bash",
		Args: []string{script},
		Dir:  workingRoot,
		Env: []string{
			"ARKDEP_ROOT=" + workingRoot,
			"ARKDEP_VARIANT=" + v.Name,
		},
	})
	if err != nil {
		return fmt.Errorf("hook %s of variant %s: %w", hook, v.Name, err)
	}
	return nil
}

func (r *Runner) logger() *slog.Logger {
	if r != nil && r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
