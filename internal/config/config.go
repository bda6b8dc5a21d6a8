// Package config loads process-level build configuration from the
// environment and an optional configuration file.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Default locations; all overridable via ARKDEP_* environment variables or
// the configuration file.
const (
	DefaultConfigDir    = "/var/lib/arkdep-build/variants"
	DefaultOutputDir    = "/var/lib/arkdep-build/output"
	DefaultWorkspaceDir = "/var/tmp/arkdep-build"

	configFilePath = "/etc/arkdep-build.yaml"
)

// Config is the resolved process configuration. Precedence, highest first:
// environment (ARKDEP_*), configuration file, built-in defaults. Flags are
// applied by the CLI on top of the loaded value.
type Config struct {
	// ConfigDir is the configuration root holding variant directories.
	ConfigDir string `mapstructure:"config_dir"`
	// OutputDir receives the build artifact set.
	OutputDir string `mapstructure:"output_dir"`
	// WorkspaceDir holds the scratch disk image and mountpoint.
	WorkspaceDir string `mapstructure:"workspace_dir"`
	// ImageName overrides the generated image name with a deterministic one.
	ImageName string `mapstructure:"image_name"`
	// NoCleanup leaves the scratch image mounted after a failure for
	// postmortem inspection.
	NoCleanup bool `mapstructure:"no_cleanup"`
	// SkipArchive disables tar.zst bundling of the output directory.
	SkipArchive bool `mapstructure:"skip_archive"`
	// DiskSizeGB is the size of the scratch disk image.
	DiskSizeGB int `mapstructure:"disk_size_gb"`
}

// Load resolves the process configuration.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("config_dir", DefaultConfigDir)
	v.SetDefault("output_dir", DefaultOutputDir)
	v.SetDefault("workspace_dir", DefaultWorkspaceDir)
	v.SetDefault("image_name", "")
	v.SetDefault("no_cleanup", false)
	v.SetDefault("skip_archive", false)
	v.SetDefault("disk_size_gb", 15)

	v.SetEnvPrefix("ARKDEP")
	v.AutomaticEnv()

	if _, err := os.Stat(configFilePath); err == nil {
		v.SetConfigFile(configFilePath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read configuration file %s: %w", configFilePath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse configuration: %w", err)
	}
	if cfg.DiskSizeGB <= 0 {
		return Config{}, fmt.Errorf("disk_size_gb must be positive, got %d", cfg.DiskSizeGB)
	}
	return cfg, nil
}
