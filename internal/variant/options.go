package variant

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// OptionsFileName is the optional per-variant build options file.
const OptionsFileName = "options.yaml"

// Options carries per-variant build overrides. Zero values mean "use the
// process-level configuration".
type Options struct {
	// DiskSizeGB overrides the size of the scratch disk image.
	DiskSizeGB int `yaml:"disk_size_gb"`
	// SkipArchive disables the final tar.zst bundling for this variant.
	SkipArchive *bool `yaml:"skip_archive"`
}

// LoadOptions reads options.yaml from a variant directory. A missing file
// yields zero Options; a malformed one is a configuration error.
func LoadOptions(variantDir string) (Options, error) {
	path := filepath.Join(variantDir, OptionsFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Options{}, nil
		}
		return Options{}, fmt.Errorf("read variant options %s: %w", path, err)
	}

	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("parse variant options %s: %w", path, err)
	}
	if opts.DiskSizeGB < 0 {
		return Options{}, fmt.Errorf("variant options %s: disk_size_gb must not be negative", path)
	}
	return opts, nil
}
