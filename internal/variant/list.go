package variant

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const commentMarker = "#"

// ParseListLines filters raw list-file text into its entries. A `#` starts a
// comment running to end of line, both for whole lines and trailing on an
// entry; blank and whitespace-only lines are dropped; entries are trimmed.
func ParseListLines(text string) []string {
	var entries []string
	for _, line := range strings.Split(text, "\n") {
		if idx := strings.Index(line, commentMarker); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		entries = append(entries, line)
	}
	return entries
}

// MergeLists concatenates the named list file across all contributors in
// plan order. A contributor without the file contributes nothing. Entries
// are deduplicated with the first occurrence winning, so the result is a
// canonical package set suitable both for the installer and the manifest.
func MergeLists(plan Plan, fileName string) ([]string, error) {
	var merged []string
	seen := make(map[string]struct{})

	for _, contributor := range plan.Contributors {
		path := filepath.Join(contributor.Dir, fileName)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read list %s: %w", path, err)
		}

		for _, entry := range ParseListLines(string(data)) {
			if _, ok := seen[entry]; ok {
				continue
			}
			seen[entry] = struct{}{}
			merged = append(merged, entry)
		}
	}
	return merged, nil
}
