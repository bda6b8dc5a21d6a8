package variant

import (
	"fmt"
	"os"
	"path/filepath"
)

// Resolve loads the named variant and expands its dependency list into an
// ordered build plan: dependencies in declaration order, the requested
// variant last.
//
// Resolution is deliberately single-level. A dependency's own depends.list
// is not expanded; deeper include chains are a documented limitation of the
// configuration format, not something resolved silently here.
//
// Every declared dependency is validated before anything else happens; all
// unresolvable names are reported together in one MissingDependencyError so
// the user fixes the configuration in a single round-trip.
func Resolve(configRoot, name string) (Plan, error) {
	v, err := Load(configRoot, name)
	if err != nil {
		return Plan{}, err
	}

	deps, err := readDepends(v)
	if err != nil {
		return Plan{}, err
	}

	var missing []string
	var contributors []Contributor
	seen := make(map[string]struct{})

	for _, dep := range deps {
		if dep == name {
			return Plan{}, fmt.Errorf("variant %s depends on itself", name)
		}
		if _, ok := seen[dep]; ok {
			continue
		}
		seen[dep] = struct{}{}

		dir := filepath.Join(configRoot, dep)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			missing = append(missing, dep)
			continue
		}
		contributors = append(contributors, Contributor{Name: dep, Dir: dir})
	}

	if len(missing) > 0 {
		return Plan{}, &MissingDependencyError{Variant: name, Missing: missing}
	}

	contributors = append(contributors, Contributor{Name: v.Name, Dir: v.Dir})
	return Plan{Variant: v, Contributors: contributors}, nil
}

func readDepends(v Variant) ([]string, error) {
	path := filepath.Join(v.Dir, DependsList)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dependency list %s: %w", path, err)
	}
	return ParseListLines(string(data)), nil
}
