package stage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// credentialFile describes one database split between etc/ (root-only
// baseline, replaced by provisioning at deploy time) and usr/lib/ (non-root
// template merged into the deployed system).
type credentialFile struct {
	Name string
	Perm os.FileMode
}

var credentialFiles = []credentialFile{
	{Name: "passwd", Perm: 0o644},
	{Name: "group", Perm: 0o644},
	{Name: "shadow", Perm: 0o600},
}

// SplitCredentials splits etc/passwd, etc/group and etc/shadow: entries
// other than root move to usr/lib/<name>, and the live etc/<name> is
// rewritten to hold only the root entry. Permissions are normalized at the
// same time; shadow stays owner read/write only.
func SplitCredentials(workingRoot string) error {
	libDir := filepath.Join(workingRoot, "usr/lib")
	if err := os.MkdirAll(libDir, 0o755); err != nil {
		return fmt.Errorf("ensure usr/lib: %w", err)
	}

	for _, file := range credentialFiles {
		etcPath := filepath.Join(workingRoot, "etc", file.Name)
		libPath := filepath.Join(libDir, file.Name)

		data, err := os.ReadFile(etcPath)
		if err != nil {
			return fmt.Errorf("read credential database %s: %w", etcPath, err)
		}

		rootEntries, otherEntries := splitRootEntries(string(data))
		if len(rootEntries) == 0 {
			return fmt.Errorf("credential database %s has no root entry", etcPath)
		}

		if err := writeEntries(libPath, otherEntries, file.Perm); err != nil {
			return fmt.Errorf("write credential template %s: %w", libPath, err)
		}
		if err := writeEntries(etcPath, rootEntries, file.Perm); err != nil {
			return fmt.Errorf("rewrite credential database %s: %w", etcPath, err)
		}
	}
	return nil
}

// splitRootEntries partitions database lines by whether the first
// colon-separated field is root. Blank lines are dropped; entry order is
// preserved.
func splitRootEntries(content string) (rootEntries, otherEntries []string) {
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		name, _, _ := strings.Cut(line, ":")
		if name == "root" {
			rootEntries = append(rootEntries, line)
		} else {
			otherEntries = append(otherEntries, line)
		}
	}
	return rootEntries, otherEntries
}

func writeEntries(path string, entries []string, perm os.FileMode) error {
	content := ""
	if len(entries) > 0 {
		content = strings.Join(entries, "\n") + "\n"
	}
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return err
	}
	// WriteFile leaves the old mode alone when the file already exists.
	return os.Chmod(path, perm)
}
