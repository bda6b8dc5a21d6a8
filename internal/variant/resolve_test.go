package variant

import (
	"errors"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
)

func TestResolveOrdersDependenciesFirst(t *testing.T) {
	root := t.TempDir()
	writeVariant(t, root, "base", "archlinux")
	writeVariant(t, root, "desktop", "archlinux")
	child := writeVariant(t, root, "workstation", "archlinux")
	writeFile(t, filepath.Join(child, DependsList), "base\ndesktop # ordering matters\n")

	plan, err := Resolve(root, "workstation")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	var names []string
	for _, contributor := range plan.Contributors {
		names = append(names, contributor.Name)
	}
	want := []string{"base", "desktop", "workstation"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("contributor order = %v, want %v", names, want)
	}
	if plan.Variant.Type != BuildTypeArchLinux {
		t.Fatalf("build type = %q, want %q", plan.Variant.Type, BuildTypeArchLinux)
	}
}

func TestResolveWithoutDependencies(t *testing.T) {
	root := t.TempDir()
	writeVariant(t, root, "solo", "debian")

	plan, err := Resolve(root, "solo")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(plan.Contributors) != 1 || plan.Contributors[0].Name != "solo" {
		t.Fatalf("contributors = %#v, want only solo", plan.Contributors)
	}
}

func TestResolveReportsAllMissingDependencies(t *testing.T) {
	root := t.TempDir()
	writeVariant(t, root, "base", "archlinux")
	child := writeVariant(t, root, "child", "archlinux")
	writeFile(t, filepath.Join(child, DependsList), "base\nghost\nphantom\n")

	_, err := Resolve(root, "child")
	var missingErr *MissingDependencyError
	if !errors.As(err, &missingErr) {
		t.Fatalf("expected MissingDependencyError, got %v", err)
	}

	got := append([]string(nil), missingErr.Missing...)
	sort.Strings(got)
	want := []string{"ghost", "phantom"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("missing set = %v, want %v", got, want)
	}
}

func TestResolveDuplicateDependenciesCollapse(t *testing.T) {
	root := t.TempDir()
	writeVariant(t, root, "base", "archlinux")
	child := writeVariant(t, root, "child", "archlinux")
	writeFile(t, filepath.Join(child, DependsList), "base\nbase\n")

	plan, err := Resolve(root, "child")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(plan.Contributors) != 2 {
		t.Fatalf("contributors = %#v, want base then child", plan.Contributors)
	}
}

func TestResolveSelfDependencyFails(t *testing.T) {
	root := t.TempDir()
	child := writeVariant(t, root, "child", "archlinux")
	writeFile(t, filepath.Join(child, DependsList), "child\n")

	if _, err := Resolve(root, "child"); err == nil {
		t.Fatal("expected error for self-dependency")
	}
}

func TestResolveUnknownVariant(t *testing.T) {
	if _, err := Resolve(t.TempDir(), "nope"); err == nil {
		t.Fatal("expected error for unknown variant")
	}
}

func TestLoadBuildTypes(t *testing.T) {
	root := t.TempDir()
	writeVariant(t, root, "no-type", "")
	writeVariant(t, root, "bad-type", "gentoo")
	writeVariant(t, root, "migrator", "migration")

	if _, err := Load(root, "no-type"); !errors.Is(err, ErrNoBuildType) {
		t.Fatalf("missing type marker: got %v, want ErrNoBuildType", err)
	}
	if _, err := Load(root, "bad-type"); !errors.Is(err, ErrNoBuildType) {
		t.Fatalf("unknown type: got %v, want ErrNoBuildType", err)
	}

	v, err := Load(root, "migrator")
	if err != nil {
		t.Fatalf("Load migration variant failed: %v", err)
	}
	if v.Type != BuildTypeMigration {
		t.Fatalf("build type = %q, want %q", v.Type, BuildTypeMigration)
	}
}

func TestLoadOptions(t *testing.T) {
	root := t.TempDir()
	dir := writeVariant(t, root, "tuned", "archlinux")

	opts, err := LoadOptions(dir)
	if err != nil {
		t.Fatalf("LoadOptions without file failed: %v", err)
	}
	if opts.DiskSizeGB != 0 || opts.SkipArchive != nil {
		t.Fatalf("expected zero options, got %#v", opts)
	}

	writeFile(t, filepath.Join(dir, OptionsFileName), "disk_size_gb: 30\nskip_archive: true\n")
	opts, err = LoadOptions(dir)
	if err != nil {
		t.Fatalf("LoadOptions failed: %v", err)
	}
	if opts.DiskSizeGB != 30 {
		t.Fatalf("disk_size_gb = %d, want 30", opts.DiskSizeGB)
	}
	if opts.SkipArchive == nil || !*opts.SkipArchive {
		t.Fatalf("skip_archive = %v, want true", opts.SkipArchive)
	}
}
