package variant

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseListLines(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "plain entries",
			text: "coreutils\nbash\n",
			want: []string{"coreutils", "bash"},
		},
		{
			name: "comments and blanks dropped",
			text: "coreutils\n#comment\n\nbash",
			want: []string{"coreutils", "bash"},
		},
		{
			name: "trailing comment truncated and trimmed",
			text: "foo # comment",
			want: []string{"foo"},
		},
		{
			name: "whitespace only lines dropped",
			text: "  \n\t\nfoo\n   bar  \n",
			want: []string{"foo", "bar"},
		},
		{
			name: "comment only",
			text: "# nothing here\n#either\n",
			want: nil,
		},
		{
			name: "empty input",
			text: "",
			want: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseListLines(tc.text)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ParseListLines(%q) = %#v, want %#v", tc.text, got, tc.want)
			}
		})
	}
}

func TestMergeListsContributorOrder(t *testing.T) {
	root := t.TempDir()
	base := writeVariant(t, root, "base", "archlinux")
	extra := writeVariant(t, root, "extra", "archlinux")
	child := writeVariant(t, root, "child", "archlinux")

	writeFile(t, filepath.Join(base, PackageList), "vim\nopenssh\n")
	writeFile(t, filepath.Join(extra, PackageList), "htop\nvim # duplicate, first wins\n")
	writeFile(t, filepath.Join(child, PackageList), "git\n")

	plan := Plan{Contributors: []Contributor{
		{Name: "base", Dir: base},
		{Name: "extra", Dir: extra},
		{Name: "child", Dir: child},
	}}

	got, err := MergeLists(plan, PackageList)
	if err != nil {
		t.Fatalf("MergeLists failed: %v", err)
	}
	want := []string{"vim", "openssh", "htop", "git"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("merged list = %#v, want %#v", got, want)
	}
}

func TestMergeListsMissingFileContributesNothing(t *testing.T) {
	root := t.TempDir()
	base := writeVariant(t, root, "base", "archlinux")
	child := writeVariant(t, root, "child", "archlinux")
	writeFile(t, filepath.Join(child, BootstrapList), "coreutils\n#comment\n\nbash\n")

	plan := Plan{Contributors: []Contributor{
		{Name: "base", Dir: base},
		{Name: "child", Dir: child},
	}}

	got, err := MergeLists(plan, BootstrapList)
	if err != nil {
		t.Fatalf("MergeLists failed: %v", err)
	}
	want := []string{"coreutils", "bash"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("merged list = %#v, want %#v", got, want)
	}
}

func writeVariant(t *testing.T, configRoot, name, buildType string) string {
	t.Helper()
	dir := filepath.Join(configRoot, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create variant dir: %v", err)
	}
	if buildType != "" {
		writeFile(t, filepath.Join(dir, TypeFileName), buildType+"\n")
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create dir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
