package backend

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/silverhadch/arkdep/internal/runner"
	"github.com/silverhadch/arkdep/internal/variant"
)

type stubRunner struct {
	commands []runner.Command
	output   string
	err      error
}

func (s *stubRunner) Run(_ context.Context, cmd runner.Command) error {
	s.commands = append(s.commands, cmd)
	return s.err
}

func (s *stubRunner) Output(_ context.Context, cmd runner.Command) (string, error) {
	s.commands = append(s.commands, cmd)
	return s.output, s.err
}

func TestForType(t *testing.T) {
	stub := &stubRunner{}
	logger := discard()

	arch, err := ForType(variant.BuildTypeArchLinux, stub, logger)
	if err != nil || arch.Name() != "archlinux" {
		t.Fatalf("archlinux backend: %v, %v", arch, err)
	}
	deb, err := ForType(variant.BuildTypeDebian, stub, logger)
	if err != nil || deb.Name() != "debian" {
		t.Fatalf("debian backend: %v, %v", deb, err)
	}
	if _, err := ForType(variant.BuildTypeMigration, stub, logger); err == nil {
		t.Fatal("migration type must have no backend")
	}
}

func TestArchLinuxBootstrapCommand(t *testing.T) {
	stub := &stubRunner{}
	b := &ArchLinux{Run: stub, Logger: discard()}

	if err := b.Bootstrap(context.Background(), "/mnt/rootfs", []string{"base", "linux"}); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	got := stub.commands[0]
	want := "pacstrap -c -K /mnt/rootfs base linux"
	if got.String() != want {
		t.Fatalf("command = %q, want %q", got.String(), want)
	}
}

func TestArchLinuxBootstrapRejectsEmptyList(t *testing.T) {
	b := &ArchLinux{Run: &stubRunner{}, Logger: discard()}
	if err := b.Bootstrap(context.Background(), "/mnt/rootfs", nil); err == nil {
		t.Fatal("empty bootstrap list must fail")
	}
}

func TestArchLinuxInstallCommand(t *testing.T) {
	stub := &stubRunner{}
	b := &ArchLinux{Run: stub, Logger: discard()}

	if err := b.Install(context.Background(), "/mnt/rootfs", []string{"vim"}); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	got := stub.commands[0].String()
	want := "arch-chroot /mnt/rootfs pacman -S --noconfirm --needed vim"
	if got != want {
		t.Fatalf("command = %q, want %q", got, want)
	}

	// Empty secondary list is a no-op, not an error.
	stub.commands = nil
	if err := b.Install(context.Background(), "/mnt/rootfs", nil); err != nil {
		t.Fatalf("empty install failed: %v", err)
	}
	if len(stub.commands) != 0 {
		t.Fatalf("install ran with empty list: %v", stub.commands)
	}
}

func TestArchLinuxStageKernelCopiesMicrocode(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"boot", "usr/lib/modules/6.9.1-arch1-1"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "boot/intel-ucode.img"), []byte("ucode"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := &ArchLinux{Run: &stubRunner{}, Logger: discard()}
	if err := b.StageKernel(context.Background(), root); err != nil {
		t.Fatalf("StageKernel failed: %v", err)
	}

	staged := filepath.Join(root, "usr/lib/modules/6.9.1-arch1-1/intel-ucode.img")
	data, err := os.ReadFile(staged)
	if err != nil {
		t.Fatalf("microcode not staged: %v", err)
	}
	if string(data) != "ucode" {
		t.Fatalf("staged microcode = %q", data)
	}
}

func TestArchLinuxStageKernelWithoutMicrocode(t *testing.T) {
	b := &ArchLinux{Run: &stubRunner{}, Logger: discard()}
	if err := b.StageKernel(context.Background(), t.TempDir()); err != nil {
		t.Fatalf("StageKernel on bare root failed: %v", err)
	}
}

func TestDebianBootstrapCommand(t *testing.T) {
	stub := &stubRunner{}
	b := &Debian{Run: stub, Logger: discard()}

	if err := b.Bootstrap(context.Background(), "/mnt/rootfs", []string{"dbus", "openssh-server"}); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	got := stub.commands[0].String()
	want := "debootstrap --include=dbus,openssh-server stable /mnt/rootfs"
	if got != want {
		t.Fatalf("command = %q, want %q", got, want)
	}
}

func TestDebianInstallSetsNoninteractiveFrontend(t *testing.T) {
	stub := &stubRunner{}
	b := &Debian{Run: stub, Logger: discard()}

	if err := b.Install(context.Background(), "/mnt/rootfs", []string{"htop"}); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	cmd := stub.commands[0]
	if cmd.Name != "chroot" {
		t.Fatalf("command = %q, want chroot", cmd.Name)
	}
	found := false
	for _, env := range cmd.Env {
		if strings.HasPrefix(env, "DEBIAN_FRONTEND=") {
			found = true
		}
	}
	if !found {
		t.Fatalf("env %v missing DEBIAN_FRONTEND", cmd.Env)
	}
}

func TestDebianListPackages(t *testing.T) {
	stub := &stubRunner{output: "bash 5.2\n"}
	b := &Debian{Run: stub, Logger: discard()}

	out, err := b.ListPackages(context.Background(), "/mnt/rootfs")
	if err != nil {
		t.Fatalf("ListPackages failed: %v", err)
	}
	if out != "bash 5.2\n" {
		t.Fatalf("manifest = %q", out)
	}
	if stub.commands[0].Name != "chroot" {
		t.Fatalf("query command = %q, want chroot", stub.commands[0].Name)
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
