package runtimepath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, td string) (kageDir, xdgDir string)
		want    func(td string) string
		wantErr bool
	}{
		{
			name:  "override used as is",
			setup: func(t *testing.T, td string) (string, string) { return filepath.Join(td, "custom"), filepath.Join(td, "xdg") },
			want:  func(td string) string { return filepath.Join(td, "custom") },
		},
		{
			name:  "xdg runtime dir gets a kage subdirectory",
			setup: func(t *testing.T, td string) (string, string) { return "", td },
			want:  func(td string) string { return filepath.Join(td, "kage") },
		},
		{
			name: "symlink refused",
			setup: func(t *testing.T, td string) (string, string) {
				if err := os.Symlink(t.TempDir(), filepath.Join(td, "kage")); err != nil {
					t.Fatalf("symlink: %v", err)
				}
				return "", td
			},
			wantErr: true,
		},
		{
			name: "regular file refused",
			setup: func(t *testing.T, td string) (string, string) {
				if err := os.WriteFile(filepath.Join(td, "kage"), nil, 0o600); err != nil {
					t.Fatalf("write: %v", err)
				}
				return "", td
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			td := t.TempDir()
			kageDir, xdgDir := tt.setup(t, td)
			t.Setenv("KAGE_RUNTIME_DIR", kageDir)
			t.Setenv("XDG_RUNTIME_DIR", xdgDir)

			got, err := Dir()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Dir() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Dir() error: %v", err)
			}
			if want := tt.want(td); got != want {
				t.Fatalf("Dir() = %q, want %q", got, want)
			}
			if info, err := os.Stat(got); err != nil || !info.IsDir() {
				t.Fatalf("Dir() did not create %q: %v", got, err)
			}
		})
	}
}

func TestDir_TightensLoosePermissions(t *testing.T) {
	td := t.TempDir()
	dir := filepath.Join(td, "kage")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Chmod(dir, 0o755); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Setenv("KAGE_RUNTIME_DIR", "")
	t.Setenv("XDG_RUNTIME_DIR", td)

	if _, err := Dir(); err != nil {
		t.Fatalf("Dir() error: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o700 {
		t.Fatalf("mode = %o, want 700", perm)
	}
}

func TestDir_FallbacksWhenXDGRuntimeDirMissing(t *testing.T) {
	t.Setenv("KAGE_RUNTIME_DIR", "")
	t.Setenv("XDG_RUNTIME_DIR", "")

	got, err := Dir()
	if err != nil {
		t.Fatalf("Dir() error: %v", err)
	}

	wantRun := fmt.Sprintf("/run/user/%d/kage", os.Getuid())
	wantTmp := filepath.Join(os.TempDir(), fmt.Sprintf("kage-%d", os.Getuid()))
	if got != wantRun && got != wantTmp {
		t.Fatalf("Dir() = %q, want %q or %q", got, wantRun, wantTmp)
	}
}

func TestSocketPathAndPIDPath(t *testing.T) {
	td := t.TempDir()
	t.Setenv("KAGE_RUNTIME_DIR", td)

	socket, err := SocketPath()
	if err != nil {
		t.Fatalf("SocketPath() error: %v", err)
	}
	if socket != filepath.Join(td, "kage.sock") {
		t.Fatalf("SocketPath() = %q, want %s/kage.sock", socket, td)
	}

	pid, err := PIDPath()
	if err != nil {
		t.Fatalf("PIDPath() error: %v", err)
	}
	if !strings.HasPrefix(pid, td) || !strings.HasSuffix(pid, "/kage.pid") {
		t.Fatalf("PIDPath() = %q, want %s/kage.pid", pid, td)
	}
}
