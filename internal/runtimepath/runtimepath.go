package runtimepath

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	socketName = "kage.sock"
	pidName    = "kage.pid"
)

// Dir returns the directory holding the daemon's control socket and pid
// file, creating it when missing. Priority:
// 1) KAGE_RUNTIME_DIR, used as is
// 2) $XDG_RUNTIME_DIR/kage
// 3) /run/user/<uid>/kage when /run/user/<uid> exists
// 4) $TMPDIR/kage-<uid>
func Dir() (string, error) {
	if dir := os.Getenv("KAGE_RUNTIME_DIR"); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", fmt.Errorf("create runtime dir: %w", err)
		}
		return dir, nil
	}

	uid := os.Getuid()
	base := os.Getenv("XDG_RUNTIME_DIR")
	if base == "" {
		runUser := fmt.Sprintf("/run/user/%d", uid)
		if info, err := os.Stat(runUser); err == nil && info.IsDir() {
			base = runUser
		}
	}
	if base != "" {
		return private(filepath.Join(base, "kage"))
	}
	return private(filepath.Join(os.TempDir(), fmt.Sprintf("kage-%d", uid)))
}

// private creates dir readable only by the user. A symlink or file already
// sitting at dir is refused since anyone could have planted it.
func private(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create runtime dir: %w", err)
	}
	info, err := os.Lstat(dir)
	if err != nil {
		return "", fmt.Errorf("stat runtime dir: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("runtime dir %s is not a directory", dir)
	}
	if info.Mode().Perm()&0o077 != 0 {
		if err := os.Chmod(dir, 0o700); err != nil {
			return "", fmt.Errorf("restrict runtime dir: %w", err)
		}
	}
	return dir, nil
}

func file(name string) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// SocketPath returns the daemon IPC socket path.
func SocketPath() (string, error) { return file(socketName) }

// PIDPath returns the daemon pid file path.
func PIDPath() (string, error) { return file(pidName) }
