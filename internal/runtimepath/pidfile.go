package runtimepath

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// ErrAlreadyRunning is returned by AcquirePIDFile when another live daemon
// holds the pid file.
var ErrAlreadyRunning = errors.New("kage is already running")

// PIDFile is a held pid file.
type PIDFile struct {
	path string
	pid  int
}

// AcquirePIDFile writes the current pid to path. A file naming a process
// that no longer exists is treated as stale and replaced.
func AcquirePIDFile(path string) (*PIDFile, error) {
	if pid, err := ReadPID(path); err == nil && pid != os.Getpid() {
		alive, err := process.PidExists(int32(pid))
		if err == nil && alive {
			return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
		}
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0600); err != nil {
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	return &PIDFile{path: path, pid: pid}, nil
}

// ReadPID returns the pid recorded at path.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("malformed pid file %s", path)
	}
	return pid, nil
}

// Release removes the pid file if it still names this process.
func (p *PIDFile) Release() error {
	if p == nil {
		return nil
	}
	if pid, err := ReadPID(p.path); err != nil || pid != p.pid {
		return nil
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
