// Package platform binds the visibility machinery to the desktop's window
// system.
package platform

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/kage-desktop/kage/internal/visibility"
)

// ErrUnsupported is returned by Open when no display server can be used.
var ErrUnsupported = errors.New("no supported display server")

// Desktop is one window-system connection exposing the foreground probe and
// the companion window.
type Desktop struct {
	Probe  visibility.ForegroundWindowProbe
	Window visibility.Window
	close  func()
}

// Close releases the display connection.
func (d *Desktop) Close() {
	if d != nil && d.close != nil {
		d.close()
	}
}

// ProcessName resolves a pid to its executable name.
func ProcessName(pid int) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("invalid pid %d", pid)
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", err
	}
	name, err := p.Name()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(name), nil
}

func physicalRect(x, y, width, height int) visibility.Rect {
	return visibility.Rect{
		X:      float64(x),
		Y:      float64(y),
		Width:  float64(width),
		Height: float64(height),
	}
}
