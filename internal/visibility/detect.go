package visibility

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrNoForegroundWindow is returned by probes when nothing has focus.
var ErrNoForegroundWindow = errors.New("no foreground window")

// Rect is a rectangle in pixels.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// ForegroundWindow describes the focused top-level window.
type ForegroundWindow struct {
	Owner  string // process name of the owning application
	Title  string
	Bounds Rect // physical pixels
}

// Display is a connected monitor. Bounds are logical pixels; multiplying by
// ScaleFactor yields physical pixels.
type Display struct {
	Name        string
	Bounds      Rect
	ScaleFactor float64
}

// ForegroundWindowProbe reports the focused window and the display layout.
type ForegroundWindowProbe interface {
	ForegroundWindow() (*ForegroundWindow, error)
	Displays() ([]Display, error)
}

// Detector classifies the foreground window with a bounds heuristic.
type Detector struct {
	Probe ForegroundWindowProbe
	// SelfName marks windows owned by this application.
	SelfName string
	// Tolerance in physical pixels for width and height.
	Tolerance float64
}

// Detect returns Unknown with the cause when the probe fails.
func (d *Detector) Detect() (Observation, error) {
	win, err := d.Probe.ForegroundWindow()
	if err != nil {
		return Unknown, err
	}
	if win == nil {
		return Unknown, ErrNoForegroundWindow
	}
	if d.SelfName != "" && (strings.Contains(win.Owner, d.SelfName) || strings.Contains(win.Title, d.SelfName)) {
		return Self, nil
	}

	displays, err := d.Probe.Displays()
	if err != nil {
		return Unknown, fmt.Errorf("list displays: %w", err)
	}
	for _, disp := range displays {
		if coversDisplay(win.Bounds, disp, d.Tolerance) {
			return Fullscreen, nil
		}
	}
	return Windowed, nil
}

func coversDisplay(win Rect, disp Display, tol float64) bool {
	scale := disp.ScaleFactor
	if scale <= 0 {
		scale = 1
	}
	pw := disp.Bounds.Width * scale
	ph := disp.Bounds.Height * scale
	return math.Abs(win.Width-pw) < tol && math.Abs(win.Height-ph) < tol
}
