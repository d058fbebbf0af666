//go:build linux

package platform

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/rs/zerolog"

	"github.com/kage-desktop/kage/internal/visibility"
	"github.com/kage-desktop/kage/internal/x11"
)

// Open connects to the X server and returns a desktop whose window is the
// top-level client titled surfaceTitle.
func Open(surfaceTitle string, log zerolog.Logger) (*Desktop, error) {
	conn, err := x11.NewConnection()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to X11: %v", ErrUnsupported, err)
	}
	return &Desktop{
		Probe:  &X11Probe{conn: conn, processName: ProcessName},
		Window: NewX11Window(conn, surfaceTitle, log),
		close:  conn.Close,
	}, nil
}

// X11Probe reads the focused window through EWMH and the monitor layout
// through RandR.
type X11Probe struct {
	conn        *x11.Connection
	processName func(pid int) (string, error)
}

var _ visibility.ForegroundWindowProbe = (*X11Probe)(nil)

func (p *X11Probe) ForegroundWindow() (*visibility.ForegroundWindow, error) {
	wid, err := p.conn.GetActiveWindow()
	if err != nil {
		return nil, err
	}
	if wid == 0 {
		return nil, visibility.ErrNoForegroundWindow
	}

	geom, err := p.conn.WindowGeometry(wid)
	if err != nil {
		return nil, fmt.Errorf("window 0x%x geometry: %w", wid, err)
	}

	win := &visibility.ForegroundWindow{
		Title:  p.conn.WindowTitle(wid),
		Bounds: physicalRect(geom.X, geom.Y, geom.Width, geom.Height),
	}
	if pid, err := p.conn.WindowPID(wid); err == nil {
		if name, err := p.processName(pid); err == nil {
			win.Owner = name
		}
	}
	return win, nil
}

// Displays reports the RandR layout.
func (p *X11Probe) Displays() ([]visibility.Display, error) {
	return p.conn.Displays()
}

// X11Window maps and unmaps the surface's top-level window. Until the
// surface has created its window the requested state is only recorded and
// applied once the window is found.
type X11Window struct {
	conn  *x11.Connection
	title string
	log   zerolog.Logger

	mu      sync.Mutex
	id      xproto.Window
	visible bool
}

var _ visibility.Window = (*X11Window)(nil)

func NewX11Window(conn *x11.Connection, title string, log zerolog.Logger) *X11Window {
	return &X11Window{conn: conn, title: title, log: log}
}

func (w *X11Window) Visible() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if id, ok := w.lookupLocked(); ok {
		if viewable, err := w.conn.IsViewable(id); err == nil {
			w.visible = viewable
		}
	}
	return w.visible
}

func (w *X11Window) Show() error {
	return w.set(true)
}

func (w *X11Window) Hide() error {
	return w.set(false)
}

func (w *X11Window) set(visible bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	id, ok := w.lookupLocked()
	if !ok {
		w.log.Debug().Str("title", w.title).Bool("visible", visible).Msg("surface window not found, recording state")
		w.visible = visible
		return nil
	}

	var err error
	if visible {
		err = w.conn.MapWindow(id)
	} else {
		err = w.conn.UnmapWindow(id)
	}
	if err != nil {
		// The window may have been destroyed; search again next time.
		w.id = 0
		return fmt.Errorf("window 0x%x: %w", id, err)
	}
	w.visible = visible
	return nil
}

// lookupLocked returns the cached window id, searching the client list on
// a miss. Unmapped windows drop out of the client list, so the id is kept
// once found.
func (w *X11Window) lookupLocked() (xproto.Window, bool) {
	if w.id != 0 {
		return w.id, true
	}
	id, found, err := w.conn.FindWindowByTitle(w.title)
	if err != nil {
		w.log.Debug().Err(err).Msg("client list unavailable")
		return 0, false
	}
	if !found {
		return 0, false
	}
	w.id = id
	return id, true
}
