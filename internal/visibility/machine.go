// Package visibility decides whether the companion window is shown. It
// reconciles the user's manual hide/show toggle with fullscreen state of
// the foreground application.
package visibility

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kage-desktop/kage/internal/metrics"
)

// Window is the presentation window being shown or hidden.
type Window interface {
	Visible() bool
	Show() error
	Hide() error
}

// Observation is the result of one foreground detection pass.
type Observation int

const (
	// Unknown means detection failed. It fails open: an active fullscreen
	// state is treated as exited.
	Unknown Observation = iota
	Windowed
	Fullscreen
	// Self means the foreground window belongs to kage; nothing changes.
	Self
)

func (o Observation) String() string {
	switch o {
	case Windowed:
		return "windowed"
	case Fullscreen:
		return "fullscreen"
	case Self:
		return "self"
	default:
		return "unknown"
	}
}

// State is a snapshot of the machine.
type State struct {
	ManuallyHidden   bool `json:"manually_hidden"`
	FullscreenActive bool `json:"fullscreen_active"`
	Visible          bool `json:"visible"`
}

// Machine owns the manual-hide flag and the recorded fullscreen state. All
// window show/hide calls go through it.
type Machine struct {
	mu               sync.Mutex
	win              Window
	manuallyHidden   bool
	fullscreenActive bool
	log              zerolog.Logger
}

// NewMachine starts with both flags false.
func NewMachine(win Window, log zerolog.Logger) *Machine {
	return &Machine{win: win, log: log}
}

// Toggle flips the window. Showing clears the manual flag even while a
// fullscreen application is active.
func (m *Machine) Toggle() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.win.Visible() {
		if err := m.win.Hide(); err != nil {
			return m.snapshotLocked(), fmt.Errorf("hide window: %w", err)
		}
		m.manuallyHidden = true
		m.log.Info().Msg("window hidden by user")
		metrics.VisibilityChanged("manual", false)
	} else {
		if err := m.win.Show(); err != nil {
			return m.snapshotLocked(), fmt.Errorf("show window: %w", err)
		}
		m.manuallyHidden = false
		m.log.Info().Msg("window shown by user")
		metrics.VisibilityChanged("manual", true)
	}
	return m.snapshotLocked(), nil
}

// Observe applies one detection result. Only a change relative to the
// recorded fullscreen state has an effect.
func (m *Machine) Observe(obs Observation) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	switch obs {
	case Self:
	case Fullscreen:
		if !m.fullscreenActive {
			err = m.enterFullscreenLocked()
		}
	default:
		if m.fullscreenActive {
			err = m.exitFullscreenLocked(obs)
		}
	}
	return m.snapshotLocked(), err
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Show makes the window visible unless the user hid it or a fullscreen
// application is active. Used once the surface is ready.
func (m *Machine) Show() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.manuallyHidden || m.fullscreenActive || m.win.Visible() {
		return nil
	}
	if err := m.win.Show(); err != nil {
		return fmt.Errorf("show window: %w", err)
	}
	metrics.VisibilityChanged("startup", true)
	return nil
}

// enterFullscreenLocked records the fullscreen state only once the window is
// out of the way, so a failed hide is retried on the next observation.
func (m *Machine) enterFullscreenLocked() error {
	if m.win.Visible() {
		if err := m.win.Hide(); err != nil {
			return fmt.Errorf("hide window: %w", err)
		}
		metrics.VisibilityChanged("fullscreen_enter", false)
	}
	m.fullscreenActive = true
	m.log.Info().Msg("fullscreen application detected")
	return nil
}

func (m *Machine) exitFullscreenLocked(obs Observation) error {
	if !m.manuallyHidden && !m.win.Visible() {
		if err := m.win.Show(); err != nil {
			return fmt.Errorf("show window: %w", err)
		}
		metrics.VisibilityChanged("fullscreen_exit", true)
	}
	m.fullscreenActive = false
	m.log.Info().Stringer("observation", obs).Msg("fullscreen application left")
	return nil
}

func (m *Machine) snapshotLocked() State {
	return State{
		ManuallyHidden:   m.manuallyHidden,
		FullscreenActive: m.fullscreenActive,
		Visible:          m.win.Visible(),
	}
}
