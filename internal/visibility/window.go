package visibility

import "sync"

// MemoryWindow is a Window with no on-screen counterpart. It is used when
// no display server is reachable.
type MemoryWindow struct {
	mu      sync.Mutex
	visible bool
}

// NewMemoryWindow returns a window in the given state.
func NewMemoryWindow(visible bool) *MemoryWindow {
	return &MemoryWindow{visible: visible}
}

func (w *MemoryWindow) Visible() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible
}

func (w *MemoryWindow) Show() error {
	w.mu.Lock()
	w.visible = true
	w.mu.Unlock()
	return nil
}

func (w *MemoryWindow) Hide() error {
	w.mu.Lock()
	w.visible = false
	w.mu.Unlock()
	return nil
}
