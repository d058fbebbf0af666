package x11

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
)

// ErrNoDisplay is returned by NewConnection when the session has no X
// display, as on a bare Wayland or headless login.
var ErrNoDisplay = errors.New("DISPLAY is not set")

// Connection is the X session kage watches for the focused window and the
// monitor layout.
type Connection struct {
	XUtil *xgbutil.XUtil
	Root  xproto.Window

	randrOnce sync.Once
	randrErr  error
}

// NewConnection connects to the X server named by $DISPLAY.
func NewConnection() (*Connection, error) {
	display := os.Getenv("DISPLAY")
	if display == "" {
		return nil, ErrNoDisplay
	}
	xu, err := xgbutil.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", display, err)
	}
	return &Connection{
		XUtil: xu,
		Root:  xu.RootWin(),
	}, nil
}

// initRandR sets up the RandR extension on first use. The layout is polled for
// every fullscreen check, so the handshake happens once per connection.
func (c *Connection) initRandR() error {
	c.randrOnce.Do(func() {
		if err := randr.Init(c.XUtil.Conn()); err != nil {
			c.randrErr = fmt.Errorf("randr: %w", err)
		}
	})
	return c.randrErr
}

func (c *Connection) Close() {
	c.XUtil.Conn().Close()
}
