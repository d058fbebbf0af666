package x11

import (
	"fmt"
	"slices"
	"sort"

	"github.com/BurntSushi/xgb/randr"

	"github.com/kage-desktop/kage/internal/visibility"
)

// crtc is one RandR scanout as read from the server.
type crtc struct {
	index   int
	name    string
	primary bool
	info    *randr.GetCrtcInfoReply
}

// Displays reports the enabled CRTCs as fullscreen-detection targets, the
// primary output first. X11 works in physical pixels, so every scale factor
// is 1.
func (c *Connection) Displays() ([]visibility.Display, error) {
	if err := c.initRandR(); err != nil {
		return nil, err
	}
	conn := c.XUtil.Conn()

	res, err := randr.GetScreenResources(conn, c.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("screen resources: %w", err)
	}
	var primary randr.Output
	if reply, err := randr.GetOutputPrimary(conn, c.Root).Reply(); err == nil {
		primary = reply.Output
	}

	crtcs := make([]crtc, 0, len(res.Crtcs))
	for i, id := range res.Crtcs {
		info, err := randr.GetCrtcInfo(conn, id, res.ConfigTimestamp).Reply()
		if err != nil || len(info.Outputs) == 0 {
			continue
		}
		var name string
		if out, err := randr.GetOutputInfo(conn, info.Outputs[0], res.ConfigTimestamp).Reply(); err == nil {
			name = string(out.Name)
		}
		crtcs = append(crtcs, crtc{
			index:   i,
			name:    name,
			primary: primary != 0 && slices.Contains(info.Outputs, primary),
			info:    info,
		})
	}
	return layoutDisplays(crtcs), nil
}

// layoutDisplays drops disabled CRTCs and reports mirrored ones once.
func layoutDisplays(crtcs []crtc) []visibility.Display {
	sort.SliceStable(crtcs, func(i, j int) bool {
		if crtcs[i].primary != crtcs[j].primary {
			return crtcs[i].primary
		}
		return crtcs[i].index < crtcs[j].index
	})

	seen := make(map[visibility.Rect]bool, len(crtcs))
	displays := make([]visibility.Display, 0, len(crtcs))
	for _, c := range crtcs {
		if c.info.Width == 0 || c.info.Height == 0 {
			continue
		}
		bounds := visibility.Rect{
			X:      float64(c.info.X),
			Y:      float64(c.info.Y),
			Width:  float64(c.info.Width),
			Height: float64(c.info.Height),
		}
		if seen[bounds] {
			continue
		}
		seen[bounds] = true

		name := c.name
		if name == "" {
			name = fmt.Sprintf("crtc-%d", c.index)
		}
		displays = append(displays, visibility.Display{
			Name:        name,
			Bounds:      bounds,
			ScaleFactor: 1,
		})
	}
	return displays
}
