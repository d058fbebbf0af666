//go:build !linux

package platform

import "github.com/rs/zerolog"

// Open is only implemented for X11.
func Open(string, zerolog.Logger) (*Desktop, error) {
	return nil, ErrUnsupported
}
