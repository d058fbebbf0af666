package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Keys lists every path accepted by Lookup and SetValue.
var Keys = []string{
	"ws_port",
	"model_path",
	"model_bounds.width",
	"model_bounds.height",
	"model_bounds.x",
	"model_bounds.y",
	"enable_sound",
	"message_box_position.top",
	"message_box_position.left",
	"debug_mode",
	"enable_mouse_passthrough",
	"language",
	"surface.command",
	"surface.window_title",
	"bridge_timeout_ms",
	"fullscreen_poll_ms",
	"fullscreen_tolerance_px",
	"restart_delay_ms",
}

// Lookup returns the value at the given YAML-like path, e.g.
//
//	ws_port
//	model_bounds.width
//	surface.window_title
func Lookup(cfg *Config, path string) (any, error) {
	if cfg == nil {
		return nil, fmt.Errorf("no config loaded")
	}
	ptr, err := fieldFor(cfg, path)
	if err != nil {
		return nil, err
	}
	switch v := ptr.(type) {
	case *int:
		return *v, nil
	case *float64:
		return *v, nil
	case *bool:
		return *v, nil
	case *string:
		return *v, nil
	case *[]string:
		return *v, nil
	}
	return nil, fmt.Errorf("unknown path: %s", path)
}

// SetValue parses raw as YAML into the field at path. The result is not
// validated; callers save through Store or SaveTo which do that.
func SetValue(cfg *Config, path, raw string) error {
	if cfg == nil {
		return fmt.Errorf("no config loaded")
	}
	ptr, err := fieldFor(cfg, path)
	if err != nil {
		return err
	}
	if s, ok := ptr.(*string); ok {
		// Bare strings need no quoting on the command line.
		var parsed string
		if err := yaml.Unmarshal([]byte(raw), &parsed); err != nil || parsed == "" {
			parsed = raw
		}
		*s = parsed
		return nil
	}
	if err := yaml.Unmarshal([]byte(raw), ptr); err != nil {
		return &ValidationError{Path: path, Err: fmt.Errorf("invalid value %q: %w", raw, err)}
	}
	return nil
}

func fieldFor(cfg *Config, path string) (any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("path is empty")
	}
	switch path {
	case "ws_port":
		return &cfg.WSPort, nil
	case "model_path":
		return &cfg.ModelPath, nil
	case "model_bounds.width":
		return &cfg.ModelBounds.Width, nil
	case "model_bounds.height":
		return &cfg.ModelBounds.Height, nil
	case "model_bounds.x":
		return &cfg.ModelBounds.X, nil
	case "model_bounds.y":
		return &cfg.ModelBounds.Y, nil
	case "enable_sound":
		return &cfg.EnableSound, nil
	case "message_box_position.top":
		return &cfg.MessageBoxPosition.Top, nil
	case "message_box_position.left":
		return &cfg.MessageBoxPosition.Left, nil
	case "debug_mode":
		return &cfg.DebugMode, nil
	case "enable_mouse_passthrough":
		return &cfg.EnableMousePassthrough, nil
	case "language":
		return &cfg.Language, nil
	case "surface.command":
		return &cfg.Surface.Command, nil
	case "surface.window_title":
		return &cfg.Surface.WindowTitle, nil
	case "bridge_timeout_ms":
		return &cfg.BridgeTimeoutMS, nil
	case "fullscreen_poll_ms":
		return &cfg.FullscreenPollMS, nil
	case "fullscreen_tolerance_px":
		return &cfg.FullscreenTolerancePX, nil
	case "restart_delay_ms":
		return &cfg.RestartDelayMS, nil
	}
	return nil, fmt.Errorf("unknown path: %s", path)
}
