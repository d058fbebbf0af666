package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultWSPort            = 23333
	MinWSPort                = 1024
	MaxWSPort                = 65535
	DefaultBridgeTimeoutMS   = 10000
	DefaultFullscreenPollMS  = 2000
	DefaultFullscreenTolPX   = 20
	DefaultRestartDelayMS    = 500
	DefaultSurfaceTitle      = "Kage"
	DefaultLanguage          = "en"
	modelDefinitionExtension = ".model3.json"
)

// SupportedLanguages lists the accepted values of the language key.
var SupportedLanguages = []string{"en", "zh-CN", "zh"}

// Bounds is the on-screen rectangle of the model container.
type Bounds struct {
	Width  float64 `yaml:"width" json:"width"`
	Height float64 `yaml:"height" json:"height"`
	X      float64 `yaml:"x" json:"x"`
	Y      float64 `yaml:"y" json:"y"`
}

// Position is the offset of the speech bubble inside the model container.
type Position struct {
	Top  float64 `yaml:"top" json:"top"`
	Left float64 `yaml:"left" json:"left"`
}

// SurfaceConfig describes how the presentation surface process is launched.
type SurfaceConfig struct {
	// Command is the argv of the presentation process. Empty runs the
	// built-in headless surface (`kage surface`).
	Command []string `yaml:"command,omitempty"`
	// WindowTitle identifies the surface window on screen. The fullscreen
	// detector skips windows whose title or owner contains it.
	WindowTitle string `yaml:"window_title"`
}

// Config holds the persisted kage settings.
type Config struct {
	WSPort                 int           `yaml:"ws_port"`
	ModelPath              string        `yaml:"model_path"`
	ModelBounds            Bounds        `yaml:"model_bounds"`
	EnableSound            bool          `yaml:"enable_sound"`
	MessageBoxPosition     Position      `yaml:"message_box_position"`
	DebugMode              bool          `yaml:"debug_mode"`
	EnableMousePassthrough bool          `yaml:"enable_mouse_passthrough"`
	Language               string        `yaml:"language"`
	Surface                SurfaceConfig `yaml:"surface"`

	// BridgeTimeoutMS of 0 waits forever.
	BridgeTimeoutMS       int `yaml:"bridge_timeout_ms"`
	FullscreenPollMS      int `yaml:"fullscreen_poll_ms"`
	FullscreenTolerancePX int `yaml:"fullscreen_tolerance_px"`
	RestartDelayMS        int `yaml:"restart_delay_ms"`
}

// ValidationError points at the offending key.
type ValidationError struct {
	Path string
	Err  error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// DefaultConfig returns the settings used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		WSPort:                 DefaultWSPort,
		ModelPath:              DefaultModelPath(),
		ModelBounds:            Bounds{Width: 400, Height: 300, X: 100, Y: 100},
		EnableSound:            true,
		MessageBoxPosition:     Position{Top: 10, Left: 50},
		DebugMode:              false,
		EnableMousePassthrough: true,
		Language:               DefaultLanguage,
		Surface:                SurfaceConfig{WindowTitle: DefaultSurfaceTitle},
		BridgeTimeoutMS:        DefaultBridgeTimeoutMS,
		FullscreenPollMS:       DefaultFullscreenPollMS,
		FullscreenTolerancePX:  DefaultFullscreenTolPX,
		RestartDelayMS:         DefaultRestartDelayMS,
	}
}

// DataDir returns the directory holding bundled models.
func DataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "kage")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "kage")
	}
	return filepath.Join(home, ".local", "share", "kage")
}

// DefaultModelPath returns the bundled model definition.
func DefaultModelPath() string {
	return filepath.Join(DataDir(), "models", "HK416_3401", "normal.model3.json")
}

// Validate checks the settings the way the settings form does.
func (c *Config) Validate() error {
	if c.WSPort < MinWSPort || c.WSPort > MaxWSPort {
		return &ValidationError{Path: "ws_port", Err: fmt.Errorf("ws_port must be between %d and %d", MinWSPort, MaxWSPort)}
	}
	if strings.TrimSpace(c.ModelPath) == "" || !strings.HasSuffix(c.ModelPath, modelDefinitionExtension) {
		return &ValidationError{Path: "model_path", Err: fmt.Errorf("model_path must point to a %s file", modelDefinitionExtension)}
	}
	if c.ModelBounds.Width <= 0 || c.ModelBounds.Height <= 0 {
		return &ValidationError{Path: "model_bounds", Err: fmt.Errorf("model_bounds width and height must be > 0")}
	}
	if !isSupportedLanguage(c.Language) {
		return &ValidationError{Path: "language", Err: fmt.Errorf("language must be one of: %s", strings.Join(SupportedLanguages, ", "))}
	}
	if strings.TrimSpace(c.Surface.WindowTitle) == "" {
		return &ValidationError{Path: "surface.window_title", Err: fmt.Errorf("window_title is required")}
	}
	if c.BridgeTimeoutMS < 0 {
		return &ValidationError{Path: "bridge_timeout_ms", Err: fmt.Errorf("bridge_timeout_ms must be >= 0")}
	}
	if c.FullscreenPollMS < 100 {
		return &ValidationError{Path: "fullscreen_poll_ms", Err: fmt.Errorf("fullscreen_poll_ms must be >= 100")}
	}
	if c.FullscreenTolerancePX < 0 {
		return &ValidationError{Path: "fullscreen_tolerance_px", Err: fmt.Errorf("fullscreen_tolerance_px must be >= 0")}
	}
	if c.RestartDelayMS < 0 {
		return &ValidationError{Path: "restart_delay_ms", Err: fmt.Errorf("restart_delay_ms must be >= 0")}
	}
	return nil
}

// BridgeTimeout returns the bridge call timeout; zero disables it.
func (c *Config) BridgeTimeout() time.Duration {
	return time.Duration(c.BridgeTimeoutMS) * time.Millisecond
}

// PollInterval returns the fullscreen detection interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.FullscreenPollMS) * time.Millisecond
}

// RestartDelay returns the pause between stopping and restarting the
// control server.
func (c *Config) RestartDelay() time.Duration {
	return time.Duration(c.RestartDelayMS) * time.Millisecond
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	if c.Surface.Command != nil {
		out.Surface.Command = append([]string(nil), c.Surface.Command...)
	}
	return &out
}

func isSupportedLanguage(lang string) bool {
	for _, l := range SupportedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}
