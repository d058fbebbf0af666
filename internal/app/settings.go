package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kage-desktop/kage/internal/bridge"
	"github.com/kage-desktop/kage/internal/config"
	"github.com/kage-desktop/kage/internal/logx"
)

// Reload re-reads the settings file and applies it. Implements
// ipc.Controller.
func (a *App) Reload() error {
	prev, next, err := a.store.Reload()
	if err != nil {
		return err
	}
	a.log.Info().Str("path", a.store.Path()).Msg("settings reloaded")
	a.apply(prev, next)
	return nil
}

// ApplySettings persists cfg and applies the difference to the running
// components.
func (a *App) ApplySettings(cfg *config.Config) error {
	prev, err := a.store.Replace(cfg)
	if err != nil {
		return err
	}
	a.apply(prev, a.store.Get())
	return nil
}

func (a *App) apply(prev, next *config.Config) {
	if prev.DebugMode != next.DebugMode {
		logx.Configure(os.Getenv("LOG_LEVEL"), next.DebugMode)
	}
	a.bridge.SetTimeout(next.BridgeTimeout())
	if a.poller != nil && prev.FullscreenPollMS != next.FullscreenPollMS {
		a.poller.SetInterval(next.PollInterval())
	}

	if bound := a.server.Port(); bound != next.WSPort {
		a.log.Info().Int("from", bound).Int("to", next.WSPort).Msg("restarting WebSocket server")
		port := next.WSPort
		errc := a.server.Restart(port, next.RestartDelay())
		go func() {
			if err := <-errc; err != nil {
				a.reportBindFailure(port, err)
			}
		}()
	}

	if !a.noSurface && !a.bridge.Attached() {
		if err := a.startSurface(); err != nil {
			a.log.Error().Err(err).Msg("failed to restart presentation surface")
		}
		return
	}
	if !a.bridge.Attached() {
		return
	}
	if err := a.bridge.Notify(bridge.ChannelSettingsUpdated, surfaceSettings(next)); err != nil {
		a.log.Warn().Err(err).Msg("failed to push settings to surface")
	}
	if prev.ModelPath != next.ModelPath {
		go func() {
			if _, err := a.bridge.Invoke(a.ctx, bridge.ChannelSetModelPath, next.ModelPath); err != nil {
				a.log.Error().Err(err).Str("path", next.ModelPath).Msg("failed to load model")
			}
		}()
	}
}

// handleSurfaceNotification persists state changed on the surface side,
// such as the model dragged to a new place.
func (a *App) handleSurfaceNotification(channel string, args []any) {
	switch channel {
	case bridge.ChannelSaveModelBounds:
		var b config.Bounds
		if err := decodeArg(args, &b); err != nil {
			a.log.Debug().Err(err).Msg("ignoring malformed model bounds")
			return
		}
		if _, err := a.store.Update(func(c *config.Config) { c.ModelBounds = b }); err != nil {
			a.log.Warn().Err(err).Msg("failed to save model bounds")
			return
		}
		a.log.Debug().Interface("bounds", b).Msg("model bounds saved")

	case bridge.ChannelSaveMessageBoxAt:
		var pos struct {
			Top  *float64 `json:"top"`
			Left *float64 `json:"left"`
		}
		if err := decodeArg(args, &pos); err != nil || pos.Top == nil || pos.Left == nil {
			a.log.Debug().Msg("ignoring malformed message box position")
			return
		}
		if _, err := a.store.Update(func(c *config.Config) {
			c.MessageBoxPosition = config.Position{Top: *pos.Top, Left: *pos.Left}
		}); err != nil {
			a.log.Warn().Err(err).Msg("failed to save message box position")
			return
		}
		a.log.Debug().Float64("top", *pos.Top).Float64("left", *pos.Left).Msg("message box position saved")

	default:
		a.log.Debug().Str("channel", channel).Msg("ignoring unknown surface notification")
	}
}

func decodeArg(args []any, out any) error {
	if len(args) == 0 || args[0] == nil {
		return fmt.Errorf("missing argument")
	}
	raw, err := json.Marshal(args[0])
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
