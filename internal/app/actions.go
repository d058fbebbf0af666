package app

import (
	"context"
	"errors"
	"runtime"

	"github.com/kage-desktop/kage/internal/action"
	"github.com/kage-desktop/kage/internal/bridge"
	"github.com/kage-desktop/kage/internal/config"
)

const defaultMessageDuration = 5000

func (a *App) registerActions() {
	r := a.registry
	r.Register("getVersion", a.getVersion)
	r.Register("exitApp", a.exitApp)
	r.Register("restartApp", a.restartApp)
	r.Register("setModelSize", a.setModelSize)
	r.Register("setModelPosition", a.setModelPosition)
	r.Register("setModelPath", a.setModelPath)
	r.Register("getMotions", a.forward(bridge.ChannelGetMotions))
	r.Register("triggerMotion", a.forwardRequired(bridge.ChannelTriggerMotion, "motionName"))
	r.Register("getExpressions", a.forward(bridge.ChannelGetExpressions))
	r.Register("setExpression", a.forwardRequired(bridge.ChannelSetExpression, "expressionName"))
	r.Register("clearExpression", a.forward(bridge.ChannelClearExpression))
	r.Register("showTextMessage", a.showTextMessage)
}

func (a *App) getVersion(context.Context, action.Params) (action.Result, error) {
	return action.Respond(map[string]any{
		"version":        a.version,
		"runtimeVersion": runtime.Version(),
	}), nil
}

func (a *App) exitApp(context.Context, action.Params) (action.Result, error) {
	a.log.Info().Msg("exit requested over WebSocket")
	a.Exit()
	return action.Respond(map[string]any{"message": "Exiting application..."}), nil
}

func (a *App) restartApp(context.Context, action.Params) (action.Result, error) {
	a.log.Info().Msg("restart requested over WebSocket")
	a.Relaunch()
	return action.Respond(map[string]any{"message": "Restarting application..."}), nil
}

func (a *App) setModelSize(ctx context.Context, p action.Params) (action.Result, error) {
	w, okW := p.Number("width")
	h, okH := p.Number("height")
	if !okW || !okH || w <= 0 || h <= 0 {
		return action.Result{}, action.InvalidParams("Invalid width or height provided.")
	}
	if err := a.updateBounds(ctx, func(b *config.Bounds) { b.Width, b.Height = w, h }); err != nil {
		return action.Result{}, err
	}
	return action.Respond(map[string]any{"width": w, "height": h}), nil
}

func (a *App) setModelPosition(ctx context.Context, p action.Params) (action.Result, error) {
	x, okX := p.Number("x")
	y, okY := p.Number("y")
	if !okX || !okY {
		return action.Result{}, action.InvalidParams("Invalid x or y coordinates provided.")
	}
	if err := a.updateBounds(ctx, func(b *config.Bounds) { b.X, b.Y = x, y }); err != nil {
		return action.Result{}, err
	}
	return action.Respond(map[string]any{"x": x, "y": y}), nil
}

// updateBounds merges into the stored bounds, applies the result on the
// surface, then persists it.
func (a *App) updateBounds(ctx context.Context, merge func(*config.Bounds)) error {
	next := a.store.Get().ModelBounds
	merge(&next)
	if _, err := a.bridge.Invoke(ctx, bridge.ChannelSetModelBounds, next); err != nil {
		return err
	}
	_, err := a.store.Update(func(c *config.Config) { c.ModelBounds = next })
	return err
}

func (a *App) setModelPath(ctx context.Context, p action.Params) (action.Result, error) {
	if !p.Truthy("path") {
		return action.Result{}, action.InvalidParams("Model path is required.")
	}
	path, ok := p.String("path")
	if !ok {
		return action.Result{}, action.InvalidParams("Model path is required.")
	}

	if _, err := a.store.Update(func(c *config.Config) { c.ModelPath = path }); err != nil {
		var vErr *config.ValidationError
		if !errors.As(err, &vErr) {
			return action.Result{}, err
		}
		// The surface rejects it with its own message.
		a.log.Warn().Err(err).Str("path", path).Msg("model path not persisted")
	}
	return a.invoke(ctx, bridge.ChannelSetModelPath, path)
}

func (a *App) showTextMessage(ctx context.Context, p action.Params) (action.Result, error) {
	if !p.Truthy("message") {
		return action.Result{}, action.InvalidParams("message is required.")
	}
	// A truthy duration goes to the surface as sent.
	var duration any = float64(defaultMessageDuration)
	if p.Truthy("duration") {
		duration = p["duration"]
	}
	return a.invoke(ctx, bridge.ChannelShowTextMessage, p["message"], duration)
}

// forward relays an argument-less action to the surface.
func (a *App) forward(channel string) action.Handler {
	return func(ctx context.Context, _ action.Params) (action.Result, error) {
		return a.invoke(ctx, channel)
	}
}

// forwardRequired relays params[key] to the surface, rejecting falsy values.
func (a *App) forwardRequired(channel, key string) action.Handler {
	return func(ctx context.Context, p action.Params) (action.Result, error) {
		if !p.Truthy(key) {
			return action.Result{}, action.InvalidParams("%s is required.", key)
		}
		return a.invoke(ctx, channel, p[key])
	}
}

// invoke calls the surface. A reply without a result yields no response,
// the same as a handler that returns nothing.
func (a *App) invoke(ctx context.Context, channel string, args ...any) (action.Result, error) {
	raw, err := a.bridge.Invoke(ctx, channel, args...)
	if err != nil {
		return action.Result{}, err
	}
	if len(raw) == 0 {
		return action.NoResponse(), nil
	}
	return action.Respond(raw), nil
}
