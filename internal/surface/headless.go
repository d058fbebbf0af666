package surface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kage-desktop/kage/internal/bridge"
)

// errModelNotLoaded is the reply for channels that need a model.
var errModelNotLoaded = errors.New("Live2D model is not loaded or initialized.")

// Bounds is the model container rectangle sent on setModelBounds.
type Bounds struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// Position is the speech bubble offset.
type Position struct {
	Top  float64 `json:"top"`
	Left float64 `json:"left"`
}

// Settings is the payload of the settingsUpdated push.
type Settings struct {
	EnableSound            bool     `json:"enableSound"`
	EnableMousePassthrough bool     `json:"enableMousePassthrough"`
	MessageBoxPosition     Position `json:"messageBoxPosition"`
	Language               string   `json:"language"`
	DebugMode              bool     `json:"debugMode"`
}

// HeadlessState is what the headless surface would currently render.
type HeadlessState struct {
	ModelPath  string
	Bounds     Bounds
	Settings   Settings
	Expression string
	LastMotion string
	Message    string
	// MessageUntil is when the current message disappears.
	MessageUntil time.Time
}

// Headless implements the presentation side of every bridge channel
// without rendering. It tracks model metadata and what would be on screen.
type Headless struct {
	mu    sync.Mutex
	model *Model
	state HeadlessState
	now   func() time.Time
	log   zerolog.Logger
}

// NewHeadless returns a surface with no model loaded.
func NewHeadless(log zerolog.Logger) *Headless {
	return &Headless{
		now: time.Now,
		log: log,
		state: HeadlessState{
			Settings: Settings{EnableSound: true, EnableMousePassthrough: true},
		},
	}
}

// Serve reads request frames from r and writes replies to w until r is
// closed or ctx is done. Requests are handled one at a time.
func (h *Headless) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	out := newFrameWriter(w)
	errc := make(chan error, 1)
	go func() {
		errc <- readFrames(r, func(line []byte) {
			var req bridge.Request
			if err := json.Unmarshal(line, &req); err != nil {
				h.log.Warn().Err(err).Msg("ignoring malformed request frame")
				return
			}
			reply, ok := h.Handle(req)
			if !ok {
				return
			}
			if err := out.write(reply); err != nil {
				h.log.Warn().Err(err).Str("channel", req.Channel).Msg("failed to write reply")
			}
		})
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errc:
		return err
	}
}

// Handle runs one request. ok is false for notifications, which get no
// reply.
func (h *Headless) Handle(req bridge.Request) (reply bridge.Reply, ok bool) {
	result, err := h.dispatch(req.Channel, req.Args)
	if req.ID == "" {
		if err != nil {
			h.log.Warn().Err(err).Str("channel", req.Channel).Msg("notification failed")
		}
		return bridge.Reply{}, false
	}

	reply = bridge.Reply{ID: req.ID, Channel: req.Channel}
	if err != nil {
		reply.Error = err.Error()
		return reply, true
	}
	reply.OK = true
	if result == nil {
		// No result at all, as opposed to a null one.
		return reply, true
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return bridge.Reply{ID: req.ID, Channel: req.Channel, Error: err.Error()}, true
	}
	reply.Result = raw
	return reply, true
}

// LoadModel loads path as the current model.
func (h *Headless) LoadModel(path string) error {
	m, err := LoadModel(path)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.model = m
	h.state.ModelPath = path
	h.state.Expression = ""
	h.mu.Unlock()
	h.log.Info().Str("path", path).Int("motion_groups", len(m.MotionGroups())).Msg("model loaded")
	return nil
}

// State returns a copy of the current state.
func (h *Headless) State() HeadlessState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Headless) dispatch(channel string, args []any) (any, error) {
	switch channel {
	case bridge.ChannelSetModelPath:
		path, _ := arg[string](args, 0)
		if err := h.LoadModel(path); err != nil {
			return nil, err
		}
		return nil, nil

	case bridge.ChannelSetModelBounds:
		var b Bounds
		if err := decodeArg(args, 0, &b); err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.state.Bounds = b
		h.mu.Unlock()
		return map[string]any{"success": true}, nil

	case bridge.ChannelGetMotions:
		m, err := h.loadedModel()
		if err != nil {
			return nil, err
		}
		return map[string]any{"motions": m.MotionGroups()}, nil

	case bridge.ChannelTriggerMotion:
		m, err := h.loadedModel()
		if err != nil {
			return nil, err
		}
		group, _ := arg[string](args, 0)
		if !m.HasMotionGroup(group) {
			return nil, fmt.Errorf("Motion group %q not found or is empty.", group)
		}
		h.mu.Lock()
		h.state.LastMotion = group
		h.mu.Unlock()
		return map[string]any{"success": true, "motion": group}, nil

	case bridge.ChannelGetExpressions:
		m, err := h.loadedModel()
		if err != nil {
			return nil, err
		}
		return map[string]any{"expressions": m.ExpressionNames()}, nil

	case bridge.ChannelSetExpression:
		m, err := h.loadedModel()
		if err != nil {
			return nil, err
		}
		name, _ := arg[string](args, 0)
		if !m.HasExpression(name) {
			return nil, fmt.Errorf("Expression %q not found.", name)
		}
		h.mu.Lock()
		h.state.Expression = name
		h.mu.Unlock()
		return map[string]any{"success": true, "expression": name}, nil

	case bridge.ChannelClearExpression:
		if _, err := h.loadedModel(); err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.state.Expression = ""
		h.mu.Unlock()
		return map[string]any{"success": true}, nil

	case bridge.ChannelShowTextMessage:
		msg, _ := arg[string](args, 0)
		duration, _ := arg[float64](args, 1)
		h.mu.Lock()
		h.state.Message = msg
		h.state.MessageUntil = h.now().Add(time.Duration(duration) * time.Millisecond)
		h.mu.Unlock()
		return map[string]any{"success": true}, nil

	case bridge.ChannelSettingsUpdated:
		var s Settings
		if err := decodeArg(args, 0, &s); err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.state.Settings = s
		h.mu.Unlock()
		return nil, nil
	}
	return nil, fmt.Errorf("unknown channel: %s", channel)
}

func (h *Headless) loadedModel() (*Model, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.model == nil {
		return nil, errModelNotLoaded
	}
	return h.model, nil
}

func arg[T any](args []any, i int) (T, bool) {
	var zero T
	if i >= len(args) {
		return zero, false
	}
	v, ok := args[i].(T)
	return v, ok
}

// decodeArg re-decodes a generic JSON argument into out.
func decodeArg(args []any, i int, out any) error {
	if i >= len(args) {
		return fmt.Errorf("missing argument %d", i)
	}
	raw, err := json.Marshal(args[i])
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
