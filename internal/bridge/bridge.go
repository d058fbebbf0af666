// Package bridge carries requests from action handlers to the presentation
// surface and matches the surface's asynchronous replies back to them.
//
// Every call gets its own correlation id, so several calls on the same
// channel may be in flight at once. A reply resolves only the call whose id
// it carries; the first reply for an id wins and later ones are dropped.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kage-desktop/kage/internal/metrics"
)

var (
	// ErrPresentationUnavailable is returned when no presentation surface is
	// attached, or when the surface goes away while a call is pending.
	ErrPresentationUnavailable = errors.New("presentation surface is not available")

	// ErrTimeout is returned when the surface does not reply within the
	// configured timeout.
	ErrTimeout = errors.New("bridge call timed out")
)

// Channel names understood by the presentation surface.
const (
	ChannelSetModelPath     = "setModelPath"
	ChannelSetModelBounds   = "setModelBounds"
	ChannelGetMotions       = "getMotions"
	ChannelTriggerMotion    = "triggerMotion"
	ChannelGetExpressions   = "getExpressions"
	ChannelSetExpression    = "setExpression"
	ChannelClearExpression  = "clearExpression"
	ChannelShowTextMessage  = "showTextMessage"
	ChannelSettingsUpdated  = "settingsUpdated"
	ChannelSaveModelBounds  = "saveModelBounds"
	ChannelSaveMessageBoxAt = "saveMessageBoxPosition"
)

// Request is a frame sent to the presentation surface. Notifications carry
// an empty ID and expect no reply.
type Request struct {
	ID      string `json:"id,omitempty"`
	Channel string `json:"channel"`
	Args    []any  `json:"args"`
}

// Reply is a frame sent back by the presentation surface. Frames without an
// ID are notifications originating on the surface side.
type Reply struct {
	ID      string          `json:"id,omitempty"`
	Channel string          `json:"channel"`
	OK      bool            `json:"ok"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Args    []any           `json:"args,omitempty"`
}

// Sender delivers request frames to an attached presentation surface.
type Sender interface {
	Send(Request) error
}

// RemoteError is an error reported by the presentation surface.
type RemoteError struct {
	Channel string
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

type outcome struct {
	result json.RawMessage
	err    error
}

type call struct {
	channel string
	done    chan outcome
}

// Bridge correlates calls with replies.
type Bridge struct {
	mu      sync.Mutex
	sender  Sender
	pending map[string]*call
	timeout time.Duration
	newID   func() string
	log     zerolog.Logger
}

// New creates a bridge with no surface attached. A timeout of zero waits
// for a reply forever.
func New(timeout time.Duration, log zerolog.Logger) *Bridge {
	return &Bridge{
		pending: make(map[string]*call),
		timeout: timeout,
		newID:   uuid.NewString,
		log:     log,
	}
}

// SetTimeout changes the timeout applied to calls started afterwards.
func (b *Bridge) SetTimeout(d time.Duration) {
	b.mu.Lock()
	b.timeout = d
	b.mu.Unlock()
}

// Attach makes s the target of subsequent calls.
func (b *Bridge) Attach(s Sender) {
	b.mu.Lock()
	b.sender = s
	b.mu.Unlock()
	b.log.Debug().Msg("presentation surface attached")
}

// Detach removes the current surface and fails every pending call with
// ErrPresentationUnavailable.
func (b *Bridge) Detach() {
	b.mu.Lock()
	b.detachLocked()
}

// DetachSender detaches only if s is the attached surface. A surface that
// exits after being replaced leaves its successor alone.
func (b *Bridge) DetachSender(s Sender) bool {
	b.mu.Lock()
	if b.sender != s {
		b.mu.Unlock()
		return false
	}
	b.detachLocked()
	return true
}

// detachLocked is entered with b.mu held and releases it.
func (b *Bridge) detachLocked() {
	b.sender = nil
	orphaned := b.pending
	b.pending = make(map[string]*call)
	b.mu.Unlock()

	for id, c := range orphaned {
		c.done <- outcome{err: fmt.Errorf("%w: surface went away during %s", ErrPresentationUnavailable, c.channel)}
		b.log.Debug().Str("id", id).Str("channel", c.channel).Msg("pending bridge call failed on detach")
	}
	b.log.Debug().Int("failed", len(orphaned)).Msg("presentation surface detached")
}

// Attached reports whether a surface is attached.
func (b *Bridge) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sender != nil
}

// Pending returns the number of calls awaiting a reply.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Invoke sends channel with args to the surface and blocks until the
// matching reply arrives, ctx is done, or the timeout expires.
func (b *Bridge) Invoke(ctx context.Context, channel string, args ...any) (json.RawMessage, error) {
	b.mu.Lock()
	sender := b.sender
	if sender == nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot call %s", ErrPresentationUnavailable, channel)
	}
	id := b.newID()
	c := &call{channel: channel, done: make(chan outcome, 1)}
	b.pending[id] = c
	timeout := b.timeout
	b.mu.Unlock()

	metrics.BridgeCallStart()
	result, err := b.await(ctx, sender, id, c, args, timeout)
	metrics.BridgeCallEnd(channel, outcomeLabel(err))
	return result, err
}

func (b *Bridge) await(ctx context.Context, sender Sender, id string, c *call, args []any, timeout time.Duration) (json.RawMessage, error) {
	defer b.forget(id)

	if args == nil {
		args = []any{}
	}
	b.log.Debug().Str("id", id).Str("channel", c.channel).Msg("bridge call")
	if err := sender.Send(Request{ID: id, Channel: c.channel, Args: args}); err != nil {
		return nil, fmt.Errorf("%w: send %s: %v", ErrPresentationUnavailable, c.channel, err)
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case out := <-c.done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-expired:
		return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, c.channel, timeout)
	}
}

// Notify sends a one-way frame. No reply is awaited.
func (b *Bridge) Notify(channel string, args ...any) error {
	b.mu.Lock()
	sender := b.sender
	b.mu.Unlock()
	if sender == nil {
		return fmt.Errorf("%w: cannot notify %s", ErrPresentationUnavailable, channel)
	}
	if args == nil {
		args = []any{}
	}
	return sender.Send(Request{Channel: channel, Args: args})
}

// Deliver routes a reply to the call waiting on its id. Replies for unknown
// or already-resolved ids are ignored.
func (b *Bridge) Deliver(r Reply) {
	b.mu.Lock()
	c, ok := b.pending[r.ID]
	if ok {
		delete(b.pending, r.ID)
	}
	b.mu.Unlock()

	if !ok {
		b.log.Debug().Str("id", r.ID).Str("channel", r.Channel).Msg("ignoring reply for unknown bridge call")
		return
	}
	if r.OK {
		c.done <- outcome{result: r.Result}
		return
	}
	msg := r.Error
	if msg == "" {
		msg = fmt.Sprintf("%s failed", c.channel)
	}
	c.done <- outcome{err: &RemoteError{Channel: c.channel, Message: msg}}
}

func (b *Bridge) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

func outcomeLabel(err error) string {
	var remote *RemoteError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &remote):
		return "remote_error"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrPresentationUnavailable):
		return "unavailable"
	default:
		return "canceled"
	}
}
