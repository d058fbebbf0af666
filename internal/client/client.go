// Package client talks to a running kage over its WebSocket control port.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kage-desktop/kage/internal/action"
	"github.com/kage-desktop/kage/internal/wsapi"
)

// ErrClosed is returned for calls pending when the connection ends.
var ErrClosed = errors.New("connection closed")

// URL returns the control endpoint on the loopback interface.
func URL(port int) string {
	return fmt.Sprintf("ws://127.0.0.1:%d/", port)
}

// Reply is a response envelope with the payload left undecoded.
type Reply struct {
	Action    string           `json:"action"`
	RequestID json.RawMessage  `json:"requestId"`
	Success   bool             `json:"success"`
	Data      json.RawMessage  `json:"data"`
	Error     *wsapi.ErrorBody `json:"error"`
}

// Err converts a failed reply into an error.
func (r *Reply) Err() error {
	if r.Success {
		return nil
	}
	if r.Error == nil {
		return fmt.Errorf("%s failed", r.Action)
	}
	return &RemoteError{Action: r.Action, Code: r.Error.Code, Message: r.Error.Message}
}

// RemoteError is a failure reported by the server.
type RemoteError struct {
	Action  string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Action, e.Code, e.Message)
}

// Client multiplexes requests over one connection and matches replies by
// request id.
type Client struct {
	conn *websocket.Conn
	log  zerolog.Logger

	mu      sync.Mutex
	pending map[string]chan *Reply
	closed  bool
	done    chan struct{}
}

// Dial connects to url. The returned client reads until Close is called or
// the server goes away.
func Dial(ctx context.Context, url string, log zerolog.Logger) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{
		conn:    conn,
		log:     log,
		pending: make(map[string]chan *Reply),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Send runs an action and waits for its reply. Actions that never reply
// wait until ctx is done.
func (c *Client) Send(ctx context.Context, name string, params action.Params) (*Reply, error) {
	id := uuid.NewString()
	ch := make(chan *Reply, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer c.forget(id)

	if err := c.write(ctx, name, params, id); err != nil {
		return nil, err
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("no reply to %s: %w", name, ctx.Err())
	}
}

// Fire sends an action without waiting for a reply.
func (c *Client) Fire(ctx context.Context, name string, params action.Params) error {
	return c.write(ctx, name, params, "")
}

// Close ends the connection and fails pending calls.
func (c *Client) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "closing")
	<-c.done
	return err
}

func (c *Client) write(ctx context.Context, name string, params action.Params, id string) error {
	req := wsapi.Request{Action: name, Params: params}
	if id != "" {
		raw, err := json.Marshal(id)
		if err != nil {
			return err
		}
		req.RequestID = raw
	}
	if err := wsjson.Write(ctx, c.conn, req); err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	}()
	for {
		var reply Reply
		if err := wsjson.Read(context.Background(), c.conn, &reply); err != nil {
			if websocket.CloseStatus(err) == -1 {
				c.log.Debug().Err(err).Msg("control connection lost")
			}
			return
		}
		c.deliver(&reply)
	}
}

func (c *Client) deliver(reply *Reply) {
	var id string
	if err := json.Unmarshal(reply.RequestID, &id); err != nil || id == "" {
		c.log.Debug().Str("action", reply.Action).Msg("dropping reply without request id")
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if ok {
		ch <- reply
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
