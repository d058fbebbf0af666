package wsapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kage-desktop/kage/internal/action"
	"github.com/kage-desktop/kage/internal/metrics"
)

// ErrListenBind is returned by Start when the port cannot be bound.
var ErrListenBind = errors.New("failed to bind control port")

const (
	writeTimeout = 5 * time.Second
	readLimit    = 1 << 20
)

// Dispatcher runs an action by name.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, params action.Params) (action.Result, error)
}

// Options configures a Server.
type Options struct {
	// Host to bind; empty binds every interface.
	Host string
	// Metrics, when set, is served on /metrics.
	Metrics http.Handler
	// BaseContext is handed to handlers. It is not tied to any connection,
	// so a client hanging up never aborts a running handler.
	BaseContext context.Context
	Logger      zerolog.Logger
}

// Server accepts control WebSocket connections and dispatches their
// request envelopes.
type Server struct {
	dispatcher Dispatcher
	opts       Options
	log        zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	httpSrv  *http.Server
	conns    map[*conn]struct{}
	handlers sync.WaitGroup
}

// NewServer creates a stopped server.
func NewServer(d Dispatcher, opts Options) *Server {
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	return &Server{
		dispatcher: d,
		opts:       opts,
		log:        opts.Logger,
		conns:      make(map[*conn]struct{}),
	}
}

// Start binds port and begins serving. Starting a running server is a
// no-op. Port 0 picks a free port.
func (s *Server) Start(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		s.log.Info().Int("port", s.boundPortLocked()).Msg("WebSocket server already running")
		return nil
	}

	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: port %d: %v", ErrListenBind, port, err)
	}

	srv := &http.Server{
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.listener = ln
	s.httpSrv = srv

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("WebSocket server stopped unexpectedly")
		}
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("WebSocket server listening")
	return nil
}

// Stop closes the listener and every open connection. Handlers already
// running keep going; their responses are dropped.
func (s *Server) Stop() {
	s.mu.Lock()
	srv := s.httpSrv
	conns := s.conns
	s.listener = nil
	s.httpSrv = nil
	s.conns = make(map[*conn]struct{})
	s.mu.Unlock()

	if srv == nil {
		return
	}
	_ = srv.Close()
	for c := range conns {
		c.close()
	}
	s.log.Info().Int("connections", len(conns)).Msg("WebSocket server stopped")
}

// Restart stops the server, waits delay for the OS to release the socket,
// then starts on port. The returned channel yields the Start result.
// Concurrent restarts are not coalesced.
func (s *Server) Restart(port int, delay time.Duration) <-chan error {
	s.Stop()
	done := make(chan error, 1)
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		done <- s.Start(port)
	}()
	return done
}

// Running reports whether the server is listening.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener != nil
}

// Port returns the bound port, or 0 when stopped.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundPortLocked()
}

// Wait blocks until every dispatched handler has returned.
func (s *Server) Wait() {
	s.handlers.Wait()
}

func (s *Server) boundPortLocked() int {
	if s.listener == nil {
		return 0
	}
	if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics)
	}
	r.HandleFunc("/*", s.handleWS)
	return r
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Local scripts and browser pages alike may drive the widget.
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	ws.SetReadLimit(readLimit)

	c := &conn{ws: ws}
	if !s.track(c) {
		c.close()
		return
	}
	metrics.ConnOpened()
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("WebSocket client connected")
	defer func() {
		s.untrack(c)
		c.close()
		metrics.ConnClosed()
		s.log.Debug().Str("remote", r.RemoteAddr).Msg("WebSocket client disconnected")
	}()

	ctx := r.Context()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && status != -1 {
				s.log.Debug().Int("status", int(status)).Msg("WebSocket closed abnormally")
			}
			return
		}
		s.handlers.Add(1)
		go func(frame []byte) {
			defer s.handlers.Done()
			if resp := s.Handle(s.opts.BaseContext, frame); resp != nil {
				c.send(resp, s.log)
			}
		}(data)
	}
}

func (s *Server) track(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// Handle processes one frame and returns the response to send, or nil when
// the action produced no response.
func (s *Server) Handle(ctx context.Context, frame []byte) *Response {
	req, err := ParseRequest(frame)
	if err != nil {
		metrics.ActionDone("error", CodeInvalidJSON)
		return NewErrorResponse("error", nil, CodeInvalidJSON, "Invalid JSON format")
	}

	name := req.Action
	res, err := s.dispatcher.Dispatch(ctx, name, req.Params)
	if errors.Is(err, action.ErrUnknownAction) {
		if name == "" {
			name = "unknown"
		}
		metrics.ActionDone(name, CodeUnknownAction)
		return NewErrorResponse(name, req.RequestID, CodeUnknownAction, "Unknown action: "+req.actionText())
	}
	if err != nil {
		s.log.Debug().Err(err).Str("action", name).Msg("action failed")
		metrics.ActionDone(name, CodeHandlerError)
		return NewErrorResponse(name, req.RequestID, CodeHandlerError, err.Error())
	}

	metrics.ActionDone(name, "OK")
	if !res.Responds() {
		return nil
	}
	return NewOKResponse(name, req.RequestID, res.Data())
}

type conn struct {
	ws     *websocket.Conn
	mu     sync.Mutex
	closed bool
}

// send writes resp unless the connection has been closed; failures drop
// the response silently.
func (c *conn) send(resp *Response, log zerolog.Logger) {
	data, err := resp.Marshal()
	if err != nil {
		log.Error().Err(err).Str("action", resp.Action).Msg("failed to marshal response")
		data, _ = NewErrorResponse(resp.Action, resp.RequestID, CodeHandlerError, err.Error()).Marshal()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		log.Debug().Str("action", resp.Action).Msg("dropping response for closed connection")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		log.Debug().Err(err).Str("action", resp.Action).Msg("dropping response")
	}
}

func (c *conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	_ = c.ws.CloseNow()
}
