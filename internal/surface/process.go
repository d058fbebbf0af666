package surface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kage-desktop/kage/internal/bridge"
)

// ErrNotRunning is returned when sending to a process that has exited.
var ErrNotRunning = errors.New("presentation process is not running")

// NotifyFunc receives id-less frames sent by the surface.
type NotifyFunc func(channel string, args []any)

// ProcessConfig describes the presentation process.
type ProcessConfig struct {
	Command []string
	Env     []string
	// Stderr receives the process's stderr; defaults to os.Stderr.
	Stderr io.Writer
	Logger zerolog.Logger
}

// Process is a running presentation surface attached to a bridge.
type Process struct {
	cfg      ProcessConfig
	bridge   *bridge.Bridge
	onNotify NotifyFunc
	log      zerolog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	out     *frameWriter
	exited  bool
	done    chan struct{}
	exitErr error
}

// NewProcess prepares a process; Start launches it.
func NewProcess(cfg ProcessConfig, b *bridge.Bridge, onNotify NotifyFunc) *Process {
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	return &Process{
		cfg:      cfg,
		bridge:   b,
		onNotify: onNotify,
		log:      cfg.Logger,
		done:     make(chan struct{}),
	}
}

// Start launches the process and attaches it to the bridge. The process is
// killed when ctx is cancelled.
func (p *Process) Start(ctx context.Context) error {
	if len(p.cfg.Command) == 0 {
		return fmt.Errorf("presentation command is empty")
	}

	cmd := exec.CommandContext(ctx, p.cfg.Command[0], p.cfg.Command[1:]...)
	cmd.Env = append(os.Environ(), p.cfg.Env...)
	cmd.Stderr = p.cfg.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.cfg.Command[0], err)
	}

	p.mu.Lock()
	p.cmd = cmd
	p.stdin = stdin
	p.out = newFrameWriter(stdin)
	p.mu.Unlock()

	p.bridge.Attach(p)
	p.log.Info().Int("pid", cmd.Process.Pid).Strs("command", p.cfg.Command).Msg("presentation surface started")

	go p.run(stdout)
	return nil
}

func (p *Process) run(stdout io.Reader) {
	if err := readFrames(stdout, p.handleLine); err != nil {
		p.log.Warn().Err(err).Msg("presentation surface output error")
	}

	p.mu.Lock()
	p.exited = true
	cmd := p.cmd
	p.mu.Unlock()

	p.bridge.DetachSender(p)
	err := cmd.Wait()
	if err != nil {
		p.log.Warn().Err(err).Msg("presentation surface exited")
	} else {
		p.log.Info().Msg("presentation surface exited")
	}

	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()
	close(p.done)
}

func (p *Process) handleLine(line []byte) {
	var r bridge.Reply
	if err := json.Unmarshal(line, &r); err != nil {
		p.log.Debug().Err(err).Bytes("line", line).Msg("ignoring malformed surface frame")
		return
	}
	if r.ID == "" {
		if p.onNotify != nil {
			p.onNotify(r.Channel, r.Args)
		}
		return
	}
	p.bridge.Deliver(r)
}

// Send implements bridge.Sender.
func (p *Process) Send(r bridge.Request) error {
	p.mu.Lock()
	out, exited := p.out, p.exited
	p.mu.Unlock()
	if out == nil || exited {
		return ErrNotRunning
	}
	return out.write(r)
}

// Stop closes the process's stdin, kills it, and waits for it to exit.
func (p *Process) Stop() error {
	p.mu.Lock()
	cmd, stdin := p.cmd, p.stdin
	p.mu.Unlock()
	if cmd == nil {
		return nil
	}
	_ = stdin.Close()
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	<-p.done
	return nil
}

// Done is closed after the process exits and the bridge is detached.
func (p *Process) Done() <-chan struct{} { return p.done }

// Err returns the exit error once Done is closed.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// PID returns the process id, or 0 before Start.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}
