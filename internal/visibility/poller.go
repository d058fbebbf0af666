package visibility

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DetectFunc runs one foreground detection pass.
type DetectFunc func() (Observation, error)

// PollerConfig holds configuration for the poller.
type PollerConfig struct {
	Interval time.Duration
	Logger   zerolog.Logger
}

// Poller periodically detects fullscreen state and feeds the machine.
type Poller struct {
	interval time.Duration
	detect   DetectFunc
	machine  *Machine
	logger   zerolog.Logger
	reset    chan time.Duration
}

// NewPoller creates a poller. A non-positive interval defaults to 2s.
func NewPoller(cfg PollerConfig, machine *Machine, detect DetectFunc) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{
		interval: interval,
		detect:   detect,
		machine:  machine,
		logger:   cfg.Logger,
		reset:    make(chan time.Duration, 1),
	}
}

// Run starts the polling loop. Blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info().Dur("interval", p.interval).Msg("fullscreen poller started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("fullscreen poller stopped")
			return
		case d := <-p.reset:
			ticker.Reset(d)
			p.logger.Info().Dur("interval", d).Msg("fullscreen poll interval changed")
		case <-ticker.C:
			p.poll()
		}
	}
}

// SetInterval changes the tick interval of a running poller.
func (p *Poller) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-p.reset:
	default:
	}
	select {
	case p.reset <- d:
	default:
	}
}

// PollNow triggers an immediate detection pass.
func (p *Poller) PollNow() {
	p.poll()
}

func (p *Poller) poll() {
	// Recover from panics to keep the daemon alive
	defer func() {
		if err := recover(); err != nil {
			p.logger.Error().Interface("error", err).Msg("fullscreen poller panic recovered")
		}
	}()

	obs, err := p.detect()
	if err != nil {
		p.logger.Debug().Err(err).Msg("foreground detection failed")
	}
	if _, err := p.machine.Observe(obs); err != nil {
		p.logger.Warn().Err(err).Stringer("observation", obs).Msg("visibility transition failed")
	}
}
