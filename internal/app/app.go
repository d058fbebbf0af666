// Package app wires the control plane together: settings, the command
// server, the process bridge, the presentation surface and the visibility
// machine. One App exists per daemon process and owns all of them.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kage-desktop/kage/internal/action"
	"github.com/kage-desktop/kage/internal/bridge"
	"github.com/kage-desktop/kage/internal/config"
	"github.com/kage-desktop/kage/internal/ipc"
	"github.com/kage-desktop/kage/internal/surface"
	"github.com/kage-desktop/kage/internal/visibility"
	"github.com/kage-desktop/kage/internal/wsapi"
)

var (
	// ErrExit is the cancellation cause when exitApp was requested.
	ErrExit = errors.New("exit requested")
	// ErrRelaunch is returned by Run when restartApp was requested. The
	// caller re-executes the daemon.
	ErrRelaunch = errors.New("relaunch requested")
)

const defaultQuitDelay = 200 * time.Millisecond

// Options configures an App.
type Options struct {
	Store *config.Store
	// Window is the presentation window. Nil uses an in-memory window.
	Window visibility.Window
	// Probe enables fullscreen detection when set.
	Probe visibility.ForegroundWindowProbe
	// Notifier reports fatal-looking conditions to the desktop user.
	Notifier Notifier
	// Host the command server binds; empty binds every interface.
	Host    string
	Metrics http.Handler
	Version string
	// NoSurface skips launching the presentation process.
	NoSurface bool
	Logger    zerolog.Logger
}

// App is the application context of the daemon.
type App struct {
	store    *config.Store
	registry *action.Registry
	bridge   *bridge.Bridge
	server   *wsapi.Server
	machine  *visibility.Machine
	poller   *visibility.Poller
	probe    visibility.ForegroundWindowProbe
	notifier Notifier
	version  string
	started  time.Time
	log      zerolog.Logger

	noSurface bool
	quitDelay time.Duration

	ctx    context.Context
	cancel context.CancelCauseFunc

	mu      sync.Mutex
	surface *surface.Process
}

// New builds the application context and registers every action. Nothing
// is started until Run.
func New(opts Options) *App {
	cfg := opts.Store.Get()

	win := opts.Window
	if win == nil {
		win = visibility.NewMemoryWindow(false)
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = DesktopNotifier{}
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	a := &App{
		store:     opts.Store,
		registry:  action.NewRegistry(),
		bridge:    bridge.New(cfg.BridgeTimeout(), opts.Logger.With().Str("component", "bridge").Logger()),
		machine:   visibility.NewMachine(win, opts.Logger.With().Str("component", "visibility").Logger()),
		probe:     opts.Probe,
		notifier:  notifier,
		version:   opts.Version,
		started:   time.Now(),
		log:       opts.Logger,
		noSurface: opts.NoSurface,
		quitDelay: defaultQuitDelay,
		ctx:       ctx,
		cancel:    cancel,
	}
	a.server = wsapi.NewServer(a.registry, wsapi.Options{
		Host:        opts.Host,
		Metrics:     opts.Metrics,
		BaseContext: ctx,
		Logger:      opts.Logger.With().Str("component", "wsapi").Logger(),
	})
	if a.probe != nil {
		a.poller = visibility.NewPoller(visibility.PollerConfig{
			Interval: cfg.PollInterval(),
			Logger:   opts.Logger.With().Str("component", "poller").Logger(),
		}, a.machine, a.detect)
	}
	a.registerActions()
	return a
}

// Registry returns the action registry.
func (a *App) Registry() *action.Registry { return a.registry }

// Bridge returns the process bridge.
func (a *App) Bridge() *bridge.Bridge { return a.bridge }

// Server returns the command server.
func (a *App) Server() *wsapi.Server { return a.server }

// Machine returns the visibility machine.
func (a *App) Machine() *visibility.Machine { return a.machine }

// Run starts every component and blocks until ctx is done or an exit is
// requested. It returns ErrRelaunch when the daemon should re-execute.
func (a *App) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { a.cancel(context.Cause(ctx)) })
	defer stop()

	cfg := a.store.Get()
	if err := a.server.Start(cfg.WSPort); err != nil {
		a.reportBindFailure(cfg.WSPort, err)
	}
	defer a.server.Stop()

	if !a.noSurface {
		if err := a.startSurface(); err != nil {
			a.log.Error().Err(err).Msg("failed to start presentation surface")
		}
		defer a.stopSurface()
	} else {
		a.showWindow()
	}

	if a.poller != nil {
		go a.poller.Run(a.ctx)
	}

	<-a.ctx.Done()
	cause := context.Cause(a.ctx)
	a.log.Info().AnErr("cause", cause).Msg("shutting down")
	if errors.Is(cause, ErrRelaunch) {
		return ErrRelaunch
	}
	return nil
}

// Exit stops Run after the quit delay.
func (a *App) Exit() { a.quitAfter(ErrExit) }

// Relaunch stops Run after the quit delay; Run then returns ErrRelaunch.
func (a *App) Relaunch() { a.quitAfter(ErrRelaunch) }

func (a *App) quitAfter(cause error) {
	time.AfterFunc(a.quitDelay, func() { a.cancel(cause) })
}

// ToggleVisibility implements ipc.Controller.
func (a *App) ToggleVisibility() (ipc.ToggleData, error) {
	st, err := a.machine.Toggle()
	return ipc.ToggleData{Visible: st.Visible, ManuallyHidden: st.ManuallyHidden}, err
}

// Status implements ipc.Controller.
func (a *App) Status() ipc.StatusData {
	st := a.machine.Snapshot()
	port := a.server.Port()
	if port == 0 {
		port = a.store.Get().WSPort
	}
	return ipc.StatusData{
		Version:            a.version,
		WSPort:             port,
		WSRunning:          a.server.Running(),
		Visible:            st.Visible,
		ManuallyHidden:     st.ManuallyHidden,
		FullscreenActive:   st.FullscreenActive,
		SurfaceAttached:    a.bridge.Attached(),
		PendingBridgeCalls: a.bridge.Pending(),
		UptimeSeconds:      int64(time.Since(a.started).Seconds()),
	}
}

func (a *App) detect() (visibility.Observation, error) {
	cfg := a.store.Get()
	d := visibility.Detector{
		Probe:     a.probe,
		SelfName:  cfg.Surface.WindowTitle,
		Tolerance: float64(cfg.FullscreenTolerancePX),
	}
	return d.Detect()
}

func (a *App) showWindow() {
	if err := a.machine.Show(); err != nil {
		a.log.Warn().Err(err).Msg("failed to show window")
	}
}

func (a *App) reportBindFailure(port int, err error) {
	a.log.Error().Err(err).Int("port", port).Msg("WebSocket server failed to start")
	title := "Kage failed to start"
	body := fmt.Sprintf("Port %d is already in use. Choose another ws_port in the settings.", port)
	if !errors.Is(err, wsapi.ErrListenBind) {
		body = err.Error()
	}
	if nerr := a.notifier.Notify(title, body); nerr != nil {
		a.log.Debug().Err(nerr).Msg("desktop notification failed")
	}
}

func (a *App) surfaceCommand(cfg *config.Config) ([]string, error) {
	if len(cfg.Surface.Command) > 0 {
		return cfg.Surface.Command, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	return []string{exe, "surface"}, nil
}

func (a *App) startSurface() error {
	cfg := a.store.Get()
	argv, err := a.surfaceCommand(cfg)
	if err != nil {
		return err
	}

	p := surface.NewProcess(surface.ProcessConfig{
		Command: argv,
		Logger:  a.log.With().Str("component", "surface").Logger(),
	}, a.bridge, a.handleSurfaceNotification)
	if err := p.Start(a.ctx); err != nil {
		return err
	}

	a.mu.Lock()
	a.surface = p
	a.mu.Unlock()

	go a.initSurface(cfg)
	return nil
}

// initSurface pushes the persisted state to a freshly attached surface and
// reveals the window.
func (a *App) initSurface(cfg *config.Config) {
	if err := a.bridge.Notify(bridge.ChannelSettingsUpdated, surfaceSettings(cfg)); err != nil {
		a.log.Warn().Err(err).Msg("failed to push settings to surface")
	}
	if _, err := a.bridge.Invoke(a.ctx, bridge.ChannelSetModelPath, cfg.ModelPath); err != nil {
		a.log.Error().Err(err).Str("path", cfg.ModelPath).Msg("failed to load model")
	}
	if _, err := a.bridge.Invoke(a.ctx, bridge.ChannelSetModelBounds, cfg.ModelBounds); err != nil {
		a.log.Warn().Err(err).Msg("failed to apply model bounds")
	}
	a.showWindow()
}

func (a *App) stopSurface() {
	a.mu.Lock()
	p := a.surface
	a.surface = nil
	a.mu.Unlock()
	if p != nil {
		_ = p.Stop()
	}
}

func surfaceSettings(cfg *config.Config) surface.Settings {
	return surface.Settings{
		EnableSound:            cfg.EnableSound,
		EnableMousePassthrough: cfg.EnableMousePassthrough,
		MessageBoxPosition:     surface.Position{Top: cfg.MessageBoxPosition.Top, Left: cfg.MessageBoxPosition.Left},
		Language:               cfg.Language,
		DebugMode:              cfg.DebugMode,
	}
}
