package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/kage-desktop/kage/internal/app"
	"github.com/kage-desktop/kage/internal/config"
	"github.com/kage-desktop/kage/internal/ipc"
	"github.com/kage-desktop/kage/internal/logx"
	"github.com/kage-desktop/kage/internal/metrics"
	"github.com/kage-desktop/kage/internal/platform"
	"github.com/kage-desktop/kage/internal/runtimepath"
	"github.com/kage-desktop/kage/internal/visibility"
)

type daemonOptions struct {
	host      string
	noSurface bool
	noDesktop bool
}

func newDaemonCommand() *cobra.Command {
	var opts daemonOptions
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the companion: command server, surface and visibility control",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := runDaemon(cmd.Context(), opts)
			if errors.Is(err, app.ErrRelaunch) {
				return relaunch()
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.host, "host", "", "address the command server binds (default: all interfaces)")
	f.BoolVar(&opts.noSurface, "no-surface", false, "do not launch the presentation surface")
	f.BoolVar(&opts.noDesktop, "no-desktop", false, "skip the display server; disables fullscreen detection")
	return cmd
}

func runDaemon(parent context.Context, opts daemonOptions) error {
	path, err := settingsPath()
	if err != nil {
		return err
	}
	store, err := config.OpenStore(path)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	cfg := store.Get()
	logx.Configure(os.Getenv("LOG_LEVEL"), cfg.DebugMode)
	log := logx.Component("daemon")
	log.Info().Str("config", path).Int("ws_port", cfg.WSPort).Str("version", version).Msg("starting kage")

	pidPath, err := runtimepath.PIDPath()
	if err != nil {
		return err
	}
	pidFile, err := runtimepath.AcquirePIDFile(pidPath)
	if err != nil {
		return err
	}
	defer pidFile.Release()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)
	metrics.SetBuildInfo(version, runtime.Version())

	appOpts := app.Options{
		Store:     store,
		Host:      opts.host,
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Version:   version,
		NoSurface: opts.noSurface,
		Logger:    logx.Component("app"),
	}
	if !opts.noDesktop {
		desktop, err := platform.Open(cfg.Surface.WindowTitle, logx.Component("platform"))
		if err != nil {
			log.Warn().Err(err).Msg("display server unavailable; fullscreen detection disabled")
			appOpts.Window = visibility.NewMemoryWindow(false)
		} else {
			defer desktop.Close()
			appOpts.Window = desktop.Window
			appOpts.Probe = desktop.Probe
		}
	}

	a := app.New(appOpts)

	ipcServer, err := ipc.NewServer(a, logx.Component("ipc"))
	if err != nil {
		return err
	}
	if err := ipcServer.Start(); err != nil {
		log.Warn().Err(err).Msg("control socket unavailable")
	} else {
		defer ipcServer.Stop()
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.Run(ctx)
}

// relaunch replaces the current process image with a fresh daemon. Every
// deferred cleanup of runDaemon has run by now.
func relaunch() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("relaunch: %w", err)
	}
	log := logx.Component("daemon")
	log.Info().Str("exe", exe).Msg("relaunching")
	return syscall.Exec(exe, os.Args, os.Environ())
}
