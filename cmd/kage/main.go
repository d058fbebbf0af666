package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kage-desktop/kage/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// configPath is the --config flag shared by every command.
var configPath string

func settingsPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.DefaultConfigPath()
}

// loadSettings reads the settings file, falling back to defaults when it
// does not exist.
func loadSettings() (*config.Config, string, error) {
	path, err := settingsPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(format string, args ...any) error {
	return &exitError{code: 2, err: fmt.Errorf(format, args...)}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "kage",
		Short:         "Desktop Live2D companion controlled over WebSocket",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&configPath, "config", "", "settings file (default $KAGE_CONFIG or ~/.config/kage/config.yaml)")

	root.AddCommand(
		newDaemonCommand(),
		newSurfaceCommand(),
		newSendCommand(),
		newActionsCommand(),
		newToggleCommand(),
		newStatusCommand(),
		newReloadCommand(),
		newConfigCommand(),
		newMCPCommand(),
	)
	return root
}
