package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kage-desktop/kage/internal/ipc"
)

func newToggleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Show or hide the companion window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := ipc.NewClient().ToggleVisibility()
			if err != nil {
				return err
			}
			state := "hidden"
			if data.Visible {
				state = "visible"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "window %s\n", state)
			return nil
		},
	}
}

func newStatusCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status via IPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := ipc.NewClient().GetStatus()
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")
	return cmd
}

func printStatus(w io.Writer, status *ipc.StatusData) {
	fmt.Fprintf(w, "version:              %s\n", status.Version)
	fmt.Fprintf(w, "ws_port:              %d\n", status.WSPort)
	fmt.Fprintf(w, "ws_running:           %v\n", status.WSRunning)
	fmt.Fprintf(w, "visible:              %v\n", status.Visible)
	fmt.Fprintf(w, "manually_hidden:      %v\n", status.ManuallyHidden)
	fmt.Fprintf(w, "fullscreen_active:    %v\n", status.FullscreenActive)
	fmt.Fprintf(w, "surface_attached:     %v\n", status.SurfaceAttached)
	fmt.Fprintf(w, "pending_bridge_calls: %d\n", status.PendingBridgeCalls)
	fmt.Fprintf(w, "uptime_seconds:       %d\n", status.UptimeSeconds)
}

func newReloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Make the daemon re-read its settings file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := ipc.NewClient().Reload(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "settings reloaded")
			return nil
		},
	}
}
