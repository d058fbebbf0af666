package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kage-desktop/kage/internal/logx"
	"github.com/kage-desktop/kage/internal/surface"
)

func newSurfaceCommand() *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:    "surface",
		Short:  "Run the headless presentation surface on stdin/stdout",
		Long:   "Run the headless presentation surface. The daemon launches this itself; bridge frames are read from stdin and replies written to stdout.",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// stdout carries the bridge protocol.
			logx.SetOutput(os.Stderr)
			h := surface.NewHeadless(logx.Component("surface"))
			if model != "" {
				if err := h.LoadModel(model); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return h.Serve(ctx, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "model to load before serving")
	return cmd
}
