package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kage-desktop/kage/internal/action"
	"github.com/kage-desktop/kage/internal/app"
	"github.com/kage-desktop/kage/internal/client"
	"github.com/kage-desktop/kage/internal/config"
	"github.com/kage-desktop/kage/internal/logx"
)

func newSendCommand() *cobra.Command {
	var (
		port    int
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send <action> [json-params]",
		Short: "Send one action to the running companion and print the reply",
		Example: `  kage send getVersion
  kage send setModelSize '{"width":400,"height":600}'
  kage send showTextMessage '{"message":"hello","duration":3000}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params action.Params
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
					return usageError("params must be a JSON object: %v", err)
				}
			}
			if port == 0 {
				var err error
				if port, err = configuredPort(); err != nil {
					return err
				}
			}
			return runSend(cmd.Context(), cmd.OutOrStdout(), port, timeout, args[0], params)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "command server port (default: ws_port from settings)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "how long to wait for a reply")
	return cmd
}

func configuredPort() (int, error) {
	cfg, _, err := loadSettings()
	if err != nil {
		return 0, err
	}
	return cfg.WSPort, nil
}

func runSend(ctx context.Context, out io.Writer, port int, timeout time.Duration, name string, params action.Params) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c, err := client.Dial(ctx, client.URL(port), logx.Component("client"))
	if err != nil {
		return fmt.Errorf("is kage running? %w", err)
	}
	defer c.Close()

	reply, err := c.Send(ctx, name, params)
	if errors.Is(err, context.DeadlineExceeded) {
		fmt.Fprintf(out, "%s: no reply within %s\n", name, timeout)
		return nil
	}
	if err != nil {
		return err
	}
	if err := writeJSON(out, reply.Data); err != nil {
		return err
	}
	return reply.Err()
}

// writeJSON indents raw when out is a terminal.
func writeJSON(out io.Writer, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err == nil {
			raw = buf.Bytes()
		}
	}
	_, err := fmt.Fprintf(out, "%s\n", raw)
	return err
}

func newActionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List the actions the command server accepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app.New(app.Options{
				Store:     config.NewMemoryStore(config.DefaultConfig()),
				NoSurface: true,
				Logger:    zerolog.Nop(),
			})
			for _, name := range a.Registry().Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
