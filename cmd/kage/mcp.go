package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kage-desktop/kage/internal/action"
	"github.com/kage-desktop/kage/internal/client"
	"github.com/kage-desktop/kage/internal/logx"
	"github.com/kage-desktop/kage/internal/mcp"
)

func newMCPCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Model Context Protocol integration",
	}
	var port int
	serve := &cobra.Command{
		Use:     "serve",
		Short:   "Start the MCP server on stdio",
		Long:    "Start the MCP server on stdio. Designed to be invoked by MCP clients; each tool call is forwarded to the running companion.",
		Example: "  claude mcp add kage -- kage mcp serve",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port == 0 {
				var err error
				if port, err = configuredPort(); err != nil {
					return err
				}
			}
			// stdout carries the MCP protocol.
			logx.SetOutput(os.Stderr)
			sender := &redialSender{url: client.URL(port), log: logx.Component("client")}
			defer sender.Close()

			srv := mcp.NewServer(sender, mcp.Options{Version: version, Logger: logx.Component("mcp")})
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}
	serve.Flags().IntVar(&port, "port", 0, "command server port (default: ws_port from settings)")
	cmd.AddCommand(serve)
	return cmd
}

// redialSender connects on first use and again after the companion
// restarts.
type redialSender struct {
	url string
	log zerolog.Logger

	mu sync.Mutex
	c  *client.Client
}

func (s *redialSender) Send(ctx context.Context, name string, params action.Params) (*client.Reply, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	reply, err := c.Send(ctx, name, params)
	if errors.Is(err, client.ErrClosed) {
		s.drop(c)
		if c, err = s.conn(ctx); err != nil {
			return nil, err
		}
		return c.Send(ctx, name, params)
	}
	return reply, err
}

func (s *redialSender) conn(ctx context.Context) (*client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return s.c, nil
	}
	c, err := client.Dial(ctx, s.url, s.log)
	if err != nil {
		return nil, err
	}
	s.c = c
	return c, nil
}

func (s *redialSender) drop(c *client.Client) {
	s.mu.Lock()
	if s.c == c {
		s.c = nil
	}
	s.mu.Unlock()
	_ = c.Close()
}

func (s *redialSender) Close() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
}
