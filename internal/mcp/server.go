package mcp

import (
	"context"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/kage-desktop/kage/internal/action"
	"github.com/kage-desktop/kage/internal/client"
)

const ServerName = "kage"

const (
	defaultCallTimeout = 15 * time.Second
	// quietWait bounds how long an action that replies only on failure is
	// given to fail.
	defaultQuietWait = 2 * time.Second
)

// Sender runs one control action on the companion.
type Sender interface {
	Send(ctx context.Context, name string, params action.Params) (*client.Reply, error)
}

// Options configures a Server.
type Options struct {
	Version     string
	CallTimeout time.Duration
	QuietWait   time.Duration
	Logger      zerolog.Logger
}

// Server exposes the companion's control actions as MCP tools.
type Server struct {
	mcpServer   *mcpsdk.Server
	sender      Sender
	log         zerolog.Logger
	callTimeout time.Duration
	quietWait   time.Duration
}

// NewServer creates an MCP server that forwards tool calls to sender.
func NewServer(sender Sender, opts Options) *Server {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.QuietWait <= 0 {
		opts.QuietWait = defaultQuietWait
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{
		sender:      sender,
		log:         opts.Logger,
		callTimeout: opts.CallTimeout,
		quietWait:   opts.QuietWait,
	}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: opts.Version,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_version",
		Description: "Report the companion's version and Go runtime version.",
	}, s.handleGetVersion)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "exit_app",
		Description: "Quit the companion. It shuts down shortly after replying.",
	}, s.handleExitApp)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "restart_app",
		Description: "Restart the companion process. It relaunches shortly after replying.",
	}, s.handleRestartApp)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_model_size",
		Description: "Resize the model container. Width and height must be positive numbers. The new size is saved.",
	}, s.handleSetModelSize)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_model_position",
		Description: "Move the model container to x,y within the companion window. The new position is saved.",
	}, s.handleSetModelPosition)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_model_path",
		Description: "Load a different Live2D model from a .model3.json file and remember it.",
	}, s.handleSetModelPath)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_motions",
		Description: "List the motion groups of the loaded model.",
	}, s.handleGetMotions)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "trigger_motion",
		Description: "Play a random motion from the named motion group.",
	}, s.handleTriggerMotion)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_expressions",
		Description: "List the expressions of the loaded model.",
	}, s.handleGetExpressions)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_expression",
		Description: "Apply the named expression to the model.",
	}, s.handleSetExpression)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "clear_expression",
		Description: "Reset the model to its default expression.",
	}, s.handleClearExpression)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "show_text_message",
		Description: "Show a speech bubble next to the model. Duration is in milliseconds (default 5000).",
	}, s.handleShowTextMessage)
}
