package mcp

import (
	"context"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kage-desktop/kage/internal/action"
)

func (s *Server) handleGetVersion(ctx context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, any, error) {
	return s.call(ctx, "getVersion", nil)
}

func (s *Server) handleExitApp(ctx context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, any, error) {
	return s.call(ctx, "exitApp", nil)
}

func (s *Server) handleRestartApp(ctx context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, any, error) {
	return s.call(ctx, "restartApp", nil)
}

func (s *Server) handleSetModelSize(ctx context.Context, _ *mcpsdk.CallToolRequest, args SetModelSizeInput) (*mcpsdk.CallToolResult, any, error) {
	return s.call(ctx, "setModelSize", action.Params{"width": args.Width, "height": args.Height})
}

func (s *Server) handleSetModelPosition(ctx context.Context, _ *mcpsdk.CallToolRequest, args SetModelPositionInput) (*mcpsdk.CallToolResult, any, error) {
	return s.call(ctx, "setModelPosition", action.Params{"x": args.X, "y": args.Y})
}

// handleSetModelPath treats silence as success: the companion only replies
// when the model cannot be loaded.
func (s *Server) handleSetModelPath(ctx context.Context, _ *mcpsdk.CallToolRequest, args SetModelPathInput) (*mcpsdk.CallToolResult, any, error) {
	if args.Path == "" {
		return nil, nil, errors.New("path is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.quietWait)
	defer cancel()

	reply, err := s.sender.Send(ctx, "setModelPath", action.Params{"path": args.Path})
	if errors.Is(err, context.DeadlineExceeded) {
		return textResult(fmt.Sprintf("Loading model %s", args.Path)), nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if err := reply.Err(); err != nil {
		return nil, nil, err
	}
	return textResult(string(reply.Data)), nil, nil
}

func (s *Server) handleGetMotions(ctx context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, any, error) {
	return s.call(ctx, "getMotions", nil)
}

func (s *Server) handleTriggerMotion(ctx context.Context, _ *mcpsdk.CallToolRequest, args TriggerMotionInput) (*mcpsdk.CallToolResult, any, error) {
	return s.call(ctx, "triggerMotion", action.Params{"motionName": args.MotionName})
}

func (s *Server) handleGetExpressions(ctx context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, any, error) {
	return s.call(ctx, "getExpressions", nil)
}

func (s *Server) handleSetExpression(ctx context.Context, _ *mcpsdk.CallToolRequest, args SetExpressionInput) (*mcpsdk.CallToolResult, any, error) {
	return s.call(ctx, "setExpression", action.Params{"expressionName": args.ExpressionName})
}

func (s *Server) handleClearExpression(ctx context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, any, error) {
	return s.call(ctx, "clearExpression", nil)
}

func (s *Server) handleShowTextMessage(ctx context.Context, _ *mcpsdk.CallToolRequest, args ShowTextMessageInput) (*mcpsdk.CallToolResult, any, error) {
	params := action.Params{"message": args.Message}
	if args.Duration > 0 {
		params["duration"] = args.Duration
	}
	return s.call(ctx, "showTextMessage", params)
}

// call forwards an action and returns its data as text. Failures reported
// by the companion become tool errors.
func (s *Server) call(ctx context.Context, name string, params action.Params) (*mcpsdk.CallToolResult, any, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	reply, err := s.sender.Send(ctx, name, params)
	if err != nil {
		s.log.Warn().Err(err).Str("action", name).Msg("action call failed")
		return nil, nil, err
	}
	if err := reply.Err(); err != nil {
		return nil, nil, err
	}
	return textResult(string(reply.Data)), nil, nil
}

func textResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: text},
		},
	}
}
