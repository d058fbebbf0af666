package mcp

// EmptyInput is the input for tools without arguments.
type EmptyInput struct{}

// SetModelSizeInput is the input for the set_model_size tool.
type SetModelSizeInput struct {
	Width  float64 `json:"width" jsonschema:"Container width in pixels"`
	Height float64 `json:"height" jsonschema:"Container height in pixels"`
}

// SetModelPositionInput is the input for the set_model_position tool.
type SetModelPositionInput struct {
	X float64 `json:"x" jsonschema:"Horizontal offset in pixels"`
	Y float64 `json:"y" jsonschema:"Vertical offset in pixels"`
}

// SetModelPathInput is the input for the set_model_path tool.
type SetModelPathInput struct {
	Path string `json:"path" jsonschema:"Absolute path to a .model3.json file"`
}

// TriggerMotionInput is the input for the trigger_motion tool.
type TriggerMotionInput struct {
	MotionName string `json:"motion_name" jsonschema:"Motion group name as listed by get_motions"`
}

// SetExpressionInput is the input for the set_expression tool.
type SetExpressionInput struct {
	ExpressionName string `json:"expression_name" jsonschema:"Expression name as listed by get_expressions"`
}

// ShowTextMessageInput is the input for the show_text_message tool.
type ShowTextMessageInput struct {
	Message  string  `json:"message" jsonschema:"Text to show"`
	Duration float64 `json:"duration,omitempty" jsonschema:"How long to show the bubble in milliseconds (default: 5000)"`
}
