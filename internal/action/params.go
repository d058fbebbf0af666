package action

import (
	"fmt"
	"math"
)

// InvalidParamsError reports a handler-level validation failure. It travels
// over the wire as HANDLER_ERROR; the type exists so callers can tell it
// apart from execution failures.
type InvalidParamsError struct {
	Message string
}

func (e *InvalidParamsError) Error() string { return e.Message }

// InvalidParams builds an InvalidParamsError.
func InvalidParams(format string, args ...any) error {
	return &InvalidParamsError{Message: fmt.Sprintf(format, args...)}
}

// Number returns params[key] when it is a JSON number. Strings are never
// coerced.
func (p Params) Number(key string) (float64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// String returns params[key] when it is a JSON string.
func (p Params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Truthy reports whether params[key] would pass a JavaScript truthiness
// check: present, non-null, non-empty string, non-zero number, true.
func (p Params) Truthy(key string) bool {
	v, ok := p[key]
	if !ok || v == nil {
		return false
	}
	switch x := v.(type) {
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	case bool:
		return x
	default:
		return true
	}
}
