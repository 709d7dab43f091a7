// Package driver defines the browser capability consumed by the visual
// assertion engine, with one implementation per supported transport.
package driver

import (
	"context"
	"encoding/json"
)

// Driver is the script-execution and capture capability of a live page.
// The engine never talks to a browser any other way.
type Driver interface {
	// ExecuteScript evaluates fn, a JavaScript function expression,
	// in the page context with the given JSON-serializable arguments
	// and returns the function's JSON-serialized result.
	ExecuteScript(ctx context.Context, fn string, args ...any) (json.RawMessage, error)

	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
}

// Navigator is implemented by drivers that can also drive navigation.
// The assertion engine itself never navigates; this exists for callers
// that own the whole session, such as the CLI.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}
