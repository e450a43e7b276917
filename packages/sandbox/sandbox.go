package sandbox

import (
	"context"

	"github.com/abdul-hamid-achik/callspec/packages/core/env"
)

// Bundle is the data a script runs against.
type Bundle struct {
	Environment      []env.Item
	Request          any
	Response         any
	Callback         any
	RequestsHistory  any
	CallbacksHistory any

	// PlainEnvironment exposes the environment as a read-only map instead
	// of the get/set object.
	PlainEnvironment bool
}

// Result is the state after a script ran.
type Result struct {
	Environment []env.Item `json:"environment"`
	Console     []string   `json:"consoleLog,omitempty"`
}

// Executor creates isolated execution contexts.
type Executor interface {
	NewContext(bundle Bundle) (Context, error)
}

// Context runs scripts against one bundle. It must be disposed after use.
type Context interface {
	Execute(ctx context.Context, lines []string) (*Result, error)
	Dispose()
}
