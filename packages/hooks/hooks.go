// Package hooks runs pre-request and post-request scripts of a request.
package hooks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/abdul-hamid-achik/callspec/packages/core/env"
	"github.com/abdul-hamid-achik/callspec/packages/core/plan"
	"github.com/abdul-hamid-achik/callspec/packages/sandbox"
)

const (
	PhasePre  = "preRequest"
	PhasePost = "postRequest"
)

// Error is a failed hook script. The environment is left unchanged.
type Error struct {
	Phase     string
	RequestID string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s script of request %q: %v", e.Phase, e.RequestID, e.Err)
}

func (e *Error) Cause() error  { return e.Err }
func (e *Error) Unwrap() error { return e.Err }

// Execution records one script run for progress reporting.
type Execution struct {
	Environment []env.Item `json:"environment"`
	ConsoleLog  []string   `json:"consoleLog,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// History is the read-only run history handed to post hooks.
type History struct {
	Requests  []any
	Callbacks []any
}

// PostInput is what a post hook observes about the dispatch.
type PostInput struct {
	Response any
	Callback any
	History  History
}

type Option func(*Runner)

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

type Runner struct {
	executor sandbox.Executor
	logger   zerolog.Logger
}

func NewRunner(executor sandbox.Executor, opts ...Option) *Runner {
	r := &Runner{
		executor: executor,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunPre executes the pre-request script. Without a script it returns
// items unchanged and a nil Execution.
func (r *Runner) RunPre(ctx context.Context, req *plan.Request, items []env.Item) ([]env.Item, *Execution, error) {
	script := req.PreRequestScript()
	if !script.HasCode() {
		return items, nil, nil
	}
	return r.run(ctx, PhasePre, req, script, sandbox.Bundle{
		Environment: items,
		Request:     toData(req),
	})
}

// RunPost executes the post-request script with the dispatch result and
// run history.
func (r *Runner) RunPost(ctx context.Context, req *plan.Request, in PostInput, items []env.Item) ([]env.Item, *Execution, error) {
	script := req.PostRequestScript()
	if !script.HasCode() {
		return items, nil, nil
	}
	return r.run(ctx, PhasePost, req, script, sandbox.Bundle{
		Environment:      items,
		Request:          toData(req),
		Response:         in.Response,
		Callback:         in.Callback,
		RequestsHistory:  emptyIfNil(in.History.Requests),
		CallbacksHistory: emptyIfNil(in.History.Callbacks),
	})
}

func (r *Runner) run(ctx context.Context, phase string, req *plan.Request, script *plan.Script, bundle sandbox.Bundle) ([]env.Item, *Execution, error) {
	sc, err := r.executor.NewContext(bundle)
	if err != nil {
		r.logger.Error().Err(err).Str("phase", phase).Str("requestId", req.ID).Msg("creating script context")
		return bundle.Environment, &Execution{Environment: bundle.Environment, Error: err.Error()}, &Error{Phase: phase, RequestID: req.ID, Err: err}
	}
	defer sc.Dispose()

	result, err := sc.Execute(ctx, script.Exec)
	exec := &Execution{Environment: bundle.Environment}
	if result != nil {
		exec.ConsoleLog = result.Console
	}
	if err != nil {
		exec.Error = err.Error()
		r.logger.Warn().Err(err).Str("phase", phase).Str("requestId", req.ID).Msg("script failed")
		return bundle.Environment, exec, &Error{Phase: phase, RequestID: req.ID, Err: err}
	}

	exec.Environment = result.Environment
	r.logger.Debug().Str("phase", phase).Str("requestId", req.ID).Int("environmentSize", len(result.Environment)).Msg("script executed")
	return result.Environment, exec, nil
}

func toData(req *plan.Request) any {
	data, err := json.Marshal(req)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func emptyIfNil(v []any) []any {
	if v == nil {
		return []any{}
	}
	return v
}
