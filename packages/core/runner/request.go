package runner

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/abdul-hamid-achik/callspec/packages/apidef"
	"github.com/abdul-hamid-achik/callspec/packages/assertions"
	"github.com/abdul-hamid-achik/callspec/packages/builtin"
	"github.com/abdul-hamid-achik/callspec/packages/core/plan"
	"github.com/abdul-hamid-achik/callspec/packages/correlator"
	"github.com/abdul-hamid-achik/callspec/packages/dispatch"
	"github.com/abdul-hamid-achik/callspec/packages/hooks"
	"github.com/abdul-hamid-achik/callspec/packages/notify"
	"github.com/abdul-hamid-achik/callspec/packages/resolver"
)

// scriptsExecution is reported with each progress event.
type scriptsExecution struct {
	PreRequest  *hooks.Execution `json:"preRequest,omitempty"`
	PostRequest *hooks.Execution `json:"postRequest,omitempty"`
}

// executeRequest runs one request to completion and appends its outcome.
// Failures never escape; they are recorded on the outcome.
func (e *Engine) executeRequest(ctx context.Context, x *execution, tc *plan.TestCase, req *plan.Request, byID map[string]*plan.Request) {
	logger := x.logger.With().Str("testCaseId", tc.ID).Str("requestId", req.ID).Logger()

	resolved, err := e.resolveTemplate(x, req, byID)
	if err != nil {
		logger.Error().Err(err).Msg("resolving request")
		declared := *req
		req.Appended = &plan.Outcome{
			Status:  plan.StatusError,
			Request: &declared,
			Error:   &plan.ErrorInfo{Message: err.Error()},
		}
		e.publishProgress(x, tc, req.Appended, nil)
		return
	}

	if x.trace.SessionID != "" {
		if resolved.Headers == nil {
			resolved.Headers = make(map[string]string)
		}
		resolved.Headers["traceparent"] = x.trace.Traceparent()
	}

	scripts := &scriptsExecution{}
	items, pre, err := e.hooks.RunPre(ctx, resolved, x.environment.Items())
	if err != nil {
		logger.Warn().Err(err).Msg("pre-request script failed")
	}
	x.environment.Replace(items)
	scripts.PreRequest = pre

	if withEnv, err := e.resolver.ResolveRequest(resolved, &resolver.Scopes{Environment: x.environment.Data()}, resolver.ScopeEnvironment); err != nil {
		logger.Error().Err(err).Msg("resolving environment values")
	} else {
		resolved = withEnv
	}
	resolved.Path = resolver.ResolvePath(resolved.OperationPath, resolved.Params)

	call := &dispatch.Call{
		Counterpart:     x.counterpart,
		URL:             resolved.URL,
		Method:          resolved.Method,
		Path:            resolved.Path,
		QueryParams:     stringify(resolved.QueryParams),
		Headers:         resolved.Headers,
		Body:            resolved.Body,
		IgnoreCallbacks: resolved.IgnoreCallbacks,
	}
	if !resolved.IgnoreCallbacks {
		call.SuccessCallback, call.ErrorCallback = e.callbackEndpoints(x, resolved)
	}

	if resolved.Delay > 0 {
		select {
		case <-time.After(time.Duration(resolved.Delay) * time.Millisecond):
		case <-ctx.Done():
		}
	}

	outcome := &plan.Outcome{Request: resolved, AdditionalInfo: &plan.AdditionalInfo{}}
	result, err := e.sender.Send(ctx, call)
	var postResponse any
	if err != nil {
		outcome.Status = plan.StatusError
		outcome.Error = &plan.ErrorInfo{Message: err.Error()}
		var dErr *dispatch.Error
		if errors.As(err, &dErr) {
			outcome.Error = dErr.Info()
			result = dErr.Result
		}
		postResponse = err.Error()
		logger.Warn().Err(err).Msg("request failed")
	} else {
		outcome.Status = plan.StatusSuccess
	}
	if result != nil {
		outcome.Response = result.SyncResponse
		outcome.Callback = result.Callback
		outcome.AdditionalInfo.CurlRequest = result.CurlRequest
		outcome.AdditionalInfo.ResponseTimeMs = result.Duration.Milliseconds()
		if err == nil && result.SyncResponse != nil {
			postResponse = map[string]any{
				"code":   result.SyncResponse.Status,
				"status": result.SyncResponse.StatusText,
				"body":   result.SyncResponse.Body,
			}
		}
	}

	items, post, err := e.hooks.RunPost(ctx, resolved, hooks.PostInput{
		Response: postResponse,
		Callback: toData(outcome.Callback),
		History:  x.history,
	}, x.environment.Items())
	if err != nil {
		logger.Warn().Err(err).Msg("post-request script failed")
	}
	x.environment.Replace(items)
	scripts.PostRequest = post

	outcome.TestResult = e.evaluator.Evaluate(ctx, resolved.Tests, assertions.Subject{
		Request:          resolved,
		Response:         outcome.Response,
		Callback:         outcome.Callback,
		Environment:      x.environment.Items(),
		RequestsHistory:  x.history.Requests,
		CallbacksHistory: x.history.Callbacks,
	})

	req.Appended = outcome
	x.history.Requests = append(x.history.Requests, toData(map[string]any{
		"id":       resolved.ID,
		"request":  resolved,
		"response": outcome.Response,
		"status":   outcome.Status,
	}))
	if outcome.Callback != nil {
		x.history.Callbacks = append(x.history.Callbacks, toData(outcome.Callback))
	}

	logger.Info().Str("status", string(outcome.Status)).Msg("request executed")
	if scripts.PreRequest == nil && scripts.PostRequest == nil {
		scripts = nil
	}
	e.publishProgress(x, tc, outcome, scripts)
}

// resolveTemplate applies the function, inputs and prev scopes, then two
// request scope passes so that values composed in the first pass are
// picked up by the second.
func (e *Engine) resolveTemplate(x *execution, req *plan.Request, byID map[string]*plan.Request) (*plan.Request, error) {
	scopes := &resolver.Scopes{Inputs: x.plan.InputValues, Previous: byID}
	tree, err := resolver.ToTree(req)
	if err != nil {
		return nil, &resolver.ResolutionError{RequestID: req.ID, Err: err}
	}
	scopes.Request = tree

	resolved, err := e.resolver.ResolveRequest(req, scopes, resolver.ScopeFunction, resolver.ScopeInputs, resolver.ScopePrev)
	if err != nil {
		return nil, err
	}
	for pass := 0; pass < 2; pass++ {
		tree, err := resolver.ToTree(resolved)
		if err != nil {
			return nil, &resolver.ResolutionError{RequestID: req.ID, Err: err}
		}
		scopes.Request = tree
		resolved, err = e.resolver.ResolveRequest(resolved, scopes, resolver.ScopeRequest)
		if err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

// callbackEndpoints looks up the callbacks answering the request's
// operation. Empty endpoints mean no callback is awaited, which is always
// the case for synchronous operations.
func (e *Engine) callbackEndpoints(x *execution, req *plan.Request) (success, failure correlator.Endpoint) {
	if !req.APIVersion.Asynchronous || e.definitions == nil {
		return
	}
	defs, err := e.definitions.Definitions()
	if err != nil {
		x.logger.Warn().Err(err).Msg("loading API definitions")
		return
	}
	def, ok := apidef.Lookup(defs, req.APIVersion)
	if !ok {
		return
	}
	callbacks, err := e.definitions.CallbackMap(def)
	if err != nil {
		x.logger.Warn().Err(err).Str("type", def.Type).Msg("loading callback map")
		return
	}
	op := callbacks.Lookup(req.OperationPath, req.Method)
	if op == nil {
		return
	}

	tree, err := resolver.ToTree(req)
	if err != nil {
		return
	}
	scopes := &resolver.Scopes{Request: tree}
	success = correlator.Endpoint{
		Method: op.SuccessCallback.Method,
		URL:    e.resolver.ResolveString(op.SuccessCallback.PathPattern, scopes, resolver.ScopeRequest),
	}
	failure = correlator.Endpoint{
		Method: op.ErrorCallback.Method,
		URL:    e.resolver.ResolveString(op.ErrorCallback.PathPattern, scopes, resolver.ScopeRequest),
	}
	return success, failure
}

func (e *Engine) publishProgress(x *execution, tc *plan.TestCase, outcome *plan.Outcome, scripts *scriptsExecution) {
	event := &notify.Event{
		OutboundID:  x.trace.OutboundID,
		Status:      string(outcome.Status),
		TestCaseID:  tc.ID,
		RequestSent: outcome.Request,
		Response:    outcome.Response,
		Callback:    outcome.Callback,
		TestResult:  outcome.TestResult,
	}
	if outcome.Request != nil {
		event.RequestID = outcome.Request.ID
	}
	info := &notify.ProgressInfo{}
	if outcome.AdditionalInfo != nil {
		info.CurlRequest = outcome.AdditionalInfo.CurlRequest
	}
	if scripts != nil {
		info.ScriptsExecution = scripts
	}
	event.AdditionalInfo = info
	e.publish(x, event)
}

func stringify(values map[string]any) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = builtin.String(v)
	}
	return out
}

// toData converts v to its generic JSON form for scripts.
func toData(v any) any {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
