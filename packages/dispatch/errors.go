package dispatch

import (
	"fmt"

	"github.com/abdul-hamid-achik/callspec/packages/core/plan"
)

// Error codes carried by dispatch failures.
const (
	CodeTransport       = 4000
	CodeCallbackTimeout = 4001
)

// Error is a failed dispatch. Result holds whatever was observed before
// the failure.
type Error struct {
	Code    int
	Message string
	Result  *Result
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("dispatch failed (%d): %s", e.Code, e.Message)
	}
	return "dispatch failed: " + e.Message
}

func (e *Error) Cause() error  { return e.Err }
func (e *Error) Unwrap() error { return e.Err }

// Payload is the error shape recorded as the request's response data.
func (e *Error) Payload() map[string]any {
	payload := map[string]any{}
	if e.Code != 0 {
		payload["errorCode"] = e.Code
	}
	if e.Message != "" {
		payload["errorMessage"] = e.Message
	}
	if e.Result != nil {
		if e.Result.SyncResponse != nil {
			payload["syncResponse"] = e.Result.SyncResponse
		}
		if e.Result.Callback != nil {
			payload["callback"] = e.Result.Callback
		}
		if e.Result.CurlRequest != "" {
			payload["curlRequest"] = e.Result.CurlRequest
		}
	}
	return payload
}

// Info converts the error for a request outcome.
func (e *Error) Info() *plan.ErrorInfo {
	return &plan.ErrorInfo{Code: e.Code, Message: e.Message}
}

// ConfigurationError means the dispatcher is missing settings needed for
// a counterpart.
type ConfigurationError struct {
	Counterpart string
	Reason      string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s for counterpart %q", e.Reason, e.Counterpart)
}
