// Package runner executes test plans against a counterpart.
//
// An Engine runs each test case in plan order and its requests in
// ascending id order. For every request it:
//   - resolves placeholders from the function, inputs, prev, request and
//     environment scopes
//   - runs the pre-request script
//   - dispatches the call and waits for the correlated callback
//   - runs the post-request script and evaluates assertions
//
// Runs are tracked by trace id in a RunRegistry. Terminate is honoured
// before the next request of the run; a request already waiting for its
// callback is never interrupted.
package runner
