// Package dispatch sends a resolved request to the counterpart and, for
// asynchronous operations, waits for the callback that answers it.
//
// Callback listeners are registered before the request leaves, so a
// callback arriving before the synchronous response is not lost.
package dispatch
