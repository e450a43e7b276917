// Package inbound serves the HTTP endpoints counterparts and operators
// talk to: asynchronous callbacks, which are handed to the correlator,
// and the control API that starts, terminates and inspects runs.
package inbound
