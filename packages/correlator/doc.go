// Package correlator matches inbound callbacks to the outbound requests
// waiting for them.
//
// A Wait is registered with a success endpoint and an optional failure
// endpoint (method + URL) scoped to a counterpart. The first matching
// Signal, the timeout, or an explicit Cancel settles the Wait; whichever
// wins removes every listener of that Wait and stops its timer.
//
// Listeners are keyed by (counterpart, method, url). Two waits registered
// on the same key both receive the next callback for it.
package correlator
