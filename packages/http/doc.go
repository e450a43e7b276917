// Package http provides the outbound HTTP transport used to dispatch
// test plan requests.
//
// It wraps the standard library's http package with additional features:
//   - Configurable timeouts and rate limiting
//   - Mutual TLS material and SSL validation control
//   - JSON body encoding and decoding
//   - A curl transcript of every request sent
//   - Pluggable request signing
package http
