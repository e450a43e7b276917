// Package assertions evaluates the assertions declared on a request
// against its realized response, callback and environment.
//
// Each assertion is evaluated on its own; a failing or broken assertion
// is recorded as FAILED with its message and never stops the others.
package assertions
