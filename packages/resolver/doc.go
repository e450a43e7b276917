// Package resolver substitutes scope-tagged placeholders in request
// templates.
//
// Placeholders have the form {$scope.path}. Recognized scopes are
// function, prev, request, inputs and environment; anything else is kept
// as literal text. Templates are parsed into literal and placeholder
// segments and substituted while walking the decoded request tree, so a
// substituted value never has to be re-parsed as JSON.
//
// The caller decides which scopes are active in each pass, since scopes
// become available at different points of a request's lifecycle.
// Operation paths use a separate {param} syntax handled by ResolvePath.
package resolver
