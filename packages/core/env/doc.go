// Package env holds the run-scoped Environment shared by every request of
// a callspec run.
//
// It provides functionality for:
//   - Seeding the environment from plan input values
//   - Ordered key/value storage with append-or-overwrite semantics
//   - Loading extra input values from .env files
package env
