// Package cmd implements the callspec CLI commands using Cobra.
//
// Available commands:
//   - run: Execute a test plan and print its report
//   - serve: Receive callbacks and accept plans over HTTP
//   - validate: Check plans without executing them
//   - list: Display the requests of a plan in execution order
//   - init: Create a config file and an example plan
//   - version: Show callspec version information
package cmd
