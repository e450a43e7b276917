// Package config handles configuration loading and management for callspec.
//
// It provides functionality for:
//   - Loading configuration from callspec.config.json or callspec.config.yaml files
//   - Default configuration values
//   - Converting the file settings into dispatcher settings and TLS sources
package config
