// Package config loads Switchyard's YAML configuration with environment
// variable overrides and validation.
//
// Loading order: hardcoded defaults, then the YAML file, then
// SWITCHYARD_* environment variables. The merged result is validated
// before use; an invalid configuration fails startup.
package config
