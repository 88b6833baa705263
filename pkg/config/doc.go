// Package config loads and validates the YAML configuration for the
// permission checking subsystem and translates it into the option
// structs the individual packages consume.
//
// Loading follows a fixed sequence: parse the YAML file, apply
// defaults, optionally apply POLARIS_* environment overrides, then
// validate. Validation collects every problem instead of stopping at
// the first one.
package config
