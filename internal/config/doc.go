// Package config loads, normalizes, and validates vocalsplit configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VOCALSPLIT_API_TOKEN. The Config type centralizes every knob the daemon and
// CLI need, from upload limits and worker counts to the external tool
// argument templates, so directories and tool settings are discovered in one
// pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
