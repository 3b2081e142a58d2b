// Package config loads, normalizes, and validates refinery configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), resolves stage directories against the workspace root, reads
// TOML files, and honours environment fallbacks such as ANTHROPIC_API_KEY and
// REFINERY_WORKDIR. The Config type centralizes every knob the controller and
// CLI need so pacing, retry, and workspace settings are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical log formats, and clear validation errors.
package config
