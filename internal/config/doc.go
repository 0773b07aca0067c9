// Package config loads, normalizes, and validates callaudit configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CALLAUDIT_ORACLE_API_KEY. The Config type centralizes every knob the CLI
// and pipeline need, so data directories, scoring thresholds, and external
// service credentials are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
