// Package config loads, normalizes, and validates memecat configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment and container-secret
// fallbacks for credentials such as MEMECAT_WEBDAV_PASSWORD and GEMINI_API_KEY.
// The Config type centralizes every knob the daemon and CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, parsed intervals, and clear validation errors.
package config
