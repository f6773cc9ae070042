// Package config loads, normalizes, and validates trackbridge configuration.
//
// Configuration lives in TOML. Load searches an explicit path first, then
// ~/.config/trackbridge/config.toml, then ./trackbridge.toml, and falls back
// to Default when none exists. Normalization expands "~" and relative paths,
// fills an empty api_token from TRACKBRIDGE_API_TOKEN, lets TRACKBRIDGE_PYTHON
// override the interpreter, and canonicalizes enum values before Validate runs.
//
// CreateSample writes the embedded sample used by "trackbridge config init".
package config
