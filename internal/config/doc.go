// Package config loads, normalizes, and validates glot configuration.
//
// Configuration lives in a TOML file. Load applies repository defaults
// first, then decodes the file over them, so a partial file is always
// valid as long as the merged result passes Validate.
package config
