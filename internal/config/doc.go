// Package config loads, validates, and normalizes meetscribe configuration
// from TOML. All path fields are tilde-expanded and absolute after Load.
package config
