// Package config loads and validates the trader's YAML configuration.
// ${VAR} references are expanded from the environment at load time.
package config
