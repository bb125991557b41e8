// Package config loads the daemon configuration from a YAML file, falling
// back to built-in defaults when the file is absent.
package config
