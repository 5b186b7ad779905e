// Package config handles configuration loading for apismoke.
//
// Settings are resolved in this order, later sources winning:
//   - Built-in defaults (DefaultConfig)
//   - An apismoke.json, apismoke.yaml or apismoke.yml file
//   - .env and .env.local files, then the process environment (API_* variables)
//   - Command-line flags, merged by the CLI with Merge
package config
