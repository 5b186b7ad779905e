// Package cmd implements the apismoke CLI commands using Cobra.
//
// Available commands:
//   - run: Execute the scenarios against the configured target
//   - probe: Check once whether the target can be tested
//   - list: Display the scenarios and their tags
//   - mock: Serve an in-process fake of the user API
//   - validate: Load and check the effective configuration
//   - init: Write a starter config and .env.example
//   - version: Show apismoke version information
//
// Settings resolve as defaults, then config file, then environment
// (including .env files), then flags.
package cmd
