// Package runner executes apismoke scenarios and collects their outcomes.
//
// It provides functionality for:
//   - A Session holding the configuration, the shared HTTP client and the
//     probe result, passed explicitly to every scenario
//   - A per-scenario T usable with testify's assert and require packages
//   - Name and tag filtering
//   - Gating every scenario on the reachability probe
//   - Sequential or bounded parallel execution, with optional bail
//
// A scenario ends in one of four outcomes: passed, failed, skipped or
// xfailed. Only failed counts against the run.
package runner
