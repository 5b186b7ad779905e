// Package http provides the HTTP client used by apismoke scenarios and the
// reachability probe.
//
// It wraps the standard library's http package with additional features:
//   - A base URL that request paths are resolved against
//   - Default headers (User-Agent, Accept, Accept-Language, Connection)
//   - A per-attempt timeout that individual requests may override
//   - A retry policy with exponential backoff that returns the last
//     response, not an error, when retries run out
//   - Attempt observation for metrics and debug logging
package http
