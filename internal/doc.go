// Package internal contains the core implementation packages for workpipe.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules while providing
// all the core functionality for the workpipe CLI tool.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - pipeline: Dispatcher, worker pool, result sink, and metrics
//   - channel: Unbounded channel and multi-channel receive race
//   - workload: Built-in work functions and the workload registry
//   - watch: File system monitoring with debouncing (watch-mode task source)
//   - config: Configuration management with validation
//   - errors: Structured error types, task errors, and sentinels
//   - logging: Structured logging built on log/slog
//   - version: Build-time version information
package internal
