// Package server implements the HTTP and WebSocket boundary for lanshare.
//
// The implementation is organized into specialized files for configuration,
// the broadcast hub, participant sessions, routing, and HTTP handlers to
// keep the codebase maintainable and testable as the project grows.
package server
