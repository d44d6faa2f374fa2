// Package apiclient is the HTTP client the vocalsplit CLI uses to reach a
// running daemon.
//
// Every method maps onto one daemon route and decodes the shared payload
// types from internal/api. Non-2xx replies surface as *APIError carrying the
// daemon's error message; connection failures wrap ErrUnavailable so callers
// can fall back to local diagnostics.
package apiclient
