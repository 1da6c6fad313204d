// Package integration provides integration tests that run the update server
// against real PostgreSQL, MongoDB and Redis instances via testcontainers.
//
// Run with: go test -tags=integration ./tests/integration/...
package integration
