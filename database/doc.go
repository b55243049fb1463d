// Package database opens Bun connections from configuration and provides the
// shared logging, query hooks, and SQL error classification used by sessions.
package database
