// Package registry persists the Director item inventory and service tokens
// in SQLite so the bridge can come up with a known device set before the
// first full sync completes, and reuse bearer tokens across restarts.
//
// The schema lives in the top-level migrations directory and is applied by
// database.Migrate at startup.
package registry
