package store

import "strings"

// isConflictError reports SQLITE_BUSY or "database is locked", the two
// concurrency errors worth retrying.
func isConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
