// Package utilx contains the handful of small helpers shared across
// posync's packages.
package utilx

import "strings"

// ErrInErr discards an error that occurred while already handling an
// earlier error (e.g. a Rollback called after a failed Exec). Keeping it
// as a named call instead of a bare `_ =` makes these call sites
// searchable and signals the discard is deliberate.
func ErrInErr(_ error) {}

// StripPort removes a trailing ":port" suffix from a hostname, used when
// building a DSN so a host that already carries a port does not end up
// with two.
func StripPort(hostname string) string {
	if strings.Contains(hostname, ":") {
		return strings.Split(hostname, ":")[0]
	}
	return hostname
}
