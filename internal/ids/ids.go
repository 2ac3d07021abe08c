// Package ids generates the stable identifiers used for agents, fork
// sessions, approval requests, and tool calls.
package ids

import "github.com/google/uuid"

// New returns a fresh random 128-bit identifier in its canonical string
// form, per spec.md §3 ("string form of a random 128-bit value").
func New() string {
	return uuid.NewString()
}

// Short returns the first segment of id, used for display when the full
// identifier would be too noisy (spec.md §4.4 report format: "<shortId>").
func Short(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
