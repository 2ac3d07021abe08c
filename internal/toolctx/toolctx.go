// Package toolctx defines the per-call context passed into every tool's
// Execute function (spec.md §4.6).
package toolctx

import (
	"context"
	"strings"
)

// Document is the minimal handle a tool needs onto the agent's persisted
// document; concrete types live in internal/docstore.
type Document interface {
	Location() string
}

// Context bundles everything a tool's Execute function may consult: the
// caller's capability list, a handle to its document, a way to stream
// partial output for live rendering, a cancellation signal, and the
// completion-tool's termination callback.
type Context struct {
	Ctx              context.Context
	AgentID          string
	AllowedPaths     []string
	Doc              Document
	AppendOutput     func(chunk string)
	SignalTermination func()
}

// Append forwards chunk to AppendOutput if one was supplied, and is always
// safe to call.
func (c *Context) Append(chunk string) {
	if c.AppendOutput != nil {
		c.AppendOutput(chunk)
	}
}

// Terminate invokes SignalTermination if one was supplied. The child-only
// task_finish tool calls this after recording its summary.
func (c *Context) Terminate() {
	if c.SignalTermination != nil {
		c.SignalTermination()
	}
}

// AllowedWildcard is the first-class "allow everything" capability entry
// (spec.md §4.6, §9: "the wildcard / is a first-class entry, not a special
// path").
const AllowedWildcard = "/"

// IsAllowed reports whether target is contained under one of allowed's path
// prefixes, using scheme+authority+case-normalised-path-with-trailing-
// separator containment as spec.md §4.6 describes, with "/" always granting
// access.
func IsAllowed(allowed []string, target string) bool {
	normTarget := normalize(target)
	for _, a := range allowed {
		if a == AllowedWildcard {
			return true
		}
		if strings.HasPrefix(normTarget, normalize(a)) {
			return true
		}
	}
	return false
}

// normalize lower-cases the path portion and ensures a trailing separator
// so that "/a/bc" is not treated as contained under allowed prefix "/a/b".
func normalize(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}
