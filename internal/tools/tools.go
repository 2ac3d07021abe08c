// Package tools implements the Tool Registry & Dispatcher (C4): typed
// capability records partitioned by caller role, looked up and executed
// against a toolctx.Context.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentworkbench/workbench/internal/toolctx"
	"github.com/agentworkbench/workbench/internal/toolerrors"
)

// CallerSet identifies which agents may invoke a tool (spec.md §4.6).
type CallerSet int

const (
	// Common tools are available to every agent.
	Common CallerSet = iota
	// RootOnly tools are available only to agents with no parent.
	RootOnly
	// ChildOnly tools are available only to agents with a parent.
	ChildOnly
)

// Spec is one callable tool: a name, a machine description for the LLM's
// function-calling schema, an execute action, and an optional
// pretty-printer for its arguments.
type Spec struct {
	Name        string
	Description string
	Schema      json.RawMessage // JSON schema for the parameter object
	Caller      CallerSet
	ReadOnly    bool
	Execute     func(args json.RawMessage, ctx *toolctx.Context) (string, error)
	Prettify    func(args json.RawMessage) string

	compiled *jsonschema.Schema
}

// Registry holds every known tool and answers caller-scoped lookups.
type Registry struct {
	byName map[string]*Spec
}

// NewRegistry compiles and indexes specs. A spec whose Schema is not valid
// JSON or fails to compile makes NewRegistry return an error; a spec with
// no Schema is kept and its arguments are not validated.
func NewRegistry(specs []*Spec) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Spec, len(specs))}
	compiler := jsonschema.NewCompiler()
	for _, s := range specs {
		if len(s.Schema) > 0 {
			url := "mem://" + s.Name + ".json"
			var doc any
			if err := json.Unmarshal(s.Schema, &doc); err != nil {
				return nil, fmt.Errorf("tool %q: invalid schema json: %w", s.Name, err)
			}
			if err := compiler.AddResource(url, doc); err != nil {
				return nil, fmt.Errorf("tool %q: add schema resource: %w", s.Name, err)
			}
			compiled, err := compiler.Compile(url)
			if err != nil {
				return nil, fmt.Errorf("tool %q: compile schema: %w", s.Name, err)
			}
			s.compiled = compiled
		}
		r.byName[s.Name] = s
	}
	return r, nil
}

// Definitions returns the subset of registered tools available to a caller
// with isChild, in the order given by order (names that are not registered
// are skipped; map iteration is never used for this).
func (r *Registry) Definitions(isChild bool, order []string) []*Spec {
	out := make([]*Spec, 0, len(order))
	for _, name := range order {
		s, ok := r.byName[name]
		if !ok {
			continue
		}
		if s.Caller == RootOnly && isChild {
			continue
		}
		if s.Caller == ChildOnly && !isChild {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Lookup resolves name for a caller, returning the dispatcher error strings
// spec.md §4.6 specifies for "not found" and "wrong set".
func (r *Registry) Lookup(name string, isChild bool) (*Spec, string) {
	s, ok := r.byName[name]
	if !ok {
		return nil, toolerrors.UnknownTool(name)
	}
	if s.Caller == RootOnly && isChild {
		return nil, toolerrors.NotAvailableForSubAgents(name)
	}
	if s.Caller == ChildOnly && !isChild {
		return nil, toolerrors.OnlyAvailableForSubAgents(name)
	}
	return s, ""
}

// Validate checks args against the tool's compiled schema, if any.
func (s *Spec) Validate(args json.RawMessage) error {
	if s.compiled == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if err := s.compiled.Validate(v); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}

// Dispatch resolves, validates, and executes name against toolCtx, applying
// the caller partition rules of spec.md §4.6. It never panics: schema
// failures and ordinary execute errors are both converted into the string
// the model sees, since spec.md §7 item 4 treats tool failure as a normal
// result. Two errors are exceptions and propagate as errors rather than
// result strings: the toolerrors.Terminate sentinel (returned alongside the
// tool's output) and context cancellation, per spec.md §7 items 1 and 6.
func (r *Registry) Dispatch(name string, args json.RawMessage, isChild bool, toolCtx *toolctx.Context) (result string, execErr error) {
	spec, errStr := r.Lookup(name, isChild)
	if spec == nil {
		return errStr, nil
	}
	if err := spec.Validate(args); err != nil {
		return fmt.Sprintf("Invalid arguments for '%s': %s", name, err.Error()), nil
	}
	out, err := spec.Execute(args, toolCtx)
	if err != nil {
		if err == toolerrors.Terminate {
			return out, toolerrors.Terminate
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// A cancelled approval wait or similar abort is not a tool
			// failure the model should see (spec.md §5, §7 item 1): let it
			// propagate so the Runner's own cancellation path handles it
			// silently instead of persisting a "failed" tool message.
			return "", err
		}
		return fmt.Sprintf("Tool '%s' failed: %s", name, err.Error()), nil
	}
	return out, nil
}
