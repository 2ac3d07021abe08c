package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentworkbench/workbench/internal/toolctx"
	"github.com/agentworkbench/workbench/internal/toolerrors"
)

func echoSpec(name string, caller CallerSet) *Spec {
	return &Spec{
		Name:   name,
		Caller: caller,
		Execute: func(args json.RawMessage, _ *toolctx.Context) (string, error) {
			return string(args), nil
		},
	}
}

func TestDefinitionsFiltersByCallerSetAndPreservesOrder(t *testing.T) {
	reg, err := NewRegistry([]*Spec{
		echoSpec("common_tool", Common),
		echoSpec("root_only_tool", RootOnly),
		echoSpec("child_only_tool", ChildOnly),
	})
	require.NoError(t, err)

	order := []string{"common_tool", "root_only_tool", "child_only_tool"}

	rootDefs := reg.Definitions(false, order)
	names := namesOf(rootDefs)
	require.Equal(t, []string{"common_tool", "root_only_tool"}, names)

	childDefs := reg.Definitions(true, order)
	names = namesOf(childDefs)
	require.Equal(t, []string{"common_tool", "child_only_tool"}, names)
}

func TestDefinitionsSkipsUnknownNamesInOrder(t *testing.T) {
	reg, err := NewRegistry([]*Spec{echoSpec("a", Common)})
	require.NoError(t, err)

	defs := reg.Definitions(false, []string{"a", "does-not-exist"})
	require.Len(t, defs, 1)
	require.Equal(t, "a", defs[0].Name)
}

func TestLookupUnknownTool(t *testing.T) {
	reg, err := NewRegistry(nil)
	require.NoError(t, err)

	spec, errStr := reg.Lookup("ghost", false)
	require.Nil(t, spec)
	require.Contains(t, errStr, "Unknown tool")
}

func TestLookupRootOnlyRejectsChildCaller(t *testing.T) {
	reg, err := NewRegistry([]*Spec{echoSpec("root_tool", RootOnly)})
	require.NoError(t, err)

	spec, errStr := reg.Lookup("root_tool", true)
	require.Nil(t, spec)
	require.Contains(t, errStr, "not available for sub-agents")
}

func TestLookupChildOnlyRejectsRootCaller(t *testing.T) {
	reg, err := NewRegistry([]*Spec{echoSpec("child_tool", ChildOnly)})
	require.NoError(t, err)

	spec, errStr := reg.Lookup("child_tool", false)
	require.Nil(t, spec)
	require.Contains(t, errStr, "only available for sub-agents")
}

func TestDispatchUnknownToolReturnsStringNotError(t *testing.T) {
	reg, err := NewRegistry(nil)
	require.NoError(t, err)

	out, execErr := reg.Dispatch("ghost", json.RawMessage(`{}`), false, &toolctx.Context{})
	require.NoError(t, execErr)
	require.Contains(t, out, "Unknown tool")
}

func TestDispatchValidatesSchema(t *testing.T) {
	spec := &Spec{
		Name:   "typed",
		Caller: Common,
		Schema: json.RawMessage(`{"type":"object","properties":{"n":{"type":"integer"}},"required":["n"]}`),
		Execute: func(args json.RawMessage, _ *toolctx.Context) (string, error) {
			return "ok", nil
		},
	}
	reg, err := NewRegistry([]*Spec{spec})
	require.NoError(t, err)

	out, execErr := reg.Dispatch("typed", json.RawMessage(`{"n":"not a number"}`), false, &toolctx.Context{})
	require.NoError(t, execErr)
	require.Contains(t, out, "Invalid arguments")
}

func TestDispatchWrapsExecuteFailureAsResultString(t *testing.T) {
	spec := &Spec{
		Name:   "failing",
		Caller: Common,
		Execute: func(args json.RawMessage, _ *toolctx.Context) (string, error) {
			return "", toolerrors.New("boom")
		},
	}
	reg, err := NewRegistry([]*Spec{spec})
	require.NoError(t, err)

	out, execErr := reg.Dispatch("failing", json.RawMessage(`{}`), false, &toolctx.Context{})
	require.NoError(t, execErr)
	require.Contains(t, out, "failed")
	require.Contains(t, out, "boom")
}

func TestDispatchPropagatesTerminateSentinel(t *testing.T) {
	spec := &Spec{
		Name:   "task_finish",
		Caller: ChildOnly,
		Execute: func(args json.RawMessage, _ *toolctx.Context) (string, error) {
			return "done", toolerrors.Terminate
		},
	}
	reg, err := NewRegistry([]*Spec{spec})
	require.NoError(t, err)

	out, execErr := reg.Dispatch("task_finish", json.RawMessage(`{}`), true, &toolctx.Context{})
	require.ErrorIs(t, execErr, toolerrors.Terminate)
	require.Equal(t, "done", out)
}

func TestDispatchPropagatesCancellationInsteadOfFailureString(t *testing.T) {
	spec := &Spec{
		Name:   "write_file",
		Caller: Common,
		Execute: func(args json.RawMessage, _ *toolctx.Context) (string, error) {
			return "", context.Canceled
		},
	}
	reg, err := NewRegistry([]*Spec{spec})
	require.NoError(t, err)

	out, execErr := reg.Dispatch("write_file", json.RawMessage(`{}`), false, &toolctx.Context{})
	require.ErrorIs(t, execErr, context.Canceled)
	require.Empty(t, out)
	require.NotContains(t, out, "failed")
}

func namesOf(specs []*Spec) []string {
	out := make([]string, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.Name)
	}
	return out
}
