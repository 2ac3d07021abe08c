package runner

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentworkbench/workbench/internal/model"
	"github.com/agentworkbench/workbench/internal/render"
	"github.com/agentworkbench/workbench/internal/telemetry"
	"github.com/agentworkbench/workbench/internal/toolctx"
	"github.com/agentworkbench/workbench/internal/toolerrors"
	"github.com/agentworkbench/workbench/internal/tools"
)

type scriptedStreamer struct {
	chunks []model.Chunk
	pos    int
}

func (s *scriptedStreamer) Recv() (model.Chunk, error) {
	if s.pos >= len(s.chunks) {
		return model.Chunk{}, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *scriptedStreamer) Close() error { return nil }

// scriptedClient replays one turn of chunks per call to Stream, in order;
// once the turns run out it keeps replaying the final turn.
type scriptedClient struct {
	turns [][]model.Chunk
	pos   int
}

func (c *scriptedClient) Complete(context.Context, *model.Request) (*model.Response, error) {
	return nil, nil
}

func (c *scriptedClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	if c.pos >= len(c.turns) {
		// Repeat the final turn forever, so a runaway loop test still
		// terminates on MaxLoops instead of panicking.
		return &scriptedStreamer{chunks: c.turns[len(c.turns)-1]}, nil
	}
	chunks := c.turns[c.pos]
	c.pos++
	return &scriptedStreamer{chunks: chunks}, nil
}

type fakeDoc struct{}

func (fakeDoc) Location() string { return "doc.json" }

func noopTool(name string, caller tools.CallerSet, execute func(json.RawMessage, *toolctx.Context) (string, error)) *tools.Spec {
	return &tools.Spec{Name: name, Description: name, Caller: caller, Execute: execute}
}

func textTurn(content string) []model.Chunk {
	return []model.Chunk{{Type: model.ChunkContent, Content: content}, {Done: true}}
}

func toolCallTurn(id, name, args string) []model.Chunk {
	return []model.Chunk{
		{Type: model.ChunkToolCallDelta, ToolDelta: &model.ToolCallDelta{Index: 0, ID: id, Name: name, ArgumentsRaw: args}},
		{Done: true},
	}
}

func emptyTurn() []model.Chunk {
	return []model.Chunk{{Done: true}}
}

func newTestRunner(t *testing.T, client model.Client, specs []*tools.Spec, cfg Config) *Runner {
	t.Helper()
	reg, err := tools.NewRegistry(specs)
	require.NoError(t, err)
	if cfg.ToolOrder == nil {
		for _, s := range specs {
			cfg.ToolOrder = append(cfg.ToolOrder, s.Name)
		}
	}
	if cfg.AgentID == "" {
		cfg.AgentID = "agent-1"
	}
	return New(cfg, client, reg, fakeDoc{}, telemetry.Noop(), func(*render.Transcript) {}, func() error { return nil })
}

func TestRunFinishesOnPlainTextTurn(t *testing.T) {
	client := &scriptedClient{turns: [][]model.Chunk{textTurn("hello there")}}
	r := newTestRunner(t, client, nil, Config{})

	produced, outcome, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeFinal, outcome)
	require.Len(t, produced, 1)
	require.Equal(t, "hello there", produced[0].Content)
}

func TestRunEmptyTurnProducesDiagnosticAndFinal(t *testing.T) {
	client := &scriptedClient{turns: [][]model.Chunk{emptyTurn()}}
	r := newTestRunner(t, client, nil, Config{})

	produced, outcome, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeFinal, outcome)
	require.Len(t, produced, 1)
	require.Equal(t, "", produced[0].Content)
}

func TestRunDispatchesToolCallAndLoopsAgain(t *testing.T) {
	called := false
	echoTool := noopTool("echo", tools.Common, func(args json.RawMessage, tc *toolctx.Context) (string, error) {
		called = true
		return "echoed", nil
	})
	client := &scriptedClient{turns: [][]model.Chunk{
		toolCallTurn("call_1", "echo", `{"x":1}`),
		textTurn("done"),
	}}
	r := newTestRunner(t, client, []*tools.Spec{echoTool}, Config{})

	produced, outcome, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, OutcomeFinal, outcome)

	// assistant tool-call msg, tool result msg, final assistant msg
	require.Len(t, produced, 3)
	require.Equal(t, model.RoleTool, produced[1].Role)
	require.Equal(t, "echoed", produced[1].Content)
	require.Equal(t, "call_1", produced[1].ToolCallID)
}

func TestRunRespectsMaxLoops(t *testing.T) {
	pingTool := noopTool("ping", tools.Common, func(json.RawMessage, *toolctx.Context) (string, error) {
		return "pong", nil
	})
	client := &scriptedClient{turns: [][]model.Chunk{
		toolCallTurn("call_1", "ping", `{}`),
	}}
	r := newTestRunner(t, client, []*tools.Spec{pingTool}, Config{MaxLoops: 3})

	produced, outcome, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeMaxLoops, outcome)
	// 3 loops x (assistant msg + tool result msg) = 6 messages.
	require.Len(t, produced, 6)
}

func TestRunTaskFinishTerminatesLoop(t *testing.T) {
	finishTool := noopTool("task_finish", tools.ChildOnly, func(args json.RawMessage, tc *toolctx.Context) (string, error) {
		tc.Terminate()
		return "all done", toolerrors.Terminate
	})
	client := &scriptedClient{turns: [][]model.Chunk{
		toolCallTurn("call_1", "task_finish", `{"summary":"done"}`),
	}}
	finalizeCalled := false
	reg, err := tools.NewRegistry([]*tools.Spec{finishTool})
	require.NoError(t, err)
	r := New(Config{AgentID: "child-1", IsChildAgent: true, ToolOrder: []string{"task_finish"}}, client, reg, fakeDoc{}, telemetry.Noop(),
		func(*render.Transcript) {},
		func() error { finalizeCalled = true; return nil },
	)

	produced, outcome, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeTaskFinished, outcome)
	require.True(t, finalizeCalled)
	require.Len(t, produced, 2)
	require.Equal(t, "all done", produced[1].Content)
}

func TestRunToolCancellationEndsSilentlyWithoutFailureMessage(t *testing.T) {
	cancelledTool := noopTool("write_file", tools.Common, func(json.RawMessage, *toolctx.Context) (string, error) {
		return "", context.Canceled
	})
	client := &scriptedClient{turns: [][]model.Chunk{
		toolCallTurn("call_1", "write_file", `{}`),
	}}
	r := newTestRunner(t, client, []*tools.Spec{cancelledTool}, Config{})

	produced, outcome, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeCancelled, outcome)
	for _, msg := range produced {
		require.NotContains(t, msg.Content, "failed")
	}
}

func TestRunCancelledContextStopsBeforeFirstTurn(t *testing.T) {
	client := &scriptedClient{turns: [][]model.Chunk{textTurn("unreachable")}}
	r := newTestRunner(t, client, nil, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	produced, outcome, err := r.Run(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeCancelled, outcome)
	require.Empty(t, produced)
}

func TestGenerateTitleReturnsModelContent(t *testing.T) {
	client := &titleClient{content: "Fixing the Parser"}
	title, err := GenerateTitle(context.Background(), client, "gpt-4.1", "please fix the parser")
	require.NoError(t, err)
	require.Equal(t, "Fixing the Parser", title)
}

type titleClient struct{ content string }

func (c *titleClient) Complete(context.Context, *model.Request) (*model.Response, error) {
	return &model.Response{Content: c.content}, nil
}

func (c *titleClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return nil, nil
}

func TestNewCallIDIsNonEmptyAndUnique(t *testing.T) {
	a := newCallID()
	b := newCallID()
	require.NotEmpty(t, a)
	require.NotEqual(t, a, b)
}
