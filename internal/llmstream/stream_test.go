package llmstream

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentworkbench/workbench/internal/model"
	"github.com/agentworkbench/workbench/internal/telemetry"
)

// fakeStreamer replays a fixed sequence of chunks, matching the teacher's
// style of driving streaming handlers against synthetic transports rather
// than network fakes.
type fakeStreamer struct {
	chunks []model.Chunk
	pos    int
	closed bool
}

func (f *fakeStreamer) Recv() (model.Chunk, error) {
	if f.pos >= len(f.chunks) {
		return model.Chunk{}, io.EOF
	}
	c := f.chunks[f.pos]
	f.pos++
	return c, nil
}

func (f *fakeStreamer) Close() error {
	f.closed = true
	return nil
}

type fakeClient struct {
	streamer *fakeStreamer
	err      error
}

func (c *fakeClient) Complete(context.Context, *model.Request) (*model.Response, error) {
	return nil, nil
}

func (c *fakeClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.streamer, nil
}

func TestHandlerCoalescesContentAndToolCalls(t *testing.T) {
	streamer := &fakeStreamer{chunks: []model.Chunk{
		{Type: model.ChunkContent, Content: "Hello "},
		{Type: model.ChunkContent, Content: "world"},
		{Type: model.ChunkToolCallDelta, ToolDelta: &model.ToolCallDelta{Index: 0, ID: "call_1", Name: "read_file", ArgumentsRaw: `{"path":"`}},
		{Type: model.ChunkToolCallDelta, ToolDelta: &model.ToolCallDelta{Index: 0, ArgumentsRaw: `/a.txt"}`}},
		{Done: true},
	}}
	h := NewHandler(&fakeClient{streamer: streamer}, telemetry.Noop())

	var snapshots []Progress
	result, err := h.Run(context.Background(), &model.Request{}, func(p Progress) {
		snapshots = append(snapshots, p)
	})

	require.NoError(t, err)
	require.Equal(t, "Hello world", result.Content)
	require.Len(t, result.ToolCalls, 1)
	require.Equal(t, "call_1", result.ToolCalls[0].ID)
	require.Equal(t, "read_file", result.ToolCalls[0].Name)
	require.JSONEq(t, `{"path":"/a.txt"}`, result.ToolCalls[0].Arguments)
	require.NotEmpty(t, snapshots)
	require.True(t, streamer.closed)
}

func TestHandlerAccumulatesReasoning(t *testing.T) {
	streamer := &fakeStreamer{chunks: []model.Chunk{
		{Type: model.ChunkReasoning, Reasoning: "thinking "},
		{Type: model.ChunkReasoning, Reasoning: "more"},
		{Done: true},
	}}
	h := NewHandler(&fakeClient{streamer: streamer}, telemetry.Noop())

	result, err := h.Run(context.Background(), &model.Request{}, nil)
	require.NoError(t, err)
	require.Equal(t, "thinking more", result.Reasoning)
	require.Empty(t, result.ToolCalls)
}

func TestHandlerSplitsConcatenatedToolCall(t *testing.T) {
	streamer := &fakeStreamer{chunks: []model.Chunk{
		{Type: model.ChunkToolCallDelta, ToolDelta: &model.ToolCallDelta{Index: 0, ID: "call_1", Name: "fork", ArgumentsRaw: `{"a":1}`}},
		{Type: model.ChunkToolCallDelta, ToolDelta: &model.ToolCallDelta{Index: 0, ArgumentsRaw: `{"a":2}`}},
		{Done: true},
	}}
	h := NewHandler(&fakeClient{streamer: streamer}, telemetry.Noop())

	result, err := h.Run(context.Background(), &model.Request{}, nil)
	require.NoError(t, err)
	require.Len(t, result.ToolCalls, 2)
	require.Equal(t, "call_1", result.ToolCalls[0].ID)
	require.NotEqual(t, "", result.ToolCalls[1].ID)
	require.NotEqual(t, result.ToolCalls[0].ID, result.ToolCalls[1].ID)
}

func TestHandlerDropsUnrecoverableToolCall(t *testing.T) {
	streamer := &fakeStreamer{chunks: []model.Chunk{
		{Type: model.ChunkToolCallDelta, ToolDelta: &model.ToolCallDelta{Index: 0, Name: "broken", ArgumentsRaw: `not json }{{`}},
		{Done: true},
	}}
	h := NewHandler(&fakeClient{streamer: streamer}, telemetry.Noop())

	result, err := h.Run(context.Background(), &model.Request{}, nil)
	require.NoError(t, err)
	require.Empty(t, result.ToolCalls)
}

func TestHandlerOrdersToolCallsByIndexRegardlessOfArrivalOrder(t *testing.T) {
	streamer := &fakeStreamer{chunks: []model.Chunk{
		{Type: model.ChunkToolCallDelta, ToolDelta: &model.ToolCallDelta{Index: 1, ID: "call_b", Name: "b", ArgumentsRaw: `{}`}},
		{Type: model.ChunkToolCallDelta, ToolDelta: &model.ToolCallDelta{Index: 0, ID: "call_a", Name: "a", ArgumentsRaw: `{}`}},
		{Done: true},
	}}
	h := NewHandler(&fakeClient{streamer: streamer}, telemetry.Noop())

	result, err := h.Run(context.Background(), &model.Request{}, nil)
	require.NoError(t, err)
	require.Len(t, result.ToolCalls, 2)
	require.Equal(t, "call_a", result.ToolCalls[0].ID)
	require.Equal(t, "call_b", result.ToolCalls[1].ID)
}

func TestHandlerPropagatesContextCancellation(t *testing.T) {
	streamer := &fakeStreamer{chunks: []model.Chunk{
		{Type: model.ChunkContent, Content: "partial"},
	}}
	h := NewHandler(&fakeClient{streamer: streamer}, telemetry.Noop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Run(ctx, &model.Request{}, nil)
	require.Error(t, err)
}
