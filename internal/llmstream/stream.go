// Package llmstream implements the LLM Stream Handler (C6): it drives a
// model.Streamer, reassembles content/reasoning/tool-call deltas, and
// produces both incremental progress snapshots and a final coalesced
// result, per spec.md §4.7.
package llmstream

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/agentworkbench/workbench/internal/ids"
	"github.com/agentworkbench/workbench/internal/model"
	"github.com/agentworkbench/workbench/internal/telemetry"
)

// Progress is one incremental snapshot delivered to the UI renderer (C8)
// while a turn streams.
type Progress struct {
	ContentSoFar      string
	ReasoningSoFar    string
	PartialToolCalls  []PartialToolCall
}

// PartialToolCall is a best-effort rendering of one in-flight tool call:
// its accumulated name and a best-effort parse of its arguments so far.
type PartialToolCall struct {
	Index     int
	Name      string
	Arguments map[string]any
}

// Result is the final coalesced outcome of one streamed turn.
type Result struct {
	Content   string
	Reasoning string
	ToolCalls []model.ToolCall
}

// accumulator tracks one tool call's fragments across the stream, keyed by
// index (spec.md §4.7: "Deltas for the same tool-call index are
// concatenated; function.name is taken from the first delta that supplies
// it; function.arguments is accumulated").
type accumulator struct {
	index int
	id    string
	name  string
	args  []byte
}

// Handler drives one streamed turn.
type Handler struct {
	client model.Client
	tel    telemetry.Handle
}

// NewHandler constructs a Handler over client.
func NewHandler(client model.Client, tel telemetry.Handle) *Handler {
	return &Handler{client: client, tel: tel}
}

// OnProgress is called with a snapshot after every chunk; implementations
// must not block for long (spec.md §4.7's "incremental progress
// callbacks").
type OnProgress func(Progress)

// Run drives req to completion over h's client, invoking onProgress after
// each chunk, and returns the final coalesced Result. Run honours ctx
// cancellation (spec.md §5: "Awaiting the next LLM stream chunk").
func (h *Handler) Run(ctx context.Context, req *model.Request, onProgress OnProgress) (*Result, error) {
	streamer, err := h.client.Stream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("start stream: %w", err)
	}
	defer streamer.Close()

	var (
		content     string
		reasoning   string
		accByIndex  = map[int]*accumulator{}
		order       []int
	)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		chunk, err := streamer.Recv()
		if err != nil {
			return nil, fmt.Errorf("receive chunk: %w", err)
		}
		if chunk.Done {
			break
		}
		switch chunk.Type {
		case model.ChunkContent:
			content += chunk.Content
		case model.ChunkReasoning:
			reasoning += chunk.Reasoning
		case model.ChunkToolCallDelta:
			if chunk.ToolDelta == nil {
				continue
			}
			d := chunk.ToolDelta
			acc, ok := accByIndex[d.Index]
			if !ok {
				acc = &accumulator{index: d.Index}
				accByIndex[d.Index] = acc
				order = append(order, d.Index)
			}
			if acc.id == "" && d.ID != "" {
				acc.id = d.ID
			}
			if acc.name == "" && d.Name != "" {
				acc.name = d.Name
			}
			acc.args = append(acc.args, []byte(d.ArgumentsRaw)...)
		}

		if onProgress != nil {
			onProgress(snapshot(content, reasoning, accByIndex, order))
		}
	}

	sort.Ints(order)
	toolCalls := make([]model.ToolCall, 0, len(order))
	for _, idx := range order {
		acc := accByIndex[idx]
		final, dropped := finalizeArguments(acc.args)
		if dropped {
			h.tel.Metrics.IncCounter("agent.dropped_tool_calls_total", 1)
			continue
		}
		for i, obj := range final {
			id := acc.id
			if i > 0 {
				id = ids.New()
			}
			if id == "" {
				id = ids.New()
			}
			toolCalls = append(toolCalls, model.ToolCall{ID: id, Name: acc.name, Arguments: obj})
		}
	}

	return &Result{Content: content, Reasoning: reasoning, ToolCalls: toolCalls}, nil
}

func snapshot(content, reasoning string, acc map[int]*accumulator, order []int) Progress {
	ordered := append([]int{}, order...)
	sort.Ints(ordered)
	partials := make([]PartialToolCall, 0, len(ordered))
	for _, idx := range ordered {
		a := acc[idx]
		parsed := bestEffortParse(a.args)
		partials = append(partials, PartialToolCall{Index: idx, Name: a.name, Arguments: parsed})
	}
	return Progress{ContentSoFar: content, ReasoningSoFar: reasoning, PartialToolCalls: partials}
}

// bestEffortParse implements spec.md §4.7's UI-tick parse: trim, try a
// direct parse, and on failure repair the byte stream via repairPartialJSON
// so the tool card can render even mid-stream. On total failure it returns
// an empty object so at least the tool's name renders.
func bestEffortParse(raw []byte) map[string]any {
	trimmed := trimSpace(raw)
	var m map[string]any
	if len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &m); err == nil {
			return m
		}
		repaired := repairPartialJSON(trimmed)
		if err := json.Unmarshal(repaired, &m); err == nil {
			return m
		}
	}
	return map[string]any{}
}

func trimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
