// Package render implements the UI Renderer (C8): it accumulates the
// running transcript of one cell execution — committed content, live
// reasoning, and tool cards — for the host to paint, per spec.md §2 and
// §4.7's progress-callback contract.
package render

import (
	"encoding/json"

	"github.com/agentworkbench/workbench/internal/llmstream"
)

// ToolCard is a rendered (possibly partial) tool invocation.
type ToolCard struct {
	Index     int
	Name      string
	Arguments map[string]any
	Result    string
	Done      bool
}

// Transcript accumulates one cell execution's visible output across
// multiple LLM turns.
type Transcript struct {
	CommittedContent string
	LiveReasoning    string
	LiveContent      string
	ToolCards        []ToolCard
}

// OnProgress adopts an llmstream.Progress snapshot into the transcript's
// live fields, for a single in-flight turn.
func (t *Transcript) OnProgress(p llmstream.Progress) {
	t.LiveContent = p.ContentSoFar
	t.LiveReasoning = p.ReasoningSoFar
	cards := make([]ToolCard, 0, len(p.PartialToolCalls))
	for _, pt := range p.PartialToolCalls {
		cards = append(cards, ToolCard{Index: pt.Index, Name: pt.Name, Arguments: pt.Arguments})
	}
	t.ToolCards = cards
}

// CommitTurn folds a completed turn's content into CommittedContent and
// clears the live fields, called once a turn's stream has fully coalesced.
func (t *Transcript) CommitTurn(content string) {
	if content != "" {
		if t.CommittedContent != "" {
			t.CommittedContent += "\n"
		}
		t.CommittedContent += content
	}
	t.LiveContent = ""
	t.LiveReasoning = ""
}

// RecordToolResult attaches a finished result to the card whose Index equals
// index (the runner passes the call's position, since tool calls within a
// turn execute strictly in order, spec.md §4.8 invariant), appending a new
// card when none matches.
func (t *Transcript) RecordToolResult(index int, result string) {
	for i := range t.ToolCards {
		if t.ToolCards[i].Index == index {
			t.ToolCards[i].Result = result
			t.ToolCards[i].Done = true
			return
		}
	}
	t.ToolCards = append(t.ToolCards, ToolCard{Index: index, Result: result, Done: true})
}

// AppendErrorBadge records a non-modal error badge in the transcript
// (spec.md §7 item 2's "append an error badge to the transcript").
func (t *Transcript) AppendErrorBadge(message string) {
	if t.CommittedContent != "" {
		t.CommittedContent += "\n"
	}
	t.CommittedContent += "[error] " + message
}

// AppendDiagnosticBadge records the "empty turn" diagnostic of spec.md
// §4.8's loop pseudocode.
func (t *Transcript) AppendDiagnosticBadge(message string) {
	if t.CommittedContent != "" {
		t.CommittedContent += "\n"
	}
	t.CommittedContent += "[diagnostic] " + message
}

// MarshalCards is a convenience for tests/CLI output.
func (t *Transcript) MarshalCards() ([]byte, error) {
	return json.Marshal(t.ToolCards)
}
