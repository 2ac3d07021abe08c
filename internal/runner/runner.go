// Package runner implements the Agent Runner (C7): the bounded loop that
// combines the LLM Stream Handler (C6) and the Tool Registry & Dispatcher
// (C4), per spec.md §4.8.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/agentworkbench/workbench/internal/ids"
	"github.com/agentworkbench/workbench/internal/llmstream"
	"github.com/agentworkbench/workbench/internal/model"
	"github.com/agentworkbench/workbench/internal/render"
	"github.com/agentworkbench/workbench/internal/telemetry"
	"github.com/agentworkbench/workbench/internal/toolctx"
	"github.com/agentworkbench/workbench/internal/toolerrors"
	"github.com/agentworkbench/workbench/internal/tools"
)

// DefaultMaxLoops is the loop cap spec.md §4.8 names as the default.
const DefaultMaxLoops = 30

// Config configures one Runner instance (spec.md §4.8).
type Config struct {
	AgentID      string
	Model        string
	MaxLoops     int
	IsChildAgent bool
	AllowedPaths []string
	ToolOrder    []string // stable tool presentation order for this agent
}

// Runner drives one cell's bounded tool-calling loop.
type Runner struct {
	cfg      Config
	client   model.Client
	tools    *tools.Registry
	doc      toolctx.Document
	tel      telemetry.Handle
	stream   *llmstream.Handler
	onDraw   func(*render.Transcript)
	finalize func() error // persist taskFinished=true via docstore, when the loop ends with task_finish
}

// New constructs a Runner.
func New(cfg Config, client model.Client, registry *tools.Registry, doc toolctx.Document, tel telemetry.Handle, onDraw func(*render.Transcript), finalize func() error) *Runner {
	if cfg.MaxLoops <= 0 {
		cfg.MaxLoops = DefaultMaxLoops
	}
	return &Runner{
		cfg:      cfg,
		client:   client,
		tools:    registry,
		doc:      doc,
		tel:      tel,
		stream:   llmstream.NewHandler(client, tel),
		onDraw:   onDraw,
		finalize: finalize,
	}
}

// Outcome reports how a Run terminated, for callers that need to branch on
// it (e.g. the controller skipping persistence when the run was cancelled).
type Outcome string

const (
	OutcomeFinal        Outcome = "final"
	OutcomeMaxLoops     Outcome = "max_loops"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeError        Outcome = "error"
	OutcomeTaskFinished Outcome = "task_finished"
)

// Run executes the bounded loop against history, returning only the newly
// produced messages (spec.md §4.8 invariant: "the run returns only the
// newly produced messages; the caller is responsible for storing them").
func (r *Runner) Run(ctx context.Context, history []model.Message) ([]model.Message, Outcome, error) {
	var produced []model.Message
	transcript := &render.Transcript{}
	taskFinished := false

	for loop := 0; loop < r.cfg.MaxLoops; loop++ {
		if ctx.Err() != nil {
			r.tel.Metrics.IncCounter("agent.runner_loops_total", 1, "outcome", "cancelled")
			return produced, OutcomeCancelled, nil
		}

		req := &model.Request{
			Model:    r.cfg.Model,
			Messages: append(append([]model.Message{}, history...), produced...),
			Tools:    toolDefinitions(r.tools, r.cfg.IsChildAgent, r.cfg.ToolOrder),
			Stream:   true,
		}

		result, err := r.stream.Run(ctx, req, func(p llmstream.Progress) {
			transcript.OnProgress(p)
			r.draw(transcript)
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				r.tel.Metrics.IncCounter("agent.runner_loops_total", 1, "outcome", "cancelled")
				return produced, OutcomeCancelled, nil
			}
			transcript.AppendErrorBadge(err.Error())
			r.draw(transcript)
			r.tel.Logger.Error(ctx, "stream turn failed", "agent_id", r.cfg.AgentID, "err", err)
			r.tel.Metrics.IncCounter("agent.runner_loops_total", 1, "outcome", "error")
			return produced, OutcomeError, err
		}

		if result.Content == "" && result.Reasoning == "" && len(result.ToolCalls) == 0 {
			transcript.AppendDiagnosticBadge("model returned an empty turn")
			r.draw(transcript)
			produced = append(produced, model.Message{Role: model.RoleAssistant, Content: ""})
			r.tel.Metrics.IncCounter("agent.runner_loops_total", 1, "outcome", "final")
			return produced, OutcomeFinal, nil
		}

		if len(result.ToolCalls) == 0 {
			transcript.CommitTurn(result.Content)
			r.draw(transcript)
			produced = append(produced, model.Message{Role: model.RoleAssistant, Content: result.Content, Reasoning: result.Reasoning})
			r.tel.Metrics.IncCounter("agent.runner_loops_total", 1, "outcome", "final")
			return produced, OutcomeFinal, nil
		}

		assistantMsg := model.Message{Role: model.RoleAssistant, Content: result.Content, Reasoning: result.Reasoning, ToolCalls: result.ToolCalls}
		produced = append(produced, assistantMsg)
		transcript.CommitTurn(result.Content)
		r.draw(transcript)

		for i, call := range result.ToolCalls {
			if ctx.Err() != nil {
				r.tel.Metrics.IncCounter("agent.runner_loops_total", 1, "outcome", "cancelled")
				return produced, OutcomeCancelled, nil
			}

			toolCtx := &toolctx.Context{
				Ctx:          ctx,
				AgentID:      r.cfg.AgentID,
				AllowedPaths: r.cfg.AllowedPaths,
				Doc:          r.doc,
				AppendOutput: func(chunk string) { transcript.RecordToolResult(i, chunk); r.draw(transcript) },
				SignalTermination: func() {
					taskFinished = true
				},
			}

			args := json.RawMessage(call.Arguments)
			if !json.Valid(args) {
				args = json.RawMessage("{}")
			}

			resultText, execErr := r.tools.Dispatch(call.Name, args, r.cfg.IsChildAgent, toolCtx)
			if execErr != nil && (errors.Is(execErr, context.Canceled) || errors.Is(execErr, context.DeadlineExceeded)) {
				// Cancellation during a gated tool call (e.g. an approval
				// wait abandoned mid-flight) ends the run silently: no
				// error badge, no persisted tool-failure message.
				r.tel.Metrics.IncCounter("agent.runner_loops_total", 1, "outcome", "cancelled")
				return produced, OutcomeCancelled, nil
			}
			if execErr != nil && errors.Is(execErr, toolerrors.Terminate) {
				taskFinished = true
			}

			transcript.RecordToolResult(i, resultText)
			r.draw(transcript)
			produced = append(produced, model.Message{
				Role:       model.RoleTool,
				Content:    resultText,
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
		}

		if taskFinished {
			if r.finalize != nil {
				if err := r.finalize(); err != nil {
					r.tel.Logger.Error(ctx, "finalize document failed", "agent_id", r.cfg.AgentID, "err", err)
				}
			}
			r.tel.Metrics.IncCounter("agent.runner_loops_total", 1, "outcome", "task_finished")
			return produced, OutcomeTaskFinished, nil
		}
	}

	r.tel.Metrics.IncCounter("agent.runner_loops_total", 1, "outcome", "max_loops")
	return produced, OutcomeMaxLoops, nil
}

func (r *Runner) draw(t *render.Transcript) {
	if r.onDraw != nil {
		r.onDraw(t)
	}
}

func toolDefinitions(registry *tools.Registry, isChild bool, order []string) []model.ToolDefinition {
	specs := registry.Definitions(isChild, order)
	defs := make([]model.ToolDefinition, 0, len(specs))
	for _, s := range specs {
		defs = append(defs, model.ToolDefinition{Name: s.Name, Description: s.Description, Parameters: s.Schema})
	}
	return defs
}

// GenerateTitle implements the title-generation hook of spec.md §4.8: "if
// this was the first cell of a root agent and a title-generator model is
// configured, asynchronously request a short title from the LLM and patch
// the document's name. Never block the main return on the title call."
// Callers invoke this in a goroutine; it is not called from Run itself so
// Run's return is never blocked on it.
func GenerateTitle(ctx context.Context, client model.Client, titleModel, firstUserMessage string) (string, error) {
	req := &model.Request{
		Model: titleModel,
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: "Produce a short (max six words) title for this conversation. Reply with only the title."},
			{Role: model.RoleUser, Content: firstUserMessage},
		},
		MaxTokens: 32,
	}
	resp, err := client.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generate title: %w", err)
	}
	return resp.Content, nil
}

// newCallID mints a fresh call id for synthesizing a tool_call id outside
// the stream handler's own recovery path; only this package's tests call it.
func newCallID() string { return ids.New() }
