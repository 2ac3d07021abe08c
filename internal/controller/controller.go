// Package controller implements Controller glue (C11): it receives
// "execute this cell" from the host, builds history via the Context
// Assembler (C10), instantiates a Runner (C7), and persists the resulting
// conversation turns, per spec.md §4.11.
package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentworkbench/workbench/internal/config"
	"github.com/agentworkbench/workbench/internal/contextasm"
	"github.com/agentworkbench/workbench/internal/docstore"
	"github.com/agentworkbench/workbench/internal/model"
	"github.com/agentworkbench/workbench/internal/orchestrator"
	"github.com/agentworkbench/workbench/internal/registry"
	"github.com/agentworkbench/workbench/internal/render"
	"github.com/agentworkbench/workbench/internal/runner"
	"github.com/agentworkbench/workbench/internal/telemetry"
	"github.com/agentworkbench/workbench/internal/toolctx"
	"github.com/agentworkbench/workbench/internal/tools"
)

// ErrMissingAPIKey is returned before a Runner is ever constructed if the
// configured API key is empty (spec.md §4.11: "If the API key is missing,
// fail the cell with a clear error before creating the runner").
var ErrMissingAPIKey = errors.New("controller: missing API key")

// ClientFactory builds a model.Client for a resolved (apiKey, baseURL)
// pair; production wiring wraps model.NewOpenAIClient in a
// model.RateLimitedClient, tests substitute a fake.
type ClientFactory func(apiKey, baseURL string) model.Client

// Controller wires C10 (assembler), C7 (runner), and C3 (store) together
// for one workspace.
type Controller struct {
	cfg       config.Config
	store     *docstore.Store
	reg       *registry.Registry
	tools     *tools.Registry
	assembler *contextasm.Assembler
	orch      *orchestrator.Orchestrator
	tel       telemetry.Handle
	newClient ClientFactory
}

// New constructs a Controller.
func New(cfg config.Config, store *docstore.Store, reg *registry.Registry, toolRegistry *tools.Registry, assembler *contextasm.Assembler, orch *orchestrator.Orchestrator, tel telemetry.Handle, newClient ClientFactory) *Controller {
	return &Controller{cfg: cfg, store: store, reg: reg, tools: toolRegistry, assembler: assembler, orch: orch, tel: tel, newClient: newClient}
}

type documentHandle struct{ location string }

func (d documentHandle) Location() string { return d.location }

// RunCell executes one cell against agentID's document (spec.md §4.11). It
// returns the runner's outcome and persists the newly produced messages on
// success; on cancellation it ends quietly with no error; on any other
// error it returns it for the caller's error channel.
func (c *Controller) RunCell(ctx context.Context, agentID string, cellIndex int, cellText string) (runner.Outcome, error) {
	rec := c.reg.Get(agentID)
	if rec == nil {
		return runner.OutcomeError, fmt.Errorf("controller: unknown agent %s", agentID)
	}

	apiKey := c.cfg.APIKey
	if apiKey == "" {
		return runner.OutcomeError, ErrMissingAPIKey
	}
	modelID := rec.Model
	if modelID == "" {
		modelID = c.cfg.DefaultModel
	}

	doc, err := c.store.Load(rec.DocumentLocation)
	if err != nil {
		return runner.OutcomeError, fmt.Errorf("controller: load document: %w", err)
	}

	systemPrompt, _, err := c.assembler.Expand(ctx, systemPromptTemplate, agentID, rec.AllowedPaths)
	if err != nil {
		return runner.OutcomeError, fmt.Errorf("controller: expand system prompt: %w", err)
	}

	history := make([]model.Message, 0, len(doc.Context)+2)
	history = append(history, model.Message{Role: model.RoleSystem, Content: systemPrompt})
	history = append(history, doc.Context...)
	history = append(history, model.Message{Role: model.RoleUser, Content: cellText})

	client := c.newClient(apiKey, c.cfg.BaseURL)

	c.orch.AgentStarted(agentID)
	defer c.orch.AgentStopped(agentID)

	rn := runner.New(
		runner.Config{
			AgentID:      agentID,
			Model:        modelID,
			MaxLoops:     runner.DefaultMaxLoops,
			IsChildAgent: !rec.IsRoot(),
			AllowedPaths: rec.AllowedPaths,
			ToolOrder:    defaultToolOrder,
		},
		client,
		c.tools,
		documentHandle{location: rec.DocumentLocation},
		c.tel,
		func(*render.Transcript) {},
		func() error {
			// task_finish itself already reports the child's summary to the
			// orchestrator (internal/builtintools); this finalize hook only
			// persists the document's own taskFinished flag.
			t := true
			return c.store.UpdateMetadata(rec.DocumentLocation, docstore.Patch{TaskFinished: &t})
		},
	)

	produced, outcome, runErr := rn.Run(ctx, history)

	if outcome == runner.OutcomeCancelled {
		return outcome, nil
	}

	newMessages := append([]model.Message{{Role: model.RoleUser, Content: cellText}}, produced...)
	if storeErr := c.store.UpdateCellInteraction(rec.DocumentLocation, len(doc.Context), newMessages); storeErr != nil {
		return outcome, fmt.Errorf("controller: persist cell interaction: %w", storeErr)
	}

	if cellIndex == 0 && rec.IsRoot() && c.cfg.TitleGeneratorModel != "" {
		go func() {
			title, err := runner.GenerateTitle(context.Background(), client, c.cfg.TitleGeneratorModel, cellText)
			if err != nil {
				c.tel.Logger.Warn(context.Background(), "title generation failed", "agent_id", agentID, "err", err)
				return
			}
			_ = c.store.UpdateMetadata(rec.DocumentLocation, docstore.Patch{Name: &title})
			c.orch.NameChanged(agentID, title)
		}()
	}

	return outcome, runErr
}

// defaultToolOrder is the stable presentation order for the built-in tool
// set (internal/builtintools); Controller callers may override per agent.
var defaultToolOrder = []string{"read_file", "write_file", "delete_path", "list_dir", "fork", "task_finish"}

const systemPromptTemplate = "You are an autonomous coding agent. Use the available tools to complete the user's request."

var _ toolctx.Document = documentHandle{}
