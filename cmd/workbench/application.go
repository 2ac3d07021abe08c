package main

import (
	"time"

	"github.com/agentworkbench/workbench/internal/approval"
	"github.com/agentworkbench/workbench/internal/builtintools"
	"github.com/agentworkbench/workbench/internal/config"
	"github.com/agentworkbench/workbench/internal/contextasm"
	"github.com/agentworkbench/workbench/internal/controller"
	"github.com/agentworkbench/workbench/internal/docstore"
	"github.com/agentworkbench/workbench/internal/forksession"
	"github.com/agentworkbench/workbench/internal/hostapi"
	"github.com/agentworkbench/workbench/internal/ids"
	"github.com/agentworkbench/workbench/internal/model"
	"github.com/agentworkbench/workbench/internal/orchestrator"
	"github.com/agentworkbench/workbench/internal/registry"
	"github.com/agentworkbench/workbench/internal/sidebar"
	"github.com/agentworkbench/workbench/internal/telemetry"
	"github.com/agentworkbench/workbench/internal/tools"
)

// application bundles every wired-up collaborator a CLI command needs. It
// exists so main's subcommands share one construction path instead of each
// reaching for its own wiring.
type application struct {
	cfg   config.Config
	tel   telemetry.Handle
	host  *hostapi.LocalHost
	reg   *registry.Registry
	store *docstore.Store
	forks *forksession.Manager
	gate  *approval.Gate
	orch  *orchestrator.Orchestrator
	tools *tools.Registry
	asm   *contextasm.Assembler
	ctrl  *controller.Controller
}

func newApplication(cfg config.Config, tel telemetry.Handle) (*application, error) {
	host, err := hostapi.NewLocalHost(cfg.WorkspaceRoot, tel)
	if err != nil {
		return nil, err
	}

	reg := registry.New()
	store := docstore.New(host, cfg.WorkspaceRoot)
	forks := forksession.New(tel)
	gate := approval.NewGate(cfg.AutoApproveEnabled, time.Second, tel)
	orch := orchestrator.New(reg, store, forks, host, tel)

	toolRegistry, err := tools.NewRegistry(builtintools.Build(host, gate, orch))
	if err != nil {
		return nil, err
	}

	asm := contextasm.New(host, toolRegistry, gate)

	newClient := func(apiKey, baseURL string) model.Client {
		return model.NewRateLimitedClient(model.NewOpenAIClient(apiKey, baseURL, nil), 90000)
	}
	ctrl := controller.New(cfg, store, reg, toolRegistry, asm, orch, tel, newClient)

	return &application{
		cfg:   cfg,
		tel:   tel,
		host:  host,
		reg:   reg,
		store: store,
		forks: forks,
		gate:  gate,
		orch:  orch,
		tools: toolRegistry,
		asm:   asm,
		ctrl:  ctrl,
	}, nil
}

func (a *application) sidebarProjection() sidebar.Projection {
	return sidebar.Build(sidebar.Source{Registry: a.reg, Forks: a.forks, Gate: a.gate})
}

func newAgentID() string { return ids.New() }

// metadataFor loads location's freshly written metadata, for the
// new-agent command to hand straight to DocumentOpened without a second
// round trip through the filesystem watcher.
func metadataFor(a *application, location string) docstore.Metadata {
	doc, err := a.store.Load(location)
	if err != nil {
		return docstore.Metadata{}
	}
	return doc.Metadata
}
