// Package orchestrator implements the Orchestrator (C9): the central
// lifecycle event receiver that coordinates the Agent Registry (C1), Agent
// File Store (C3), and Fork Session Manager (C2), and mediates fork/
// task_finish between parent and child runners.
package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"github.com/agentworkbench/workbench/internal/docstore"
	"github.com/agentworkbench/workbench/internal/forksession"
	"github.com/agentworkbench/workbench/internal/hostapi"
	"github.com/agentworkbench/workbench/internal/ids"
	"github.com/agentworkbench/workbench/internal/registry"
	"github.com/agentworkbench/workbench/internal/telemetry"
)

// ChildSpec is one element of a fork request's children list
// (spec.md §4.3 "Spawning a sub-agent").
type ChildSpec struct {
	Prompt       string
	AllowedPaths []string
	Model        string
}

// Orchestrator wires the registry, file store, and fork session manager
// together and exposes the lifecycle-event and fork/task_finish operations
// of spec.md §4.3.
type Orchestrator struct {
	reg   *registry.Registry
	store *docstore.Store
	forks *forksession.Manager
	host  hostapi.DocumentSurface
	tel   telemetry.Handle
}

// New constructs an Orchestrator over the given collaborators.
func New(reg *registry.Registry, store *docstore.Store, forks *forksession.Manager, host hostapi.DocumentSurface, tel telemetry.Handle) *Orchestrator {
	return &Orchestrator{reg: reg, store: store, forks: forks, host: host, tel: tel}
}

func (o *Orchestrator) nameLookup(childID string) (string, bool) {
	rec := o.reg.Get(childID)
	if rec == nil {
		return "", false
	}
	return rec.Name, true
}

// DocumentOpened handles spec.md §4.3's documentOpened event: upsert the
// record from meta, then hydrate the whole reachable tree (spec.md §4.9).
func (o *Orchestrator) DocumentOpened(id, location string, meta docstore.Metadata) {
	rec := o.reg.Get(id)
	if rec == nil {
		rec = &registry.AgentRecord{ID: id, ChildIDs: map[string]struct{}{}}
	}
	rec.DocumentLocation = location
	rec.Name = meta.Name
	rec.ParentID = meta.ParentID
	rec.AllowedPaths = meta.AllowedPaths
	rec.Model = meta.Model
	if meta.TaskFinished {
		rec.TaskFinished = true
	}
	for _, c := range meta.ChildrenList {
		rec.ChildIDs[c] = struct{}{}
	}
	o.reg.Upsert(rec)
	o.hydrateTree(id)
}

// WindowOpenedForID handles spec.md §4.3's windowOpenedForId event.
func (o *Orchestrator) WindowOpenedForID(id string) {
	o.reg.SetWindowOpen(id, true)
}

// VisibleSetChanged handles spec.md §4.3's visibleSetChanged event: mark
// WindowOpen for exactly the records whose location is in locations.
func (o *Orchestrator) VisibleSetChanged(locations []string) {
	visible := make(map[string]struct{}, len(locations))
	for _, loc := range locations {
		visible[loc] = struct{}{}
	}
	for _, rec := range o.reg.All() {
		_, isVisible := visible[rec.DocumentLocation]
		o.reg.SetWindowOpen(rec.ID, isVisible)
	}
}

// AgentStarted handles spec.md §4.3's agentStarted event.
func (o *Orchestrator) AgentStarted(id string) { o.reg.SetRunning(id, true) }

// AgentStopped handles spec.md §4.3's agentStopped event.
func (o *Orchestrator) AgentStopped(id string) { o.reg.SetRunning(id, false) }

// TaskFinishReported handles spec.md §4.3's taskFinishReported event:
// mark TaskFinished, and if the agent has a parent, notify the fork
// session manager.
func (o *Orchestrator) TaskFinishReported(id, summary string) {
	o.reg.SetTaskFinished(id)
	rec := o.reg.Get(id)
	if rec == nil || rec.ParentID == "" {
		return
	}
	o.forks.RecordResult(rec.ParentID, id, summary, o.nameLookup)
}

// FileDeleted handles spec.md §4.3's fileDeleted event: remove the record,
// orphan its children, unlink it from its parent, and notify any fork
// session waiting on it.
func (o *Orchestrator) FileDeleted(location string) {
	rec := o.reg.GetByLocation(location)
	if rec == nil {
		return
	}
	if rec.ParentID != "" {
		o.reg.RemoveChild(rec.ParentID, rec.ID)
		o.forks.MarkDeleted(rec.ParentID, rec.ID, o.nameLookup)
	}
	for childID := range rec.ChildIDs {
		o.reg.SetParent(childID, "")
		if childRec := o.reg.Get(childID); childRec != nil && childRec.DocumentLocation != "" {
			empty := ""
			_ = o.store.UpdateMetadata(childRec.DocumentLocation, docstore.Patch{ParentID: &empty})
		}
	}
	o.reg.Delete(rec.ID)
}

// NameChanged handles spec.md §4.3's nameChanged event.
func (o *Orchestrator) NameChanged(id, newName string) {
	o.reg.Rename(id, newName)
}

// Spawn implements spec.md §4.3's "Spawning a sub-agent (fork primitive)".
// It opens a fork session, synthesizes and persists a fresh document per
// child spec, registers each child in the registry and in the parent's
// on-disk children list, asks the host to open each child document in the
// background, and returns the session for the caller (the fork tool) to
// Await.
func (o *Orchestrator) Spawn(ctx context.Context, parentID, contextSummary string, children []ChildSpec) (*forksession.Session, error) {
	parent := o.reg.Get(parentID)
	if parent == nil {
		return nil, fmt.Errorf("spawn: unknown parent %s", parentID)
	}

	childIDs := make([]string, 0, len(children))
	for range children {
		childIDs = append(childIDs, ids.New())
	}

	session, err := o.forks.Create(parentID, contextSummary, childIDs)
	if err != nil {
		return nil, err
	}

	for i, spec := range children {
		childID := childIDs[i]
		allowed := spec.AllowedPaths
		if len(allowed) == 0 {
			allowed = parent.AllowedPaths
		}
		location, err := o.store.Create(childID, parentID, spec.Prompt, allowed, spec.Model, nil)
		if err != nil {
			o.forks.Delete(parentID)
			return nil, fmt.Errorf("spawn: create child document: %w", err)
		}
		rec := &registry.AgentRecord{
			ID:               childID,
			ParentID:         parentID,
			ChildIDs:         map[string]struct{}{},
			Name:             "Sub-agent",
			DocumentLocation: location,
			WindowOpen:       true,
			Running:          false,
			TaskFinished:     false,
			AllowedPaths:     allowed,
			Model:            spec.Model,
			InitialPrompt:    spec.Prompt,
		}
		o.reg.Upsert(rec)
		o.reg.AddChild(parentID, childID)

		_ = o.store.UpdateMetadata(parent.DocumentLocation, docstore.Patch{ChildrenList: childOrderIDs(parent)})

		if o.host != nil {
			_ = o.host.OpenDocument(location, true)
		}
	}

	return session, nil
}

func childOrderIDs(parent *registry.AgentRecord) []string {
	out := make([]string, 0, len(parent.ChildIDs))
	for id := range parent.ChildIDs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// hydrateTree implements spec.md §4.9: breadth-first load of every agent
// reachable from startID via parentId links and embedded children lists,
// capped by a visited set, repairing dangling links as it goes.
func (o *Orchestrator) hydrateTree(startID string) {
	visited := map[string]struct{}{}
	queue := []string{startID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, seen := visited[id]; seen {
			continue
		}
		visited[id] = struct{}{}

		rec := o.reg.Get(id)
		if rec == nil {
			continue
		}

		if rec.ParentID != "" {
			if _, seen := visited[rec.ParentID]; !seen {
				if !o.ensureLoaded(rec.ParentID, rec) {
					// dangling parent link: clear and persist.
					o.reg.SetParent(id, "")
					if rec.DocumentLocation != "" {
						empty := ""
						_ = o.store.UpdateMetadata(rec.DocumentLocation, docstore.Patch{ParentID: &empty})
					}
				} else {
					queue = append(queue, rec.ParentID)
				}
			}
		}

		for childID := range rec.ChildIDs {
			if _, seen := visited[childID]; seen {
				continue
			}
			if !o.ensureLoadedChild(childID) {
				// missing child: remove from parent's children list and persist.
				o.reg.RemoveChild(id, childID)
				if rec.DocumentLocation != "" {
					_ = o.store.UpdateMetadata(rec.DocumentLocation, docstore.Patch{ChildrenList: childOrderIDs(rec)})
				}
				continue
			}
			queue = append(queue, childID)
		}
	}
}

// ensureLoaded loads ancestorID's document into the registry if not
// already present, reporting false if the document cannot be read (a
// dangling link).
func (o *Orchestrator) ensureLoaded(ancestorID string, _ *registry.AgentRecord) bool {
	if existing := o.reg.Get(ancestorID); existing != nil {
		return true
	}
	return o.loadByID(ancestorID)
}

func (o *Orchestrator) ensureLoadedChild(childID string) bool {
	if existing := o.reg.Get(childID); existing != nil {
		return true
	}
	return o.loadByID(childID)
}

// loadByID is a best-effort helper: in this repository ids map to document
// locations 1:1 via docstore's convention, so we can reconstruct the
// location without a separate id->location index on disk.
func (o *Orchestrator) loadByID(id string) bool {
	rec := o.reg.Get(id)
	var location string
	if rec != nil && rec.DocumentLocation != "" {
		location = rec.DocumentLocation
	} else {
		location = o.store.LocationForID(id)
	}
	doc, err := o.store.Load(location)
	if err != nil {
		return false
	}
	loaded := &registry.AgentRecord{
		ID:               id,
		ParentID:         doc.Metadata.ParentID,
		ChildIDs:         map[string]struct{}{},
		Name:             doc.Metadata.Name,
		DocumentLocation: location,
		TaskFinished:     doc.Metadata.TaskFinished,
		AllowedPaths:     doc.Metadata.AllowedPaths,
		Model:            doc.Metadata.Model,
	}
	for _, c := range doc.Metadata.ChildrenList {
		loaded.ChildIDs[c] = struct{}{}
	}
	o.reg.Upsert(loaded)
	return true
}
