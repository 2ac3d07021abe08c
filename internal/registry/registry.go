// Package registry implements the Agent Registry (C1): a single-process
// mapping from id to AgentRecord, with lookup by id and by document
// location, enumeration, and deletion. Persistence is delegated entirely to
// internal/docstore; this package is pure in-memory.
package registry

import "sync"

// AgentRecord is one known agent (spec.md §3). ID and AllowedPaths are
// fixed after creation; ParentID changes only when the orchestrator (C9)
// clears it to orphan a child or repair a dangling link. The mutable fields
// are changed through the orchestrator, never directly by a runner.
type AgentRecord struct {
	ID               string
	ParentID         string // empty means root
	ChildIDs         map[string]struct{}
	Name             string
	DocumentLocation string
	WindowOpen       bool
	Running          bool
	TaskFinished     bool
	AllowedPaths     []string
	Model            string
	InitialPrompt    string
}

// IsRoot reports whether the record has no parent.
func (r *AgentRecord) IsRoot() bool { return r.ParentID == "" }

// Clone returns a deep-enough copy for safe external reading (callers must
// not mutate ChildIDs/AllowedPaths in place afterward).
func (r *AgentRecord) Clone() *AgentRecord {
	cp := *r
	cp.ChildIDs = make(map[string]struct{}, len(r.ChildIDs))
	for id := range r.ChildIDs {
		cp.ChildIDs[id] = struct{}{}
	}
	cp.AllowedPaths = append([]string(nil), r.AllowedPaths...)
	return &cp
}

// Registry is the in-memory id→AgentRecord directory.
type Registry struct {
	mu         sync.Mutex
	byID       map[string]*AgentRecord
	byLocation map[string]string // documentLocation -> id
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		byID:       make(map[string]*AgentRecord),
		byLocation: make(map[string]string),
	}
}

// Upsert inserts rec or replaces the existing record for rec.ID, keeping
// the location index in sync.
func (g *Registry) Upsert(rec *AgentRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.byID[rec.ID]; ok && existing.DocumentLocation != rec.DocumentLocation {
		delete(g.byLocation, existing.DocumentLocation)
	}
	g.byID[rec.ID] = rec
	if rec.DocumentLocation != "" {
		g.byLocation[rec.DocumentLocation] = rec.ID
	}
}

// Get returns the record for id, or nil if unknown.
func (g *Registry) Get(id string) *AgentRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.byID[id]
}

// GetByLocation resolves a document location to its record, or nil.
func (g *Registry) GetByLocation(location string) *AgentRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.byLocation[location]
	if !ok {
		return nil
	}
	return g.byID[id]
}

// Delete removes id's record entirely (invariant 1: "deletion removes the
// record entirely").
func (g *Registry) Delete(id string) *AgentRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.byID[id]
	if !ok {
		return nil
	}
	delete(g.byID, id)
	delete(g.byLocation, rec.DocumentLocation)
	return rec
}

// All returns every known record, for tree hydration and sidebar
// projection.
func (g *Registry) All() []*AgentRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*AgentRecord, 0, len(g.byID))
	for _, r := range g.byID {
		out = append(out, r)
	}
	return out
}

// AddChild registers childID under parentID's ChildIDs, both in this
// in-memory record (the document mirror is the orchestrator's
// responsibility).
func (g *Registry) AddChild(parentID, childID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.byID[parentID]
	if !ok {
		return
	}
	if p.ChildIDs == nil {
		p.ChildIDs = make(map[string]struct{})
	}
	p.ChildIDs[childID] = struct{}{}
}

// RemoveChild unregisters childID from parentID's ChildIDs.
func (g *Registry) RemoveChild(parentID, childID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.byID[parentID]
	if !ok {
		return
	}
	delete(p.ChildIDs, childID)
}

// SetWindowOpen sets the WindowOpen flag for id if known.
func (g *Registry) SetWindowOpen(id string, open bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.byID[id]; ok {
		r.WindowOpen = open
	}
}

// SetRunning sets the Running flag for id if known.
func (g *Registry) SetRunning(id string, running bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.byID[id]; ok {
		r.Running = running
	}
}

// SetTaskFinished sets TaskFinished, enforcing invariant 5 (monotonic:
// never reverts to false).
func (g *Registry) SetTaskFinished(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.byID[id]; ok {
		r.TaskFinished = true
	}
}

// SetParent updates parentID, used by tree hydration's dangling-link
// repair (spec.md §4.9) to clear an orphaned child's ParentID.
func (g *Registry) SetParent(id, parentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.byID[id]; ok {
		r.ParentID = parentID
	}
}

// Rename updates Name, used by the nameChanged lifecycle event.
func (g *Registry) Rename(id, name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.byID[id]; ok {
		r.Name = name
	}
}
