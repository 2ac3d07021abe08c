// Package sidebar implements the Sidebar Projection (C12): a read-only
// view of the Agent Registry (C1), Fork Session Manager (C2), and Approval
// Gate (C5) shaped for a tree display, per SPEC_FULL.md §4 and spec.md §2.
package sidebar

import (
	"sort"

	"github.com/agentworkbench/workbench/internal/approval"
	"github.com/agentworkbench/workbench/internal/forksession"
	"github.com/agentworkbench/workbench/internal/ids"
	"github.com/agentworkbench/workbench/internal/registry"
)

// Node is one row of the tree display.
type Node struct {
	ID           string
	ShortID      string
	Name         string
	Running      bool
	TaskFinished bool
	WindowOpen   bool
	Waiting      bool // true while an open fork session is awaiting this agent's children
	Children     []*Node
}

// PendingApproval is one row of the approvals list.
type PendingApproval struct {
	ID      string
	Action  string
	Target  string
	Details string
}

// Projection is the full snapshot a sidebar UI paints from.
type Projection struct {
	Roots             []*Node
	PendingApprovals  []PendingApproval
	AutoApproveActive bool
}

// Source bundles the read-only views the projection is built from.
type Source struct {
	Registry *registry.Registry
	Forks    *forksession.Manager
	Gate     *approval.Gate
}

// Build assembles a Projection from the current state of reg, forks, and
// gate. It never mutates any of its inputs.
func Build(src Source) Projection {
	all := src.Registry.All()

	byID := make(map[string]*Node, len(all))
	for _, rec := range all {
		byID[rec.ID] = &Node{
			ID:           rec.ID,
			ShortID:      ids.Short(rec.ID),
			Name:         rec.Name,
			Running:      rec.Running,
			TaskFinished: rec.TaskFinished,
			WindowOpen:   rec.WindowOpen,
			Waiting:      src.Forks.Has(rec.ID),
		}
	}

	var roots []*Node
	for _, rec := range all {
		node := byID[rec.ID]
		if rec.ParentID == "" {
			roots = append(roots, node)
			continue
		}
		parent, ok := byID[rec.ParentID]
		if !ok {
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}

	sortTree(roots)

	pending := src.Gate.Pending()
	approvals := make([]PendingApproval, 0, len(pending))
	for _, p := range pending {
		approvals = append(approvals, PendingApproval{ID: p.ID, Action: p.Action, Target: p.Target, Details: p.Details})
	}
	sort.Slice(approvals, func(i, j int) bool { return approvals[i].ID < approvals[j].ID })

	return Projection{Roots: roots, PendingApprovals: approvals, AutoApproveActive: src.Gate.AutoApproveEnabled()}
}

func sortTree(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	for _, n := range nodes {
		sortTree(n.Children)
	}
}
