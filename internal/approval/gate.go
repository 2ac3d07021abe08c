// Package approval implements the Approval Gate (C5): a human-in-the-loop
// mechanism that serializes and records every side-effectful tool request
// awaiting explicit user consent, with auto-approve modes and a
// rule-parsing scope that auto-approves trusted context-assembler tool
// invocations.
package approval

import (
	"context"
	"sync"
	"time"

	"github.com/agentworkbench/workbench/internal/ids"
	"github.com/agentworkbench/workbench/internal/telemetry"
)

// Status is the lifecycle state of a Request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Request is one pending or recently-resolved human decision (spec.md §3).
type Request struct {
	ID           string
	Action       string
	Target       string
	Details      string
	Timestamp    time.Time
	Status       Status
	AutoApproved bool

	mu       sync.Mutex
	resolved bool
	done     chan struct{}
	result   bool
}

func newRequest(action, target, details string) *Request {
	return &Request{
		ID:        ids.New(),
		Action:    action,
		Target:    target,
		Details:   details,
		Timestamp: time.Now(),
		Status:    StatusPending,
		done:      make(chan struct{}),
	}
}

// resolve flips status to approved/rejected exactly once; subsequent calls
// are no-ops, matching spec.md §9 ("any surface may resolve it, subsequent
// resolutions are no-ops").
func (r *Request) resolve(approved bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return false
	}
	r.resolved = true
	r.result = approved
	if approved {
		r.Status = StatusApproved
	} else {
		r.Status = StatusRejected
	}
	close(r.done)
	return true
}

// Gate tracks pending approval requests and the rule-parsing auto-approve
// scope depth.
type Gate struct {
	mu              sync.Mutex
	autoApproveAll  bool
	ruleParseDepth  int
	pending         map[string]*Request
	settleDelay     time.Duration
	onChange        []func()
	tel             telemetry.Handle
}

// NewGate constructs a Gate. settleDelay is the interval a resolved request
// remains visible before eviction (spec.md §4.5: "~1s").
func NewGate(autoApproveAll bool, settleDelay time.Duration, tel telemetry.Handle) *Gate {
	if settleDelay <= 0 {
		settleDelay = time.Second
	}
	return &Gate{
		autoApproveAll: autoApproveAll,
		pending:        make(map[string]*Request),
		settleDelay:    settleDelay,
		tel:            tel,
	}
}

// SetAutoApprove toggles the global auto-approve mode (the "toggle-auto-approve"
// command of spec.md §6).
func (g *Gate) SetAutoApprove(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.autoApproveAll = enabled
}

// AutoApproveEnabled reports the current global auto-approve mode, for the
// sidebar projection (C12).
func (g *Gate) AutoApproveEnabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.autoApproveAll
}

// OnChange registers a callback invoked whenever a request is created,
// resolved, or evicted, so sidebar/notification surfaces can refresh.
func (g *Gate) OnChange(fn func()) {
	g.mu.Lock()
	g.onChange = append(g.onChange, fn)
	g.mu.Unlock()
}

func (g *Gate) fireChange() {
	g.mu.Lock()
	cbs := append([]func(){}, g.onChange...)
	g.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

// EnterRuleParsing increments the rule-parsing scope depth. Scopes nest;
// auto-approval lasts until the outermost scope exits (spec.md §4.5).
func (g *Gate) EnterRuleParsing() {
	g.mu.Lock()
	g.ruleParseDepth++
	g.mu.Unlock()
}

// ExitRuleParsing decrements the rule-parsing scope depth.
func (g *Gate) ExitRuleParsing() {
	g.mu.Lock()
	if g.ruleParseDepth > 0 {
		g.ruleParseDepth--
	}
	g.mu.Unlock()
}

func (g *Gate) inRuleParsingScope() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ruleParseDepth > 0
}

// RequestApproval implements the Gate's one entry point (spec.md §4.5):
// either resolves immediately (auto-approve or rule-parsing scope) or
// creates a pending Request and blocks until it is resolved or ctx is
// cancelled, in which case it behaves as a rejection (spec.md §8: "Abort
// during approval resolves the approval as rejected and propagates
// cancellation").
func (g *Gate) RequestApproval(ctx context.Context, action, target, details string) (bool, error) {
	g.mu.Lock()
	autoApprove := g.autoApproveAll
	g.mu.Unlock()

	if autoApprove || g.inRuleParsingScope() {
		req := newRequest(action, target, details)
		req.AutoApproved = true
		req.Status = StatusApproved
		req.resolved = true
		close(req.done)
		g.tel.Metrics.IncCounter("agent.approval_requests_total", 1, "decision", "auto_approved")
		g.trackAndSettle(req)
		return true, nil
	}

	req := newRequest(action, target, details)
	g.mu.Lock()
	g.pending[req.ID] = req
	g.mu.Unlock()
	g.fireChange()

	select {
	case <-req.done:
		decision := "rejected"
		if req.result {
			decision = "approved"
		}
		g.tel.Metrics.IncCounter("agent.approval_requests_total", 1, "decision", decision)
		g.settleAndEvict(req)
		return req.result, nil
	case <-ctx.Done():
		req.resolve(false)
		g.tel.Metrics.IncCounter("agent.approval_requests_total", 1, "decision", "cancelled")
		g.settleAndEvict(req)
		return false, ctx.Err()
	}
}

func (g *Gate) trackAndSettle(req *Request) {
	g.mu.Lock()
	g.pending[req.ID] = req
	g.mu.Unlock()
	g.settleAndEvict(req)
}

// settleAndEvict removes req after the settle delay so the UI can briefly
// show its final state before it disappears (spec.md §4.5, §5).
func (g *Gate) settleAndEvict(req *Request) {
	go func() {
		time.Sleep(g.settleDelay)
		g.mu.Lock()
		delete(g.pending, req.ID)
		g.mu.Unlock()
		g.fireChange()
	}()
	g.fireChange()
}

// Resolve is how the sidebar, a notification, or the approve-request/
// reject-request commands settle a pending Request. It returns false if the
// request does not exist or was already resolved.
func (g *Gate) Resolve(id string, approved bool) bool {
	g.mu.Lock()
	req, ok := g.pending[id]
	g.mu.Unlock()
	if !ok {
		return false
	}
	return req.resolve(approved)
}

// Pending returns a snapshot of every tracked request, for the sidebar
// projection (C12): requests still awaiting a decision plus resolved or
// auto-approved ones that have not yet been evicted after the settle delay.
func (g *Gate) Pending() []*Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Request, 0, len(g.pending))
	for _, r := range g.pending {
		out = append(out, r)
	}
	return out
}
