// Package forksession implements the Fork Session Manager (C2): it tracks
// outstanding `fork` calls, the children a parent is waiting on, their
// partial results, and completion criteria, resolving a single-shot
// promise exactly once per session. The promise shape is the teacher's own
// "ready channel + mutex-guarded result" idiom
// (runtime/agent/engine/inmem/engine.go's future/handle types), adapted
// here to a parent/children join instead of a workflow/activity join.
package forksession

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/agentworkbench/workbench/internal/ids"
	"github.com/agentworkbench/workbench/internal/telemetry"
)

// ErrCancelled is returned by Await when the session is cancelled while
// pending (spec.md §4.3 "Cancellation", §7 item 8).
var ErrCancelled = errors.New("fork session cancelled")

// reportDelimiter separates report sections (spec.md §4.4).
const reportDelimiter = "\n\n"

// fallbackReport is emitted when every section is empty (spec.md §4.4).
const fallbackReport = "All sub-agents were deleted or produced no output."

// Session is one pending fork (spec.md §3). ContextSummary is accepted but
// otherwise unconsumed per the spec's own open question (DESIGN.md
// "Open Question decisions", item 2).
type Session struct {
	ParentID         string
	ContextSummary   string
	ExpectedChildren map[string]struct{}
	ChildOrder       []string // registration order, for deterministic report ordering
	Results          map[string]string
	Deleted          map[string]struct{}

	mu       sync.Mutex
	done     chan struct{}
	resolved bool
	report   string
	err      error
}

// Manager owns every currently pending Session, keyed by parent id.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	tel      telemetry.Handle
}

// New constructs an empty Manager.
func New(tel telemetry.Handle) *Manager {
	return &Manager{sessions: make(map[string]*Session), tel: tel}
}

// Create opens a new session under parentID. It is an error to call Create
// while a session already exists for parentID (spec.md §4.3 invariant: "A
// parent with an active session cannot fork again until it resumes").
func (m *Manager) Create(parentID, contextSummary string, childIDs []string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[parentID]; exists {
		return nil, fmt.Errorf("fork session already active for parent %s", parentID)
	}
	s := &Session{
		ParentID:         parentID,
		ContextSummary:   contextSummary,
		ExpectedChildren: make(map[string]struct{}, len(childIDs)),
		ChildOrder:       append([]string(nil), childIDs...),
		Results:          make(map[string]string),
		Deleted:          make(map[string]struct{}),
		done:             make(chan struct{}),
	}
	for _, id := range childIDs {
		s.ExpectedChildren[id] = struct{}{}
	}
	m.sessions[parentID] = s
	m.tel.Metrics.RecordGauge("agent.fork_sessions_active", float64(len(m.sessions)))
	return s, nil
}

// Get returns the session for parentID, or nil.
func (m *Manager) Get(parentID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[parentID]
}

// Has reports whether parentID has an active session.
func (m *Manager) Has(parentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[parentID]
	return ok
}

// Delete removes the session for parentID without resolving it.
func (m *Manager) Delete(parentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, parentID)
	m.tel.Metrics.RecordGauge("agent.fork_sessions_active", float64(len(m.sessions)))
}

// nameLookup resolves a child id to its display name for the report
// format (ok is false when the child is unknown); callers supply this from
// the agent registry so this package stays independent of it.
type nameLookup func(childID string) (name string, ok bool)

// RecordResult stores childID's final report text under parentID's session.
// It is a no-op if the session does not exist or the child is not expected
// (spec.md §4.4). If this completes the session, its promise is fulfilled
// exactly once with the report built using names.
func (m *Manager) RecordResult(parentID, childID, text string, names nameLookup) {
	m.mu.Lock()
	s, ok := m.sessions[parentID]
	m.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	if _, expected := s.ExpectedChildren[childID]; !expected {
		s.mu.Unlock()
		return
	}
	s.Results[childID] = text
	complete := isComplete(s)
	s.mu.Unlock()
	if complete {
		m.resolve(s, names)
	}
}

// MarkDeleted records that childID's file was removed before it reported.
// Same no-op rules as RecordResult.
func (m *Manager) MarkDeleted(parentID, childID string, names nameLookup) {
	m.mu.Lock()
	s, ok := m.sessions[parentID]
	m.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	if _, expected := s.ExpectedChildren[childID]; !expected {
		s.mu.Unlock()
		return
	}
	s.Deleted[childID] = struct{}{}
	complete := isComplete(s)
	s.mu.Unlock()
	if complete {
		m.resolve(s, names)
	}
}

func isComplete(s *Session) bool {
	for id := range s.ExpectedChildren {
		_, gotResult := s.Results[id]
		_, gotDeleted := s.Deleted[id]
		if !gotResult && !gotDeleted {
			return false
		}
	}
	return true
}

// IsComplete reports whether every expected child has reported or been
// deleted.
func (m *Manager) IsComplete(parentID string) bool {
	s := m.Get(parentID)
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return isComplete(s)
}

// resolve builds the report and fulfils the session's promise exactly once,
// then removes the session from the manager.
func (m *Manager) resolve(s *Session, names nameLookup) {
	s.mu.Lock()
	if s.resolved {
		s.mu.Unlock()
		return
	}
	s.resolved = true
	s.report = buildReport(s, names)
	close(s.done)
	s.mu.Unlock()
	m.Delete(s.ParentID)
}

// Cancel rejects the session for parentID with reason (ErrCancelled when
// reason is nil), if it exists and has not already resolved. Children are deliberately not force-closed
// (spec.md §4.3, §9 open question 3).
func (m *Manager) Cancel(parentID string, reason error) {
	s := m.Get(parentID)
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.resolved {
		s.mu.Unlock()
		return
	}
	s.resolved = true
	if reason == nil {
		reason = ErrCancelled
	}
	s.err = reason
	close(s.done)
	s.mu.Unlock()
	m.Delete(parentID)
}

// ClearAll cancels every pending session, used on full shutdown.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()
	for _, s := range all {
		m.Cancel(s.ParentID, ErrCancelled)
	}
}

// Await blocks the calling Runner turn until s resolves or ctx is
// cancelled, returning the final report or an error (spec.md §4.3
// cancellation semantics). It is the "promise" half of "a fork request
// suspends the parent C7" (spec.md §2).
func (s *Session) Await(ctx context.Context) (string, error) {
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.report, s.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// buildReport implements spec.md §4.4's report format: concatenation of
// sections in the session's child-registration order, joined by the fixed
// delimiter, falling back to a fixed string when every section is empty.
func buildReport(s *Session, names nameLookup) string {
	var sections []string
	anyContent := false
	for _, childID := range s.ChildOrder {
		if text, ok := s.Results[childID]; ok {
			if strings.TrimSpace(text) != "" {
				anyContent = true
			}
			name := childID
			if names != nil {
				if n, ok := names(childID); ok && n != "" {
					name = n
				}
			}
			sections = append(sections, fmt.Sprintf("### Sub-agent '%s' Finished:\n%s", name, text))
			continue
		}
		if _, ok := s.Deleted[childID]; ok {
			// A deletion never counts as content on its own: a session
			// where every child was deleted (or reported empty text)
			// falls back below rather than rendering only "was deleted"
			// notices.
			sections = append(sections, fmt.Sprintf("### Sub-agent %s was deleted (Cancelled).", ids.Short(childID)))
		}
	}
	if !anyContent {
		return fallbackReport
	}
	return strings.Join(sections, reportDelimiter)
}

// sortedIDs returns the ids of a set in sorted order, giving a
// deterministic iteration order over a session's expected set. It is
// unexported, so only this package can use it.
func sortedIDs(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
