package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentworkbench/workbench/internal/telemetry"
)

func TestRequestApprovalBlocksUntilResolved(t *testing.T) {
	g := NewGate(false, 50*time.Millisecond, telemetry.Noop())

	type result struct {
		approved bool
		err      error
	}
	resultCh := make(chan result, 1)
	go func() {
		approved, err := g.RequestApproval(context.Background(), "write file", "/a.txt", "")
		resultCh <- result{approved, err}
	}()

	require.Eventually(t, func() bool { return len(g.Pending()) == 1 }, time.Second, time.Millisecond)

	pending := g.Pending()
	require.Len(t, pending, 1)
	require.True(t, g.Resolve(pending[0].ID, true))

	select {
	case r := <-resultCh:
		require.NoError(t, r.err)
		require.True(t, r.approved)
	case <-time.After(time.Second):
		t.Fatal("RequestApproval did not return")
	}
}

func TestAutoApproveAllSkipsPending(t *testing.T) {
	g := NewGate(true, 50*time.Millisecond, telemetry.Noop())
	approved, err := g.RequestApproval(context.Background(), "write file", "/a.txt", "")
	require.NoError(t, err)
	require.True(t, approved)
}

func TestAutoApproveEnabledReflectsToggle(t *testing.T) {
	g := NewGate(false, time.Second, telemetry.Noop())
	require.False(t, g.AutoApproveEnabled())
	g.SetAutoApprove(true)
	require.True(t, g.AutoApproveEnabled())
}

func TestRuleParsingScopeAutoApprovesAndNests(t *testing.T) {
	g := NewGate(false, 50*time.Millisecond, telemetry.Noop())

	g.EnterRuleParsing()
	g.EnterRuleParsing()

	approved, err := g.RequestApproval(context.Background(), "read ref", "tool:list_dir", "")
	require.NoError(t, err)
	require.True(t, approved)
	// The auto-approved request is recorded as approved (not left pending)
	// until the settle delay evicts it.
	recorded := g.Pending()
	require.Len(t, recorded, 1)
	require.True(t, recorded[0].AutoApproved)
	require.Equal(t, StatusApproved, recorded[0].Status)

	g.ExitRuleParsing()
	// Still inside the outer scope: must still auto-approve.
	approved, err = g.RequestApproval(context.Background(), "read ref", "tool:list_dir", "")
	require.NoError(t, err)
	require.True(t, approved)

	g.ExitRuleParsing()
	// Outermost scope exited: now must block until resolved.
	resultCh := make(chan bool, 1)
	go func() {
		a, _ := g.RequestApproval(context.Background(), "write file", "/b.txt", "")
		resultCh <- a
	}()
	require.Eventually(t, func() bool { return len(g.Pending()) == 1 }, time.Second, time.Millisecond)
	pending := g.Pending()
	require.True(t, g.Resolve(pending[0].ID, false))
	require.False(t, <-resultCh)
}

func TestExitRuleParsingWithoutEnterIsNoOp(t *testing.T) {
	g := NewGate(false, time.Second, telemetry.Noop())
	g.ExitRuleParsing()
	g.ExitRuleParsing()
	require.False(t, g.inRuleParsingScope())
}

func TestAbortDuringApprovalResolvesAsRejectedAndPropagatesCancellation(t *testing.T) {
	g := NewGate(false, 50*time.Millisecond, telemetry.Noop())
	ctx, cancel := context.WithCancel(context.Background())

	resultCh := make(chan struct {
		approved bool
		err      error
	}, 1)
	go func() {
		approved, err := g.RequestApproval(ctx, "delete", "/a.txt", "")
		resultCh <- struct {
			approved bool
			err      error
		}{approved, err}
	}()

	require.Eventually(t, func() bool { return len(g.Pending()) == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case r := <-resultCh:
		require.Error(t, r.err)
		require.False(t, r.approved)
	case <-time.After(time.Second):
		t.Fatal("RequestApproval did not return after cancellation")
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	g := NewGate(false, 50*time.Millisecond, telemetry.Noop())
	resultCh := make(chan bool, 1)
	go func() {
		a, _ := g.RequestApproval(context.Background(), "write file", "/a.txt", "")
		resultCh <- a
	}()

	require.Eventually(t, func() bool { return len(g.Pending()) == 1 }, time.Second, time.Millisecond)
	pending := g.Pending()
	id := pending[0].ID

	require.True(t, g.Resolve(id, true))
	<-resultCh
	// Second resolution (e.g. a race between two surfaces) must be a no-op.
	require.False(t, g.Resolve(id, false))
}

func TestResolveUnknownIDReturnsFalse(t *testing.T) {
	g := NewGate(false, time.Second, telemetry.Noop())
	require.False(t, g.Resolve("does-not-exist", true))
}

func TestSettleAndEvictRemovesAfterDelay(t *testing.T) {
	g := NewGate(false, 20*time.Millisecond, telemetry.Noop())
	resultCh := make(chan bool, 1)
	go func() {
		a, _ := g.RequestApproval(context.Background(), "write file", "/a.txt", "")
		resultCh <- a
	}()

	require.Eventually(t, func() bool { return len(g.Pending()) == 1 }, time.Second, time.Millisecond)
	pending := g.Pending()
	g.Resolve(pending[0].ID, true)
	<-resultCh

	// Immediately after resolution the request is still visible (settling).
	require.Len(t, g.Pending(), 1)
	require.Eventually(t, func() bool { return len(g.Pending()) == 0 }, time.Second, time.Millisecond)
}

func TestOnChangeFiresOnRequestAndResolve(t *testing.T) {
	g := NewGate(false, 20*time.Millisecond, telemetry.Noop())
	events := make(chan struct{}, 10)
	g.OnChange(func() { events <- struct{}{} })

	go func() { _, _ = g.RequestApproval(context.Background(), "write file", "/a.txt", "") }()

	require.Eventually(t, func() bool { return len(events) >= 1 }, time.Second, time.Millisecond)
	pending := g.Pending()
	require.Len(t, pending, 1)
	g.Resolve(pending[0].ID, true)

	require.Eventually(t, func() bool { return len(events) >= 2 }, time.Second, time.Millisecond)
}
