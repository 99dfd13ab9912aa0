// Package chain tracks escalation chains: the sequence of nested
// install-and-remediate attempts spawned when an operator picks a
// "install a prerequisite then re-run" remediation option. It holds
// its state entirely in memory and garbage-collects
// chains that have gone quiet.
package chain

import (
	"sync"
	"time"

	"github.com/cyberpunk042/devops-control-plane-sub010/internal/execengine"
	"github.com/google/uuid"
)

// InactivityTimeout is how long a chain may sit untouched before the
// background sweep reclaims it.
const InactivityTimeout = time.Hour

// NodeStatus is the state of one node in a chain graph.
type NodeStatus string

const (
	NodeFailed    NodeStatus = "failed"
	NodeSucceeded NodeStatus = "succeeded"
	NodePending   NodeStatus = "pending"
)

// node is one (tool_id, step_label) attempt within a chain.
type node struct {
	toolID    string
	failureID string
	label     string
	status    NodeStatus
	depth     int
}

// chainState is the full graph for one escalation chain, plus the
// bookkeeping needed for loop detection and inactivity GC.
type chainState struct {
	id           string
	originalGoal string
	nodes        []node
	seenPairs    map[string]bool // "tool_id\x00failure_id" already visited in this chain
	loopDetected bool
	lastTouched  time.Time
}

// defaultGCInterval is the sweep cadence used when NewTracker is called
// with a non-positive interval.
const defaultGCInterval = 5 * time.Minute

// Tracker is the process-wide, in-memory Escalation Chain Tracker.
type Tracker struct {
	mu     sync.Mutex
	chains map[string]*chainState

	gcInterval time.Duration
	stopOnce   sync.Once
	stopCh     chan struct{}
}

// NewTracker constructs a Tracker and starts its background GC sweep at
// gcInterval (a non-positive value falls back to defaultGCInterval; the
// control plane wires its own settings' chain_gc_interval here).
func NewTracker(gcInterval time.Duration) *Tracker {
	if gcInterval <= 0 {
		gcInterval = defaultGCInterval
	}
	t := &Tracker{
		chains:     make(map[string]*chainState),
		gcInterval: gcInterval,
		stopCh:     make(chan struct{}),
	}
	go t.gcLoop()
	return t
}

// Close stops the background GC sweep. Safe to call more than once.
func (t *Tracker) Close() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

func (t *Tracker) gcLoop() {
	ticker := time.NewTicker(t.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.sweep(time.Now())
		case <-t.stopCh:
			return
		}
	}
}

func (t *Tracker) sweep(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, c := range t.chains {
		if now.Sub(c.lastTouched) >= InactivityTimeout {
			delete(t.chains, id)
		}
	}
}

// Start begins a new chain for an original install goal and returns its
// ID. Call this once, at depth 0, when the first plan for a tool is
// about to execute.
func (t *Tracker) Start(originalGoal string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := uuid.New().String()
	t.chains[id] = &chainState{
		id:           id,
		originalGoal: originalGoal,
		seenPairs:    make(map[string]bool),
		lastTouched:  time.Now(),
	}
	return id
}

// RecordAttempt appends a node to the chain and reports whether doing
// so would create a loop: the same (tool_id, failure_id) pair attempted
// twice within the same chain. The node is still recorded
// even when a loop is detected, so breadcrumbs stay accurate; the
// caller is responsible for degrading remediation options once loop
// is true.
func (t *Tracker) RecordAttempt(chainID, toolID, failureID, label string, status NodeStatus) (depth int, loop bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.chains[chainID]
	if !ok {
		return 0, false
	}
	c.lastTouched = time.Now()

	key := toolID + "\x00" + failureID
	if c.seenPairs[key] {
		c.loopDetected = true
	}
	c.seenPairs[key] = true

	depth = len(c.nodes)
	c.nodes = append(c.nodes, node{toolID: toolID, failureID: failureID, label: label, status: status, depth: depth})
	return depth, c.loopDetected
}

// End terminates a chain, either because the original goal succeeded,
// the operator cancelled at any level, or the caller is reacting to a
// timeout directly. Ending is just removal; a chain that is merely
// quiet is instead reclaimed by the GC sweep.
func (t *Tracker) End(chainID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.chains, chainID)
}

// Summary renders the current breadcrumb trail for a chain as the
// execengine.ChainSummary attached to a RemediationResponse. ok is
// false if the chain is unknown (already ended or GC'd).
func (t *Tracker) Summary(chainID string) (execengine.ChainSummary, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.chains[chainID]
	if !ok {
		return execengine.ChainSummary{}, false
	}

	breadcrumbs := make([]execengine.Breadcrumb, 0, len(c.nodes))
	for _, n := range c.nodes {
		breadcrumbs = append(breadcrumbs, execengine.Breadcrumb{
			Label:  n.label,
			Depth:  n.depth,
			Status: string(n.status),
		})
	}

	return execengine.ChainSummary{
		ChainID:      c.id,
		Depth:        len(c.nodes),
		Breadcrumbs:  breadcrumbs,
		OriginalGoal: c.originalGoal,
		LoopDetected: c.loopDetected,
	}, true
}

// LoopDetected reports whether a chain has already looped. Callers use
// this to decide whether to degrade every remediation option to
// impossible except manual/cancel.
func (t *Tracker) LoopDetected(chainID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.chains[chainID]
	return ok && c.loopDetected
}
