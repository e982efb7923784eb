// Package graph provides read-side traversal over the self-referential
// recipient table: children, bounded descendant trees, ancestor chains, cycle
// checks, and depth.
//
// Validation prevents cycles from ever being written, but traversal still
// guards against them at runtime: rows imported outside the validated write
// path may be corrupted, and a corrupted graph must never cause unbounded
// work. Every walk carries a visited set and a hard ceiling.
package graph

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"custodia/internal/recipient"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
)

const (
	// DefaultMaxDepth bounds descendant expansion when the caller supplies no
	// smaller ceiling. It sits above every configured per-type depth cap.
	DefaultMaxDepth = 10

	// maxAncestorHops is the hard ceiling on upward walks. Independent of any
	// caller timeout: it is a correctness mechanism, not a tunable.
	maxAncestorHops = 15
)

// NodeSource is the narrow read surface the engine needs. recipient.Store
// satisfies it.
type NodeSource interface {
	FindByID(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID) (*recipient.Node, error)
	ChildrenOf(ctx context.Context, tenantID id.TenantID, parentID id.NodeID) ([]*recipient.Node, error)
	ListByTypes(ctx context.Context, tenantID id.TenantID, types []recipient.NodeType) ([]*recipient.Node, error)
}

// DescendantLister is an optional NodeSource upgrade: stores that can expand
// the subtree in one set-based query (recursive CTE) implement it and the
// engine delegates. The store-side query must enforce the same depth bound and
// cycle break.
type DescendantLister interface {
	Descendants(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID, maxDepth int) ([]*recipient.Node, []int, error)
}

// TreeEntry is one descendant annotated with its distance from the starting
// node. Direct children sit at depth 1; the starting node is not returned.
type TreeEntry struct {
	Node  *recipient.Node
	Depth int
}

// Engine runs tenant-scoped graph queries. It is read-only and safe for
// concurrent use.
type Engine struct {
	nodes   NodeSource
	log     *slog.Logger
	metrics *Metrics
}

func New(nodes NodeSource, log *slog.Logger, metrics *Metrics) *Engine {
	return &Engine{nodes: nodes, log: log, metrics: metrics}
}

// FindNode loads one node, translating store sentinels into coded errors.
// A node under another tenant is reported as missing.
func (e *Engine) FindNode(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID) (*recipient.Node, error) {
	node, err := e.nodes.FindByID(ctx, tenantID, nodeID)
	if err != nil {
		return nil, translateLookup(err)
	}
	return node, nil
}

// DirectChildren returns the nodes whose parent pointer is nodeID.
func (e *Engine) DirectChildren(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID) ([]*recipient.Node, error) {
	if _, err := e.nodes.FindByID(ctx, tenantID, nodeID); err != nil {
		return nil, translateLookup(err)
	}
	children, err := e.nodes.ChildrenOf(ctx, tenantID, nodeID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list children")
	}
	return children, nil
}

// DescendantTree returns every node reachable downward from nodeID, each
// annotated with its depth. maxDepth <= 0 or > DefaultMaxDepth falls back to
// DefaultMaxDepth. A repeated node ID stops expansion of that branch and is
// reported as a data-quality signal rather than looping.
func (e *Engine) DescendantTree(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID, maxDepth int) ([]TreeEntry, error) {
	if e.metrics != nil {
		defer e.metrics.ObserveTraversal(time.Now())
	}
	if maxDepth <= 0 || maxDepth > DefaultMaxDepth {
		maxDepth = DefaultMaxDepth
	}
	if _, err := e.nodes.FindByID(ctx, tenantID, nodeID); err != nil {
		return nil, translateLookup(err)
	}

	if lister, ok := e.nodes.(DescendantLister); ok {
		nodes, depths, err := lister.Descendants(ctx, tenantID, nodeID, maxDepth)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "descendant tree")
		}
		entries := make([]TreeEntry, len(nodes))
		for i := range nodes {
			entries[i] = TreeEntry{Node: nodes[i], Depth: depths[i]}
		}
		return entries, nil
	}

	// Breadth-first walk with a frontier set. The visited set terminates the
	// walk even if parent pointers form a cycle.
	visited := map[id.NodeID]bool{nodeID: true}
	frontier := []id.NodeID{nodeID}
	var entries []TreeEntry
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []id.NodeID
		for _, parentID := range frontier {
			children, err := e.nodes.ChildrenOf(ctx, tenantID, parentID)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "descendant tree")
			}
			for _, child := range children {
				if visited[child.ID] {
					e.noteCycle(tenantID, child.ID)
					continue
				}
				visited[child.ID] = true
				entries = append(entries, TreeEntry{Node: child, Depth: depth})
				next = append(next, child.ID)
			}
		}
		frontier = next
	}
	return entries, nil
}

// AncestorChain walks upward from nodeID, returning parents in order from
// immediate parent to root. The walk stops at a null parent, at a revisited
// node, or at the hop ceiling; the chain collected so far is returned in all
// three cases.
func (e *Engine) AncestorChain(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID) ([]*recipient.Node, error) {
	chain, _, err := e.ancestorWalk(ctx, tenantID, nodeID)
	return chain, err
}

// ancestorWalk reports whether the walk was cut short by a cycle or the hop
// ceiling, which health checks treat as a corruption signal.
func (e *Engine) ancestorWalk(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID) ([]*recipient.Node, bool, error) {
	if e.metrics != nil {
		defer e.metrics.ObserveTraversal(time.Now())
	}
	start, err := e.nodes.FindByID(ctx, tenantID, nodeID)
	if err != nil {
		return nil, false, translateLookup(err)
	}

	seen := map[id.NodeID]bool{start.ID: true}
	var chain []*recipient.Node
	current := start
	for hops := 0; current.ParentID != nil; hops++ {
		if hops >= maxAncestorHops {
			e.noteCycle(tenantID, current.ID)
			return chain, true, nil
		}
		parent, err := e.nodes.FindByID(ctx, tenantID, *current.ParentID)
		if err != nil {
			if isNotFound(err) {
				// Dangling parent pointer; the chain simply ends here.
				return chain, false, nil
			}
			return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "ancestor chain")
		}
		if seen[parent.ID] {
			e.noteCycle(tenantID, parent.ID)
			return chain, true, nil
		}
		seen[parent.ID] = true
		chain = append(chain, parent)
		current = parent
	}
	return chain, false, nil
}

// CheckCircularReference reports whether assigning proposedParentID as the
// parent of nodeID would close a cycle: true iff nodeID already appears in the
// proposed parent's ancestor chain (or is the proposed parent itself).
func (e *Engine) CheckCircularReference(ctx context.Context, tenantID id.TenantID, nodeID, proposedParentID id.NodeID) (bool, error) {
	if nodeID == proposedParentID {
		return true, nil
	}
	chain, _, err := e.ancestorWalk(ctx, tenantID, proposedParentID)
	if err != nil {
		return false, err
	}
	for _, ancestor := range chain {
		if ancestor.ID == nodeID {
			return true, nil
		}
	}
	return false, nil
}

// Depth returns the node's distance from its root: the ancestor chain length.
func (e *Engine) Depth(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID) (int, error) {
	chain, _, err := e.ancestorWalk(ctx, tenantID, nodeID)
	if err != nil {
		return 0, err
	}
	return len(chain), nil
}

// FindOrphaned returns nodes of parent-requiring types that have no parent.
// Data-quality query; it never blocks writes.
func (e *Engine) FindOrphaned(ctx context.Context, tenantID id.TenantID, types []recipient.NodeType) ([]*recipient.Node, error) {
	if len(types) == 0 {
		return nil, nil
	}
	nodes, err := e.nodes.ListByTypes(ctx, tenantID, types)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "find orphaned")
	}
	var orphans []*recipient.Node
	for _, node := range nodes {
		if node.ParentID == nil {
			orphans = append(orphans, node)
		}
	}
	return orphans, nil
}

func (e *Engine) noteCycle(tenantID id.TenantID, nodeID id.NodeID) {
	if e.metrics != nil {
		e.metrics.IncrementCycleGuardTrips()
	}
	if e.log != nil {
		e.log.Warn("cycle guard tripped during traversal",
			"tenant_id", tenantID.String(), "node_id", nodeID.String())
	}
}

func translateLookup(err error) error {
	if isNotFound(err) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "node not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "load node")
}

func isNotFound(err error) bool {
	return errors.Is(err, sentinel.ErrNotFound) || dErrors.Is(err, dErrors.CodeNotFound)
}
