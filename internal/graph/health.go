package graph

import (
	"context"
	"time"

	"custodia/internal/recipient"
	id "custodia/pkg/domain"
)

// HealthPolicy tells the health scan what "healthy" means per type. The rule
// table owns these facts; passing them in keeps the engine free of rule-table
// dependencies.
type HealthPolicy struct {
	// HierarchyTypes are the types that participate in any hierarchy family.
	HierarchyTypes []recipient.NodeType
	// ParentRequired are the types that must not be roots.
	ParentRequired []recipient.NodeType
	// MaxDepth is the per-type depth cap.
	MaxDepth map[recipient.NodeType]int
}

// Finding identifies one unhealthy node.
type Finding struct {
	NodeID id.NodeID          `json:"nodeId"`
	Type   recipient.NodeType `json:"type"`
	Detail string             `json:"detail,omitempty"`
	Depth  int                `json:"depth,omitempty"`
}

// HealthReport summarizes graph integrity for one tenant. Advisory data: it
// never blocks writes and may be served slightly stale from cache.
type HealthReport struct {
	TenantID        id.TenantID `json:"tenantId"`
	Cycles          []Finding   `json:"cycles"`
	Orphans         []Finding   `json:"orphans"`
	DepthViolations []Finding   `json:"depthViolations"`
	GeneratedAt     time.Time   `json:"generatedAt"`
}

// Healthy reports whether the scan found nothing wrong.
func (r *HealthReport) Healthy() bool {
	return len(r.Cycles) == 0 && len(r.Orphans) == 0 && len(r.DepthViolations) == 0
}

// CheckHierarchyHealth scans every hierarchy-participating node of the tenant
// for cycles, orphans, and depth violations. Each node's upward walk is bounded
// by the same ceiling as any other traversal, so the scan stays linear in node
// count even on a corrupted graph.
func (e *Engine) CheckHierarchyHealth(ctx context.Context, tenantID id.TenantID, policy HealthPolicy) (*HealthReport, error) {
	report := &HealthReport{
		TenantID:        tenantID,
		Cycles:          []Finding{},
		Orphans:         []Finding{},
		DepthViolations: []Finding{},
		GeneratedAt:     time.Now().UTC(),
	}

	nodes, err := e.nodes.ListByTypes(ctx, tenantID, policy.HierarchyTypes)
	if err != nil {
		return nil, err
	}

	requiresParent := make(map[recipient.NodeType]bool, len(policy.ParentRequired))
	for _, t := range policy.ParentRequired {
		requiresParent[t] = true
	}

	for _, node := range nodes {
		if requiresParent[node.Type] && node.ParentID == nil {
			report.Orphans = append(report.Orphans, Finding{
				NodeID: node.ID, Type: node.Type, Detail: "type requires a parent",
			})
		}
		if node.ParentID == nil {
			continue
		}
		chain, cyclic, err := e.ancestorWalk(ctx, tenantID, node.ID)
		if err != nil {
			return nil, err
		}
		if cyclic {
			report.Cycles = append(report.Cycles, Finding{
				NodeID: node.ID, Type: node.Type, Detail: "ancestor walk revisited a node",
			})
			continue
		}
		if limit, ok := policy.MaxDepth[node.Type]; ok && len(chain) > limit {
			report.DepthViolations = append(report.DepthViolations, Finding{
				NodeID: node.ID, Type: node.Type, Depth: len(chain),
			})
		}
	}

	if e.metrics != nil {
		e.metrics.IncrementHealthReports()
	}
	return report, nil
}
