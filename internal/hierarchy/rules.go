// Package hierarchy decides, before any write, whether a proposed parent-link
// assignment is legal. The rule table is immutable after construction and is
// injected into the validation service rather than read from package state.
package hierarchy

import (
	"custodia/internal/graph"
	"custodia/internal/recipient"
)

// Rule captures the hierarchy constraints of one node type.
type Rule struct {
	CanHaveParent      bool
	RequiresParent     bool
	AllowedParentTypes map[recipient.NodeType]bool
	// MaxDepth is the deepest position a node of this type may occupy,
	// measured as ancestor-chain length. 0 when CanHaveParent is false.
	MaxDepth int
	Kind     recipient.HierarchyKind
}

// RuleSet is the type-indexed rule table. Construct once at startup.
type RuleSet struct {
	rules map[recipient.NodeType]Rule
}

// NewRuleSet builds an immutable rule set from the given table.
func NewRuleSet(rules map[recipient.NodeType]Rule) *RuleSet {
	copied := make(map[recipient.NodeType]Rule, len(rules))
	for t, r := range rules {
		copied[t] = r
	}
	return &RuleSet{rules: copied}
}

// DefaultRules is the production rule table.
//
// Processing chain: processors are roots; sub-processors nest under a
// processor or another sub-processor, at most six levels deep.
// Organizational: departments nest under departments, at most four levels.
// Joint controllers and third parties never participate in hierarchy.
func DefaultRules() *RuleSet {
	return NewRuleSet(map[recipient.NodeType]Rule{
		recipient.TypeProcessor: {
			CanHaveParent: false,
			Kind:          recipient.KindChain,
		},
		recipient.TypeSubProcessor: {
			CanHaveParent:  true,
			RequiresParent: true,
			AllowedParentTypes: map[recipient.NodeType]bool{
				recipient.TypeProcessor:    true,
				recipient.TypeSubProcessor: true,
			},
			MaxDepth: 6,
			Kind:     recipient.KindChain,
		},
		recipient.TypeInternalDepartment: {
			CanHaveParent: true,
			AllowedParentTypes: map[recipient.NodeType]bool{
				recipient.TypeInternalDepartment: true,
			},
			MaxDepth: 4,
			Kind:     recipient.KindOrg,
		},
		recipient.TypeJointController: {},
		recipient.TypeThirdParty:      {},
	})
}

// Rule returns the rule for a type; the zero Rule (no parent, no hierarchy)
// applies to unknown types.
func (rs *RuleSet) Rule(t recipient.NodeType) Rule {
	return rs.rules[t]
}

// KindForType is the pure lookup used to auto-stamp the hierarchy kind on
// write. Callers never supply a kind directly.
func (rs *RuleSet) KindForType(t recipient.NodeType) recipient.HierarchyKind {
	return rs.rules[t].Kind
}

// HealthPolicy derives the health-scan inputs from the rule table.
func (rs *RuleSet) HealthPolicy() graph.HealthPolicy {
	policy := graph.HealthPolicy{MaxDepth: make(map[recipient.NodeType]int)}
	for t, r := range rs.rules {
		if r.Kind == recipient.KindNone {
			continue
		}
		policy.HierarchyTypes = append(policy.HierarchyTypes, t)
		if r.RequiresParent {
			policy.ParentRequired = append(policy.ParentRequired, t)
		}
		if r.CanHaveParent {
			policy.MaxDepth[t] = r.MaxDepth
		}
	}
	return policy
}
