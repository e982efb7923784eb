package hierarchy

import (
	"context"
	"fmt"
	"log/slog"

	"custodia/internal/graph"
	"custodia/internal/recipient"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	pstrings "custodia/pkg/platform/strings"
)

// Result reports the outcome of one validation pass. Errors are blocking;
// warnings are advisory and must never prevent persistence.
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

func (r *Result) addError(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// AsError converts a failed result into a coded validation error carrying the
// joined messages; a valid result yields nil.
func (r *Result) AsError() error {
	if r.Valid {
		return nil
	}
	msg := "hierarchy validation failed"
	for _, e := range pstrings.DedupeAndTrim(r.Errors) {
		msg += "; " + e
	}
	return dErrors.New(dErrors.CodeValidation, msg)
}

// Service validates proposed parent-link assignments against the rule table
// and the current graph. It never mutates state; callers run it inside the
// same transaction as the write so the checked ancestor chain cannot go stale
// before commit.
type Service struct {
	rules *RuleSet
	graph *graph.Engine
	log   *slog.Logger
}

func NewService(rules *RuleSet, engine *graph.Engine, log *slog.Logger) *Service {
	return &Service{rules: rules, graph: engine, log: log}
}

// Rules exposes the immutable rule table for kind stamping and health scans.
func (s *Service) Rules() *RuleSet { return s.rules }

// ValidateChange checks a proposed parent assignment for the node described by
// draft. On create, draft.ID is the pre-generated ID of the node about to be
// inserted; on reparent it is the existing node's ID.
//
// The check order mirrors cost: static rules first, then parent lookup, then
// graph walks.
func (s *Service) ValidateChange(ctx context.Context, tenantID id.TenantID, draft *recipient.Node, proposedParentID *id.NodeID) (*Result, error) {
	result := &Result{Valid: true}
	rule := s.rules.Rule(draft.Type)

	s.appendAdvisories(result, draft, rule)

	// A null parent is trivially valid: the node becomes (or stays) a root.
	if proposedParentID == nil {
		return result, nil
	}

	if !rule.CanHaveParent {
		result.addError("type %s cannot have a parent", draft.Type)
		return result, nil
	}

	if *proposedParentID == draft.ID {
		result.addError("node cannot be its own parent")
		return result, nil
	}

	// Missing and cross-tenant parents are indistinguishable on purpose.
	parent, err := s.graph.FindNode(ctx, tenantID, *proposedParentID)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeNotFound) {
			result.addError("parent node does not exist in this tenant")
			return result, nil
		}
		return nil, err
	}

	if !rule.AllowedParentTypes[parent.Type] {
		result.addError("type %s cannot be a child of type %s", draft.Type, parent.Type)
		return result, nil
	}

	circular, err := s.graph.CheckCircularReference(ctx, tenantID, draft.ID, *proposedParentID)
	if err != nil {
		return nil, err
	}
	if circular {
		result.addError("assignment would create a circular reference")
		return result, nil
	}

	parentDepth, err := s.graph.Depth(ctx, tenantID, *proposedParentID)
	if err != nil {
		return nil, err
	}
	if resulting := parentDepth + 1; resulting > rule.MaxDepth {
		result.addError("resulting depth %d exceeds maximum %d for type %s",
			resulting, rule.MaxDepth, draft.Type)
	}

	return result, nil
}

// appendAdvisories evaluates the soft expectations for the draft. Warnings
// ride along with a successful mutation result.
func (s *Service) appendAdvisories(result *Result, draft *recipient.Node, rule Rule) {
	if rule.Kind == recipient.KindChain && draft.CountryID == "" {
		result.addWarning("type %s should reference a destination country", draft.Type)
	}
	if draft.Type == recipient.TypeSubProcessor && draft.AgreementRef == "" {
		result.addWarning("sub-processors should reference a processing agreement")
	}
}
