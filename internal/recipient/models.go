// Package recipient defines the graph-bearing entity at the heart of the
// record register: a data recipient that may sit inside a processing chain or
// an organizational structure via a self-referential parent pointer.
package recipient

import (
	"time"

	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
)

// NodeType is the closed set of recipient kinds. Hierarchy rules are indexed
// by this type.
type NodeType string

const (
	TypeProcessor          NodeType = "PROCESSOR"
	TypeSubProcessor       NodeType = "SUB_PROCESSOR"
	TypeInternalDepartment NodeType = "INTERNAL_DEPARTMENT"
	TypeJointController    NodeType = "JOINT_CONTROLLER"
	TypeThirdParty         NodeType = "THIRD_PARTY"
)

var validTypes = map[NodeType]bool{
	TypeProcessor:          true,
	TypeSubProcessor:       true,
	TypeInternalDepartment: true,
	TypeJointController:    true,
	TypeThirdParty:         true,
}

// ParseNodeType constructs a NodeType from external input.
func ParseNodeType(s string) (NodeType, error) {
	t := NodeType(s)
	if !validTypes[t] {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown recipient type %q", s)
	}
	return t, nil
}

// HierarchyKind groups node types that share one traversal family. A node's
// kind is derived from its type at write time, never supplied by callers.
type HierarchyKind string

const (
	// KindChain is the processing-chain family (processors and their
	// sub-processors).
	KindChain HierarchyKind = "chain"
	// KindOrg is the organizational-structure family (internal departments).
	KindOrg HierarchyKind = "org"
	// KindNone marks types that never participate in hierarchy.
	KindNone HierarchyKind = ""
)

// Status tracks whether a recipient is actively receiving data.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ParseStatus constructs a Status from external input.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusActive, StatusInactive:
		return Status(s), nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown status %q", s)
}

// Node is a recipient record. ParentID, when set, must point at a node of the
// same tenant whose type is an allowed parent for this node's type, and the
// resulting chain must stay acyclic and within the type's depth cap.
type Node struct {
	ID               id.NodeID
	TenantID         id.TenantID
	Type             NodeType
	ParentID         *id.NodeID
	Kind             HierarchyKind
	Name             string
	Description      string
	CountryID        string
	ClassificationID string
	AgreementRef     string
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EntityType tags recipient rows in the change log.
const EntityType = "recipient"

// EntityID implements the tracked-entity contract for change interception.
func (n *Node) EntityID() string { return n.ID.String() }

// EntityTenant implements the tracked-entity contract.
func (n *Node) EntityTenant() id.TenantID { return n.TenantID }

// EntityFields returns the complete field map used for flattened snapshots.
// Keys here are the wire names the change log stores; the tracked-field set
// and reference joins are keyed by the same names.
func (n *Node) EntityFields() map[string]any {
	var parent any
	if n.ParentID != nil {
		parent = n.ParentID.String()
	}
	return map[string]any{
		"type":              string(n.Type),
		"parent_id":         parent,
		"kind":              string(n.Kind),
		"name":              n.Name,
		"description":       n.Description,
		"country_id":        n.CountryID,
		"classification_id": n.ClassificationID,
		"agreement_ref":     n.AgreementRef,
		"status":            string(n.Status),
	}
}

// Clone returns a deep copy so stores never hand out aliased pointers.
func (n *Node) Clone() *Node {
	out := *n
	if n.ParentID != nil {
		p := *n.ParentID
		out.ParentID = &p
	}
	return &out
}
