// Package domain holds typed identifiers and closed value sets shared across
// modules. Wrapping uuid.UUID in distinct named types makes it a compile error
// to pass a tenant ID where a node ID is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "custodia/pkg/domain-errors"
)

// TenantID identifies an isolated customer boundary. Every owned entity
// carries exactly one TenantID; no query may cross it.
type TenantID uuid.UUID

// NodeID identifies a graph-participating recipient record.
type NodeID uuid.UUID

// EntryID identifies an immutable change-log entry.
type EntryID uuid.UUID

// NewTenantID returns a fresh random TenantID.
func NewTenantID() TenantID { return TenantID(uuid.New()) }

// NewNodeID returns a fresh random NodeID.
func NewNodeID() NodeID { return NodeID(uuid.New()) }

// NewEntryID returns a fresh random EntryID.
func NewEntryID() EntryID { return EntryID(uuid.New()) }

func (t TenantID) String() string { return uuid.UUID(t).String() }
func (t TenantID) IsNil() bool    { return uuid.UUID(t) == uuid.Nil }

func (n NodeID) String() string { return uuid.UUID(n).String() }
func (n NodeID) IsNil() bool    { return uuid.UUID(n) == uuid.Nil }

func (e EntryID) String() string { return uuid.UUID(e).String() }
func (e EntryID) IsNil() bool    { return uuid.UUID(e) == uuid.Nil }

// ParseTenantID constructs a TenantID from external input.
// Call at trust boundaries; direct casting bypasses validation.
func ParseTenantID(s string) (TenantID, error) {
	u, err := uuid.Parse(s)
	if err != nil || u == uuid.Nil {
		return TenantID{}, dErrors.New(dErrors.CodeInvalidInput, "tenant id must be a valid non-nil UUID")
	}
	return TenantID(u), nil
}

// ParseNodeID constructs a NodeID from external input.
func ParseNodeID(s string) (NodeID, error) {
	u, err := uuid.Parse(s)
	if err != nil || u == uuid.Nil {
		return NodeID{}, dErrors.New(dErrors.CodeInvalidInput, "node id must be a valid non-nil UUID")
	}
	return NodeID(u), nil
}

// ParseEntryID constructs an EntryID from external input.
func ParseEntryID(s string) (EntryID, error) {
	u, err := uuid.Parse(s)
	if err != nil || u == uuid.Nil {
		return EntryID{}, dErrors.New(dErrors.CodeInvalidInput, "entry id must be a valid non-nil UUID")
	}
	return EntryID(u), nil
}
