package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custodia/internal/changelog"
	"custodia/internal/graph"
	"custodia/internal/hierarchy"
	"custodia/internal/recipient"
	"custodia/internal/refdata"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/tx"
	"custodia/pkg/testutil"
)

// =============================================================================
// Recipient Service Suite
// =============================================================================
// Exercises the full mutation path against in-memory stores: validation,
// entity write, and change interception composed exactly as in production.

type ServiceSuite struct {
	suite.Suite
	nodes    *recipient.InMemoryStore
	changes  *changelog.InMemoryStore
	refs     *refdata.InMemoryStore
	service  *Service
	tenantID id.TenantID
	now      time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.nodes = recipient.NewInMemoryStore()
	s.changes = changelog.NewInMemoryStore()
	s.refs = refdata.NewInMemoryStore()
	s.Require().NoError(refdata.Seed(context.Background(), s.refs))

	log := slog.Default()
	engine := graph.New(s.nodes, log, nil)
	validator := hierarchy.NewService(hierarchy.DefaultRules(), engine, log)
	interceptor := changelog.NewInterceptor(s.changes, log, nil)
	s.Require().NoError(interceptor.Register(recipient.ChangeDescriptor(s.refs)))

	s.service = New(s.nodes, &tx.MemoryRunner{}, validator, engine,
		interceptor, s.changes, nil, log, nil)
	s.tenantID = id.NewTenantID()
	s.now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
}

func (s *ServiceSuite) ctx() context.Context {
	return testutil.Ctx(s.tenantID, "compliance-officer", s.now)
}

func (s *ServiceSuite) createNode(input CreateInput) *recipient.Node {
	node, _, err := s.service.Create(s.ctx(), s.tenantID, input)
	s.Require().NoError(err)
	return node
}

func (s *ServiceSuite) changeLogOf(node *recipient.Node) []changelog.Entry {
	entries, err := s.service.ChangeLog(s.ctx(), s.tenantID, recipient.EntityType, node.ID.String())
	s.Require().NoError(err)
	return entries
}

// =============================================================================
// Create Tests
// =============================================================================

func (s *ServiceSuite) TestCreateRootProcessor() {
	node := s.createNode(CreateInput{
		Type:             recipient.TypeProcessor,
		Name:             "Hosting Provider A",
		CountryID:        "de",
		ClassificationID: "internal",
	})

	s.Equal(recipient.KindChain, node.Kind, "kind is stamped from type")
	s.Equal(recipient.StatusActive, node.Status)
	s.Equal(s.now, node.CreatedAt)

	entries := s.changeLogOf(node)
	s.Require().Len(entries, 1)
	s.Equal(changelog.ChangeCreated, entries[0].ChangeType)
	s.Equal("compliance-officer", entries[0].ActorID)

	// Snapshots embed reference display fields, not bare keys.
	country := entries[0].NewValue["country_id"].(map[string]any)
	s.Equal("Germany", country["name"])
}

func (s *ServiceSuite) TestCreateSubProcessorUnderProcessor() {
	parent := s.createNode(CreateInput{Type: recipient.TypeProcessor, Name: "A", CountryID: "de"})

	child, warnings, err := s.service.Create(s.ctx(), s.tenantID, CreateInput{
		Type:      recipient.TypeSubProcessor,
		ParentID:  &parent.ID,
		Name:      "B",
		CountryID: "fr",
	})
	s.Require().NoError(err)
	s.Require().NotNil(child.ParentID)
	s.Equal(parent.ID, *child.ParentID)
	s.NotEmpty(warnings, "missing agreement ref warns but does not block")

	depth, err := s.service.DescendantTree(s.ctx(), s.tenantID, parent.ID, 0)
	s.Require().NoError(err)
	s.Require().Len(depth, 1)
	s.Equal(1, depth[0].Depth)
}

func (s *ServiceSuite) TestCreateRejectsInvalidHierarchy() {
	department := s.createNode(CreateInput{Type: recipient.TypeInternalDepartment, Name: "Legal"})

	_, _, err := s.service.Create(s.ctx(), s.tenantID, CreateInput{
		Type:     recipient.TypeSubProcessor,
		ParentID: &department.ID,
		Name:     "bad",
	})
	s.True(dErrors.Is(err, dErrors.CodeValidation))

	// The rejected node was never persisted and never logged.
	tree, err := s.service.DescendantTree(s.ctx(), s.tenantID, department.ID, 0)
	s.Require().NoError(err)
	s.Empty(tree)
}

// =============================================================================
// Update Tests
// =============================================================================

func (s *ServiceSuite) TestReparentIntoOwnSubtreeRejected() {
	a := s.createNode(CreateInput{Type: recipient.TypeSubProcessor, Name: "A", CountryID: "de"})
	b, _, err := s.service.Create(s.ctx(), s.tenantID, CreateInput{
		Type: recipient.TypeSubProcessor, ParentID: &a.ID, Name: "B", CountryID: "de",
	})
	s.Require().NoError(err)

	_, _, err = s.service.Update(s.ctx(), s.tenantID, a.ID, UpdateInput{
		ParentID: &b.ID, ParentSet: true,
	})
	s.Require().True(dErrors.Is(err, dErrors.CodeValidation))

	reloaded, err := s.service.Get(s.ctx(), s.tenantID, a.ID)
	s.Require().NoError(err)
	s.Nil(reloaded.ParentID, "rejected reparent leaves the node untouched")
}

func (s *ServiceSuite) TestUpdateLogsOneEntryPerTrackedField() {
	node := s.createNode(CreateInput{
		Type: recipient.TypeProcessor, Name: "A", CountryID: "de", ClassificationID: "internal",
	})

	classification := "confidential"
	name := "A renamed"
	_, _, err := s.service.Update(s.ctx(), s.tenantID, node.ID, UpdateInput{
		ClassificationID: &classification,
		Name:             &name,
	})
	s.Require().NoError(err)

	entries := s.changeLogOf(node)
	s.Require().Len(entries, 2, "CREATED plus one UPDATED; name is untracked")

	updated := entries[1]
	s.Equal(changelog.ChangeUpdated, updated.ChangeType)
	s.Equal("classification_id", *updated.FieldChanged)

	oldClass := updated.OldValue["classification_id"].(map[string]any)
	newClass := updated.NewValue["classification_id"].(map[string]any)
	s.Equal("internal", oldClass["id"])
	s.Equal("confidential", newClass["id"])
}

func (s *ServiceSuite) TestDetachViaNullParent() {
	parent := s.createNode(CreateInput{Type: recipient.TypeProcessor, Name: "A", CountryID: "de"})
	child, _, err := s.service.Create(s.ctx(), s.tenantID, CreateInput{
		Type: recipient.TypeSubProcessor, ParentID: &parent.ID, Name: "B", CountryID: "de",
	})
	s.Require().NoError(err)

	updated, _, err := s.service.Update(s.ctx(), s.tenantID, child.ID, UpdateInput{ParentSet: true})
	s.Require().NoError(err)
	s.Nil(updated.ParentID)

	entries := s.changeLogOf(child)
	s.Require().Len(entries, 2)
	s.Equal("parent_id", *entries[1].FieldChanged)
}

func (s *ServiceSuite) TestUpdateMissingNode() {
	_, _, err := s.service.Update(s.ctx(), s.tenantID, id.NewNodeID(), UpdateInput{})
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

// =============================================================================
// Delete Tests
// =============================================================================

func (s *ServiceSuite) TestDeleteDetachesChildren() {
	parent := s.createNode(CreateInput{Type: recipient.TypeProcessor, Name: "A", CountryID: "de"})
	child, _, err := s.service.Create(s.ctx(), s.tenantID, CreateInput{
		Type: recipient.TypeSubProcessor, ParentID: &parent.ID, Name: "B", CountryID: "de",
	})
	s.Require().NoError(err)

	s.Require().NoError(s.service.Delete(s.ctx(), s.tenantID, parent.ID))

	_, err = s.service.Get(s.ctx(), s.tenantID, parent.ID)
	s.True(dErrors.Is(err, dErrors.CodeNotFound))

	orphaned, err := s.service.Get(s.ctx(), s.tenantID, child.ID)
	s.Require().NoError(err)
	s.Nil(orphaned.ParentID, "children are detached, not cascaded")

	// The detachment is logged like any other parent change.
	entries := s.changeLogOf(child)
	s.Require().Len(entries, 2)
	s.Equal("parent_id", *entries[1].FieldChanged)

	// Deleting a node never deletes its history.
	s.Len(s.changeLogOf(parent), 1)
}

// =============================================================================
// Tenant Isolation Tests
// =============================================================================

func (s *ServiceSuite) TestTenantIsolation() {
	node := s.createNode(CreateInput{Type: recipient.TypeProcessor, Name: "A", CountryID: "de"})

	otherTenant := id.NewTenantID()
	otherCtx := testutil.Ctx(otherTenant, "intruder", s.now)

	_, err := s.service.Get(otherCtx, otherTenant, node.ID)
	s.True(dErrors.Is(err, dErrors.CodeNotFound))

	entries, err := s.service.ChangeLog(otherCtx, otherTenant, recipient.EntityType, node.ID.String())
	s.Require().NoError(err)
	s.Empty(entries)
}

// =============================================================================
// Read and Health Tests
// =============================================================================

func (s *ServiceSuite) TestAncestorChain() {
	root := s.createNode(CreateInput{Type: recipient.TypeProcessor, Name: "A", CountryID: "de"})
	mid, _, err := s.service.Create(s.ctx(), s.tenantID, CreateInput{
		Type: recipient.TypeSubProcessor, ParentID: &root.ID, Name: "B", CountryID: "de",
	})
	s.Require().NoError(err)
	leaf, _, err := s.service.Create(s.ctx(), s.tenantID, CreateInput{
		Type: recipient.TypeSubProcessor, ParentID: &mid.ID, Name: "C", CountryID: "de",
	})
	s.Require().NoError(err)

	chain, err := s.service.AncestorChain(s.ctx(), s.tenantID, leaf.ID)
	s.Require().NoError(err)
	s.Require().Len(chain, 2)
	s.Equal(mid.ID, chain[0].ID)
	s.Equal(root.ID, chain[1].ID)
}

func (s *ServiceSuite) TestHierarchyHealthWithoutCache() {
	s.createNode(CreateInput{Type: recipient.TypeProcessor, Name: "A", CountryID: "de"})

	report, err := s.service.HierarchyHealth(s.ctx(), s.tenantID)
	s.Require().NoError(err)
	s.True(report.Healthy())
}
