package graph

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	"custodia/internal/recipient"
	id "custodia/pkg/domain"
)

type HealthSuite struct {
	suite.Suite
	store    *recipient.InMemoryStore
	engine   *Engine
	tenantID id.TenantID
	policy   HealthPolicy
}

func TestHealthSuite(t *testing.T) {
	suite.Run(t, new(HealthSuite))
}

func (s *HealthSuite) SetupTest() {
	s.store = recipient.NewInMemoryStore()
	s.engine = New(s.store, slog.Default(), nil)
	s.tenantID = id.NewTenantID()
	s.policy = HealthPolicy{
		HierarchyTypes: []recipient.NodeType{recipient.TypeProcessor, recipient.TypeSubProcessor, recipient.TypeInternalDepartment},
		ParentRequired: []recipient.NodeType{recipient.TypeSubProcessor},
		MaxDepth: map[recipient.NodeType]int{
			recipient.TypeSubProcessor:       2,
			recipient.TypeInternalDepartment: 4,
		},
	}
}

func (s *HealthSuite) insert(nodeType recipient.NodeType, parentID *id.NodeID) *recipient.Node {
	node := &recipient.Node{
		ID:       id.NewNodeID(),
		TenantID: s.tenantID,
		Type:     nodeType,
		ParentID: parentID,
		Name:     "node",
		Status:   recipient.StatusActive,
	}
	s.Require().NoError(s.store.Insert(context.Background(), node))
	return node
}

func (s *HealthSuite) TestHealthyGraph() {
	root := s.insert(recipient.TypeProcessor, nil)
	s.insert(recipient.TypeSubProcessor, &root.ID)

	report, err := s.engine.CheckHierarchyHealth(context.Background(), s.tenantID, s.policy)
	s.Require().NoError(err)
	s.True(report.Healthy())
	s.Equal(s.tenantID, report.TenantID)
	s.NotNil(report.Cycles, "findings serialize as arrays, not null")
}

func (s *HealthSuite) TestReportsOrphans() {
	s.insert(recipient.TypeSubProcessor, nil)

	report, err := s.engine.CheckHierarchyHealth(context.Background(), s.tenantID, s.policy)
	s.Require().NoError(err)
	s.Len(report.Orphans, 1)
	s.Empty(report.Cycles)
}

func (s *HealthSuite) TestReportsCycles() {
	a := s.insert(recipient.TypeSubProcessor, nil)
	b := s.insert(recipient.TypeSubProcessor, &a.ID)
	corrupted := a.Clone()
	corrupted.ParentID = &b.ID
	s.Require().NoError(s.store.Update(context.Background(), corrupted))

	report, err := s.engine.CheckHierarchyHealth(context.Background(), s.tenantID, s.policy)
	s.Require().NoError(err)
	s.Len(report.Cycles, 2, "both members of the cycle are flagged")
	s.False(report.Healthy())
}

func (s *HealthSuite) TestReportsDepthViolations() {
	root := s.insert(recipient.TypeProcessor, nil)
	a := s.insert(recipient.TypeSubProcessor, &root.ID)
	b := s.insert(recipient.TypeSubProcessor, &a.ID)
	deep := s.insert(recipient.TypeSubProcessor, &b.ID)

	report, err := s.engine.CheckHierarchyHealth(context.Background(), s.tenantID, s.policy)
	s.Require().NoError(err)
	s.Require().Len(report.DepthViolations, 1)
	s.Equal(deep.ID, report.DepthViolations[0].NodeID)
	s.Equal(3, report.DepthViolations[0].Depth)
}

func (s *HealthSuite) TestScopedToTenant() {
	s.insert(recipient.TypeSubProcessor, nil) // orphan in s.tenantID

	report, err := s.engine.CheckHierarchyHealth(context.Background(), id.NewTenantID(), s.policy)
	s.Require().NoError(err)
	s.True(report.Healthy())
}
