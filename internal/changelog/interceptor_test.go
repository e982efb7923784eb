package changelog

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/requestcontext"
)

// account is a minimal tracked entity for exercising the generic interception
// path without importing any feature package.
type account struct {
	id       string
	tenantID id.TenantID
	name     string
	planID   string
	notes    string
}

func (a *account) EntityID() string          { return a.id }
func (a *account) EntityTenant() id.TenantID { return a.tenantID }
func (a *account) EntityFields() map[string]any {
	return map[string]any{
		"name":    a.name,
		"plan_id": a.planID,
		"notes":   a.notes,
	}
}

// =============================================================================
// Interceptor Suite
// =============================================================================

type InterceptorSuite struct {
	suite.Suite
	store       *InMemoryStore
	interceptor *Interceptor
	tenantID    id.TenantID
	plans       map[string]map[string]any
}

func TestInterceptorSuite(t *testing.T) {
	suite.Run(t, new(InterceptorSuite))
}

func (s *InterceptorSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.interceptor = NewInterceptor(s.store, slog.Default(), nil)
	s.tenantID = id.NewTenantID()
	s.plans = map[string]map[string]any{
		"basic": {"id": "basic", "name": "Basic"},
	}

	err := s.interceptor.Register(Descriptor{
		EntityType:    "account",
		TrackedFields: map[string]bool{"name": true, "plan_id": true},
		ReferenceJoins: map[string]JoinSpec{
			"plan_id": {Resolve: func(_ context.Context, key string) (map[string]any, error) {
				display, ok := s.plans[key]
				if !ok {
					return nil, sentinel.ErrNotFound
				}
				return display, nil
			}},
		},
	})
	s.Require().NoError(err)
}

func (s *InterceptorSuite) ctx() context.Context {
	ctx := requestcontext.WithActorID(context.Background(), "auditor-1")
	return requestcontext.WithTime(ctx, time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
}

func (s *InterceptorSuite) entries(entityID string) []Entry {
	entries, err := s.store.ListByEntity(context.Background(), s.tenantID, "account", entityID)
	s.Require().NoError(err)
	return entries
}

// =============================================================================
// Registration Tests
// =============================================================================

func (s *InterceptorSuite) TestRegisterRejectsDuplicates() {
	err := s.interceptor.Register(Descriptor{EntityType: "account"})
	s.True(dErrors.Is(err, dErrors.CodeInvariantViolation))
}

func (s *InterceptorSuite) TestUnregisteredTypeFails() {
	_, err := InterceptCreate(s.ctx(), s.interceptor, "mystery",
		func(context.Context) (*account, error) { return &account{}, nil })
	s.True(dErrors.Is(err, dErrors.CodeInvariantViolation))
}

// =============================================================================
// Create Interception Tests
// =============================================================================

func (s *InterceptorSuite) TestCreateAppendsExactlyOneEntry() {
	created, err := InterceptCreate(s.ctx(), s.interceptor, "account",
		func(context.Context) (*account, error) {
			return &account{id: "acc-1", tenantID: s.tenantID, name: "Acme", planID: "basic"}, nil
		})
	s.Require().NoError(err)
	s.Equal("acc-1", created.id)

	entries := s.entries("acc-1")
	s.Require().Len(entries, 1)

	entry := entries[0]
	s.Equal(ChangeCreated, entry.ChangeType)
	s.Nil(entry.FieldChanged)
	s.Nil(entry.OldValue)
	s.Equal("Acme", entry.NewValue["name"])
	s.Equal(map[string]any{"id": "basic", "name": "Basic"}, entry.NewValue["plan_id"])
	s.Equal("auditor-1", entry.ActorID)
	s.Equal(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC), entry.ChangedAt)
}

func (s *InterceptorSuite) TestCreateFailureWritesNothing() {
	_, err := InterceptCreate(s.ctx(), s.interceptor, "account",
		func(context.Context) (*account, error) {
			return nil, dErrors.New(dErrors.CodeConflict, "duplicate")
		})
	s.Error(err)
	s.Empty(s.entries("acc-1"))
}

// =============================================================================
// Update Interception Tests
// =============================================================================

func (s *InterceptorSuite) update(before, after *account, payloadFields []string) error {
	_, err := InterceptUpdate(s.ctx(), s.interceptor, "account", payloadFields,
		func(context.Context) (*account, error) { return before, nil },
		func(context.Context) (*account, error) { return after, nil })
	return err
}

func (s *InterceptorSuite) TestOneEntryPerChangedTrackedField() {
	before := &account{id: "acc-2", tenantID: s.tenantID, name: "Acme", planID: "basic"}
	after := &account{id: "acc-2", tenantID: s.tenantID, name: "Acme GmbH", planID: "missing-plan"}

	s.Require().NoError(s.update(before, after, []string{"name", "plan_id"}))

	entries := s.entries("acc-2")
	s.Require().Len(entries, 2)

	// Deterministic order: field names sorted.
	s.Equal("name", *entries[0].FieldChanged)
	s.Equal("plan_id", *entries[1].FieldChanged)

	// Every entry carries the complete before/after state, not a field diff.
	for _, entry := range entries {
		s.Equal(ChangeUpdated, entry.ChangeType)
		s.Equal("Acme", entry.OldValue["name"])
		s.Equal("Acme GmbH", entry.NewValue["name"])
	}
	s.Equal(map[string]any{"id": "missing-plan", "missing": true}, entries[0].NewValue["plan_id"])
}

func (s *InterceptorSuite) TestUntrackedFieldsProduceNoEntries() {
	before := &account{id: "acc-3", tenantID: s.tenantID, name: "Acme", notes: "old"}
	after := &account{id: "acc-3", tenantID: s.tenantID, name: "Acme", notes: "new"}

	s.Require().NoError(s.update(before, after, []string{"notes"}))
	s.Empty(s.entries("acc-3"))
}

func (s *InterceptorSuite) TestUnchangedPayloadFieldProducesNoEntry() {
	before := &account{id: "acc-4", tenantID: s.tenantID, name: "Acme"}
	after := &account{id: "acc-4", tenantID: s.tenantID, name: "Acme"}

	s.Require().NoError(s.update(before, after, []string{"name"}))
	s.Empty(s.entries("acc-4"))
}

func (s *InterceptorSuite) TestSnapshotsFrozenAgainstLaterReferenceEdits() {
	before := &account{id: "acc-5", tenantID: s.tenantID, name: "Acme", planID: ""}
	after := &account{id: "acc-5", tenantID: s.tenantID, name: "Acme", planID: "basic"}
	s.Require().NoError(s.update(before, after, []string{"plan_id"}))

	s.plans["basic"]["name"] = "Basic v2"

	entries := s.entries("acc-5")
	s.Require().Len(entries, 1)
	embedded := entries[0].NewValue["plan_id"].(map[string]any)
	s.Equal("Basic", embedded["name"], "renaming the plan must not rewrite history")
}

func (s *InterceptorSuite) TestChangeReasonRecorded() {
	ctx := WithChangeReason(s.ctx(), "migration cleanup")
	_, err := InterceptCreate(ctx, s.interceptor, "account",
		func(context.Context) (*account, error) {
			return &account{id: "acc-6", tenantID: s.tenantID, name: "Acme"}, nil
		})
	s.Require().NoError(err)

	entries := s.entries("acc-6")
	s.Require().Len(entries, 1)
	s.Equal("migration cleanup", entries[0].ChangeReason)
}
