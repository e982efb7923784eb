package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"custodia/internal/changelog"
	"custodia/internal/graph"
	"custodia/internal/hierarchy"
	"custodia/internal/platform/middleware"
	"custodia/internal/recipient"
	recipientservice "custodia/internal/recipient/service"
	"custodia/internal/refdata"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/tx"
)

// =============================================================================
// Recipient Handler Suite
// =============================================================================
// Runs requests through the real router, middleware chain, and in-memory
// service stack, so status mapping and tenant scoping are tested end to end.

type HandlerSuite struct {
	suite.Suite
	router   http.Handler
	tenantID id.TenantID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	nodes := recipient.NewInMemoryStore()
	changes := changelog.NewInMemoryStore()
	refs := refdata.NewInMemoryStore()
	s.Require().NoError(refdata.Seed(context.Background(), refs))

	engine := graph.New(nodes, log, nil)
	validator := hierarchy.NewService(hierarchy.DefaultRules(), engine, log)
	interceptor := changelog.NewInterceptor(changes, log, nil)
	s.Require().NoError(interceptor.Register(recipient.ChangeDescriptor(refs)))

	svc := recipientservice.New(nodes, &tx.MemoryRunner{}, validator, engine,
		interceptor, changes, nil, log, nil)

	r := chi.NewRouter()
	New(svc, log, nil).Register(r)
	s.router = r
	s.tenantID = id.NewTenantID()
}

func (s *HandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(middleware.HeaderTenantID, s.tenantID.String())
	req.Header.Set(middleware.HeaderActorID, "officer-7")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerSuite) decode(w *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), v))
}

func (s *HandlerSuite) createProcessor(name string) string {
	w := s.do(http.MethodPost, "/recipients", map[string]any{
		"type": "PROCESSOR", "name": name, "countryId": "de",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Node struct {
			ID string `json:"id"`
		} `json:"node"`
	}
	s.decode(w, &resp)
	return resp.Node.ID
}

// =============================================================================
// Mutation Endpoint Tests
// =============================================================================

func (s *HandlerSuite) TestCreateAndFetch() {
	nodeID := s.createProcessor("Hosting A")

	w := s.do(http.MethodGet, "/recipients/"+nodeID, nil)
	s.Equal(http.StatusOK, w.Code)

	var node struct {
		Type   string `json:"type"`
		Kind   string `json:"kind"`
		Status string `json:"status"`
	}
	s.decode(w, &node)
	s.Equal("PROCESSOR", node.Type)
	s.Equal("chain", node.Kind)
	s.Equal("active", node.Status)
}

func (s *HandlerSuite) TestCreateValidationFailureMapsTo422() {
	parentID := s.createProcessor("A")
	w := s.do(http.MethodPost, "/recipients", map[string]any{
		"type": "PROCESSOR", "name": "B", "parentId": parentID, "countryId": "de",
	})
	s.Equal(http.StatusUnprocessableEntity, w.Code)

	var errResp struct {
		Code string `json:"code"`
	}
	s.decode(w, &errResp)
	s.Equal("validation", errResp.Code)
}

func (s *HandlerSuite) TestCreateUnknownTypeMapsTo400() {
	w := s.do(http.MethodPost, "/recipients", map[string]any{"type": "WIZARD", "name": "X"})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerSuite) TestPatchDistinguishesNullFromAbsent() {
	parentID := s.createProcessor("A")
	w := s.do(http.MethodPost, "/recipients", map[string]any{
		"type": "SUB_PROCESSOR", "name": "B", "parentId": parentID, "countryId": "de", "agreementRef": "dpa-1",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Node struct {
			ID string `json:"id"`
		} `json:"node"`
	}
	s.decode(w, &created)

	// Patch without parentId: parent is untouched.
	w = s.do(http.MethodPatch, "/recipients/"+created.Node.ID, map[string]any{"name": "B2"})
	s.Require().Equal(http.StatusOK, w.Code)
	var patched struct {
		Node struct {
			ParentID *string `json:"parentId"`
		} `json:"node"`
	}
	s.decode(w, &patched)
	s.NotNil(patched.Node.ParentID)

	// Explicit null detaches.
	w = s.do(http.MethodPatch, "/recipients/"+created.Node.ID, map[string]any{"parentId": nil})
	s.Require().Equal(http.StatusOK, w.Code)
	s.decode(w, &patched)
	s.Nil(patched.Node.ParentID)
}

func (s *HandlerSuite) TestDeleteReturns204() {
	nodeID := s.createProcessor("A")

	w := s.do(http.MethodDelete, "/recipients/"+nodeID, nil)
	s.Equal(http.StatusNoContent, w.Code)

	w = s.do(http.MethodGet, "/recipients/"+nodeID, nil)
	s.Equal(http.StatusNotFound, w.Code)
}

// =============================================================================
// Read Endpoint Tests
// =============================================================================

func (s *HandlerSuite) TestTreeAndChangelog() {
	parentID := s.createProcessor("A")
	w := s.do(http.MethodPost, "/recipients", map[string]any{
		"type": "SUB_PROCESSOR", "name": "B", "parentId": parentID, "countryId": "de", "agreementRef": "dpa-1",
	})
	s.Require().Equal(http.StatusCreated, w.Code)

	w = s.do(http.MethodGet, "/recipients/"+parentID+"/tree", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var tree []struct {
		Depth int `json:"depth"`
	}
	s.decode(w, &tree)
	s.Require().Len(tree, 1)
	s.Equal(1, tree[0].Depth)

	w = s.do(http.MethodGet, "/recipients/"+parentID+"/changelog", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var entries []struct {
		ChangeType string `json:"changeType"`
		ActorID    string `json:"actorId"`
	}
	s.decode(w, &entries)
	s.Require().Len(entries, 1)
	s.Equal("CREATED", entries[0].ChangeType)
	s.Equal("officer-7", entries[0].ActorID)
}

func (s *HandlerSuite) TestHierarchyHealthEndpoint() {
	s.createProcessor("A")

	w := s.do(http.MethodGet, "/hierarchy/health", nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var report struct {
		Cycles  []any `json:"cycles"`
		Orphans []any `json:"orphans"`
	}
	s.decode(w, &report)
	s.Empty(report.Cycles)
	s.Empty(report.Orphans)
}

// =============================================================================
// Tenant Middleware Tests
// =============================================================================

func (s *HandlerSuite) TestMissingTenantHeaderRejected() {
	req := httptest.NewRequest(http.MethodGet, "/hierarchy/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerSuite) TestMalformedTenantHeaderRejected() {
	req := httptest.NewRequest(http.MethodGet, "/hierarchy/health", nil)
	req.Header.Set(middleware.HeaderTenantID, "not-a-uuid")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerSuite) TestForeignTenantSeesNothing() {
	nodeID := s.createProcessor("A")

	req := httptest.NewRequest(http.MethodGet, "/recipients/"+nodeID, nil)
	req.Header.Set(middleware.HeaderTenantID, id.NewTenantID().String())
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusNotFound, w.Code)
}
