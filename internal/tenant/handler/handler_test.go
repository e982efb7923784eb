package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"custodia/internal/changelog"
	"custodia/internal/recipient"
	"custodia/internal/tenant"
	"custodia/pkg/platform/tx"
)

// =============================================================================
// Tenant Handler Suite
// =============================================================================

type HandlerSuite struct {
	suite.Suite
	router http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := tenant.NewService(
		tenant.NewInMemoryStore(),
		recipient.NewInMemoryStore(),
		changelog.NewInMemoryStore(),
		&tx.MemoryRunner{},
		log,
	)

	r := chi.NewRouter()
	New(svc, log, nil).Register(r)
	s.router = r
}

func (s *HandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerSuite) create(name string) (string, *httptest.ResponseRecorder) {
	w := s.do(http.MethodPost, "/tenants/", map[string]any{"name": name})
	var resp struct {
		ID string `json:"id"`
	}
	if w.Code == http.StatusCreated {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return resp.ID, w
}

func (s *HandlerSuite) TestCreateAndGet() {
	tenantID, w := s.create("Acme GmbH")
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/tenants/"+tenantID, nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var resp struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("Acme GmbH", resp.Name)
	s.Equal("active", resp.Status)
}

func (s *HandlerSuite) TestCreateDuplicateMapsTo409() {
	_, w := s.create("Acme GmbH")
	s.Require().Equal(http.StatusCreated, w.Code)

	_, w = s.create("acme gmbh")
	s.Equal(http.StatusConflict, w.Code)
}

func (s *HandlerSuite) TestCreateEmptyNameRejected() {
	_, w := s.create("   ")
	s.Equal(http.StatusUnprocessableEntity, w.Code)
}

func (s *HandlerSuite) TestGetUnknownTenant() {
	w := s.do(http.MethodGet, "/tenants/5f0b34f0-9a1d-4f43-9c7e-2f6f0a5b7c11", nil)
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/tenants/nope", nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerSuite) TestDelete() {
	tenantID, w := s.create("Acme GmbH")
	s.Require().Equal(http.StatusCreated, w.Code)

	w = s.do(http.MethodDelete, "/tenants/"+tenantID, nil)
	s.Equal(http.StatusNoContent, w.Code)

	w = s.do(http.MethodGet, "/tenants/"+tenantID, nil)
	s.Equal(http.StatusNotFound, w.Code)
}
