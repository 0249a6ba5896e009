package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domainstack/api/internal/middleware"
	"github.com/domainstack/api/internal/model"
	"github.com/domainstack/api/internal/repository"
	domainService "github.com/domainstack/api/internal/service/domain"
	"github.com/domainstack/api/pkg/logger"
)

// memRepo is a minimal in-memory DomainRepository for wire-level tests.
// Methods the handlers never reach are inherited from the nil embedded
// interface and would panic if called.
type memRepo struct {
	repository.DomainRepository

	mu      sync.Mutex
	domains map[string]*model.Domain
	tracked map[uuid.UUID]*model.TrackedDomain
	names   map[uuid.UUID]string
}

func newMemRepo() *memRepo {
	return &memRepo{
		domains: make(map[string]*model.Domain),
		tracked: make(map[uuid.UUID]*model.TrackedDomain),
		names:   make(map[uuid.UUID]string),
	}
}

func (r *memRepo) GetOrCreateDomain(ctx context.Context, name string) (*model.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.domains[name]; ok {
		return d, nil
	}
	d := &model.Domain{Name: name}
	d.ID = uuid.New()
	r.domains[name] = d
	r.names[d.ID] = name
	return d, nil
}

func (r *memRepo) FindTrackedDomain(ctx context.Context, userID, domainID uuid.UUID) (*model.TrackedDomain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, td := range r.tracked {
		if td.UserID == userID && td.DomainID == domainID && td.ArchivedAt == nil {
			return td, nil
		}
	}
	return nil, nil
}

func (r *memRepo) CountActiveTrackedDomains(ctx context.Context, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, td := range r.tracked {
		if td.UserID == userID && td.ArchivedAt == nil {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) CreateTrackedDomain(ctx context.Context, td *model.TrackedDomain) (*model.TrackedDomain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	td.ID = uuid.New()
	r.tracked[td.ID] = td
	return td, nil
}

func (r *memRepo) FindTrackedDomainWithDomainName(ctx context.Context, id uuid.UUID) (*model.TrackedDomainView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	td, ok := r.tracked[id]
	if !ok {
		return nil, nil
	}
	return &model.TrackedDomainView{TrackedDomain: *td, DomainName: r.names[td.DomainID]}, nil
}

func (r *memRepo) ListTrackedDomains(ctx context.Context, userID uuid.UUID) ([]*model.TrackedDomainView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.TrackedDomainView
	for _, td := range r.tracked {
		if td.UserID == userID && td.ArchivedAt == nil {
			out = append(out, &model.TrackedDomainView{TrackedDomain: *td, DomainName: r.names[td.DomainID]})
		}
	}
	return out, nil
}

func (r *memRepo) VerifyTrackedDomain(ctx context.Context, id uuid.UUID, method model.VerificationMethod) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	td := r.tracked[id]
	td.Verified = true
	td.VerificationMethod = &method
	td.VerificationStatus = model.StatusVerified
	return nil
}

func (r *memRepo) ArchiveTrackedDomain(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.tracked[id].ArchivedAt = &now
	return nil
}

func (r *memRepo) UpdateNotificationOverrides(ctx context.Context, id uuid.UUID, overrides model.NotificationOverrides) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracked[id].NotificationOverrides = overrides
	return nil
}

type scriptedVerifier struct {
	result model.VerificationResult
}

func (v *scriptedVerifier) Verify(ctx context.Context, domain, token string, method model.VerificationMethod) model.VerificationResult {
	return v.result
}

func (v *scriptedVerifier) TryAll(ctx context.Context, domain, token string) model.VerificationResult {
	return v.result
}

type noopNotifier struct{}

func (noopNotifier) NotifyVerificationFailing(ctx context.Context, view *model.TrackedDomainView) error {
	return nil
}

func (noopNotifier) NotifyVerificationRevoked(ctx context.Context, view *model.TrackedDomainView) error {
	return nil
}

func newTestRouter(verifier *scriptedVerifier) (*gin.Engine, uuid.UUID) {
	gin.SetMode(gin.TestMode)
	userID := uuid.New()

	svc := domainService.NewService(newMemRepo(), verifier, noopNotifier{}, 3, logger.NewLogger(nil))
	h := NewHandler(svc)

	engine := gin.New()
	api := engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID.String())
		c.Next()
	})
	h.RegisterRoutes(api)
	return engine, userID
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp struct {
		Status string                 `json:"status"`
		Data   map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Data
}

func TestAddDomainEndpoint(t *testing.T) {
	engine, _ := newTestRouter(&scriptedVerifier{})

	w := doJSON(t, engine, http.MethodPost, "/api/v1/domains", map[string]string{"domain": "example.com"})
	require.Equal(t, http.StatusCreated, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, "example.com", data["domain"])
	assert.Len(t, data["verification_token"], 32)
	assert.Equal(t, false, data["resumed"])
	assert.NotNil(t, data["instructions"])
}

func TestAddDomainEndpointResumeReturns200(t *testing.T) {
	engine, _ := newTestRouter(&scriptedVerifier{})

	first := doJSON(t, engine, http.MethodPost, "/api/v1/domains", map[string]string{"domain": "example.com"})
	require.Equal(t, http.StatusCreated, first.Code)
	firstToken := decodeData(t, first)["verification_token"]

	second := doJSON(t, engine, http.MethodPost, "/api/v1/domains", map[string]string{"domain": "example.com"})
	require.Equal(t, http.StatusOK, second.Code)

	data := decodeData(t, second)
	assert.Equal(t, true, data["resumed"])
	assert.Equal(t, firstToken, data["verification_token"])
}

func TestAddDomainEndpointInvalidName(t *testing.T) {
	engine, _ := newTestRouter(&scriptedVerifier{})

	w := doJSON(t, engine, http.MethodPost, "/api/v1/domains", map[string]string{"domain": "not a domain"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddDomainEndpointLimit(t *testing.T) {
	engine, _ := newTestRouter(&scriptedVerifier{})

	for _, name := range []string{"a.com", "b.com", "c.com"} {
		w := doJSON(t, engine, http.MethodPost, "/api/v1/domains", map[string]string{"domain": name})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSON(t, engine, http.MethodPost, "/api/v1/domains", map[string]string{"domain": "d.com"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAddDomainEndpointVerifiedConflict(t *testing.T) {
	verifier := &scriptedVerifier{result: model.VerificationResult{Verified: true, Method: model.MethodDNSTxt}}
	engine, _ := newTestRouter(verifier)

	created := doJSON(t, engine, http.MethodPost, "/api/v1/domains", map[string]string{"domain": "example.com"})
	require.Equal(t, http.StatusCreated, created.Code)
	id := decodeData(t, created)["id"].(string)

	verified := doJSON(t, engine, http.MethodPost, "/api/v1/domains/"+id+"/verify", nil)
	require.Equal(t, http.StatusOK, verified.Code)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/domains", map[string]string{"domain": "example.com"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestVerifyEndpointNegativeIs200(t *testing.T) {
	engine, _ := newTestRouter(&scriptedVerifier{})

	created := doJSON(t, engine, http.MethodPost, "/api/v1/domains", map[string]string{"domain": "example.com"})
	id := decodeData(t, created)["id"].(string)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/domains/"+id+"/verify", nil)
	require.Equal(t, http.StatusOK, w.Code, "a failed check is a result, not a server error")

	data := decodeData(t, w)
	assert.Equal(t, false, data["verified"])
	assert.NotEmpty(t, data["error"])
}

func TestVerifyEndpointExplicitMethod(t *testing.T) {
	verifier := &scriptedVerifier{result: model.VerificationResult{Verified: true, Method: model.MethodMetaTag}}
	engine, _ := newTestRouter(verifier)

	created := doJSON(t, engine, http.MethodPost, "/api/v1/domains", map[string]string{"domain": "example.com"})
	id := decodeData(t, created)["id"].(string)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/domains/"+id+"/verify", map[string]string{"method": "meta_tag"})
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, true, data["verified"])
	assert.Equal(t, "meta_tag", data["method"])
}

func TestVerifyEndpointBadID(t *testing.T) {
	engine, _ := newTestRouter(&scriptedVerifier{})

	w := doJSON(t, engine, http.MethodPost, "/api/v1/domains/not-a-uuid/verify", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyEndpointUnknownClaim(t *testing.T) {
	engine, _ := newTestRouter(&scriptedVerifier{})

	w := doJSON(t, engine, http.MethodPost, "/api/v1/domains/"+uuid.NewString()+"/verify", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInstructionsEndpoint(t *testing.T) {
	engine, _ := newTestRouter(&scriptedVerifier{})

	created := doJSON(t, engine, http.MethodPost, "/api/v1/domains", map[string]string{"domain": "example.com"})
	id := decodeData(t, created)["id"].(string)

	w := doJSON(t, engine, http.MethodGet, "/api/v1/domains/"+id+"/instructions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	dns := data["dns_txt"].(map[string]interface{})
	assert.Equal(t, "example.com", dns["host"])
	assert.Equal(t, "TXT", dns["record_type"])
}

func TestArchiveEndpoint(t *testing.T) {
	engine, _ := newTestRouter(&scriptedVerifier{})

	created := doJSON(t, engine, http.MethodPost, "/api/v1/domains", map[string]string{"domain": "example.com"})
	id := decodeData(t, created)["id"].(string)

	w := doJSON(t, engine, http.MethodDelete, "/api/v1/domains/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Archived claims disappear from the list.
	list := doJSON(t, engine, http.MethodGet, "/api/v1/domains", nil)
	require.Equal(t, http.StatusOK, list.Code)
	var resp struct {
		Data []interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &resp))
	assert.Empty(t, resp.Data)
}

func TestOverridesEndpoint(t *testing.T) {
	engine, _ := newTestRouter(&scriptedVerifier{})

	created := doJSON(t, engine, http.MethodPost, "/api/v1/domains", map[string]string{"domain": "example.com"})
	id := decodeData(t, created)["id"].(string)

	w := doJSON(t, engine, http.MethodPatch, "/api/v1/domains/"+id+"/notifications", map[string]interface{}{
		"overrides": map[string]bool{"domain_expiry": false},
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEndpointsRequireAuthenticatedUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := domainService.NewService(newMemRepo(), &scriptedVerifier{}, noopNotifier{}, 3, logger.NewLogger(nil))
	engine := gin.New()
	NewHandler(svc).RegisterRoutes(engine.Group("/api/v1"))

	w := doJSON(t, engine, http.MethodPost, "/api/v1/domains", map[string]string{"domain": "example.com"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
