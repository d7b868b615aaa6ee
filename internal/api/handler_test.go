package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "scrumdeck/internal/db"
	"scrumdeck/internal/db/repository"
	"scrumdeck/internal/domain"
	"scrumdeck/internal/middleware"
	"scrumdeck/internal/service"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	writeDB, _ := internaldb.OpenTestSQLite(t)

	store := repository.NewDelegationRepo(writeDB)
	sprints := repository.NewSprintRepo(writeDB)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	audit := service.NewAuditTrail(repository.NewAuditRepo(writeDB), logger)
	engine := service.NewAuthorizationEngine(store, domain.DefaultCatalog(), service.NewScopeResolver(sprints), audit, logger)

	return NewHandler(engine, sprints, logger).Routes()
}

// do performs a request with the given actor already authenticated.
func do(t *testing.T, h http.Handler, actor domain.Actor, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(middleware.WithActor(context.Background(), actor))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeDelegation(t *testing.T, rec *httptest.ResponseRecorder) domain.Delegation {
	t.Helper()
	var d domain.Delegation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&d))
	return d
}

var (
	alice = domain.Actor{Name: "alice"}
	admin = domain.Actor{Name: "root", Admin: true}
)

func createPayload() map[string]any {
	return map[string]any{
		"agentType":   "product_owner",
		"permissions": []string{"canCreateBacklogItems"},
		"scope":       map[string]any{"type": "global"},
		"limits": map[string]any{
			"maxActions":         2,
			"maxCostPerAction":   "1.0",
			"maxConcurrentTasks": 1,
		},
	}
}

func TestHandler_CreateAndGet(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h, alice, http.MethodPost, "/delegations", createPayload())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeDelegation(t, rec)
	assert.Equal(t, "alice", created.PrincipalID)
	assert.Equal(t, domain.StatusActive, created.Status)

	rec = do(t, h, alice, http.MethodGet, "/delegations/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decodeDelegation(t, rec).ID)

	// Another principal gets 403, unknown id gets 404.
	rec = do(t, h, domain.Actor{Name: "mallory"}, http.MethodGet, "/delegations/"+created.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, h, alice, http.MethodGet, "/delegations/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Create_Invalid(t *testing.T) {
	h := newTestHandler(t)

	payload := createPayload()
	payload["permissions"] = []string{}
	rec := do(t, h, alice, http.MethodPost, "/delegations", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	payload = createPayload()
	payload["scope"] = map[string]any{"type": "product"}
	rec = do(t, h, alice, http.MethodPost, "/delegations", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_CheckFlow(t *testing.T) {
	h := newTestHandler(t)

	created := decodeDelegation(t, do(t, h, alice, http.MethodPost, "/delegations", createPayload()))
	checkBody := map[string]any{
		"permission": "canCreateBacklogItems",
		"scope":      map[string]any{"type": "global"},
		"cost":       "0.5",
	}

	rec := do(t, h, alice, http.MethodPost, "/delegations/"+created.ID+"/check", checkBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp checkResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "allow", resp.Decision)
	require.NotNil(t, resp.Delegation)
	assert.Equal(t, int64(1), resp.Delegation.Usage.ActionsPerformed)

	rec = do(t, h, alice, http.MethodPost, "/delegations/"+created.ID+"/release", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Second reservation consumes the budget; the third is a quota denial.
	rec = do(t, h, alice, http.MethodPost, "/delegations/"+created.ID+"/check", checkBody)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, alice, http.MethodPost, "/delegations/"+created.ID+"/release", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, alice, http.MethodPost, "/delegations/"+created.ID+"/check", checkBody)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "deny", resp.Decision)
	assert.Equal(t, "quota_exceeded:max_actions", resp.Reason)

	// Permission not granted maps to 403.
	checkBody["permission"] = "canCloseSprints"
	rec = do(t, h, alice, http.MethodPost, "/delegations/"+created.ID+"/check", checkBody)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_LifecycleEndpoints(t *testing.T) {
	h := newTestHandler(t)
	created := decodeDelegation(t, do(t, h, alice, http.MethodPost, "/delegations", createPayload()))

	rec := do(t, h, alice, http.MethodPut, "/delegations/"+created.ID+"/suspend", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusSuspended, decodeDelegation(t, rec).Status)

	// Suspended delegations deny checks with 403.
	rec = do(t, h, alice, http.MethodPost, "/delegations/"+created.ID+"/check", map[string]any{
		"permission": "canCreateBacklogItems",
		"scope":      map[string]any{"type": "global"},
		"cost":       "0.1",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, alice, http.MethodPut, "/delegations/"+created.ID+"/reactivate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusActive, decodeDelegation(t, rec).Status)

	rec = do(t, h, alice, http.MethodDelete, "/delegations/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusRevoked, decodeDelegation(t, rec).Status)

	// Reactivating a revoked delegation is rejected.
	rec = do(t, h, alice, http.MethodPut, "/delegations/"+created.ID+"/reactivate", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Purge: owner 403, admin 400 until retention elapses.
	rec = do(t, h, alice, http.MethodDelete, "/delegations/"+created.ID+"/purge", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, h, admin, http.MethodDelete, "/delegations/"+created.ID+"/purge", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_List(t *testing.T) {
	h := newTestHandler(t)

	do(t, h, alice, http.MethodPost, "/delegations", createPayload())
	do(t, h, alice, http.MethodPost, "/delegations", createPayload())

	rec := do(t, h, alice, http.MethodGet, "/delegations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp listResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(2), resp.Total)
	assert.Equal(t, int64(2), resp.Summary.Active)

	rec = do(t, h, alice, http.MethodGet, "/delegations?status=suspended", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(0), resp.Total)

	rec = do(t, h, alice, http.MethodGet, "/delegations?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Permissions(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h, alice, http.MethodGet, "/permissions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Permissions []domain.CatalogEntry `json:"permissions"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.Permissions)
}

func TestHandler_RegisterSprint(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h, alice, http.MethodPost, "/sprints", map[string]any{"id": "S1", "productId": "P1"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, alice, http.MethodPost, "/sprints", map[string]any{"id": "S1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// With ownership registered, a sprint-scoped check against the owning
	// product's delegation is allowed.
	payload := createPayload()
	payload["scope"] = map[string]any{"type": "product", "productId": "P1"}
	created := decodeDelegation(t, do(t, h, alice, http.MethodPost, "/delegations", payload))

	rec = do(t, h, alice, http.MethodPost, "/delegations/"+created.ID+"/check", map[string]any{
		"permission": "canCreateBacklogItems",
		"scope":      map[string]any{"type": "sprint", "sprintId": "S1"},
		"cost":       "0.1",
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
