package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/interviewd/internal/api"
	mw "github.com/kiranshivaraju/interviewd/internal/api/middleware"
	"github.com/kiranshivaraju/interviewd/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testRawKey = "ivd_router_key_1234567890"
	testSecret = "router-secret"
)

// --- stub key store: one valid key ---

type stubKeys struct {
	hash string
}

func (s *stubKeys) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	if prefix != testRawKey[:mw.KeyPrefixLen] {
		return nil, nil
	}
	return []*models.APIKey{{ID: uuid.New(), KeyHash: s.hash, KeyPrefix: prefix}}, nil
}

func (s *stubKeys) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }

// --- stub counter ---

type stubCounter struct{}

func (c *stubCounter) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

// --- router tests ---

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(testRawKey), bcrypt.MinCost)
	require.NoError(t, err)

	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(&stubKeys{hash: string(h)}),
		Actors:    mw.NewActorAuth(testSecret),
		RateLimit: mw.NewRateLimit(&stubCounter{}, 60),
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},
		MetricsHandler:   http.HandlerFunc(ok),
		GetAssignment:    ok,
		StartAssignment:  ok,
		CreateAssignment: ok,
	})
}

func actorToken(t *testing.T, role models.ActorRole) string {
	t.Helper()
	tok, err := mw.NewActorAuth(testSecret).Mint(models.Actor{ID: uuid.New(), Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func authed(t *testing.T, method, path string, role models.ActorRole) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+testRawKey)
	req.Header.Set(mw.ActorHeader, actorToken(t, role))
	return req
}

func TestRouter_PublicEndpoints(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/api/v1/health", "/metrics"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router := newTestRouter(t)
	id := uuid.NewString()

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/interviews/" + id + "/assignments"},
		{"GET", "/api/v1/interviews/" + id + "/assignments"},
		{"GET", "/api/v1/assignments/" + id},
		{"POST", "/api/v1/assignments/" + id + "/start"},
		{"POST", "/api/v1/assignments/" + id + "/submit"},
		{"GET", "/api/v1/assignments/" + id + "/answers"},
		{"GET", "/api/v1/assignments/" + id + "/history"},
		{"PUT", "/api/v1/answers/" + id + "/grade"},
		{"POST", "/api/v1/assignments/" + id + "/evaluation"},
		{"GET", "/api/v1/assignments/" + id + "/evaluation"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "INVALID_TOKEN", errObj["code"])
		})
	}
}

func TestRouter_RequiresActorToken(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/assignments/"+uuid.NewString(), nil)
	req.Header.Set("Authorization", "Bearer "+testRawKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_RoleSurfaces(t *testing.T) {
	router := newTestRouter(t)
	id := uuid.NewString()

	tests := []struct {
		name   string
		method string
		path   string
		role   models.ActorRole
		want   int
	}{
		{"candidate starts", "POST", "/api/v1/assignments/" + id + "/start", models.RoleCandidate, http.StatusOK},
		{"employer cannot start", "POST", "/api/v1/assignments/" + id + "/start", models.RoleEmployer, http.StatusForbidden},
		{"employer assigns", "POST", "/api/v1/interviews/" + id + "/assignments", models.RoleEmployer, http.StatusOK},
		{"candidate cannot assign", "POST", "/api/v1/interviews/" + id + "/assignments", models.RoleCandidate, http.StatusForbidden},
		{"candidate reads", "GET", "/api/v1/assignments/" + id, models.RoleCandidate, http.StatusOK},
		{"employer reads", "GET", "/api/v1/assignments/" + id, models.RoleEmployer, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, authed(t, tt.method, tt.path, tt.role))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRouter_UnwiredHandlerIsNotImplemented(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authed(t, "GET", "/api/v1/assignments/"+uuid.NewString()+"/history", models.RoleEmployer))

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
