package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/opsmend/opsmend/internal/admission"
	"github.com/opsmend/opsmend/internal/audit"
	"github.com/opsmend/opsmend/internal/auth"
	"github.com/opsmend/opsmend/internal/cadence"
	"github.com/opsmend/opsmend/internal/cluster"
	"github.com/opsmend/opsmend/internal/executor"
	"github.com/opsmend/opsmend/internal/metrics"
	"github.com/opsmend/opsmend/internal/rbac"
	"github.com/opsmend/opsmend/internal/scheduler"
)

type testHarness struct {
	engine *cluster.Engine
	sched  *scheduler.Scheduler
	server *httptest.Server
	token  string
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewMetricsWith(prometheus.NewRegistry())

	engine := cluster.NewEngine(24*time.Hour, m, audit.NopSink{}, logger)
	registry := rbac.NewRegistry(logger)
	gate := admission.NewGate(registry, audit.NopSink{}, admission.NopNotifier{}, m, 0.3, 0.7, logger)
	sched := scheduler.NewScheduler(gate, executor.NopExecutor{}, engine, audit.NopSink{}, m, 3, time.Minute, logger)
	cad := cadence.NewController(15*time.Second, 180*time.Second, 300*time.Second, 0.7, 0.3, logger)

	authSvc := auth.NewService("test-secret")
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	registerUser(t, authSvc, "op", string(hash), auth.RoleOperator)

	srv := httptest.NewServer(NewServer(engine, sched, gate, cad, authSvc, logger).Router())
	t.Cleanup(srv.Close)

	h := &testHarness{engine: engine, sched: sched, server: srv}
	h.token = h.login(t, "op", "pw")
	return h
}

// registerUser loads a single account through the YAML loader path
func registerUser(t *testing.T, svc *auth.Service, username, hash string, role auth.Role) {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/users.yaml"
	content := "users:\n  - username: " + username + "\n    password_hash: \"" + hash + "\"\n    role: " + string(role) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	n, err := svc.LoadUsers(path)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func (h *testHarness) login(t *testing.T, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := http.Post(h.server.URL+"/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func (h *testHarness) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthAndReady(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/healthz", "", nil)
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])

	resp = h.do(t, http.MethodGet, "/readyz", "", nil)
	body = decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ready"])
}

func TestIngestAndListClusters(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPost, "/events", "", map[string]interface{}{
		"type":     "guardian.policy_violation",
		"severity": "high",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	h.engine.ProcessPending()

	resp = h.do(t, http.MethodGet, "/clusters", "", nil)
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])

	resp = h.do(t, http.MethodGet, "/clusters/guardian:high:general", "", nil)
	cbody := decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "guardian", cbody["domain"])

	resp = h.do(t, http.MethodGet, "/clusters/nope", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIngestRejectsMissingType(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPost, "/events", "", map[string]interface{}{"severity": "high"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCommandEndpointsRequireAuth(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPost, "/clusters/x/resolve", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/clusters/x/resolve", "not-a-token", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestResolveClusterWithToken(t *testing.T) {
	h := newHarness(t)

	h.engine.Ingest("agent.timeout", nil, "medium")
	h.engine.ProcessPending()

	resp := h.do(t, http.MethodPost, "/clusters/agent:medium:general/resolve", h.token, nil)
	body := decodeBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["resolved"])

	// Second resolve conflicts.
	resp = h.do(t, http.MethodPost, "/clusters/agent:medium:general/resolve", h.token, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestMissionSuspendResumeEndpoints(t *testing.T) {
	h := newHarness(t)

	h.engine.Ingest("agent.timeout", nil, "medium")
	h.engine.ProcessPending()
	c, ok := h.engine.Get("agent:medium:general")
	require.True(t, ok)
	m := h.sched.CreateMission(c)
	require.NotNil(t, m)

	resp := h.do(t, http.MethodPost, "/missions/"+m.ID+"/suspend", h.token,
		map[string]string{"reason": "hold"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/missions/"+m.ID, "", nil)
	body := decodeBody(t, resp)
	assert.Equal(t, "suspended", body["status"])

	resp = h.do(t, http.MethodPost, "/missions/"+m.ID+"/resume", h.token, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/missions", "", nil)
	lbody := decodeBody(t, resp)
	assert.Equal(t, float64(1), lbody["count"])
}

func TestBootCompleteRequiresAdmin(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPost, "/cadence/boot-complete", h.token, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "operator role must not flip cadence")

	resp = h.do(t, http.MethodGet, "/cadence", "", nil)
	body := decodeBody(t, resp)
	assert.Equal(t, "boot", body["phase"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/metrics", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
