package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hvt/app"
	"hvt/internal/builtins"
	"hvt/internal/registry"
	"hvt/internal/testkit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, opts ...app.ServiceOption) *gin.Engine {
	t.Helper()
	reg := registry.New()
	require.NoError(t, builtins.RegisterBuiltinTasks(reg, ""))
	svc := app.NewVerificationService(reg, opts...)
	return NewRouter(NewHandler(svc, nil))
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w, out
}

func TestVerify(t *testing.T) {
	router := newTestRouter(t)

	w, out := doJSON(t, router, http.MethodPost, "/v1/verify", VerifyRequest{
		Task:      builtins.TaskGSM8K,
		Prompt:    "What is 5+7?",
		Candidate: "The answer is 12",
		Metadata:  map[string]any{"reference_answer": "12"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	result := out["result"].(map[string]any)
	assert.Equal(t, "PASS", result["verdict"])
	assert.Equal(t, 1.0, result["score"])
	provenance := result["provenance"].(map[string]any)
	assert.Equal(t, builtins.TaskGSM8K, provenance["task_name"])
	assert.Equal(t, false, provenance["cache_hit"])
}

func TestVerify_Errors(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{
			name:   "missing task",
			body:   map[string]any{"prompt": "p", "candidate": "c"},
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown task",
			body:   VerifyRequest{Task: "nope", Prompt: "p", Candidate: "c"},
			status: http.StatusNotFound,
			code:   "NOT_FOUND",
		},
		{
			name:   "rule failure",
			body:   VerifyRequest{Task: builtins.TaskGSM8K, Prompt: "p", Candidate: "1"},
			status: http.StatusBadRequest,
			code:   "RULE_FAILURE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, out := doJSON(t, router, http.MethodPost, "/v1/verify", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, out["error"])
			if tt.code != "" {
				assert.Equal(t, tt.code, out["code"])
			}
		})
	}
}

func TestListTasks(t *testing.T) {
	router := newTestRouter(t)

	w, out := doJSON(t, router, http.MethodGet, "/v1/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4.0, out["count"])

	tasks := out["tasks"].([]any)
	first := tasks[0].(map[string]any)
	assert.Equal(t, builtins.TaskCodeExec, first["name"])
	assert.Equal(t, 0.8, first["judge_min"])
}

func TestListDecisions(t *testing.T) {
	ledger := testkit.NewInMemoryLedger()
	router := newTestRouter(t, app.WithDecisionLedger(ledger))

	for _, candidate := range []string{"12", "13"} {
		w, _ := doJSON(t, router, http.MethodPost, "/v1/verify", VerifyRequest{
			Task:      builtins.TaskGSM8K,
			Prompt:    "What is 5+7?",
			Candidate: candidate,
			Metadata:  map[string]any{"reference_answer": "12"},
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, out := doJSON(t, router, http.MethodGet, "/v1/decisions?task="+builtins.TaskGSM8K+"&limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, out["count"])
	decision := out["decisions"].([]any)[0].(map[string]any)
	assert.Equal(t, "13", decision["candidate"])
	assert.Len(t, decision["fingerprint"], 64)

	w, _ = doJSON(t, router, http.MethodGet, "/v1/decisions?limit=-3", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListDecisions_NoLedger(t *testing.T) {
	router := newTestRouter(t)
	w, out := doJSON(t, router, http.MethodGet, "/v1/decisions", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	assert.Contains(t, out["error"], "not configured")
}
