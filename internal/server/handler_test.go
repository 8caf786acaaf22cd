package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/syncforge/syncforge/internal/admission"
	"github.com/syncforge/syncforge/internal/auditlog"
	"github.com/syncforge/syncforge/internal/intent"
	"github.com/syncforge/syncforge/internal/nonce"
	"github.com/syncforge/syncforge/internal/sequencer"
	"github.com/syncforge/syncforge/internal/server"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type gateFunc func(string) bool

func (g gateFunc) Allowed(registry string) bool { return g(registry) }

type testEnv struct {
	router  *gin.Engine
	intents *intent.MemoryStore
	seq     *sequencer.MemorySequencer
	ledger  *auditlog.MemoryLedger
}

func newEnv(gate admission.AttestationGate) *testEnv {
	env := &testEnv{
		intents: intent.NewMemory(),
		seq:     sequencer.NewMemory(),
		ledger:  auditlog.NewMemory(),
	}
	pipeline := admission.New(env.intents, nonce.NewWindow(0), gate, env.seq, env.ledger, zap.NewNop())
	h := server.NewHandler(pipeline, env.ledger, zap.NewNop())

	env.router = gin.New()
	h.Register(env.router.Group("/api/v1"))
	return env
}

func (e *testEnv) post(t *testing.T, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/write", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func writeRequest(intentID, nonce string) map[string]any {
	return map[string]any{
		"intent_id": intentID,
		"registry":  "users",
		"actor_id":  "actor-a",
		"nonce":     nonce,
		"payload":   map[string]any{"email": "a@example.com"},
	}
}

func TestWriteSuccess(t *testing.T) {
	env := newEnv(gateFunc(func(string) bool { return true }))
	env.intents.Put(&intent.Intent{ID: "i1", Status: intent.StatusPending, Registries: []string{"users"}})
	env.seq.Provision("users")

	w := env.post(t, writeRequest("i1", "n1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["ok"] != true {
		t.Errorf("ok = %v, want true", body["ok"])
	}
	if body["seq"] != float64(1) {
		t.Errorf("seq = %v, want 1", body["seq"])
	}
}

func TestWriteMissingFields(t *testing.T) {
	env := newEnv(gateFunc(func(string) bool { return true }))

	w := env.post(t, map[string]any{"registry": "users"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestWriteUnknownIntent(t *testing.T) {
	env := newEnv(gateFunc(func(string) bool { return true }))
	env.seq.Provision("users")

	w := env.post(t, writeRequest("nope", "n1"))
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "INVALID_COMMIT_INTENT" {
		t.Errorf("error = %v, want INVALID_COMMIT_INTENT", body["error"])
	}
}

func TestWriteReplay(t *testing.T) {
	env := newEnv(gateFunc(func(string) bool { return true }))
	env.intents.Put(&intent.Intent{ID: "i1", Status: intent.StatusPending, Registries: []string{"users"}})
	env.intents.Put(&intent.Intent{ID: "i2", Status: intent.StatusPending, Registries: []string{"users"}})
	env.seq.Provision("users")

	if w := env.post(t, writeRequest("i1", "n1")); w.Code != http.StatusOK {
		t.Fatalf("first write status = %d", w.Code)
	}

	w := env.post(t, writeRequest("i2", "n1"))
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "REPLAY" {
		t.Errorf("error = %v, want REPLAY", body["error"])
	}
}

func TestWriteAttestationDeny(t *testing.T) {
	env := newEnv(gateFunc(func(string) bool { return false }))
	env.intents.Put(&intent.Intent{ID: "i1", Status: intent.StatusPending, Registries: []string{"users"}})
	env.seq.Provision("users")

	w := env.post(t, writeRequest("i1", "n1"))
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "ATTESTATION_DENY" {
		t.Errorf("error = %v, want ATTESTATION_DENY", body["error"])
	}
}

func TestWriteSequencerMissing(t *testing.T) {
	env := newEnv(gateFunc(func(string) bool { return true }))
	env.intents.Put(&intent.Intent{ID: "i1", Status: intent.StatusPending, Registries: []string{"users"}})

	w := env.post(t, writeRequest("i1", "n1"))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "SEQUENCER_MISSING" {
		t.Errorf("error = %v, want SEQUENCER_MISSING", body["error"])
	}
}

func TestAuditOverview(t *testing.T) {
	env := newEnv(gateFunc(func(string) bool { return true }))
	env.intents.Put(&intent.Intent{ID: "i1", Status: intent.StatusPending, Registries: []string{"users"}})
	env.seq.Provision("users")

	if w := env.post(t, writeRequest("i1", "n1")); w.Code != http.StatusOK {
		t.Fatalf("write status = %d", w.Code)
	}

	w := env.get(t, "/api/v1/audit/users")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["entries"] != float64(1) {
		t.Errorf("entries = %v, want 1", body["entries"])
	}
	head, _ := body["head"].(string)
	if len(head) != 64 {
		t.Errorf("head = %q, want 64 hex chars", head)
	}
}

func TestAuditOverviewEmptyRegistry(t *testing.T) {
	env := newEnv(gateFunc(func(string) bool { return true }))

	w := env.get(t, "/api/v1/audit/ghost")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["entries"] != float64(0) || body["head"] != "" {
		t.Errorf("body = %v, want 0 entries and empty head", body)
	}
}

func TestAuditEntries(t *testing.T) {
	env := newEnv(gateFunc(func(string) bool { return true }))
	env.intents.Put(&intent.Intent{ID: "i1", Status: intent.StatusPending, Registries: []string{"users"}})
	env.intents.Put(&intent.Intent{ID: "i2", Status: intent.StatusPending, Registries: []string{"users"}})
	env.seq.Provision("users")

	env.post(t, writeRequest("i1", "n1"))
	env.post(t, writeRequest("i2", "n2"))

	w := env.get(t, "/api/v1/audit/users/entries?limit=1&offset=1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	entries, _ := body["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	first, _ := entries[0].(map[string]any)
	if first["registry"] != "users" || first["action"] != "write" {
		t.Errorf("entry = %v", first)
	}
	prev, _ := first["hash_prev"].(string)
	if len(prev) != 64 {
		t.Errorf("second entry hash_prev = %q, want 64 hex chars", prev)
	}
}
