package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"sesame-tx/internal/attack"
	"sesame-tx/internal/catalog"
	"sesame-tx/internal/config"
	"sesame-tx/internal/models"
	"sesame-tx/internal/radio"
	"sesame-tx/internal/store"
)

// stuckRadio never drains the bit source, keeping a run alive until stopped.
type stuckRadio struct{}

func (stuckRadio) Reset() error                      { return nil }
func (stuckRadio) LoadOOKPreset([]byte) error        { return nil }
func (stuckRadio) SetFrequency(uint32) error         { return nil }
func (stuckRadio) StartAsyncTx(radio.BitSource) bool { return true }
func (stuckRadio) StopAsyncTx()                      {}
func (stuckRadio) Sleep()                            {}

type testEnv struct {
	engine *attack.Engine
	store  *store.Store
	router *mux.Router
}

func setupTestEnv(t *testing.T, tx radio.Transmitter) *testEnv {
	t.Helper()

	cfg := config.New()
	cfg.Radio.TxPollIntervalMs = 1
	cfg.Radio.TxSettleMs = 0
	cfg.Radio.InterTargetPauseMs = 0
	cfg.Attack.ReplayPauseMs = 0
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.db")

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	engine := attack.New(cfg, st, tx)
	binary := [3]uint32{0x8, 0xe, 0}
	engine.SetTargetsForTesting(catalog.Catalog{
		{Name: "alpha", FrequencyHz: 310000000, AlphabetSize: 2, DigitCount: 4,
			BitLengthPerDigit: 4, Patterns: binary, Encoding: "Binary 4-bit", UserSelectable: true},
		{Name: "sweep", Meta: catalog.MetaAllKnown, Encoding: "Sweep", UserSelectable: true},
		{Name: "wide", FrequencyHz: 310000000, AlphabetSize: 2, DigitCount: 14,
			BitLengthPerDigit: 4, Patterns: binary, Encoding: "Binary 4-bit"},
	})
	t.Cleanup(engine.Stop)

	router := mux.NewRouter()
	NewAttackHandler(engine, st).RegisterRoutes(router)
	NewTargetHandler(engine, st).RegisterRoutes(router)
	NewStatusHandler(engine, st, cfg).RegisterRoutes(router)

	return &testEnv{engine: engine, store: st, router: router}
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func waitIdle(t *testing.T, engine *attack.Engine) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for engine.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("attack run did not finish in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStartAttackDefaultMode(t *testing.T) {
	env := setupTestEnv(t, radio.NewSimulator())

	w := env.do(t, "POST", "/api/attack", models.AttackParameters{TargetIndex: 0})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}

	var progress models.AttackProgress
	if err := json.NewDecoder(w.Body).Decode(&progress); err != nil {
		t.Fatalf("failed to decode progress: %v", err)
	}
	if progress.Mode != "debruijn" {
		t.Errorf("mode = %q, want debruijn as the default", progress.Mode)
	}
	waitIdle(t, env.engine)
}

func TestStartAttackUnknownMode(t *testing.T) {
	env := setupTestEnv(t, radio.NewSimulator())

	w := env.do(t, "POST", "/api/attack", models.AttackParameters{TargetIndex: 0, Mode: "turbo"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestStartAttackMalformedBody(t *testing.T) {
	env := setupTestEnv(t, radio.NewSimulator())

	req := httptest.NewRequest("POST", "/api/attack", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestStartAttackConflict(t *testing.T) {
	env := setupTestEnv(t, stuckRadio{})

	w := env.do(t, "POST", "/api/attack", models.AttackParameters{TargetIndex: 0, Mode: "compatibility"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("first start status = %d, want 202: %s", w.Code, w.Body.String())
	}

	w = env.do(t, "POST", "/api/attack", models.AttackParameters{TargetIndex: 0, Mode: "compatibility"})
	if w.Code != http.StatusConflict {
		t.Errorf("second start status = %d, want 409", w.Code)
	}
}

func TestStartAttackReplayWithoutSavedCode(t *testing.T) {
	env := setupTestEnv(t, radio.NewSimulator())

	w := env.do(t, "POST", "/api/attack", models.AttackParameters{TargetIndex: 0, Mode: "replay"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestStartAttackKeyspaceTooLarge(t *testing.T) {
	env := setupTestEnv(t, radio.NewSimulator())

	// wide has 2^14 codes, past the de Bruijn working-set limit.
	w := env.do(t, "POST", "/api/attack", models.AttackParameters{TargetIndex: 2, Mode: "debruijn"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestStopWithoutRun(t *testing.T) {
	env := setupTestEnv(t, radio.NewSimulator())

	w := env.do(t, "POST", "/api/attack/stop", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestStopWithSave(t *testing.T) {
	env := setupTestEnv(t, stuckRadio{})

	w := env.do(t, "POST", "/api/attack", models.AttackParameters{TargetIndex: 0, Mode: "stream"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("start status = %d, want 202: %s", w.Code, w.Body.String())
	}

	// Wait for the worker to record codes before asking it to save one.
	deadline := time.Now().Add(10 * time.Second)
	for env.engine.Progress().CodesTransmitted == 0 {
		if time.Now().After(deadline) {
			t.Fatal("worker never transmitted")
		}
		time.Sleep(time.Millisecond)
	}

	w = env.do(t, "POST", "/api/attack/stop", models.StopParameters{Save: true})
	if w.Code != http.StatusOK {
		t.Fatalf("stop status = %d, want 200: %s", w.Code, w.Body.String())
	}
	waitIdle(t, env.engine)

	if _, err := env.store.LoadCode("alpha"); err != nil {
		t.Errorf("no code persisted after save-and-stop: %v", err)
	}
}

func TestAttackStatus(t *testing.T) {
	env := setupTestEnv(t, radio.NewSimulator())

	w := env.do(t, "GET", "/api/attack/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var progress models.AttackProgress
	if err := json.NewDecoder(w.Body).Decode(&progress); err != nil {
		t.Fatalf("failed to decode progress: %v", err)
	}
	if progress.Status != "idle" || progress.Running {
		t.Errorf("fresh engine progress = %+v, want idle", progress)
	}
}

func TestGetRuns(t *testing.T) {
	env := setupTestEnv(t, radio.NewSimulator())

	w := env.do(t, "POST", "/api/attack", models.AttackParameters{TargetIndex: 0, Mode: "compatibility"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("start status = %d, want 202", w.Code)
	}
	waitIdle(t, env.engine)

	w = env.do(t, "GET", "/api/runs?limit=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var runs []models.AttackRun
	if err := json.NewDecoder(w.Body).Decode(&runs); err != nil {
		t.Fatalf("failed to decode runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != "completed" {
		t.Errorf("runs = %+v, want one completed run", runs)
	}
}

func TestGetTargets(t *testing.T) {
	env := setupTestEnv(t, radio.NewSimulator())

	w := env.do(t, "GET", "/api/targets", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var infos []models.TargetInfo
	if err := json.NewDecoder(w.Body).Decode(&infos); err != nil {
		t.Fatalf("failed to decode targets: %v", err)
	}
	// wide is not selectable and hidden by default.
	if len(infos) != 2 {
		t.Fatalf("listed %d targets, want 2", len(infos))
	}
	if infos[0].Name != "alpha" || infos[0].KeyspaceSize != 16 {
		t.Errorf("first target = %+v", infos[0])
	}
	if !infos[1].Meta {
		t.Errorf("second target should be the sweep meta entry: %+v", infos[1])
	}

	w = env.do(t, "GET", "/api/targets?all=true", nil)
	if err := json.NewDecoder(w.Body).Decode(&infos); err != nil {
		t.Fatalf("failed to decode targets: %v", err)
	}
	if len(infos) != 3 {
		t.Errorf("listed %d targets with all=true, want 3", len(infos))
	}
}

func TestGetTargetByIndex(t *testing.T) {
	env := setupTestEnv(t, radio.NewSimulator())

	w := env.do(t, "GET", "/api/targets/0", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var info models.TargetInfo
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatalf("failed to decode target: %v", err)
	}
	if info.Name != "alpha" || info.FrequencyHz != 310000000 {
		t.Errorf("target = %+v", info)
	}

	for _, path := range []string{"/api/targets/99", "/api/targets/abc"} {
		if w := env.do(t, "GET", path, nil); w.Code != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want 400", path, w.Code)
		}
	}
}

func TestSavedCodeEndpoints(t *testing.T) {
	env := setupTestEnv(t, radio.NewSimulator())

	w := env.do(t, "GET", "/api/codes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var codes []models.SavedCode
	if err := json.NewDecoder(w.Body).Decode(&codes); err != nil {
		t.Fatalf("failed to decode codes: %v", err)
	}
	if len(codes) != 0 {
		t.Errorf("fresh store lists %d codes, want none", len(codes))
	}

	if err := env.store.SaveCode("alpha", 7); err != nil {
		t.Fatalf("SaveCode failed: %v", err)
	}
	w = env.do(t, "GET", "/api/codes", nil)
	if err := json.NewDecoder(w.Body).Decode(&codes); err != nil {
		t.Fatalf("failed to decode codes: %v", err)
	}
	if len(codes) != 1 || codes[0].TargetName != "alpha" || codes[0].Code != 7 {
		t.Errorf("codes = %+v", codes)
	}

	if w := env.do(t, "DELETE", "/api/codes/alpha", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", w.Code)
	}
	if w := env.do(t, "DELETE", "/api/codes/alpha", nil); w.Code != http.StatusNotFound {
		t.Errorf("repeat delete status = %d, want 404", w.Code)
	}
}

func TestSystemStatusAndHealth(t *testing.T) {
	env := setupTestEnv(t, radio.NewSimulator())

	w := env.do(t, "GET", "/api/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var status models.SystemStatus
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status.Version != Version || status.RadioBackend != "sim" || status.TargetCount != 3 {
		t.Errorf("status = %+v", status)
	}
	if status.AttackActive {
		t.Error("idle engine reported as active")
	}

	if w := env.do(t, "GET", "/api/health", nil); w.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", w.Code)
	}
}
