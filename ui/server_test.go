package ui

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"gorecal/adapters/registry"
	"gorecal/adapters/rng"
	"gorecal/app"
	"gorecal/domain/core"
	"gorecal/domain/ensemble"
	"gorecal/domain/forensic"
	"gorecal/internal/api"
	"gorecal/internal/report"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeMutations struct {
	events []*ensemble.MutationEvent
}

func (f *fakeMutations) SaveMutation(ctx context.Context, event *ensemble.MutationEvent) error {
	f.events = append([]*ensemble.MutationEvent{event}, f.events...)
	return nil
}

func (f *fakeMutations) GetMutation(ctx context.Context, id core.MutationID) (*ensemble.MutationEvent, error) {
	for _, m := range f.events {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, core.ErrEntryNotFound
}

func (f *fakeMutations) ListMutations(ctx context.Context, limit int) ([]*ensemble.MutationEvent, error) {
	if limit > len(f.events) {
		limit = len(f.events)
	}
	return f.events[:limit], nil
}

func (f *fakeMutations) ListMutationsBySource(ctx context.Context, source core.SourceID, limit int) ([]*ensemble.MutationEvent, error) {
	var out []*ensemble.MutationEvent
	for _, m := range f.events {
		for _, adj := range m.Adjustments {
			if adj.SourceID == source {
				out = append(out, m)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeMutations) CountMutations(ctx context.Context) (int, error) {
	return len(f.events), nil
}

type serverFixture struct {
	server    *Server
	monitor   *app.MonitorService
	reweight  *app.ReweightService
	forensic  *app.ForensicService
	mutations *fakeMutations
}

func testTable(t *testing.T) *ensemble.ClassificationTable {
	t.Helper()
	table, err := ensemble.NewClassificationTable(map[core.SourceID]ensemble.SourceClass{
		"rates-desk":     ensemble.ClassEndogenous,
		"macro-feed":     ensemble.ClassEndogenous,
		"sentiment-wire": ensemble.ClassExogenous,
		"chain-oracle":   ensemble.ClassExogenous,
	})
	if err != nil {
		t.Fatalf("Failed to build classification table: %v", err)
	}
	return table
}

func testServer(t *testing.T) *serverFixture {
	t.Helper()

	table := testTable(t)
	reg := registry.NewMemoryRegistry()
	mutations := &fakeMutations{}

	forensicSvc := app.NewForensicService(reg, nil, table, nil)

	reweightSvc, err := app.NewReweightService(app.DefaultReweightConfig(), table, reg,
		rng.NewSeededAdapter(42), mutations, forensicSvc, nil)
	if err != nil {
		t.Fatalf("Failed to build reweight service: %v", err)
	}

	monitorSvc, err := app.NewMonitorService(app.DefaultMonitorConfig(), reg)
	if err != nil {
		t.Fatalf("Failed to build monitor service: %v", err)
	}

	gate, err := app.NewAdmissionGate(table, reg)
	if err != nil {
		t.Fatalf("Failed to build admission gate: %v", err)
	}

	server := NewServer(Deps{
		Monitor:   monitorSvc,
		Reweight:  reweightSvc,
		Forensic:  forensicSvc,
		Admission: gate,
		Reports:   report.NewGenerator(mutations, forensicSvc, reweightSvc, monitorSvc),
		Hub:       api.NewSSEHub(),
		Evidence:  api.NewEvidenceHandler(forensicSvc, nil, mutations),
		Mutations: mutations,
	})

	return &serverFixture{
		server:    server,
		monitor:   monitorSvc,
		reweight:  reweightSvc,
		forensic:  forensicSvc,
		mutations: mutations,
	}
}

func doJSON(t *testing.T, server *Server, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		body = bytes.NewBuffer(data)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, body)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestRegisterAndFetchPrediction(t *testing.T) {
	f := testServer(t)

	w := doJSON(t, f.server, http.MethodPost, "/api/predictions", map[string]interface{}{
		"state":       []float64{1, 0, 1},
		"dim":         2,
		"model_id":    "model-a",
		"source_path": "signals/rates/state",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatal("Expected a prediction id in the response")
	}
	if horizons, ok := body["horizons"].([]interface{}); !ok || len(horizons) != 3 {
		t.Errorf("Expected 3 default horizons, got %v", body["horizons"])
	}

	w = doJSON(t, f.server, http.MethodGet, "/api/predictions/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 fetching prediction, got %d", w.Code)
	}

	w = doJSON(t, f.server, http.MethodGet, "/api/predictions", nil)
	body = decodeBody(t, w)
	if count, _ := body["count"].(float64); count != 1 {
		t.Errorf("Expected 1 live prediction, got %v", body["count"])
	}
}

func TestRegisterPredictionRejectsBadState(t *testing.T) {
	f := testServer(t)

	w := doJSON(t, f.server, http.MethodPost, "/api/predictions", map[string]interface{}{
		"state":       []float64{1, 0},
		"dim":         2,
		"source_path": "signals/rates/state",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for wrong packed length, got %d", w.Code)
	}
}

func TestGetPredictionNotFound(t *testing.T) {
	f := testServer(t)

	w := doJSON(t, f.server, http.MethodGet, "/api/predictions/ghost", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", w.Code)
	}
}

func TestEvaluatePrediction(t *testing.T) {
	f := testServer(t)

	w := doJSON(t, f.server, http.MethodPost, "/api/predictions", map[string]interface{}{
		"state":       []float64{1, 0, 1},
		"dim":         2,
		"source_path": "signals/rates/state",
	})
	id := decodeBody(t, w)["id"].(string)

	w = doJSON(t, f.server, http.MethodPost, "/api/predictions/"+id+"/evaluate", map[string]interface{}{
		"horizon": "T+1",
		"actual":  []float64{4, 0, 4},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if failure, _ := body["is_failure"].(bool); !failure {
		t.Errorf("Expected a failure outcome, got %v", body)
	}
	if distance, _ := body["distance"].(float64); distance <= 0.3 {
		t.Errorf("Expected distance above T+1 threshold, got %v", distance)
	}
}

func TestEvaluateUnknownPrediction(t *testing.T) {
	f := testServer(t)

	w := doJSON(t, f.server, http.MethodPost, "/api/predictions/ghost/evaluate", map[string]interface{}{
		"horizon": "T+1",
		"actual":  []float64{1, 0, 1},
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for unknown prediction, got %d", w.Code)
	}
}

func TestEvaluateRejectsMalformedHorizon(t *testing.T) {
	f := testServer(t)

	w := doJSON(t, f.server, http.MethodPost, "/api/predictions/any/evaluate", map[string]interface{}{
		"horizon": "soon",
		"actual":  []float64{1, 0, 1},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for malformed horizon, got %d", w.Code)
	}
}

func TestAdmitObservation(t *testing.T) {
	f := testServer(t)

	w := doJSON(t, f.server, http.MethodPost, "/api/observations", map[string]interface{}{
		"path":             "signals/rates/state",
		"value":            []float64{4, 1, 3},
		"kind":             "matrix",
		"source_id":        "rates-desk",
		"model_id":         "model-a",
		"regime_id":        "calm",
		"confidence_lower": 0.2,
		"confidence_upper": 0.8,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAdmitObservationRejectsUnknownSource(t *testing.T) {
	f := testServer(t)

	w := doJSON(t, f.server, http.MethodPost, "/api/observations", map[string]interface{}{
		"path":             "signals/rogue/state",
		"value":            1.0,
		"source_id":        "rogue-feed",
		"confidence_lower": 0.2,
		"confidence_upper": 0.8,
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422 for unknown source, got %d", w.Code)
	}
}

func TestAdmitObservationRejectsInvertedConfidence(t *testing.T) {
	f := testServer(t)

	w := doJSON(t, f.server, http.MethodPost, "/api/observations", map[string]interface{}{
		"path":             "signals/rates/state",
		"value":            1.0,
		"source_id":        "rates-desk",
		"confidence_lower": 0.9,
		"confidence_upper": 0.1,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for inverted interval, got %d", w.Code)
	}
}

func TestAdmitObservationRejectsUnknownKind(t *testing.T) {
	f := testServer(t)

	w := doJSON(t, f.server, http.MethodPost, "/api/observations", map[string]interface{}{
		"path":             "signals/rates/state",
		"value":            1.0,
		"kind":             "tensor",
		"source_id":        "rates-desk",
		"confidence_lower": 0.2,
		"confidence_upper": 0.8,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for unknown kind, got %d", w.Code)
	}
}

func TestGetWeights(t *testing.T) {
	f := testServer(t)

	w := doJSON(t, f.server, http.MethodGet, "/api/weights", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	share, _ := body["exogenous_share"].(float64)
	if share > ensemble.DefaultExogenousCap+ensemble.CapEpsilon {
		t.Errorf("Exogenous share %v exceeds cap", share)
	}
}

func TestApplyDecayEndpoint(t *testing.T) {
	f := testServer(t)

	w := doJSON(t, f.server, http.MethodPost, "/api/weights/decay", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if f.forensic.ChainLength() != 1 {
		t.Errorf("Expected decay to seal one entry, got %d", f.forensic.ChainLength())
	}
}

func TestSetCapEndpoint(t *testing.T) {
	f := testServer(t)

	w := doJSON(t, f.server, http.MethodPost, "/api/weights/cap", map[string]interface{}{"cap": 0.10})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if share := f.reweight.Weights().ExogenousSum(); share > 0.10+ensemble.CapEpsilon {
		t.Errorf("Expected share under new cap, got %v", share)
	}
}

func TestSetCapRejectsInvalid(t *testing.T) {
	f := testServer(t)

	w := doJSON(t, f.server, http.MethodPost, "/api/weights/cap", map[string]interface{}{"cap": 1.5})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for cap outside [0,1], got %d", w.Code)
	}
}

func sealOne(t *testing.T, f *serverFixture) *forensic.SealedEntry {
	t.Helper()
	entry, err := f.forensic.SealDecision(context.Background(), "decision-1",
		map[string]interface{}{"action": "test"}, f.reweight.Weights())
	if err != nil {
		t.Fatalf("Failed to seal entry: %v", err)
	}
	return entry
}

func TestChainEndpoints(t *testing.T) {
	f := testServer(t)
	entry := sealOne(t, f)

	w := doJSON(t, f.server, http.MethodGet, "/api/chain", nil)
	body := decodeBody(t, w)
	if length, _ := body["length"].(float64); length != 1 {
		t.Fatalf("Expected chain length 1, got %v", body["length"])
	}

	w = doJSON(t, f.server, http.MethodGet, "/api/chain/0", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for entry 0, got %d", w.Code)
	}
	body = decodeBody(t, w)
	if hash, _ := body["hash"].(string); hash != entry.Hash.String() {
		t.Errorf("Expected hash %s, got %v", entry.Hash, body["hash"])
	}

	w = doJSON(t, f.server, http.MethodGet, "/api/chain/7", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for missing entry, got %d", w.Code)
	}

	w = doJSON(t, f.server, http.MethodGet, "/api/chain/export", nil)
	var doc forensic.ExportDocument
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to decode export: %v", err)
	}
	if doc.ChainLength != 1 || len(doc.Entries) != 1 {
		t.Errorf("Expected export with 1 entry, got %+v", doc)
	}
}

func TestVerifyLiveChain(t *testing.T) {
	f := testServer(t)
	sealOne(t, f)

	req, err := http.NewRequest(http.MethodPost, "/api/chain/verify", nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	w := httptest.NewRecorder()
	f.server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if valid, _ := body["valid"].(bool); !valid {
		t.Errorf("Expected live chain to verify, got %v", body)
	}
}

func TestVerifyUploadedDocumentDetectsTampering(t *testing.T) {
	f := testServer(t)
	sealOne(t, f)
	sealOne(t, f)

	doc := f.forensic.Export()
	doc.Entries[0].Nonce = "forged"

	w := doJSON(t, f.server, http.MethodPost, "/api/chain/verify", doc)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 with structured result, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if valid, _ := body["valid"].(bool); valid {
		t.Fatal("Expected tampered document to fail verification")
	}
	if index, _ := body["index"].(float64); index != 0 {
		t.Errorf("Expected first invalid index 0, got %v", body["index"])
	}
}

func TestVerifyRejectsGarbageBody(t *testing.T) {
	f := testServer(t)

	req, err := http.NewRequest(http.MethodPost, "/api/chain/verify", strings.NewReader("not json"))
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	w := httptest.NewRecorder()
	f.server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for garbage body, got %d", w.Code)
	}
}

func TestEvidenceEndpoint(t *testing.T) {
	f := testServer(t)
	sealOne(t, f)

	w := doJSON(t, f.server, http.MethodGet, "/api/chain/0/evidence", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	verification, ok := body["verification"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected verification in evidence, got %v", body)
	}
	if valid, _ := verification["valid"].(bool); !valid {
		t.Errorf("Expected entry to verify, got %v", verification)
	}
}

func TestListMutationsEndpoint(t *testing.T) {
	f := testServer(t)
	f.mutations.events = append(f.mutations.events, &ensemble.MutationEvent{
		ID:           core.MutationID(core.NewID()),
		Timestamp:    core.Now(),
		PredictionID: "pred-1",
		Adjustments:  []ensemble.WeightAdjustment{{SourceID: "macro-feed", OldWeight: 0.4, NewWeight: 0.35}},
	})

	w := doJSON(t, f.server, http.MethodGet, "/api/mutations", nil)
	body := decodeBody(t, w)
	if count, _ := body["count"].(float64); count != 1 {
		t.Errorf("Expected 1 mutation, got %v", body["count"])
	}

	w = doJSON(t, f.server, http.MethodGet, "/api/mutations?source=macro-feed", nil)
	body = decodeBody(t, w)
	if count, _ := body["count"].(float64); count != 1 {
		t.Errorf("Expected 1 mutation for macro-feed, got %v", body["count"])
	}

	w = doJSON(t, f.server, http.MethodGet, "/api/mutations?source=rates-desk", nil)
	body = decodeBody(t, w)
	if count, _ := body["count"].(float64); count != 0 {
		t.Errorf("Expected 0 mutations for rates-desk, got %v", body["count"])
	}

	w = doJSON(t, f.server, http.MethodGet, "/api/mutations?limit=bogus", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad limit, got %d", w.Code)
	}
}

func TestLatestReportEndpoint(t *testing.T) {
	f := testServer(t)

	w := doJSON(t, f.server, http.MethodGet, "/api/report/latest", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Expected HTML content type, got %s", ct)
	}
	if !strings.Contains(w.Body.String(), "Recalibration Audit Report") {
		t.Error("Expected rendered report title in body")
	}
}

func TestAdminEndpoints(t *testing.T) {
	f := testServer(t)
	admin := NewAdminServer(nil, f.forensic, f.monitor, f.reweight)

	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	admin.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 from healthz, got %d", w.Code)
	}

	req, _ = http.NewRequest(http.MethodGet, "/readyz", nil)
	w = httptest.NewRecorder()
	admin.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected ready with intact chain, got %d", w.Code)
	}

	sealOne(t, f)
	req, _ = http.NewRequest(http.MethodGet, "/status", nil)
	w = httptest.NewRecorder()
	admin.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 from status, got %d", w.Code)
	}

	var status map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if length, _ := status["chain_length"].(float64); length != 1 {
		t.Errorf("Expected chain length 1, got %v", status["chain_length"])
	}
	if sources, _ := status["source_count"].(float64); sources != 4 {
		t.Errorf("Expected 4 sources, got %v", status["source_count"])
	}
}
