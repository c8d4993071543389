package reflection

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/timemachine/backend/internal/model/scenario"
	"github.com/zhouzirui/timemachine/backend/internal/service/reasoning"
	"github.com/zhouzirui/timemachine/backend/internal/service/session"
)

type silentReasoner struct{ *reasoning.HeuristicEngine }

func (silentReasoner) GenerateAnalysis(context.Context, reasoning.AnalysisRequest) (reasoning.Analysis, error) {
	return reasoning.Analysis{}, reasoning.ErrUnavailable
}

func setupRouter(t *testing.T, reasoner reasoning.Client) (*chi.Mux, *scenario.MemoryStore, string) {
	t.Helper()
	store := scenario.NewMemoryStore()
	svc := session.NewService(store, reasoner, session.Config{}, nil)
	created, err := svc.CreateSession(context.Background(), scenario.Rules{
		SceneDescription: "meeting",
		CoreEmotion:      scenario.CoreAnger,
		ActorName:        "Kim",
		ActorRules:       "#cold",
	})
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if _, err := svc.SubmitTurn(context.Background(), created.ID, "I'm sorry"); err != nil {
		t.Fatalf("SubmitTurn err: %v", err)
	}

	r := chi.NewRouter()
	New(svc, nil).RegisterRoutes(r)
	return r, store, created.ID
}

func saveReflection(r http.Handler, id, text string) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(map[string]string{"user_reflection": text})
	req := httptest.NewRequest(http.MethodPost, "/reflect/"+id+"/save", bytes.NewReader(payload))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestSaveReflection(t *testing.T) {
	r, store, id := setupRouter(t, reasoning.NewHeuristicEngine())

	if resp := saveReflection(r, id, "I should have called ahead"); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp := saveReflection(r, id, "I should have called ahead"); resp.Code != http.StatusOK {
		t.Fatalf("expected repeated save to succeed, got %d", resp.Code)
	}

	sess, _ := store.Get(context.Background(), id)
	if sess.Reflection != "I should have called ahead" {
		t.Fatalf("unexpected reflection %q", sess.Reflection)
	}
	if sess.Phase != scenario.PhaseReflecting {
		t.Fatalf("expected reflecting, got %s", sess.Phase)
	}
}

func TestSaveReflectionValidation(t *testing.T) {
	r, _, id := setupRouter(t, reasoning.NewHeuristicEngine())

	if resp := saveReflection(r, id, ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if resp := saveReflection(r, "missing", "thoughts"); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestGuideAndReport(t *testing.T) {
	r, store, id := setupRouter(t, reasoning.NewHeuristicEngine())
	saveReflection(r, id, "I should have called ahead")

	req := httptest.NewRequest(http.MethodGet, "/reflect/"+id, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("guide: expected 200, got %d", resp.Code)
	}
	var guide map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body.Bytes(), &guide); err != nil {
		t.Fatalf("decode guide: %v", err)
	}
	if len(guide["reflection_guide"]) == 0 {
		t.Fatal("expected reflection_guide")
	}

	req = httptest.NewRequest(http.MethodGet, "/report/"+id, nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("report: expected 200, got %d", resp.Code)
	}
	var body struct {
		Report reasoning.Report `json:"report"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if body.Report.Summary == "" || len(body.Report.LearningPoints) == 0 {
		t.Fatalf("unexpected report %+v", body.Report)
	}

	sess, _ := store.Get(context.Background(), id)
	if sess.Phase != scenario.PhaseReported {
		t.Fatalf("expected reported, got %s", sess.Phase)
	}
}

func TestReportReasonerDown(t *testing.T) {
	r, store, id := setupRouter(t, silentReasoner{reasoning.NewHeuristicEngine()})

	req := httptest.NewRequest(http.MethodGet, "/report/"+id, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}

	sess, _ := store.Get(context.Background(), id)
	if sess.Phase != scenario.PhaseActive {
		t.Fatalf("expected phase to stay active, got %s", sess.Phase)
	}
}
