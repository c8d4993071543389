package scenario

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	scenarioModel "github.com/zhouzirui/timemachine/backend/internal/model/scenario"
	"github.com/zhouzirui/timemachine/backend/internal/service/reasoning"
	"github.com/zhouzirui/timemachine/backend/internal/service/session"
)

type downReasoner struct{ *reasoning.HeuristicEngine }

func (downReasoner) StartSimulation(context.Context, scenarioModel.Rules) (reasoning.Opening, error) {
	return reasoning.Opening{}, reasoning.ErrUnavailable
}

func setupRouter(reasoner reasoning.Client) (*chi.Mux, *scenarioModel.MemoryStore, *session.Service) {
	store := scenarioModel.NewMemoryStore()
	svc := session.NewService(store, reasoner, session.Config{}, nil)
	handler := New(svc, nil)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, store, svc
}

func createBody() []byte {
	payload, _ := json.Marshal(map[string]string{
		"scene_description": "Arrived 30 minutes late to a team meeting",
		"core_emotion":      "분노",
		"actor_name":        "Kim",
		"actor_rules":       "#cold #authoritative",
	})
	return payload
}

func TestCreateScenario(t *testing.T) {
	r, store, _ := setupRouter(reasoning.NewHeuristicEngine())

	req := httptest.NewRequest(http.MethodPost, "/scenario/create", bytes.NewReader(createBody()))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var body createResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.ScenarioID == "" || body.InitialMessage == "" {
		t.Fatalf("unexpected body %+v", body)
	}

	sess, err := store.Get(context.Background(), body.ScenarioID)
	if err != nil {
		t.Fatalf("session not stored: %v", err)
	}
	if sess.Rules.CoreEmotion != scenarioModel.CoreAnger {
		t.Fatalf("expected alias to normalise to anger, got %s", sess.Rules.CoreEmotion)
	}
}

func TestCreateScenarioMissingField(t *testing.T) {
	r, store, _ := setupRouter(reasoning.NewHeuristicEngine())

	req := httptest.NewRequest(http.MethodPost, "/scenario/create", bytes.NewReader([]byte(`{"scene_description":"x"}`)))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if store.Len() != 0 {
		t.Fatalf("expected no session to be stored, got %d", store.Len())
	}
}

func TestCreateScenarioInvalidJSON(t *testing.T) {
	r, _, _ := setupRouter(reasoning.NewHeuristicEngine())

	req := httptest.NewRequest(http.MethodPost, "/scenario/create", bytes.NewReader([]byte(`{`)))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestCreateScenarioReasonerDown(t *testing.T) {
	r, store, _ := setupRouter(downReasoner{reasoning.NewHeuristicEngine()})

	req := httptest.NewRequest(http.MethodPost, "/scenario/create", bytes.NewReader(createBody()))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
	if store.Len() != 0 {
		t.Fatal("expected nothing stored when the engine fails")
	}
}

func TestInitialState(t *testing.T) {
	r, _, svc := setupRouter(reasoning.NewHeuristicEngine())

	created, err := svc.CreateSession(context.Background(), scenarioModel.Rules{
		SceneDescription: "meeting",
		CoreEmotion:      scenarioModel.CoreSadness,
		ActorName:        "Kim",
		ActorRules:       "#cold",
	})
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/scenario/"+created.ID+"/initial_state", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["actor_name"] != "Kim" {
		t.Fatalf("unexpected actor_name %v", body["actor_name"])
	}
	if body["initial_message"] != created.OpeningLine {
		t.Fatalf("unexpected initial_message %v", body["initial_message"])
	}
	state, ok := body["initial_state"].(map[string]any)
	if !ok || len(state) != 6 {
		t.Fatalf("expected a full six-axis state, got %v", body["initial_state"])
	}
}

func TestGetScenarioNotFound(t *testing.T) {
	r, _, _ := setupRouter(reasoning.NewHeuristicEngine())

	for _, path := range []string{"/scenario/nope", "/scenario/nope/initial_state"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)

		if resp.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, resp.Code)
		}
	}
}
