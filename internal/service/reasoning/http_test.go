package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/timemachine/backend/internal/model/emotion"
	"github.com/zhouzirui/timemachine/backend/internal/model/scenario"
)

func kimRules() scenario.Rules {
	return scenario.Rules{
		SceneDescription: "meeting",
		CoreEmotion:      scenario.CoreAnger,
		ActorName:        "Kim",
		ActorRules:       "#cold #authoritative",
	}
}

const fullState = `{"anger":30,"disgust":5,"fear":0,"joy":0,"sadness":10,"surprise":2}`

type recordedCall struct {
	path string
	body map[string]any
}

func newEngine(t *testing.T, handler func(path string, body map[string]any) (int, string)) (*HTTPClient, chan recordedCall) {
	t.Helper()
	calls := make(chan recordedCall, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		calls <- recordedCall{path: r.URL.Path, body: body}
		status, payload := handler(r.URL.Path, body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL+"/", 2*time.Second, nil), calls
}

func TestHTTPStartSimulationTranslatesFields(t *testing.T) {
	client, calls := newEngine(t, func(string, map[string]any) (int, string) {
		return http.StatusOK, `{"action":"Why are you late?","emotion_change":{"new_emotion_state":` + fullState + `},"decision_points":[]}`
	})

	opening, err := client.StartSimulation(context.Background(), kimRules())
	require.NoError(t, err)
	require.Equal(t, "Why are you late?", opening.OpeningLine)
	require.Equal(t, 30, opening.InitialState.Anger)

	require.Len(t, calls, 1)
	call := <-calls
	require.Equal(t, pathInitialSimulation, call.path)
	require.Equal(t, "meeting", call.body["scenario_description"])
	require.Equal(t, "Kim", call.body["character_name"])
	require.Equal(t, "#cold #authoritative", call.body["character_personality"])
	require.Equal(t, "anger", call.body["core_emotion"])
}

func TestHTTPContinueSimulationSendsHistory(t *testing.T) {
	client, calls := newEngine(t, func(string, map[string]any) (int, string) {
		return http.StatusOK, `{"action":"That doesn't excuse it","emotion_change":{"new_emotion_state":` + fullState + `}}`
	})

	turn := Turn{
		Rules: kimRules(),
		State: emotion.Vector{Anger: 10},
		Transcript: []scenario.Message{
			{Sender: "Kim", Text: "Why are you late?"},
			{Sender: scenario.SenderUser, Text: "I'm sorry, the bus was late"},
		},
		UserMessage: "I'm sorry, the bus was late",
	}
	result, err := client.ContinueSimulation(context.Background(), turn)
	require.NoError(t, err)
	require.Equal(t, "That doesn't excuse it", result.Reply)
	require.Equal(t, 30, result.NewState.Anger)

	call := <-calls
	body := call.body
	require.Equal(t, pathSimulation, call.path)
	require.Equal(t, "Kim: Why are you late?\nuser: I'm sorry, the bus was late", body["conversation_history"])
	require.Equal(t, "I'm sorry, the bus was late", body["user_input"])
	require.Equal(t, "", body["thought_process"])
	state, ok := body["current_character_emotions"].(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, 10, state["anger"])
	require.Len(t, state, len(emotion.Axes()))
}

func TestHTTPAnalysisAlwaysSendsReflection(t *testing.T) {
	client, calls := newEngine(t, func(string, map[string]any) (int, string) {
		return http.StatusOK, `{"analysis_result":{"summary":"ok","emotion_trend":"up","learning_points":["a"],"next_steps":"b"}}`
	})

	analysis, err := client.GenerateAnalysis(context.Background(), AnalysisRequest{
		Kind:  KindFinalReport,
		Rules: kimRules(),
	})
	require.NoError(t, err)
	report, ok := analysis.Report()
	require.True(t, ok)
	require.Equal(t, "ok", report.Summary)

	body := (<-calls).body
	require.Equal(t, "final_report", body["analysis_type"])
	reflection, present := body["user_reflection"]
	require.True(t, present)
	require.Equal(t, "", reflection)
	require.Contains(t, body, "initial_state")
	require.Contains(t, body, "final_state")
}

func TestHTTPAnalysisKeepsResultVerbatim(t *testing.T) {
	client, _ := newEngine(t, func(string, map[string]any) (int, string) {
		return http.StatusOK, `{"analysis_result":"Think about the first minute."}`
	})

	analysis, err := client.GenerateAnalysis(context.Background(), AnalysisRequest{Kind: KindReflectionGuide, Rules: kimRules()})
	require.NoError(t, err)
	require.JSONEq(t, `"Think about the first minute."`, string(analysis.Result))
	text, ok := analysis.Text()
	require.True(t, ok)
	require.Equal(t, "Think about the first minute.", text)
}

func TestHTTPFailuresAreUnavailable(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"server error":    {http.StatusInternalServerError, `{"detail":"boom"}`},
		"validation":      {http.StatusUnprocessableEntity, `{"detail":[]}`},
		"not json":        {http.StatusOK, `<html>`},
		"missing action":  {http.StatusOK, `{"emotion_change":{"new_emotion_state":` + fullState + `}}`},
		"missing state":   {http.StatusOK, `{"action":"hi"}`},
		"partial state":   {http.StatusOK, `{"action":"hi","emotion_change":{"new_emotion_state":{"anger":1}}}`},
		"null state":      {http.StatusOK, `{"action":"hi","emotion_change":{"new_emotion_state":null}}`},
		"empty emotion":   {http.StatusOK, `{"action":"hi","emotion_change":{}}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			client, _ := newEngine(t, func(string, map[string]any) (int, string) { return tc.status, tc.body })
			_, err := client.ContinueSimulation(context.Background(), Turn{Rules: kimRules(), UserMessage: "hi"})
			require.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestHTTPEmptyAnalysisIsNotSuccess(t *testing.T) {
	for _, body := range []string{`{}`, `{"analysis_result":null}`, `{"analysis_result":""}`, `{"analysis_result":{}}`, `{"analysis_result":42}`} {
		client, _ := newEngine(t, func(string, map[string]any) (int, string) { return http.StatusOK, body })
		_, err := client.GenerateAnalysis(context.Background(), AnalysisRequest{Kind: KindFinalReport, Rules: kimRules()})
		require.ErrorIs(t, err, ErrUnavailable, body)
	}
}

func TestHTTPEmptyHintIsNotSuccess(t *testing.T) {
	client, _ := newEngine(t, func(string, map[string]any) (int, string) { return http.StatusOK, `{"hint":"  "}` })
	_, err := client.GenerateHint(context.Background(), Turn{Rules: kimRules()})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewHTTPClient(url, time.Second, nil)
	_, err := client.StartSimulation(context.Background(), kimRules())
	require.True(t, errors.Is(err, ErrUnavailable))
}

func TestHTTPMalformedEngineURLIsUnavailable(t *testing.T) {
	client := NewHTTPClient("http://bad host:8000", time.Second, nil)
	_, err := client.StartSimulation(context.Background(), kimRules())
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnavailable))
}

func TestHTTPAnalysisSendsNewestMessageAsInput(t *testing.T) {
	client, calls := newEngine(t, func(string, map[string]any) (int, string) {
		return http.StatusOK, `{"analysis_result":"what felt hardest?"}`
	})

	_, err := client.GenerateAnalysis(context.Background(), AnalysisRequest{
		Kind:  KindReflectionGuide,
		Rules: kimRules(),
		Transcript: []scenario.Message{
			{Sender: "Kim", Text: "Why are you late?"},
			{Sender: scenario.SenderUser, Text: "I'm sorry, the bus was late"},
			{Sender: "Kim", Text: "That doesn't excuse it"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "That doesn't excuse it", (<-calls).body["user_input"])
}
