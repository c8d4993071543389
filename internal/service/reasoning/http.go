package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/timemachine/backend/internal/model/emotion"
	"github.com/zhouzirui/timemachine/backend/internal/model/scenario"
)

const (
	pathInitialSimulation = "/ai/generate_initial_simulation"
	pathSimulation        = "/ai/generate_simulation"
	pathHint              = "/ai/generate_hint"
	pathAnalysis          = "/ai/generate_analysis"

	maxErrorBody = 512
)

// HTTPClient talks to the external AI engine. It is the only place where session
// fields are renamed into the engine's vocabulary.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient creates an engine client. A zero timeout leaves requests bounded by ctx only.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type engineRules struct {
	ScenarioDescription  string `json:"scenario_description"`
	CharacterName        string `json:"character_name"`
	CharacterPersonality string `json:"character_personality"`
}

type initialSimulationRequest struct {
	engineRules
	CoreEmotion string `json:"core_emotion"`
}

type simulationRequest struct {
	engineRules
	CurrentCharacterEmotions emotion.Vector `json:"current_character_emotions"`
	UserInput                string         `json:"user_input"`
	ConversationHistory      string         `json:"conversation_history"`
	ThoughtProcess           string         `json:"thought_process"`
}

type analysisRequest struct {
	AnalysisType string `json:"analysis_type"`
	engineRules
	InitialState        emotion.Vector `json:"initial_state"`
	FinalState          emotion.Vector `json:"final_state"`
	UserReflection      string         `json:"user_reflection"`
	ConversationHistory string         `json:"conversation_history"`
	UserInput           string         `json:"user_input"`
	ThoughtProcess      string         `json:"thought_process"`
}

type simulationResponse struct {
	Action        string `json:"action"`
	EmotionChange *struct {
		NewEmotionState *emotion.Vector `json:"new_emotion_state"`
	} `json:"emotion_change"`
}

type hintResponse struct {
	Hint string `json:"hint"`
}

type analysisResponse struct {
	AnalysisResult json.RawMessage `json:"analysis_result"`
}

func toEngineRules(rules scenario.Rules) engineRules {
	return engineRules{
		ScenarioDescription:  rules.SceneDescription,
		CharacterName:        rules.ActorName,
		CharacterPersonality: rules.ActorRules,
	}
}

func toSimulationRequest(turn Turn) simulationRequest {
	return simulationRequest{
		engineRules:              toEngineRules(turn.Rules),
		CurrentCharacterEmotions: turn.State,
		UserInput:                turn.UserMessage,
		ConversationHistory:      scenario.FormatTranscript(turn.Transcript),
	}
}

// StartSimulation asks the engine for the actor's opening line and initial state.
func (c *HTTPClient) StartSimulation(ctx context.Context, rules scenario.Rules) (Opening, error) {
	req := initialSimulationRequest{
		engineRules: toEngineRules(rules),
		CoreEmotion: string(rules.CoreEmotion),
	}

	var resp simulationResponse
	if err := c.post(ctx, pathInitialSimulation, req, &resp); err != nil {
		return Opening{}, err
	}
	line, state, err := resp.unpack()
	if err != nil {
		return Opening{}, err
	}
	return Opening{OpeningLine: line, InitialState: state}, nil
}

// ContinueSimulation sends the full transcript, including the new user message, for the actor's reply.
func (c *HTTPClient) ContinueSimulation(ctx context.Context, turn Turn) (TurnResult, error) {
	var resp simulationResponse
	if err := c.post(ctx, pathSimulation, toSimulationRequest(turn), &resp); err != nil {
		return TurnResult{}, err
	}
	reply, state, err := resp.unpack()
	if err != nil {
		return TurnResult{}, err
	}
	return TurnResult{Reply: reply, NewState: state}, nil
}

// GenerateHint asks the engine for advice on the current situation.
func (c *HTTPClient) GenerateHint(ctx context.Context, turn Turn) (Hint, error) {
	var resp hintResponse
	if err := c.post(ctx, pathHint, toSimulationRequest(turn), &resp); err != nil {
		return Hint{}, err
	}
	if strings.TrimSpace(resp.Hint) == "" {
		return Hint{}, unavailable("%s returned an empty hint", pathHint)
	}
	return Hint{Text: resp.Hint}, nil
}

// GenerateAnalysis requests a reflection guide or final report.
func (c *HTTPClient) GenerateAnalysis(ctx context.Context, req AnalysisRequest) (Analysis, error) {
	if !req.Kind.Valid() {
		return Analysis{}, fmt.Errorf("unknown analysis kind %q", req.Kind)
	}

	payload := analysisRequest{
		AnalysisType:        string(req.Kind),
		engineRules:         toEngineRules(req.Rules),
		InitialState:        req.InitialState,
		FinalState:          req.FinalState,
		UserReflection:      req.Reflection,
		ConversationHistory: scenario.FormatTranscript(req.Transcript),
		UserInput:           scenario.LastMessage(req.Transcript),
	}

	var resp analysisResponse
	if err := c.post(ctx, pathAnalysis, payload, &resp); err != nil {
		return Analysis{}, err
	}
	if err := checkAnalysisResult(resp.AnalysisResult); err != nil {
		return Analysis{}, unavailable("%s: %v", pathAnalysis, err)
	}
	return Analysis{Kind: req.Kind, Result: resp.AnalysisResult}, nil
}

func (r simulationResponse) unpack() (string, emotion.Vector, error) {
	if strings.TrimSpace(r.Action) == "" {
		return "", emotion.Vector{}, unavailable("engine response has no action")
	}
	if r.EmotionChange == nil || r.EmotionChange.NewEmotionState == nil {
		return "", emotion.Vector{}, unavailable("engine response has no emotion state")
	}
	return r.Action, *r.EmotionChange.NewEmotionState, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		c.logger.Warn("engine request invalid", zap.String("path", path), zap.Error(err))
		return unavailable("build %s request: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("engine request failed", zap.String("path", path), zap.Error(err))
		return unavailable("%s: %v", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("engine returned error status",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", detail))
		return unavailable("%s returned %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logger.Warn("engine response malformed", zap.String("path", path), zap.Error(err))
		return unavailable("%s: decode response: %v", path, err)
	}

	c.logger.Debug("engine call completed",
		zap.String("path", path),
		zap.Duration("elapsed", time.Since(started)))
	return nil
}
