package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/timemachine/backend/internal/model/emotion"
	"github.com/zhouzirui/timemachine/backend/internal/model/scenario"
)

// LLMEngine plays the reasoning engine in-process on top of an eino chat model.
type LLMEngine struct {
	chain   compose.Runnable[map[string]any, *schema.Message]
	prompts *promptBuilder
	logger  *zap.Logger
}

// NewLLMEngine compiles the prompt chain around chatModel.
func NewLLMEngine(ctx context.Context, chatModel model.BaseChatModel, logger *zap.Logger) (*LLMEngine, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	prompts, err := newPromptBuilder()
	if err != nil {
		return nil, err
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile reasoning chain: %w", err)
	}

	return &LLMEngine{chain: runnable, prompts: prompts, logger: logger}, nil
}

type actorPayload struct {
	Reply        string          `json:"reply"`
	EmotionState *emotion.Vector `json:"emotion_state"`
}

type hintPayload struct {
	Hint string `json:"hint"`
}

type guidePayload struct {
	ReflectionGuide string `json:"reflection_guide"`
}

// StartSimulation asks the model for the opening line and initial state.
func (e *LLMEngine) StartSimulation(ctx context.Context, rules scenario.Rules) (Opening, error) {
	var out actorPayload
	err := e.invoke(ctx, "start", map[string]any{
		"system":  e.prompts.actorSystem(rules),
		"history": []*schema.Message{},
		"query":   e.prompts.openingQuery(rules),
	}, &out)
	if err != nil {
		return Opening{}, err
	}
	if err := out.check(); err != nil {
		return Opening{}, err
	}
	return Opening{OpeningLine: out.Reply, InitialState: *out.EmotionState}, nil
}

// ContinueSimulation replays the transcript as chat history and asks for the next reply.
func (e *LLMEngine) ContinueSimulation(ctx context.Context, turn Turn) (TurnResult, error) {
	history := turn.Transcript
	// The newest user message is sent as the query, not as history.
	if n := len(history); n > 0 && history[n-1].FromUser() && history[n-1].Text == turn.UserMessage {
		history = history[:n-1]
	}

	var out actorPayload
	err := e.invoke(ctx, "turn", map[string]any{
		"system":  e.prompts.actorSystem(turn.Rules),
		"history": historyMessages(history),
		"query":   e.prompts.turnQuery(turn),
	}, &out)
	if err != nil {
		return TurnResult{}, err
	}
	if err := out.check(); err != nil {
		return TurnResult{}, err
	}
	return TurnResult{Reply: out.Reply, NewState: *out.EmotionState}, nil
}

// GenerateHint asks the coach persona for advice.
func (e *LLMEngine) GenerateHint(ctx context.Context, turn Turn) (Hint, error) {
	var out hintPayload
	err := e.invoke(ctx, "hint", map[string]any{
		"system":  e.prompts.coachSystem(),
		"history": []*schema.Message{},
		"query":   e.prompts.hintQuery(turn),
	}, &out)
	if err != nil {
		return Hint{}, err
	}
	if strings.TrimSpace(out.Hint) == "" {
		return Hint{}, unavailable("model returned an empty hint")
	}
	return Hint{Text: out.Hint}, nil
}

// GenerateAnalysis produces the reflection guide text or the structured final report.
func (e *LLMEngine) GenerateAnalysis(ctx context.Context, req AnalysisRequest) (Analysis, error) {
	input := map[string]any{
		"system":  e.prompts.coachSystem(),
		"history": []*schema.Message{},
		"query":   e.prompts.analysisQuery(req),
	}

	var result any
	switch req.Kind {
	case KindReflectionGuide:
		var out guidePayload
		if err := e.invoke(ctx, string(req.Kind), input, &out); err != nil {
			return Analysis{}, err
		}
		if strings.TrimSpace(out.ReflectionGuide) == "" {
			return Analysis{}, unavailable("model returned an empty reflection guide")
		}
		result = out.ReflectionGuide
	case KindFinalReport:
		var out Report
		if err := e.invoke(ctx, string(req.Kind), input, &out); err != nil {
			return Analysis{}, err
		}
		if strings.TrimSpace(out.Summary) == "" {
			return Analysis{}, unavailable("model returned a report without summary")
		}
		result = out
	default:
		return Analysis{}, fmt.Errorf("unknown analysis kind %q", req.Kind)
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return Analysis{}, unavailable("encode analysis: %v", err)
	}
	return Analysis{Kind: req.Kind, Result: raw}, nil
}

func (e *LLMEngine) invoke(ctx context.Context, op string, input map[string]any, out any) error {
	started := time.Now()
	msg, err := e.chain.Invoke(ctx, input)
	if err != nil {
		e.logger.Warn("reasoning chain failed", zap.String("op", op), zap.Error(err))
		return unavailable("%s: %v", op, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return unavailable("%s: empty model output", op)
	}
	if err := decodeModelJSON(msg.Content, out); err != nil {
		e.logger.Warn("reasoning output unparsable", zap.String("op", op), zap.Error(err))
		return unavailable("%s: %v", op, err)
	}
	e.logger.Debug("reasoning chain completed",
		zap.String("op", op),
		zap.Int("length", len(msg.Content)),
		zap.Duration("elapsed", time.Since(started)))
	return nil
}

func (p actorPayload) check() error {
	if strings.TrimSpace(p.Reply) == "" {
		return unavailable("model returned no reply")
	}
	if p.EmotionState == nil {
		return unavailable("model returned no emotion_state")
	}
	return nil
}

// decodeModelJSON extracts the outermost JSON object from model output, which may
// be wrapped in prose or a fenced code block.
func decodeModelJSON(content string, out any) error {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("missing json object")
	}
	return json.Unmarshal([]byte(trimmed[start:end+1]), out)
}

func historyMessages(messages []scenario.Message) []*schema.Message {
	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.FromUser() {
			history = append(history, schema.UserMessage(msg.Text))
		} else {
			history = append(history, schema.AssistantMessage(msg.Text, nil))
		}
	}
	return history
}
