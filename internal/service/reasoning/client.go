package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zhouzirui/timemachine/backend/internal/model/emotion"
	"github.com/zhouzirui/timemachine/backend/internal/model/scenario"
)

// ErrUnavailable covers every failed exchange with the reasoning engine:
// transport errors, non-success statuses and malformed payloads.
var ErrUnavailable = errors.New("reasoning service unavailable")

// Client is the narrow contract the session controller needs from the reasoning engine.
type Client interface {
	StartSimulation(ctx context.Context, rules scenario.Rules) (Opening, error)
	ContinueSimulation(ctx context.Context, turn Turn) (TurnResult, error)
	GenerateHint(ctx context.Context, turn Turn) (Hint, error)
	GenerateAnalysis(ctx context.Context, req AnalysisRequest) (Analysis, error)
}

// Opening seeds a new session.
type Opening struct {
	OpeningLine  string
	InitialState emotion.Vector
}

// Turn is the context sent for a reply or a hint. For hints UserMessage holds
// the last message the user wrote.
type Turn struct {
	Rules       scenario.Rules
	State       emotion.Vector
	Transcript  []scenario.Message
	UserMessage string
}

// TurnResult is the actor's reply and its complete new emotional state.
type TurnResult struct {
	Reply    string
	NewState emotion.Vector
}

// Hint suggests what the user might try next.
type Hint struct {
	Text string
}

// AnalysisKind selects which post-simulation analysis to generate.
type AnalysisKind string

const (
	KindReflectionGuide AnalysisKind = "reflection_guide"
	KindFinalReport     AnalysisKind = "final_report"
)

// Valid reports whether k is a known kind.
func (k AnalysisKind) Valid() bool {
	return k == KindReflectionGuide || k == KindFinalReport
}

// AnalysisRequest carries the whole session history. Reflection is "" when the
// user never saved one and is still sent.
type AnalysisRequest struct {
	Kind         AnalysisKind
	Rules        scenario.Rules
	InitialState emotion.Vector
	FinalState   emotion.Vector
	Reflection   string
	Transcript   []scenario.Message
}

// Report is the structured final report.
type Report struct {
	Summary        string   `json:"summary" jsonschema:"required,description=Overall assessment of the rehearsal"`
	EmotionTrend   string   `json:"emotion_trend" jsonschema:"required,description=How the actor's emotions moved from start to finish"`
	LearningPoints []string `json:"learning_points" jsonschema:"required,description=Concrete takeaways for the user"`
	NextSteps      string   `json:"next_steps" jsonschema:"required,description=Suggested next scenario or practice"`
}

// Analysis is the engine's result, kept exactly as the engine produced it.
type Analysis struct {
	Kind   AnalysisKind
	Result json.RawMessage
}

// Text returns the result when the engine answered with plain text.
func (a Analysis) Text() (string, bool) {
	var text string
	if err := json.Unmarshal(a.Result, &text); err != nil {
		return "", false
	}
	return text, true
}

// Report returns the result when the engine answered with a structured report.
func (a Analysis) Report() (Report, bool) {
	var report Report
	if len(bytes.TrimSpace(a.Result)) == 0 || bytes.TrimSpace(a.Result)[0] != '{' {
		return Report{}, false
	}
	if err := json.Unmarshal(a.Result, &report); err != nil {
		return Report{}, false
	}
	return report, true
}

// checkAnalysisResult accepts a non-empty string or a non-empty object and rejects
// everything else so a failed analysis can never look like an empty success.
func checkAnalysisResult(raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return errors.New("analysis_result missing")
	}

	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return fmt.Errorf("decode analysis text: %w", err)
		}
		if text == "" {
			return errors.New("analysis_result is empty")
		}
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return fmt.Errorf("decode analysis report: %w", err)
		}
		if len(fields) == 0 {
			return errors.New("analysis_result is empty")
		}
	default:
		return fmt.Errorf("analysis_result has unexpected type")
	}
	return nil
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}
