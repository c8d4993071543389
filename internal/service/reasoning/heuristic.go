package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zhouzirui/timemachine/backend/internal/analysis/emotion"
	model "github.com/zhouzirui/timemachine/backend/internal/model/emotion"
	"github.com/zhouzirui/timemachine/backend/internal/model/scenario"
)

// HeuristicEngine is a deterministic offline engine for local development and
// the CLI tester. It reads the user's tone with keyword rules instead of a model.
type HeuristicEngine struct{}

// NewHeuristicEngine returns the offline engine.
func NewHeuristicEngine() *HeuristicEngine {
	return &HeuristicEngine{}
}

var seedStates = map[scenario.CoreEmotion]model.Vector{
	scenario.CoreAnger:   {Anger: 40, Disgust: 20, Fear: 5, Joy: 5, Sadness: 10, Surprise: 10},
	scenario.CoreRegret:  {Anger: 15, Disgust: 10, Fear: 10, Joy: 5, Sadness: 35, Surprise: 10},
	scenario.CoreSadness: {Anger: 10, Disgust: 5, Fear: 15, Joy: 5, Sadness: 45, Surprise: 5},
	scenario.CoreGuilt:   {Anger: 25, Disgust: 15, Fear: 10, Joy: 5, Sadness: 25, Surprise: 10},
}

var toneReplies = map[emotion.Tone]string{
	emotion.Neutral:    "I'm listening. Go on.",
	emotion.Apologetic: "An apology is a start. It doesn't change what happened.",
	emotion.Defiant:    "Don't raise your voice at me. Think about what you just said.",
	emotion.Hurt:       "I didn't realise it hit you that hard.",
	emotion.Warm:       "...Fine. I appreciate you saying that.",
	emotion.Anxious:    "Calm down. Tell me plainly what you want.",
}

var axisHints = map[model.Axis]string{
	model.Anger:    "%s is angry. Acknowledge the frustration before explaining yourself.",
	model.Disgust:  "%s is dismissive right now. Stay concrete and avoid sarcasm.",
	model.Fear:     "%s seems uneasy. Reassure them that you are not attacking.",
	model.Joy:      "%s is receptive. This is a good moment to say what you really need.",
	model.Sadness:  "%s is hurt. Name what you think they felt.",
	model.Surprise: "%s was caught off guard. Give them a moment and restate your point calmly.",
}

// StartSimulation seeds the state from the core emotion and opens with the scene.
func (e *HeuristicEngine) StartSimulation(ctx context.Context, rules scenario.Rules) (Opening, error) {
	if err := ctx.Err(); err != nil {
		return Opening{}, unavailable("%v", err)
	}
	state, ok := seedStates[rules.CoreEmotion]
	if !ok {
		state = seedStates[scenario.CoreAnger]
	}
	line := fmt.Sprintf("So. About %s. What do you have to say for yourself?", strings.TrimSuffix(rules.SceneDescription, "."))
	return Opening{OpeningLine: line, InitialState: state}, nil
}

// ContinueSimulation shifts the actor's state according to the user's tone.
func (e *HeuristicEngine) ContinueSimulation(ctx context.Context, turn Turn) (TurnResult, error) {
	if err := ctx.Err(); err != nil {
		return TurnResult{}, unavailable("%v", err)
	}
	decision := emotion.Analyze(turn.UserMessage)
	return TurnResult{
		Reply:    toneReplies[decision.Tone],
		NewState: emotion.Apply(turn.State, decision),
	}, nil
}

// GenerateHint points at the actor's dominant emotion.
func (e *HeuristicEngine) GenerateHint(ctx context.Context, turn Turn) (Hint, error) {
	if err := ctx.Err(); err != nil {
		return Hint{}, unavailable("%v", err)
	}
	axis, _ := turn.State.Dominant()
	return Hint{Text: fmt.Sprintf(axisHints[axis], turn.Rules.ActorName)}, nil
}

// GenerateAnalysis summarises how the actor's state moved during the rehearsal.
func (e *HeuristicEngine) GenerateAnalysis(ctx context.Context, req AnalysisRequest) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, unavailable("%v", err)
	}

	trend := describeTrend(req.Rules.ActorName, req.InitialState, req.FinalState)
	turns := 0
	for _, msg := range req.Transcript {
		if msg.FromUser() {
			turns++
		}
	}

	var result any
	switch req.Kind {
	case KindReflectionGuide:
		result = fmt.Sprintf("You spoke %d times. %s Which moment felt hardest, and what did you want %s to understand then?",
			turns, trend, req.Rules.ActorName)
	case KindFinalReport:
		report := Report{
			Summary:      fmt.Sprintf("You rehearsed %q with %s over %d turns.", req.Rules.SceneDescription, req.Rules.ActorName, turns),
			EmotionTrend: trend,
			NextSteps:    "Replay the scene and try opening with how you felt rather than what happened.",
		}
		if reflection := strings.TrimSpace(req.Reflection); reflection != "" {
			report.LearningPoints = append(report.LearningPoints, "Your reflection: "+reflection)
		}
		axis, _ := req.FinalState.Dominant()
		report.LearningPoints = append(report.LearningPoints,
			fmt.Sprintf("The conversation ended with %s dominant in %s.", axis, req.Rules.ActorName))
		result = report
	default:
		return Analysis{}, fmt.Errorf("unknown analysis kind %q", req.Kind)
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return Analysis{}, unavailable("encode analysis: %v", err)
	}
	return Analysis{Kind: req.Kind, Result: raw}, nil
}

func describeTrend(actor string, from, to model.Vector) string {
	shifts := model.Delta(from, to)
	if len(shifts) == 0 {
		return fmt.Sprintf("%s's feelings did not change.", actor)
	}

	parts := make([]string, 0, len(shifts))
	for _, shift := range shifts {
		direction := "rose"
		if shift.Delta < 0 {
			direction = "fell"
		}
		parts = append(parts, fmt.Sprintf("%s %s from %d to %d", shift.Axis, direction, shift.From, shift.To))
	}
	return fmt.Sprintf("For %s, %s.", actor, strings.Join(parts, "; "))
}
