package reasoning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	model "github.com/zhouzirui/timemachine/backend/internal/model/emotion"
	"github.com/zhouzirui/timemachine/backend/internal/model/scenario"
)

// promptBuilder renders the instructions for each engine operation.
type promptBuilder struct {
	reportSchema string
}

func newPromptBuilder() (*promptBuilder, error) {
	schema, err := reportSchemaJSON()
	if err != nil {
		return nil, err
	}
	return &promptBuilder{reportSchema: schema}, nil
}

// reportSchemaJSON reflects Report into a JSON schema for the final report prompt.
func reportSchemaJSON() (string, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := reflector.Reflect(&Report{})
	raw, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report schema: %w", err)
	}
	return string(raw), nil
}

func (p *promptBuilder) actorSystem(rules scenario.Rules) string {
	return fmt.Sprintf(`You are role-playing %s in a rehearsal of a difficult conversation.

Scene: %s
The user's core feeling about this scene: %s
How %s behaves: %s

Stay in character. Keep replies short and natural, like spoken dialogue.
You track %s's emotional state on six axes (%s), each an integer from 0 to 100.
Answer with a single JSON object only:
{"reply": "<what %s says>", "emotion_state": {"anger": 0, "disgust": 0, "fear": 0, "joy": 0, "sadness": 0, "surprise": 0}}`,
		rules.ActorName,
		rules.SceneDescription,
		rules.CoreEmotion,
		rules.ActorName,
		rules.ActorRules,
		rules.ActorName,
		axisList(),
		rules.ActorName,
	)
}

func (p *promptBuilder) openingQuery(rules scenario.Rules) string {
	return fmt.Sprintf("Start the scene. Say %s's first line and give the initial emotion_state.", rules.ActorName)
}

func (p *promptBuilder) turnQuery(turn Turn) string {
	return fmt.Sprintf(`Current emotion_state: %s

The user says: %s

Reply as %s and give the complete new emotion_state.`,
		vectorJSON(turn.State),
		turn.UserMessage,
		turn.Rules.ActorName,
	)
}

func (p *promptBuilder) coachSystem() string {
	return `You are a supportive conversation coach. The user rehearsed a stressful past conversation with a simulated person.
Be specific, kind and practical. Answer with a single JSON object only.`
}

func (p *promptBuilder) hintQuery(turn Turn) string {
	return fmt.Sprintf(`Scene: %s
Other person: %s (%s)
Their current emotion_state: %s

Conversation so far:
%s

The user's last message: %s

Suggest what the user could say or try next. Answer as {"hint": "<one or two sentences>"}.`,
		turn.Rules.SceneDescription,
		turn.Rules.ActorName,
		turn.Rules.ActorRules,
		vectorJSON(turn.State),
		scenario.FormatTranscript(turn.Transcript),
		orNone(turn.UserMessage),
	)
}

func (p *promptBuilder) analysisQuery(req AnalysisRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scene: %s\nCore feeling: %s\nOther person: %s (%s)\n\n",
		req.Rules.SceneDescription, req.Rules.CoreEmotion, req.Rules.ActorName, req.Rules.ActorRules)
	fmt.Fprintf(&b, "Initial emotion_state: %s\nFinal emotion_state: %s\n", vectorJSON(req.InitialState), vectorJSON(req.FinalState))

	shifts := model.Delta(req.InitialState, req.FinalState)
	if len(shifts) > 0 {
		b.WriteString("Largest shifts:")
		for _, shift := range shifts {
			fmt.Fprintf(&b, " %s %+d;", shift.Axis, shift.Delta)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nConversation:\n%s\n\nUser's reflection: %s\n\n", scenario.FormatTranscript(req.Transcript), orNone(req.Reflection))

	switch req.Kind {
	case KindReflectionGuide:
		b.WriteString(`Write a short guide with two or three questions that help the user reflect on the conversation.
Answer as {"reflection_guide": "<guide text>"}.`)
	case KindFinalReport:
		b.WriteString("Write the final report. The JSON object must follow this schema:\n")
		b.WriteString(p.reportSchema)
	}
	return b.String()
}

func axisList() string {
	names := make([]string, 0, len(model.Axes()))
	for _, axis := range model.Axes() {
		names = append(names, string(axis))
	}
	return strings.Join(names, ", ")
}

func vectorJSON(v model.Vector) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
