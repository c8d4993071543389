package scenario

import (
	"errors"
	"fmt"
	"strings"
)

// CoreEmotion is the feeling the user reports as central to the situation.
type CoreEmotion string

const (
	CoreAnger   CoreEmotion = "anger"
	CoreRegret  CoreEmotion = "regret"
	CoreSadness CoreEmotion = "sadness"
	CoreGuilt   CoreEmotion = "guilt"
)

// SenderUser is the transcript sender reserved for the person rehearsing.
const SenderUser = "user"

var coreEmotionAliases = map[string]CoreEmotion{
	"anger":   CoreAnger,
	"regret":  CoreRegret,
	"sadness": CoreSadness,
	"guilt":   CoreGuilt,
	"분노":      CoreAnger,
	"후회":      CoreRegret,
	"슬픔":      CoreSadness,
	"미안함":     CoreGuilt,
}

// ParseCoreEmotion normalises an English or Korean label.
func ParseCoreEmotion(raw string) (CoreEmotion, bool) {
	label, ok := coreEmotionAliases[strings.ToLower(strings.TrimSpace(raw))]
	return label, ok
}

// Rules are authored once when a scenario is created and never change afterwards.
type Rules struct {
	SceneDescription string      `json:"scene_description" bson:"scene_description"`
	CoreEmotion      CoreEmotion `json:"core_emotion" bson:"core_emotion"`
	ActorName        string      `json:"actor_name" bson:"actor_name"`
	ActorRules       string      `json:"actor_rules" bson:"actor_rules"`
}

// ErrInvalidRules is wrapped by every rule validation failure.
var ErrInvalidRules = errors.New("invalid scenario rules")

// Normalize trims every field and resolves the core emotion alias.
func (r Rules) Normalize() (Rules, error) {
	out := Rules{
		SceneDescription: strings.TrimSpace(r.SceneDescription),
		ActorName:        strings.TrimSpace(r.ActorName),
		ActorRules:       strings.TrimSpace(r.ActorRules),
	}

	var missing []string
	if out.SceneDescription == "" {
		missing = append(missing, "scene_description")
	}
	if strings.TrimSpace(string(r.CoreEmotion)) == "" {
		missing = append(missing, "core_emotion")
	}
	if out.ActorName == "" {
		missing = append(missing, "actor_name")
	}
	if out.ActorRules == "" {
		missing = append(missing, "actor_rules")
	}
	if len(missing) > 0 {
		return Rules{}, fmt.Errorf("%w: %s required", ErrInvalidRules, strings.Join(missing, ", "))
	}

	label, ok := ParseCoreEmotion(string(r.CoreEmotion))
	if !ok {
		return Rules{}, fmt.Errorf("%w: unknown core_emotion %q", ErrInvalidRules, r.CoreEmotion)
	}
	out.CoreEmotion = label

	if strings.EqualFold(out.ActorName, SenderUser) {
		return Rules{}, fmt.Errorf("%w: actor_name %q is reserved", ErrInvalidRules, out.ActorName)
	}
	return out, nil
}
