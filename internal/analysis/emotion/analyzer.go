package emotion

import (
	"strings"

	model "github.com/zhouzirui/timemachine/backend/internal/model/emotion"
)

// Tone 表示用户一句话的基调。
type Tone string

const (
	Neutral    Tone = "neutral"
	Apologetic Tone = "apologetic"
	Defiant    Tone = "defiant"
	Hurt       Tone = "hurt"
	Warm       Tone = "warm"
	Anxious    Tone = "anxious"
)

// Decision 给出识别出的基调与命中强度。
type Decision struct {
	Tone  Tone
	Score int
}

var keywordBuckets = map[Tone][]string{
	Apologetic: {
		"sorry", "apologize", "apologise", "my fault", "my bad", "forgive", "excuse me", "i was wrong",
		"미안", "죄송", "잘못했", "용서", "사과",
	},
	Defiant: {
		"not my fault", "whatever", "you always", "you never", "unfair", "ridiculous", "stop", "enough",
		"leave me", "shut up", "no way", "why should", "말도 안", "억울", "그만", "됐어", "왜 나만", "짜증",
	},
	Hurt: {
		"hurt", "sad", "cry", "crying", "lonely", "disappointed", "upset", "painful", "broke my heart",
		"상처", "슬퍼", "서운", "눈물", "외로", "실망", "아파",
	},
	Warm: {
		"thank", "thanks", "appreciate", "understand", "i hear you", "love", "care", "glad", "together",
		"고마", "감사", "이해해", "사랑", "괜찮아", "함께", "좋아",
	},
	Anxious: {
		"afraid", "scared", "worried", "nervous", "panic", "anxious", "don't know what to do",
		"무서", "걱정", "불안", "두려", "떨려", "어떡해",
	},
}

// negations 会削弱道歉类关键词，例如 "not sorry"。
var negations = []string{"not sorry", "안 미안", "미안하지 않"}

// Analyze 根据用户话语推断基调，没有命中时返回 Neutral。
func Analyze(utterance string) Decision {
	normalized := strings.ToLower(strings.TrimSpace(utterance))
	if normalized == "" {
		return Decision{Tone: Neutral}
	}

	scores := make(map[Tone]int)
	for tone, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				scores[tone] += 3
			}
		}
	}

	for _, phrase := range negations {
		if strings.Contains(normalized, phrase) {
			scores[Apologetic] = 0
			scores[Defiant] += 3
		}
	}

	if exclamations := strings.Count(utterance, "!"); exclamations > 0 {
		scores[Defiant] += exclamations
	}
	if strings.Contains(utterance, "?") && scores[Anxious] > 0 {
		scores[Anxious]++
	}

	best := Decision{Tone: Neutral}
	for _, tone := range []Tone{Apologetic, Defiant, Hurt, Warm, Anxious} {
		if s := scores[tone]; s > best.Score {
			best = Decision{Tone: tone, Score: s}
		}
	}
	return best
}

// Impact 描述某种基调让对方（演员）的情绪每个维度变化多少。
type Impact map[model.Axis]int

var toneImpacts = map[Tone]Impact{
	Neutral:    {model.Surprise: -5},
	Apologetic: {model.Anger: -10, model.Disgust: -5, model.Sadness: 5, model.Surprise: -5},
	Defiant:    {model.Anger: 20, model.Disgust: 10, model.Joy: -10, model.Surprise: 10},
	Hurt:       {model.Anger: -5, model.Sadness: 15, model.Fear: 5, model.Surprise: 5},
	Warm:       {model.Anger: -15, model.Disgust: -10, model.Joy: 15},
	Anxious:    {model.Fear: 10, model.Surprise: 5, model.Anger: -5},
}

// Apply 按基调与强度调整情绪向量，强度每多 3 分放大一档，最多三档。
func Apply(state model.Vector, decision Decision) model.Vector {
	impact := toneImpacts[decision.Tone]
	factor := 1 + decision.Score/3
	if factor > 3 {
		factor = 3
	}
	if decision.Tone == Neutral {
		factor = 1
	}
	for _, axis := range model.Axes() {
		if delta, ok := impact[axis]; ok {
			state = state.With(axis, state.Get(axis)+delta*factor/2)
		}
	}
	return state
}
