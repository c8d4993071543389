package scenario

import (
	"time"

	"github.com/zhouzirui/timemachine/backend/internal/model/emotion"
)

// Phase is the lifecycle position of a session. Phases only move forward.
type Phase string

const (
	PhaseCreated    Phase = "created"
	PhaseActive     Phase = "active"
	PhaseReflecting Phase = "reflecting"
	PhaseReported   Phase = "reported"
)

var phaseRank = map[Phase]int{
	PhaseCreated:    0,
	PhaseActive:     1,
	PhaseReflecting: 2,
	PhaseReported:   3,
}

// AtLeast reports whether p is at or beyond other.
func (p Phase) AtLeast(other Phase) bool {
	return phaseRank[p] >= phaseRank[other]
}

// Advance returns the later of p and target.
func (p Phase) Advance(target Phase) Phase {
	if p.AtLeast(target) {
		return p
	}
	return target
}

// AcceptsTurns reports whether new chat turns may still be added.
func (p Phase) AcceptsTurns() bool {
	return !p.AtLeast(PhaseReflecting)
}

// Session is one rehearsal: the authored rules, the actor's emotional state and the transcript.
type Session struct {
	ID           string         `json:"id" bson:"_id"`
	Rules        Rules          `json:"rules" bson:"rules"`
	InitialState emotion.Vector `json:"initial_state" bson:"initial_state"`
	CurrentState emotion.Vector `json:"current_state" bson:"current_state"`
	ChatLog      []Message      `json:"chat_log" bson:"chat_log"`
	Reflection   string         `json:"reflection" bson:"reflection"`
	Phase        Phase          `json:"phase" bson:"phase"`
	Version      int64          `json:"version" bson:"version"`
	CreatedAt    time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" bson:"updated_at"`
}

// Clone returns a deep copy so stores never share the transcript slice with callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.ChatLog = append([]Message(nil), s.ChatLog...)
	return &out
}

// OpeningLine is the actor's seed message, or "" for an empty transcript.
func (s *Session) OpeningLine() string {
	if len(s.ChatLog) == 0 {
		return ""
	}
	return s.ChatLog[0].Text
}
