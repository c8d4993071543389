package scenario

import (
	"strings"
	"time"
)

// Message is one line of the rehearsal transcript.
type Message struct {
	Sender    string    `json:"sender" bson:"sender"`
	Text      string    `json:"text" bson:"text"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// FromUser reports whether the person rehearsing wrote the message.
func (m Message) FromUser() bool {
	return m.Sender == SenderUser
}

// FormatTranscript renders the history as "sender: text" lines in transcript order.
func FormatTranscript(messages []Message) string {
	lines := make([]string, len(messages))
	for i, msg := range messages {
		lines[i] = msg.Sender + ": " + msg.Text
	}
	return strings.Join(lines, "\n")
}

// LastMessage returns the text of the newest message from any sender.
func LastMessage(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}
	return messages[len(messages)-1].Text
}

// LastUserMessage returns the newest message written by the user, or "" when there is none.
func LastUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].FromUser() {
			return messages[i].Text
		}
	}
	return ""
}
