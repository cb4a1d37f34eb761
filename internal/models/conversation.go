package models

import "time"

// Speaker is the author of a conversation turn
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is one message of a conversation. Failed marks a user turn whose
// reply never arrived; it stays visible but is not part of the history
// sent to the provider.
type Turn struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Failed    bool      `json:"failed,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
