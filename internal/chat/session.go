package chat

import (
	"context"
	"time"
)

// Group is the study arm a participant was assigned to. Only the chatbot
// group's transcripts are persisted by this pipeline.
type Group string

const (
	GroupChatbot Group = "chatbot"
	GroupHuman   Group = "human"
	GroupTest    Group = "test"
)

// Session is the per-participant interview session state the orchestrator
// reads and writes. The surrounding survey flow owns the rest of the session.
type Session struct {
	UserID    string     `json:"userId"`
	Group     Group      `json:"group"`
	ChatStart *time.Time `json:"chatStart,omitempty"`
	Step      string     `json:"step,omitempty"`
}

// SessionStore reads and writes interview session state.
type SessionStore interface {
	Session(ctx context.Context, userID string) (Session, error)
	SaveSession(ctx context.Context, s Session) error
}

// TranscriptSaver persists the unsaved suffix of a full history. Turns that
// are already stored must not be stored again.
type TranscriptSaver interface {
	SaveChat(ctx context.Context, userID string, history []Turn) error
}

// UserFlags reads and writes the participant's interview-finished flag.
type UserFlags interface {
	FinishRecorder
	InterviewFinished(ctx context.Context, userID string) (bool, error)
}
