package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role attributes a turn to one of the conversation parties.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Kind distinguishes real conversation turns from the synthetic opener that
// only exists to elicit the interviewer's first message. Filtering on Kind is
// structural; no sentinel IDs.
type Kind string

const (
	KindReal      Kind = "real"
	KindBootstrap Kind = "bootstrap"
)

// Turn is one message in the interview transcript. Turns are immutable once
// created; ordering is by CreatedAt.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	Kind      Kind      `json:"kind,omitempty"`
}

// IsBootstrap reports whether this is the synthetic opener. An empty Kind
// means real, so turns decoded from older transcripts behave correctly.
func (t Turn) IsBootstrap() bool {
	return t.Kind == KindBootstrap
}

// bootstrapContent mirrors the opener the study UI used to send; the
// orchestrator now injects it server-side instead.
const bootstrapContent = "Hallo, bitte stelle dich vor und starte das Interview mit mir."

// NewBootstrapTurn builds the hidden user turn that triggers the
// interviewer's opening message. It is sent to the model but never persisted
// and never echoed back to the client.
func NewBootstrapTurn(now time.Time) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   bootstrapContent,
		CreatedAt: now,
		Kind:      KindBootstrap,
	}
}

// NewAssistantTurn wraps model output as a real assistant turn.
func NewAssistantTurn(content string, now time.Time) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   content,
		CreatedAt: now,
		Kind:      KindReal,
	}
}

// VisibleHistory filters out bootstrap and empty turns, i.e. what the client
// is allowed to see and what the transcript store is allowed to keep.
func VisibleHistory(turns []Turn) []Turn {
	out := make([]Turn, 0, len(turns))
	for _, t := range turns {
		if t.IsBootstrap() || t.Content == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}
