// Package store provides the collaborator-facing persistence surfaces the
// interview pipeline depends on: session state, transcript log, network
// maps, and per-user flags. Implementations are in-memory (dev/tests) and
// file-backed (single-node deployments).
package store

import (
	"context"
	"errors"

	"github.com/phlu-lernkoop/interviewd/internal/chat"
	"github.com/phlu-lernkoop/interviewd/internal/netmap"
)

// ErrNotFound is returned for lookups of records that were never written.
var ErrNotFound = errors.New("store: not found")

// TranscriptStore persists interview transcripts turn by turn and reads them
// back in creation order.
type TranscriptStore interface {
	chat.TranscriptSaver
	ReadChat(ctx context.Context, userID string) ([]chat.Turn, error)
	LastTurn(ctx context.Context, userID string) (*chat.Turn, error)
}

// NetworkMapStore owns the participant's network map. SaveMap exists for the
// map editor collaborator; the pipeline itself only reads.
type NetworkMapStore interface {
	MapForUser(ctx context.Context, userID string) ([]netmap.Person, error)
	SaveMap(ctx context.Context, userID string, people []netmap.Person) error
}

// unsavedSuffix returns the turns after the last already-stored one,
// excluding the synthetic opener and empty turns. The cut point is located
// by the stored turn's content, so overlapping histories persist each real
// turn exactly once.
func unsavedSuffix(history []chat.Turn, last *chat.Turn) []chat.Turn {
	start := 0
	if last != nil {
		for i, t := range history {
			if t.Content == last.Content {
				start = i + 1
				break
			}
		}
	}
	return chat.VisibleHistory(history[start:])
}
