package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phlu-lernkoop/interviewd/internal/netmap"
)

// MapSource supplies the participant's network map. In production this is
// the tag-invalidated cache in front of the map store.
type MapSource interface {
	MapForUser(ctx context.Context, userID string) ([]netmap.Person, error)
}

const (
	// DefaultKeepLast is the active context window: once the history reaches
	// this many turns, everything older is summarized away.
	DefaultKeepLast = 7
	// DefaultValidateAfter is the minimum turn count before moderation runs,
	// i.e. there is a preceding question to validate against.
	DefaultValidateAfter = 3
	// DefaultBudget is the wall-clock interview budget from the first turn.
	DefaultBudget = 12 * time.Minute
)

// Orchestrator is the per-request controller for one interview turn: it
// decides whether to summarize and moderate, assembles the interviewer's
// context, streams the response, and persists the transcript delta.
type Orchestrator struct {
	Sessions    SessionStore
	Transcripts TranscriptSaver
	Maps        MapSource
	Users       UserFlags
	Moderator   *Moderator
	Summarizer  *Summarizer
	Interviewer *Interviewer
	Logger      *slog.Logger

	Now           func() time.Time
	KeepLast      int
	ValidateAfter int
	Budget        time.Duration
}

// TurnOutcome reports what one request produced.
type TurnOutcome struct {
	NewTurns        []Turn
	Finished        bool
	FinishReason    string
	AlreadyFinished bool
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) keepLast() int {
	if o.KeepLast > 0 {
		return o.KeepLast
	}
	return DefaultKeepLast
}

func (o *Orchestrator) validateAfter() int {
	if o.ValidateAfter > 0 {
		return o.ValidateAfter
	}
	return DefaultValidateAfter
}

func (o *Orchestrator) budget() time.Duration {
	if o.Budget > 0 {
		return o.Budget
	}
	return DefaultBudget
}

// HandleTurn runs the full pipeline for one incoming chat request. incoming
// is the client's visible history (the synthetic opener is injected here,
// never by the client). Text deltas are forwarded to emit as the interviewer
// produces them.
func (o *Orchestrator) HandleTurn(ctx context.Context, userID string, incoming []Turn, emit func(delta string) error) (TurnOutcome, error) {
	if finished, err := o.Users.InterviewFinished(ctx, userID); err != nil {
		o.Logger.Warn("finished-flag lookup failed, assuming in progress", "user_id", userID, "error", err)
	} else if finished {
		// Finished sessions are not fed back into the interviewer.
		return TurnOutcome{Finished: true, AlreadyFinished: true}, nil
	}

	now := o.now()
	working := make([]Turn, 0, len(incoming)+1)
	working = append(working, NewBootstrapTurn(now))
	working = append(working, incoming...)

	sess, err := o.Sessions.Session(ctx, userID)
	if err != nil {
		return TurnOutcome{}, fmt.Errorf("load session: %w", err)
	}
	if sess.ChatStart == nil && len(incoming) == 0 {
		start := now
		sess.ChatStart = &start
		if err := o.Sessions.SaveSession(ctx, sess); err != nil {
			return TurnOutcome{}, fmt.Errorf("record interview start: %w", err)
		}
	}

	people, err := o.Maps.MapForUser(ctx, userID)
	if err != nil {
		return TurnOutcome{}, fmt.Errorf("load network map: %w", err)
	}

	isTimeUp := sess.ChatStart != nil && now.Sub(*sess.ChatStart) >= o.budget()

	keep := o.keepLast()
	shouldSummarize := len(working) >= keep
	shouldValidate := len(working) >= o.validateAfter()

	// Summarization and moderation fan out concurrently and are joined
	// before the interviewer runs. Each is fault-isolated: a failure means
	// "no result this turn", never a failed request.
	var (
		wg      sync.WaitGroup
		summary string
		verdict *Verdict
	)
	if prefix := working[:max(len(working)-keep, 0)]; shouldSummarize && len(prefix) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := o.Summarizer.Summarize(ctx, prefix, userID)
			if err != nil {
				o.Logger.Warn("summarization failed, continuing without summary", "user_id", userID, "error", err)
				return
			}
			summary = s
		}()
	}
	if shouldValidate {
		question, answer := working[len(working)-2], working[len(working)-1]
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := o.Moderator.Review(ctx, question, answer, userID)
			verdict = &v
		}()
	}
	wg.Wait()

	window := working
	if shouldSummarize {
		window = working[len(working)-keep:]
	}

	result, err := o.Interviewer.Interview(ctx, InterviewRequest{
		UserID:  userID,
		People:  people,
		Summary: summary,
		Verdict: verdict,
		TimeUp:  isTimeUp,
		Window:  window,
	}, emit)
	if err != nil {
		return TurnOutcome{}, err
	}

	if sess.Group == GroupChatbot {
		full := make([]Turn, 0, len(working)+len(result.Turns))
		full = append(full, working...)
		full = append(full, result.Turns...)
		if err := o.Transcripts.SaveChat(ctx, userID, full); err != nil {
			// The response is already delivered; persistence is best-effort.
			o.Logger.Error("transcript persistence failed", "user_id", userID, "error", err)
		}
	}

	return TurnOutcome{
		NewTurns:     result.Turns,
		Finished:     result.Finished,
		FinishReason: result.FinishReason,
	}, nil
}
