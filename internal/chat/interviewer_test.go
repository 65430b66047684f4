package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/packages/ssestream"

	"github.com/phlu-lernkoop/interviewd/internal/netmap"
)

type fakeFinishRecorder struct {
	marked []string
	err    error
}

func (f *fakeFinishRecorder) MarkInterviewFinished(ctx context.Context, userID string) error {
	if f.err != nil {
		return f.err
	}
	f.marked = append(f.marked, userID)
	return nil
}

func testInterviewer(streamer *fakeStreamer, users *fakeFinishRecorder) *Interviewer {
	return &Interviewer{
		Model:  streamer,
		Name:   "gpt-4o",
		Users:  users,
		Logger: discardLogger(),
		Now:    func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) },
	}
}

func TestInterviewer_StreamsQuestion(t *testing.T) {
	t.Parallel()

	streamer := &fakeStreamer{queued: []func() *ssestream.Stream[openai.ChatCompletionChunk]{
		func() *ssestream.Stream[openai.ChatCompletionChunk] {
			return newFakeStream(textChunks(t, "Was war ", "besonders bedeutsam?"))
		},
	}}
	users := &fakeFinishRecorder{}
	iv := testInterviewer(streamer, users)

	var deltas []string
	result, err := iv.Interview(context.Background(), InterviewRequest{
		UserID: "user-1",
		Window: []Turn{testTurn(RoleUser, "Hallo")},
	}, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	if err != nil {
		t.Fatalf("Interview: %v", err)
	}
	if strings.Join(deltas, "") != "Was war besonders bedeutsam?" {
		t.Fatalf("deltas=%q", deltas)
	}
	if len(result.Turns) != 1 || result.Turns[0].Content != "Was war besonders bedeutsam?" {
		t.Fatalf("turns=%+v", result.Turns)
	}
	if result.Turns[0].Role != RoleAssistant || result.Turns[0].IsBootstrap() {
		t.Fatalf("turn attrs=%+v", result.Turns[0])
	}
	if result.Finished {
		t.Fatal("should not be finished")
	}
	if len(users.marked) != 0 {
		t.Fatalf("marked=%v", users.marked)
	}
	if params := streamer.params[0]; len(params.Tools) != 1 {
		t.Fatalf("tools=%d, want finishInterview offered", len(params.Tools))
	}
}

func TestInterviewer_FinishToolMarksAndClosesInOneExtraStep(t *testing.T) {
	t.Parallel()

	streamer := &fakeStreamer{queued: []func() *ssestream.Stream[openai.ChatCompletionChunk]{
		func() *ssestream.Stream[openai.ChatCompletionChunk] {
			return newFakeStream(toolCallChunks(t, "alle Personen wurden besprochen"))
		},
		func() *ssestream.Stream[openai.ChatCompletionChunk] {
			return newFakeStream(textChunks(t, "Vielen Dank für das Gespräch!"))
		},
	}}
	users := &fakeFinishRecorder{}
	iv := testInterviewer(streamer, users)

	result, err := iv.Interview(context.Background(), InterviewRequest{
		UserID: "user-1",
		Window: []Turn{testTurn(RoleUser, "Mir fällt nichts mehr ein.")},
	}, func(string) error { return nil })
	if err != nil {
		t.Fatalf("Interview: %v", err)
	}
	if !result.Finished {
		t.Fatal("expected finished")
	}
	if result.FinishReason != "alle Personen wurden besprochen" {
		t.Fatalf("reason=%q", result.FinishReason)
	}
	if len(users.marked) != 1 || users.marked[0] != "user-1" {
		t.Fatalf("marked=%v", users.marked)
	}
	if len(result.Turns) != 1 || result.Turns[0].Content != "Vielen Dank für das Gespräch!" {
		t.Fatalf("turns=%+v", result.Turns)
	}

	if len(streamer.params) != 2 {
		t.Fatalf("model calls=%d, want exactly 2", len(streamer.params))
	}
	second := streamer.params[1]
	if len(second.Tools) != 0 {
		t.Fatal("closing round-trip must not offer tools again")
	}
	msgs := messagesJSON(t, second)
	if !strings.Contains(msgs, "Finish the interview because alle Personen wurden besprochen.") {
		t.Fatalf("closing instruction missing: %s", msgs)
	}
	if !strings.Contains(msgs, "call_finish_1") {
		t.Fatalf("tool call id missing from follow-up: %s", msgs)
	}
}

func TestInterviewer_FinishSideEffectFailureFailsTurn(t *testing.T) {
	t.Parallel()

	streamer := &fakeStreamer{queued: []func() *ssestream.Stream[openai.ChatCompletionChunk]{
		func() *ssestream.Stream[openai.ChatCompletionChunk] {
			return newFakeStream(toolCallChunks(t, "fertig"))
		},
	}}
	boom := errors.New("kaput")
	iv := testInterviewer(streamer, &fakeFinishRecorder{err: boom})

	_, err := iv.Interview(context.Background(), InterviewRequest{
		UserID: "user-1",
		Window: []Turn{testTurn(RoleUser, "ok")},
	}, func(string) error { return nil })
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v, want wrapped %v", err, boom)
	}
}

func TestAssembleContext_FixedOrder(t *testing.T) {
	t.Parallel()

	req := InterviewRequest{
		UserID: "user-1",
		People: []netmap.Person{
			{ID: "p1", Name: "Anna Muster", Function: "Mentorin", Significance: netmap.SignificanceVery},
			{ID: "p2", Name: "Beat Beispiel", Function: "Dozent", Significance: netmap.SignificanceLow},
		},
		Summary: "Bisher ging es um Anna.",
		Verdict: &Verdict{Status: StatusValid, Reason: ReasonRelevant},
		TimeUp:  true,
		Window: []Turn{
			testTurn(RoleAssistant, "Wie war das mit Anna?"),
			testTurn(RoleUser, "Sehr lehrreich."),
		},
	}

	msgs := assembleContext(req)
	if len(msgs) != 7 {
		t.Fatalf("messages=%d, want persona+map+summary+verdict+directive+2 turns", len(msgs))
	}

	rendered := make([]string, len(msgs))
	for i, m := range msgs {
		rendered[i] = messagesJSON(t, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{m},
		})
	}

	if !strings.Contains(rendered[0], "specialized chatbot interviewer") {
		t.Fatalf("persona not first: %s", rendered[0][:min(len(rendered[0]), 120)])
	}
	if !strings.Contains(rendered[1], "social network map") {
		t.Fatal("network map not second")
	}
	// Most significant person first, regardless of input order.
	if anna, beat := strings.Index(rendered[1], "Anna Muster"), strings.Index(rendered[1], "Beat Beispiel"); anna == -1 || beat == -1 || anna > beat {
		t.Fatalf("map ordering wrong (anna=%d beat=%d)", anna, beat)
	}
	if !strings.Contains(rendered[2], "Bisher ging es um Anna.") {
		t.Fatal("summary not third")
	}
	if !strings.Contains(rendered[3], `\"status\":\"VALID\"`) && !strings.Contains(rendered[3], `"status":"VALID"`) {
		t.Fatalf("verdict not fourth: %s", rendered[3])
	}
	if !strings.Contains(rendered[4], "twelve-minute interview time has elapsed") {
		t.Fatal("time-up directive not fifth")
	}
	if !strings.Contains(rendered[5], "Wie war das mit Anna?") || !strings.Contains(rendered[6], "Sehr lehrreich.") {
		t.Fatal("raw turns not last, in order")
	}
}

func TestAssembleContext_OmitsAbsentSections(t *testing.T) {
	t.Parallel()

	msgs := assembleContext(InterviewRequest{
		UserID: "user-1",
		Window: []Turn{testTurn(RoleUser, "Hallo")},
	})
	if len(msgs) != 2 {
		t.Fatalf("messages=%d, want persona + 1 turn only", len(msgs))
	}
}
