package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/packages/ssestream"
)

// fakeDecoder replays canned SSE events so streaming paths can be exercised
// without a network.
type fakeDecoder struct {
	events []ssestream.Event
	idx    int
}

func (d *fakeDecoder) Next() bool {
	if d.idx < len(d.events) {
		d.idx++
		return true
	}
	return false
}

func (d *fakeDecoder) Event() ssestream.Event {
	return d.events[d.idx-1]
}

func (d *fakeDecoder) Close() error { return nil }
func (d *fakeDecoder) Err() error   { return nil }

func chunkEvent(t *testing.T, chunk map[string]any) ssestream.Event {
	t.Helper()
	b, err := json.Marshal(chunk)
	if err != nil {
		t.Fatalf("marshal chunk: %v", err)
	}
	return ssestream.Event{Data: b}
}

func textChunks(t *testing.T, deltas ...string) []ssestream.Event {
	t.Helper()
	var events []ssestream.Event
	for _, delta := range deltas {
		events = append(events, chunkEvent(t, map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion.chunk",
			"choices": []map[string]any{{
				"index": 0,
				"delta": map[string]any{"role": "assistant", "content": delta},
			}},
		}))
	}
	events = append(events, chunkEvent(t, map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion.chunk",
		"choices": []map[string]any{{
			"index":         0,
			"delta":         map[string]any{},
			"finish_reason": "stop",
		}},
	}))
	return events
}

func toolCallChunks(t *testing.T, reason string) []ssestream.Event {
	t.Helper()
	args, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return []ssestream.Event{
		chunkEvent(t, map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion.chunk",
			"choices": []map[string]any{{
				"index": 0,
				"delta": map[string]any{
					"role": "assistant",
					"tool_calls": []map[string]any{{
						"index": 0,
						"id":    "call_finish_1",
						"type":  "function",
						"function": map[string]any{
							"name":      finishToolName,
							"arguments": string(args),
						},
					}},
				},
			}},
		}),
		chunkEvent(t, map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion.chunk",
			"choices": []map[string]any{{
				"index":         0,
				"delta":         map[string]any{},
				"finish_reason": "tool_calls",
			}},
		}),
	}
}

func newFakeStream(events []ssestream.Event) *ssestream.Stream[openai.ChatCompletionChunk] {
	return ssestream.NewStream[openai.ChatCompletionChunk](&fakeDecoder{events: events}, nil)
}

// fakeStreamer hands out one canned stream per call and records the params
// of every call for inspection.
type fakeStreamer struct {
	queued []func() *ssestream.Stream[openai.ChatCompletionChunk]
	params []openai.ChatCompletionNewParams
}

func (f *fakeStreamer) Stream(ctx context.Context, params openai.ChatCompletionNewParams) (*ssestream.Stream[openai.ChatCompletionChunk], error) {
	f.params = append(f.params, params)
	i := len(f.params) - 1
	if i >= len(f.queued) {
		return nil, errors.New("fakeStreamer: unexpected extra stream call")
	}
	return f.queued[i](), nil
}

// fakeGenerator returns canned completions or errors, in call order.
type fakeGenerator struct {
	responses []*openai.ChatCompletion
	errs      []error
	params    []openai.ChatCompletionNewParams
}

func (f *fakeGenerator) Generate(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	f.params = append(f.params, params)
	i := len(f.params) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return nil, errors.New("fakeGenerator: unexpected extra call")
}

func completionWithContent(content string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{
			FinishReason: "stop",
			Message:      openai.ChatCompletionMessage{Content: content},
		}},
	}
}

// messagesJSON renders the request messages for substring assertions; the
// union param types are awkward to walk directly.
func messagesJSON(t *testing.T, params openai.ChatCompletionNewParams) string {
	t.Helper()
	b, err := json.Marshal(params.Messages)
	if err != nil {
		t.Fatalf("marshal messages: %v", err)
	}
	return string(b)
}
